package sweep

import (
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/pkg/config"
)

// Config holds sweep worker configuration, sourced from the central config package.
type Config struct {
	Interval         time.Duration
	VerboseReporting bool
}

// NewConfig creates a new sweep configuration by reading values
// from the already-initialized variables in the centralized /pkg/config package.
func NewConfig() *Config {
	return &Config{
		Interval:         config.SweepInterval,
		VerboseReporting: config.SweepVerbose,
	}
}
