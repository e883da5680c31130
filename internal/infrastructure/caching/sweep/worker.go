// Package sweep provides the background reconciliation worker that keeps
// snapshot entries fresh even when real-time events are lost.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
)

// Target is anything holding refreshable entries: a snapshot cache or the
// journey list.
type Target interface {
	Name() string
	// StaleKeys lists entries that are dirty or older than their TTL.
	StaleKeys() []string
	// DirtyKeys lists entries explicitly invalidated.
	DirtyKeys() []string
	Refresh(ctx context.Context, key string) error
}

// Mode selects which entries a pass visits.
type Mode string

const (
	// ModeStale visits dirty and expired entries (timer ticks).
	ModeStale Mode = "stale"
	// ModeDirty visits only invalidated entries (debounced event flushes).
	ModeDirty Mode = "dirty"
)

// Report is the outcome of one pass.
type Report struct {
	Mode      Mode              `json:"mode"`
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
	Visited   int               `json:"visited"`
	Refreshed int               `json:"refreshed"`
	Skipped   int               `json:"skipped"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Worker periodically force-refreshes stale entries of every registered target.
// A per-key lock turns an overlapping refresh of the same key into a no-op.
type Worker struct {
	locks  *caching.KeyLock
	config *Config
	logger *logging.ChanneledLogger

	mu      sync.RWMutex
	targets []Target
	last    Report
}

// NewWorker creates a new sweep worker with injected configuration
func NewWorker(locks *caching.KeyLock, config *Config, logger *logging.ChanneledLogger, targets ...Target) *Worker {
	if locks == nil {
		locks = caching.NewKeyLock()
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Worker{
		locks:   locks,
		config:  config,
		logger:  logger,
		targets: targets,
	}
}

// Register adds a target visited by every later pass.
func (w *Worker) Register(t Target) {
	w.mu.Lock()
	w.targets = append(w.targets, t)
	w.mu.Unlock()
}

// Start begins the sweep routine, using the configured interval
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.logger.Sweep().Info("Reconciliation sweep started",
		slog.Duration("interval", w.config.Interval),
		slog.Bool("verbose", w.config.VerboseReporting))

	for {
		select {
		case <-ctx.Done():
			w.logger.Sweep().Info("Reconciliation sweep stopping")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs one pass over stale entries.
func (w *Worker) RunOnce(ctx context.Context) Report {
	return w.run(ctx, ModeStale)
}

// FlushDirty performs one pass over invalidated entries only.
func (w *Worker) FlushDirty(ctx context.Context) Report {
	return w.run(ctx, ModeDirty)
}

// LastReport returns the most recent pass outcome.
func (w *Worker) LastReport() Report {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.last
}

func (w *Worker) run(ctx context.Context, mode Mode) Report {
	report := Report{Mode: mode, StartedAt: time.Now().UTC()}

	w.mu.RLock()
	targets := make([]Target, len(w.targets))
	copy(targets, w.targets)
	w.mu.RUnlock()

	for _, target := range targets {
		var keys []string
		if mode == ModeDirty {
			keys = target.DirtyKeys()
		} else {
			keys = target.StaleKeys()
		}

		for _, key := range keys {
			select {
			case <-ctx.Done():
				report.Duration = time.Since(report.StartedAt)
				return report
			default:
			}
			report.Visited++
			w.refreshKey(ctx, target, key, &report)
		}
	}

	report.Duration = time.Since(report.StartedAt)
	w.mu.Lock()
	w.last = report
	w.mu.Unlock()

	w.logReport(report)
	return report
}

func (w *Worker) refreshKey(ctx context.Context, target Target, key string, report *Report) {
	lockKey := target.Name() + ":" + key
	if !w.locks.TryLock(lockKey) {
		report.Skipped++
		return
	}
	defer w.locks.Unlock(lockKey)

	if err := target.Refresh(ctx, key); err != nil {
		report.Failed++
		if report.Errors == nil {
			report.Errors = make(map[string]string)
		}
		report.Errors[lockKey] = err.Error()
		w.logger.Sweep().Warn("Refresh failed, will retry next pass",
			slog.String("target", target.Name()),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return
	}
	report.Refreshed++
}

func (w *Worker) logReport(report Report) {
	if w.config.VerboseReporting {
		fmt.Print(NewReporter().Generate(report))
	}

	attrs := []any{
		slog.String("mode", string(report.Mode)),
		slog.Int("visited", report.Visited),
		slog.Int("refreshed", report.Refreshed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration("duration", report.Duration),
	}
	switch {
	case report.Failed > 0:
		w.logger.Sweep().Warn("Sweep finished with failures", attrs...)
	case report.Visited > 0:
		w.logger.Sweep().Info("Sweep finished", attrs...)
	default:
		w.logger.Sweep().Debug("Sweep found nothing stale", attrs...)
	}
}
