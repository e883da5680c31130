package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
)

// EventPublisher is the publishing side of the event bus.
type EventPublisher interface {
	Publish(e events.Event) events.Event
}

// RunOutcome is the last completed run-now.
type RunOutcome struct {
	StartedAt time.Time            `json:"startedAt"`
	Duration  time.Duration        `json:"duration"`
	BatchSize int                  `json:"batchSize"`
	Stats     recoveryapi.RunStats `json:"stats"`
	Reported  bool                 `json:"reported"`
}

// RunService triggers an immediate dispatch pass on the remote service.
type RunService struct {
	client           recoveryapi.Client
	publisher        EventPublisher
	notifier         email.Notifier
	defaultBatchSize int
	logger           *logging.ChanneledLogger
	now              func() time.Time

	mu   sync.Mutex
	last *RunOutcome
}

func NewRunService(client recoveryapi.Client, publisher EventPublisher, notifier email.Notifier, defaultBatchSize int, logger *logging.ChanneledLogger) *RunService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &RunService{
		client:           client,
		publisher:        publisher,
		notifier:         notifier,
		defaultBatchSize: defaultBatchSize,
		logger:           logger,
		now:              time.Now,
	}
}

// RunNow asks the remote service to process due journeys. On success every
// snapshot is invalidated through the event bus so the debounced refresh picks
// up the new state; on failure nothing local changes and an *ActionError is
// returned. Runs with failed attempts are emailed to the operator.
func (s *RunService) RunNow(ctx context.Context, batchSize int) (RunOutcome, error) {
	if batchSize <= 0 {
		batchSize = s.defaultBatchSize
	}
	start := s.now()
	log := s.logger.WithOperation(logging.ChannelCampaign, "run_now")

	result, err := s.client.RunRecoveryNow(ctx, batchSize)
	if err != nil {
		log.Error("Run-now failed", "batchSize", batchSize, "error", err.Error())
		return RunOutcome{}, &ActionError{Op: "run recovery now", Err: err}
	}

	outcome := RunOutcome{
		StartedAt: start,
		Duration:  s.now().Sub(start),
		BatchSize: batchSize,
		Stats:     result.Stats,
	}

	if s.publisher != nil {
		data, _ := json.Marshal(result.Stats)
		s.publisher.Publish(events.Event{Name: events.RecoveryRunNow, Data: data, Source: "console"})
	}

	if s.notifier != nil && s.notifier.Enabled() && result.Stats.Failed > 0 {
		err := s.notifier.SendRunReport(context.WithoutCancel(ctx), email.RunReport{
			StartedAt: start,
			BatchSize: batchSize,
			Stats:     result.Stats,
		})
		if err != nil {
			s.logger.Email().Warn("Run report not delivered", "error", err.Error())
		} else {
			outcome.Reported = true
		}
	}

	s.mu.Lock()
	s.last = &outcome
	s.mu.Unlock()

	log.Info("Run-now completed",
		"batchSize", batchSize,
		"due", result.Stats.Due,
		"sent", result.Stats.Sent,
		"failed", result.Stats.Failed,
		"duration", outcome.Duration)
	return outcome, nil
}

// LastRun returns the most recent successful run.
func (s *RunService) LastRun() (RunOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunOutcome{}, false
	}
	return *s.last, true
}
