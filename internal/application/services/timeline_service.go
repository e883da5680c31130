package services

import (
	"context"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
)

// TimelineView is a journey's history together with the advisory schedule
// computed from the current policy. The schedule is informational; dispatch
// belongs to the remote service. When the policy cannot be loaded the history
// is still returned and ScheduleUnavailable is set.
type TimelineView struct {
	journey.Timeline
	Readiness           journey.Readiness `json:"readiness,omitempty"`
	ReadyForListing     *bool             `json:"readyForListing,omitempty"`
	Next                *journey.Decision `json:"next,omitempty"`
	ScheduleUnavailable bool              `json:"scheduleUnavailable,omitempty"`
	FiredAttempts       int               `json:"firedAttempts"`
	ComputedAt          time.Time         `json:"computedAt"`
}

type TimelineService struct {
	client    recoveryapi.Client
	campaigns *CampaignService
	logger    *logging.ChanneledLogger
	now       func() time.Time
}

func NewTimelineService(client recoveryapi.Client, campaigns *CampaignService, logger *logging.ChanneledLogger) *TimelineService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &TimelineService{client: client, campaigns: campaigns, logger: logger, now: time.Now}
}

// Timeline fetches the journey's history and previews its next step.
func (s *TimelineService) Timeline(ctx context.Context, id string) (TimelineView, error) {
	tl, err := s.client.GetJourneyTimeline(ctx, id)
	if err != nil {
		return TimelineView{}, &TransientFetchError{Op: "timeline", Err: err}
	}

	now := s.now()
	out := TimelineView{
		Timeline:      tl,
		FiredAttempts: journey.FiredAttempts(tl.Attempts),
		ComputedAt:    now,
	}

	view, err := s.campaigns.Get(ctx, false)
	if err != nil {
		s.logger.Journeys().Warn("Timeline served without schedule preview", "journeyId", id, "error", err.Error())
		out.ScheduleUnavailable = true
		return out, nil
	}

	p := view.Policy
	lastFired := journey.LastFiredAt(tl.Attempts, tl.Journey.LastAttemptNo)
	ready := journey.IsReadyForListing(tl.Journey, p.InactivityMinutes, now)
	next := journey.NextAttempt(p, tl.Journey, lastFired)

	out.Readiness = journey.Classify(p, tl.Journey, lastFired, now)
	out.ReadyForListing = &ready
	out.Next = &next
	return out, nil
}
