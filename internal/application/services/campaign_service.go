package services

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
)

// PolicyAuditor records successful saves.
type PolicyAuditor interface {
	Record(ctx context.Context, policy campaign.Policy, extendedWindow bool, savedAt time.Time) (string, error)
}

// InactivitySink receives the listing threshold whenever the policy changes.
type InactivitySink interface {
	SetInactivity(minutes int)
}

// CampaignView is the policy as shown to the operator.
type CampaignView struct {
	Policy                            campaign.Policy `json:"policy"`
	EffectiveRecoveryWindowHours      int             `json:"effectiveRecoveryWindowHours"`
	MinRecommendedRecoveryWindowHours int             `json:"minRecommendedRecoveryWindowHours"`
	Channels                          []string        `json:"channels"`
	LoadedAt                          time.Time       `json:"loadedAt"`
}

// SaveResult is the outcome of a successful save.
type SaveResult struct {
	Campaign   CampaignView    `json:"campaign"`
	Validation campaign.Result `json:"validation"`
	AuditID    string          `json:"auditId,omitempty"`
}

// CampaignService holds the last known remote policy and mediates edits.
// The policy is passed explicitly to everything that needs it.
type CampaignService struct {
	client  recoveryapi.Client
	auditor PolicyAuditor
	sink    InactivitySink
	logger  *logging.ChanneledLogger
	now     func() time.Time

	mu       sync.RWMutex
	current  campaign.Policy
	loaded   bool
	loadedAt time.Time
}

func NewCampaignService(client recoveryapi.Client, auditor PolicyAuditor, sink InactivitySink, logger *logging.ChanneledLogger) *CampaignService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &CampaignService{
		client:  client,
		auditor: auditor,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

func viewOf(p campaign.Policy, loadedAt time.Time) CampaignView {
	return CampaignView{
		Policy:                            p.Clone(),
		EffectiveRecoveryWindowHours:      p.EffectiveRecoveryWindowHours(),
		MinRecommendedRecoveryWindowHours: campaign.MinRecommendedRecoveryWindowHours(p.AttemptDelaysMinutes),
		Channels:                          p.Channels(),
		LoadedAt:                          loadedAt,
	}
}

// Get returns the policy, loading it from the remote service on first use or
// when forced.
func (s *CampaignService) Get(ctx context.Context, force bool) (CampaignView, error) {
	if !force {
		s.mu.RLock()
		if s.loaded {
			view := viewOf(s.current, s.loadedAt)
			s.mu.RUnlock()
			return view, nil
		}
		s.mu.RUnlock()
	}

	p, err := s.client.GetCampaign(ctx)
	if err != nil {
		s.logger.Campaign().Warn("Campaign fetch failed", "error", err.Error())
		return CampaignView{}, &TransientFetchError{Op: "campaign", Err: err}
	}
	return s.store(p), nil
}

// Current returns the cached policy without fetching.
func (s *CampaignService) Current() (campaign.Policy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone(), s.loaded
}

func (s *CampaignService) store(p campaign.Policy) CampaignView {
	s.mu.Lock()
	s.current = p.Clone()
	s.loaded = true
	s.loadedAt = s.now()
	view := viewOf(s.current, s.loadedAt)
	s.mu.Unlock()

	if s.sink != nil {
		s.sink.SetInactivity(p.InactivityMinutes)
	}
	return view
}

// Validate runs the validator without touching the network.
func (s *CampaignService) Validate(raw campaign.RawConfig) campaign.Result {
	return campaign.Validate(raw)
}

// Save validates raw input and sends the normalized policy to the remote
// service. An invalid form returns *campaign.ValidationError and never leaves
// the process; a remote failure returns *ActionError and leaves the local
// policy unchanged.
func (s *CampaignService) Save(ctx context.Context, raw campaign.RawConfig) (SaveResult, error) {
	result := campaign.Validate(raw)
	if err := result.Err(); err != nil {
		s.logger.Campaign().Info("Campaign save rejected by validation", "fields", len(result.Errors))
		return SaveResult{Validation: result}, err
	}

	saved, err := s.client.UpdateCampaign(ctx, result.Normalized)
	if err != nil {
		s.logger.Campaign().Error("Campaign save failed", "error", err.Error())
		return SaveResult{Validation: result}, &ActionError{Op: "save campaign", Err: err}
	}

	view := s.store(saved)
	out := SaveResult{Campaign: view, Validation: result}

	if s.auditor != nil {
		id, err := s.auditor.Record(ctx, saved, result.WindowExtended, view.LoadedAt)
		if err != nil {
			s.logger.Campaign().Warn("Policy audit failed", "error", err.Error())
		} else {
			out.AuditID = id
		}
	}

	s.logger.Campaign().Info("Campaign saved",
		"maxAttempts", saved.MaxAttempts,
		"recoveryWindowHours", saved.RecoveryWindowHours,
		"windowExtended", result.WindowExtended)
	return out, nil
}
