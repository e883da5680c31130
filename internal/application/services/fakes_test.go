package services

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/email"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0.Add(2 * time.Hour) }

func referencePolicy() campaign.Policy {
	return campaign.Policy{
		Enabled:               true,
		InactivityMinutes:     30,
		MaxAttempts:           3,
		AttemptDelaysMinutes:  []int{30, 360, 1440},
		DiscountLadderPercent: []int{0, 5, 10},
		MaxDiscountPercent:    10,
		RecoveryWindowHours:   72,
		SendEmail:             true,
	}
}

func attempted(id string) journey.Journey {
	return journey.Journey{
		ID:                  id,
		Status:              journey.StatusActive,
		CartTotalMinorUnits: 4200,
		CustomerName:        "Customer " + id,
		LastAttemptNo:       1,
		LastActivityAt:      t0,
		CreatedAt:           t0,
		UpdatedAt:           t0,
	}
}

// fakeClient is an in-memory recoveryapi.Client. Function fields override the
// default responses.
type fakeClient struct {
	mu sync.Mutex

	policy    campaign.Policy
	getErr    error
	updateErr error
	updated   []campaign.Policy

	insightsFn    func(rangeDays int) (recoveryapi.Insights, error)
	insightsCalls int
	ordersCalls   int

	journeysFn    func(q journey.Query) (recoveryapi.JourneyPage, error)
	journeysCalls int

	timeline journey.Timeline

	runResult recoveryapi.RunResult
	runErr    error
	runSizes  []int
}

var _ recoveryapi.Client = (*fakeClient)(nil)

func (f *fakeClient) GetCampaign(context.Context) (campaign.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy.Clone(), f.getErr
}

func (f *fakeClient) UpdateCampaign(_ context.Context, p campaign.Policy) (campaign.Policy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, p)
	if f.updateErr != nil {
		return campaign.Policy{}, f.updateErr
	}
	f.policy = p.Clone()
	return p, nil
}

func (f *fakeClient) GetInsights(_ context.Context, rangeDays int) (recoveryapi.Insights, error) {
	f.mu.Lock()
	f.insightsCalls++
	fn := f.insightsFn
	f.mu.Unlock()
	if fn != nil {
		return fn(rangeDays)
	}
	return recoveryapi.Insights{RangeDays: rangeDays}, nil
}

func (f *fakeClient) GetOrderMetrics(_ context.Context, q recoveryapi.OrderMetricsQuery) (recoveryapi.OrderMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ordersCalls++
	return recoveryapi.OrderMetrics{RangeDays: q.RangeDays, Status: q.Status}, nil
}

func (f *fakeClient) GetJourneys(_ context.Context, q journey.Query) (recoveryapi.JourneyPage, error) {
	f.mu.Lock()
	f.journeysCalls++
	fn := f.journeysFn
	f.mu.Unlock()
	if fn != nil {
		return fn(q)
	}
	return recoveryapi.JourneyPage{}, nil
}

func (f *fakeClient) GetJourneyTimeline(_ context.Context, id string) (journey.Timeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tl := f.timeline
	tl.Journey.ID = id
	return tl, nil
}

func (f *fakeClient) RunRecoveryNow(_ context.Context, batchSize int) (recoveryapi.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runSizes = append(f.runSizes, batchSize)
	return f.runResult, f.runErr
}

func (f *fakeClient) calls() (insights, orders, journeys int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insightsCalls, f.ordersCalls, f.journeysCalls
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	changes []journey.ListChange
}

func (b *recordingBroadcaster) Broadcast(_ string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := payload.(journey.ListChange); ok {
		b.changes = append(b.changes, c)
	}
}

func (b *recordingBroadcaster) Kinds() []journey.ChangeKind {
	b.mu.Lock()
	defer b.mu.Unlock()
	kinds := make([]journey.ChangeKind, len(b.changes))
	for i, c := range b.changes {
		kinds[i] = c.Kind
	}
	return kinds
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(e events.Event) events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return e
}

type countingFlusher struct {
	mu     sync.Mutex
	calls  int
	report sweep.Report
}

func (f *countingFlusher) FlushDirty(context.Context) sweep.Report {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.report
}

func (f *countingFlusher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	enabled bool
	err     error
	reports []email.RunReport
}

func (n *fakeNotifier) Enabled() bool { return n.enabled }

func (n *fakeNotifier) SendRunReport(_ context.Context, r email.RunReport) error {
	n.reports = append(n.reports, r)
	return n.err
}

type fakeAuditor struct {
	entries []campaign.Policy
	err     error
}

func (a *fakeAuditor) Record(_ context.Context, p campaign.Policy, _ bool, _ time.Time) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	a.entries = append(a.entries, p)
	return "audit-1", nil
}

type inactivityRecorder struct {
	values []int
}

func (r *inactivityRecorder) SetInactivity(minutes int) {
	r.values = append(r.values, minutes)
}
