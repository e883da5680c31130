package services

import (
	"context"
	"sync"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/journey"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
)

const (
	JourneyListName = "journeys"
	// JourneyListEvent is the SSE event name of list changes.
	JourneyListEvent = "journeys"
)

// ChangeBroadcaster fans list changes out to stream subscribers.
type ChangeBroadcaster interface {
	Broadcast(event string, payload any)
}

// JourneyListStats summarizes the live list.
type JourneyListStats struct {
	Key       string    `json:"key"`
	Rows      int       `json:"rows"`
	Total     int       `json:"total"`
	Dirty     bool      `json:"dirty"`
	FetchedAt time.Time `json:"fetchedAt"`
	Fetches   uint64    `json:"fetches"`
	Failures  uint64    `json:"failures"`
	Discarded uint64    `json:"discarded"`
}

// JourneyList holds the operator's current journey page. Every mutation goes
// through journey.Reduce under one mutex; network calls never hold it.
type JourneyList struct {
	client      recoveryapi.Client
	broadcaster ChangeBroadcaster
	logger      *logging.ChanneledLogger
	ttl         time.Duration
	now         func() time.Time

	mu        sync.Mutex
	state     journey.ListState
	seq       uint64
	hasPage   bool
	fetchedAt time.Time
	dirty     bool
	dirtyGen  uint64
	fetches   uint64
	failures  uint64
	discarded uint64
}

// JourneyListOption configures a JourneyList.
type JourneyListOption func(*JourneyList)

// WithListClock injects the time source.
func WithListClock(now func() time.Time) JourneyListOption {
	return func(l *JourneyList) { l.now = now }
}

// WithListTTL sets how long a page is considered fresh by the sweep.
func WithListTTL(ttl time.Duration) JourneyListOption {
	return func(l *JourneyList) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithBroadcaster streams every change.
func WithBroadcaster(b ChangeBroadcaster) JourneyListOption {
	return func(l *JourneyList) { l.broadcaster = b }
}

// NewJourneyList creates a list showing the first page of all journeys.
func NewJourneyList(client recoveryapi.Client, initial journey.Query, inactivityMinutes int, logger *logging.ChanneledLogger, opts ...JourneyListOption) *JourneyList {
	l := &JourneyList{
		client: client,
		logger: logger,
		ttl:    60 * time.Second,
		now:    time.Now,
		state: journey.ListState{
			Query:             initial,
			InactivityMinutes: inactivityMinutes,
		},
	}
	for _, o := range opts {
		o(l)
	}
	if l.logger == nil {
		l.logger = logging.NewDiscardLogger()
	}
	return l
}

// View returns a copy of the current page.
func (l *JourneyList) View() journey.ListState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return copyState(l.state)
}

func copyState(s journey.ListState) journey.ListState {
	out := s
	out.Rows = make([]journey.Journey, len(s.Rows))
	for i := range s.Rows {
		out.Rows[i] = s.Rows[i].Clone()
	}
	return out
}

// dispatch applies one action and broadcasts the resulting change. Callers
// must hold l.mu.
func (l *JourneyList) dispatch(action journey.ListAction) journey.ListChange {
	next, change := journey.Reduce(l.state, action)
	l.state = next
	if change.Kind != journey.ChangeNone && l.broadcaster != nil {
		l.broadcaster.Broadcast(JourneyListEvent, change)
	}
	return change
}

// SetQuery switches the view and fetches its first page. Pages still in
// flight for the previous query are discarded when they land.
func (l *JourneyList) SetQuery(ctx context.Context, q journey.Query) (journey.ListState, error) {
	l.mu.Lock()
	l.seq++
	l.dispatch(journey.SetQueryAction{Query: q, Seq: l.seq})
	l.hasPage = false
	l.mu.Unlock()

	l.logger.Journeys().Debug("Journey list query changed", "key", q.CacheKey())
	return l.Refresh(ctx)
}

// Refresh refetches the current page. A page older than one already applied
// is discarded. On failure the rows stay as they were.
func (l *JourneyList) Refresh(ctx context.Context) (journey.ListState, error) {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	gen := l.dirtyGen
	q := l.state.Query
	l.fetches++
	l.mu.Unlock()

	start := l.now()
	page, err := l.client.GetJourneys(context.WithoutCancel(ctx), q)
	if err != nil {
		l.mu.Lock()
		l.failures++
		l.mu.Unlock()
		l.logger.Journeys().Warn("Journey page fetch failed, keeping current rows",
			"key", q.CacheKey(), "error", err.Error())
		return l.View(), &TransientFetchError{Op: "journeys", Err: err}
	}

	l.mu.Lock()
	change := l.dispatch(journey.ReplaceAction{Rows: page.Journeys, Total: page.Total, Seq: seq, Now: l.now()})
	if change.Kind == journey.ChangeReplaced {
		l.hasPage = true
		l.fetchedAt = l.now()
		l.dirty = l.dirtyGen != gen
	} else {
		l.discarded++
	}
	view := copyState(l.state)
	l.mu.Unlock()

	l.logger.Journeys().Debug("Journey page fetched",
		"key", q.CacheKey(), "rows", len(page.Journeys), "total", page.Total,
		"applied", change.Kind == journey.ChangeReplaced, "duration", l.now().Sub(start))
	return view, nil
}

// ApplyPatch merges a real-time journey payload into the page immediately.
func (l *JourneyList) ApplyPatch(p journey.Patch) journey.ListChange {
	l.mu.Lock()
	change := l.dispatch(journey.UpsertAction{Patch: p, Now: l.now()})
	l.mu.Unlock()

	if change.Kind != journey.ChangeNone {
		l.logger.Journeys().Debug("Journey patch applied", "id", p.ID, "change", string(change.Kind), "index", change.Index)
	}
	return change
}

// SetInactivity updates the listing threshold after a policy load or save.
func (l *JourneyList) SetInactivity(minutes int) {
	l.mu.Lock()
	if l.state.InactivityMinutes != minutes {
		l.dispatch(journey.SetInactivityAction{Minutes: minutes})
		// rows hidden or shown by the old threshold need a refetch
		l.dirty = true
		l.dirtyGen++
	}
	l.mu.Unlock()
}

// Invalidate marks the page for refetch.
func (l *JourneyList) Invalidate() {
	l.mu.Lock()
	l.dirty = true
	l.dirtyGen++
	l.mu.Unlock()
}

// Name identifies the list to the sweep.
func (l *JourneyList) Name() string { return JourneyListName }

// StaleKeys lists the current query key when the page is dirty, missing or
// older than the TTL. The list has a single key: its query.
func (l *JourneyList) StaleKeys() []string {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasPage || l.dirty || now.Sub(l.fetchedAt) >= l.ttl {
		return []string{l.state.Query.CacheKey()}
	}
	return nil
}

// DirtyKeys lists the current query key when the page was invalidated.
func (l *JourneyList) DirtyKeys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.hasPage || l.dirty {
		return []string{l.state.Query.CacheKey()}
	}
	return nil
}

// RefreshKey refetches the page when key still names the current query. A key
// for a query the operator has since left is ignored.
func (l *JourneyList) RefreshKey(ctx context.Context, key string) error {
	l.mu.Lock()
	current := l.state.Query.CacheKey()
	l.mu.Unlock()

	if key != current {
		return nil
	}
	_, err := l.Refresh(ctx)
	return err
}

// Stats reports the list's fetch counters.
func (l *JourneyList) Stats() JourneyListStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return JourneyListStats{
		Key:       l.state.Query.CacheKey(),
		Rows:      len(l.state.Rows),
		Total:     l.state.Total,
		Dirty:     l.dirty,
		FetchedAt: l.fetchedAt,
		Fetches:   l.fetches,
		Failures:  l.failures,
		Discarded: l.discarded,
	}
}

// SweepTarget adapts the list to sweep.Target, whose Refresh takes a key.
func (l *JourneyList) SweepTarget() *JourneyListTarget {
	return &JourneyListTarget{list: l}
}

// JourneyListTarget is the sweep.Target view of a JourneyList.
type JourneyListTarget struct {
	list *JourneyList
}

var _ sweep.Target = (*JourneyListTarget)(nil)

func (t *JourneyListTarget) Name() string        { return t.list.Name() }
func (t *JourneyListTarget) StaleKeys() []string { return t.list.StaleKeys() }
func (t *JourneyListTarget) DirtyKeys() []string { return t.list.DirtyKeys() }

func (t *JourneyListTarget) Refresh(ctx context.Context, key string) error {
	return t.list.RefreshKey(ctx, key)
}
