package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/events"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
)

// EventSource is the subscribing side of the event bus.
type EventSource interface {
	Subscribe(name string) (<-chan events.Event, func())
}

// DirtyFlusher refreshes every invalidated entry.
type DirtyFlusher interface {
	FlushDirty(ctx context.Context) sweep.Report
}

// InvalidatorStats counts handled events.
type InvalidatorStats struct {
	Handled  uint64 `json:"handled"`
	Ignored  uint64 `json:"ignored"`
	Patched  uint64 `json:"patched"`
	BadPatch uint64 `json:"badPatch"`
	Flushes  uint64 `json:"flushes"`
}

// Invalidator turns domain events into cache invalidations, immediate list
// patches and one debounced refresh per burst.
type Invalidator struct {
	snapshots *SnapshotService
	list      *JourneyList
	flusher   DirtyFlusher
	debouncer *Debouncer
	logger    *logging.ChanneledLogger

	ctxMu   sync.RWMutex
	baseCtx context.Context

	handled  atomic.Uint64
	ignored  atomic.Uint64
	patched  atomic.Uint64
	badPatch atomic.Uint64
	flushes  atomic.Uint64
}

func NewInvalidator(snapshots *SnapshotService, list *JourneyList, flusher DirtyFlusher, debounce time.Duration, logger *logging.ChanneledLogger) *Invalidator {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	inv := &Invalidator{
		snapshots: snapshots,
		list:      list,
		flusher:   flusher,
		logger:    logger,
		baseCtx:   context.Background(),
	}
	inv.debouncer = NewDebouncer(debounce, inv.flush)
	return inv
}

// Run consumes events until ctx is cancelled or the bus closes the
// subscription. A pending debounced refresh is cancelled on exit.
func (inv *Invalidator) Run(ctx context.Context, source EventSource) {
	ch, cancel := source.Subscribe("invalidator")
	defer cancel()

	inv.ctxMu.Lock()
	inv.baseCtx = ctx
	inv.ctxMu.Unlock()
	defer inv.debouncer.Stop()

	inv.logger.Events().Info("Invalidator started")
	for {
		select {
		case <-ctx.Done():
			inv.logger.Events().Info("Invalidator stopping")
			return
		case e, ok := <-ch:
			if !ok {
				inv.logger.Events().Info("Event bus closed, invalidator stopping")
				return
			}
			inv.Handle(e)
		}
	}
}

// Handle applies the invalidation rules for one event.
//
//	order:create, order:update, payment:update   orders + insights dirty, refresh
//	abandoned_cart:*                             insights dirty, patch row, refresh
//	console:run_now                              everything dirty, refresh
func (inv *Invalidator) Handle(e events.Event) {
	if !e.Name.AffectsJourneys() {
		inv.ignored.Add(1)
		inv.logger.Events().Debug("Ignoring event", "event", string(e.Name), "id", e.ID)
		return
	}
	inv.handled.Add(1)

	orders, insights := 0, 0
	if e.Name.AffectsOrders() {
		orders = inv.snapshots.InvalidateOrders()
	}
	insights = inv.snapshots.InvalidateInsights()

	if e.Name.CarriesJourney() {
		patch, ok, err := e.JourneyPatch()
		switch {
		case err != nil:
			inv.badPatch.Add(1)
			inv.logger.Events().Warn("Unreadable journey payload", "event", string(e.Name), "error", err.Error())
		case ok:
			inv.patched.Add(1)
			inv.list.ApplyPatch(patch)
		}
	}

	inv.list.Invalidate()
	inv.debouncer.Trigger()

	inv.logger.Events().Debug("Event invalidated snapshots",
		"event", string(e.Name), "id", e.ID, "ordersDirty", orders, "insightsDirty", insights)
}

func (inv *Invalidator) flush() {
	inv.ctxMu.RLock()
	ctx := inv.baseCtx
	inv.ctxMu.RUnlock()
	if ctx.Err() != nil {
		return
	}

	inv.flushes.Add(1)
	report := inv.flusher.FlushDirty(ctx)
	if report.Failed > 0 {
		inv.logger.Events().Warn("Debounced refresh had failures",
			"refreshed", report.Refreshed, "failed", report.Failed)
		return
	}
	inv.logger.Events().Debug("Debounced refresh completed",
		"refreshed", report.Refreshed, "skipped", report.Skipped, "duration", report.Duration)
}

// Stats reports event counters.
func (inv *Invalidator) Stats() InvalidatorStats {
	return InvalidatorStats{
		Handled:  inv.handled.Load(),
		Ignored:  inv.ignored.Load(),
		Patched:  inv.patched.Load(),
		BadPatch: inv.badPatch.Load(),
		Flushes:  inv.flushes.Load(),
	}
}
