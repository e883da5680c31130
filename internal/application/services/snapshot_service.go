// Package services holds the console's application services: snapshot
// caches, the live journey list, event invalidation and operator actions.
package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/snapshot"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/sweep"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/snapshots"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
)

const (
	InsightsCacheName = "insights"
	OrdersCacheName   = "orders"
)

// SnapshotStore persists cache entries for warm start.
type SnapshotStore interface {
	Save(ctx context.Context, rec snapshots.Record) error
	LoadAll(ctx context.Context, cacheName string) ([]snapshots.Record, error)
}

type (
	insightsCache = snapshot.Cache[recoveryapi.InsightsQuery, recoveryapi.Insights]
	ordersCache   = snapshot.Cache[recoveryapi.OrderMetricsQuery, recoveryapi.OrderMetrics]
)

// SnapshotService owns the two snapshot caches: abandoned-cart insights and
// order metrics.
type SnapshotService struct {
	insights *insightsCache
	orders   *ordersCache
	logger   *logging.ChanneledLogger
}

func NewSnapshotService(client recoveryapi.Client, logger *logging.ChanneledLogger, opts ...snapshot.Option) *SnapshotService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	opts = append([]snapshot.Option{snapshot.WithLogger(logger)}, opts...)

	fetchInsights := func(ctx context.Context, q recoveryapi.InsightsQuery) (recoveryapi.Insights, error) {
		v, err := client.GetInsights(ctx, q.RangeDays)
		if err != nil {
			return v, &TransientFetchError{Op: "insights", Err: err}
		}
		return v, nil
	}
	fetchOrders := func(ctx context.Context, q recoveryapi.OrderMetricsQuery) (recoveryapi.OrderMetrics, error) {
		v, err := client.GetOrderMetrics(ctx, q)
		if err != nil {
			return v, &TransientFetchError{Op: "order metrics", Err: err}
		}
		return v, nil
	}

	return &SnapshotService{
		insights: snapshot.New(InsightsCacheName, fetchInsights, opts...),
		orders:   snapshot.New(OrdersCacheName, fetchOrders, opts...),
		logger:   logger,
	}
}

func getOptions(force bool) []snapshot.GetOption {
	if force {
		return []snapshot.GetOption{snapshot.Force()}
	}
	return nil
}

// Insights returns the insights snapshot for a range.
func (s *SnapshotService) Insights(ctx context.Context, rangeDays int, force bool) (recoveryapi.Insights, error) {
	return s.insights.Get(ctx, recoveryapi.InsightsQuery{RangeDays: rangeDays}, getOptions(force)...)
}

// OrderMetrics returns the order metrics snapshot for a range and status.
func (s *SnapshotService) OrderMetrics(ctx context.Context, q recoveryapi.OrderMetricsQuery, force bool) (recoveryapi.OrderMetrics, error) {
	return s.orders.Get(ctx, q, getOptions(force)...)
}

// InvalidateInsights marks every insights entry dirty.
func (s *SnapshotService) InvalidateInsights() int {
	return s.insights.MarkAllDirty()
}

// InvalidateOrders marks every order metrics entry dirty.
func (s *SnapshotService) InvalidateOrders() int {
	return s.orders.MarkAllDirty()
}

// Targets exposes both caches to the reconciliation sweep.
func (s *SnapshotService) Targets() []sweep.Target {
	return []sweep.Target{s.insights, s.orders}
}

// Stats reports both caches.
func (s *SnapshotService) Stats() []snapshot.Stats {
	return []snapshot.Stats{s.insights.Stats(), s.orders.Stats()}
}

// EnablePersistence writes every applied fetch to store.
func (s *SnapshotService) EnablePersistence(store SnapshotStore) {
	persistEntries(s.insights, store, s.logger)
	persistEntries(s.orders, store, s.logger)
}

// Restore seeds both caches from store. Seeded entries are dirty, so they
// are served at once and replaced by the first refresh.
func (s *SnapshotService) Restore(ctx context.Context, store SnapshotStore) (int, error) {
	n, err := restoreEntries(ctx, s.insights, store, s.logger)
	if err != nil {
		return n, err
	}
	m, err := restoreEntries(ctx, s.orders, store, s.logger)
	return n + m, err
}

func persistEntries[Q snapshot.Query, V any](cache *snapshot.Cache[Q, V], store SnapshotStore, logger *logging.ChanneledLogger) {
	cache.OnStore(func(e snapshot.Entry[Q, V]) {
		queryJSON, err := json.Marshal(e.Query)
		if err != nil {
			logger.Cache().Warn("Failed to encode snapshot query", "cache", cache.Name(), "key", e.Key, "error", err.Error())
			return
		}
		valueJSON, err := json.Marshal(e.Value)
		if err != nil {
			logger.Cache().Warn("Failed to encode snapshot value", "cache", cache.Name(), "key", e.Key, "error", err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, snapshots.Record{
			CacheName: cache.Name(),
			CacheKey:  e.Key,
			Query:     queryJSON,
			Value:     valueJSON,
			FetchedAt: e.FetchedAt,
		}); err != nil {
			logger.Cache().Warn("Failed to persist snapshot", "cache", cache.Name(), "key", e.Key, "error", err.Error())
		}
	})
}

func restoreEntries[Q snapshot.Query, V any](ctx context.Context, cache *snapshot.Cache[Q, V], store SnapshotStore, logger *logging.ChanneledLogger) (int, error) {
	records, err := store.LoadAll(ctx, cache.Name())
	if err != nil {
		return 0, err
	}

	seeded := 0
	for _, rec := range records {
		var q Q
		if err := json.Unmarshal(rec.Query, &q); err != nil || q.CacheKey() != rec.CacheKey {
			logger.Cache().Warn("Skipping unreadable snapshot", "cache", cache.Name(), "key", rec.CacheKey)
			continue
		}
		var v V
		if err := json.Unmarshal(rec.Value, &v); err != nil {
			logger.Cache().Warn("Skipping unreadable snapshot", "cache", cache.Name(), "key", rec.CacheKey)
			continue
		}
		if cache.Seed(q, v, rec.FetchedAt) {
			seeded++
		}
	}

	logger.Cache().Info("Snapshot cache restored", "cache", cache.Name(), "entries", seeded)
	return seeded, nil
}
