package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/caching/snapshot"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/snapshots"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	records map[string]snapshots.Record
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]snapshots.Record)}
}

func (s *memoryStore) Save(_ context.Context, rec snapshots.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.CacheName+"/"+rec.CacheKey] = rec
	return nil
}

func (s *memoryStore) LoadAll(_ context.Context, cacheName string) ([]snapshots.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []snapshots.Record
	for _, rec := range s.records {
		if rec.CacheName == cacheName {
			out = append(out, rec)
		}
	}
	return out, nil
}

func TestSnapshotService_ServesWithinTTLAndRefetchesWhenDirty(t *testing.T) {
	client := &fakeClient{}
	svc := NewSnapshotService(client, nil, snapshot.WithClock(fixedClock))
	ctx := context.Background()

	_, err := svc.Insights(ctx, 30, false)
	require.NoError(t, err)
	_, err = svc.Insights(ctx, 30, false)
	require.NoError(t, err)
	insights, _, _ := client.calls()
	assert.Equal(t, 1, insights)

	assert.Equal(t, 1, svc.InvalidateInsights())
	_, err = svc.Insights(ctx, 30, false)
	require.NoError(t, err)
	insights, _, _ = client.calls()
	assert.Equal(t, 2, insights)

	_, err = svc.Insights(ctx, 30, true)
	require.NoError(t, err)
	insights, _, _ = client.calls()
	assert.Equal(t, 3, insights)
}

func TestSnapshotService_FetchFailureIsTransientAndKeepsEntry(t *testing.T) {
	fail := false
	client := &fakeClient{}
	client.insightsFn = func(rangeDays int) (recoveryapi.Insights, error) {
		if fail {
			return recoveryapi.Insights{}, errors.New("upstream 502")
		}
		return recoveryapi.Insights{RangeDays: rangeDays, Totals: recoveryapi.InsightsTotals{RecoveredJourneys: 4}}, nil
	}
	svc := NewSnapshotService(client, nil, snapshot.WithClock(fixedClock))
	ctx := context.Background()

	_, err := svc.Insights(ctx, 7, false)
	require.NoError(t, err)

	fail = true
	_, err = svc.Insights(ctx, 7, true)
	var fetchErr *TransientFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "insights", fetchErr.Op)

	fail = false
	got, err := svc.Insights(ctx, 7, false)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Totals.RecoveredJourneys)
}

func TestSnapshotService_PersistsAndRestoresDirty(t *testing.T) {
	store := newMemoryStore()
	ctx := context.Background()

	first := NewSnapshotService(&fakeClient{}, nil, snapshot.WithClock(fixedClock))
	first.EnablePersistence(store)
	_, err := first.Insights(ctx, 30, false)
	require.NoError(t, err)
	_, err = first.OrderMetrics(ctx, recoveryapi.OrderMetricsQuery{RangeDays: 7, Status: "paid"}, false)
	require.NoError(t, err)
	require.Len(t, store.records, 2)

	client := &fakeClient{}
	restarted := NewSnapshotService(client, nil, snapshot.WithClock(fixedClock))
	n, err := restarted.Restore(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, stats := range restarted.Stats() {
		assert.Equal(t, 1, stats.Entries, stats.Name)
		assert.Equal(t, 1, stats.Dirty, stats.Name)
	}

	// the sweep replaces seeded entries even though they are within the TTL
	for _, target := range restarted.Targets() {
		for _, key := range target.DirtyKeys() {
			require.NoError(t, target.Refresh(ctx, key))
		}
	}
	insights, orders, _ := client.calls()
	assert.Equal(t, 1, insights)
	assert.Equal(t, 1, orders)
}
