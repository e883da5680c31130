// Package snapshots persists the last successful value of every snapshot
// cache entry so a restarted console can answer before its first refresh.
package snapshots

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/database"
)

// Record is one persisted cache entry. Query and Value hold the JSON encoding
// of the cache's query and value types.
type Record struct {
	CacheName string
	CacheKey  string
	Query     json.RawMessage
	Value     json.RawMessage
	FetchedAt time.Time
}

type SnapshotRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewSnapshotRepository(db *database.DB, logger *logging.ChanneledLogger) *SnapshotRepository {
	return &SnapshotRepository{db: db, logger: logger}
}

// Save upserts the record for (cache, key). An older fetchedAt never
// overwrites a newer one.
func (r *SnapshotRepository) Save(ctx context.Context, rec Record) error {
	query := `INSERT INTO cache_snapshots (cache_name, cache_key, query_json, value_json, fetched_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(cache_name, cache_key) DO UPDATE SET
			query_json = excluded.query_json,
			value_json = excluded.value_json,
			fetched_at = excluded.fetched_at
		WHERE excluded.fetched_at >= cache_snapshots.fetched_at`

	start := time.Now()
	_, err := r.db.ExecContext(ctx, query,
		rec.CacheName, rec.CacheKey, string(rec.Query), string(rec.Value), rec.FetchedAt.UTC())
	if err != nil {
		r.logger.Database().Error("Snapshot upsert failed", "error", err.Error(), "cache", rec.CacheName, "key", rec.CacheKey)
		return fmt.Errorf("failed to save snapshot %s/%s: %w", rec.CacheName, rec.CacheKey, err)
	}

	duration := time.Since(start)
	r.logger.Database().Debug("Snapshot upsert completed", "cache", rec.CacheName, "key", rec.CacheKey, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, "SNAPSHOT_UPSERT", duration)
	return nil
}

// LoadAll returns every persisted record for a cache, oldest first.
func (r *SnapshotRepository) LoadAll(ctx context.Context, cacheName string) ([]Record, error) {
	query := `SELECT cache_key, query_json, value_json, fetched_at FROM cache_snapshots WHERE cache_name = ? ORDER BY fetched_at`

	start := time.Now()
	rows, err := r.db.QueryContext(ctx, query, cacheName)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", cacheName, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			key, queryJSON, valueJSON string
			fetchedAt                 time.Time
		)
		if err := rows.Scan(&key, &queryJSON, &valueJSON, &fetchedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		records = append(records, Record{
			CacheName: cacheName,
			CacheKey:  key,
			Query:     json.RawMessage(queryJSON),
			Value:     json.RawMessage(valueJSON),
			FetchedAt: fetchedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	database.CheckAndLogSlowQuery(r.logger, "SNAPSHOT_LOAD", time.Since(start))
	return records, nil
}

// Delete removes every record for a cache.
func (r *SnapshotRepository) Delete(ctx context.Context, cacheName string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM cache_snapshots WHERE cache_name = ?`, cacheName)
	if err != nil {
		return 0, fmt.Errorf("failed to delete snapshots for %s: %w", cacheName, err)
	}
	return res.RowsAffected()
}
