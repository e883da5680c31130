package database

import (
	"context"
	"fmt"
)

// TableCreator handles the creation of the console's local schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
// Every statement is idempotent so it runs on each startup.
func (tc *TableCreator) CreateSchema(ctx context.Context, db *DB) error {
	for _, tableSQL := range tables {
		if _, err := db.ExecContext(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS cache_snapshots (cache_name TEXT NOT NULL, cache_key TEXT NOT NULL, query_json TEXT NOT NULL, value_json TEXT NOT NULL, fetched_at TIMESTAMP NOT NULL, PRIMARY KEY (cache_name, cache_key))`,
	`CREATE TABLE IF NOT EXISTS policy_audit (id TEXT PRIMARY KEY, saved_at TIMESTAMP NOT NULL, policy_json TEXT NOT NULL, extended_window BOOLEAN NOT NULL DEFAULT 0)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_cache_snapshots_fetched_at ON cache_snapshots(fetched_at)`,
	`CREATE INDEX IF NOT EXISTS idx_policy_audit_saved_at ON policy_audit(saved_at)`,
}
