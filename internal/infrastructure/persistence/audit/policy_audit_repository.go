// Package audit records every campaign policy the console saved.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/domain/campaign"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/security"
)

// Entry is one saved policy.
type Entry struct {
	ID             string          `json:"id"`
	SavedAt        time.Time       `json:"savedAt"`
	Policy         campaign.Policy `json:"policy"`
	ExtendedWindow bool            `json:"extendedWindow"`
}

type PolicyAuditRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

func NewPolicyAuditRepository(db *database.DB, logger *logging.ChanneledLogger) *PolicyAuditRepository {
	return &PolicyAuditRepository{db: db, logger: logger}
}

// Record stores a saved policy and returns the new row ID.
func (r *PolicyAuditRepository) Record(ctx context.Context, policy campaign.Policy, extendedWindow bool, savedAt time.Time) (string, error) {
	policyJSON, err := json.Marshal(policy)
	if err != nil {
		return "", fmt.Errorf("failed to encode policy: %w", err)
	}

	id := security.GenerateULID()
	query := `INSERT INTO policy_audit (id, saved_at, policy_json, extended_window) VALUES (?, ?, ?, ?)`

	start := time.Now()
	if _, err := r.db.ExecContext(ctx, query, id, savedAt.UTC(), string(policyJSON), extendedWindow); err != nil {
		r.logger.Database().Error("Policy audit insert failed", "error", err.Error())
		return "", fmt.Errorf("failed to insert policy audit: %w", err)
	}

	duration := time.Since(start)
	r.logger.Database().Info("Policy audit recorded", "id", id, "extendedWindow", extendedWindow, "duration", duration)
	database.CheckAndLogSlowQuery(r.logger, query, duration)
	return id, nil
}

// Recent returns the latest saves, newest first.
func (r *PolicyAuditRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, saved_at, policy_json, extended_window FROM policy_audit ORDER BY saved_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query policy audit: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			policyJSON string
		)
		if err := rows.Scan(&e.ID, &e.SavedAt, &policyJSON, &e.ExtendedWindow); err != nil {
			return nil, fmt.Errorf("failed to scan policy audit row: %w", err)
		}
		if err := json.Unmarshal([]byte(policyJSON), &e.Policy); err != nil {
			return nil, fmt.Errorf("failed to decode audited policy %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
