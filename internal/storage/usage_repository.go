package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
	"aiengine/internal/usage"
)

// UsageRepository is the Postgres usage.Ledger. The retention cap is
// enforced inside the insert transaction, so a concurrent writer racing
// on eviction can only ever remove rows strictly older than its own.
type UsageRepository struct {
	db         *DB
	maxRecords int // cap on non-system rows; 0 = unbounded
}

// NewUsageRepository creates a usage repository capped at maxRecords
// non-system rows.
func NewUsageRepository(db *DB, maxRecords int) *UsageRepository {
	return &UsageRepository{db: db, maxRecords: maxRecords}
}

// Record inserts one usage record and evicts the oldest non-system rows
// beyond the cap in the same transaction.
func (r *UsageRepository) Record(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	tx, err := r.db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin usage transaction: %w", err)
	}
	defer tx.Rollback()

	insert := `
		INSERT INTO usage_records (
			id, provider_id, capability, feature, model_name, success,
			prompt_tokens, completion_tokens, total_tokens, cost_usd,
			error_message, request_summary, latency_ms, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, insert,
		rec.ID, rec.ProviderID, rec.Capability, rec.Feature, rec.ModelName,
		rec.Success, rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.CostUSD, rec.ErrorMessage, rec.RequestSummary, rec.LatencyMS,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	if r.maxRecords > 0 {
		evict := `
			DELETE FROM usage_records
			WHERE id IN (
				SELECT id FROM usage_records
				WHERE feature NOT LIKE 'system.%'
				ORDER BY created_at DESC
				OFFSET $1
			)
		`
		if _, err := tx.ExecContext(ctx, evict, r.maxRecords); err != nil {
			return fmt.Errorf("failed to evict usage records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit usage record: %w", err)
	}

	return nil
}

// Query returns records newest-first with provider and success filters.
func (r *UsageRepository) Query(ctx context.Context, f usage.Filters) ([]*models.UsageRecord, error) {
	where := ""
	var args []any
	argCount := 1

	if f.Provider != "" {
		where = fmt.Sprintf("WHERE provider_id = $%d", argCount)
		args = append(args, f.Provider)
		argCount++
	}
	if f.Success != nil {
		if where == "" {
			where = fmt.Sprintf("WHERE success = $%d", argCount)
		} else {
			where += fmt.Sprintf(" AND success = $%d", argCount)
		}
		args = append(args, *f.Success)
		argCount++
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, provider_id, capability, feature, model_name, success,
		       prompt_tokens, completion_tokens, total_tokens, cost_usd,
		       error_message, request_summary, latency_ms, created_at
		FROM usage_records
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, argCount, argCount+1)

	args = append(args, limit, f.Offset)

	var records []*models.UsageRecord
	if err := r.db.conn.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query usage records: %w", err)
	}

	return records, nil
}

var _ usage.Ledger = (*UsageRepository)(nil)
