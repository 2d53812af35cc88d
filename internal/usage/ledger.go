// Package usage provides the invocation ledger: an append-only,
// capacity-bounded record of every provider attempt and its outcome.
package usage

import (
	"context"

	"aiengine/internal/models"
)

// Filters narrow a ledger query. Zero values mean "any".
type Filters struct {
	Provider string
	Success  *bool
	Limit    int
	Offset   int
}

// Ledger stores usage records. Record enforces the retention cap in the
// same logical operation as the insert: after it returns, the number of
// non-system rows never exceeds the configured maximum, and the rows
// evicted to enforce that are strictly the oldest.
type Ledger interface {
	// Record appends one usage record.
	Record(ctx context.Context, rec *models.UsageRecord) error

	// Query returns records newest-first, filtered and paginated.
	Query(ctx context.Context, f Filters) ([]*models.UsageRecord, error)
}
