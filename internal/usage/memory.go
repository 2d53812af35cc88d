package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
)

// MemoryLedger is a mutex-guarded in-memory Ledger, used by tests and
// deployments without a database.
type MemoryLedger struct {
	mu         sync.Mutex
	records    []*models.UsageRecord // oldest first
	maxRecords int                   // cap on non-system rows; 0 = unbounded
}

// NewMemoryLedger creates an in-memory ledger capped at maxRecords
// non-system rows.
func NewMemoryLedger(maxRecords int) *MemoryLedger {
	return &MemoryLedger{maxRecords: maxRecords}
}

// Record appends a record and evicts the oldest non-system rows beyond
// the cap, atomically under the ledger lock.
func (l *MemoryLedger) Record(_ context.Context, rec *models.UsageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	stored := *rec
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	// Keep the slice ordered by timestamp even if a caller backfills.
	idx := len(l.records)
	for idx > 0 && l.records[idx-1].CreatedAt.After(stored.CreatedAt) {
		idx--
	}
	l.records = append(l.records, nil)
	copy(l.records[idx+1:], l.records[idx:])
	l.records[idx] = &stored

	l.evictLocked()
	return nil
}

// evictLocked removes the oldest non-system rows until the cap holds.
func (l *MemoryLedger) evictLocked() {
	if l.maxRecords <= 0 {
		return
	}

	count := 0
	for _, r := range l.records {
		if !r.IsSystem() {
			count++
		}
	}

	for i := 0; count > l.maxRecords && i < len(l.records); {
		if l.records[i].IsSystem() {
			i++
			continue
		}
		l.records = append(l.records[:i], l.records[i+1:]...)
		count--
	}
}

// Query returns records newest-first with the given filters.
func (l *MemoryLedger) Query(_ context.Context, f Filters) ([]*models.UsageRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var matched []*models.UsageRecord
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if f.Provider != "" && r.ProviderID != f.Provider {
			continue
		}
		if f.Success != nil && r.Success != *f.Success {
			continue
		}
		matched = append(matched, r)
	}

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}

	out := make([]*models.UsageRecord, len(matched))
	for i, r := range matched {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Len returns the total number of stored records.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
