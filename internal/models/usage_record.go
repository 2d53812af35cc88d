package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one row in the append-only invocation ledger. Every
// provider attempt, successful or not, produces exactly one record.
type UsageRecord struct {
	ID               uuid.UUID `db:"id"`
	ProviderID       string    `db:"provider_id"`
	Capability       string    `db:"capability"`
	Feature          string    `db:"feature"`
	ModelName        string    `db:"model_name"`
	Success          bool      `db:"success"`
	PromptTokens     int       `db:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens"`
	TotalTokens      int       `db:"total_tokens"`
	CostUSD          float64   `db:"cost_usd"`
	ErrorMessage     string    `db:"error_message"`
	RequestSummary   string    `db:"request_summary"`
	LatencyMS        int       `db:"latency_ms"`
	CreatedAt        time.Time `db:"created_at"`
}

// systemFeaturePrefix marks internal bookkeeping records that are exempt
// from the ledger's retention cap.
const systemFeaturePrefix = "system."

// IsSystem reports whether the record is internal bookkeeping rather than
// a caller-attributable invocation.
func (r *UsageRecord) IsSystem() bool {
	return strings.HasPrefix(r.Feature, systemFeaturePrefix)
}
