package models

import (
	"encoding/json"
	"fmt"
)

// ModelPricing holds the per-model price points used to derive the cost
// of an invocation from its token counts. Prices are USD per 1K tokens,
// plus an optional flat per-request component for non-token billing
// (image generation, speech synthesis).
type ModelPricing struct {
	InputPer1K  float64 `json:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k"`
	PerRequest  float64 `json:"per_request"`
}

// PricingTable maps model names to their price points for one provider.
// The table is data handed to the adapter at construction, never logic:
// swapping vendors or price revisions means swapping the table.
type PricingTable map[string]ModelPricing

// Cost applies the table to the observed token counts. Unknown models
// cost zero; callers that need strict accounting should validate the
// table against the registry at startup.
func (t PricingTable) Cost(model string, promptTokens, completionTokens int) float64 {
	p, ok := t[model]
	if !ok {
		return 0
	}
	cost := p.PerRequest
	cost += float64(promptTokens) / 1000 * p.InputPer1K
	cost += float64(completionTokens) / 1000 * p.OutputPer1K
	return cost
}

// PricingTableFromJSON decodes a pricing table from its JSON form, the
// shape in which tables are stored as options.
func PricingTableFromJSON(data []byte) (PricingTable, error) {
	var t PricingTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to decode pricing table: %w", err)
	}
	return t, nil
}
