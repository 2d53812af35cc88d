package models

import (
	"math"
	"testing"
)

func TestPricingTableCost(t *testing.T) {
	table := PricingTable{
		"gpt-4o-mini": {
			InputPer1K:  0.00015,
			OutputPer1K: 0.0006,
		},
		"dall-e-3": {
			PerRequest: 0.04,
		},
		"tts-1": {
			InputPer1K: 0.015,
		},
	}

	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		expected         float64
	}{
		{
			name:             "token-based model",
			model:            "gpt-4o-mini",
			promptTokens:     1000,
			completionTokens: 500,
			expected:         0.00015 + 0.0003,
		},
		{
			name:     "per-request model ignores tokens",
			model:    "dall-e-3",
			expected: 0.04,
		},
		{
			name:         "input-only pricing",
			model:        "tts-1",
			promptTokens: 2000,
			expected:     0.03,
		},
		{
			name:         "unknown model costs zero",
			model:        "unknown-model",
			promptTokens: 1000,
			expected:     0,
		},
		{
			name:     "zero tokens",
			model:    "gpt-4o-mini",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cost := table.Cost(tt.model, tt.promptTokens, tt.completionTokens)
			if math.Abs(cost-tt.expected) > 1e-9 {
				t.Errorf("Expected cost %f, got %f", tt.expected, cost)
			}
		})
	}
}

func TestPricingTableFromJSON(t *testing.T) {
	data := []byte(`{"gpt-4o-mini": {"input_per_1k": 0.00015, "output_per_1k": 0.0006}}`)

	table, err := PricingTableFromJSON(data)
	if err != nil {
		t.Fatalf("PricingTableFromJSON failed: %v", err)
	}

	p, ok := table["gpt-4o-mini"]
	if !ok {
		t.Fatal("Expected gpt-4o-mini entry")
	}
	if p.InputPer1K != 0.00015 {
		t.Errorf("Expected input price 0.00015, got %f", p.InputPer1K)
	}
}

func TestPricingTableFromJSONInvalid(t *testing.T) {
	if _, err := PricingTableFromJSON([]byte("not json")); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}
