package tasks

import (
	"testing"
	"time"
)

func TestFixedBackoff(t *testing.T) {
	b := FixedBackoff{Delay: 30 * time.Second}

	for _, attempts := range []int{1, 2, 10} {
		if delay := b.Next(attempts); delay != 30*time.Second {
			t.Errorf("Attempt %d: expected 30s, got %s", attempts, delay)
		}
	}
}

func TestFixedBackoffDefault(t *testing.T) {
	b := FixedBackoff{}

	if delay := b.Next(1); delay != DefaultRetryDelay {
		t.Errorf("Expected default delay %s, got %s", DefaultRetryDelay, delay)
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: time.Minute, Max: 10 * time.Minute}

	tests := []struct {
		attempts int
		expected time.Duration
	}{
		{0, time.Minute},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{4, 8 * time.Minute},
		{5, 10 * time.Minute}, // capped
		{10, 10 * time.Minute},
	}

	for _, tt := range tests {
		if delay := b.Next(tt.attempts); delay != tt.expected {
			t.Errorf("Attempt %d: expected %s, got %s", tt.attempts, tt.expected, delay)
		}
	}
}

func TestExponentialBackoffDefaults(t *testing.T) {
	b := ExponentialBackoff{}

	if delay := b.Next(1); delay != time.Minute {
		t.Errorf("Expected base default of 1m, got %s", delay)
	}
	// No cap: keeps doubling
	if delay := b.Next(4); delay != 8*time.Minute {
		t.Errorf("Expected 8m, got %s", delay)
	}
}
