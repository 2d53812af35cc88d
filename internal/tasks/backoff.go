package tasks

import "time"

// DefaultRetryDelay is the documented default delay before a failed
// task becomes eligible again.
const DefaultRetryDelay = 5 * time.Minute

// Backoff decides how long a task waits after its nth failed attempt.
// The policy is pluggable: the fixed delay is the documented default,
// and escalating policies can be swapped in without touching the
// dispatcher.
type Backoff interface {
	// Next returns the delay after the given attempt count (1-based).
	Next(attempts int) time.Duration
}

// FixedBackoff waits the same delay after every failure.
type FixedBackoff struct {
	Delay time.Duration
}

func (b FixedBackoff) Next(int) time.Duration {
	if b.Delay <= 0 {
		return DefaultRetryDelay
	}
	return b.Delay
}

// ExponentialBackoff doubles the delay with each attempt, capped at Max.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b ExponentialBackoff) Next(attempts int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = time.Minute
	}
	if attempts < 1 {
		attempts = 1
	}

	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if b.Max > 0 && delay >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}
