// Package queue buffers items awaiting durable processing. Two backends
// share one contract:
//
//  1. Memory queue: channel-based, nothing survives a restart, no
//     external dependencies. The default for single-host deployments.
//  2. Redis queue: list-based, survives restarts, lets several hosts
//     drain the same buffer.
//
// The usage recorder drains either backend in batches; items that fail
// repeatedly land in a dead-letter queue for inspection instead of being
// dropped.
package queue

import (
	"context"
	"time"
)

// Queue is the buffering contract shared by both backends.
type Queue interface {
	// Enqueue adds an item to the queue.
	Enqueue(ctx context.Context, item any) error

	// Dequeue retrieves up to maxItems items, waiting up to wait for
	// the first one. An empty slice means the wait expired.
	Dequeue(ctx context.Context, maxItems int, wait time.Duration) ([]any, error)

	// Length returns the current queue length.
	Length(ctx context.Context) (int, error)

	// Close shuts down the queue.
	Close() error
}

// DeadLetterQueue holds items that exhausted their processing retries.
type DeadLetterQueue interface {
	// Add stores a failed item together with its final error.
	Add(ctx context.Context, item any, cause error) error

	// List retrieves up to maxItems dead-letter items; 0 means all.
	List(ctx context.Context, maxItems int) ([]DeadLetterItem, error)

	// Remove deletes a dead-letter item by id.
	Remove(ctx context.Context, id string) error

	// Close shuts down the dead letter queue.
	Close() error
}

// DeadLetterItem is one parked failure.
type DeadLetterItem struct {
	ID        string
	Item      any
	Error     string
	Timestamp time.Time
}

// Config holds queue and drain-loop settings.
type Config struct {
	// Name keys the queue (and its Redis list, when applicable).
	Name string

	// BatchSize is the maximum number of items drained per pass.
	BatchSize int

	// BatchWait is how long a drain pass waits for a first item.
	BatchWait time.Duration

	// MaxRetries bounds per-item processing attempts before the item
	// moves to the dead letter queue.
	MaxRetries int

	// RetryBackoff is the initial delay between per-item retries;
	// subsequent retries double it.
	RetryBackoff time.Duration

	// Redis connection settings, used only by the Redis backend.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// DefaultConfig returns the default settings for a named queue.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:         name,
		BatchSize:    100,
		BatchWait:    5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
	}
}
