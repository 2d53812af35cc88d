package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Queue over a buffered channel.
type MemoryQueue struct {
	items  chan any
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates a new in-memory queue.
func NewMemoryQueue(config *Config) *MemoryQueue {
	if config == nil {
		config = DefaultConfig("memory")
	}

	return &MemoryQueue{
		// room for several drain passes of backlog
		items: make(chan any, config.BatchSize*10),
	}
}

// Enqueue adds an item to the queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, item any) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue retrieves up to maxItems items, waiting up to wait for the
// first one.
func (q *MemoryQueue) Dequeue(ctx context.Context, maxItems int, wait time.Duration) ([]any, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	var items []any

	select {
	case item := <-q.items:
		items = append(items, item)
	case <-time.After(wait):
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Drain whatever else is immediately available.
	for len(items) < maxItems {
		select {
		case item := <-q.items:
			items = append(items, item)
		default:
			return items, nil
		}
	}

	return items, nil
}

// Length returns the current queue length.
func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return 0, ErrQueueClosed
	}

	return len(q.items), nil
}

// Close shuts down the queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.items)
	return nil
}

// MemoryDeadLetterQueue implements DeadLetterQueue in memory.
type MemoryDeadLetterQueue struct {
	mu     sync.Mutex
	items  []DeadLetterItem
	closed bool
}

// NewMemoryDeadLetterQueue creates a new in-memory dead letter queue.
func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{}
}

// Add stores a failed item with its final error.
func (q *MemoryDeadLetterQueue) Add(ctx context.Context, item any, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	errText := ""
	if cause != nil {
		errText = cause.Error()
	}

	q.items = append(q.items, DeadLetterItem{
		ID:        uuid.NewString(),
		Item:      item,
		Error:     errText,
		Timestamp: time.Now(),
	})
	return nil
}

// List retrieves up to maxItems dead-letter items; 0 means all.
func (q *MemoryDeadLetterQueue) List(ctx context.Context, maxItems int) ([]DeadLetterItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	n := len(q.items)
	if maxItems > 0 && maxItems < n {
		n = maxItems
	}

	out := make([]DeadLetterItem, n)
	copy(out, q.items[:n])
	return out, nil
}

// Remove deletes a dead-letter item by id.
func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for i, item := range q.items {
		if item.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return ErrItemNotFound
}

// Close shuts down the dead letter queue.
func (q *MemoryDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
