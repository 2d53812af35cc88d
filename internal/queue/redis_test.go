package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func redisTestConfig(t *testing.T, name string) *Config {
	t.Helper()

	srv := miniredis.RunT(t)
	config := DefaultConfig(name)
	config.RedisAddr = srv.Addr()
	return config
}

func TestRedisQueueEnqueueDequeue(t *testing.T) {
	config := redisTestConfig(t, "test")
	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	item := map[string]string{"provider_id": "openai"}
	if err := q.Enqueue(ctx, item); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err := q.Dequeue(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}

	// Redis hands items back as JSON
	raw, ok := items[0].(json.RawMessage)
	if !ok {
		t.Fatalf("Expected json.RawMessage, got %T", items[0])
	}

	var decoded map[string]string
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Failed to decode item: %v", err)
	}
	if decoded["provider_id"] != "openai" {
		t.Errorf("Unexpected item %v", decoded)
	}
}

func TestRedisQueueBatchDrain(t *testing.T) {
	config := redisTestConfig(t, "test-batch")
	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 7; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	items, err := q.Dequeue(ctx, 5, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 items, got %d", len(items))
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 2 {
		t.Errorf("Expected 2 remaining, got %d", length)
	}
}

func TestRedisQueueOrdering(t *testing.T) {
	config := redisTestConfig(t, "test-order")
	q, err := NewRedisQueue(config)
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	defer q.Close()

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(ctx, i); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	items, err := q.Dequeue(ctx, 3, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}

	// FIFO order
	for i, item := range items {
		var n int
		if err := json.Unmarshal(item.(json.RawMessage), &n); err != nil {
			t.Fatalf("Failed to decode item: %v", err)
		}
		if n != i {
			t.Errorf("Expected item %d at position %d, got %d", i, i, n)
		}
	}
}

func TestRedisDeadLetterQueue(t *testing.T) {
	config := redisTestConfig(t, "test-dlq")
	dlq, err := NewRedisDeadLetterQueue(config)
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}
	defer dlq.Close()

	ctx := context.Background()

	if err := dlq.Add(ctx, map[string]string{"k": "v"}, context.DeadlineExceeded); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	items, err := dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if items[0].Error == "" {
		t.Error("Expected error text to be stored")
	}

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	items, _ = dlq.List(ctx, 0)
	if len(items) != 0 {
		t.Errorf("Expected empty DLQ after removal, got %d", len(items))
	}

	if err := dlq.Remove(ctx, "missing"); err != ErrItemNotFound {
		t.Errorf("Expected ErrItemNotFound, got %v", err)
	}
}
