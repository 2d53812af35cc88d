package tasks

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
)

func TestMemoryStoreEnqueueDefaults(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, err := store.Enqueue(ctx, EnqueueParams{Type: "email.send"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	task, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected pending status, got %s", task.Status)
	}
	if task.MaxAttempts != 1 {
		t.Errorf("Expected max attempts to default to 1, got %d", task.MaxAttempts)
	}
	if task.ScheduledAt.IsZero() {
		t.Error("Expected scheduled time to default to now")
	}
}

func TestMemoryStoreClaimOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// Same priority, different scheduled times
	late, _ := store.Enqueue(ctx, EnqueueParams{Type: "t", Priority: 5, ScheduledAt: base.Add(time.Minute)})
	early, _ := store.Enqueue(ctx, EnqueueParams{Type: "t", Priority: 5, ScheduledAt: base})
	// Lower priority value wins regardless of time
	urgent, _ := store.Enqueue(ctx, EnqueueParams{Type: "t", Priority: 1, ScheduledAt: base.Add(2 * time.Minute)})

	claimed, err := store.Claim(ctx, 10, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(claimed) != 3 {
		t.Fatalf("Expected 3 claimed tasks, got %d", len(claimed))
	}

	expected := []uuid.UUID{urgent, early, late}
	for i, id := range expected {
		if claimed[i].ID != id {
			t.Errorf("Unexpected claim order at position %d", i)
		}
	}

	for _, task := range claimed {
		if task.Status != models.TaskStatusProcessing {
			t.Errorf("Expected processing status, got %s", task.Status)
		}
		if task.Owner != "worker-1" {
			t.Errorf("Expected owner worker-1, got %q", task.Owner)
		}
		if task.ProcessingStartedAt == nil {
			t.Error("Expected processing start time to be set")
		}
	}
}

func TestMemoryStoreClaimBatchLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Enqueue(ctx, EnqueueParams{Type: "t"})
	}

	claimed, err := store.Claim(ctx, 2, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Errorf("Expected batch of 2, got %d", len(claimed))
	}

	rest, err := store.Claim(ctx, 10, "worker-1")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if len(rest) != 3 {
		t.Errorf("Expected remaining 3, got %d", len(rest))
	}
}

func TestMemoryStoreClaimSkipsFutureRetries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }

	id, _ := store.Enqueue(ctx, EnqueueParams{Type: "t", MaxAttempts: 3})

	claimed, _ := store.Claim(ctx, 10, "worker-1")
	if len(claimed) != 1 {
		t.Fatalf("Expected 1 claimed task, got %d", len(claimed))
	}

	if err := store.Fail(ctx, id, "boom", 5*time.Minute); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	// Not yet due
	claimed, _ = store.Claim(ctx, 10, "worker-1")
	if len(claimed) != 0 {
		t.Errorf("Expected no claimable tasks before backoff expires, got %d", len(claimed))
	}

	// Past the backoff window
	now = now.Add(5*time.Minute + time.Second)
	claimed, _ = store.Claim(ctx, 10, "worker-1")
	if len(claimed) != 1 {
		t.Errorf("Expected retrying task to become claimable, got %d", len(claimed))
	}
}

// Concurrent claims must never hand the same task to two workers.
func TestMemoryStoreConcurrentClaims(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const total = 200
	for i := 0; i < total; i++ {
		if _, err := store.Enqueue(ctx, EnqueueParams{Type: "t"}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	const workers = 10
	var wg sync.WaitGroup
	results := make([][]*models.Task, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				claimed, err := store.Claim(ctx, 7, "worker")
				if err != nil {
					t.Errorf("Claim failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				results[w] = append(results[w], claimed...)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uuid.UUID]bool, total)
	count := 0
	for _, claimed := range results {
		for _, task := range claimed {
			if seen[task.ID] {
				t.Fatalf("Task %s claimed twice", task.ID)
			}
			seen[task.ID] = true
			count++
		}
	}
	if count != total {
		t.Errorf("Expected %d tasks claimed overall, got %d", total, count)
	}
}

func TestMemoryStoreFailStateMachine(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, EnqueueParams{Type: "t", MaxAttempts: 2})
	store.Claim(ctx, 1, "worker-1")

	// First failure: attempts remain, so the task retries.
	if err := store.Fail(ctx, id, "first failure", time.Minute); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	task, _ := store.Get(ctx, id)
	if task.Status != models.TaskStatusRetrying {
		t.Errorf("Expected retrying status, got %s", task.Status)
	}
	if task.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", task.Attempts)
	}
	if task.LastError != "first failure" {
		t.Errorf("Unexpected last error %q", task.LastError)
	}
	if !task.ScheduledAt.After(time.Now()) {
		t.Error("Expected scheduled time pushed into the future")
	}
	if task.Owner != "" {
		t.Errorf("Expected owner cleared, got %q", task.Owner)
	}

	// Second failure exhausts the attempts.
	if err := store.Fail(ctx, id, "second failure", time.Minute); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	task, _ = store.Get(ctx, id)
	if task.Status != models.TaskStatusFailed {
		t.Errorf("Expected failed status, got %s", task.Status)
	}
	if task.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", task.Attempts)
	}
	if !task.Terminal() {
		t.Error("Expected failed task to be terminal")
	}
}

func TestMemoryStoreCompleteIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, EnqueueParams{Type: "t"})
	store.Claim(ctx, 1, "worker-1")

	if err := store.Complete(ctx, id); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if err := store.Complete(ctx, id); err != nil {
		t.Fatalf("Repeated Complete failed: %v", err)
	}

	task, _ := store.Get(ctx, id)
	if task.Status != models.TaskStatusCompleted {
		t.Errorf("Expected completed status, got %s", task.Status)
	}
	if task.CompletedAt == nil {
		t.Error("Expected completion time to be set")
	}
}

func TestMemoryStoreFailTerminal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	id, _ := store.Enqueue(ctx, EnqueueParams{Type: "t", MaxAttempts: 5})
	store.Claim(ctx, 1, "worker-1")

	if err := store.FailTerminal(ctx, id, "unroutable"); err != nil {
		t.Fatalf("FailTerminal failed: %v", err)
	}

	task, _ := store.Get(ctx, id)
	if task.Status != models.TaskStatusFailed {
		t.Errorf("Expected failed status, got %s", task.Status)
	}
	// Terminal failure is not an attempt.
	if task.Attempts != 0 {
		t.Errorf("Expected attempts untouched, got %d", task.Attempts)
	}
	if task.LastError != "unroutable" {
		t.Errorf("Unexpected last error %q", task.LastError)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	if _, err := store.Get(ctx, id); err != ErrTaskNotFound {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
	if err := store.Complete(ctx, id); err != ErrTaskNotFound {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
	if err := store.Fail(ctx, id, "x", time.Minute); err != ErrTaskNotFound {
		t.Errorf("Expected ErrTaskNotFound, got %v", err)
	}
}
