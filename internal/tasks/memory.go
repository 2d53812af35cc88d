package tasks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. Claim's entire
// select-and-transition runs inside one critical section, so it carries
// the same atomicity guarantee the SQL store gets from row locking.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*models.Task
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tasks: make(map[uuid.UUID]*models.Task),
		now:   time.Now,
	}
}

// Enqueue inserts a pending task.
func (s *MemoryStore) Enqueue(_ context.Context, p EnqueueParams) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	scheduledAt := p.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	t := &models.Task{
		ID:          uuid.New(),
		Type:        p.Type,
		Payload:     p.Payload,
		Status:      models.TaskStatusPending,
		Priority:    p.Priority,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		ScheduledAt: scheduledAt,
	}
	s.tasks[t.ID] = t
	return t.ID, nil
}

// Claim atomically selects and transitions up to batchSize due tasks.
func (s *MemoryStore) Claim(_ context.Context, batchSize int, workerID string) ([]*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	var due []*models.Task
	for _, t := range s.tasks {
		switch t.Status {
		case models.TaskStatusPending:
			due = append(due, t)
		case models.TaskStatusRetrying:
			if !t.ScheduledAt.After(now) {
				due = append(due, t)
			}
		}
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority < due[j].Priority
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})

	if batchSize > 0 && len(due) > batchSize {
		due = due[:batchSize]
	}

	claimed := make([]*models.Task, 0, len(due))
	for _, t := range due {
		t.Status = models.TaskStatusProcessing
		started := now
		t.ProcessingStartedAt = &started
		t.Owner = workerID

		cp := *t
		claimed = append(claimed, &cp)
	}

	return claimed, nil
}

// Complete marks a processing task completed; idempotent on repeat.
func (s *MemoryStore) Complete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.Status == models.TaskStatusCompleted {
		return nil
	}

	t.Status = models.TaskStatusCompleted
	done := s.now()
	t.CompletedAt = &done
	t.Owner = ""
	return nil
}

// Fail records a failed attempt and applies the retry/backoff state
// machine.
func (s *MemoryStore) Fail(_ context.Context, id uuid.UUID, errMsg string, backoff time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	t.Attempts++
	t.LastError = errMsg
	t.Owner = ""

	if t.Attempts >= t.MaxAttempts {
		t.Status = models.TaskStatusFailed
		done := s.now()
		t.CompletedAt = &done
		return nil
	}

	if backoff <= 0 {
		backoff = time.Second
	}
	t.Status = models.TaskStatusRetrying
	t.ScheduledAt = s.now().Add(backoff)
	return nil
}

// FailTerminal moves a task straight to failed, attempts untouched.
func (s *MemoryStore) FailTerminal(_ context.Context, id uuid.UUID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}

	t.Status = models.TaskStatusFailed
	t.LastError = errMsg
	t.Owner = ""
	done := s.now()
	t.CompletedAt = &done
	return nil
}

// Get returns a copy of the task.
func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}
