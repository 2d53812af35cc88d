// Package tasks implements the durable deferred-work subsystem: a
// claimable task store, a handler registry, and the periodic dispatcher
// that drives the retry/backoff state machine.
package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
)

// ErrTaskNotFound is returned when a task id does not exist.
var ErrTaskNotFound = errors.New("task not found")

// EnqueueParams describes a new task. Zero ScheduledAt means eligible
// immediately; zero MaxAttempts defaults to 1.
type EnqueueParams struct {
	Type        string
	Payload     models.JSONB
	Priority    int
	MaxAttempts int
	ScheduledAt time.Time
}

// Store is the durable task queue. Claim is the safety-critical
// operation: selection and the transition to processing must be one
// atomic step, because multiple dispatcher instances may claim
// concurrently and no task may ever be held by two workers at once.
type Store interface {
	// Enqueue inserts a pending task and returns its id.
	Enqueue(ctx context.Context, p EnqueueParams) (uuid.UUID, error)

	// Claim atomically selects up to batchSize due tasks (pending, or
	// retrying with scheduled_at in the past), ordered by priority
	// then scheduled time, and transitions them to processing owned by
	// workerID. Two concurrent claims never return the same task.
	Claim(ctx context.Context, batchSize int, workerID string) ([]*models.Task, error)

	// Complete marks a processing task completed. Calling it again on
	// an already-completed task is a no-op.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records a failed attempt: the task moves to retrying with
	// scheduled_at pushed past now by backoff, or to failed once its
	// attempts are exhausted.
	Fail(ctx context.Context, id uuid.UUID, errMsg string, backoff time.Duration) error

	// FailTerminal moves a processing task straight to failed without
	// touching its attempt counter. Used when retrying cannot help,
	// e.g. no handler exists for the task type.
	FailTerminal(ctx context.Context, id uuid.UUID, errMsg string) error

	// Get returns a task by id.
	Get(ctx context.Context, id uuid.UUID) (*models.Task, error)
}
