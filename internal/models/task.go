package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a deferred work item.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusRetrying   TaskStatus = "retrying"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task is a durable unit of deferred work. Transitions are driven
// exclusively by the dispatcher: pending|retrying -> processing ->
// completed|retrying|failed. Terminal rows are retained for audit.
type Task struct {
	ID                  uuid.UUID  `db:"id"`
	Type                string     `db:"type"`
	Payload             JSONB      `db:"payload"`
	Status              TaskStatus `db:"status"`
	Priority            int        `db:"priority"`
	Attempts            int        `db:"attempts"`
	MaxAttempts         int        `db:"max_attempts"`
	LastError           string     `db:"last_error"`
	CreatedAt           time.Time  `db:"created_at"`
	ScheduledAt         time.Time  `db:"scheduled_at"`
	ProcessingStartedAt *time.Time `db:"processing_started_at"`
	CompletedAt         *time.Time `db:"completed_at"`
	Owner               string     `db:"owner"`
}

// Terminal reports whether the task has reached a final state.
func (t *Task) Terminal() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}
