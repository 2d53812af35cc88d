package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
	"aiengine/internal/tasks"
)

// TaskRepository is the Postgres tasks.Store. Claim relies on
// FOR UPDATE SKIP LOCKED so that selection and the transition to
// processing happen as one atomic statement; concurrent dispatcher
// instances can never claim the same row.
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository.
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

const taskColumns = `id, type, payload, status, priority, attempts, max_attempts,
	       last_error, created_at, scheduled_at, processing_started_at, completed_at, owner`

// Enqueue inserts a pending task and returns its id.
func (r *TaskRepository) Enqueue(ctx context.Context, p tasks.EnqueueParams) (uuid.UUID, error) {
	id := uuid.New()
	now := time.Now()

	scheduledAt := p.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	query := `
		INSERT INTO tasks (
			id, type, payload, status, priority, attempts, max_attempts,
			last_error, created_at, scheduled_at, owner
		) VALUES ($1, $2, $3, $4, $5, 0, $6, '', $7, $8, '')
	`

	_, err := r.db.conn.ExecContext(ctx, query,
		id, p.Type, p.Payload, models.TaskStatusPending, p.Priority,
		maxAttempts, now, scheduledAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return id, nil
}

// Claim atomically selects up to batchSize due tasks and transitions
// them to processing in a single statement.
func (r *TaskRepository) Claim(ctx context.Context, batchSize int, workerID string) ([]*models.Task, error) {
	query := fmt.Sprintf(`
		UPDATE tasks
		SET status = $1, processing_started_at = $2, owner = $3
		WHERE id IN (
			SELECT id FROM tasks
			WHERE status = $4 OR (status = $5 AND scheduled_at <= $2)
			ORDER BY priority ASC, scheduled_at ASC
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %s
	`, taskColumns)

	rows, err := r.db.conn.QueryxContext(ctx, query,
		models.TaskStatusProcessing, time.Now(), workerID,
		models.TaskStatusPending, models.TaskStatusRetrying, batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}
	defer rows.Close()

	var claimed []*models.Task
	for rows.Next() {
		var task models.Task
		if err := rows.StructScan(&task); err != nil {
			return nil, fmt.Errorf("failed to scan claimed task: %w", err)
		}
		claimed = append(claimed, &task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed tasks: %w", err)
	}

	return claimed, nil
}

// Complete marks a processing task completed. Repeating the call on an
// already-completed task is a no-op.
func (r *TaskRepository) Complete(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE tasks
		SET status = $2, completed_at = $3, owner = ''
		WHERE id = $1 AND status = $4
	`

	res, err := r.db.conn.ExecContext(ctx, query,
		id, models.TaskStatusCompleted, time.Now(), models.TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}
	if affected > 0 {
		return nil
	}

	task, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status == models.TaskStatusCompleted {
		return nil
	}
	return fmt.Errorf("cannot complete task %s in status %s", id, task.Status)
}

// Fail records a failed attempt in one statement: the attempt counter,
// the retry/failed decision, and the new schedule all move together.
func (r *TaskRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string, backoff time.Duration) error {
	if backoff <= 0 {
		backoff = time.Second
	}
	now := time.Now()

	query := `
		UPDATE tasks
		SET attempts = attempts + 1,
		    last_error = $2,
		    owner = '',
		    status = CASE WHEN attempts + 1 >= max_attempts THEN $3 ELSE $4 END,
		    scheduled_at = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_at ELSE $5 END,
		    completed_at = CASE WHEN attempts + 1 >= max_attempts THEN $6 ELSE completed_at END
		WHERE id = $1 AND status = $7
	`

	res, err := r.db.conn.ExecContext(ctx, query,
		id, errMsg,
		models.TaskStatusFailed, models.TaskStatusRetrying,
		now.Add(backoff), now, models.TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to record task failure: %w", err)
	}
	if affected == 0 {
		task, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("cannot fail task %s in status %s", id, task.Status)
	}

	return nil
}

// FailTerminal moves a processing task straight to failed, leaving the
// attempt counter untouched.
func (r *TaskRepository) FailTerminal(ctx context.Context, id uuid.UUID, errMsg string) error {
	query := `
		UPDATE tasks
		SET status = $2, last_error = $3, completed_at = $4, owner = ''
		WHERE id = $1 AND status = $5
	`

	res, err := r.db.conn.ExecContext(ctx, query,
		id, models.TaskStatusFailed, errMsg, time.Now(), models.TaskStatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failed to terminally fail task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to terminally fail task: %w", err)
	}
	if affected == 0 {
		task, err := r.Get(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("cannot fail task %s in status %s", id, task.Status)
	}

	return nil
}

// Get returns a task by id.
func (r *TaskRepository) Get(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	query := fmt.Sprintf("SELECT %s FROM tasks WHERE id = $1", taskColumns)

	var task models.Task
	err := r.db.conn.GetContext(ctx, &task, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tasks.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	return &task, nil
}

var _ tasks.Store = (*TaskRepository)(nil)
