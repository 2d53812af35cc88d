package tasks

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"aiengine/internal/models"
	"aiengine/internal/utils"
)

// DispatcherConfig tunes the worker loop.
type DispatcherConfig struct {
	// WorkerID identifies this dispatcher instance as the claim owner.
	// Generated from hostname plus a random suffix when empty.
	WorkerID string

	// TickInterval is how often the dispatcher wakes and claims.
	TickInterval time.Duration

	// BatchSize bounds how many tasks one tick claims.
	BatchSize int

	// TaskTimeout bounds a single handler invocation.
	TaskTimeout time.Duration
}

// Dispatcher is the periodic worker loop: each tick it claims a bounded
// batch of due tasks, runs their handlers inside per-task failure
// boundaries, and applies the retry/backoff state machine through the
// store. Correctness under concurrent instances rests entirely on the
// store's atomic Claim, not on anything in-process.
type Dispatcher struct {
	store       Store
	handlers    *HandlerRegistry
	backoff     Backoff
	config      DispatcherConfig
	log         *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewDispatcher creates a dispatcher. A nil backoff gets the fixed
// default delay.
func NewDispatcher(store Store, handlers *HandlerRegistry, backoff Backoff, config DispatcherConfig) *Dispatcher {
	if config.WorkerID == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "worker"
		}
		config.WorkerID = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Minute
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 5
	}
	if backoff == nil {
		backoff = FixedBackoff{Delay: DefaultRetryDelay}
	}

	return &Dispatcher{
		store:       store,
		handlers:    handlers,
		backoff:     backoff,
		config:      config,
		log:         utils.NewLogger("dispatcher"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// WorkerID returns the claim owner id of this instance.
func (d *Dispatcher) WorkerID() string {
	return d.config.WorkerID
}

// Start starts the tick loop in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	go d.run(ctx)
}

// Stop gracefully stops the loop, waiting for an in-flight tick.
func (d *Dispatcher) Stop() error {
	close(d.stopChan)
	<-d.stoppedChan
	return nil
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.stoppedChan)

	ticker := time.NewTicker(d.config.TickInterval)
	defer ticker.Stop()

	d.log.Info("Dispatcher started", "worker_id", d.config.WorkerID, "interval", d.config.TickInterval)

	for {
		select {
		case <-d.stopChan:
			d.log.Info("Dispatcher stopping")
			return
		case <-ctx.Done():
			d.log.Info("Dispatcher context cancelled")
			return
		case <-ticker.C:
			if err := d.Tick(ctx); err != nil {
				d.log.Error("Tick failed", "error", err)
			}
		}
	}
}

// Tick claims and processes one batch. A Claim failure leaves every
// task in its prior state; the next tick simply tries again.
func (d *Dispatcher) Tick(ctx context.Context) error {
	claimed, err := d.store.Claim(ctx, d.config.BatchSize, d.config.WorkerID)
	if err != nil {
		return fmt.Errorf("failed to claim tasks: %w", err)
	}

	if len(claimed) == 0 {
		return nil
	}

	d.log.Debug("Claimed tasks", "count", len(claimed))

	for _, task := range claimed {
		d.process(ctx, task)
	}

	return nil
}

// process runs one task to a terminal or retrying state. Store errors
// on the way out are logged, never swallowed into a fake success; the
// task then sits in processing until external recovery tooling
// reconciles it.
func (d *Dispatcher) process(ctx context.Context, task *models.Task) {
	handler, ok := d.handlers.Resolve(task.Type)
	if !ok {
		// Retrying cannot conjure a handler into existence, so one
		// missing-handler event is terminal.
		msg := fmt.Sprintf("no handler registered for task type %q", task.Type)
		d.log.Error("Task failed", "task_id", task.ID, "type", task.Type, "error", msg)
		if err := d.store.FailTerminal(ctx, task.ID, msg); err != nil {
			d.log.Error("Failed to mark task failed", "task_id", task.ID, "error", err)
		}
		return
	}

	err := d.invoke(ctx, handler, task)
	if err == nil {
		if err := d.store.Complete(ctx, task.ID); err != nil {
			d.log.Error("Failed to mark task completed", "task_id", task.ID, "error", err)
		}
		return
	}

	delay := d.backoff.Next(task.Attempts + 1)
	d.log.Warn("Task attempt failed", "task_id", task.ID, "type", task.Type, "attempt", task.Attempts+1, "error", err)
	if err := d.store.Fail(ctx, task.ID, err.Error(), delay); err != nil {
		d.log.Error("Failed to record task failure", "task_id", task.ID, "error", err)
	}
}

// invoke runs the handler under the per-task timeout and converts a
// panic into an ordinary error, so one task cannot abort the batch.
func (d *Dispatcher) invoke(ctx context.Context, handler Handler, task *models.Task) (err error) {
	if d.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(ctx, task.Payload)
}
