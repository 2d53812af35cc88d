package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aiengine/internal/models"
	"aiengine/internal/queue"
	"aiengine/internal/utils"
)

// Recorder decouples the router from ledger storage: Record enqueues
// and returns immediately, and a background loop drains the queue into
// the inner ledger in batches. Storage trouble therefore never stalls a
// dispatch; items that keep failing are parked in the dead letter queue
// rather than lost silently.
type Recorder struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	ledger      Ledger
	config      *queue.Config
	log         *utils.Logger
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewRecorder creates a recorder draining q into ledger.
func NewRecorder(q queue.Queue, dlq queue.DeadLetterQueue, ledger Ledger, config *queue.Config) *Recorder {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}

	return &Recorder{
		queue:       q,
		dlq:         dlq,
		ledger:      ledger,
		config:      config,
		log:         utils.NewLogger("usage-recorder"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the drain goroutine.
func (r *Recorder) Start(ctx context.Context) {
	go r.run(ctx)
}

// Stop gracefully stops the drain loop.
func (r *Recorder) Stop() error {
	close(r.stopChan)
	<-r.stoppedChan
	return nil
}

// Record enqueues one usage record. Satisfies the router's sink
// contract; the write to durable storage happens later.
func (r *Recorder) Record(ctx context.Context, rec *models.UsageRecord) error {
	return r.queue.Enqueue(ctx, rec)
}

// QueueLength returns the number of records awaiting persistence.
func (r *Recorder) QueueLength(ctx context.Context) (int, error) {
	return r.queue.Length(ctx)
}

// run is the main drain loop.
func (r *Recorder) run(ctx context.Context) {
	defer close(r.stoppedChan)

	for {
		select {
		case <-r.stopChan:
			r.log.Info("Usage recorder stopping")
			return
		case <-ctx.Done():
			r.log.Info("Usage recorder context cancelled")
			return
		default:
			r.processBatch(ctx)
		}
	}
}

// processBatch drains and persists one batch.
func (r *Recorder) processBatch(ctx context.Context) {
	items, err := r.queue.Dequeue(ctx, r.config.BatchSize, r.config.BatchWait)
	if err != nil {
		r.log.Error("Failed to dequeue usage records", "error", err)
		time.Sleep(time.Second)
		return
	}

	if len(items) == 0 {
		return
	}

	r.log.Debug("Persisting usage batch", "count", len(items))

	for _, item := range items {
		if err := r.processItem(ctx, item); err != nil {
			r.log.Error("Failed to persist usage record", "error", err)
		}
	}
}

// processItem persists one record with bounded retries, parking it in
// the DLQ when they run out.
func (r *Recorder) processItem(ctx context.Context, item any) error {
	rec, err := r.decode(item)
	if err != nil {
		r.log.Error("Failed to decode usage record", "error", err)
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := r.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			time.Sleep(backoff)
		}

		if err := r.ledger.Record(ctx, rec); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if r.dlq != nil {
		if err := r.dlq.Add(ctx, rec, lastErr); err != nil {
			r.log.Error("Failed to add usage record to dead letter queue", "error", err)
		} else {
			r.log.Warn("Usage record moved to DLQ", "provider", rec.ProviderID, "error", lastErr)
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// decode converts a queue item back into a usage record. Memory queues
// hand back the original pointer; the Redis queue hands back JSON.
func (r *Recorder) decode(item any) (*models.UsageRecord, error) {
	switch v := item.(type) {
	case *models.UsageRecord:
		return v, nil
	case models.UsageRecord:
		return &v, nil
	case []byte:
		var rec models.UsageRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	case json.RawMessage:
		var rec models.UsageRecord
		if err := json.Unmarshal(v, &rec); err != nil {
			return nil, err
		}
		return &rec, nil
	default:
		return nil, fmt.Errorf("unexpected queue item type %T", item)
	}
}
