package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
)

// DurableQueueConfig holds configuration for a DurableQueue.
type DurableQueueConfig struct {
	// WorkerID identifies this process in lease ownership. Required when
	// the queue is started.
	WorkerID string

	// PollInterval is how long the poll loop waits after finding the queue
	// empty or failing to claim.
	PollInterval time.Duration

	// Lease is the visibility timeout granted on claim and on every renewal.
	Lease time.Duration
}

// DefaultDurableQueueConfig returns a DurableQueueConfig with reasonable defaults
func DefaultDurableQueueConfig() DurableQueueConfig {
	return DurableQueueConfig{
		PollInterval: time.Second,
		Lease:        30 * time.Second,
	}
}

// DurableQueue is a task queue persisted through a store.QueueStore. Items
// survive restarts and can be produced and consumed by different processes.
// Delivery is at-least-once: an item whose lease expires before it is acked
// is claimed again.
type DurableQueue struct {
	store  store.QueueStore
	config DurableQueueConfig
	logger *slog.Logger

	deliveries chan Delivery
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewDurableQueue creates a durable queue. Enqueue works immediately;
// deliveries flow only after Start.
func NewDurableQueue(s store.QueueStore, config DurableQueueConfig, logger *slog.Logger) *DurableQueue {
	defaults := DefaultDurableQueueConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Lease <= 0 {
		config.Lease = defaults.Lease
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &DurableQueue{
		store:      s,
		config:     config,
		logger:     logger.With("component", "durable_queue", "worker_id", config.WorkerID),
		deliveries: make(chan Delivery),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Enqueue pushes an item to the store. Enqueueing a task ID that is already
// queued is a no-op.
func (q *DurableQueue) Enqueue(ctx context.Context, item domain.QueueItem) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	if err := q.store.Push(ctx, item); err != nil {
		return fmt.Errorf("failed to push queue item: %w", err)
	}
	q.logger.Debug("task enqueued", "task_id", item.TaskID, "task_type", item.Kind)
	return nil
}

// Start begins claiming items in the background.
func (q *DurableQueue) Start() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if q.started {
		return nil
	}
	if q.config.WorkerID == "" {
		return errors.New("durable queue requires a worker ID")
	}

	q.started = true
	q.wg.Add(1)
	go q.pollLoop()
	return nil
}

// Close stops the poll loop and closes the delivery channel. Items already
// claimed but not acked are redelivered after their lease expires.
func (q *DurableQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
	close(q.deliveries)
	q.logger.Info("durable queue closed")
}

// GetChannel returns a read-only channel for consuming deliveries
func (q *DurableQueue) GetChannel() <-chan Delivery {
	return q.deliveries
}

func (q *DurableQueue) pollLoop() {
	defer q.wg.Done()

	q.logger.Debug("starting poll loop", "poll_interval", q.config.PollInterval)

	for {
		if q.ctx.Err() != nil {
			return
		}

		claimed, err := q.store.ClaimNext(q.ctx, q.config.WorkerID, q.config.Lease)
		if err != nil {
			if !errors.Is(err, store.ErrQueueEmpty) && q.ctx.Err() == nil {
				q.logger.Error("failed to claim queue item", "error", err)
			}
			if !q.wait(q.config.PollInterval) {
				return
			}
			continue
		}

		d := q.delivery(claimed)
		select {
		case q.deliveries <- d:
		case <-q.ctx.Done():
			// The lease runs out and another poller picks the item up.
			return
		}
	}
}

func (q *DurableQueue) delivery(claimed *store.ClaimedItem) Delivery {
	taskID := claimed.Item.TaskID
	d := NewDelivery(
		claimed.Item,
		claimed.Attempts,
		func(ctx context.Context) error {
			return q.store.Ack(ctx, taskID, q.config.WorkerID)
		},
		func(ctx context.Context) error {
			return q.store.Renew(ctx, taskID, q.config.WorkerID, q.config.Lease)
		},
	).WithRelease(func(ctx context.Context) error {
		// A zero lease makes the item claimable on the next poll.
		return q.store.Renew(ctx, taskID, q.config.WorkerID, 0)
	})
	d.durable = true
	return d
}

func (q *DurableQueue) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-q.ctx.Done():
		return false
	}
}
