package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// TaskQueue is an in-memory buffered queue that satisfies both
// TaskQueueReader and TaskQueueWriter. Items live only in process memory;
// records left incomplete by a restart are re-enqueued by Runner.Recover.
//
// An item whose task ID is already queued or running is accepted without
// being queued twice. The ID is released when the delivery is acked.
type TaskQueue struct {
	deliveries chan Delivery
	logger     *slog.Logger

	mu      sync.Mutex
	closed  bool
	pending map[uuid.UUID]struct{}
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size < 0 {
		size = 0
	}
	return &TaskQueue{
		deliveries: make(chan Delivery, size),
		logger:     logger.With("component", "task_queue"),
		pending:    make(map[uuid.UUID]struct{}),
	}
}

// Enqueue adds an item to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *TaskQueue) Enqueue(ctx context.Context, item domain.QueueItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.pending[item.TaskID]; ok {
		q.logger.Debug("task already queued", "task_id", item.TaskID, "task_type", item.Kind)
		return nil
	}

	taskID := item.TaskID
	drop := func(context.Context) error {
		q.release(taskID)
		return nil
	}
	d := NewDelivery(item, 1, drop, nil).WithRelease(drop)

	select {
	case q.deliveries <- d:
		q.pending[taskID] = struct{}{}
		q.logger.Debug("task enqueued",
			"task_id", item.TaskID,
			"task_type", item.Kind,
			"queue_len", len(q.deliveries),
			"queue_cap", cap(q.deliveries))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.deliveries))
	}
}

// Close closes the task queue, preventing further submission. Items still
// buffered are delivered before the channel reports closed.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.deliveries)
		q.logger.Info("task queue closed")
	}
}

// GetChannel returns a read-only channel for consuming deliveries
func (q *TaskQueue) GetChannel() <-chan Delivery {
	return q.deliveries
}

// Len reports the number of buffered deliveries.
func (q *TaskQueue) Len() int {
	return len(q.deliveries)
}

func (q *TaskQueue) release(taskID uuid.UUID) {
	q.mu.Lock()
	delete(q.pending, taskID)
	q.mu.Unlock()
}
