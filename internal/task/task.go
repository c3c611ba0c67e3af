package task

import (
	"context"

	"github.com/phrazzld/microblog/internal/domain"
)

// Delivery is a queue item handed to a worker. Ack removes the item from the
// queue once its terminal state is stored; Renew extends the visibility lease
// of a durable delivery while the task is still running. Release gives an
// unacknowledged delivery back to its queue.
type Delivery struct {
	Item     domain.QueueItem
	Attempts int

	ack     func(ctx context.Context) error
	renew   func(ctx context.Context) error
	release func(ctx context.Context) error
	durable bool
}

// NewDelivery builds a Delivery. Nil callbacks are treated as no-ops.
func NewDelivery(
	item domain.QueueItem,
	attempts int,
	ack func(ctx context.Context) error,
	renew func(ctx context.Context) error,
) Delivery {
	return Delivery{Item: item, Attempts: attempts, ack: ack, renew: renew}
}

// Ack acknowledges the delivery.
func (d Delivery) Ack(ctx context.Context) error {
	if d.ack == nil {
		return nil
	}
	return d.ack(ctx)
}

// WithRelease returns a copy of d whose Release calls fn.
func (d Delivery) WithRelease(fn func(ctx context.Context) error) Delivery {
	d.release = fn
	return d
}

// Release hands the delivery back without acknowledging it, so the queue
// accepts or serves the item again.
func (d Delivery) Release(ctx context.Context) error {
	if d.release == nil {
		return nil
	}
	return d.release(ctx)
}

// Durable reports whether the queue redelivers the item on its own once the
// delivery is released or its lease lapses, including after a restart.
func (d Delivery) Durable() bool {
	return d.durable
}

// Renew extends the delivery's lease.
func (d Delivery) Renew(ctx context.Context) error {
	if d.renew == nil {
		return nil
	}
	return d.renew(ctx)
}

// TaskQueueReader defines the consumer side of a task queue.
type TaskQueueReader interface {
	// GetChannel returns the channel deliveries arrive on. It is closed
	// when the queue is closed.
	GetChannel() <-chan Delivery
}

// TaskQueueWriter defines the producer side of a task queue.
type TaskQueueWriter interface {
	// Enqueue adds an item. Returns ErrQueueFull or ErrQueueClosed when the
	// item cannot be accepted.
	Enqueue(ctx context.Context, item domain.QueueItem) error

	// Close stops accepting items and closes the delivery channel.
	Close()
}

// Queue is a task queue usable from both sides.
type Queue interface {
	TaskQueueReader
	TaskQueueWriter
}

// Handler executes the body of one task kind.
type Handler interface {
	Execute(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

// Execute calls f(ctx, job).
func (f HandlerFunc) Execute(ctx context.Context, job *Job) error {
	return f(ctx, job)
}
