package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// ClaimedItem is a queue item leased to one worker.
type ClaimedItem struct {
	Item       domain.QueueItem
	Attempts   int
	LeaseUntil time.Time
}

// QueueStore defines the interface for a database-backed task queue with
// visibility leases. Items stay in the store until acknowledged; an item whose
// lease expires becomes claimable again.
type QueueStore interface {
	// Push adds an item. Pushing an item whose task ID is already queued is a no-op.
	Push(ctx context.Context, item domain.QueueItem) error

	// ClaimNext leases the oldest claimable item to workerID until now+lease
	// and increments its attempt counter.
	// Returns ErrQueueEmpty if nothing is claimable.
	ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*ClaimedItem, error)

	// Renew extends a lease held by workerID.
	// Returns ErrNotFound if the item is gone or leased to someone else.
	Renew(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) error

	// Ack deletes an item leased to workerID.
	// Returns ErrNotFound if the item is gone or leased to someone else.
	Ack(ctx context.Context, taskID uuid.UUID, workerID string) error
}
