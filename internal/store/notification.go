package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// NotificationStore defines the interface for the per-user notification feed.
type NotificationStore interface {
	// Append assigns n a timestamp strictly greater than every existing
	// timestamp for its recipient and inserts it. The assigned value is
	// written back to n.Timestamp.
	// Returns ErrDuplicate if a concurrent writer took the same timestamp.
	Append(ctx context.Context, n *domain.Notification) error

	// ListSince returns at most limit notifications for userID with a
	// timestamp greater than cursor, in ascending timestamp order.
	ListSince(ctx context.Context, userID uuid.UUID, cursor float64, limit int) ([]domain.Notification, error)
}
