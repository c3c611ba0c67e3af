package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// NotificationEvent announces that a notification was appended to a user's
// feed. It carries identifiers only; readers fetch the content from the feed.
type NotificationEvent struct {
	// ID is the notification's ID
	ID uuid.UUID `json:"id"`

	// UserID is the recipient
	UserID uuid.UUID `json:"user_id"`

	// Name is the notification name, e.g. task_progress
	Name string `json:"name"`

	// Timestamp is the feed cursor assigned to the notification
	Timestamp float64 `json:"timestamp"`

	// CreatedAt is when the event was emitted
	CreatedAt time.Time `json:"created_at"`
}

// NewNotificationEvent builds the event for a stored notification.
func NewNotificationEvent(n *domain.Notification) *NotificationEvent {
	return &NotificationEvent{
		ID:        n.ID,
		UserID:    n.UserID,
		Name:      n.Name,
		Timestamp: n.Timestamp,
		CreatedAt: time.Now(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *NotificationEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// This allows the feed to publish events without direct knowledge of handlers.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	// Returns an error if the event cannot be emitted.
	EmitEvent(ctx context.Context, event *NotificationEvent) error
}
