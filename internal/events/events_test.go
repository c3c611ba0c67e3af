package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestNewNotificationEvent(t *testing.T) {
	n := &domain.Notification{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		Name:      domain.NotificationTaskComplete,
		Timestamp: 1700000000.25,
		Payload:   json.RawMessage(`{}`),
	}

	event := NewNotificationEvent(n)

	assert.Equal(t, n.ID, event.ID)
	assert.Equal(t, n.UserID, event.UserID)
	assert.Equal(t, n.Name, event.Name)
	assert.Equal(t, n.Timestamp, event.Timestamp)
	assert.WithinDuration(t, time.Now(), event.CreatedAt, 2*time.Second)
}

// MockEventHandler implements the EventHandler interface for testing
type MockEventHandler struct {
	// The last event received by this handler
	LastEvent *NotificationEvent
	// Error to return from HandleEvent
	HandlerError error
	// Number of times HandleEvent was called
	HandledCount int
}

// HandleEvent implements EventHandler.
func (m *MockEventHandler) HandleEvent(ctx context.Context, event *NotificationEvent) error {
	m.LastEvent = event
	m.HandledCount++
	return m.HandlerError
}
