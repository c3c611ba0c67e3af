package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Notification names produced by the pipeline.
const (
	NotificationTaskProgress = "task_progress"
	NotificationTaskComplete = "task_complete"
)

// TimestampEpsilon is the nudge applied when the wall clock has not moved past
// the recipient's last notification.
const TimestampEpsilon = 1e-6

// ErrEmptyNotificationName is returned when a notification has no name.
var ErrEmptyNotificationName = errors.New("notification name cannot be empty")

// Notification is an immutable, timestamped event in a user's feed. Timestamp
// is unix seconds and is unique per recipient; it doubles as the read cursor.
type Notification struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Name      string          `json:"name"`
	Timestamp float64         `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewNotification builds a notification with a marshalled payload. The
// timestamp is assigned by the store on insert.
func NewNotification(userID uuid.UUID, name string, payload any) (*Notification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	n := &Notification{
		ID:      uuid.New(),
		UserID:  userID,
		Name:    name,
		Payload: raw,
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// Validate checks if the Notification has valid data.
func (n *Notification) Validate() error {
	if n.ID == uuid.Nil {
		return ErrInvalidID
	}
	if n.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(n.Name) == "" {
		return ErrEmptyNotificationName
	}
	if !json.Valid(n.Payload) {
		return fmt.Errorf("%w: notification payload", ErrInvalidPayload)
	}
	return nil
}

// DecodePayload unmarshals the payload into v.
func (n *Notification) DecodePayload(v any) error {
	return json.Unmarshal(n.Payload, v)
}

// UnixSeconds converts t to the float representation used for timestamps.
func UnixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// NextTimestamp returns the timestamp to assign after last. Monotonicity wins
// over wall-clock accuracy: if now has not advanced past last, the result is
// last plus TimestampEpsilon, and always strictly greater than last.
func NextTimestamp(last, now float64) float64 {
	if now > last {
		return now
	}
	next := last + TimestampEpsilon
	if next <= last {
		next = math.Nextafter(last, math.Inf(1))
	}
	return next
}

// TaskProgressPayload is the body of a task_progress notification.
type TaskProgressPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	Progress int       `json:"progress"`
}

// TaskCompletePayload is the body of a task_complete notification.
type TaskCompletePayload struct {
	TaskID   uuid.UUID   `json:"task_id"`
	Kind     string      `json:"kind"`
	Outcome  TaskOutcome `json:"status"`
	Progress int         `json:"progress"`
	Error    string      `json:"error,omitempty"`
}
