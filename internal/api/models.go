package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// LaunchTaskRequest is the body of POST /api/tasks.
type LaunchTaskRequest struct {
	Kind        string          `json:"kind"        validate:"required,max=64"`
	Description string          `json:"description" validate:"max=255"`
	Args        json.RawMessage `json:"args,omitempty"`
}

// LaunchTaskResponse carries the ID of the launched (or already running) task.
type LaunchTaskResponse struct {
	ID uuid.UUID `json:"id"`
}

// TaskResponse is the public view of a task record.
type TaskResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	Progress    int       `json:"progress"`
	Complete    bool      `json:"complete"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func taskToResponse(rec *domain.TaskRecord) TaskResponse {
	return TaskResponse{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Description: rec.Description,
		Progress:    rec.Progress,
		Complete:    rec.Complete,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

// NotificationsResponse is one page of the feed. Cursor is the timestamp to
// pass as since on the next call.
type NotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Cursor        float64               `json:"cursor"`
}
