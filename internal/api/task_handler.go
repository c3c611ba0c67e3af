package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/api/shared"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/platform/logger"
)

// TaskService is the subset of task.Dispatcher used by TaskHandler.
type TaskService interface {
	Launch(ctx context.Context, ownerID uuid.UUID, kind, description string, args any) (uuid.UUID, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.TaskRecord, error)
}

// TaskHandler serves task launch and status requests.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// LaunchTask handles POST /api/tasks. It answers 202 with the task ID; a
// repeated launch while the first is still running returns the same ID.
func (h *TaskHandler) LaunchTask(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	var req LaunchTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err)
		return
	}

	id, err := h.tasks.Launch(r.Context(), userID, req.Kind, req.Description, req.Args)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Debug("task launch accepted", "task_id", id, "task_type", req.Kind)
	w.Header().Set("Location", "/api/tasks/"+id.String())
	shared.RespondWithJSON(w, r, http.StatusAccepted, LaunchTaskResponse{ID: id})
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	userID, err := getUserIDFromContext(r)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	taskID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}

	rec, err := h.tasks.Get(r.Context(), userID, taskID)
	if err != nil {
		HandleAPIError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(rec))
}
