package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/api"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", Token: "tok", RequestTimeout: 5 * time.Second}, setupTestLogger())
}

func notification(t *testing.T, name string, ts float64, payload any) domain.Notification {
	t.Helper()
	n, err := domain.NewNotification(uuid.New(), name, payload)
	require.NoError(t, err)
	n.Timestamp = ts
	return *n
}

func TestLaunchTask(t *testing.T) {
	taskID := uuid.New()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/tasks", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		var req api.LaunchTaskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "example", req.Kind)
		assert.JSONEq(t, `{"seconds":2}`, string(req.Args))

		writeJSON(w, http.StatusAccepted, api.LaunchTaskResponse{ID: taskID})
	}))

	id, err := c.LaunchTask(context.Background(), "example", "", map[string]int{"seconds": 2})
	require.NoError(t, err)
	assert.Equal(t, taskID, id)
}

func TestLaunchTask_APIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Unknown task kind", "trace_id": "abc"})
	}))

	_, err := c.LaunchTask(context.Background(), "nope", "", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "Unknown task kind", apiErr.Message)
	assert.Equal(t, "abc", apiErr.TraceID)
}

func TestGetTask(t *testing.T) {
	known := uuid.New()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/"+known.String() {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Task not found"})
			return
		}
		writeJSON(w, http.StatusOK, api.TaskResponse{ID: known, Kind: "example", Progress: 50})
	}))

	task, err := c.GetTask(context.Background(), known)
	require.NoError(t, err)
	assert.Equal(t, 50, task.Progress)

	_, err = c.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestNotificationsRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "Service temporarily unavailable"})
			return
		}
		assert.Equal(t, "1.5", r.URL.Query().Get("since"))
		assert.Equal(t, "2", r.URL.Query().Get("wait"))
		writeJSON(w, http.StatusOK, api.NotificationsResponse{Notifications: []domain.Notification{}, Cursor: 1.5})
	}))
	t.Cleanup(srv.Close)

	c := New(Config{BaseURL: srv.URL, RetryCount: 2}, setupTestLogger())
	page, err := c.Notifications(context.Background(), 1.5, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1.5, page.Cursor)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWatchTask(t *testing.T) {
	taskID := uuid.New()
	other := uuid.New()

	pages := []api.NotificationsResponse{
		{Notifications: []domain.Notification{
			notification(t, domain.NotificationTaskProgress, 1, domain.TaskProgressPayload{TaskID: taskID, Progress: 50}),
		}, Cursor: 1},
		{Notifications: []domain.Notification{}, Cursor: 1},
		{Notifications: []domain.Notification{
			notification(t, domain.NotificationTaskComplete, 2, domain.TaskCompletePayload{TaskID: other, Outcome: domain.TaskOutcomeSucceeded}),
			notification(t, domain.NotificationTaskComplete, 3, domain.TaskCompletePayload{
				TaskID: taskID, Outcome: domain.TaskOutcomeFailed, Progress: 100, Error: "boom",
			}),
		}, Cursor: 3},
	}

	var calls atomic.Int32
	var cursors []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		i := calls.Add(1) - 1
		cursors = append(cursors, r.URL.Query().Get("since"))
		writeJSON(w, http.StatusOK, pages[i])
	}))

	var seen []string
	done, err := c.WatchTask(context.Background(), taskID, 0, time.Second, func(n domain.Notification) {
		seen = append(seen, n.Name)
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskOutcomeFailed, done.Outcome)
	assert.Equal(t, "boom", done.Error)
	assert.Equal(t, []string{"0", "1", "1"}, cursors)
	assert.Len(t, seen, 3)
}

func TestWatchTask_ContextCancelled(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.NotificationsResponse{Notifications: []domain.Notification{}})
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.WatchTask(ctx, uuid.New(), 0, time.Second, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil)
}
