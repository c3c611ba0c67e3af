package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
)

// Notifier appends notifications to a user's feed. *feed.Feed satisfies it.
type Notifier interface {
	Append(ctx context.Context, recipient uuid.UUID, name string, payload any) (*domain.Notification, error)
}

// Job is the view of a running task given to its handler.
type Job struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Kind        string
	Description string
	Args        json.RawMessage
	Attempt     int

	records  store.TaskRecordStore
	notifier Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	progress int
}

func newJob(
	rec *domain.TaskRecord,
	attempt int,
	records store.TaskRecordStore,
	notifier Notifier,
	logger *slog.Logger,
) *Job {
	return &Job{
		ID:          rec.ID,
		OwnerID:     rec.OwnerID,
		Kind:        rec.Kind,
		Description: rec.Description,
		Args:        rec.Args,
		Attempt:     attempt,
		records:     records,
		notifier:    notifier,
		logger:      logger,
		progress:    rec.Progress,
	}
}

// Logger returns the task scoped logger.
func (j *Job) Logger() *slog.Logger {
	return j.logger
}

// Progress returns the last progress value stored for this run.
func (j *Job) Progress() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// DecodeArgs unmarshals the task arguments into v.
func (j *Job) DecodeArgs(v any) error {
	if len(j.Args) == 0 {
		return nil
	}
	if err := json.Unmarshal(j.Args, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return nil
}

// ReportProgress stores percent, clamped to 0..100, and appends a
// task_progress notification to the owner's feed. Writes that would move
// progress backwards are discarded. It reports whether the write was applied.
//
// Store and feed failures are logged and do not fail the task; the terminal
// write still brings the record to 100.
func (j *Job) ReportProgress(ctx context.Context, percent int) bool {
	percent = domain.ClampProgress(percent)

	applied, err := j.records.UpdateProgress(ctx, j.ID, percent)
	if err != nil {
		j.logger.Warn("failed to update task progress", "progress", percent, "error", err)
		return false
	}
	if !applied {
		j.logger.Debug("discarded stale progress update", "progress", percent)
		return false
	}

	j.mu.Lock()
	j.progress = percent
	j.mu.Unlock()

	payload := domain.TaskProgressPayload{TaskID: j.ID, Progress: percent}
	if _, err := j.notifier.Append(ctx, j.OwnerID, domain.NotificationTaskProgress, payload); err != nil {
		j.logger.Warn("failed to append progress notification", "progress", percent, "error", err)
	}

	j.logger.Debug("task progress", "progress", percent)
	return true
}

// Notify appends an arbitrary notification to the owner's feed.
func (j *Job) Notify(ctx context.Context, name string, payload any) error {
	if _, err := j.notifier.Append(ctx, j.OwnerID, name, payload); err != nil {
		return fmt.Errorf("failed to notify %s: %w", name, err)
	}
	return nil
}
