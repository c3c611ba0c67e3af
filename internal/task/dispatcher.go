package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/redact"
	"github.com/phrazzld/microblog/internal/store"
)

// Dispatcher is the producer side of the pipeline. It persists a TaskRecord
// and enqueues the matching QueueItem.
type Dispatcher struct {
	registry *Registry
	users    store.UserStore
	records  store.TaskRecordStore
	queue    TaskQueueWriter
	notifier Notifier
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(
	registry *Registry,
	users store.UserStore,
	records store.TaskRecordStore,
	queue TaskQueueWriter,
	notifier Notifier,
	logger *slog.Logger,
) (*Dispatcher, error) {
	if registry == nil || users == nil || records == nil || queue == nil || notifier == nil || logger == nil {
		return nil, ErrNilDependency
	}
	return &Dispatcher{
		registry: registry,
		users:    users,
		records:  records,
		queue:    queue,
		notifier: notifier,
		logger:   logger.With("component", "task_dispatcher"),
	}, nil
}

// Launch starts a task of kind for ownerID and returns its ID. If the owner
// already has an incomplete task of that kind, its ID is returned and
// nothing is enqueued.
func (d *Dispatcher) Launch(
	ctx context.Context,
	ownerID uuid.UUID,
	kind string,
	description string,
	args any,
) (uuid.UUID, error) {
	log := d.logger.With("user_id", ownerID, "task_type", kind)

	if _, ok := d.registry.Lookup(kind); !ok {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if _, err := d.users.GetByID(ctx, ownerID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up task owner: %w", err)
	}

	existing, err := d.records.FindIncomplete(ctx, ownerID, kind)
	switch {
	case err == nil:
		log.Info("task launch ignored",
			"task_id", existing.ID,
			"reason", ErrDuplicateSubmission.Error())
		return existing.ID, nil
	case !errors.Is(err, store.ErrTaskNotFound):
		return uuid.Nil, fmt.Errorf("failed to check for running task: %w", err)
	}

	rec, err := domain.NewTaskRecord(ownerID, kind, description, args)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task record: %w", err)
	}

	if err := d.records.Upsert(ctx, rec); err != nil {
		if !errors.Is(err, store.ErrDuplicate) {
			return uuid.Nil, fmt.Errorf("failed to save task record: %w", err)
		}
		// A concurrent launch inserted first; hand back its record.
		winner, findErr := d.records.FindIncomplete(ctx, ownerID, kind)
		if findErr != nil {
			return uuid.Nil, fmt.Errorf("failed to save task record: %w", err)
		}
		log.Info("task launch ignored",
			"task_id", winner.ID,
			"reason", ErrDuplicateSubmission.Error())
		return winner.ID, nil
	}

	log = log.With("task_id", rec.ID)

	if err := d.queue.Enqueue(ctx, rec.Item()); err != nil {
		log.Error("failed to enqueue task", "error", err)
		d.abandon(ctx, rec, err, log)
		return uuid.Nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	log.Info("task launched")
	return rec.ID, nil
}

// Get returns the task record with the given id if it belongs to ownerID.
// A record owned by someone else is reported as not found.
func (d *Dispatcher) Get(ctx context.Context, ownerID, id uuid.UUID) (*domain.TaskRecord, error) {
	rec, err := d.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return rec, nil
}

// abandon moves a record that could not be enqueued to its terminal state so
// it does not block future launches of the same kind.
func (d *Dispatcher) abandon(ctx context.Context, rec *domain.TaskRecord, cause error, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := d.records.MarkComplete(ctx, rec.ID); err != nil {
		log.Error("failed to mark unqueued task complete", "error", err)
		return
	}

	payload := domain.TaskCompletePayload{
		TaskID:   rec.ID,
		Kind:     rec.Kind,
		Outcome:  domain.TaskOutcomeFailed,
		Progress: 100,
		Error:    redact.Error(cause),
	}
	if _, err := d.notifier.Append(ctx, rec.OwnerID, domain.NotificationTaskComplete, payload); err != nil {
		log.Error("failed to append completion notification", "error", err)
	}
}
