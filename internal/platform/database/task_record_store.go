package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/platform/logger"
	"github.com/phrazzld/microblog/internal/store"
)

// taskRecordRow mirrors the task_records table.
type taskRecordRow struct {
	ID          uuid.UUID `db:"id"`
	UserID      uuid.UUID `db:"user_id"`
	Kind        string    `db:"kind"`
	Description string    `db:"description"`
	Args        string    `db:"args"`
	Progress    int       `db:"progress"`
	Complete    bool      `db:"complete"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r taskRecordRow) toDomain() *domain.TaskRecord {
	return &domain.TaskRecord{
		ID:          r.ID,
		OwnerID:     r.UserID,
		Kind:        r.Kind,
		Description: r.Description,
		Args:        json.RawMessage(r.Args),
		Progress:    r.Progress,
		Complete:    r.Complete,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

const taskRecordColumns = `id, user_id, kind, description, args, progress, complete, created_at, updated_at`

// TaskRecordStore implements store.TaskRecordStore.
type TaskRecordStore struct {
	db store.DBTX
}

// NewTaskRecordStore creates a new TaskRecordStore.
func NewTaskRecordStore(db store.DBTX) *TaskRecordStore {
	return &TaskRecordStore{db: db}
}

var _ store.TaskRecordStore = (*TaskRecordStore)(nil)

// Get implements store.TaskRecordStore.
func (s *TaskRecordStore) Get(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error) {
	query := s.db.Rebind(`SELECT ` + taskRecordColumns + ` FROM task_records WHERE id = ?`)

	var row taskRecordRow
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task record: %w", err)
	}
	return row.toDomain(), nil
}

// Upsert implements store.TaskRecordStore.
func (s *TaskRecordStore) Upsert(ctx context.Context, rec *domain.TaskRecord) error {
	if err := rec.Validate(); err != nil {
		return store.NewStoreError("task_record", "upsert", err.Error(), store.ErrInvalidEntity)
	}

	args := string(rec.Args)
	if args == "" {
		args = "{}"
	}

	query := s.db.Rebind(`
		INSERT INTO task_records (` + taskRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			progress = excluded.progress,
			complete = excluded.complete,
			updated_at = excluded.updated_at`)

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Kind, rec.Description, args,
		rec.Progress, rec.Complete, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		logger.FromContext(ctx).Debug("task record upsert failed",
			"task_id", rec.ID,
			"task_type", rec.Kind,
			"error", err)
		return fmt.Errorf("failed to upsert task record: %w", MapError(err))
	}
	return nil
}

// FindIncomplete implements store.TaskRecordStore.
func (s *TaskRecordStore) FindIncomplete(
	ctx context.Context,
	ownerID uuid.UUID,
	kind string,
) (*domain.TaskRecord, error) {
	query := s.db.Rebind(`
		SELECT ` + taskRecordColumns + `
		FROM task_records
		WHERE user_id = ? AND kind = ? AND complete = FALSE`)

	var row taskRecordRow
	if err := s.db.GetContext(ctx, &row, query, ownerID, kind); err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find incomplete task record: %w", err)
	}
	return row.toDomain(), nil
}

// UpdateProgress implements store.TaskRecordStore.
func (s *TaskRecordStore) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error) {
	percent = domain.ClampProgress(percent)

	query := s.db.Rebind(`
		UPDATE task_records
		SET progress = ?, updated_at = ?
		WHERE id = ? AND progress <= ? AND complete = FALSE`)

	result, err := s.db.ExecContext(ctx, query, percent, time.Now().UTC(), id, percent)
	if err != nil {
		return false, fmt.Errorf("failed to update task progress: %w", MapError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows > 0 {
		return true, nil
	}

	// Nothing applied: either a stale write or an unknown task.
	if _, err := s.Get(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// MarkComplete implements store.TaskRecordStore.
func (s *TaskRecordStore) MarkComplete(ctx context.Context, id uuid.UUID) error {
	query := s.db.Rebind(`
		UPDATE task_records
		SET complete = TRUE, progress = 100, updated_at = ?
		WHERE id = ?`)

	result, err := s.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark task complete: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrTaskNotFound)
}

// ListIncomplete implements store.TaskRecordStore.
//
// The age filter runs in Go: timestamps are stored as driver-native
// TIMESTAMP values whose text form differs between engines, and the set of
// incomplete records is small.
func (s *TaskRecordStore) ListIncomplete(
	ctx context.Context,
	updatedBefore time.Time,
) ([]*domain.TaskRecord, error) {
	query := s.db.Rebind(`
		SELECT ` + taskRecordColumns + `
		FROM task_records
		WHERE complete = FALSE
		ORDER BY created_at ASC, id ASC`)

	var rows []taskRecordRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to list incomplete task records: %w", MapError(err))
	}

	records := make([]*domain.TaskRecord, 0, len(rows))
	for _, row := range rows {
		if row.UpdatedAt.Before(updatedBefore) {
			records = append(records, row.toDomain())
		}
	}
	return records, nil
}
