package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// TaskRecordStore defines the interface for task record persistence.
type TaskRecordStore interface {
	// Get retrieves a task record by ID.
	// Returns ErrTaskNotFound if the record does not exist.
	Get(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error)

	// Upsert inserts the record, or overwrites description, progress and
	// completion of an existing record with the same ID.
	// Returns ErrDuplicate if another incomplete record of the same kind
	// already exists for the owner.
	Upsert(ctx context.Context, rec *domain.TaskRecord) error

	// FindIncomplete returns the incomplete record of the given kind for the
	// owner. Returns ErrTaskNotFound if there is none.
	FindIncomplete(ctx context.Context, ownerID uuid.UUID, kind string) (*domain.TaskRecord, error)

	// UpdateProgress stores percent if it does not go backwards and the
	// record is still incomplete. The boolean reports whether the write
	// was applied; a discarded write is not an error.
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error)

	// MarkComplete sets complete=true and progress=100. Completing an
	// already complete record is a no-op.
	// Returns ErrTaskNotFound if the record does not exist.
	MarkComplete(ctx context.Context, id uuid.UUID) error

	// ListIncomplete returns incomplete records last updated before the
	// given time, oldest first.
	ListIncomplete(ctx context.Context, updatedBefore time.Time) ([]*domain.TaskRecord, error)
}
