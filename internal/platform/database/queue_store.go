package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
)

type queueItemRow struct {
	TaskID     uuid.UUID `db:"task_id"`
	Kind       string    `db:"kind"`
	UserID     uuid.UUID `db:"user_id"`
	Args       string    `db:"args"`
	EnqueuedAt int64     `db:"enqueued_at"`
	ClaimedBy  string    `db:"claimed_by"`
	LeaseUntil int64     `db:"lease_until"`
	Attempts   int       `db:"attempts"`
}

// claimRetries bounds how often ClaimNext retries after losing a race for a row.
const claimRetries = 3

// QueueStore implements store.QueueStore on the queue_items table.
// Lease deadlines are unix milliseconds so both engines compare plain integers.
type QueueStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewQueueStore creates a new QueueStore.
func NewQueueStore(db *sqlx.DB) *QueueStore {
	return &QueueStore{db: db, now: time.Now}
}

var _ store.QueueStore = (*QueueStore)(nil)

// Push implements store.QueueStore.
func (s *QueueStore) Push(ctx context.Context, item domain.QueueItem) error {
	args := string(item.Args)
	if args == "" {
		args = "{}"
	}

	query := s.db.Rebind(`
		INSERT INTO queue_items (task_id, kind, user_id, args, enqueued_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (task_id) DO NOTHING`)

	if _, err := s.db.ExecContext(ctx, query,
		item.TaskID, item.Kind, item.OwnerID, args, s.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("failed to push queue item: %w", MapError(err))
	}
	return nil
}

// ClaimNext implements store.QueueStore.
func (s *QueueStore) ClaimNext(
	ctx context.Context,
	workerID string,
	lease time.Duration,
) (*store.ClaimedItem, error) {
	for range claimRetries {
		claimed, err := s.claimOnce(ctx, workerID, lease)
		if errors.Is(err, errClaimLost) {
			continue
		}
		return claimed, err
	}
	return nil, store.ErrQueueEmpty
}

var errClaimLost = errors.New("claim lost to another worker")

func (s *QueueStore) claimOnce(
	ctx context.Context,
	workerID string,
	lease time.Duration,
) (*store.ClaimedItem, error) {
	var claimed *store.ClaimedItem

	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		now := s.now()
		nowMs := now.UnixMilli()

		var row queueItemRow
		selectQuery := `
			SELECT task_id, kind, user_id, args, enqueued_at, claimed_by, lease_until, attempts
			FROM queue_items
			WHERE lease_until <= ?
			ORDER BY enqueued_at ASC, task_id ASC
			LIMIT 1`
		if tx.DriverName() == DriverPostgres {
			selectQuery += ` FOR UPDATE SKIP LOCKED`
		}
		selectQuery = tx.Rebind(selectQuery)
		if err := tx.GetContext(ctx, &row, selectQuery, nowMs); err != nil {
			err = MapError(err)
			if errors.Is(err, store.ErrNotFound) {
				return store.ErrQueueEmpty
			}
			return fmt.Errorf("failed to select queue item: %w", err)
		}

		leaseUntil := now.Add(lease)
		// The lease_until guard makes the claim safe when two transactions
		// selected the same row; only one of them updates it.
		updateQuery := tx.Rebind(`
			UPDATE queue_items
			SET claimed_by = ?, lease_until = ?, attempts = attempts + 1
			WHERE task_id = ? AND lease_until = ?`)
		result, err := tx.ExecContext(ctx, updateQuery,
			workerID, leaseUntil.UnixMilli(), row.TaskID, row.LeaseUntil)
		if err != nil {
			return fmt.Errorf("failed to claim queue item: %w", MapError(err))
		}
		if err := CheckRowsAffected(result, errClaimLost); err != nil {
			return err
		}

		claimed = &store.ClaimedItem{
			Item: domain.QueueItem{
				TaskID:  row.TaskID,
				Kind:    row.Kind,
				OwnerID: row.UserID,
				Args:    json.RawMessage(row.Args),
			},
			Attempts:   row.Attempts + 1,
			LeaseUntil: leaseUntil,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Renew implements store.QueueStore.
func (s *QueueStore) Renew(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) error {
	query := s.db.Rebind(`
		UPDATE queue_items
		SET lease_until = ?
		WHERE task_id = ? AND claimed_by = ?`)

	result, err := s.db.ExecContext(ctx, query, s.now().Add(lease).UnixMilli(), taskID, workerID)
	if err != nil {
		return fmt.Errorf("failed to renew lease: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrNotFound)
}

// Ack implements store.QueueStore.
func (s *QueueStore) Ack(ctx context.Context, taskID uuid.UUID, workerID string) error {
	query := s.db.Rebind(`DELETE FROM queue_items WHERE task_id = ? AND claimed_by = ?`)

	result, err := s.db.ExecContext(ctx, query, taskID, workerID)
	if err != nil {
		return fmt.Errorf("failed to ack queue item: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrNotFound)
}
