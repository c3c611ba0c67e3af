package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
)

type notificationRow struct {
	ID        uuid.UUID `db:"id"`
	UserID    uuid.UUID `db:"user_id"`
	Name      string    `db:"name"`
	Timestamp float64   `db:"ts"`
	Payload   string    `db:"payload"`
}

// NotificationStore implements store.NotificationStore.
type NotificationStore struct {
	db *sqlx.DB
	// now is swapped in tests to pin the clock.
	now func() time.Time
}

// NewNotificationStore creates a new NotificationStore. It needs the pool
// itself rather than a DBTX because Append opens its own transaction.
func NewNotificationStore(db *sqlx.DB) *NotificationStore {
	return &NotificationStore{db: db, now: time.Now}
}

var _ store.NotificationStore = (*NotificationStore)(nil)

// Append implements store.NotificationStore.
func (s *NotificationStore) Append(ctx context.Context, n *domain.Notification) error {
	if err := n.Validate(); err != nil {
		return store.NewStoreError("notification", "append", err.Error(), store.ErrInvalidEntity)
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sqlx.Tx) error {
		if err := lockRecipient(ctx, tx, n.UserID); err != nil {
			return err
		}

		var last float64
		maxQuery := tx.Rebind(`SELECT COALESCE(MAX(ts), 0) FROM notifications WHERE user_id = ?`)
		if err := tx.GetContext(ctx, &last, maxQuery, n.UserID); err != nil {
			return fmt.Errorf("failed to read last notification timestamp: %w", MapError(err))
		}

		ts := domain.NextTimestamp(last, domain.UnixSeconds(s.now()))

		insert := tx.Rebind(`
			INSERT INTO notifications (id, user_id, name, ts, payload)
			VALUES (?, ?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insert,
			n.ID, n.UserID, n.Name, ts, string(n.Payload),
		); err != nil {
			return fmt.Errorf("failed to append notification: %w", MapError(err))
		}

		n.Timestamp = ts
		return nil
	})
}

// lockRecipient serializes appends for one recipient until the transaction
// ends. SQLite needs nothing here: its transactions begin immediate and hold
// the database write lock.
func lockRecipient(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) error {
	if tx.DriverName() != DriverPostgres {
		return nil
	}
	if _, err := tx.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1))`, userID.String(),
	); err != nil {
		return fmt.Errorf("failed to lock notification feed: %w", MapError(err))
	}
	return nil
}

// ListSince implements store.NotificationStore.
func (s *NotificationStore) ListSince(
	ctx context.Context,
	userID uuid.UUID,
	cursor float64,
	limit int,
) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	query := s.db.Rebind(`
		SELECT id, user_id, name, ts, payload
		FROM notifications
		WHERE user_id = ? AND ts > ?
		ORDER BY ts ASC
		LIMIT ?`)

	var rows []notificationRow
	if err := s.db.SelectContext(ctx, &rows, query, userID, cursor, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", MapError(err))
	}

	out := make([]domain.Notification, len(rows))
	for i, row := range rows {
		out[i] = domain.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			Name:      row.Name,
			Timestamp: row.Timestamp,
			Payload:   json.RawMessage(row.Payload),
		}
	}
	return out, nil
}
