// Package feed is the per-user notification feed. Workers and HTTP handlers
// append to it; clients read it incrementally with a timestamp cursor.
package feed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/events"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/sethvargo/go-retry"
)

// DefaultPageSize is the page size Since reads with.
const DefaultPageSize = 100

// Feed wraps a NotificationStore with timestamp collision retries and
// in-process change events.
type Feed struct {
	store    store.NotificationStore
	emitter  events.EventEmitter
	logger   *slog.Logger
	pageSize int
	backoff  func() retry.Backoff
}

// Option configures a Feed.
type Option func(*Feed)

// WithPageSize sets the page size used by Since.
func WithPageSize(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.pageSize = n
		}
	}
}

// WithEmitter makes Append emit an events.NotificationEvent after each insert.
func WithEmitter(e events.EventEmitter) Option {
	return func(f *Feed) { f.emitter = e }
}

// New creates a Feed over s.
func New(s store.NotificationStore, logger *slog.Logger, opts ...Option) *Feed {
	f := &Feed{
		store:    s,
		logger:   logger.With("component", "feed"),
		pageSize: DefaultPageSize,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.NewExponential(5*time.Millisecond))
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Append adds a notification named name with the JSON encoding of payload
// for recipient. Timestamp collisions and a busy store are retried.
func (f *Feed) Append(
	ctx context.Context,
	recipient uuid.UUID,
	name string,
	payload any,
) (*domain.Notification, error) {
	n, err := domain.NewNotification(recipient, name, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to build notification: %w", err)
	}

	err = retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		if err := f.store.Append(ctx, n); err != nil {
			switch {
			case errors.Is(err, store.ErrDuplicate):
				f.logger.Debug("notification timestamp collision, retrying",
					"user_id", recipient,
					"notification", name)
				return retry.RetryableError(err)
			case errors.Is(err, store.ErrUnavailable):
				f.logger.Debug("notification store busy, retrying",
					"user_id", recipient,
					"notification", name)
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append notification %s: %w", name, err)
	}

	if f.emitter != nil {
		if err := f.emitter.EmitEvent(ctx, events.NewNotificationEvent(n)); err != nil {
			// The notification is stored; listeners will catch up on their next read.
			f.logger.Warn("failed to emit notification event",
				"notification_id", n.ID,
				"error", err)
		}
	}

	return n, nil
}

// List returns one page of notifications newer than cursor.
func (f *Feed) List(
	ctx context.Context,
	recipient uuid.UUID,
	cursor float64,
	limit int,
) ([]domain.Notification, error) {
	if limit <= 0 || limit > f.pageSize {
		limit = f.pageSize
	}
	return f.store.ListSince(ctx, recipient, cursor, limit)
}

// Since yields every notification for recipient newer than cursor in
// ascending timestamp order, reading one page at a time as the caller
// iterates. Iteration stops after the first error, which is yielded with a
// zero Notification. Since has no side effects and can be restarted from any
// previously seen timestamp.
func (f *Feed) Since(
	ctx context.Context,
	recipient uuid.UUID,
	cursor float64,
) iter.Seq2[domain.Notification, error] {
	return func(yield func(domain.Notification, error) bool) {
		next := cursor
		for {
			page, err := f.store.ListSince(ctx, recipient, next, f.pageSize)
			if err != nil {
				yield(domain.Notification{}, err)
				return
			}

			for _, n := range page {
				if !yield(n, nil) {
					return
				}
				next = n.Timestamp
			}

			if len(page) < f.pageSize {
				return
			}
		}
	}
}
