// Package mocks provides mock implementations for testing task components.
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/platform/mail"
	"github.com/phrazzld/microblog/internal/store"
)

// TaskRecordStore is a function-field implementation of store.TaskRecordStore.
type TaskRecordStore struct {
	GetFunc            func(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error)
	UpsertFunc         func(ctx context.Context, rec *domain.TaskRecord) error
	FindIncompleteFunc func(ctx context.Context, ownerID uuid.UUID, kind string) (*domain.TaskRecord, error)
	UpdateProgressFunc func(ctx context.Context, id uuid.UUID, percent int) (bool, error)
	MarkCompleteFunc   func(ctx context.Context, id uuid.UUID) error
	ListIncompleteFunc func(ctx context.Context, updatedBefore time.Time) ([]*domain.TaskRecord, error)
}

var _ store.TaskRecordStore = (*TaskRecordStore)(nil)

// Get retrieves a task record by ID.
func (m *TaskRecordStore) Get(ctx context.Context, id uuid.UUID) (*domain.TaskRecord, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	return nil, store.ErrTaskNotFound
}

// Upsert saves a task record.
func (m *TaskRecordStore) Upsert(ctx context.Context, rec *domain.TaskRecord) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, rec)
	}
	return nil
}

// FindIncomplete returns the owner's incomplete record of a kind.
func (m *TaskRecordStore) FindIncomplete(
	ctx context.Context,
	ownerID uuid.UUID,
	kind string,
) (*domain.TaskRecord, error) {
	if m.FindIncompleteFunc != nil {
		return m.FindIncompleteFunc(ctx, ownerID, kind)
	}
	return nil, store.ErrTaskNotFound
}

// UpdateProgress stores a progress value.
func (m *TaskRecordStore) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) (bool, error) {
	if m.UpdateProgressFunc != nil {
		return m.UpdateProgressFunc(ctx, id, percent)
	}
	return true, nil
}

// MarkComplete moves a record to its terminal state.
func (m *TaskRecordStore) MarkComplete(ctx context.Context, id uuid.UUID) error {
	if m.MarkCompleteFunc != nil {
		return m.MarkCompleteFunc(ctx, id)
	}
	return nil
}

// ListIncomplete returns stale incomplete records.
func (m *TaskRecordStore) ListIncomplete(ctx context.Context, updatedBefore time.Time) ([]*domain.TaskRecord, error) {
	if m.ListIncompleteFunc != nil {
		return m.ListIncompleteFunc(ctx, updatedBefore)
	}
	return nil, nil
}

// UserStore is a function-field implementation of store.UserStore.
type UserStore struct {
	CreateFunc  func(ctx context.Context, user *domain.User) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

var _ store.UserStore = (*UserStore)(nil)

// Create saves a user.
func (m *UserStore) Create(ctx context.Context, user *domain.User) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, user)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, store.ErrUserNotFound
}

// PostStore is a function-field implementation of store.PostStore.
type PostStore struct {
	CreateFunc     func(ctx context.Context, post *domain.Post) error
	ListByUserFunc func(ctx context.Context, userID uuid.UUID) ([]domain.Post, error)
}

var _ store.PostStore = (*PostStore)(nil)

// Create saves a post.
func (m *PostStore) Create(ctx context.Context, post *domain.Post) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, post)
	}
	return nil
}

// ListByUser returns a user's posts.
func (m *PostStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Post, error) {
	if m.ListByUserFunc != nil {
		return m.ListByUserFunc(ctx, userID)
	}
	return nil, nil
}

// QueueStore is a function-field implementation of store.QueueStore.
type QueueStore struct {
	PushFunc      func(ctx context.Context, item domain.QueueItem) error
	ClaimNextFunc func(ctx context.Context, workerID string, lease time.Duration) (*store.ClaimedItem, error)
	RenewFunc     func(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) error
	AckFunc       func(ctx context.Context, taskID uuid.UUID, workerID string) error
}

var _ store.QueueStore = (*QueueStore)(nil)

// Push adds an item.
func (m *QueueStore) Push(ctx context.Context, item domain.QueueItem) error {
	if m.PushFunc != nil {
		return m.PushFunc(ctx, item)
	}
	return nil
}

// ClaimNext leases the next item.
func (m *QueueStore) ClaimNext(ctx context.Context, workerID string, lease time.Duration) (*store.ClaimedItem, error) {
	if m.ClaimNextFunc != nil {
		return m.ClaimNextFunc(ctx, workerID, lease)
	}
	return nil, store.ErrQueueEmpty
}

// Renew extends a lease.
func (m *QueueStore) Renew(ctx context.Context, taskID uuid.UUID, workerID string, lease time.Duration) error {
	if m.RenewFunc != nil {
		return m.RenewFunc(ctx, taskID, workerID, lease)
	}
	return nil
}

// Ack deletes an item.
func (m *QueueStore) Ack(ctx context.Context, taskID uuid.UUID, workerID string) error {
	if m.AckFunc != nil {
		return m.AckFunc(ctx, taskID, workerID)
	}
	return nil
}

// Sender records sent messages and optionally fails.
type Sender struct {
	SendFunc func(ctx context.Context, msg mail.Message) error

	mu   sync.Mutex
	sent []mail.Message
}

// Send records msg, then calls SendFunc if set.
func (m *Sender) Send(ctx context.Context, msg mail.Message) error {
	if m.SendFunc != nil {
		if err := m.SendFunc(ctx, msg); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	return nil
}

// Sent returns the messages delivered so far.
func (m *Sender) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.sent...)
}

// Notifier records appended notifications and optionally fails.
type Notifier struct {
	AppendFunc func(ctx context.Context, recipient uuid.UUID, name string, payload any) (*domain.Notification, error)

	mu    sync.Mutex
	calls []domain.Notification
}

// Append records the notification, then calls AppendFunc if set.
func (m *Notifier) Append(
	ctx context.Context,
	recipient uuid.UUID,
	name string,
	payload any,
) (*domain.Notification, error) {
	if m.AppendFunc != nil {
		if n, err := m.AppendFunc(ctx, recipient, name, payload); err != nil || n != nil {
			return n, err
		}
	}

	n, err := domain.NewNotification(recipient, name, payload)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, *n)
	m.mu.Unlock()
	return n, nil
}

// Notifications returns the recorded notifications in order.
func (m *Notifier) Notifications() []domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Notification(nil), m.calls...)
}
