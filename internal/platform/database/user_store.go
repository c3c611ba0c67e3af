package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
)

// UserStore implements store.UserStore.
type UserStore struct {
	db store.DBTX
}

// NewUserStore creates a new UserStore.
func NewUserStore(db store.DBTX) *UserStore {
	return &UserStore{db: db}
}

var _ store.UserStore = (*UserStore)(nil)

// Create implements store.UserStore.
func (s *UserStore) Create(ctx context.Context, user *domain.User) error {
	if err := user.Validate(); err != nil {
		return store.NewStoreError("user", "create", err.Error(), store.ErrInvalidEntity)
	}

	query := s.db.Rebind(`
		INSERT INTO users (id, username, email, created_at)
		VALUES (?, ?, ?, ?)`)

	if _, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.Email, user.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to create user: %w", MapError(err))
	}
	return nil
}

// GetByID implements store.UserStore.
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := s.db.Rebind(`SELECT id, username, email, created_at FROM users WHERE id = ?`)

	var user domain.User
	if err := s.db.GetContext(ctx, &user, query, id); err != nil {
		err = MapError(err)
		if errors.Is(err, store.ErrNotFound) {
			return nil, store.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
