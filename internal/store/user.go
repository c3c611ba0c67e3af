package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
)

// UserStore defines the interface for user data persistence.
type UserStore interface {
	// Create saves a new user to the store.
	// Returns ErrDuplicate if the username or email is already taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique ID.
	// Returns ErrUserNotFound if the user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// PostStore defines the interface for post persistence.
type PostStore interface {
	// Create saves a new post.
	Create(ctx context.Context, post *domain.Post) error

	// ListByUser returns every post authored by userID, oldest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Post, error)
}
