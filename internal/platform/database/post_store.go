package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
)

// PostStore implements store.PostStore.
type PostStore struct {
	db store.DBTX
}

// NewPostStore creates a new PostStore.
func NewPostStore(db store.DBTX) *PostStore {
	return &PostStore{db: db}
}

var _ store.PostStore = (*PostStore)(nil)

// Create implements store.PostStore.
func (s *PostStore) Create(ctx context.Context, post *domain.Post) error {
	if err := post.Validate(); err != nil {
		return store.NewStoreError("post", "create", err.Error(), store.ErrInvalidEntity)
	}

	query := s.db.Rebind(`
		INSERT INTO posts (id, user_id, body, created_at)
		VALUES (?, ?, ?, ?)`)

	if _, err := s.db.ExecContext(ctx, query,
		post.ID, post.UserID, post.Body, post.CreatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to create post: %w", MapError(err))
	}
	return nil
}

// ListByUser implements store.PostStore.
func (s *PostStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Post, error) {
	query := s.db.Rebind(`
		SELECT id, user_id, body, created_at
		FROM posts
		WHERE user_id = ?
		ORDER BY created_at ASC, id ASC`)

	posts := []domain.Post{}
	if err := s.db.SelectContext(ctx, &posts, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", MapError(err))
	}
	return posts, nil
}
