package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyPostBody is returned when a post has no text.
var ErrEmptyPostBody = errors.New("post body cannot be empty")

// Post is a single microblog entry. The export task streams a user's posts
// oldest-first.
type Post struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Body      string    `json:"body" db:"body"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPost creates a new Post authored by userID.
func NewPost(userID uuid.UUID, body string) (*Post, error) {
	post := &Post{
		ID:        uuid.New(),
		UserID:    userID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	if err := post.Validate(); err != nil {
		return nil, err
	}

	return post, nil
}

// Validate checks if the Post has valid data.
func (p *Post) Validate() error {
	if p.ID == uuid.Nil {
		return ErrInvalidID
	}
	if p.UserID == uuid.Nil {
		return ErrEmptyUserID
	}
	if strings.TrimSpace(p.Body) == "" {
		return ErrEmptyPostBody
	}
	return nil
}
