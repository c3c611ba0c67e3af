package testdb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/platform/database"
	"github.com/phrazzld/microblog/internal/store"
)

// GetTestDBWithT opens a migrated in-memory database and registers cleanup.
func GetTestDBWithT(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := database.Open(ctx, "sqlite://:memory:", database.Options{}, silent)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})

	if err := database.Migrate(ctx, db, database.MigrateUp, silent); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// WithTx runs fn inside a transaction that is always rolled back.
func WithTx(t *testing.T, db *sqlx.DB, fn func(t *testing.T, tx *sqlx.Tx)) {
	t.Helper()

	tx, err := db.BeginTxx(context.Background(), nil)
	if err != nil {
		t.Fatalf("failed to begin transaction: %v", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil {
			t.Logf("failed to roll back test transaction: %v", err)
		}
	}()

	fn(t, tx)
}

// CreateUser inserts a user with a unique name and returns it.
func CreateUser(t *testing.T, db store.DBTX) *domain.User {
	t.Helper()

	suffix := uuid.NewString()[:8]
	user, err := domain.NewUser("user-"+suffix, fmt.Sprintf("user-%s@example.com", suffix))
	if err != nil {
		t.Fatalf("failed to build user: %v", err)
	}

	if err := database.NewUserStore(db).Create(context.Background(), user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

// CreatePosts inserts one post per body for the user, one second apart in
// the given order, and returns them.
func CreatePosts(t *testing.T, db store.DBTX, userID uuid.UUID, bodies ...string) []*domain.Post {
	t.Helper()

	posts := database.NewPostStore(db)
	base := time.Now().UTC().Add(-time.Duration(len(bodies)) * time.Second).Truncate(time.Second)

	out := make([]*domain.Post, 0, len(bodies))
	for i, body := range bodies {
		post, err := domain.NewPost(userID, body)
		if err != nil {
			t.Fatalf("failed to build post: %v", err)
		}
		post.CreatedAt = base.Add(time.Duration(i) * time.Second)

		if err := posts.Create(context.Background(), post); err != nil {
			t.Fatalf("failed to create post: %v", err)
		}
		out = append(out, post)
	}
	return out
}
