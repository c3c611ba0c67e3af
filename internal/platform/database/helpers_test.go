package database

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/stretchr/testify/require"
)

// openTestDB mirrors testdb.GetTestDBWithT for tests inside this package,
// which cannot import testdb without a cycle.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	ctx := context.Background()
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := Open(ctx, ":memory:", Options{}, silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, MigrateUp, silent))
	return db
}

// openSharedFileDBs opens n independent handles on one migrated database file,
// standing in for n processes sharing a deployment.
func openSharedFileDBs(t *testing.T, n int) []*sqlx.DB {
	t.Helper()

	ctx := context.Background()
	silent := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "shared.db")

	dbs := make([]*sqlx.DB, n)
	for i := range dbs {
		db, err := Open(ctx, path, Options{}, silent)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		dbs[i] = db
	}

	require.NoError(t, Migrate(ctx, dbs[0], MigrateUp, silent))
	return dbs
}

func createTestUser(t *testing.T, db *sqlx.DB) uuid.UUID {
	t.Helper()

	suffix := uuid.NewString()[:8]
	user, err := domain.NewUser("u"+suffix, "u"+suffix+"@example.com")
	require.NoError(t, err)
	require.NoError(t, NewUserStore(db).Create(context.Background(), user))
	return user.ID
}
