package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNotification(t *testing.T, user uuid.UUID, name string, progress int) *domain.Notification {
	t.Helper()
	n, err := domain.NewNotification(user, name, domain.TaskProgressPayload{TaskID: uuid.New(), Progress: progress})
	require.NoError(t, err)
	return n
}

func TestNotificationStore_AppendAssignsIncreasingTimestamps(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	user := createTestUser(t, db)
	ctx := context.Background()

	s := NewNotificationStore(db)
	frozen := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return frozen }

	var stamps []float64
	for i := range 3 {
		n := newNotification(t, user, domain.NotificationTaskProgress, i*10)
		require.NoError(t, s.Append(ctx, n))
		stamps = append(stamps, n.Timestamp)
	}

	assert.Equal(t, float64(1_700_000_000), stamps[0])
	assert.Greater(t, stamps[1], stamps[0])
	assert.Greater(t, stamps[2], stamps[1])

	// A clock that moved backwards still yields a later timestamp.
	s.now = func() time.Time { return frozen.Add(-time.Hour) }
	n := newNotification(t, user, domain.NotificationTaskComplete, 100)
	require.NoError(t, s.Append(ctx, n))
	assert.Greater(t, n.Timestamp, stamps[2])
}

func TestNotificationStore_TimestampsArePerRecipient(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	alice := createTestUser(t, db)
	bob := createTestUser(t, db)
	ctx := context.Background()

	s := NewNotificationStore(db)
	frozen := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return frozen }

	a := newNotification(t, alice, domain.NotificationTaskProgress, 10)
	b := newNotification(t, bob, domain.NotificationTaskProgress, 10)
	require.NoError(t, s.Append(ctx, a))
	require.NoError(t, s.Append(ctx, b))

	assert.Equal(t, a.Timestamp, b.Timestamp)
}

func TestNotificationStore_ListSince(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	user := createTestUser(t, db)
	other := createTestUser(t, db)
	ctx := context.Background()
	s := NewNotificationStore(db)

	var appended []*domain.Notification
	for i := range 5 {
		n := newNotification(t, user, domain.NotificationTaskProgress, i*20)
		require.NoError(t, s.Append(ctx, n))
		appended = append(appended, n)
	}
	require.NoError(t, s.Append(ctx, newNotification(t, other, domain.NotificationTaskProgress, 1)))

	all, err := s.ListSince(ctx, user, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := range all {
		assert.Equal(t, appended[i].ID, all[i].ID)
		assert.Equal(t, appended[i].Timestamp, all[i].Timestamp)
		assert.JSONEq(t, string(appended[i].Payload), string(all[i].Payload))
	}

	page, err := s.ListSince(ctx, user, appended[1].Timestamp, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, appended[2].ID, page[0].ID)
	assert.Equal(t, appended[3].ID, page[1].ID)

	// The cursor equal to the newest timestamp yields nothing.
	empty, err := s.ListSince(ctx, user, appended[4].Timestamp, 100)
	require.NoError(t, err)
	assert.Empty(t, empty)

	// Reading is side-effect free.
	again, err := s.ListSince(ctx, user, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, all, again)
}

func TestNotificationStore_ConcurrentAppendsStayUnique(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	user := createTestUser(t, db)
	ctx := context.Background()
	s := NewNotificationStore(db)

	const writers = 20
	pending := make([]*domain.Notification, writers)
	for i := range pending {
		pending[i] = newNotification(t, user, domain.NotificationTaskProgress, i)
	}

	var wg sync.WaitGroup
	for _, n := range pending {
		wg.Add(1)
		go func(n *domain.Notification) {
			defer wg.Done()
			assert.NoError(t, s.Append(ctx, n))
		}(n)
	}
	wg.Wait()

	all, err := s.ListSince(ctx, user, 0, 100)
	require.NoError(t, err)
	require.Len(t, all, writers)

	seen := make(map[float64]bool, writers)
	for _, n := range all {
		assert.False(t, seen[n.Timestamp], "duplicate timestamp %v", n.Timestamp)
		seen[n.Timestamp] = true
	}
}

func TestNotificationStore_RejectsInvalid(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	s := NewNotificationStore(db)

	err := s.Append(context.Background(), &domain.Notification{ID: uuid.New(), UserID: uuid.New()})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestNotificationStore_ConcurrentAppendsAcrossHandles(t *testing.T) {
	t.Parallel()
	dbs := openSharedFileDBs(t, 2)
	user := createTestUser(t, dbs[0])
	ctx := context.Background()

	frozen := time.Unix(1_700_000_000, 0)
	const perHandle = 20

	var wg sync.WaitGroup
	errs := make(chan error, len(dbs)*perHandle)
	for _, db := range dbs {
		s := NewNotificationStore(db)
		s.now = func() time.Time { return frozen }
		batch := make([]*domain.Notification, perHandle)
		for i := range batch {
			batch[i] = newNotification(t, user, domain.NotificationTaskProgress, i)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, n := range batch {
				errs <- s.Append(ctx, n)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := NewNotificationStore(dbs[1]).ListSince(ctx, user, 0, 100)
	require.NoError(t, err)
	require.Len(t, got, len(dbs)*perHandle)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i].Timestamp, got[i-1].Timestamp)
	}
}
