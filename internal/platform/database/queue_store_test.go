package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time          { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newQueueItem() domain.QueueItem {
	return domain.QueueItem{
		TaskID:  uuid.New(),
		Kind:    domain.TaskKindExample,
		OwnerID: uuid.New(),
		Args:    json.RawMessage(`{"seconds":2}`),
	}
}

func newTestQueue(t *testing.T) (*QueueStore, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(1_700_000_000, 0)}
	q := NewQueueStore(openTestDB(t))
	q.now = clock.now
	return q, clock
}

func TestQueueStore_PushClaimAck(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t)
	ctx := context.Background()

	first := newQueueItem()
	require.NoError(t, q.Push(ctx, first))
	clock.advance(time.Millisecond)
	second := newQueueItem()
	require.NoError(t, q.Push(ctx, second))

	claimed, err := q.ClaimNext(ctx, "worker-a", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.TaskID, claimed.Item.TaskID, "oldest item first")
	assert.Equal(t, first.OwnerID, claimed.Item.OwnerID)
	assert.JSONEq(t, `{"seconds":2}`, string(claimed.Item.Args))
	assert.Equal(t, 1, claimed.Attempts)
	assert.Equal(t, clock.t.Add(30*time.Second).UnixMilli(), claimed.LeaseUntil.UnixMilli())

	claimed2, err := q.ClaimNext(ctx, "worker-b", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, second.TaskID, claimed2.Item.TaskID)

	_, err = q.ClaimNext(ctx, "worker-c", 30*time.Second)
	assert.ErrorIs(t, err, store.ErrQueueEmpty)

	assert.ErrorIs(t, q.Ack(ctx, first.TaskID, "worker-b"), store.ErrNotFound, "only the holder may ack")
	require.NoError(t, q.Ack(ctx, first.TaskID, "worker-a"))
	assert.ErrorIs(t, q.Ack(ctx, first.TaskID, "worker-a"), store.ErrNotFound)
}

func TestQueueStore_PushIsIdempotent(t *testing.T) {
	t.Parallel()
	q, _ := newTestQueue(t)
	ctx := context.Background()

	item := newQueueItem()
	require.NoError(t, q.Push(ctx, item))
	require.NoError(t, q.Push(ctx, item))

	_, err := q.ClaimNext(ctx, "w", time.Minute)
	require.NoError(t, err)
	_, err = q.ClaimNext(ctx, "w", time.Minute)
	assert.ErrorIs(t, err, store.ErrQueueEmpty)
}

func TestQueueStore_ExpiredLeaseIsReclaimed(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t)
	ctx := context.Background()

	item := newQueueItem()
	require.NoError(t, q.Push(ctx, item))

	_, err := q.ClaimNext(ctx, "crashed", 10*time.Second)
	require.NoError(t, err)

	clock.advance(5 * time.Second)
	_, err = q.ClaimNext(ctx, "other", 10*time.Second)
	assert.ErrorIs(t, err, store.ErrQueueEmpty, "lease still held")

	clock.advance(6 * time.Second)
	claimed, err := q.ClaimNext(ctx, "other", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, item.TaskID, claimed.Item.TaskID)
	assert.Equal(t, 2, claimed.Attempts)

	// The original holder lost its lease.
	assert.ErrorIs(t, q.Renew(ctx, item.TaskID, "crashed", time.Minute), store.ErrNotFound)
	assert.ErrorIs(t, q.Ack(ctx, item.TaskID, "crashed"), store.ErrNotFound)
}

func TestQueueStore_RenewExtendsLease(t *testing.T) {
	t.Parallel()
	q, clock := newTestQueue(t)
	ctx := context.Background()

	item := newQueueItem()
	require.NoError(t, q.Push(ctx, item))
	_, err := q.ClaimNext(ctx, "holder", 10*time.Second)
	require.NoError(t, err)

	clock.advance(8 * time.Second)
	require.NoError(t, q.Renew(ctx, item.TaskID, "holder", 10*time.Second))

	clock.advance(8 * time.Second)
	_, err = q.ClaimNext(ctx, "thief", 10*time.Second)
	assert.ErrorIs(t, err, store.ErrQueueEmpty)

	assert.ErrorIs(t, q.Renew(ctx, uuid.New(), "holder", time.Second), store.ErrNotFound)
}

func TestQueueStore_ConcurrentClaimsAcrossHandles(t *testing.T) {
	t.Parallel()
	dbs := openSharedFileDBs(t, 2)
	ctx := context.Background()

	const items = 20
	pusher := NewQueueStore(dbs[0])
	for range items {
		require.NoError(t, pusher.Push(ctx, newQueueItem()))
	}

	var (
		mu     sync.Mutex
		claims = map[uuid.UUID]int{}
		errs   []error
		wg     sync.WaitGroup
	)
	for i, db := range dbs {
		q := NewQueueStore(db)
		workerID := fmt.Sprintf("worker-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := q.ClaimNext(ctx, workerID, time.Minute)
				mu.Lock()
				switch {
				case errors.Is(err, store.ErrQueueEmpty):
					mu.Unlock()
					return
				case err != nil:
					errs = append(errs, err)
					mu.Unlock()
					return
				}
				claims[claimed.Item.TaskID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, errs)
	assert.Len(t, claims, items)
	for id, n := range claims {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}
