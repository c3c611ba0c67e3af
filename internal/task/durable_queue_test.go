package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/phrazzld/microblog/internal/task/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDurableQueue_EnqueuePushes(t *testing.T) {
	var pushed []domain.QueueItem
	qs := &mocks.QueueStore{
		PushFunc: func(_ context.Context, item domain.QueueItem) error {
			pushed = append(pushed, item)
			return nil
		},
	}
	q := NewDurableQueue(qs, DurableQueueConfig{WorkerID: "w1"}, setupTestLogger())

	item := newTestItem("example")
	require.NoError(t, q.Enqueue(context.Background(), item))
	assert.Equal(t, []domain.QueueItem{item}, pushed)

	q.Close()
	assert.ErrorIs(t, q.Enqueue(context.Background(), item), ErrQueueClosed)
}

func TestDurableQueue_EnqueueWrapsStoreError(t *testing.T) {
	qs := &mocks.QueueStore{
		PushFunc: func(context.Context, domain.QueueItem) error { return store.ErrUnavailable },
	}
	q := NewDurableQueue(qs, DurableQueueConfig{WorkerID: "w1"}, setupTestLogger())
	defer q.Close()

	err := q.Enqueue(context.Background(), newTestItem("example"))
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestDurableQueue_StartRequiresWorkerID(t *testing.T) {
	q := NewDurableQueue(&mocks.QueueStore{}, DurableQueueConfig{}, setupTestLogger())
	defer q.Close()

	assert.Error(t, q.Start())
}

func TestDurableQueue_DeliversClaimedItems(t *testing.T) {
	item := newTestItem("example")

	var mu sync.Mutex
	claimed := false
	var ackedID, renewedID uuid.UUID
	var ackWorker, renewWorker string
	var renewLease time.Duration

	qs := &mocks.QueueStore{
		ClaimNextFunc: func(_ context.Context, workerID string, lease time.Duration) (*store.ClaimedItem, error) {
			mu.Lock()
			defer mu.Unlock()
			if claimed {
				return nil, store.ErrQueueEmpty
			}
			claimed = true
			return &store.ClaimedItem{Item: item, Attempts: 2, LeaseUntil: time.Now().Add(lease)}, nil
		},
		AckFunc: func(_ context.Context, taskID uuid.UUID, workerID string) error {
			ackedID, ackWorker = taskID, workerID
			return nil
		},
		RenewFunc: func(_ context.Context, taskID uuid.UUID, workerID string, lease time.Duration) error {
			renewedID, renewWorker, renewLease = taskID, workerID, lease
			return nil
		},
	}

	q := NewDurableQueue(qs, DurableQueueConfig{
		WorkerID:     "w1",
		PollInterval: 10 * time.Millisecond,
		Lease:        time.Minute,
	}, setupTestLogger())
	require.NoError(t, q.Start())
	defer q.Close()

	var d Delivery
	select {
	case d = <-q.GetChannel():
	case <-time.After(time.Second):
		t.Fatal("no delivery received")
	}

	assert.Equal(t, item, d.Item)
	assert.Equal(t, 2, d.Attempts)

	require.NoError(t, d.Renew(context.Background()))
	assert.Equal(t, item.TaskID, renewedID)
	assert.Equal(t, "w1", renewWorker)
	assert.Equal(t, time.Minute, renewLease)

	assert.True(t, d.Durable())
	require.NoError(t, d.Release(context.Background()))
	assert.Equal(t, item.TaskID, renewedID)
	assert.Zero(t, renewLease, "released items are claimable at once")

	require.NoError(t, d.Ack(context.Background()))
	assert.Equal(t, item.TaskID, ackedID)
	assert.Equal(t, "w1", ackWorker)
}

func TestDurableQueue_KeepsPollingAfterErrors(t *testing.T) {
	item := newTestItem("example")
	var mu sync.Mutex
	calls := 0

	qs := &mocks.QueueStore{
		ClaimNextFunc: func(context.Context, string, time.Duration) (*store.ClaimedItem, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			switch calls {
			case 1:
				return nil, errors.New("connection reset")
			case 2:
				return nil, store.ErrQueueEmpty
			case 3:
				return &store.ClaimedItem{Item: item, Attempts: 1}, nil
			default:
				return nil, store.ErrQueueEmpty
			}
		},
	}

	q := NewDurableQueue(qs, DurableQueueConfig{WorkerID: "w1", PollInterval: 5 * time.Millisecond}, setupTestLogger())
	require.NoError(t, q.Start())
	defer q.Close()

	select {
	case d := <-q.GetChannel():
		assert.Equal(t, item.TaskID, d.Item.TaskID)
	case <-time.After(time.Second):
		t.Fatal("no delivery received")
	}
}

func TestDurableQueue_CloseClosesChannel(t *testing.T) {
	q := NewDurableQueue(&mocks.QueueStore{}, DurableQueueConfig{
		WorkerID:     "w1",
		PollInterval: 5 * time.Millisecond,
	}, setupTestLogger())
	require.NoError(t, q.Start())

	q.Close()
	q.Close()

	_, ok := <-q.GetChannel()
	assert.False(t, ok)
	assert.ErrorIs(t, q.Start(), ErrQueueClosed)
}
