package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/phrazzld/microblog/internal/task/mocks"
	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDelivery builds a delivery whose ack calls are counted.
func recordingDelivery(item domain.QueueItem, acks *atomic.Int32) Delivery {
	return NewDelivery(item, 1, func(context.Context) error {
		acks.Add(1)
		return nil
	}, nil)
}

type runnerFixture struct {
	runner   *Runner
	registry *Registry
	records  *mocks.TaskRecordStore
	notifier *mocks.Notifier
	queue    *TaskQueue
	rec      *domain.TaskRecord

	mu        sync.Mutex
	completed []uuid.UUID
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	rec, err := domain.NewTaskRecord(uuid.New(), "test", "testing", nil)
	require.NoError(t, err)

	f := &runnerFixture{
		registry: NewRegistry(),
		notifier: &mocks.Notifier{},
		queue:    NewTaskQueue(10, setupTestLogger()),
		rec:      rec,
	}
	f.records = &mocks.TaskRecordStore{
		GetFunc: func(_ context.Context, id uuid.UUID) (*domain.TaskRecord, error) {
			if id != rec.ID {
				return nil, store.ErrTaskNotFound
			}
			return rec, nil
		},
		MarkCompleteFunc: func(_ context.Context, id uuid.UUID) error {
			f.mu.Lock()
			f.completed = append(f.completed, id)
			f.mu.Unlock()
			return nil
		},
	}

	r, err := NewRunner(f.registry, f.records, f.notifier, f.queue, RunnerConfig{WorkerCount: 1}, setupTestLogger())
	require.NoError(t, err)
	r.terminalBackoff = func() retry.Backoff {
		return retry.WithMaxRetries(3, retry.NewConstant(time.Millisecond))
	}
	f.runner = r
	return f
}

func (f *runnerFixture) completedIDs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID(nil), f.completed...)
}

func (f *runnerFixture) completion(t *testing.T) domain.TaskCompletePayload {
	t.Helper()

	for _, n := range f.notifier.Notifications() {
		if n.Name == domain.NotificationTaskComplete {
			var p domain.TaskCompletePayload
			require.NoError(t, n.DecodePayload(&p))
			return p
		}
	}
	t.Fatal("no task_complete notification")
	return domain.TaskCompletePayload{}
}

func TestNewRunner_NilDependency(t *testing.T) {
	_, err := NewRunner(nil, nil, nil, nil, DefaultRunnerConfig(), setupTestLogger())
	assert.ErrorIs(t, err, ErrNilDependency)
}

func TestRunnerProcess_Success(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(ctx context.Context, job *Job) error {
		assert.Equal(t, f.rec.ID, job.ID)
		job.ReportProgress(ctx, 50)
		return nil
	})))

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))
	require.NoError(t, err)

	assert.Equal(t, []uuid.UUID{f.rec.ID}, f.completedIDs())
	assert.Equal(t, int32(1), acks.Load())

	notes := f.notifier.Notifications()
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotificationTaskProgress, notes[0].Name)
	assert.Equal(t, domain.NotificationTaskComplete, notes[1].Name)

	p := f.completion(t)
	assert.Equal(t, domain.TaskOutcomeSucceeded, p.Outcome)
	assert.Equal(t, 100, p.Progress)
	assert.Empty(t, p.Error)
}

func TestRunnerProcess_HandlerError(t *testing.T) {
	f := newRunnerFixture(t)
	cause := errors.New("disk full")
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		return cause
	})))

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, f.rec.ID, execErr.TaskID)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, []uuid.UUID{f.rec.ID}, f.completedIDs())
	assert.Equal(t, int32(1), acks.Load())

	p := f.completion(t)
	assert.Equal(t, domain.TaskOutcomeFailed, p.Outcome)
	assert.Equal(t, 100, p.Progress)
	assert.Contains(t, p.Error, "disk full")
}

func TestRunnerProcess_Panic(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		panic("nil map write")
	})))

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "nil map write", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)

	assert.Equal(t, []uuid.UUID{f.rec.ID}, f.completedIDs())
	assert.Equal(t, int32(1), acks.Load())
	assert.Equal(t, domain.TaskOutcomeFailed, f.completion(t).Outcome)
}

func TestRunnerProcess_UnregisteredKind(t *testing.T) {
	f := newRunnerFixture(t)

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))
	assert.ErrorIs(t, err, ErrUnknownKind)

	assert.Equal(t, []uuid.UUID{f.rec.ID}, f.completedIDs())
	assert.Equal(t, int32(1), acks.Load())
}

func TestRunnerProcess_CancelledContextStillCompletes(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	})))
	f.records.MarkCompleteFunc = func(ctx context.Context, id uuid.UUID) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f.mu.Lock()
		f.completed = append(f.completed, id)
		f.mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var acks atomic.Int32
	err := f.runner.process(ctx, 0, recordingDelivery(f.rec.Item(), &acks))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []uuid.UUID{f.rec.ID}, f.completedIDs())
	assert.Equal(t, int32(1), acks.Load())
}

func TestRunnerProcess_TerminalWriteRetried(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		return nil
	})))

	var attempts atomic.Int32
	f.records.MarkCompleteFunc = func(context.Context, uuid.UUID) error {
		if attempts.Add(1) < 3 {
			return store.ErrUnavailable
		}
		return nil
	}

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))
	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(1), acks.Load())
}

func TestRunnerProcess_TerminalWriteFailureLeavesDeliveryUnacked(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		return nil
	})))
	f.records.MarkCompleteFunc = func(context.Context, uuid.UUID) error {
		return store.ErrUnavailable
	}

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))
	assert.ErrorIs(t, err, store.ErrUnavailable)

	var execErr *ExecutionError
	assert.False(t, errors.As(err, &execErr))
	assert.Equal(t, int32(0), acks.Load())
	assert.Empty(t, f.notifier.Notifications())
}

func TestRunner_TerminalWriteFailureRecoveredBySweep(t *testing.T) {
	f := newRunnerFixture(t)
	var runs atomic.Int32
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		runs.Add(1)
		return nil
	})))

	// The first run exhausts the terminal retries; the store recovers after.
	var writes atomic.Int32
	f.records.MarkCompleteFunc = func(_ context.Context, id uuid.UUID) error {
		if writes.Add(1) <= 4 {
			return store.ErrUnavailable
		}
		f.mu.Lock()
		f.completed = append(f.completed, id)
		f.mu.Unlock()
		return nil
	}
	f.records.ListIncompleteFunc = func(context.Context, time.Time) ([]*domain.TaskRecord, error) {
		if len(f.completedIDs()) > 0 {
			return nil, nil
		}
		return []*domain.TaskRecord{f.rec}, nil
	}

	require.NoError(t, f.runner.Start(context.Background()))
	defer f.runner.Stop()

	assert.Eventually(t, func() bool {
		_, _ = f.runner.Recover(context.Background(), 0)
		return len(f.completedIDs()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, runs.Load(), int32(2))
	assert.Equal(t, domain.TaskOutcomeSucceeded, f.completion(t).Outcome)
}

func TestRunnerProcess_ShutdownLeavesDurableDeliveryIncomplete(t *testing.T) {
	f := newRunnerFixture(t)
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(ctx context.Context, _ *Job) error {
		<-ctx.Done()
		return ctx.Err()
	})))

	var acks, releases atomic.Int32
	d := recordingDelivery(f.rec.Item(), &acks).WithRelease(func(context.Context) error {
		releases.Add(1)
		return nil
	})
	d.durable = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.runner.process(ctx, 0, d)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.completedIDs())
	assert.Empty(t, f.notifier.Notifications())
	assert.Equal(t, int32(0), acks.Load())

	f.runner.abandon(d, err)
	assert.Equal(t, int32(1), releases.Load())
}

func TestRunnerProcess_InflightSkipDoesNotRelease(t *testing.T) {
	f := newRunnerFixture(t)
	require.True(t, f.runner.acquire(f.rec.ID))
	defer f.runner.release(f.rec.ID)

	var acks, releases atomic.Int32
	d := recordingDelivery(f.rec.Item(), &acks).WithRelease(func(context.Context) error {
		releases.Add(1)
		return nil
	})

	require.NoError(t, f.runner.process(context.Background(), 0, d))
	assert.Equal(t, int32(0), acks.Load())
	assert.Equal(t, int32(0), releases.Load())
}

func TestRunnerProcess_AlreadyComplete(t *testing.T) {
	f := newRunnerFixture(t)
	f.rec.Complete = true
	f.rec.Progress = 100
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		t.Fatal("completed task must not run again")
		return nil
	})))

	var acks atomic.Int32
	require.NoError(t, f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks)))
	assert.Equal(t, int32(1), acks.Load())
	assert.Empty(t, f.completedIDs())
	assert.Empty(t, f.notifier.Notifications())
}

func TestRunnerProcess_MissingRecord(t *testing.T) {
	f := newRunnerFixture(t)

	var acks atomic.Int32
	item := newTestItem("test")
	require.NoError(t, f.runner.process(context.Background(), 0, recordingDelivery(item, &acks)))
	assert.Equal(t, int32(1), acks.Load())
}

func TestRunnerProcess_RecordLoadFailure(t *testing.T) {
	f := newRunnerFixture(t)
	f.records.GetFunc = func(context.Context, uuid.UUID) (*domain.TaskRecord, error) {
		return nil, store.ErrUnavailable
	}

	var acks atomic.Int32
	err := f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, int32(0), acks.Load())
}

func TestRunnerProcess_InflightGuard(t *testing.T) {
	f := newRunnerFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		runs.Add(1)
		close(started)
		<-release
		return nil
	})))

	var acks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks))
	}()
	<-started

	// A second delivery of the same task is skipped while the first runs.
	require.NoError(t, f.runner.process(context.Background(), 1, recordingDelivery(f.rec.Item(), &acks)))
	assert.Equal(t, int32(0), acks.Load())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, int32(1), acks.Load())
}

func TestRunnerProcess_RenewsLease(t *testing.T) {
	f := newRunnerFixture(t)
	f.runner.config.RenewInterval = 5 * time.Millisecond

	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		time.Sleep(40 * time.Millisecond)
		return nil
	})))

	var renewals atomic.Int32
	d := NewDelivery(f.rec.Item(), 1, nil, func(context.Context) error {
		renewals.Add(1)
		return nil
	})

	require.NoError(t, f.runner.process(context.Background(), 0, d))
	assert.Positive(t, renewals.Load())
}

func TestRunnerProgressStoreFailureDoesNotFailTask(t *testing.T) {
	f := newRunnerFixture(t)
	f.records.UpdateProgressFunc = func(context.Context, uuid.UUID, int) (bool, error) {
		return false, store.ErrUnavailable
	}
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(ctx context.Context, job *Job) error {
		assert.False(t, job.ReportProgress(ctx, 10))
		return nil
	})))

	var acks atomic.Int32
	require.NoError(t, f.runner.process(context.Background(), 0, recordingDelivery(f.rec.Item(), &acks)))
	assert.Equal(t, domain.TaskOutcomeSucceeded, f.completion(t).Outcome)
}

func TestRunnerRecover(t *testing.T) {
	f := newRunnerFixture(t)
	stale := []*domain.TaskRecord{f.rec}
	other, err := domain.NewTaskRecord(uuid.New(), "test", "", nil)
	require.NoError(t, err)
	stale = append(stale, other)

	var cutoff time.Time
	f.records.ListIncompleteFunc = func(_ context.Context, before time.Time) ([]*domain.TaskRecord, error) {
		cutoff = before
		return stale, nil
	}
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	f.runner.now = func() time.Time { return now }

	// f.rec is running in this process and must not be requeued.
	require.True(t, f.runner.acquire(f.rec.ID))
	n, err := f.runner.Recover(context.Background(), 10*time.Minute)
	f.runner.release(f.rec.ID)

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, now.Add(-10*time.Minute), cutoff)
	require.Equal(t, 1, f.queue.Len())

	d := <-f.queue.GetChannel()
	assert.Equal(t, other.ID, d.Item.TaskID)
}

func TestRunnerRecover_ListError(t *testing.T) {
	f := newRunnerFixture(t)
	f.records.ListIncompleteFunc = func(context.Context, time.Time) ([]*domain.TaskRecord, error) {
		return nil, store.ErrUnavailable
	}

	_, err := f.runner.Recover(context.Background(), 0)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Error(t, f.runner.Start(context.Background()))
}

func TestRunnerStart_InvalidSchedule(t *testing.T) {
	f := newRunnerFixture(t)
	f.runner.config.RecoverySchedule = "every now and then"

	err := f.runner.Start(context.Background())
	assert.Error(t, err)
}

func TestRunnerStartStop(t *testing.T) {
	f := newRunnerFixture(t)
	f.runner.config.RecoverySchedule = "@every 1h"
	done := make(chan struct{})
	require.NoError(t, f.registry.Register("test", HandlerFunc(func(context.Context, *Job) error {
		close(done)
		return nil
	})))

	require.NoError(t, f.runner.Start(context.Background()))
	require.NoError(t, f.queue.Enqueue(context.Background(), f.rec.Item()))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task was not executed")
	}

	f.runner.Stop()
	assert.Eventually(t, func() bool {
		return len(f.completedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
}
