package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/microblog/internal/domain"
	"github.com/phrazzld/microblog/internal/platform/logger"
	"github.com/phrazzld/microblog/internal/redact"
	"github.com/phrazzld/microblog/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/sethvargo/go-retry"
)

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// StuckTaskAge is how long an incomplete record may go without an
	// update before the recovery sweep re-enqueues it
	StuckTaskAge time.Duration

	// RecoverySchedule is the cron spec for the recovery sweep, e.g.
	// "@every 5m". Empty disables the sweep; Start still recovers once.
	RecoverySchedule string

	// RenewInterval is how often a running task renews its delivery lease
	RenewInterval time.Duration

	// TerminalTimeout bounds the retried terminal write
	TerminalTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:      2,
		StuckTaskAge:     10 * time.Minute,
		RecoverySchedule: "@every 5m",
		RenewInterval:    10 * time.Second,
		TerminalTimeout:  30 * time.Second,
	}
}

// Runner consumes a task queue with a worker pool and drives every task it
// receives to a terminal state.
type Runner struct {
	registry *Registry
	records  store.TaskRecordStore
	notifier Notifier
	queue    Queue
	pool     *WorkerPool
	cron     *cron.Cron
	config   RunnerConfig
	logger   *slog.Logger

	// terminalBackoff builds the retry policy for the terminal write
	terminalBackoff func() retry.Backoff
	now             func() time.Time

	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewRunner creates a Runner reading from queue. Recovered records are
// re-enqueued onto the same queue.
func NewRunner(
	registry *Registry,
	records store.TaskRecordStore,
	notifier Notifier,
	queue Queue,
	config RunnerConfig,
	logger *slog.Logger,
) (*Runner, error) {
	if registry == nil || records == nil || notifier == nil || queue == nil || logger == nil {
		return nil, ErrNilDependency
	}

	defaults := DefaultRunnerConfig()
	if config.StuckTaskAge <= 0 {
		config.StuckTaskAge = defaults.StuckTaskAge
	}
	if config.RenewInterval <= 0 {
		config.RenewInterval = defaults.RenewInterval
	}
	if config.TerminalTimeout <= 0 {
		config.TerminalTimeout = defaults.TerminalTimeout
	}

	r := &Runner{
		registry: registry,
		records:  records,
		notifier: notifier,
		queue:    queue,
		config:   config,
		logger:   logger.With("component", "task_runner"),
		terminalBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(5, retry.NewExponential(100*time.Millisecond))
		},
		now:      time.Now,
		inflight: make(map[uuid.UUID]struct{}),
	}

	r.pool = NewWorkerPool(queue, r.process, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)
	r.pool.SetErrorHandler(r.abandon)

	return r, nil
}

// abandon handles a delivery that process did not ack. The delivery is
// released so a redelivery or the recovery sweep can run the task again.
func (r *Runner) abandon(d Delivery, err error) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		// Already reported to the owner through task_complete.
		return
	}

	log := r.logger.With("task_id", d.Item.TaskID, "task_type", d.Item.Kind)
	if errors.Is(err, ErrInterrupted) {
		log.Info("task interrupted, leaving it for redelivery")
	} else {
		log.Error("delivery left unacknowledged", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.TerminalTimeout)
	defer cancel()
	if err := d.Release(ctx); err != nil {
		log.Warn("failed to release delivery", "error", err)
	}
}

// Start recovers unfinished tasks, starts the workers and schedules the
// recovery sweep.
func (r *Runner) Start(ctx context.Context) error {
	if r.config.RecoverySchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(r.config.RecoverySchedule, r.sweep); err != nil {
			return fmt.Errorf("failed to schedule recovery sweep: %w", err)
		}
		r.cron = c
	}

	if _, err := r.Recover(ctx, 0); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	r.pool.Start()
	if r.cron != nil {
		r.cron.Start()
	}

	r.logger.Info("task runner started",
		"kinds", r.registry.Kinds(),
		"recovery_schedule", r.config.RecoverySchedule)
	return nil
}

// Stop halts the recovery sweep and the workers. Tasks still running see
// their context cancelled. A durable delivery interrupted that way stays
// incomplete and is redelivered; an in-memory one ends in the failed state.
func (r *Runner) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.pool.Stop()
	r.logger.Info("task runner stopped")
}

// Recover re-enqueues incomplete records that have not been updated for at
// least olderThan. Records running in this process are skipped. It returns
// the number of records enqueued.
func (r *Runner) Recover(ctx context.Context, olderThan time.Duration) (int, error) {
	records, err := r.records.ListIncomplete(ctx, r.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to list incomplete tasks: %w", err)
	}

	requeued := 0
	for _, rec := range records {
		if r.isInflight(rec.ID) {
			continue
		}
		if err := r.queue.Enqueue(ctx, rec.Item()); err != nil {
			r.logger.Error("failed to requeue task",
				"task_id", rec.ID,
				"task_type", rec.Kind,
				"error", err)
			continue
		}
		requeued++
	}

	if len(records) > 0 {
		r.logger.Info("recovered unfinished tasks",
			"incomplete_count", len(records),
			"requeued_count", requeued)
	}
	return requeued, nil
}

func (r *Runner) sweep() {
	if _, err := r.Recover(context.Background(), r.config.StuckTaskAge); err != nil {
		r.logger.Error("recovery sweep failed", "error", err)
	}
}

// process runs one delivery to completion. A nil return means the delivery
// was acked, or was skipped unacked because this process is already running
// the same task. An ExecutionError means the task failed but its terminal
// state is stored and acked. Any other error leaves the delivery unacked for
// the error handler to release.
func (r *Runner) process(ctx context.Context, workerID int, d Delivery) error {
	item := d.Item
	log := r.logger.With(
		"task_id", item.TaskID,
		"task_type", item.Kind,
		"worker_id", workerID,
		"attempt", d.Attempts,
	)

	if !r.acquire(item.TaskID) {
		log.Info("task already running in this process, skipping delivery")
		return nil
	}
	defer r.release(item.TaskID)

	rec, err := r.records.Get(ctx, item.TaskID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.Warn("queue item has no task record, dropping")
			r.ack(ctx, d, log)
			return nil
		}
		return fmt.Errorf("failed to load task record: %w", err)
	}

	if rec.Complete {
		log.Info("task already complete, acknowledging redelivery")
		r.ack(ctx, d, log)
		return nil
	}

	job := newJob(rec, d.Attempts, r.records, r.notifier, log)
	return r.execute(logger.WithLogger(ctx, log), job, d)
}

// execute runs the handler. The deferred block records the terminal state
// on every exit path, panics included, and acks only after that write.
func (r *Runner) execute(ctx context.Context, job *Job, d Delivery) (err error) {
	log := job.Logger()

	renewCtx, stopRenew := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		r.renewLease(renewCtx, d, log)
	}()

	defer func() {
		stopRenew()
		<-renewDone

		if p := recover(); p != nil {
			log.Error("task panicked", "panic", p)
			err = &PanicError{Value: p, Stack: debug.Stack()}
		}

		taskErr := err
		if taskErr != nil && ctx.Err() != nil && d.Durable() && !isPanic(taskErr) {
			log.Info("task stopped by shutdown, skipping terminal write", "error", taskErr)
			err = fmt.Errorf("%w: %w", ErrInterrupted, taskErr)
			return
		}
		if termErr := r.finish(ctx, job, taskErr); termErr != nil {
			log.Error("failed to store terminal state", "error", termErr)
			err = termErr
			return
		}
		r.ack(ctx, d, log)

		if taskErr != nil {
			err = &ExecutionError{TaskID: job.ID, Kind: job.Kind, Err: taskErr}
		}
	}()

	handler, ok := r.registry.Lookup(job.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, job.Kind)
	}

	log.Info("processing task")
	start := r.now()
	if err := handler.Execute(ctx, job); err != nil {
		log.Error("task execution failed", "error", redact.Error(err))
		return err
	}
	log.Info("task completed successfully", "duration", r.now().Sub(start))
	return nil
}

// finish marks the record complete and appends task_complete. The write
// runs on a context detached from shutdown and is retried; only its failure
// is returned.
func (r *Runner) finish(ctx context.Context, job *Job, taskErr error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.TerminalTimeout)
	defer cancel()

	err := retry.Do(ctx, r.terminalBackoff(), func(ctx context.Context) error {
		if err := r.records.MarkComplete(ctx, job.ID); err != nil {
			if errors.Is(err, store.ErrTaskNotFound) {
				return err
			}
			job.Logger().Warn("terminal write failed, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark task complete: %w", err)
	}

	payload := domain.TaskCompletePayload{
		TaskID:   job.ID,
		Kind:     job.Kind,
		Outcome:  domain.TaskOutcomeSucceeded,
		Progress: 100,
	}
	if taskErr != nil {
		payload.Outcome = domain.TaskOutcomeFailed
		payload.Error = redact.Error(taskErr)
	}

	if _, err := r.notifier.Append(ctx, job.OwnerID, domain.NotificationTaskComplete, payload); err != nil {
		job.Logger().Error("failed to append completion notification", "error", err)
	}
	return nil
}

func isPanic(err error) bool {
	var p *PanicError
	return errors.As(err, &p)
}

func (r *Runner) renewLease(ctx context.Context, d Delivery, log *slog.Logger) {
	ticker := time.NewTicker(r.config.RenewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Renew(ctx); err != nil && ctx.Err() == nil {
				log.Warn("failed to renew delivery lease", "error", err)
			}
		}
	}
}

func (r *Runner) ack(ctx context.Context, d Delivery, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.TerminalTimeout)
	defer cancel()

	if err := d.Ack(ctx); err != nil {
		log.Warn("failed to acknowledge delivery", "error", err)
	}
}

func (r *Runner) acquire(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.inflight[id]; ok {
		return false
	}
	r.inflight[id] = struct{}{}
	return true
}

func (r *Runner) release(id uuid.UUID) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

func (r *Runner) isInflight(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.inflight[id]
	return ok
}
