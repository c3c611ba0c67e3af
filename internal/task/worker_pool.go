package task

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
)

// DeliveryProcessor handles one delivery on behalf of a worker.
type DeliveryProcessor func(ctx context.Context, workerID int, d Delivery) error

// WorkerPool manages a pool of worker goroutines that process deliveries
// from a task queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// taskQueue provides read access to the deliveries to be processed
	taskQueue TaskQueueReader

	// process runs a single delivery
	process DeliveryProcessor

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is used for cancellation and shutdown signaling
	ctx    context.Context
	cancel context.CancelFunc

	logger *slog.Logger

	// errorHandler is called when processing fails or panics.
	// If nil, errors are only logged
	errorHandler func(d Delivery, err error)

	startOnce sync.Once
	stopOnce  sync.Once
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 2,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(
	taskQueue TaskQueueReader,
	process DeliveryProcessor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		taskQueue:   taskQueue,
		process:     process,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// SetErrorHandler allows setting a custom error handler for processing failures
func (p *WorkerPool) SetErrorHandler(handler func(d Delivery, err error)) {
	p.errorHandler = handler
}

// Start launches the worker goroutines. Calling Start more than once has no
// further effect.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", "worker_count", p.workerCount)
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
	})
}

// Stop cancels the workers' context and waits for them to return. Tasks
// still running observe the cancellation through their context.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("stopping worker pool")
		p.cancel()
		p.wg.Wait()
		p.logger.Info("worker pool stopped")
	})
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.With("worker_id", id)
	logger.Debug("starting worker")

	for {
		select {
		case <-p.ctx.Done():
			logger.Debug("stopping worker")
			return

		case d, ok := <-p.taskQueue.GetChannel():
			if !ok {
				logger.Debug("task channel closed, stopping worker")
				return
			}
			p.handle(id, d, logger)
		}
	}
}

// handle runs one delivery. A panic escaping the processor is contained
// here so the worker keeps consuming.
func (p *WorkerPool) handle(id int, d Delivery, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			err := &PanicError{Value: r, Stack: debug.Stack()}
			logger.Error("worker recovered from panic",
				"task_id", d.Item.TaskID,
				"task_type", d.Item.Kind,
				"panic", r)
			p.reportError(d, err)
		}
	}()

	if err := p.process(p.ctx, id, d); err != nil {
		logger.Error("task processing failed",
			"task_id", d.Item.TaskID,
			"task_type", d.Item.Kind,
			"error", err)
		p.reportError(d, err)
	}
}

func (p *WorkerPool) reportError(d Delivery, err error) {
	if p.errorHandler != nil {
		p.errorHandler(d, err)
	}
}
