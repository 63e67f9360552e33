package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// WorkerPool manages a pool of worker goroutines that process tasks
// from a task queue. It handles graceful shutdown and worker lifecycle.
type WorkerPool struct {
	// taskQueue provides read access to the tasks to be processed
	taskQueue TaskQueueReader

	// workerCount is the number of concurrent workers to start
	workerCount int

	// runTimeout bounds a single task execution; zero means no bound
	runTimeout time.Duration

	group *errgroup.Group

	logger *slog.Logger

	// errorHandler is called when a task execution fails
	// If nil, errors are only logged
	errorHandler func(task Task, err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int

	// RunTimeout bounds each task execution
	RunTimeout time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
		RunTimeout:  10 * time.Minute,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(taskQueue TaskQueueReader, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	return &WorkerPool{
		taskQueue:   taskQueue,
		workerCount: workerCount,
		runTimeout:  config.RunTimeout,
		logger:      logger,
	}
}

// SetErrorHandler allows setting a custom error handler for task execution failures
func (p *WorkerPool) SetErrorHandler(handler func(task Task, err error)) {
	p.errorHandler = handler
}

// Start launches the workers. They run until ctx is cancelled or the queue
// is closed and drained.
func (p *WorkerPool) Start(ctx context.Context) {
	p.group, ctx = errgroup.WithContext(ctx)
	for i := 0; i < p.workerCount; i++ {
		id := i
		p.group.Go(func() error {
			p.worker(ctx, id)
			return nil
		})
	}
	p.logger.Info("worker pool started", "worker_count", p.workerCount)
}

// Wait blocks until every worker has returned.
func (p *WorkerPool) Wait() {
	if p.group != nil {
		_ = p.group.Wait()
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	p.logger.Debug("starting worker", "worker_id", id)

	tasks := p.taskQueue.GetChannel()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("stopping worker", "worker_id", id)
			return
		case task, ok := <-tasks:
			if !ok {
				p.logger.Debug("task channel closed, stopping worker", "worker_id", id)
				return
			}
			p.taskQueue.Done(task)
			p.processTask(ctx, task, id)
		}
	}
}

// processTask executes one task. Cancelling the pool does not interrupt a
// running task; only the run timeout does.
func (p *WorkerPool) processTask(ctx context.Context, task Task, workerID int) {
	logger := p.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	runCtx := context.WithoutCancel(ctx)
	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, p.runTimeout)
		defer cancel()
	}

	logger.Debug("processing task")
	start := time.Now()

	err := safeExecute(runCtx, task)
	if err != nil {
		logger.Error("task execution failed", "error", err, "duration", time.Since(start))
		if p.errorHandler != nil {
			p.errorHandler(task, err)
		}
		return
	}
	logger.Debug("task completed", "duration", time.Since(start))
}

func safeExecute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return task.Execute(ctx)
}
