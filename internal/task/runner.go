package task

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int

	// SweepInterval defines how often the sweeper runs
	// If zero, defaults to one minute
	SweepInterval time.Duration

	// RunTimeout bounds a single task execution
	RunTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:   4,
		QueueSize:     256,
		SweepInterval: time.Minute,
		RunTimeout:    10 * time.Minute,
	}
}

// Runner manages background task processing: the queue, the worker pool
// and the periodic sweep.
type Runner struct {
	queue   *TaskQueue
	pool    *WorkerPool
	sweeper *Sweeper
	config  RunnerConfig
	logger  *slog.Logger

	cancel  context.CancelFunc
	monitor sync.WaitGroup
}

// NewRunner creates a Runner. The sweeper is attached with SetSweeper since
// it submits to the runner it belongs to.
func NewRunner(config RunnerConfig, logger *slog.Logger) *Runner {
	if config.SweepInterval <= 0 {
		config.SweepInterval = time.Minute
	}
	logger = logger.With("component", "task_runner")
	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{
		WorkerCount: config.WorkerCount,
		RunTimeout:  config.RunTimeout,
	}, logger)

	return &Runner{
		queue:  queue,
		pool:   pool,
		config: config,
		logger: logger,
	}
}

// SetSweeper attaches the sweeper run on every interval and at start.
func (r *Runner) SetSweeper(s *Sweeper) {
	r.sweeper = s
}

// SetErrorHandler allows setting a custom error handler function
func (r *Runner) SetErrorHandler(handler func(task Task, err error)) {
	r.pool.SetErrorHandler(handler)
}

// Submit adds a task to the queue. It never blocks.
func (r *Runner) Submit(task Task) error {
	return r.queue.Enqueue(task)
}

// Start recovers unfinished sessions, starts the workers and begins
// sweeping.
func (r *Runner) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	if r.sweeper != nil {
		if _, err := r.sweeper.Recover(ctx); err != nil {
			r.cancel()
			return err
		}
	}

	r.pool.Start(ctx)

	if r.sweeper != nil {
		r.monitor.Add(1)
		go r.sweepLoop(ctx)
	}
	return nil
}

// Stop stops accepting tasks, lets the workers drain what is queued and
// waits for them until ctx expires.
func (r *Runner) Stop(ctx context.Context) error {
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Warn("task runner stop timed out, abandoning queued tasks",
			"queued", r.queue.Len())
	}

	if r.cancel != nil {
		r.cancel()
	}
	r.monitor.Wait()

	select {
	case <-done:
		return nil
	default:
		return errors.New("task runner did not drain before shutdown deadline")
	}
}

func (r *Runner) sweepLoop(ctx context.Context) {
	defer r.monitor.Done()

	ticker := time.NewTicker(r.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.sweeper.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("sweep failed", "error", err)
			}
		}
	}
}
