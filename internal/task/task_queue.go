package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Common errors returned by the TaskQueue
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue implements a buffered task queue that satisfies both
// TaskQueueReader and TaskQueueWriter interfaces. A task whose key is
// already waiting in the queue is dropped on Enqueue.
type TaskQueue struct {
	mu       sync.Mutex
	tasks    chan Task
	inFlight map[string]struct{}
	logger   *slog.Logger
	closed   bool
}

// NewTaskQueue creates a new task queue with the specified buffer size
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size < 1 {
		size = 1
	}
	return &TaskQueue{
		tasks:    make(chan Task, size),
		inFlight: make(map[string]struct{}),
		logger:   logger,
	}
}

// Enqueue adds a task to the queue for processing
// Returns an error if the queue is full or closed
func (q *TaskQueue) Enqueue(task Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if _, ok := q.inFlight[task.Key()]; ok {
		q.logger.Debug("task already queued",
			"task_type", task.Type(),
			"task_key", task.Key())
		return nil
	}

	select {
	case q.tasks <- task:
		q.inFlight[task.Key()] = struct{}{}
		q.logger.Debug("task enqueued",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Done releases the task's key so the same work can be queued again. Workers
// call it as soon as they take the task.
func (q *TaskQueue) Done(task Task) {
	q.mu.Lock()
	delete(q.inFlight, task.Key())
	q.mu.Unlock()
}

// Close closes the task queue, preventing further task submission
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.closed {
		q.closed = true
		close(q.tasks)
		q.logger.Info("task queue closed")
	}
}

// GetChannel returns a read-only channel for consuming tasks
func (q *TaskQueue) GetChannel() <-chan Task {
	return q.tasks
}

// Len returns the number of tasks waiting in the queue.
func (q *TaskQueue) Len() int {
	return len(q.tasks)
}
