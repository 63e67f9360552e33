package task

import (
	"context"

	"github.com/google/uuid"
)

// Task type constants
const (
	// TypeSessionRun runs the hook pipeline of one session.
	TypeSessionRun = "session_run"

	// TypePrefetch fetches a content item ahead of generation.
	TypePrefetch = "content_prefetch"

	// TypeQuestionSet generates an on-demand question set for a session.
	TypeQuestionSet = "question_set"
)

// Task is a unit of background work.
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Key identifies the work the task does. Two tasks with the same key are
	// interchangeable, so a key waiting in the queue is not enqueued twice.
	Key() string

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan Task

	// Done marks a task as taken from the channel.
	Done(task Task)
}

// TaskQueueWriter provides write access to the task queue
// allowing services to enqueue tasks for processing
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue for processing
	// Returns an error if the queue is full or closed
	Enqueue(task Task) error

	// Close closes the task queue, preventing further task submission
	Close()
}
