package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

// SessionRunner runs pipelines. *pipeline.Coordinator implements it.
type SessionRunner interface {
	RunSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
	RunQuestionSet(ctx context.Context, sessionID uuid.UUID, kind domain.QuestionSetKind) (*domain.QuestionSet, error)
}

// Prefetcher fetches content ahead of generation. *worker.Worker
// implements it.
type Prefetcher interface {
	Prefetch(ctx context.Context, itemID uuid.UUID) (*domain.ContentItem, error)
}

// Factory builds tasks bound to their collaborators.
type Factory struct {
	runner     SessionRunner
	prefetcher Prefetcher
}

// NewFactory creates a Factory.
func NewFactory(runner SessionRunner, prefetcher Prefetcher) (*Factory, error) {
	if runner == nil {
		return nil, errors.New("session runner cannot be nil")
	}
	if prefetcher == nil {
		return nil, errors.New("prefetcher cannot be nil")
	}
	return &Factory{runner: runner, prefetcher: prefetcher}, nil
}

// SessionRun returns a task that runs the session's hook pipeline.
func (f *Factory) SessionRun(sessionID uuid.UUID) *SessionRunTask {
	return &SessionRunTask{id: uuid.New(), sessionID: sessionID, runner: f.runner}
}

// Prefetch returns a task that fetches a content item.
func (f *Factory) Prefetch(itemID uuid.UUID) *PrefetchTask {
	return &PrefetchTask{id: uuid.New(), itemID: itemID, prefetcher: f.prefetcher}
}

// QuestionSet returns a task that generates a question set of kind.
func (f *Factory) QuestionSet(sessionID uuid.UUID, kind domain.QuestionSetKind) *QuestionSetTask {
	return &QuestionSetTask{id: uuid.New(), sessionID: sessionID, kind: kind, runner: f.runner}
}

// SessionRunTask runs one session's pipeline.
type SessionRunTask struct {
	id        uuid.UUID
	sessionID uuid.UUID
	runner    SessionRunner

	// Result is the session after the last Execute.
	Result *domain.Session
}

func (t *SessionRunTask) ID() uuid.UUID { return t.id }
func (t *SessionRunTask) Type() string  { return TypeSessionRun }
func (t *SessionRunTask) Key() string   { return TypeSessionRun + ":" + t.sessionID.String() }

// Execute implements Task.
func (t *SessionRunTask) Execute(ctx context.Context) error {
	sess, err := t.runner.RunSession(ctx, t.sessionID)
	if err != nil {
		return err
	}
	t.Result = sess
	return nil
}

// PrefetchTask fetches one content item. Fetch failures are recorded on the
// item and are not task errors; generation retries the fetch.
type PrefetchTask struct {
	id         uuid.UUID
	itemID     uuid.UUID
	prefetcher Prefetcher
}

func (t *PrefetchTask) ID() uuid.UUID { return t.id }
func (t *PrefetchTask) Type() string  { return TypePrefetch }
func (t *PrefetchTask) Key() string   { return TypePrefetch + ":" + t.itemID.String() }

// Execute implements Task.
func (t *PrefetchTask) Execute(ctx context.Context) error {
	_, err := t.prefetcher.Prefetch(ctx, t.itemID)
	if err != nil && (domain.IsTerminal(err) || domain.IsRetryable(err)) {
		return nil
	}
	return err
}

// QuestionSetTask generates an on-demand question set.
type QuestionSetTask struct {
	id        uuid.UUID
	sessionID uuid.UUID
	kind      domain.QuestionSetKind
	runner    SessionRunner
}

func (t *QuestionSetTask) ID() uuid.UUID { return t.id }
func (t *QuestionSetTask) Type() string  { return TypeQuestionSet }
func (t *QuestionSetTask) Key() string {
	return TypeQuestionSet + ":" + t.sessionID.String() + ":" + string(t.kind)
}

// Execute implements Task.
func (t *QuestionSetTask) Execute(ctx context.Context) error {
	_, err := t.runner.RunQuestionSet(ctx, t.sessionID, t.kind)
	return err
}
