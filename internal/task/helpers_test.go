package task

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeTask is a Task whose Execute is scripted.
type fakeTask struct {
	id        uuid.UUID
	key       string
	ExecuteFn func(ctx context.Context) error
}

func newFakeTask(key string, fn func(ctx context.Context) error) *fakeTask {
	if fn == nil {
		fn = func(context.Context) error { return nil }
	}
	return &fakeTask{id: uuid.New(), key: key, ExecuteFn: fn}
}

func (t *fakeTask) ID() uuid.UUID                     { return t.id }
func (t *fakeTask) Type() string                      { return "fake" }
func (t *fakeTask) Key() string                       { return t.key }
func (t *fakeTask) Execute(ctx context.Context) error { return t.ExecuteFn(ctx) }

// recordingRunner implements SessionRunner and Prefetcher.
type recordingRunner struct {
	mu          sync.Mutex
	sessions    []uuid.UUID
	sets        []domain.QuestionSetKind
	items       []uuid.UUID
	prefetchErr error
}

func (r *recordingRunner) RunSession(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, id)
	return &domain.Session{ID: id, Status: domain.SessionStatusReady}, nil
}

func (r *recordingRunner) RunQuestionSet(_ context.Context, id uuid.UUID, kind domain.QuestionSetKind) (*domain.QuestionSet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, kind)
	return &domain.QuestionSet{Kind: kind}, nil
}

func (r *recordingRunner) Prefetch(_ context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, id)
	return &domain.ContentItem{ID: id}, r.prefetchErr
}

func (r *recordingRunner) sessionCalls() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.sessions...)
}

// collectingSubmitter records submitted tasks without running them.
type collectingSubmitter struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (s *collectingSubmitter) Submit(task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *collectingSubmitter) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = t.Key()
	}
	return out
}
