package task

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventHandler(t *testing.T) {
	t.Parallel()

	sessionID := uuid.New()
	itemID := uuid.New()

	tests := []struct {
		name    string
		event   func(t *testing.T) *events.Event
		wantKey string
	}{
		{
			name: "admitted session runs pipeline",
			event: func(t *testing.T) *events.Event {
				e, err := events.NewSessionEvent(events.TypeSessionAdmitted,
					&domain.Session{ID: sessionID, Status: domain.SessionStatusActive})
				require.NoError(t, err)
				return e
			},
			wantKey: TypeSessionRun + ":" + sessionID.String(),
		},
		{
			name: "content request prefetches",
			event: func(t *testing.T) *events.Event {
				e, err := events.New(events.TypeContentRequested, events.ContentPayload{ContentItemID: itemID})
				require.NoError(t, err)
				return e
			},
			wantKey: TypePrefetch + ":" + itemID.String(),
		},
		{
			name: "question set request generates on demand",
			event: func(t *testing.T) *events.Event {
				e, err := events.New(events.TypeQuestionSetRequested,
					events.QuestionSetPayload{SessionID: sessionID, Kind: domain.QuestionSetKindScaffold})
				require.NoError(t, err)
				return e
			},
			wantKey: TypeQuestionSet + ":" + sessionID.String() + ":scaffold",
		},
		{
			name: "lifecycle events are ignored",
			event: func(t *testing.T) *events.Event {
				e, err := events.NewSessionEvent(events.TypeSessionReady,
					&domain.Session{ID: sessionID, Status: domain.SessionStatusReady})
				require.NoError(t, err)
				return e
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runner := &recordingRunner{}
			factory, err := NewFactory(runner, runner)
			require.NoError(t, err)
			submitter := &collectingSubmitter{}
			h := NewEventHandler(factory, submitter, discardLogger())

			require.NoError(t, h.HandleEvent(context.Background(), tt.event(t)))

			if tt.wantKey == "" {
				assert.Empty(t, submitter.keys())
				return
			}
			assert.Equal(t, []string{tt.wantKey}, submitter.keys())
		})
	}
}

func TestEventHandler_Errors(t *testing.T) {
	t.Parallel()
	runner := &recordingRunner{}
	factory, err := NewFactory(runner, runner)
	require.NoError(t, err)

	t.Run("bad payload", func(t *testing.T) {
		h := NewEventHandler(factory, &collectingSubmitter{}, discardLogger())
		e := &events.Event{ID: uuid.New(), Type: events.TypeSessionAdmitted, Payload: []byte(`{"session_id":7}`)}
		assert.Error(t, h.HandleEvent(context.Background(), e))
	})

	t.Run("submit failure", func(t *testing.T) {
		h := NewEventHandler(factory, &collectingSubmitter{err: ErrQueueFull}, discardLogger())
		e, err := events.New(events.TypeContentRequested, events.ContentPayload{ContentItemID: uuid.New()})
		require.NoError(t, err)
		err = h.HandleEvent(context.Background(), e)
		assert.True(t, errors.Is(err, ErrQueueFull))
	})
}

func TestTasks_Execute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	runner := &recordingRunner{}
	factory, err := NewFactory(runner, runner)
	require.NoError(t, err)

	sessionID := uuid.New()
	run := factory.SessionRun(sessionID)
	require.NoError(t, run.Execute(ctx))
	assert.Equal(t, domain.SessionStatusReady, run.Result.Status)
	assert.Equal(t, []uuid.UUID{sessionID}, runner.sessionCalls())

	require.NoError(t, factory.QuestionSet(sessionID, domain.QuestionSetKindScaffold).Execute(ctx))
	assert.Equal(t, []domain.QuestionSetKind{domain.QuestionSetKindScaffold}, runner.sets)

	runner.prefetchErr = domain.NewRetryableError("fetch", errors.New("503"))
	assert.NoError(t, factory.Prefetch(uuid.New()).Execute(ctx), "recorded fetch failures are not task errors")

	runner.prefetchErr = errors.New("database is closed")
	assert.Error(t, factory.Prefetch(uuid.New()).Execute(ctx))
}
