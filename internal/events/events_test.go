package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func TestNewSessionEvent(t *testing.T) {
	t.Parallel()

	containerID := uuid.New()
	s := &domain.Session{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		ContainerID: &containerID,
		Status:      domain.SessionStatusErrored,
		LastError:   "synthesis failed",
	}

	event, err := NewSessionEvent(TypeSessionErrored, s)
	require.NoError(t, err)
	assert.Equal(t, TypeSessionErrored, event.Type)
	assert.NotEqual(t, uuid.Nil, event.ID)

	var payload SessionPayload
	require.NoError(t, event.UnmarshalPayload(&payload))
	assert.Equal(t, s.ID, payload.SessionID)
	assert.Equal(t, s.UserID, payload.UserID)
	assert.Equal(t, containerID, *payload.ContainerID)
	assert.Equal(t, "errored", payload.Status)
	assert.Equal(t, "synthesis failed", payload.Error)
}

func TestLifecycleType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status domain.SessionStatus
		want   string
		ok     bool
	}{
		{domain.SessionStatusQueued, "", false},
		{domain.SessionStatusActive, TypeSessionAdmitted, true},
		{domain.SessionStatusReady, TypeSessionReady, true},
		{domain.SessionStatusErrored, TypeSessionErrored, true},
		{domain.SessionStatusRetriesExhausted, TypeSessionRetriesExhausted, true},
		{domain.SessionStatusAdminSkipped, TypeSessionAdminSkipped, true},
	}
	for _, tt := range tests {
		got, ok := LifecycleType(tt.status)
		assert.Equal(t, tt.want, got, tt.status)
		assert.Equal(t, tt.ok, ok, tt.status)
	}
}

func TestInMemoryEventEmitter(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		event, err := New(TypeContentRequested, ContentPayload{ContentItemID: uuid.New()})
		require.NoError(t, err)
		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("failing handler does not stop delivery", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		failing := &recordingHandler{err: errors.New("handler error")}
		ok := &recordingHandler{}
		emitter.RegisterHandler(failing)
		emitter.RegisterHandler(ok)

		event, err := New(TypeQuestionSetRequested, QuestionSetPayload{SessionID: uuid.New(), Kind: domain.QuestionSetKindScaffold})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		assert.EqualError(t, err, "handler error")
		assert.Len(t, failing.events, 1)
		assert.Len(t, ok.events, 1)
		assert.Same(t, event, ok.events[0])
	})
}

func TestHandlerEmitter(t *testing.T) {
	t.Parallel()

	event, err := New(TypeSessionReady, SessionPayload{})
	require.NoError(t, err)
	assert.NoError(t, Discard.EmitEvent(context.Background(), event))

	h := &recordingHandler{}
	var calls int
	emitter := HandlerEmitter{Handler: HandlerFunc(func(ctx context.Context, e *Event) error {
		calls++
		return h.HandleEvent(ctx, e)
	})}
	require.NoError(t, emitter.EmitEvent(context.Background(), event))
	assert.Equal(t, 1, calls)
}
