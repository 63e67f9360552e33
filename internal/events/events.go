package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

// Trigger events request background work.
const (
	// TypeSessionAdmitted asks for a pipeline run of an admitted session.
	TypeSessionAdmitted = "session.admitted"

	// TypeContentRequested asks for a content item to be fetched ahead of
	// generation.
	TypeContentRequested = "content.requested"

	// TypeQuestionSetRequested asks for an on-demand question set of a kind
	// other than hook.
	TypeQuestionSetRequested = "question_set.requested"
)

// Lifecycle events report session outcomes.
const (
	TypeSessionReady            = "session.ready"
	TypeSessionErrored          = "session.errored"
	TypeSessionRetriesExhausted = "session.retries_exhausted"
	TypeSessionAdminSkipped     = "session.admin_skipped"
)

// Event is a typed message with a JSON payload.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// SessionPayload identifies a session and its status at emission time.
type SessionPayload struct {
	SessionID   uuid.UUID  `json:"session_id"`
	UserID      uuid.UUID  `json:"user_id"`
	ContainerID *uuid.UUID `json:"container_id,omitempty"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
}

// ContentPayload identifies a content item.
type ContentPayload struct {
	ContentItemID uuid.UUID `json:"content_item_id"`
}

// QuestionSetPayload identifies the session and kind of an on-demand set.
type QuestionSetPayload struct {
	SessionID uuid.UUID              `json:"session_id"`
	Kind      domain.QuestionSetKind `json:"kind"`
}

// New creates an event with the given type and payload.
func New(eventType string, payload any) (*Event, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   b,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// NewSessionEvent builds an event for s.
func NewSessionEvent(eventType string, s *domain.Session) (*Event, error) {
	return New(eventType, SessionPayload{
		SessionID:   s.ID,
		UserID:      s.UserID,
		ContainerID: s.ContainerID,
		Status:      string(s.Status),
		Error:       s.LastError,
	})
}

// LifecycleType returns the lifecycle event type for a session status, or
// false for statuses that are not announced.
func LifecycleType(status domain.SessionStatus) (string, bool) {
	switch status {
	case domain.SessionStatusActive:
		return TypeSessionAdmitted, true
	case domain.SessionStatusReady:
		return TypeSessionReady, true
	case domain.SessionStatusErrored:
		return TypeSessionErrored, true
	case domain.SessionStatusRetriesExhausted:
		return TypeSessionRetriesExhausted, true
	case domain.SessionStatusAdminSkipped:
		return TypeSessionAdminSkipped, true
	}
	return "", false
}

// UnmarshalPayload decodes the event payload into v.
func (e *Event) UnmarshalPayload(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler processes emitted events.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// EventEmitter publishes events to whoever handles them.
type EventEmitter interface {
	EmitEvent(ctx context.Context, event *Event) error
}

// HandlerFunc adapts a function to EventHandler.
type HandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}
