package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-hook/internal/events"
)

// Submitter accepts tasks for background execution. *Runner implements it.
type Submitter interface {
	Submit(task Task) error
}

// EventHandler implements events.EventHandler by turning trigger events into
// tasks and submitting them. Lifecycle events are ignored.
type EventHandler struct {
	factory   *Factory
	submitter Submitter
	logger    *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(factory *Factory, submitter Submitter, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		factory:   factory,
		submitter: submitter,
		logger:    logger.With("component", "task_event_handler"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *EventHandler) HandleEvent(ctx context.Context, event *events.Event) error {
	var task Task

	switch event.Type {
	case events.TypeSessionAdmitted:
		var p events.SessionPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		task = h.factory.SessionRun(p.SessionID)

	case events.TypeContentRequested:
		var p events.ContentPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		task = h.factory.Prefetch(p.ContentItemID)

	case events.TypeQuestionSetRequested:
		var p events.QuestionSetPayload
		if err := event.UnmarshalPayload(&p); err != nil {
			return fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		task = h.factory.QuestionSet(p.SessionID, p.Kind)

	default:
		h.logger.DebugContext(ctx, "ignoring event",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	if err := h.submitter.Submit(task); err != nil {
		h.logger.ErrorContext(ctx, "failed to submit task",
			"error", err,
			"task_type", task.Type(),
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.DebugContext(ctx, "task submitted",
		"task_id", task.ID(),
		"task_type", task.Type(),
		"event_id", event.ID)
	return nil
}

var _ events.EventHandler = (*EventHandler)(nil)
