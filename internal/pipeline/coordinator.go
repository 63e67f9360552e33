package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/platform/logger"
	"github.com/phrazzld/scry-hook/internal/redact"
	"github.com/phrazzld/scry-hook/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/phrazzld/scry-hook/internal/pipeline"

// ErrNotAdmitted is returned by RunQuestionSet for a session still waiting
// for an admission slot.
var ErrNotAdmitted = errors.New("session has not been admitted")

// Generator settles a claimed question set. *worker.Worker implements it.
type Generator interface {
	Generate(ctx context.Context, qs *domain.QuestionSet, item *domain.ContentItem) (*domain.QuestionSet, error)
	MaxQuestionSetRetries() int
}

// Admission moves sessions between statuses while keeping slot accounting
// consistent. *admission.Queue implements it.
type Admission interface {
	Settle(ctx context.Context, sessionID uuid.UUID, to domain.SessionStatus, lastError string) (*domain.Session, bool, error)
	MarkErrored(ctx context.Context, sessionID uuid.UUID, lastError string) (*domain.Session, bool, error)
	Reactivate(ctx context.Context, sessionID uuid.UUID) (*domain.Session, bool, error)
}

// Stores are the persistence dependencies of the coordinator.
type Stores struct {
	ContentItems store.ContentItemStore
	Containers   store.QuizContainerStore
	QuestionSets store.QuestionSetStore
	Sessions     store.SessionStore
}

// Config tunes a Coordinator.
type Config struct {
	ErrorSummaryLength int
}

// unsettled are the statuses fan-out settlement applies to.
var unsettled = []domain.SessionStatus{
	domain.SessionStatusQueued,
	domain.SessionStatusActive,
	domain.SessionStatusErrored,
}

// Coordinator runs pipeline steps and translates their results into session
// statuses.
type Coordinator struct {
	stores     Stores
	admission  Admission
	steps      []Step
	metrics    *Metrics
	tracer     trace.Tracer
	summaryLen int
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator. A nil metrics uses unregistered
// collectors.
func NewCoordinator(
	stores Stores,
	admission Admission,
	generator Generator,
	metrics *Metrics,
	cfg Config,
	logger *slog.Logger,
) (*Coordinator, error) {
	switch {
	case stores.ContentItems == nil, stores.Containers == nil, stores.QuestionSets == nil, stores.Sessions == nil:
		return nil, errors.New("coordinator requires all stores")
	case admission == nil:
		return nil, errors.New("admission cannot be nil")
	case generator == nil:
		return nil, errors.New("generator cannot be nil")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if cfg.ErrorSummaryLength <= 0 {
		cfg.ErrorSummaryLength = redact.DefaultSummaryLength
	}

	return &Coordinator{
		stores:    stores,
		admission: admission,
		steps: []Step{
			ensureContentItem{contents: stores.ContentItems},
			ensureQuizContainer{containers: stores.Containers, sessions: stores.Sessions},
			ensureQuestionSet{questionSets: stores.QuestionSets},
			generate{questionSets: stores.QuestionSets, generator: generator},
		},
		metrics:    metrics,
		tracer:     otel.Tracer(tracerName),
		summaryLen: cfg.ErrorSummaryLength,
		logger:     logger.With(slog.String("component", "pipeline_coordinator")),
	}, nil
}

// RunSession runs the hook pipeline for a session and returns the session as
// it stands afterwards. Queued, archived and settled sessions are returned
// untouched; errored sessions are reactivated first. Step failures are
// recorded on the session, so the error is only set when the store itself
// fails.
func (c *Coordinator) RunSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	ctx, span := c.tracer.Start(ctx, "pipeline.run_session",
		trace.WithAttributes(attribute.String("session.id", sessionID.String())))
	defer span.End()

	log := c.logger.With(slog.String("session_id", sessionID.String()))
	ctx = logger.WithLogger(ctx, log)

	sess, err := c.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	switch {
	case sess.IsArchived(), sess.Status.IsSettled():
		log.DebugContext(ctx, "session needs no run", slog.String("status", string(sess.Status)))
		return sess, nil
	case sess.Status == domain.SessionStatusQueued:
		log.DebugContext(ctx, "session is waiting for admission")
		return sess, nil
	case sess.Status == domain.SessionStatusErrored:
		reactivated, claimed, err := c.admission.Reactivate(ctx, sess.ID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if !claimed {
			return reactivated, nil
		}
		log.InfoContext(ctx, "retrying errored session")
		sess = reactivated
	}

	start := time.Now()
	run := &Run{Session: sess, Kind: domain.QuestionSetKindHook}
	step, res := c.execute(ctx, run)
	c.metrics.runDuration.WithLabelValues(string(run.Kind)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("pipeline.outcome", string(res.Outcome)))

	out, err := c.conclude(ctx, run, step, res)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to record run outcome")
	}
	return out, err
}

// RunQuestionSet generates a question set of kind for the session's content
// without touching the session's own status, which only the hook set drives.
// Hook requests run the full session pipeline.
func (c *Coordinator) RunQuestionSet(ctx context.Context, sessionID uuid.UUID, kind domain.QuestionSetKind) (*domain.QuestionSet, error) {
	if !kind.IsValid() {
		return nil, domain.ErrInvalidQuestionSetKind
	}
	if kind == domain.QuestionSetKindHook {
		sess, err := c.RunSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.ContainerID == nil {
			return nil, store.ErrQuestionSetNotFound
		}
		return c.stores.QuestionSets.FindQuestionSet(ctx, *sess.ContainerID, kind)
	}

	ctx, span := c.tracer.Start(ctx, "pipeline.run_question_set",
		trace.WithAttributes(
			attribute.String("session.id", sessionID.String()),
			attribute.String("question_set.kind", string(kind))))
	defer span.End()
	ctx = logger.WithLogger(ctx, c.logger.With(
		slog.String("session_id", sessionID.String()),
		slog.String("kind", string(kind))))

	sess, err := c.stores.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if !sess.Admitted() {
		return nil, fmt.Errorf("%w: session is %s", ErrNotAdmitted, sess.Status)
	}

	start := time.Now()
	run := &Run{Session: sess, Kind: kind}
	step, res := c.execute(ctx, run)
	c.metrics.runDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.String("pipeline.outcome", string(res.Outcome)))

	if run.QuestionSet == nil {
		return nil, fmt.Errorf("%s: %w", step.Name(), res.Err)
	}
	return run.QuestionSet, nil
}

// execute runs the steps in order and stops at the first result that is not
// a success, returning the step that produced it.
func (c *Coordinator) execute(ctx context.Context, run *Run) (Step, Result) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	var (
		last Step
		res  Result
	)
	for _, step := range c.steps {
		last = step
		res = c.executeStep(ctx, step, run)
		if res.Outcome != OutcomeSuccess {
			attrs := []any{
				slog.String("step", step.Name()),
				slog.String("outcome", string(res.Outcome)),
				slog.Bool("pending", res.Pending),
			}
			if res.Err != nil {
				attrs = append(attrs, slog.String("error", res.Err.Error()))
			}
			log.InfoContext(ctx, "pipeline stopped", attrs...)
			return step, res
		}
	}
	return last, res
}

func (c *Coordinator) executeStep(ctx context.Context, step Step, run *Run) Result {
	ctx, span := c.tracer.Start(ctx, "pipeline."+step.Name())
	defer span.End()

	res := step.Execute(ctx, run)
	c.metrics.steps.WithLabelValues(step.Name(), string(res.Outcome)).Inc()

	span.SetAttributes(
		attribute.String("step.outcome", string(res.Outcome)),
		attribute.Bool("step.pending", res.Pending))
	if res.Err != nil {
		span.RecordError(res.Err)
	}
	if res.Outcome == OutcomeFailed {
		span.SetStatus(codes.Error, step.Name()+" failed")
	}
	return res
}

// conclude translates a run's stopping result into a session status.
func (c *Coordinator) conclude(ctx context.Context, run *Run, step Step, res Result) (*domain.Session, error) {
	sess := run.Session

	switch {
	case res.Outcome == OutcomeSuccess:
		return c.settle(ctx, run, domain.SessionStatusReady, "")

	case res.Pending:
		c.metrics.pending.Inc()
		return sess, nil

	case res.Outcome == OutcomeSkipped && step.Final():
		status, ok := domain.SessionStatusForQuestionSet(run.QuestionSet.Status)
		if !ok {
			status = domain.SessionStatusRetriesExhausted
		}
		return c.settle(ctx, run, status, c.summarize(res.Err))
	}

	lastError := redact.Truncate(step.Name()+": "+c.summarize(res.Err), c.summaryLen)
	errored, claimed, err := c.admission.MarkErrored(ctx, sess.ID, lastError)
	if err != nil {
		return nil, err
	}
	if claimed {
		c.metrics.settlements.WithLabelValues(string(domain.SessionStatusErrored)).Inc()
	}

	// A failed hook set leaves waiters on the container with nothing to
	// retrigger them, so they error too and the sweeper retries them all.
	if step.Final() && run.Container != nil && run.QuestionSet != nil &&
		run.QuestionSet.Status == domain.QuestionSetStatusFailed {
		if _, err := c.errorContainer(ctx, run.Container.ID, sess.ID, lastError); err != nil {
			return errored, err
		}
	}
	return errored, nil
}

// errorContainer marks every other active session on the container errored
// and returns how many this call moved.
func (c *Coordinator) errorContainer(ctx context.Context, containerID, except uuid.UUID, lastError string) (int, error) {
	waiting, err := c.stores.Sessions.ListByContainer(ctx, containerID, []domain.SessionStatus{domain.SessionStatusActive})
	if err != nil {
		return 0, fmt.Errorf("failed to list container sessions: %w", err)
	}

	var moved int
	for _, s := range waiting {
		if s.ID == except {
			continue
		}
		_, claimed, err := c.admission.MarkErrored(ctx, s.ID, lastError)
		if err != nil {
			return moved, err
		}
		if claimed {
			moved++
			c.metrics.settlements.WithLabelValues(string(domain.SessionStatusErrored)).Inc()
		}
	}
	if moved > 0 {
		logger.FromContextOrDefault(ctx, c.logger).InfoContext(ctx, "errored container sessions",
			slog.String("container_id", containerID.String()),
			slog.Int("count", moved))
	}
	return moved, nil
}

// settle moves the run's session to status and fans the same outcome out to
// every other unsettled session on the container.
func (c *Coordinator) settle(ctx context.Context, run *Run, status domain.SessionStatus, lastError string) (*domain.Session, error) {
	settled, claimed, err := c.admission.Settle(ctx, run.Session.ID, status, lastError)
	if err != nil {
		return nil, err
	}
	if claimed {
		c.metrics.settlements.WithLabelValues(string(status)).Inc()
	}
	if run.Container != nil {
		if _, err := c.SettleContainer(ctx, run.Container.ID, status, lastError); err != nil {
			return settled, err
		}
	}
	return settled, nil
}

// SettleContainer settles every unsettled session on a container in status
// and returns how many this call moved.
func (c *Coordinator) SettleContainer(ctx context.Context, containerID uuid.UUID, status domain.SessionStatus, lastError string) (int, error) {
	sessions, err := c.stores.Sessions.ListByContainer(ctx, containerID, unsettled)
	if err != nil {
		return 0, fmt.Errorf("failed to list container sessions: %w", err)
	}

	var moved int
	for _, s := range sessions {
		_, claimed, err := c.admission.Settle(ctx, s.ID, status, lastError)
		if err != nil {
			return moved, err
		}
		if claimed {
			moved++
			c.metrics.settlements.WithLabelValues(string(status)).Inc()
		}
	}
	if moved > 0 {
		logger.FromContextOrDefault(ctx, c.logger).InfoContext(ctx, "settled container sessions",
			slog.String("container_id", containerID.String()),
			slog.String("status", string(status)),
			slog.Int("count", moved))
	}
	return moved, nil
}

// Reconcile settles an unsettled session whose hook set has already settled,
// which happens when another session on the same container finished first.
func (c *Coordinator) Reconcile(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	if sess.Status.IsSettled() || sess.IsArchived() || sess.ContainerID == nil {
		return sess, nil
	}

	hook, err := c.stores.QuestionSets.FindQuestionSet(ctx, *sess.ContainerID, domain.QuestionSetKindHook)
	if errors.Is(err, store.ErrQuestionSetNotFound) {
		return sess, nil
	}
	if err != nil {
		return nil, err
	}

	status, ok := domain.SessionStatusForQuestionSet(hook.Status)
	if !ok {
		return sess, nil
	}
	var lastError string
	if status != domain.SessionStatusReady {
		lastError = c.summarize(questionSetError(hook))
	}
	settled, claimed, err := c.admission.Settle(ctx, sess.ID, status, lastError)
	if err != nil {
		return nil, err
	}
	if claimed {
		c.metrics.settlements.WithLabelValues(string(status)).Inc()
	}
	return settled, nil
}

func (c *Coordinator) summarize(err error) string {
	if err == nil {
		return ""
	}
	return redact.Summary(err, c.summaryLen)
}
