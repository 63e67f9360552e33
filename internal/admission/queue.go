package admission

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/events"
	"github.com/phrazzld/scry-hook/internal/store"
)

// DefaultCap is the default number of sessions per user that may hold a
// generation slot.
const DefaultCap = 2

// unsettled are the session statuses a settlement may move from.
var unsettled = []domain.SessionStatus{
	domain.SessionStatusQueued,
	domain.SessionStatusActive,
	domain.SessionStatusErrored,
}

// Queue is the admission queue.
type Queue struct {
	db         *sql.DB
	sessions   store.SessionStore
	admissions store.AdmissionStore
	emitter    events.EventEmitter
	limit      int
	logger     *slog.Logger
}

// NewQueue creates a Queue. A limit below one uses DefaultCap.
func NewQueue(
	db *sql.DB,
	sessions store.SessionStore,
	admissions store.AdmissionStore,
	emitter events.EventEmitter,
	limit int,
	logger *slog.Logger,
) (*Queue, error) {
	if db == nil || sessions == nil || admissions == nil {
		return nil, errors.New("admission queue requires a database and stores")
	}
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if limit < 1 {
		limit = DefaultCap
	}
	return &Queue{
		db:         db,
		sessions:   sessions,
		admissions: admissions,
		emitter:    emitter,
		limit:      limit,
		logger:     logger.With(slog.String("component", "admission_queue")),
	}, nil
}

// Cap returns the per-user slot limit.
func (q *Queue) Cap() int { return q.limit }

// Fill promotes the user's oldest queued sessions to active while the user
// has free slots, and announces each promotion. It returns the promoted
// sessions in promotion order.
func (q *Queue) Fill(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error) {
	var promoted []*domain.Session

	err := store.RunInTransaction(ctx, q.db, func(ctx context.Context, tx *sql.Tx) error {
		promoted = promoted[:0]
		sessions := q.sessions.WithTx(tx)
		admissions := q.admissions.WithTx(tx)

		for {
			next, err := sessions.OldestQueued(ctx, userID)
			if errors.Is(err, store.ErrSessionNotFound) {
				return nil
			}
			if err != nil {
				return err
			}

			acquired, err := admissions.AcquireSlot(ctx, userID, q.limit)
			if err != nil {
				return err
			}
			if !acquired {
				return nil
			}

			res, err := sessions.TransitionSession(ctx, next.ID,
				[]domain.SessionStatus{domain.SessionStatusQueued}, domain.SessionStatusActive, "")
			if err != nil {
				return err
			}
			if !res.Claimed {
				// settled straight from queued by another path
				if err := admissions.ReleaseSlot(ctx, userID); err != nil {
					return err
				}
				continue
			}
			if _, err := sessions.SetHoldsSlot(ctx, next.ID, true); err != nil {
				return err
			}
			res.Snapshot.HoldsSlot = true
			promoted = append(promoted, res.Snapshot)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fill admission slots: %w", err)
	}

	for _, s := range promoted {
		q.logger.InfoContext(ctx, "session admitted",
			slog.String("session_id", s.ID.String()),
			slog.String("user_id", userID.String()))
		q.announce(ctx, s)
	}
	return promoted, nil
}

// Settle moves an unsettled session to a final status, releasing its slot if
// it holds one, and then refills the user's slots. It reports whether this
// call made the transition.
func (q *Queue) Settle(ctx context.Context, sessionID uuid.UUID, to domain.SessionStatus, lastError string) (*domain.Session, bool, error) {
	if !to.IsSettled() {
		return nil, false, fmt.Errorf("%w: %s is not a settled status", domain.ErrInvalidTransition, to)
	}

	var (
		res      store.ClaimResult[domain.Session]
		released bool
	)
	err := store.RunInTransaction(ctx, q.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		res, err = q.sessions.WithTx(tx).TransitionSession(ctx, sessionID, unsettled, to, lastError)
		if err != nil || !res.Claimed {
			return err
		}
		released, err = q.release(ctx, tx, res.Snapshot)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to settle session: %w", err)
	}
	if !res.Claimed {
		return res.Snapshot, false, nil
	}

	q.logger.InfoContext(ctx, "session settled",
		slog.String("session_id", sessionID.String()),
		slog.String("status", string(to)),
		slog.Bool("released_slot", released))
	q.announce(ctx, res.Snapshot)

	if released {
		if _, err := q.Fill(ctx, res.Snapshot.UserID); err != nil {
			return res.Snapshot, true, err
		}
	}
	return res.Snapshot, true, nil
}

// MarkErrored moves an active session to errored. The session keeps its slot
// while it waits for another attempt.
func (q *Queue) MarkErrored(ctx context.Context, sessionID uuid.UUID, lastError string) (*domain.Session, bool, error) {
	res, err := q.sessions.TransitionSession(ctx, sessionID,
		[]domain.SessionStatus{domain.SessionStatusActive}, domain.SessionStatusErrored, lastError)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark session errored: %w", err)
	}
	if res.Claimed {
		q.logger.WarnContext(ctx, "session errored",
			slog.String("session_id", sessionID.String()),
			slog.String("error", lastError))
		q.announce(ctx, res.Snapshot)
	}
	return res.Snapshot, res.Claimed, nil
}

// Reactivate claims an errored session back to active for another attempt.
func (q *Queue) Reactivate(ctx context.Context, sessionID uuid.UUID) (*domain.Session, bool, error) {
	res, err := q.sessions.TransitionSession(ctx, sessionID,
		[]domain.SessionStatus{domain.SessionStatusErrored}, domain.SessionStatusActive, "")
	if err != nil {
		return nil, false, fmt.Errorf("failed to reactivate session: %w", err)
	}
	return res.Snapshot, res.Claimed, nil
}

// Archive archives the session for the caller, releases its slot if it holds
// one, and refills the user's slots.
func (q *Queue) Archive(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	var (
		archived *domain.Session
		released bool
	)
	err := store.RunInTransaction(ctx, q.db, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		archived, err = q.sessions.WithTx(tx).ArchiveSession(ctx, sessionID, time.Now().UTC())
		if err != nil {
			return err
		}
		released, err = q.release(ctx, tx, archived)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive session: %w", err)
	}

	q.logger.InfoContext(ctx, "session archived",
		slog.String("session_id", sessionID.String()),
		slog.Bool("released_slot", released))

	if _, err := q.Fill(ctx, archived.UserID); err != nil {
		return archived, err
	}
	return archived, nil
}

// release gives back s's slot inside tx if it holds one.
func (q *Queue) release(ctx context.Context, tx *sql.Tx, s *domain.Session) (bool, error) {
	changed, err := q.sessions.WithTx(tx).SetHoldsSlot(ctx, s.ID, false)
	if err != nil || !changed {
		return false, err
	}
	s.HoldsSlot = false
	if err := q.admissions.WithTx(tx).ReleaseSlot(ctx, s.UserID); err != nil {
		return false, err
	}
	return true, nil
}

func (q *Queue) announce(ctx context.Context, s *domain.Session) {
	eventType, ok := events.LifecycleType(s.Status)
	if !ok {
		return
	}
	event, err := events.NewSessionEvent(eventType, s)
	if err != nil {
		q.logger.ErrorContext(ctx, "failed to build session event", slog.String("error", err.Error()))
		return
	}
	if err := q.emitter.EmitEvent(ctx, event); err != nil {
		q.logger.ErrorContext(ctx, "failed to emit session event",
			slog.String("event_type", eventType),
			slog.String("session_id", s.ID.String()),
			slog.String("error", err.Error()))
	}
}
