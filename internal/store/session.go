package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

// SessionStore defines persistence for sessions.
type SessionStore interface {
	// CreateSession inserts s unless the user already has an unarchived
	// session for the same normalized reference, in which case that session
	// is returned and created is false.
	CreateSession(ctx context.Context, s *domain.Session) (session *domain.Session, created bool, err error)

	// GetSession retrieves a session by internal ID.
	GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error)

	// GetSessionByToken retrieves a session by its opaque token.
	// Returns ErrSessionNotFound if no session has that token.
	GetSessionByToken(ctx context.Context, token string) (*domain.Session, error)

	// AttachContainer links the session to its quiz container once.
	AttachContainer(ctx context.Context, id, containerID uuid.UUID) error

	// TransitionSession moves the session to status `to` if its current status
	// is one of from, recording lastError. It is the session's claim primitive.
	TransitionSession(ctx context.Context, id uuid.UUID, from []domain.SessionStatus, to domain.SessionStatus, lastError string) (ClaimResult[domain.Session], error)

	// SetHoldsSlot flips holds_slot to holds if it currently has the other
	// value, and reports whether a change was made.
	SetHoldsSlot(ctx context.Context, id uuid.UUID, holds bool) (bool, error)

	// OldestQueued returns the user's oldest unarchived queued session.
	// Returns ErrSessionNotFound when the user has none.
	OldestQueued(ctx context.Context, userID uuid.UUID) (*domain.Session, error)

	// ListByContainer returns unarchived sessions on a container whose status
	// is one of statuses, oldest first.
	ListByContainer(ctx context.Context, containerID uuid.UUID, statuses []domain.SessionStatus) ([]*domain.Session, error)

	// ListByStatus returns up to limit unarchived sessions whose status is one
	// of statuses, oldest first.
	ListByStatus(ctx context.Context, statuses []domain.SessionStatus, limit int) ([]*domain.Session, error)

	// ListIdle is ListByStatus restricted to sessions not updated since
	// before.
	ListIdle(ctx context.Context, statuses []domain.SessionStatus, before time.Time, limit int) ([]*domain.Session, error)

	// CountByStatus counts a user's unarchived sessions in the given statuses.
	CountByStatus(ctx context.Context, userID uuid.UUID, statuses []domain.SessionStatus) (int, error)

	// ArchiveSession marks the session archived with study progress
	// completed. Archiving twice is a no-op that returns the session.
	ArchiveSession(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Session, error)

	// UpdateStudyProgress records caller study progress.
	UpdateStudyProgress(ctx context.Context, id uuid.UUID, progress domain.StudyProgress) (*domain.Session, error)

	// WithTx returns a SessionStore bound to tx.
	WithTx(tx *sql.Tx) SessionStore
}

// AdmissionStore keeps the per-user count of sessions holding a generation
// slot.
type AdmissionStore interface {
	// AcquireSlot increments the user's count if it is below limit and
	// reports whether a slot was taken.
	AcquireSlot(ctx context.Context, userID uuid.UUID, limit int) (bool, error)

	// ReleaseSlot decrements the user's count, never below zero.
	ReleaseSlot(ctx context.Context, userID uuid.UUID) error

	// ActiveCount returns the user's current count.
	ActiveCount(ctx context.Context, userID uuid.UUID) (int, error)

	// WithTx returns an AdmissionStore bound to tx.
	WithTx(tx *sql.Tx) AdmissionStore
}
