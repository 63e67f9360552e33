package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

// QuestionSetStore defines persistence for question sets. Every status change
// is a conditional update on the current status, and retry_count is only ever
// incremented.
type QuestionSetStore interface {
	// EnsureQuestionSet returns the set of the given kind for containerID,
	// creating it queued with retry_count zero on first access.
	EnsureQuestionSet(ctx context.Context, containerID uuid.UUID, kind domain.QuestionSetKind) (*domain.QuestionSet, error)

	// GetQuestionSet retrieves a question set by ID.
	GetQuestionSet(ctx context.Context, id uuid.UUID) (*domain.QuestionSet, error)

	// FindQuestionSet retrieves the set of a kind for a container.
	// Returns ErrQuestionSetNotFound if it has not been ensured yet.
	FindQuestionSet(ctx context.Context, containerID uuid.UUID, kind domain.QuestionSetKind) (*domain.QuestionSet, error)

	// ClaimQuestionSet moves the set to generating if it is queued, or failed
	// with retry_count below maxRetries. The claimed snapshot carries a fresh
	// ClaimID that every completion below must present.
	ClaimQuestionSet(ctx context.Context, id uuid.UUID, maxRetries int) (ClaimResult[domain.QuestionSet], error)

	// SaveDerivation persists analysis output on a set in generating.
	SaveDerivation(ctx context.Context, id, claimID uuid.UUID, derivation json.RawMessage) error

	// CompleteQuestionSet stores the payload and marks a generating set ready.
	CompleteQuestionSet(ctx context.Context, id, claimID uuid.UUID, payload json.RawMessage) (*domain.QuestionSet, error)

	// FailQuestionSet increments retry_count on a generating set and moves it
	// to failed, or to retries_exhausted once the count reaches maxRetries.
	FailQuestionSet(ctx context.Context, id, claimID uuid.UUID, errMsg string, maxRetries int) (*domain.QuestionSet, error)

	// ExhaustQuestionSet increments retry_count on a generating set and moves
	// it straight to retries_exhausted.
	ExhaustQuestionSet(ctx context.Context, id, claimID uuid.UUID, errMsg string) (*domain.QuestionSet, error)

	// SkipQuestionSet moves a non-terminal set to admin_skipped.
	SkipQuestionSet(ctx context.Context, id uuid.UUID) (ClaimResult[domain.QuestionSet], error)

	// ExpireStuckGenerations fails sets that have been generating since
	// before cutoff, counting the lost attempt against the ceiling.
	ExpireStuckGenerations(ctx context.Context, cutoff time.Time, errMsg string, maxRetries int) ([]*domain.QuestionSet, error)

	// WithTx returns a QuestionSetStore bound to tx.
	WithTx(tx *sql.Tx) QuestionSetStore
}
