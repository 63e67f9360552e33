package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// QuestionSetKind distinguishes the two artifacts generated per container.
type QuestionSetKind string

const (
	// QuestionSetKindHook is the short quiz that gates session readiness.
	QuestionSetKindHook QuestionSetKind = "hook"
	// QuestionSetKindScaffold is the deeper quiz generated on demand.
	QuestionSetKindScaffold QuestionSetKind = "scaffold"
)

// QuestionSetStatus represents the generation state of a question set.
type QuestionSetStatus string

// Possible question set status values
const (
	QuestionSetStatusQueued           QuestionSetStatus = "queued"
	QuestionSetStatusGenerating       QuestionSetStatus = "generating"
	QuestionSetStatusReady            QuestionSetStatus = "ready"
	QuestionSetStatusFailed           QuestionSetStatus = "failed"
	QuestionSetStatusRetriesExhausted QuestionSetStatus = "retries_exhausted"
	QuestionSetStatusAdminSkipped     QuestionSetStatus = "admin_skipped"
)

// DefaultMaxQuestionSetRetries is the outer generation ceiling per question set.
const DefaultMaxQuestionSetRetries = 3

// QuestionSetTransitions is the allowed-transition table for question sets.
var QuestionSetTransitions = Transitions[QuestionSetStatus]{
	QuestionSetStatusQueued: {
		QuestionSetStatusGenerating,
		QuestionSetStatusAdminSkipped,
	},
	QuestionSetStatusGenerating: {
		QuestionSetStatusReady,
		QuestionSetStatusFailed,
		QuestionSetStatusRetriesExhausted,
		QuestionSetStatusAdminSkipped,
	},
	QuestionSetStatusFailed: {
		QuestionSetStatusGenerating,
		QuestionSetStatusRetriesExhausted,
		QuestionSetStatusAdminSkipped,
	},
	// ready is never regenerated but may still be withdrawn by an operator
	QuestionSetStatusReady: {
		QuestionSetStatusAdminSkipped,
	},
}

// QuestionSetStatuses lists question set statuses in lifecycle order.
var QuestionSetStatuses = []QuestionSetStatus{
	QuestionSetStatusQueued,
	QuestionSetStatusGenerating,
	QuestionSetStatusReady,
	QuestionSetStatusFailed,
	QuestionSetStatusRetriesExhausted,
	QuestionSetStatusAdminSkipped,
}

var (
	ErrEmptyContainerID         = errors.New("question set container ID cannot be empty")
	ErrInvalidQuestionSetKind   = errors.New("invalid question set kind")
	ErrInvalidQuestionSetStatus = errors.New("invalid question set status")
)

// QuestionSet is one generated artifact (hook or scaffold) of a container.
// Derivation holds the persisted analysis so a synthesis retry can skip it.
// ClaimID identifies the current generating claim and is nil otherwise.
type QuestionSet struct {
	ID          uuid.UUID         `json:"id"`
	ContainerID uuid.UUID         `json:"container_id"`
	Kind        QuestionSetKind   `json:"kind"`
	Status      QuestionSetStatus `json:"status"`
	Payload     json.RawMessage   `json:"payload,omitempty"`
	Derivation  json.RawMessage   `json:"derivation,omitempty"`
	RetryCount  int               `json:"retry_count"`
	LastError   string            `json:"last_error,omitempty"`
	ClaimID     uuid.UUID         `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// NewQuestionSet creates a queued question set with retryCount zero.
func NewQuestionSet(containerID uuid.UUID, kind QuestionSetKind) (*QuestionSet, error) {
	now := time.Now().UTC()
	qs := &QuestionSet{
		ID:          uuid.New(),
		ContainerID: containerID,
		Kind:        kind,
		Status:      QuestionSetStatusQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := qs.Validate(); err != nil {
		return nil, err
	}
	return qs, nil
}

// Validate checks if the QuestionSet has valid data.
func (q *QuestionSet) Validate() error {
	if q.ContainerID == uuid.Nil {
		return ErrEmptyContainerID
	}
	if !q.Kind.IsValid() {
		return ErrInvalidQuestionSetKind
	}
	if !isValidQuestionSetStatus(q.Status) {
		return ErrInvalidQuestionSetStatus
	}
	return nil
}

// IsValid reports whether k is a known kind.
func (k QuestionSetKind) IsValid() bool {
	return k == QuestionSetKindHook || k == QuestionSetKindScaffold
}

// IsTerminal reports whether s is an absorbing question set status.
func (s QuestionSetStatus) IsTerminal() bool {
	return s == QuestionSetStatusRetriesExhausted || s == QuestionSetStatusAdminSkipped
}

// IsInProgress reports whether another worker currently owns generation.
func (s QuestionSetStatus) IsInProgress() bool {
	return s == QuestionSetStatusGenerating
}

// CanRetry reports whether a failed set is still below the retry ceiling.
func (q *QuestionSet) CanRetry(maxRetries int) bool {
	return q.Status == QuestionSetStatusFailed && q.RetryCount < maxRetries
}

// HasDerivation reports whether analysis output was already persisted.
func (q *QuestionSet) HasDerivation() bool {
	return len(q.Derivation) > 0 && string(q.Derivation) != "null"
}

func isValidQuestionSetStatus(s QuestionSetStatus) bool {
	for _, known := range QuestionSetStatuses {
		if s == known {
			return true
		}
	}
	return false
}
