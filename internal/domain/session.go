package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the coarse caller-facing generation status of a session.
type SessionStatus string

// Possible session status values
const (
	SessionStatusQueued           SessionStatus = "queued"
	SessionStatusActive           SessionStatus = "active"
	SessionStatusReady            SessionStatus = "ready"
	SessionStatusErrored          SessionStatus = "errored"
	SessionStatusRetriesExhausted SessionStatus = "retries_exhausted"
	SessionStatusAdminSkipped     SessionStatus = "admin_skipped"
)

// StudyProgress is the caller-driven study dimension of a session. It moves
// independently of generation status.
type StudyProgress string

const (
	StudyProgressNotStarted StudyProgress = "not_started"
	StudyProgressInProgress StudyProgress = "in_progress"
	StudyProgressCompleted  StudyProgress = "completed"
)

// SessionTokenBytes is the number of random bytes in a session token.
const SessionTokenBytes = 24

// SessionTransitions is the allowed-transition table for sessions. A queued
// session may settle without ever becoming active when its hook set was
// already finished by another session.
var SessionTransitions = Transitions[SessionStatus]{
	SessionStatusQueued: {
		SessionStatusActive,
		SessionStatusReady,
		SessionStatusRetriesExhausted,
		SessionStatusAdminSkipped,
	},
	SessionStatusActive: {
		SessionStatusReady,
		SessionStatusErrored,
		SessionStatusRetriesExhausted,
		SessionStatusAdminSkipped,
	},
	SessionStatusErrored: {
		SessionStatusActive,
		SessionStatusReady,
		SessionStatusRetriesExhausted,
		SessionStatusAdminSkipped,
	},
}

// SessionStatuses lists session statuses in lifecycle order.
var SessionStatuses = []SessionStatus{
	SessionStatusQueued,
	SessionStatusActive,
	SessionStatusReady,
	SessionStatusErrored,
	SessionStatusRetriesExhausted,
	SessionStatusAdminSkipped,
}

var (
	ErrEmptySessionUserID   = errors.New("session user ID cannot be empty")
	ErrEmptySessionToken    = errors.New("session token cannot be empty")
	ErrInvalidSessionStatus = errors.New("invalid session status")
	ErrInvalidStudyProgress = errors.New("invalid study progress")
)

// Session is the externally addressable handle a caller polls.
type Session struct {
	ID                  uuid.UUID     `json:"id"`
	Token               string        `json:"token"`
	UserID              uuid.UUID     `json:"user_id"`
	Reference           string        `json:"reference"`
	NormalizedReference string        `json:"normalized_reference"`
	ContainerID         *uuid.UUID    `json:"container_id,omitempty"`
	Status              SessionStatus `json:"status"`
	StudyProgress       StudyProgress `json:"study_progress"`
	HoldsSlot           bool          `json:"holds_slot"`
	LastError           string        `json:"last_error,omitempty"`
	ArchivedAt          *time.Time    `json:"archived_at,omitempty"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// NewSession creates a queued session with a fresh opaque token.
func NewSession(userID uuid.UUID, reference, normalizedRef string) (*Session, error) {
	token, err := NewSessionToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	s := &Session{
		ID:                  uuid.New(),
		Token:               token,
		UserID:              userID,
		Reference:           reference,
		NormalizedReference: normalizedRef,
		Status:              SessionStatusQueued,
		StudyProgress:       StudyProgressNotStarted,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewSessionToken returns a random hex token.
func NewSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Validate checks if the Session has valid data.
func (s *Session) Validate() error {
	if s.UserID == uuid.Nil {
		return ErrEmptySessionUserID
	}
	if s.Token == "" {
		return ErrEmptySessionToken
	}
	if s.NormalizedReference == "" {
		return ErrEmptyContentReference
	}
	if !isValidSessionStatus(s.Status) {
		return ErrInvalidSessionStatus
	}
	if !s.StudyProgress.IsValid() {
		return ErrInvalidStudyProgress
	}
	return nil
}

// IsArchived reports whether the caller archived the session.
func (s *Session) IsArchived() bool {
	return s.ArchivedAt != nil
}

// Admitted reports whether the session may start generation work: it holds
// an admission slot or its hook set is already ready.
func (s *Session) Admitted() bool {
	return s.Status.HoldsSlot() || s.Status == SessionStatusReady
}

// IsTerminal reports whether s is an absorbing session status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusRetriesExhausted || s == SessionStatusAdminSkipped
}

// IsSettled reports whether the session reached a final generation outcome.
// Ready is final for a session even though it is not an error state.
func (s SessionStatus) IsSettled() bool {
	return s == SessionStatusReady || s.IsTerminal()
}

// HoldsSlot reports whether sessions in this status consume admission
// capacity. Errored sessions keep their slot while awaiting retry.
func (s SessionStatus) HoldsSlot() bool {
	return s == SessionStatusActive || s == SessionStatusErrored
}

// IsValid reports whether p is a known study progress value.
func (p StudyProgress) IsValid() bool {
	switch p {
	case StudyProgressNotStarted, StudyProgressInProgress, StudyProgressCompleted:
		return true
	}
	return false
}

// SessionStatusForQuestionSet maps a settled hook question set status onto
// the session status it implies. The second result is false when the
// question set has not settled.
func SessionStatusForQuestionSet(s QuestionSetStatus) (SessionStatus, bool) {
	switch s {
	case QuestionSetStatusReady:
		return SessionStatusReady, true
	case QuestionSetStatusRetriesExhausted:
		return SessionStatusRetriesExhausted, true
	case QuestionSetStatusAdminSkipped:
		return SessionStatusAdminSkipped, true
	}
	return "", false
}

func isValidSessionStatus(s SessionStatus) bool {
	for _, known := range SessionStatuses {
		if s == known {
			return true
		}
	}
	return false
}
