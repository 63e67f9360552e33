package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSession(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	s, err := NewSession(userID, "https://Example.com/a", "https://example.com/a")
	require.NoError(t, err)

	assert.Equal(t, SessionStatusQueued, s.Status)
	assert.Equal(t, StudyProgressNotStarted, s.StudyProgress)
	assert.Len(t, s.Token, SessionTokenBytes*2)
	assert.False(t, s.HoldsSlot)
	assert.False(t, s.IsArchived())

	other, err := NewSession(userID, "https://example.com/a", "https://example.com/a")
	require.NoError(t, err)
	assert.NotEqual(t, s.Token, other.Token)

	_, err = NewSession(uuid.Nil, "x", "x")
	assert.ErrorIs(t, err, ErrEmptySessionUserID)
}

func TestSessionStatus_Predicates(t *testing.T) {
	t.Parallel()

	assert.True(t, SessionStatusActive.HoldsSlot())
	assert.True(t, SessionStatusErrored.HoldsSlot())
	assert.False(t, SessionStatusQueued.HoldsSlot())
	assert.False(t, SessionStatusReady.HoldsSlot())

	assert.True(t, SessionStatusReady.IsSettled())
	assert.False(t, SessionStatusReady.IsTerminal())
	assert.True(t, SessionStatusAdminSkipped.IsTerminal())
}

func TestSession_Admitted(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status SessionStatus
		want   bool
	}{
		{SessionStatusQueued, false},
		{SessionStatusActive, true},
		{SessionStatusErrored, true},
		{SessionStatusReady, true},
		{SessionStatusRetriesExhausted, false},
		{SessionStatusAdminSkipped, false},
	}
	for _, tt := range tests {
		s := &Session{Status: tt.status}
		assert.Equal(t, tt.want, s.Admitted(), string(tt.status))
	}
}

func TestSessionStatusForQuestionSet(t *testing.T) {
	t.Parallel()

	got, ok := SessionStatusForQuestionSet(QuestionSetStatusReady)
	assert.True(t, ok)
	assert.Equal(t, SessionStatusReady, got)

	got, ok = SessionStatusForQuestionSet(QuestionSetStatusRetriesExhausted)
	assert.True(t, ok)
	assert.Equal(t, SessionStatusRetriesExhausted, got)

	_, ok = SessionStatusForQuestionSet(QuestionSetStatusFailed)
	assert.False(t, ok)
}
