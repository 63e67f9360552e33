package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	base := errors.New("connection reset")

	terminal := NewTerminalError("fetch", base)
	retryable := NewRetryableError("fetch", base)
	invalid := &InvalidStateError{Entity: "question set", ID: "x", Status: "ready", Expected: []string{"queued"}}

	assert.True(t, IsTerminal(terminal))
	assert.True(t, IsTerminal(fmt.Errorf("wrapped: %w", terminal)))
	assert.False(t, IsRetryable(terminal))

	assert.True(t, IsRetryable(retryable))
	assert.False(t, IsTerminal(retryable))

	assert.True(t, IsTerminal(invalid), "invalid state is treated as terminal")
	assert.ErrorIs(t, invalid, ErrInvalidTransition)
	assert.True(t, IsInvalidState(fmt.Errorf("claim: %w", invalid)))
	assert.False(t, IsInvalidState(terminal))
	assert.NotErrorIs(t, invalid, ErrClaimLost)

	lost := &InvalidStateError{Entity: "question set", ID: "x", Status: "generating", LostClaim: true}
	assert.ErrorIs(t, lost, ErrClaimLost)
	assert.ErrorIs(t, lost, ErrInvalidTransition)
	assert.Contains(t, lost.Error(), "claim no longer held")

	assert.ErrorIs(t, terminal, base)
	assert.Contains(t, retryable.Error(), "fetch")
}

func TestQuestionPayload_Validate(t *testing.T) {
	t.Parallel()

	valid := QuestionPayload{Kind: QuestionSetKindHook, Questions: []Question{
		{Prompt: "What?", Options: []string{"a", "b"}, AnswerIndex: 1},
	}}
	assert.NoError(t, valid.Validate())

	assert.ErrorIs(t, (&QuestionPayload{}).Validate(), ErrEmptyQuestions)

	bad := QuestionPayload{Questions: []Question{{Prompt: "What?", Options: []string{"a", "b"}, AnswerIndex: 2}}}
	assert.ErrorIs(t, bad.Validate(), ErrInvalidQuestion)
}
