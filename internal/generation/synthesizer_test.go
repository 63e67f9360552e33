package generation_test

import (
	"context"
	"testing"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelSynthesizer(t *testing.T) {
	t.Parallel()

	t.Run("hook", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{responses: []response{{text: "Here you go:\n" + questionsJSON}}}
		s, err := generation.NewModelSynthesizer(model, noDelay, discardLogger())
		require.NoError(t, err)

		got, err := s.Synthesize(context.Background(), generation.SynthesisRequest{
			Kind:     domain.QuestionSetKindHook,
			Analysis: testAnalysis(),
			Text:     "Plants use light.",
		})
		require.NoError(t, err)
		assert.Equal(t, domain.QuestionSetKindHook, got.Kind)
		assert.Len(t, got.Questions, 3)

		prompt := model.prompts[0]
		assert.Contains(t, prompt, "exactly 3 multiple choice questions")
		assert.Contains(t, prompt, "spark curiosity")
		assert.Contains(t, prompt, "- Chlorophyll: Absorbs light.")
	})

	t.Run("scaffold prompt", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{responses: []response{{text: questionsJSON}}}
		s, err := generation.NewModelSynthesizer(model, noDelay, discardLogger())
		require.NoError(t, err)

		_, err = s.Synthesize(context.Background(), generation.SynthesisRequest{
			Kind:     domain.QuestionSetKindScaffold,
			Analysis: testAnalysis(),
		})
		require.NoError(t, err)
		assert.Contains(t, model.prompts[0], "exactly 8 multiple choice questions")
		assert.Contains(t, model.prompts[0], "checks understanding in depth")
	})

	t.Run("invalid answer index is malformed", func(t *testing.T) {
		t.Parallel()
		bad := `{"questions": [{"prompt": "q", "options": ["a", "b"], "answer_index": 5}]}`
		model := &scriptedModel{responses: []response{{text: bad}}}
		s, err := generation.NewModelSynthesizer(model, noDelay, discardLogger())
		require.NoError(t, err)

		_, err = s.Synthesize(context.Background(), generation.SynthesisRequest{
			Kind:     domain.QuestionSetKindHook,
			Analysis: testAnalysis(),
		})
		assert.ErrorIs(t, err, generation.ErrInvalidResponse)
		assert.Equal(t, 3, model.calls())
	})

	t.Run("rejects bad requests", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{}
		s, err := generation.NewModelSynthesizer(model, noDelay, discardLogger())
		require.NoError(t, err)

		_, err = s.Synthesize(context.Background(), generation.SynthesisRequest{Kind: "quiz", Analysis: testAnalysis()})
		assert.ErrorIs(t, err, domain.ErrInvalidQuestionSetKind)

		_, err = s.Synthesize(context.Background(), generation.SynthesisRequest{Kind: domain.QuestionSetKindHook})
		assert.ErrorIs(t, err, generation.ErrGenerationFailed)
		assert.Zero(t, model.calls())
	})
}

func TestQuestionCount(t *testing.T) {
	t.Parallel()
	assert.Equal(t, generation.HookQuestionCount, generation.QuestionCount(domain.QuestionSetKindHook))
	assert.Equal(t, generation.ScaffoldQuestionCount, generation.QuestionCount(domain.QuestionSetKindScaffold))
}
