package generation_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/phrazzld/scry-hook/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelAnalyzer(t *testing.T) {
	t.Parallel()

	t.Run("parses fenced JSON", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{responses: []response{{text: "```json\n" + analysisJSON + "\n```"}}}
		a, err := generation.NewModelAnalyzer(model, noDelay, discardLogger())
		require.NoError(t, err)

		got, err := a.Analyze(context.Background(), "Plants use light to make sugar.")
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis", got.Title)
		require.Len(t, got.KeyConcepts, 2)
		assert.Equal(t, 5, got.KeyConcepts[0].Importance)
		assert.Contains(t, model.prompts[0], "Plants use light to make sugar.")
	})

	t.Run("retries malformed output", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{responses: []response{
			{text: "I cannot help with that"},
			{text: `{"title": "x", "key_concepts": []}`},
			{text: analysisJSON},
		}}
		a, err := generation.NewModelAnalyzer(model, noDelay, discardLogger())
		require.NoError(t, err)

		got, err := a.Analyze(context.Background(), "text")
		require.NoError(t, err)
		assert.Equal(t, "Photosynthesis", got.Title)
		assert.Equal(t, 3, model.calls())
	})

	t.Run("blocked content is not retried", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{responses: []response{{err: fmt.Errorf("%w: safety", generation.ErrContentBlocked)}}}
		a, err := generation.NewModelAnalyzer(model, noDelay, discardLogger())
		require.NoError(t, err)

		_, err = a.Analyze(context.Background(), "text")
		assert.ErrorIs(t, err, generation.ErrContentBlocked)
		assert.Equal(t, 1, model.calls())
	})

	t.Run("empty text", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{}
		a, err := generation.NewModelAnalyzer(model, noDelay, discardLogger())
		require.NoError(t, err)

		_, err = a.Analyze(context.Background(), "   ")
		assert.ErrorIs(t, err, generation.ErrEmptyText)
		assert.Zero(t, model.calls())
	})

	t.Run("long text is truncated", func(t *testing.T) {
		t.Parallel()
		model := &scriptedModel{responses: []response{{text: analysisJSON}}}
		a, err := generation.NewModelAnalyzer(model, noDelay, discardLogger())
		require.NoError(t, err)

		_, err = a.Analyze(context.Background(), strings.Repeat("é", generation.MaxPromptTextBytes))
		require.NoError(t, err)
		assert.Less(t, len(model.prompts[0]), generation.MaxPromptTextBytes+2000)
	})
}

func TestNewModelAnalyzerValidation(t *testing.T) {
	t.Parallel()

	_, err := generation.NewModelAnalyzer(nil, noDelay, discardLogger())
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = generation.NewModelAnalyzer(&scriptedModel{}, noDelay, nil)
	assert.Error(t, err)
}
