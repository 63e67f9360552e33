package generation_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedModel returns its responses in order, repeating the last one.
type scriptedModel struct {
	mu        sync.Mutex
	responses []response
	prompts   []string
}

type response struct {
	text string
	err  error
}

func (m *scriptedModel) Complete(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	r := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return r.text, r.err
}

func (m *scriptedModel) Name() string { return "scripted" }

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

var noDelay = generation.RetryPolicy{MaxAttempts: 3}

const analysisJSON = `{
  "title": "Photosynthesis",
  "summary": "How plants turn light into sugar.",
  "difficulty": "introductory",
  "key_concepts": [
    {"name": "Chlorophyll", "explanation": "Absorbs light.", "importance": 5},
    {"name": "Calvin cycle", "explanation": "Fixes carbon.", "importance": 4}
  ]
}`

const questionsJSON = `{
  "questions": [
    {"prompt": "What absorbs light?", "options": ["Chlorophyll", "Water", "Oxygen", "Soil"], "answer_index": 0},
    {"prompt": "What fixes carbon?", "options": ["Calvin cycle", "Krebs cycle"], "answer_index": 0},
    {"prompt": "What is produced?", "options": ["Sugar", "Salt"], "answer_index": 0}
  ]
}`

func testAnalysis() *domain.Analysis {
	return &domain.Analysis{
		Title:   "Photosynthesis",
		Summary: "How plants turn light into sugar.",
		KeyConcepts: []domain.Concept{
			{Name: "Chlorophyll", Explanation: "Absorbs light."},
		},
	}
}
