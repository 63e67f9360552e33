package domain

import (
	"errors"
	"fmt"
)

// Analysis is the structural and pedagogical metadata produced by the
// analysis step and consumed by synthesis.
type Analysis struct {
	Title         string    `json:"title"`
	Summary       string    `json:"summary"`
	Difficulty    string    `json:"difficulty,omitempty"`
	KeyConcepts   []Concept `json:"key_concepts"`
	Prerequisites []string  `json:"prerequisites,omitempty"`
}

// Concept is one idea the analysis found worth testing.
type Concept struct {
	Name        string `json:"name"`
	Explanation string `json:"explanation"`
	Importance  int    `json:"importance,omitempty"`
}

// QuestionPayload is the generated quiz stored on a ready question set.
type QuestionPayload struct {
	Kind      QuestionSetKind `json:"kind"`
	Questions []Question      `json:"questions"`
}

// Question is a single multiple choice item.
type Question struct {
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answer_index"`
	Explanation string   `json:"explanation,omitempty"`
	Concept     string   `json:"concept,omitempty"`
}

var (
	ErrEmptyAnalysis   = errors.New("analysis has no key concepts")
	ErrEmptyQuestions  = errors.New("question payload has no questions")
	ErrInvalidQuestion = errors.New("invalid question")
)

// Validate checks that the analysis carries something to build questions from.
func (a *Analysis) Validate() error {
	if len(a.KeyConcepts) == 0 {
		return ErrEmptyAnalysis
	}
	return nil
}

// Validate checks every question in the payload.
func (p *QuestionPayload) Validate() error {
	if len(p.Questions) == 0 {
		return ErrEmptyQuestions
	}
	for i, q := range p.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single question.
func (q *Question) Validate() error {
	if q.Prompt == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: fewer than two options", ErrInvalidQuestion)
	}
	if q.AnswerIndex < 0 || q.AnswerIndex >= len(q.Options) {
		return fmt.Errorf("%w: answer index %d out of range", ErrInvalidQuestion, q.AnswerIndex)
	}
	return nil
}
