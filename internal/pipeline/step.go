package pipeline

import (
	"context"

	"github.com/phrazzld/scry-hook/internal/domain"
)

// Outcome is the uniform result of a step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Result is what a step returns. Pending marks a skip caused by another
// worker owning the resource; the owner settles the session instead.
type Result struct {
	Outcome Outcome
	Pending bool
	Err     error
}

func succeeded() Result { return Result{Outcome: OutcomeSuccess} }

func failed(err error) Result { return Result{Outcome: OutcomeFailed, Err: err} }

func skipped(err error) Result { return Result{Outcome: OutcomeSkipped, Err: err} }

func pending() Result { return Result{Outcome: OutcomeSkipped, Pending: true} }

// Run carries the resources a pipeline run has resolved so far. Steps fill it
// in order.
type Run struct {
	Session     *domain.Session
	Kind        domain.QuestionSetKind
	Item        *domain.ContentItem
	Container   *domain.QuizContainer
	QuestionSet *domain.QuestionSet
}

// Step is one stage of a pipeline run. A final step's skip settles the
// session in a terminal status; any other step's skip leaves it errored.
type Step interface {
	Name() string
	Final() bool
	Execute(ctx context.Context, run *Run) Result
}
