package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

// Step names, used in logs, metrics and recorded session errors.
const (
	StepContentItem   = "ensure_content_item"
	StepQuizContainer = "ensure_quiz_container"
	StepQuestionSet   = "ensure_question_set"
	StepGenerate      = "generate"
)

type ensureContentItem struct {
	contents store.ContentItemStore
}

func (ensureContentItem) Name() string { return StepContentItem }
func (ensureContentItem) Final() bool  { return false }

func (s ensureContentItem) Execute(ctx context.Context, run *Run) Result {
	item, err := domain.NewContentItem(run.Session.NormalizedReference, run.Session.Reference)
	if err != nil {
		return failed(err)
	}
	existing, _, err := s.contents.EnsureContentItem(ctx, item)
	if err != nil {
		return failed(err)
	}
	run.Item = existing
	return succeeded()
}

type ensureQuizContainer struct {
	containers store.QuizContainerStore
	sessions   store.SessionStore
}

func (ensureQuizContainer) Name() string { return StepQuizContainer }
func (ensureQuizContainer) Final() bool  { return false }

func (s ensureQuizContainer) Execute(ctx context.Context, run *Run) Result {
	container, err := s.containers.EnsureQuizContainer(ctx, run.Item.ID)
	if err != nil {
		return failed(err)
	}
	run.Container = container

	if run.Session.ContainerID == nil {
		if err := s.sessions.AttachContainer(ctx, run.Session.ID, container.ID); err != nil {
			return failed(err)
		}
		run.Session.ContainerID = &container.ID
	}
	return succeeded()
}

type ensureQuestionSet struct {
	questionSets store.QuestionSetStore
}

func (ensureQuestionSet) Name() string { return StepQuestionSet }
func (ensureQuestionSet) Final() bool  { return false }

func (s ensureQuestionSet) Execute(ctx context.Context, run *Run) Result {
	qs, err := s.questionSets.EnsureQuestionSet(ctx, run.Container.ID, run.Kind)
	if err != nil {
		return failed(err)
	}
	run.QuestionSet = qs
	return succeeded()
}

// generate claims the question set and hands it to the generator. It is the
// only step that races with other runs.
type generate struct {
	questionSets store.QuestionSetStore
	generator    Generator
}

func (generate) Name() string { return StepGenerate }
func (generate) Final() bool  { return true }

func (s generate) Execute(ctx context.Context, run *Run) Result {
	if r, done := settledResult(run.QuestionSet); done {
		return r
	}

	res, err := s.questionSets.ClaimQuestionSet(ctx, run.QuestionSet.ID, s.generator.MaxQuestionSetRetries())
	if err != nil {
		return failed(err)
	}
	run.QuestionSet = res.Snapshot
	if !res.Claimed {
		if r, done := settledResult(res.Snapshot); done {
			return r
		}
		if res.Snapshot.Status.IsInProgress() {
			return pending()
		}
		return failed(questionSetError(res.Snapshot))
	}

	settled, err := s.generator.Generate(ctx, res.Snapshot, run.Item)
	if err != nil {
		return failed(err)
	}
	run.QuestionSet = settled
	if r, done := settledResult(settled); done {
		return r
	}
	if settled.Status.IsInProgress() {
		// The claim expired mid-run and another run now owns the set.
		return pending()
	}
	return failed(questionSetError(settled))
}

// settledResult maps a ready or terminal question set onto a step result.
func settledResult(qs *domain.QuestionSet) (Result, bool) {
	switch {
	case qs.Status == domain.QuestionSetStatusReady:
		return succeeded(), true
	case qs.Status.IsTerminal():
		return skipped(questionSetError(qs)), true
	}
	return Result{}, false
}

func questionSetError(qs *domain.QuestionSet) error {
	if qs.LastError != "" {
		return errors.New(qs.LastError)
	}
	return fmt.Errorf("%s question set is %s", qs.Kind, qs.Status)
}
