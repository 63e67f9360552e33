package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
	"github.com/phrazzld/scry-hook/internal/redact"
	"github.com/phrazzld/scry-hook/internal/store"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// Default tuning values.
const (
	DefaultConcurrency       = 4
	DefaultMaxFetchAttempts  = 3
	DefaultFetchWaitInterval = 500 * time.Millisecond
	DefaultFetchWaitTimeout  = 2 * time.Minute
)

var (
	// ErrFetchPending is returned when another worker still owns the content
	// item's fetch after the wait timeout.
	ErrFetchPending = errors.New("content fetch still in progress elsewhere")

	// ErrNotClaimed is returned by Generate for a question set the caller has
	// not claimed.
	ErrNotClaimed = errors.New("question set is not generating")
)

// Config tunes a Worker.
type Config struct {
	Concurrency           int
	MaxFetchAttempts      int
	MaxQuestionSetRetries int
	FreshnessWindow       time.Duration
	FetchWaitInterval     time.Duration
	FetchWaitTimeout      time.Duration
	FetchRetry            generation.RetryPolicy
	ErrorSummaryLength    int
}

func (c *Config) applyDefaults() {
	if c.Concurrency < 1 {
		c.Concurrency = DefaultConcurrency
	}
	if c.MaxFetchAttempts < 1 {
		c.MaxFetchAttempts = DefaultMaxFetchAttempts
	}
	if c.MaxQuestionSetRetries < 1 {
		c.MaxQuestionSetRetries = domain.DefaultMaxQuestionSetRetries
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = domain.DefaultFreshnessWindow
	}
	if c.FetchWaitInterval <= 0 {
		c.FetchWaitInterval = DefaultFetchWaitInterval
	}
	if c.FetchWaitTimeout <= 0 {
		c.FetchWaitTimeout = DefaultFetchWaitTimeout
	}
	if c.FetchRetry.MaxAttempts < 1 {
		c.FetchRetry = generation.DefaultRetryPolicy
	}
	if c.ErrorSummaryLength <= 0 {
		c.ErrorSummaryLength = redact.DefaultSummaryLength
	}
}

// Worker fetches documents and generates question sets.
type Worker struct {
	contents     store.ContentItemStore
	blobs        store.BlobStore
	questionSets store.QuestionSetStore
	fetcher      generation.DocumentFetcher
	analyzer     generation.Analyzer
	synthesizer  generation.Synthesizer
	cfg          Config
	sem          *semaphore.Weighted
	waits        singleflight.Group
	logger       *slog.Logger
}

// New creates a Worker.
func New(
	contents store.ContentItemStore,
	blobs store.BlobStore,
	questionSets store.QuestionSetStore,
	fetcher generation.DocumentFetcher,
	analyzer generation.Analyzer,
	synthesizer generation.Synthesizer,
	cfg Config,
	logger *slog.Logger,
) (*Worker, error) {
	switch {
	case contents == nil, blobs == nil, questionSets == nil:
		return nil, errors.New("worker requires content, blob and question set stores")
	case fetcher == nil:
		return nil, errors.New("document fetcher cannot be nil")
	case analyzer == nil:
		return nil, errors.New("analyzer cannot be nil")
	case synthesizer == nil:
		return nil, errors.New("synthesizer cannot be nil")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}
	cfg.applyDefaults()

	return &Worker{
		contents:     contents,
		blobs:        blobs,
		questionSets: questionSets,
		fetcher:      fetcher,
		analyzer:     analyzer,
		synthesizer:  synthesizer,
		cfg:          cfg,
		sem:          semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:       logger.With(slog.String("component", "generation_worker")),
	}, nil
}

// MaxQuestionSetRetries returns the outer retry ceiling the worker applies.
func (w *Worker) MaxQuestionSetRetries() int { return w.cfg.MaxQuestionSetRetries }

// Generate runs analysis and synthesis for a question set the caller has
// claimed, loading the item's text first. The outcome is recorded on the
// question set, which is returned settled in ready, failed or
// retries_exhausted.
func (w *Worker) Generate(ctx context.Context, qs *domain.QuestionSet, item *domain.ContentItem) (*domain.QuestionSet, error) {
	if qs.Status != domain.QuestionSetStatusGenerating {
		return nil, fmt.Errorf("%w: %s", ErrNotClaimed, qs.Status)
	}

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return w.recordFailure(ctx, qs, domain.NewRetryableError("acquire generation slot", err))
	}
	defer w.sem.Release(1)

	log := w.logger.With(
		slog.String("question_set_id", qs.ID.String()),
		slog.String("kind", string(qs.Kind)),
		slog.Int("retry_count", qs.RetryCount))
	log.InfoContext(ctx, "generating question set")
	start := time.Now()

	payload, err := w.generate(ctx, qs, item)
	if err != nil {
		return w.recordFailure(ctx, qs, err)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return w.recordFailure(ctx, qs, domain.NewTerminalError("encode payload", err))
	}
	done, err := w.questionSets.CompleteQuestionSet(context.WithoutCancel(ctx), qs.ID, qs.ClaimID, raw)
	if domain.IsInvalidState(err) {
		return w.current(ctx, qs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to complete question set: %w", err)
	}
	log.InfoContext(ctx, "question set ready",
		slog.Int("questions", len(payload.Questions)),
		slog.Duration("duration", time.Since(start)))
	return done, nil
}

func (w *Worker) generate(ctx context.Context, qs *domain.QuestionSet, item *domain.ContentItem) (*domain.QuestionPayload, error) {
	_, text, err := w.LoadContent(ctx, item)
	if err != nil {
		return nil, err
	}

	analysis, err := w.analysisFor(ctx, qs, text)
	if err != nil {
		return nil, err
	}

	return w.synthesizer.Synthesize(ctx, generation.SynthesisRequest{
		Kind:     qs.Kind,
		Analysis: analysis,
		Text:     text,
	})
}

// analysisFor returns the persisted analysis of qs or of its sibling kind on
// the same container, running and persisting a new one only when neither
// exists.
func (w *Worker) analysisFor(ctx context.Context, qs *domain.QuestionSet, text string) (*domain.Analysis, error) {
	if qs.HasDerivation() {
		if a, err := decodeAnalysis(qs.Derivation); err == nil {
			w.logger.DebugContext(ctx, "reusing persisted analysis", slog.String("question_set_id", qs.ID.String()))
			return a, nil
		}
	}

	derivation := w.siblingDerivation(ctx, qs)
	if derivation == nil {
		analysis, err := w.analyzer.Analyze(ctx, text)
		if err != nil {
			return nil, err
		}
		if derivation, err = json.Marshal(analysis); err != nil {
			return nil, domain.NewTerminalError("encode analysis", err)
		}
	}

	if err := w.questionSets.SaveDerivation(ctx, qs.ID, qs.ClaimID, derivation); err != nil {
		return nil, err
	}
	qs.Derivation = derivation
	return decodeAnalysis(derivation)
}

func (w *Worker) siblingDerivation(ctx context.Context, qs *domain.QuestionSet) json.RawMessage {
	other := domain.QuestionSetKindScaffold
	if qs.Kind == domain.QuestionSetKindScaffold {
		other = domain.QuestionSetKindHook
	}
	sibling, err := w.questionSets.FindQuestionSet(ctx, qs.ContainerID, other)
	if err != nil || !sibling.HasDerivation() {
		return nil
	}
	if _, err := decodeAnalysis(sibling.Derivation); err != nil {
		return nil
	}
	w.logger.DebugContext(ctx, "reusing sibling analysis",
		slog.String("question_set_id", qs.ID.String()),
		slog.String("sibling_id", sibling.ID.String()))
	return sibling.Derivation
}

func decodeAnalysis(raw json.RawMessage) (*domain.Analysis, error) {
	var a domain.Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

// recordFailure stores err on the question set. Terminal faults and safety
// blocks exhaust the set at once; everything else, malformed output
// included, counts against the retry ceiling.
func (w *Worker) recordFailure(ctx context.Context, qs *domain.QuestionSet, cause error) (*domain.QuestionSet, error) {
	ctx = context.WithoutCancel(ctx)
	summary := redact.Summary(cause, w.cfg.ErrorSummaryLength)

	var (
		settled *domain.QuestionSet
		err     error
	)
	if IsTerminal(cause) {
		settled, err = w.questionSets.ExhaustQuestionSet(ctx, qs.ID, qs.ClaimID, summary)
	} else {
		settled, err = w.questionSets.FailQuestionSet(ctx, qs.ID, qs.ClaimID, summary, w.cfg.MaxQuestionSetRetries)
	}
	if domain.IsInvalidState(err) {
		return w.current(ctx, qs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to record generation failure: %w", err)
	}

	w.logger.WarnContext(ctx, "question set generation failed",
		slog.String("question_set_id", qs.ID.String()),
		slog.String("kind", string(qs.Kind)),
		slog.String("status", string(settled.Status)),
		slog.Int("retry_count", settled.RetryCount),
		slog.Bool("terminal", IsTerminal(cause)),
		slog.String("error", summary))
	return settled, nil
}

// current rereads a set this worker no longer holds: an operator skipped it,
// or the sweeper expired the claim and another run may have re-claimed it.
func (w *Worker) current(ctx context.Context, qs *domain.QuestionSet) (*domain.QuestionSet, error) {
	latest, err := w.questionSets.GetQuestionSet(context.WithoutCancel(ctx), qs.ID)
	if err != nil {
		return nil, err
	}
	w.logger.InfoContext(ctx, "question set changed during generation",
		slog.String("question_set_id", qs.ID.String()),
		slog.String("status", string(latest.Status)))
	return latest, nil
}

// IsTerminal reports whether a generation error must not be retried at any
// level.
func IsTerminal(err error) bool {
	return domain.IsTerminal(err) || errors.Is(err, generation.ErrContentBlocked)
}
