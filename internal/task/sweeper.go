package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

// Sweeper defaults.
const (
	DefaultStuckClaimAge = 15 * time.Minute
	DefaultSweepBatch    = 100
)

// stuckGenerationError is recorded on question sets whose claim expired.
const stuckGenerationError = "generation did not finish before the claim expired"

// SweeperConfig tunes a Sweeper.
type SweeperConfig struct {
	StuckClaimAge         time.Duration
	MaxQuestionSetRetries int
	MaxFetchAttempts      int
	BatchSize             int
}

// SweepReport summarises one sweep.
type SweepReport struct {
	ExpiredGenerations int
	ExpiredFetches     int
	Retriggered        int
}

// Sweeper expires claims abandoned by crashed or stalled workers and
// retriggers sessions that are waiting for another attempt.
type Sweeper struct {
	contents     store.ContentItemStore
	questionSets store.QuestionSetStore
	sessions     store.SessionStore
	factory      *Factory
	submitter    Submitter
	cfg          SweeperConfig
	logger       *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(
	contents store.ContentItemStore,
	questionSets store.QuestionSetStore,
	sessions store.SessionStore,
	factory *Factory,
	submitter Submitter,
	cfg SweeperConfig,
	logger *slog.Logger,
) (*Sweeper, error) {
	if contents == nil || questionSets == nil || sessions == nil {
		return nil, errors.New("sweeper requires content, question set and session stores")
	}
	if factory == nil || submitter == nil {
		return nil, errors.New("sweeper requires a task factory and submitter")
	}
	if cfg.StuckClaimAge <= 0 {
		cfg.StuckClaimAge = DefaultStuckClaimAge
	}
	if cfg.MaxQuestionSetRetries < 1 {
		cfg.MaxQuestionSetRetries = domain.DefaultMaxQuestionSetRetries
	}
	if cfg.MaxFetchAttempts < 1 {
		cfg.MaxFetchAttempts = 3
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultSweepBatch
	}
	return &Sweeper{
		contents:     contents,
		questionSets: questionSets,
		sessions:     sessions,
		factory:      factory,
		submitter:    submitter,
		cfg:          cfg,
		logger:       logger.With("component", "sweeper"),
	}, nil
}

// Sweep expires stuck claims, then retriggers the sessions waiting on the
// expired question sets, every errored session, and active sessions that have
// sat idle for a full claim age with no generation under way for them.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	cutoff := time.Now().UTC().Add(-s.cfg.StuckClaimAge)

	expired, err := s.questionSets.ExpireStuckGenerations(ctx, cutoff, stuckGenerationError, s.cfg.MaxQuestionSetRetries)
	if err != nil {
		return report, fmt.Errorf("failed to expire stuck generations: %w", err)
	}
	report.ExpiredGenerations = len(expired)

	fetches, err := s.contents.ExpireStuckFetches(ctx, cutoff, s.cfg.MaxFetchAttempts)
	if err != nil {
		return report, fmt.Errorf("failed to expire stuck fetches: %w", err)
	}
	report.ExpiredFetches = len(fetches)

	seen := make(map[uuid.UUID]bool)
	for _, qs := range expired {
		if qs.Kind != domain.QuestionSetKindHook {
			continue
		}
		waiting, err := s.sessions.ListByContainer(ctx, qs.ContainerID,
			[]domain.SessionStatus{domain.SessionStatusActive, domain.SessionStatusErrored})
		if err != nil {
			return report, fmt.Errorf("failed to list sessions for expired question set: %w", err)
		}
		report.Retriggered += s.trigger(waiting, seen)
	}

	errored, err := s.sessions.ListByStatus(ctx, []domain.SessionStatus{domain.SessionStatusErrored}, s.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list errored sessions: %w", err)
	}
	report.Retriggered += s.trigger(errored, seen)

	stalled, err := s.stalledSessions(ctx, cutoff)
	if err != nil {
		return report, err
	}
	report.Retriggered += s.trigger(stalled, seen)

	if report != (SweepReport{}) {
		s.logger.InfoContext(ctx, "sweep finished",
			"expired_generations", report.ExpiredGenerations,
			"expired_fetches", report.ExpiredFetches,
			"retriggered", report.Retriggered)
	}
	return report, nil
}

// Recover retriggers sessions that were active or errored when the process
// last stopped, since their triggering tasks died with it.
func (s *Sweeper) Recover(ctx context.Context) (int, error) {
	sessions, err := s.sessions.ListByStatus(ctx,
		[]domain.SessionStatus{domain.SessionStatusActive, domain.SessionStatusErrored}, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions to recover: %w", err)
	}
	n := s.trigger(sessions, make(map[uuid.UUID]bool))
	s.logger.InfoContext(ctx, "recovering unfinished sessions", "count", n)
	return n, nil
}

// stalledSessions finds active sessions idle since cutoff whose hook set is
// not generating. Their trigger was lost, for example when the run that owned
// a shared hook set failed and its session was archived before a retry.
func (s *Sweeper) stalledSessions(ctx context.Context, cutoff time.Time) ([]*domain.Session, error) {
	idle, err := s.sessions.ListIdle(ctx, []domain.SessionStatus{domain.SessionStatusActive}, cutoff, s.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list idle sessions: %w", err)
	}

	var stalled []*domain.Session
	for _, sess := range idle {
		if sess.ContainerID != nil {
			hook, err := s.questionSets.FindQuestionSet(ctx, *sess.ContainerID, domain.QuestionSetKindHook)
			if err != nil && !errors.Is(err, store.ErrQuestionSetNotFound) {
				return nil, fmt.Errorf("failed to load hook set for idle session: %w", err)
			}
			if hook != nil && hook.Status.IsInProgress() {
				continue
			}
		}
		stalled = append(stalled, sess)
	}
	return stalled, nil
}

func (s *Sweeper) trigger(sessions []*domain.Session, seen map[uuid.UUID]bool) int {
	var n int
	for _, sess := range sessions {
		if seen[sess.ID] {
			continue
		}
		seen[sess.ID] = true
		if err := s.submitter.Submit(s.factory.SessionRun(sess.ID)); err != nil {
			s.logger.Error("failed to retrigger session",
				"session_id", sess.ID,
				"error", err)
			continue
		}
		n++
	}
	return n
}
