package sqlstore_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureQuestionSetPerKind(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)

	hook, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionSetStatusQueued, hook.Status)
	assert.Zero(t, hook.RetryCount)

	again, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)
	assert.Equal(t, hook.ID, again.ID)

	scaffold, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindScaffold)
	require.NoError(t, err)
	assert.NotEqual(t, hook.ID, scaffold.ID)

	found, err := s.sets.FindQuestionSet(ctx, c.ID, domain.QuestionSetKindScaffold)
	require.NoError(t, err)
	assert.Equal(t, scaffold.ID, found.ID)
}

func TestFindQuestionSetNotFound(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	c := s.seedContainer(t, testRef)

	_, err := s.sets.FindQuestionSet(context.Background(), c.ID, domain.QuestionSetKindHook)
	assert.ErrorIs(t, err, store.ErrQuestionSetNotFound)
}

func TestClaimQuestionSetHasOneWinner(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	c := s.seedContainer(t, testRef)
	qs, err := s.sets.EnsureQuestionSet(context.Background(), c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.sets.ClaimQuestionSet(context.Background(), qs.ID, 3)
			if !assert.NoError(t, err) {
				return
			}
			if res.Claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestFailQuestionSetCountsMonotonically(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)
	qs, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)

	want := []domain.QuestionSetStatus{
		domain.QuestionSetStatusFailed,
		domain.QuestionSetStatusFailed,
		domain.QuestionSetStatusRetriesExhausted,
	}
	for i, status := range want {
		res, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
		require.NoError(t, err)
		require.True(t, res.Claimed, "attempt %d", i+1)

		got, err := s.sets.FailQuestionSet(ctx, qs.ID, res.Snapshot.ClaimID, "model timeout", 3)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
		assert.Equal(t, i+1, got.RetryCount)
		assert.Equal(t, "model timeout", got.LastError)
	}

	res, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
	require.NoError(t, err)
	assert.False(t, res.Claimed)
	assert.Equal(t, domain.QuestionSetStatusRetriesExhausted, res.Snapshot.Status)
}

func TestClaimRespectsRetryCeiling(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)
	qs, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		claim, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 5)
		require.NoError(t, err)
		_, err = s.sets.FailQuestionSet(ctx, qs.ID, claim.Snapshot.ClaimID, "x", 5)
		require.NoError(t, err)
	}

	res, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 2)
	require.NoError(t, err)
	assert.False(t, res.Claimed)
	assert.Equal(t, domain.QuestionSetStatusFailed, res.Snapshot.Status)
}

func TestDerivationAndCompletion(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)
	qs, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)

	err = s.sets.SaveDerivation(ctx, qs.ID, uuid.New(), json.RawMessage(`{"title":"t"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "derivation requires a claim")
	assert.NotErrorIs(t, err, domain.ErrClaimLost)

	claim, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, claim.Snapshot.ClaimID)
	require.NoError(t, s.sets.SaveDerivation(ctx, qs.ID, claim.Snapshot.ClaimID, json.RawMessage(`{"title":"t"}`)))

	failed, err := s.sets.FailQuestionSet(ctx, qs.ID, claim.Snapshot.ClaimID, "synthesis failed", 3)
	require.NoError(t, err)
	assert.True(t, failed.HasDerivation())
	assert.JSONEq(t, `{"title":"t"}`, string(failed.Derivation))
	assert.Equal(t, uuid.Nil, failed.ClaimID)

	claim, err = s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
	require.NoError(t, err)
	ready, err := s.sets.CompleteQuestionSet(ctx, qs.ID, claim.Snapshot.ClaimID, json.RawMessage(`{"questions":[]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionSetStatusReady, ready.Status)
	assert.Empty(t, ready.LastError)
	assert.Equal(t, 1, ready.RetryCount)
	assert.JSONEq(t, `{"questions":[]}`, string(ready.Payload))
}

func TestExhaustAndSkipQuestionSet(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)
	hook, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)
	scaffold, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindScaffold)
	require.NoError(t, err)

	claim, err := s.sets.ClaimQuestionSet(ctx, hook.ID, 3)
	require.NoError(t, err)
	exhausted, err := s.sets.ExhaustQuestionSet(ctx, hook.ID, claim.Snapshot.ClaimID, "content blocked")
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionSetStatusRetriesExhausted, exhausted.Status)
	assert.Equal(t, 1, exhausted.RetryCount)

	res, err := s.sets.SkipQuestionSet(ctx, hook.ID)
	require.NoError(t, err)
	assert.False(t, res.Claimed, "terminal sets are absorbing")

	res, err = s.sets.SkipQuestionSet(ctx, scaffold.ID)
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	assert.Equal(t, domain.QuestionSetStatusAdminSkipped, res.Snapshot.Status)
}

func TestExpireStuckGenerations(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)
	qs, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)
	_, err = s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
	require.NoError(t, err)

	expired, err := s.sets.ExpireStuckGenerations(ctx, time.Now().Add(time.Minute), "claim expired", 3)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, domain.QuestionSetStatusFailed, expired[0].Status)
	assert.Equal(t, 1, expired[0].RetryCount)
	assert.Equal(t, "claim expired", expired[0].LastError)
}

func TestExpiredClaimCannotComplete(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)
	qs, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)

	first, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
	require.NoError(t, err)
	require.True(t, first.Claimed)

	_, err = s.sets.ExpireStuckGenerations(ctx, time.Now().Add(time.Minute), "claim expired", 3)
	require.NoError(t, err)

	second, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
	require.NoError(t, err)
	require.True(t, second.Claimed)
	require.NotEqual(t, first.Snapshot.ClaimID, second.Snapshot.ClaimID)

	tests := []struct {
		name string
		run  func() error
	}{
		{"derivation", func() error {
			return s.sets.SaveDerivation(ctx, qs.ID, first.Snapshot.ClaimID, json.RawMessage(`{"title":"stale"}`))
		}},
		{"complete", func() error {
			_, err := s.sets.CompleteQuestionSet(ctx, qs.ID, first.Snapshot.ClaimID, json.RawMessage(`{"questions":[]}`))
			return err
		}},
		{"fail", func() error {
			_, err := s.sets.FailQuestionSet(ctx, qs.ID, first.Snapshot.ClaimID, "late failure", 3)
			return err
		}},
		{"exhaust", func() error {
			_, err := s.sets.ExhaustQuestionSet(ctx, qs.ID, first.Snapshot.ClaimID, "late failure")
			return err
		}},
	}
	for _, tt := range tests {
		err := tt.run()
		assert.ErrorIs(t, err, domain.ErrClaimLost, tt.name)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition, tt.name)
	}

	current, err := s.sets.GetQuestionSet(ctx, qs.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionSetStatusGenerating, current.Status, "stale completions change nothing")
	assert.Equal(t, 1, current.RetryCount)
	assert.False(t, current.HasDerivation())

	ready, err := s.sets.CompleteQuestionSet(ctx, qs.ID, second.Snapshot.ClaimID, json.RawMessage(`{"questions":[]}`))
	require.NoError(t, err)
	assert.Equal(t, domain.QuestionSetStatusReady, ready.Status)
}

func TestClaimQuestionSetOnlyFromTransitionSources(t *testing.T) {
	t.Parallel()
	s := newStores(t)
	ctx := context.Background()
	c := s.seedContainer(t, testRef)

	hook, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindHook)
	require.NoError(t, err)
	claim, err := s.sets.ClaimQuestionSet(ctx, hook.ID, 3)
	require.NoError(t, err)
	_, err = s.sets.CompleteQuestionSet(ctx, hook.ID, claim.Snapshot.ClaimID, json.RawMessage(`{"questions":[]}`))
	require.NoError(t, err)

	scaffold, err := s.sets.EnsureQuestionSet(ctx, c.ID, domain.QuestionSetKindScaffold)
	require.NoError(t, err)
	_, err = s.sets.SkipQuestionSet(ctx, scaffold.ID)
	require.NoError(t, err)

	for _, qs := range []*domain.QuestionSet{hook, scaffold} {
		res, err := s.sets.ClaimQuestionSet(ctx, qs.ID, 3)
		require.NoError(t, err)
		assert.False(t, res.Claimed, "%s set", qs.Kind)
		assert.NotContains(t, domain.QuestionSetTransitions.Sources(domain.QuestionSetStatusGenerating, domain.QuestionSetStatuses),
			res.Snapshot.Status)
		assert.Equal(t, uuid.Nil, res.Snapshot.ClaimID)
	}
}
