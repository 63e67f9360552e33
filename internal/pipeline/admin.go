package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

// skipReason is recorded on sessions settled by an operator skip.
const skipReason = "skipped by operator"

// SkipSession moves a session to admin_skipped and frees its slot.
func (c *Coordinator) SkipSession(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error) {
	sess, claimed, err := c.admission.Settle(ctx, sessionID, domain.SessionStatusAdminSkipped, skipReason)
	if err != nil {
		return nil, err
	}
	if claimed {
		c.metrics.settlements.WithLabelValues(string(domain.SessionStatusAdminSkipped)).Inc()
	}
	c.logger.InfoContext(ctx, "session skip requested",
		slog.String("session_id", sessionID.String()),
		slog.Bool("applied", claimed))
	return sess, nil
}

// SkipQuestionSet moves a question set to admin_skipped. Skipping a hook set
// settles every session waiting on its container. A worker already
// generating the set finds it skipped when it tries to record its result.
func (c *Coordinator) SkipQuestionSet(ctx context.Context, questionSetID uuid.UUID) (*domain.QuestionSet, error) {
	res, err := c.stores.QuestionSets.SkipQuestionSet(ctx, questionSetID)
	if err != nil {
		return nil, err
	}
	qs := res.Snapshot
	c.logger.InfoContext(ctx, "question set skip requested",
		slog.String("question_set_id", questionSetID.String()),
		slog.String("status", string(qs.Status)),
		slog.Bool("applied", res.Claimed))

	if res.Claimed && qs.Kind == domain.QuestionSetKindHook {
		if _, err := c.SettleContainer(ctx, qs.ContainerID, domain.SessionStatusAdminSkipped, skipReason); err != nil {
			return qs, err
		}
	}
	return qs, nil
}

// SkipContentItem moves a content item to admin_skipped and skips the
// question sets generated from it, so no further fetch or generation runs.
func (c *Coordinator) SkipContentItem(ctx context.Context, itemID uuid.UUID) (*domain.ContentItem, error) {
	res, err := c.stores.ContentItems.SkipContentItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "content item skip requested",
		slog.String("content_item_id", itemID.String()),
		slog.String("status", string(res.Snapshot.Status)),
		slog.Bool("applied", res.Claimed))
	if !res.Claimed {
		return res.Snapshot, nil
	}

	container, err := c.stores.Containers.EnsureQuizContainer(ctx, itemID)
	if err != nil {
		return res.Snapshot, err
	}
	for _, kind := range []domain.QuestionSetKind{domain.QuestionSetKindHook, domain.QuestionSetKindScaffold} {
		qs, err := c.stores.QuestionSets.EnsureQuestionSet(ctx, container.ID, kind)
		if err != nil {
			return res.Snapshot, err
		}
		if qs.Status.IsTerminal() || qs.Status == domain.QuestionSetStatusReady {
			continue
		}
		if _, err := c.SkipQuestionSet(ctx, qs.ID); err != nil {
			return res.Snapshot, err
		}
	}
	return res.Snapshot, nil
}
