package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

// QuizContainerStore implements store.QuizContainerStore.
type QuizContainerStore struct {
	conn
}

// NewQuizContainerStore creates a QuizContainerStore over db.
func NewQuizContainerStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *QuizContainerStore {
	return &QuizContainerStore{conn: newConn(db, dialect, logger, "quiz_container_store")}
}

var _ store.QuizContainerStore = (*QuizContainerStore)(nil)

func (s *QuizContainerStore) one(ctx context.Context, query string, args ...any) (*domain.QuizContainer, error) {
	var (
		c         domain.QuizContainer
		createdAt dbTime
	)
	err := s.queryRow(ctx, query, args...).Scan(&c.ID, &c.ContentItemID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrQuizContainerNotFound
	}
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	c.CreatedAt = createdAt.Time
	return &c, nil
}

// EnsureQuizContainer implements store.QuizContainerStore.
func (s *QuizContainerStore) EnsureQuizContainer(ctx context.Context, contentItemID uuid.UUID) (*domain.QuizContainer, error) {
	c := domain.NewQuizContainer(contentItemID)
	inserted, err := s.one(ctx, `
		INSERT INTO quiz_containers (id, content_item_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_item_id) DO NOTHING
		RETURNING id, content_item_id, created_at`,
		c.ID, contentItemID, now())
	if err == nil {
		return inserted, nil
	}
	if !errors.Is(err, store.ErrQuizContainerNotFound) {
		return nil, err
	}
	return s.one(ctx, `SELECT id, content_item_id, created_at FROM quiz_containers WHERE content_item_id = $1`,
		contentItemID)
}

// GetQuizContainer implements store.QuizContainerStore.
func (s *QuizContainerStore) GetQuizContainer(ctx context.Context, id uuid.UUID) (*domain.QuizContainer, error) {
	return s.one(ctx, `SELECT id, content_item_id, created_at FROM quiz_containers WHERE id = $1`, id)
}

// WithTx implements store.QuizContainerStore.
func (s *QuizContainerStore) WithTx(tx *sql.Tx) store.QuizContainerStore {
	return &QuizContainerStore{conn: s.withDB(tx)}
}
