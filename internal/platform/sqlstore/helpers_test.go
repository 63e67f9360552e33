package sqlstore_test

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/platform/sqlite"
	"github.com/phrazzld/scry-hook/internal/platform/sqlstore"
	"github.com/stretchr/testify/require"
)

type stores struct {
	db         *sql.DB
	items      *sqlstore.ContentItemStore
	containers *sqlstore.QuizContainerStore
	sets       *sqlstore.QuestionSetStore
	sessions   *sqlstore.SessionStore
	admissions *sqlstore.AdmissionStore
	blobs      *sqlstore.BlobStore
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStores opens a migrated in-memory database.
func newStores(t *testing.T) *stores {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	dialect := sqlite.Dialect{}
	logger := discardLogger()
	require.NoError(t, sqlstore.Migrate(ctx, db, dialect, logger))

	return &stores{
		db:         db,
		items:      sqlstore.NewContentItemStore(db, dialect, logger),
		containers: sqlstore.NewQuizContainerStore(db, dialect, logger),
		sets:       sqlstore.NewQuestionSetStore(db, dialect, logger),
		sessions:   sqlstore.NewSessionStore(db, dialect, logger),
		admissions: sqlstore.NewAdmissionStore(db, dialect, logger),
		blobs:      sqlstore.NewBlobStore(db, dialect, logger),
	}
}

func (s *stores) seedItem(t *testing.T, ref string) *domain.ContentItem {
	t.Helper()
	item, err := domain.NewContentItem(ref, ref)
	require.NoError(t, err)
	got, _, err := s.items.EnsureContentItem(context.Background(), item)
	require.NoError(t, err)
	return got
}

func (s *stores) seedContainer(t *testing.T, ref string) *domain.QuizContainer {
	t.Helper()
	item := s.seedItem(t, ref)
	c, err := s.containers.EnsureQuizContainer(context.Background(), item.ID)
	require.NoError(t, err)
	return c
}

func (s *stores) seedSession(t *testing.T, userID uuid.UUID, ref string) *domain.Session {
	t.Helper()
	sess, err := domain.NewSession(userID, ref, ref)
	require.NoError(t, err)
	got, created, err := s.sessions.CreateSession(context.Background(), sess)
	require.NoError(t, err)
	require.True(t, created)
	return got
}
