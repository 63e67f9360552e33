package testdb

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/platform/postgres"
	"github.com/phrazzld/scry-hook/internal/platform/sqlite"
	"github.com/phrazzld/scry-hook/internal/platform/sqlstore"
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds database setup in tests.
const TestTimeout = 10 * time.Second

// Stores bundles a migrated database and every store built on it.
type Stores struct {
	DB           *sql.DB
	Dialect      sqlstore.Dialect
	ContentItems *sqlstore.ContentItemStore
	Containers   *sqlstore.QuizContainerStore
	QuestionSets *sqlstore.QuestionSetStore
	Sessions     *sqlstore.SessionStore
	Admissions   *sqlstore.AdmissionStore
	Blobs        *sqlstore.BlobStore
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// New opens and migrates a private in-memory SQLite database.
func New(t *testing.T) *Stores {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	require.NoError(t, err, "failed to open sqlite")
	t.Cleanup(func() { _ = db.Close() })

	return build(ctx, t, db, sqlite.Dialect{})
}

// NewPostgres opens and migrates the database at SCRY_TEST_DB_URL, skipping
// the test when the variable is unset. Tables are emptied on cleanup.
func NewPostgres(t *testing.T) *Stores {
	t.Helper()

	url := os.Getenv("SCRY_TEST_DB_URL")
	if url == "" {
		t.Skip("SCRY_TEST_DB_URL not set - skipping postgres test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	db, err := postgres.Open(ctx, config.DatabaseConfig{Driver: "postgres", URL: url, MaxOpenConns: 5})
	require.NoError(t, err, "failed to open postgres")
	t.Cleanup(func() {
		_, _ = db.Exec(`TRUNCATE sessions, user_admissions, question_sets, quiz_containers, content_items, content_blobs CASCADE`)
		_ = db.Close()
	})

	return build(ctx, t, db, postgres.Dialect{})
}

func build(ctx context.Context, t *testing.T, db *sql.DB, dialect sqlstore.Dialect) *Stores {
	t.Helper()
	logger := DiscardLogger()
	require.NoError(t, sqlstore.Migrate(ctx, db, dialect, logger), "failed to migrate")

	return &Stores{
		DB:           db,
		Dialect:      dialect,
		ContentItems: sqlstore.NewContentItemStore(db, dialect, logger),
		Containers:   sqlstore.NewQuizContainerStore(db, dialect, logger),
		QuestionSets: sqlstore.NewQuestionSetStore(db, dialect, logger),
		Sessions:     sqlstore.NewSessionStore(db, dialect, logger),
		Admissions:   sqlstore.NewAdmissionStore(db, dialect, logger),
		Blobs:        sqlstore.NewBlobStore(db, dialect, logger),
	}
}
