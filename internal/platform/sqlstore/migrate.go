package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// MigrationStatus is the applied state of one migration.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

func newProvider(db *sql.DB, dialect Dialect) (*goose.Provider, error) {
	var gooseDialect goose.Dialect
	switch dialect.Name() {
	case "postgres":
		gooseDialect = goose.DialectPostgres
	case "sqlite":
		gooseDialect = goose.DialectSQLite3
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect.Name())
	}

	fsys, err := fs.Sub(migrationFS, "migrations/"+dialect.Name())
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	provider, err := goose.NewProvider(gooseDialect, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration provider: %w", err)
	}
	return provider, nil
}

// Migrate applies every pending migration for the dialect.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect, logger *slog.Logger) error {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return err
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	for _, r := range results {
		logger.InfoContext(ctx, "applied migration",
			slog.Int64("version", r.Source.Version),
			slog.String("path", r.Source.Path),
			slog.Duration("duration", r.Duration))
	}
	return nil
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, db *sql.DB, dialect Dialect) (int64, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return 0, err
	}
	result, err := provider.Down(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to roll back migration: %w", err)
	}
	return result.Source.Version, nil
}

// Status reports every known migration and whether it is applied.
func Status(ctx context.Context, db *sql.DB, dialect Dialect) ([]MigrationStatus, error) {
	provider, err := newProvider(db, dialect)
	if err != nil {
		return nil, err
	}
	statuses, err := provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration status: %w", err)
	}

	out := make([]MigrationStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
