package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/phrazzld/scry-hook/internal/config"
)

// DriverName is the database/sql driver name registered by pgx.
const DriverName = "pgx"

// pingTimeout bounds the connectivity check in Open.
const pingTimeout = 5 * time.Second

// Open connects to PostgreSQL with the configured pool settings and verifies
// the connection.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(DriverName, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Dialect is the PostgreSQL SQL dialect. Queries already use $N
// placeholders, so Rebind is the identity.
type Dialect struct{}

// Name returns "postgres".
func (Dialect) Name() string { return "postgres" }

// Rebind returns query unchanged.
func (Dialect) Rebind(query string) string { return query }

// MapError delegates to MapError.
func (Dialect) MapError(err error) error { return MapError(err) }
