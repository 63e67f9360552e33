package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/scry-hook/internal/store"
)

// Dialect adapts the shared SQL to a database engine.
type Dialect interface {
	// Name is the engine name: "postgres" or "sqlite".
	Name() string

	// Rebind rewrites $N placeholders into the engine's form.
	Rebind(query string) string

	// MapError translates driver errors into store errors.
	MapError(err error) error
}

// conn is the query surface shared by every store in this package.
type conn struct {
	db      store.DBTX
	dialect Dialect
	logger  *slog.Logger
}

func newConn(db store.DBTX, dialect Dialect, logger *slog.Logger, component string) conn {
	if db == nil {
		panic("db cannot be nil")
	}
	if dialect == nil {
		panic("dialect cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return conn{db: db, dialect: dialect, logger: logger.With(slog.String("component", component))}
}

func (c conn) withDB(db store.DBTX) conn {
	c.db = db
	return c
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, c.dialect.Rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := c.db.QueryContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return nil, c.dialect.MapError(err)
	}
	return rows, nil
}

func (c conn) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.db.ExecContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return 0, c.dialect.MapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

// placeholders returns "$start, $start+1, ..." for n parameters.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

// now returns the current time in the precision both engines round-trip.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// timestampLayouts are the text forms a timestamp may come back in when the
// driver cannot see the column type.
var timestampLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// dbTime scans a nullable timestamp delivered as time.Time or text.
type dbTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (d *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		d.Time, d.Valid = time.Time{}, false
		return nil
	case time.Time:
		d.Time, d.Valid = v.UTC(), true
		return nil
	case string:
		return d.parse(v)
	case []byte:
		return d.parse(string(v))
	default:
		return fmt.Errorf("cannot scan %T into timestamp", src)
	}
}

func (d *dbTime) parse(s string) error {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time, d.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// Ptr returns nil for NULL.
func (d dbTime) Ptr() *time.Time {
	if !d.Valid {
		return nil
	}
	t := d.Time
	return &t
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
