package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/phrazzld/scry-hook/internal/platform/sqlite"
	"github.com/phrazzld/scry-hook/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{name: "no placeholders", query: "SELECT 1", want: "SELECT 1"},
		{name: "single", query: "SELECT * FROM t WHERE id = $1", want: "SELECT * FROM t WHERE id = ?1"},
		{
			name:  "multi digit",
			query: "UPDATE t SET a = $10, b = $2 WHERE id = $11",
			want:  "UPDATE t SET a = ?10, b = ?2 WHERE id = ?11",
		},
		{name: "bare dollar", query: "SELECT '$' || $1", want: "SELECT '$' || ?1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, sqlite.Dialect{}.Rebind(tt.query))
		})
	}
}

func TestBuildDSN(t *testing.T) {
	t.Parallel()

	assert.Equal(t,
		":memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqlite.BuildDSN(":memory:"))
	assert.Equal(t,
		"file:scry.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqlite.BuildDSN("file:scry.db?mode=rwc"))
}

func TestOpenAndMapError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := sqlite.Open(ctx, sqlite.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx, `CREATE TABLE things (id TEXT PRIMARY KEY, name TEXT NOT NULL UNIQUE)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO things (id, name) VALUES (?1, ?2)`, "a", "one")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, `INSERT INTO things (id, name) VALUES (?1, ?2)`, "b", "one")
	require.Error(t, err)
	assert.ErrorIs(t, sqlite.MapError(err), store.ErrDuplicate)

	_, err = db.ExecContext(ctx, `INSERT INTO things (id, name) VALUES (?1, NULL)`, "c")
	require.Error(t, err)
	assert.ErrorIs(t, sqlite.MapError(err), store.ErrInvalidEntity)

	var name string
	err = db.QueryRowContext(ctx, `SELECT name FROM things WHERE id = ?1`, "missing").Scan(&name)
	assert.ErrorIs(t, sqlite.MapError(err), store.ErrNotFound)
}

func TestMapErrorPassthrough(t *testing.T) {
	t.Parallel()

	assert.NoError(t, sqlite.MapError(nil))
	plain := errors.New("disk full")
	assert.Same(t, plain, sqlite.MapError(plain))
	assert.ErrorIs(t, sqlite.MapError(sql.ErrNoRows), store.ErrNotFound)
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	t.Parallel()

	_, err := sqlite.Open(context.Background(), "")
	assert.Error(t, err)
}
