package store

import (
	"context"
	"database/sql"
)

// DBTX is an interface that abstracts the database access layer.
// It is implemented by both *sql.DB and *sql.Tx, allowing stores
// to run either against the pool or inside a caller's transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ClaimResult is the outcome of an atomic conditional transition. Exactly one
// of any number of concurrent callers racing from the same eligible state
// receives Claimed == true. Snapshot is always the row as the caller should
// see it: the updated row for the winner, the current row for everyone else.
type ClaimResult[T any] struct {
	Claimed  bool
	Snapshot *T
}

// Claimed builds a winning ClaimResult.
func Claimed[T any](snapshot *T) ClaimResult[T] {
	return ClaimResult[T]{Claimed: true, Snapshot: snapshot}
}

// Lost builds a losing ClaimResult carrying the current row.
func Lost[T any](snapshot *T) ClaimResult[T] {
	return ClaimResult[T]{Claimed: false, Snapshot: snapshot}
}
