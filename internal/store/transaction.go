package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-hook/internal/platform/logger"
)

// MaxTxAttempts is how many times RunInTransaction runs a function whose
// transaction lost a conflict with a concurrent one.
const MaxTxAttempts = 3

// TxFn is a unit of work run inside a transaction. It may run more than once,
// so it must not keep state across attempts.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction runs fn in a transaction and commits when fn returns nil.
// Any error from fn rolls the transaction back and is returned unchanged.
// Errors matching ErrConflict restart the whole transaction, up to
// MaxTxAttempts times. A panic in fn rolls back and re-panics.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	var err error
	for attempt := 1; attempt <= MaxTxAttempts; attempt++ {
		err = runOnce(ctx, db, fn)
		if !errors.Is(err, ErrConflict) || ctx.Err() != nil {
			return err
		}
		logger.FromContext(ctx).DebugContext(ctx, "transaction conflict, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
	}
	return err
}

func runOnce(ctx context.Context, db *sql.DB, fn TxFn) (err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.ErrorContext(ctx, "failed to begin transaction", slog.String("error", err.Error()))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.ErrorContext(ctx, "rollback after panic failed",
					slog.String("error", rbErr.Error()), slog.Any("panic", p))
			}
			// ALLOW-PANIC: re-raising the caller's panic after rollback
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.ErrorContext(ctx, "failed to roll back transaction",
				slog.String("rollback_error", rbErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf("%w: rollback failed: %v (original error: %w)", ErrTransactionFailed, rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		log.ErrorContext(ctx, "failed to commit transaction", slog.String("error", err.Error()))
		return fmt.Errorf("%w: commit: %w", ErrTransactionFailed, err)
	}
	return nil
}
