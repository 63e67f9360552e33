package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/platform/logger"
)

// RetryPolicy bounds the local retry of one external call. The delay between
// attempts is fixed.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryPolicy is three attempts two seconds apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Delay: 2 * time.Second}

// Retry calls fn until it succeeds, fails permanently, or the policy runs
// out of attempts. Exhausting the attempts on a transient fault yields a
// domain.RetryableError; malformed output is returned wrapped in
// ErrInvalidResponse so the caller can count it against its own ceiling.
func Retry[T any](ctx context.Context, policy RetryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	log := logger.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				log.InfoContext(ctx, "call succeeded after retry",
					slog.String("op", op),
					slog.Int("attempt", attempt))
			}
			return v, nil
		}
		lastErr = err

		if isPermanent(err) {
			log.WarnContext(ctx, "permanent error, not retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return zero, err
		}
		if attempt == attempts {
			break
		}

		log.WarnContext(ctx, "call failed, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", policy.Delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(policy.Delay):
		case <-ctx.Done():
			return zero, domain.NewRetryableError(op, fmt.Errorf("%w: %w", ErrTransientFailure, ctx.Err()))
		}
	}

	if errors.Is(lastErr, ErrInvalidResponse) {
		return zero, fmt.Errorf("%s: %d attempts: %w", op, attempts, lastErr)
	}
	return zero, domain.NewRetryableError(op,
		fmt.Errorf("%w: exceeded %d attempts: %w", ErrTransientFailure, attempts, lastErr))
}

// isPermanent reports whether retrying err locally cannot help.
func isPermanent(err error) bool {
	return errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrEmptyText) ||
		errors.Is(err, context.Canceled) ||
		domain.IsTerminal(err)
}
