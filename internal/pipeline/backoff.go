package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/lake-powell-etl/internal/reconcile"
	sharedretry "github.com/couchcryptid/storm-data-shared/retry"
)

// Retry calls fn up to attempts times, doubling the wait after each failure
// starting at base. An error that retryable rejects is returned at once; a
// nil retryable retries every error. The last error is returned when every
// attempt fails.
func Retry(ctx context.Context, attempts int, base time.Duration, retryable func(error) bool, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	wait := base
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i == attempts-1 || (retryable != nil && !retryable(err)) {
			break
		}
		if !sharedretry.SleepWithContext(ctx, wait) {
			return ctx.Err()
		}
		wait *= 2
	}
	return err
}

// RetryStrategy wraps a strategy so retryable failures are retried before the
// chain moves on to the next acquisition path.
func RetryStrategy(s reconcile.Strategy, attempts int, base time.Duration, retryable func(error) bool, logger *slog.Logger) reconcile.Strategy {
	fetch := s.Fetch
	return reconcile.Strategy{
		Name: s.Name,
		Fetch: func(ctx context.Context, start, end time.Time) (reconcile.Series, error) {
			var out reconcile.Series
			attempt := 0
			err := Retry(ctx, attempts, base, retryable, func(ctx context.Context) error {
				attempt++
				series, err := fetch(ctx, start, end)
				if err != nil {
					logger.Debug("strategy attempt failed", "strategy", s.Name, "attempt", attempt, "error", err)
					return err
				}
				out = series
				return nil
			})
			return out, err
		},
	}
}
