package backoff

import (
	"context"
	"errors"
	"time"
)

// Retryable is implemented by errors that may succeed on a later attempt.
type Retryable interface {
	Retryable() bool
}

// IsRetryable reports whether any error in the chain marks itself retryable.
func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.Retryable()
}

// Stop bounds a retry loop. A retry is abandoned once MaxAttempts have run
// or once MaxElapsed has passed since the first attempt started, whichever
// comes first. Zero values disable the respective bound.
type Stop struct {
	MaxAttempts int
	MaxElapsed  time.Duration
}

// Retry runs fn until it succeeds, returns a non-retryable error, or the
// stop conditions trigger. The last error is returned as-is so callers can
// inspect upstream status codes. Sleeps between attempts follow the policy
// and respect context cancellation.
func Retry[T any](ctx context.Context, policy BackoffPolicy, stop Stop, fn func(attempt int) (T, error)) (T, error) {
	var zero T
	start := time.Now()

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		value, err := fn(attempt)
		if err == nil {
			return value, nil
		}
		if !IsRetryable(err) {
			return zero, err
		}
		if stop.MaxAttempts > 0 && attempt >= stop.MaxAttempts {
			return zero, err
		}
		if stop.MaxElapsed > 0 && time.Since(start) >= stop.MaxElapsed {
			return zero, err
		}

		if sleepErr := SleepWithBackoff(ctx, policy, attempt); sleepErr != nil {
			return zero, sleepErr
		}
	}
}
