package removal

import (
	"context"
	"time"
)

// Sleeper waits out a backoff delay. The production sleeper honors
// context cancellation; tests inject one that records and returns.
type Sleeper func(ctx context.Context, d time.Duration) error

// DefaultSleeper blocks for d or until the context is cancelled.
func DefaultSleeper(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// backoffDelays holds the wait before each re-invocation. An attempt
// count above the table reuses the final delay.
var backoffDelays = []time.Duration{
	30 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
}

// RetryDo invokes fn up to attempts times, sleeping the scheduled
// backoff between failures. Success returns immediately; the final
// failure returns the last error with no trailing delay.
func RetryDo(ctx context.Context, attempts int, sleep Sleeper, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	if sleep == nil {
		sleep = DefaultSleeper
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		delay := backoffDelays[min(i, len(backoffDelays)-1)]
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return lastErr
}
