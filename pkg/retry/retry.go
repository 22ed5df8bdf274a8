package retry

import (
	"context"
	"time"
)

// Do invokes op up to maxAttempts times, sleeping delay between attempts.
// The delay is fixed; exponential growth belongs to the queue-level retry,
// not this inner loop. The last error is returned on exhaustion.
func Do(ctx context.Context, maxAttempts int, delay time.Duration, op func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
