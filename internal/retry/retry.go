package retry

import (
	"context"
	"fmt"
	"time"
)

// Do runs fn up to attempts times, sleeping a fixed delay before every
// attempt after the first. It returns nil on the first success, the last
// error on exhaustion, and the context error if the caller gives up while
// waiting. The ledger is eventually consistent after a mutation, so a
// handful of fixed-delay reads is how confirmation is ridden out.
func Do(ctx context.Context, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
