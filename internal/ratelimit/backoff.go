package ratelimit

import (
	"context"
	"time"
)

// SleepFunc pauses between retry attempts. Tests inject a recording no-op so
// the ladder runs without real delays.
type SleepFunc func(ctx context.Context, d time.Duration) error

// The bounded backoff ladder for contended writes. Worst case the ladder adds
// ~700ms to a request, never more.
var backoffDelays = []time.Duration{
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// withRetry runs op, walking the backoff ladder on retryable store errors.
// Exhausted errors, unclassified errors, and context cancellation stop the
// loop immediately.
func withRetry(ctx context.Context, sleep SleepFunc, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt >= len(backoffDelays) {
			return err
		}
		if sleepErr := sleep(ctx, backoffDelays[attempt]); sleepErr != nil {
			return err
		}
	}
}
