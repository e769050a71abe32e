package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

// recordingSleep captures requested delays without actually sleeping.
func recordingSleep(delays *[]time.Duration) SleepFunc {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestWithRetry_WalksFullLadderOnContention(t *testing.T) {
	var delays []time.Duration
	attempts := 0

	err := withRetry(context.Background(), recordingSleep(&delays), func() error {
		attempts++
		return retryableErr(errors.New("tx conflict"))
	})

	if err == nil {
		t.Fatal("expected the final error to surface")
	}
	if !IsRetryable(err) {
		t.Fatalf("expected a retryable store error, got %v", err)
	}
	if attempts != 4 {
		t.Fatalf("attempts = %d, want 4 (initial + 3 retries)", attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Fatalf("delay %d = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestWithRetry_SucceedsMidLadder(t *testing.T) {
	var delays []time.Duration
	attempts := 0

	err := withRetry(context.Background(), recordingSleep(&delays), func() error {
		attempts++
		if attempts < 3 {
			return retryableErr(errors.New("tx conflict"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if len(delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(delays))
	}
}

func TestWithRetry_NeverRetriesQuotaExhaustion(t *testing.T) {
	var delays []time.Duration
	attempts := 0

	err := withRetry(context.Background(), recordingSleep(&delays), func() error {
		attempts++
		return exhaustedErr(errors.New("write quota exceeded"))
	})

	if !IsExhausted(err) {
		t.Fatalf("expected exhausted error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (quota errors must not be retried)", attempts)
	}
	if len(delays) != 0 {
		t.Fatalf("slept %d times, want 0", len(delays))
	}
}

func TestWithRetry_StopsOnUnclassifiedError(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), recordingSleep(&[]time.Duration{}), func() error {
		attempts++
		return context.Canceled
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
}

func TestWithRetry_AbortsWhenSleepCancelled(t *testing.T) {
	attempts := 0
	cancelledSleep := func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	err := withRetry(context.Background(), cancelledSleep, func() error {
		attempts++
		return retryableErr(errors.New("tx conflict"))
	})

	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if !IsRetryable(err) {
		t.Fatalf("expected the store error to surface, got %v", err)
	}
}
