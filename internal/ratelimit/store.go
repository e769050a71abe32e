package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CounterStore persists window counters in a shared backend. CheckAndIncrement
// is the one operation that must be atomic per key; implementations provide it
// either through a native transaction primitive or an optimistic retry loop.
type CounterStore interface {
	CheckAndIncrement(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error)
	Get(ctx context.Context, key string) (*WindowRecord, error)
	Reset(ctx context.Context, key string) error
}

// Per-attempt budget for a single backend round trip. A slow backend must
// never stall the request path for longer than this per attempt.
const storeOpTimeout = 250 * time.Millisecond

// ErrorKind tags backend failures at the store boundary so callers never
// inspect driver error strings.
type ErrorKind int

const (
	// Retryable covers contention and transient faults worth another attempt.
	Retryable ErrorKind = iota
	// Exhausted is a hard backend quota signal. Retrying would compound the
	// backend's own overload, so it short-circuits straight to fail-open.
	Exhausted
)

// StoreError wraps a backend error with its classification.
type StoreError struct {
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	switch e.Kind {
	case Exhausted:
		return fmt.Sprintf("counter store quota exhausted: %v", e.Err)
	default:
		return fmt.Sprintf("counter store unavailable: %v", e.Err)
	}
}

func (e *StoreError) Unwrap() error { return e.Err }

func retryableErr(err error) error { return &StoreError{Kind: Retryable, Err: err} }
func exhaustedErr(err error) error { return &StoreError{Kind: Exhausted, Err: err} }

// IsRetryable reports whether err is a store error worth retrying.
func IsRetryable(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == Retryable
}

// IsExhausted reports whether err is a hard backend quota signal.
func IsExhausted(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Kind == Exhausted
}
