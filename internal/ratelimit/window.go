package ratelimit

import (
	"math"
	"time"
)

// WindowRecord is the persisted counter state for one storage key.
type WindowRecord struct {
	WindowStart time.Time
	Count       int64
	LastRequest time.Time
}

// Result is the outcome of a single rate-limit check. RetryAfter is in whole
// seconds and set only when the request is denied.
type Result struct {
	Allowed    bool      `json:"allowed"`
	Remaining  int       `json:"remaining"`
	ResetTime  time.Time `json:"reset_time"`
	RetryAfter int       `json:"retry_after,omitempty"`
}

// Records for very short windows keep a TTL floor so the backend is not
// churned by create/expire cycles.
const minCreationTTL = 60 * time.Second

// decide runs the fixed-window algorithm against the current record (nil when
// no live record exists). It returns the decision and, when the backend must
// be written, the new record. A denial never writes.
//
// Fixed windows are deliberate here: callers key their retry behavior to hard
// window boundaries, so this must not be upgraded to a sliding window.
func decide(rec *WindowRecord, now time.Time, limit int, window time.Duration) (Result, *WindowRecord) {
	if rec == nil || now.Sub(rec.WindowStart) > window {
		fresh := WindowRecord{WindowStart: now, Count: 1, LastRequest: now}
		return Result{
			Allowed:   true,
			Remaining: clampRemaining(limit - 1),
			ResetTime: now.Add(window),
		}, &fresh
	}

	resetTime := rec.WindowStart.Add(window)
	if rec.Count >= int64(limit) {
		retryAfter := int(math.Ceil(resetTime.Sub(now).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetTime:  resetTime,
			RetryAfter: retryAfter,
		}, nil
	}

	next := WindowRecord{
		WindowStart: rec.WindowStart,
		Count:       rec.Count + 1,
		LastRequest: now,
	}
	return Result{
		Allowed:   true,
		Remaining: clampRemaining(limit - int(next.Count)),
		ResetTime: resetTime,
	}, &next
}

// recordTTL computes the backend expiry for a record about to be written.
// A brand-new window gets at least the full window (rounded up to seconds,
// floored at minCreationTTL); subsequent writes refresh to the remainder of
// the window.
func recordTTL(rec WindowRecord, now time.Time, window time.Duration) time.Duration {
	if rec.Count == 1 {
		ttl := time.Duration(math.Ceil(window.Seconds())) * time.Second
		if ttl < minCreationTTL {
			ttl = minCreationTTL
		}
		return ttl
	}

	remaining := rec.WindowStart.Add(window).Sub(now)
	if remaining < time.Second {
		remaining = time.Second
	}
	return remaining
}

func clampRemaining(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
