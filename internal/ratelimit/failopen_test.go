package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// failingStore rejects every call with a fixed error.
type failingStore struct {
	err   error
	calls int
}

func (f *failingStore) CheckAndIncrement(ctx context.Context, key string, now time.Time, limit int, window time.Duration) (Result, error) {
	f.calls++
	return Result{}, f.err
}

func (f *failingStore) Get(ctx context.Context, key string) (*WindowRecord, error) {
	return nil, f.err
}

func (f *failingStore) Reset(ctx context.Context, key string) error {
	return f.err
}

func TestFailOpen_AllowsOnBackendError(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: retryableErr(errors.New("connection reset"))}
	engine := NewEngine(store)

	limiter := NewFailOpen(engine, zap.NewNop())
	now := time.Now()
	limiter.now = func() time.Time { return now }

	cfg := mustConfig(t, 3, time.Minute, "strict")

	for i := 0; i < 5; i++ {
		res := limiter.Check(ctx, cfg, "user:42")
		if !res.Allowed {
			t.Fatalf("check %d: broken backend must fail open", i+1)
		}
		if res.Remaining != cfg.Limit {
			t.Fatalf("check %d: remaining = %d, want full budget %d", i+1, res.Remaining, cfg.Limit)
		}
		if !res.ResetTime.Equal(now.Add(cfg.Window)) {
			t.Fatalf("check %d: resetTime = %v, want %v", i+1, res.ResetTime, now.Add(cfg.Window))
		}
		if res.RetryAfter != 0 {
			t.Fatalf("check %d: fail-open result must not carry retryAfter", i+1)
		}
	}
}

func TestFailOpen_AllowsOnQuotaExhaustion(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{err: exhaustedErr(errors.New("write quota exceeded"))}
	limiter := NewFailOpen(NewEngine(store), zap.NewNop())
	cfg := mustConfig(t, 3, time.Minute, "strict")

	res := limiter.Check(ctx, cfg, "user:42")
	if !res.Allowed {
		t.Fatal("quota exhaustion must fail open")
	}
}

func TestFailOpen_PassesThroughDecisions(t *testing.T) {
	ctx := context.Background()
	limiter := NewFailOpen(NewEngine(NewMemoryStore()), zap.NewNop())
	cfg := mustConfig(t, 1, time.Minute, "strict")

	res := limiter.Check(ctx, cfg, "user:42")
	if !res.Allowed || res.Remaining != 0 {
		t.Fatalf("first check = %+v, want allowed with 0 remaining", res)
	}

	res = limiter.Check(ctx, cfg, "user:42")
	if res.Allowed {
		t.Fatal("second check should be denied, not failed open")
	}
	if res.RetryAfter <= 0 {
		t.Fatalf("denied result must carry retryAfter, got %d", res.RetryAfter)
	}
}
