package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_FixedWindowSequence(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	window := time.Minute

	type step struct {
		offset        time.Duration
		wantAllowed   bool
		wantRemaining int
		wantRetry     int
	}
	steps := []step{
		{0, true, 2, 0},
		{10 * time.Millisecond, true, 1, 0},
		{20 * time.Millisecond, true, 0, 0},
		{30 * time.Millisecond, false, 0, 60},
		{40 * time.Millisecond, false, 0, 60},
	}

	for i, s := range steps {
		res, err := store.CheckAndIncrement(ctx, "ratelimit:strict:user42", base.Add(s.offset), 3, window)
		if err != nil {
			t.Fatalf("step %d: unexpected error: %v", i+1, err)
		}
		if res.Allowed != s.wantAllowed {
			t.Fatalf("step %d: allowed = %v, want %v", i+1, res.Allowed, s.wantAllowed)
		}
		if res.Remaining != s.wantRemaining {
			t.Fatalf("step %d: remaining = %d, want %d", i+1, res.Remaining, s.wantRemaining)
		}
		if res.RetryAfter != s.wantRetry {
			t.Fatalf("step %d: retryAfter = %d, want %d", i+1, res.RetryAfter, s.wantRetry)
		}
		if !s.wantAllowed && res.RetryAfter <= 0 {
			t.Fatalf("step %d: denied result must carry a positive retryAfter", i+1)
		}
	}
}

func TestMemoryStore_WindowRollover(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	window := time.Minute

	// Exhaust the first window.
	for i := 0; i < 5; i++ {
		store.CheckAndIncrement(ctx, "key", base, 3, window)
	}

	// One tick past the boundary starts a fresh window regardless of the
	// prior count.
	res, err := store.CheckAndIncrement(ctx, "key", base.Add(window+time.Millisecond), 3, window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Allowed {
		t.Fatal("request after window rollover should be allowed")
	}
	if res.Remaining != 2 {
		t.Fatalf("remaining = %d, want 2 (fresh window)", res.Remaining)
	}
}

func TestMemoryStore_BoundaryNotExpired(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now()
	window := time.Minute

	store.CheckAndIncrement(ctx, "key", base, 1, window)

	// Exactly at windowStart+window the old window still applies.
	res, _ := store.CheckAndIncrement(ctx, "key", base.Add(window), 1, window)
	if res.Allowed {
		t.Fatal("request exactly at the window boundary should still be denied")
	}
	if res.RetryAfter < 1 {
		t.Fatalf("retryAfter = %d, want >= 1", res.RetryAfter)
	}
}

func TestMemoryStore_GetAndReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	store.CheckAndIncrement(ctx, "key", now, 5, time.Minute)
	store.CheckAndIncrement(ctx, "key", now.Add(time.Second), 5, time.Minute)

	rec, err := store.Get(ctx, "key")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec == nil {
		t.Fatal("expected a live record")
	}
	if rec.Count != 2 {
		t.Fatalf("count = %d, want 2", rec.Count)
	}
	if !rec.WindowStart.Equal(now) {
		t.Fatalf("windowStart = %v, want %v", rec.WindowStart, now)
	}

	if err := store.Reset(ctx, "key"); err != nil {
		t.Fatalf("reset failed: %v", err)
	}
	rec, _ = store.Get(ctx, "key")
	if rec != nil {
		t.Fatal("record should be gone after reset")
	}
}

func TestMemoryStore_TTLEviction(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Now().Add(-2 * minCreationTTL)

	// Record created far enough in the past that even the 60s creation floor
	// has lapsed.
	store.CheckAndIncrement(ctx, "key", base, 1, time.Second)

	rec, _ := store.Get(ctx, "key")
	if rec != nil {
		t.Fatal("expired record should not be returned")
	}
}

func TestMemoryStore_GetHonorsInjectedClock(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Unix(1_700_000_000, 0)
	store.now = func() time.Time { return base.Add(2 * minCreationTTL) }

	store.CheckAndIncrement(ctx, "key", base, 1, time.Second)

	rec, _ := store.Get(ctx, "key")
	if rec != nil {
		t.Fatal("record past its TTL should be evicted under the injected clock")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	var wg sync.WaitGroup
	wg.Add(100)
	for i := 0; i < 100; i++ {
		go func() {
			defer wg.Done()
			store.CheckAndIncrement(ctx, "key", now, 100, time.Minute)
		}()
	}
	wg.Wait()

	res, _ := store.CheckAndIncrement(ctx, "key", now, 100, time.Minute)
	if res.Allowed {
		t.Fatal("101st request should be denied after 100 concurrent hits")
	}
}

func BenchmarkMemoryStore_CheckAndIncrement(b *testing.B) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	for b.Loop() {
		store.CheckAndIncrement(ctx, "key", now, 1<<30, time.Minute)
	}
}
