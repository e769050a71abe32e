package ratelimit

import (
	"context"
	"time"
)

// Engine owns the decision flow for one check: namespace the client key,
// delegate to the store's atomic operation, and hand the result back. It
// holds no locks and no local counter state; backend atomicity is the only
// mutation guard.
//
// Backend errors propagate unchanged. Converting them into allow decisions is
// the FailOpenLimiter's job, kept separate so this layer stays testable
// without failure injection.
type Engine struct {
	store CounterStore
	now   func() time.Time
}

func NewEngine(store CounterStore) *Engine {
	return &Engine{store: store, now: time.Now}
}

// Check decides allow/deny for one request from clientKey under cfg.
func (e *Engine) Check(ctx context.Context, cfg Config, clientKey string) (Result, error) {
	return e.store.CheckAndIncrement(ctx, cfg.storageKey(clientKey), e.now(), cfg.Limit, cfg.Window)
}

// Status returns the live window record for clientKey, or nil when none
// exists. Records past their logical window are reported as absent even if
// the backend has not evicted them yet.
func (e *Engine) Status(ctx context.Context, cfg Config, clientKey string) (*WindowRecord, error) {
	rec, err := e.store.Get(ctx, cfg.storageKey(clientKey))
	if err != nil {
		return nil, err
	}
	if rec == nil || e.now().Sub(rec.WindowStart) > cfg.Window {
		return nil, nil
	}
	return rec, nil
}

// Reset clears the counter for clientKey. Administrative use only.
func (e *Engine) Reset(ctx context.Context, cfg Config, clientKey string) error {
	return e.store.Reset(ctx, cfg.storageKey(clientKey))
}
