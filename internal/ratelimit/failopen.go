package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// FailOpenLimiter wraps the engine with the degradation policy: any backend
// failure becomes an allow decision with a full budget. A broken rate limiter
// must never become an outage amplifier for the service it protects.
type FailOpenLimiter struct {
	engine *Engine
	log    *zap.Logger
	now    func() time.Time
}

func NewFailOpen(engine *Engine, log *zap.Logger) *FailOpenLimiter {
	return &FailOpenLimiter{engine: engine, log: log, now: time.Now}
}

// Check never returns an error. Fail-open events are logged so operators can
// spot systemic backend degradation.
func (f *FailOpenLimiter) Check(ctx context.Context, cfg Config, clientKey string) Result {
	res, err := f.engine.Check(ctx, cfg, clientKey)
	if err == nil {
		return res
	}

	f.log.Warn("rate limit backend unavailable, failing open",
		zap.String("client_key", clientKey),
		zap.String("preset", cfg.KeyPrefix),
		zap.Bool("quota_exhausted", IsExhausted(err)),
		zap.Error(err))

	now := f.now()
	return Result{
		Allowed:   true,
		Remaining: cfg.Limit,
		ResetTime: now.Add(cfg.Window),
	}
}
