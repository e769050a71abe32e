package ratelimit

import (
	"fmt"
	"time"
)

// Config is an immutable rate-limit preset. KeyPrefix partitions the backend
// key space so presets sharing a client never share counters.
type Config struct {
	Limit     int
	Window    time.Duration
	KeyPrefix string
}

// NewConfig validates preset values at construction time. Invalid values
// indicate a deployment bug, so this is the one place the limiter is allowed
// to hard-fail instead of failing open.
func NewConfig(limit int, window time.Duration, keyPrefix string) (Config, error) {
	if limit <= 0 {
		return Config{}, fmt.Errorf("rate limit must be positive, got %d", limit)
	}
	if window <= 0 {
		return Config{}, fmt.Errorf("rate limit window must be positive, got %v", window)
	}
	if keyPrefix == "" {
		return Config{}, fmt.Errorf("rate limit key prefix is required")
	}
	return Config{Limit: limit, Window: window, KeyPrefix: keyPrefix}, nil
}

func (c Config) storageKey(clientKey string) string {
	return fmt.Sprintf("ratelimit:%s:%s", c.KeyPrefix, hashKey(clientKey))
}
