package models

import "time"

// RateLimitWindow is one persisted fixed-window counter. Timestamps are unix
// milliseconds so window math never depends on database time zone handling.
// ExpiresAt stands in for a native TTL; expired rows are skipped by readers
// and removed by the background sweeper.
type RateLimitWindow struct {
	Key           string    `gorm:"primaryKey;size:160" json:"key"`
	WindowStartMs int64     `gorm:"not null" json:"window_start_ms"`
	Count         int64     `gorm:"not null" json:"count"`
	LastRequestMs int64     `gorm:"not null" json:"last_request_ms"`
	ExpiresAt     time.Time `gorm:"index;not null" json:"expires_at"`
}

func (RateLimitWindow) TableName() string {
	return "rate_limit_windows"
}
