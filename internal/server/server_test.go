package server

import (
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/config"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(presets map[string]config.Preset) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: "8080", Environment: "development"},
		RateLimit: config.RateLimitConfig{
			Backend: "memory",
			Presets: presets,
		},
	}
}

func TestNew_RejectsMissingRouteDefaultPreset(t *testing.T) {
	cfg := testConfig(map[string]config.Preset{
		"custom": {Limit: 5, WindowMs: 60_000},
	})
	engine := ratelimit.NewEngine(ratelimit.NewMemoryStore())

	if _, err := New(cfg, zap.NewNop(), nil, nil, engine); err == nil {
		t.Fatal("config without the route default presets must fail at startup, not at request time")
	}
}

func TestNew_AcceptsConfiguredDefaults(t *testing.T) {
	cfg := testConfig(map[string]config.Preset{
		"strict":  {Limit: 10, WindowMs: 60_000},
		"relaxed": {Limit: 100, WindowMs: 60_000},
	})
	engine := ratelimit.NewEngine(ratelimit.NewMemoryStore())

	if _, err := New(cfg, zap.NewNop(), nil, nil, engine); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
