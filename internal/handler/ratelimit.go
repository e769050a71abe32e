package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/ratelimit"
)

// RateLimitHandler exposes the limiter's administrative surface: read-only
// window introspection and counter resets. It talks to the bare engine, not
// the fail-open wrapper, so backend trouble is visible here instead of being
// masked.
type RateLimitHandler struct {
	engine  *ratelimit.Engine
	presets map[string]ratelimit.Config
}

func NewRateLimitHandler(engine *ratelimit.Engine, presets map[string]ratelimit.Config) *RateLimitHandler {
	return &RateLimitHandler{engine: engine, presets: presets}
}

// Status handles GET /admin/ratelimit/:preset/status?key=<client key>.
func (h *RateLimitHandler) Status(c *gin.Context) {
	cfg, key, ok := h.resolve(c)
	if !ok {
		return
	}

	record, err := h.engine.Status(c.Request.Context(), cfg, key)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Counter store unavailable"})
		return
	}

	if record == nil {
		c.JSON(http.StatusOK, gin.H{
			"preset": c.Param("preset"),
			"key":    key,
			"window": nil,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"preset": c.Param("preset"),
		"key":    key,
		"window": gin.H{
			"window_start": record.WindowStart.Unix(),
			"count":        record.Count,
			"last_request": record.LastRequest.Unix(),
		},
	})
}

// Reset handles POST /admin/ratelimit/:preset/reset?key=<client key>.
func (h *RateLimitHandler) Reset(c *gin.Context) {
	cfg, key, ok := h.resolve(c)
	if !ok {
		return
	}

	if err := h.engine.Reset(c.Request.Context(), cfg, key); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Counter store unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Rate limit counter reset",
		"preset":  c.Param("preset"),
		"key":     key,
	})
}

func (h *RateLimitHandler) resolve(c *gin.Context) (ratelimit.Config, string, bool) {
	cfg, exists := h.presets[c.Param("preset")]
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown rate limit preset"})
		return ratelimit.Config{}, "", false
	}

	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter 'key' is required"})
		return ratelimit.Config{}, "", false
	}

	return cfg, key, true
}
