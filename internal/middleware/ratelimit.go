package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/models"
	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/ratelimit"
)

// RateLimit enforces the given preset on every request passing through it.
// When a validated API key carries its own preset name, that preset wins over
// the route default, mirroring per-key service tiers.
//
// The middleware itself fails open: a panic anywhere in the decision path
// lets the request through rather than turning the limiter into an outage.
func RateLimit(limiter *ratelimit.FailOpenLimiter, presets map[string]ratelimit.Config, defaultPreset string, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, cfg, decided := checkRequest(limiter, presets, defaultPreset, log, c)
		if !decided {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime.Unix(), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.Itoa(res.RetryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"success":    false,
				"error":      "Too Many Requests",
				"retryAfter": res.RetryAfter,
			})
			return
		}

		c.Next()
	}
}

// checkRequest runs the full decision path under a recover so a bug in key
// resolution or the limiter can never block traffic. decided is false only
// when a panic was swallowed.
func checkRequest(limiter *ratelimit.FailOpenLimiter, presets map[string]ratelimit.Config, defaultPreset string, log *zap.Logger, c *gin.Context) (res ratelimit.Result, cfg ratelimit.Config, decided bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("rate limit check panicked, failing open", zap.Any("panic", r))
			decided = false
		}
	}()

	cfg = selectPreset(presets, defaultPreset, c)
	key := ratelimit.ClientKey(c.Request, principalFrom(c))
	res = limiter.Check(c.Request.Context(), cfg, key)
	return res, cfg, true
}

func selectPreset(presets map[string]ratelimit.Config, defaultPreset string, c *gin.Context) ratelimit.Config {
	if apiKey, ok := apiKeyFrom(c); ok {
		if cfg, found := presets[apiKey.Preset]; found {
			return cfg
		}
	}
	return presets[defaultPreset]
}

func principalFrom(c *gin.Context) ratelimit.Principal {
	p := ratelimit.Principal{
		UserID: c.GetString("user_id"),
	}
	if apiKey, ok := apiKeyFrom(c); ok {
		p.APIKeyID = apiKey.ID.String()
	}
	return p
}

func apiKeyFrom(c *gin.Context) (*models.APIKey, bool) {
	value, exists := c.Get("api_key")
	if !exists || value == nil {
		return nil, false
	}
	apiKey, ok := value.(*models.APIKey)
	return apiKey, ok
}
