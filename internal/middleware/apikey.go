package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/YarlisAISolutions/rapidtriageME-sub004/internal/models"
)

// APIKeyService is the slice of the key service the validator needs.
type APIKeyService interface {
	Validate(ctx context.Context, key string) (*models.APIKey, error)
	UpdateLastUsed(ctx context.Context, id uuid.UUID)
}

func APIKeyValidator(apiKeyService APIKeyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKeyHeader := c.GetHeader("X-API-Key")

		if apiKeyHeader == "" {
			c.Next()
			return
		}

		apiKeyHeader = strings.TrimSpace(apiKeyHeader)

		ctx := c.Request.Context()
		apiKey, err := apiKeyService.Validate(ctx, apiKeyHeader)

		if err != nil || apiKey == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid API key",
			})
			c.Abort()
			return
		}

		c.Set("api_key", apiKey)
		c.Set("api_key_id", apiKey.ID)
		c.Set("api_key_preset", apiKey.Preset)

		// The update outlives the request, so it must not inherit the
		// request's cancellation.
		go apiKeyService.UpdateLastUsed(context.WithoutCancel(ctx), apiKey.ID)

		c.Next()
	}
}
