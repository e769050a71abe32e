package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Identify extracts an authenticated principal from a Bearer token when one
// is present. It never aborts: anonymous and badly-authenticated requests
// fall through so the rate limiter can still count them against weaker
// identifiers (API key, client address).
func Identify(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.Next()
			return
		}

		claims, err := validateToken(parts[1], jwtSecret)
		if err != nil {
			c.Next()
			return
		}

		if userID, ok := claims["user_id"].(string); ok && userID != "" {
			c.Set("user_id", userID)
		} else if sub, ok := claims["sub"].(string); ok && sub != "" {
			c.Set("user_id", sub)
		}

		c.Next()
	}
}

func validateToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
