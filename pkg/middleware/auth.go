package middleware

import (
	"context"
	"strings"

	"ad-assistant/backend/pkg/errors"
	"ad-assistant/backend/pkg/jwt"
	"ad-assistant/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// TokenValidator checks a bearer token
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// JWTAuthMiddleware checks that the request has a valid JWT and adds claims
// to the context. Browsers cannot set headers on websocket upgrades, so the
// token is also accepted from the "token" query parameter.
func JWTAuthMiddleware(validator TokenValidator, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Error(errors.NewUnauthorizedError(errors.CodeAuthRequired, "Authorization header is required"))
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid JWT token", "error", err.Error(), "path", c.Request.URL.Path)
			c.Error(errors.NewUnauthorizedError(errors.CodeInvalidToken, "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set("claims", claims)
		c.Set("userID", claims.UserID)

		ctx := context.WithValue(c.Request.Context(), userIDKey, claims.UserID)
		ctx = logger.IntoContext(ctx, logger.FromContext(ctx).WithUserID(claims.UserID))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	if header != "" {
		return header
	}
	return c.Query("token")
}

// UserID returns the authenticated user id set by JWTAuthMiddleware
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}
