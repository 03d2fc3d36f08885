package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/taskboard/backend/pkg/response"
)

const ContextUserID = "user_id"

// TokenVerifier resolves a bearer credential to a user id.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AuthRequired rejects requests without a valid bearer token and stores the
// resolved user id in the context.
func AuthRequired(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, "authorization header required")
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			response.Unauthorized(c, "invalid authorization header format")
			c.Abort()
			return
		}

		userID, err := verifier.Verify(strings.TrimSpace(parts[1]))
		if err != nil || userID == "" {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// GetUserID returns the authenticated user id, or "" outside AuthRequired.
func GetUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
