package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/testportal-service/internal/models"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

// Middleware rejects requests without a valid bearer token and stores
// the caller identity in the gin context
func Middleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authorization token required",
			})
			return
		}

		identity, err := verifier.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
			})
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextUserRole, identity.Role)
		c.Next()
	}
}

// RequireRole allows only the listed roles through
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
			})
			return
		}

		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "Insufficient permissions",
		})
	}
}

// CallerFromContext returns the identity stored by Middleware
func CallerFromContext(c *gin.Context) (models.Caller, bool) {
	userID := c.GetString(ContextUserID)
	if userID == "" {
		return models.Caller{}, false
	}
	role, ok := c.Get(ContextUserRole)
	if !ok {
		return models.Caller{}, false
	}
	r, ok := role.(models.UserRole)
	if !ok {
		return models.Caller{}, false
	}
	return models.Caller{UserID: userID, Role: r}, true
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
