// middleware/auth.go

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/service"
)

// Auth validates the bearer access token, scopes the request to its tenant
// and extends the sliding session. An expired session rejects even when the
// access token itself is still valid.
func Auth(authService service.IAuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-ID")
		if tenantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims, err := authService.ValidateAccessToken(c, tenantID, raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}

		if claims.SessionID != "" {
			if _, err := authService.ExtendSession(c, tenantID, claims.SessionID); err != nil {
				if errors.Is(err, core_errors.ErrSessionNotFound) || errors.Is(err, core_errors.ErrSessionExpired) {
					c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired"})
					c.Abort()
					return
				}
				// Store hiccups on the extension path do not fail the
				// request; the session TTL still bounds the window.
				logger.Warn("Failed to extend session", zap.Error(err), zap.String("sessionID", claims.SessionID))
			}
		}

		c.Set("userID", claims.Subject)
		c.Set("tenantID", claims.TenantID)
		c.Set("sessionID", claims.SessionID)
		c.Next()
	}
}
