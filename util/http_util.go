// util/http_util.go
package util

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/dealflowhq/dealflow/core/logging"
)

func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.JSON(code, gin.H{"error": message})
}

func GetUserIDFromContext(c *gin.Context) (string, error) {
	userID, exists := c.Get("userID")
	if !exists {
		return "", nil
	}
	return userID.(string), nil
}

// GetTenantIDFromContext returns the tenant the request is scoped to. Set
// by the auth middleware; the X-Tenant-ID header is the fallback for the
// unauthenticated credential endpoints.
func GetTenantIDFromContext(c *gin.Context) string {
	if tenantID, exists := c.Get("tenantID"); exists {
		return tenantID.(string)
	}
	return c.GetHeader("X-Tenant-ID")
}
