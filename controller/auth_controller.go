// controller/auth_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	"github.com/dealflowhq/dealflow/core/service"
	"github.com/dealflowhq/dealflow/core/util"
)

type AuthController struct {
	authService service.IAuthService
}

func NewAuthController(authService service.IAuthService) *AuthController {
	return &AuthController{
		authService: authService,
	}
}

// RegisterRoutes registers the credential endpoints. They accept and return
// opaque token identifiers only.
func (ac *AuthController) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/refresh", ac.Refresh)
		auth.POST("/revoke", ac.Revoke)
		auth.POST("/introspect", ac.Introspect)
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type introspectRequest struct {
	AccessToken string `json:"access_token" binding:"required"`
}

// Refresh endpoint. Every failure mode returns the same response: the
// caller learns it must re-authenticate and nothing else.
func (ac *AuthController) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Re-authentication required"})
		return
	}
	tenantID := util.GetTenantIDFromContext(c)

	credentials, err := ac.authService.Refresh(c, tenantID, req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Re-authentication required"})
		return
	}

	c.JSON(http.StatusOK, credentials)
}

// Revoke endpoint. Revocation is idempotent: a token that is already gone
// is a success.
func (ac *AuthController) Revoke(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid revoke request", err)
		return
	}
	tenantID := util.GetTenantIDFromContext(c)

	if err := ac.authService.Revoke(c, tenantID, req.RefreshToken); err != nil {
		if errors.Is(err, core_errors.ErrTokenNotFound) || errors.Is(err, core_errors.ErrFamilyNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to revoke token", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Introspect endpoint
func (ac *AuthController) Introspect(c *gin.Context) {
	var req introspectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid introspect request", err)
		return
	}
	tenantID := util.GetTenantIDFromContext(c)

	claims, err := ac.authService.ValidateAccessToken(c, tenantID, req.AccessToken)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"active":     true,
		"sub":        claims.Subject,
		"tenant_id":  claims.TenantID,
		"session_id": claims.SessionID,
		"exp":        claims.ExpiresAt,
	})
}
