// controller/permission_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	"github.com/dealflowhq/dealflow/core/model"
	"github.com/dealflowhq/dealflow/core/service"
	"github.com/dealflowhq/dealflow/core/util"
)

type PermissionController struct {
	permissionService service.IPermissionService
}

func NewPermissionController(permissionService service.IPermissionService) *PermissionController {
	return &PermissionController{
		permissionService: permissionService,
	}
}

// RegisterRoutes registers the API routes
func (pc *PermissionController) RegisterRoutes(r *gin.RouterGroup) {
	acl := r.Group("/acl")
	{
		acl.POST("/check", pc.CheckPermission)
		acl.POST("/check/batch", pc.BatchCheckPermissions)
		acl.POST("/grants", pc.GrantPermission)
		acl.PUT("/grants", pc.UpdateACL)
		acl.DELETE("/grants/:resourceId/:principalId", pc.RevokePermission)
	}
}

type checkRequest struct {
	PrincipalID string                `json:"principal_id"`
	ResourceID  string                `json:"resource_id" binding:"required"`
	Required    model.PermissionLevel `json:"required" binding:"required"`
}

type batchCheckRequest struct {
	PrincipalID string                `json:"principal_id"`
	ResourceIDs []string              `json:"resource_ids" binding:"required"`
	Required    model.PermissionLevel `json:"required" binding:"required"`
}

// CheckPermission endpoint
func (pc *PermissionController) CheckPermission(c *gin.Context) {
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid check request", err)
		return
	}

	tenantID := util.GetTenantIDFromContext(c)
	principalID := req.PrincipalID
	if principalID == "" {
		principalID, _ = util.GetUserIDFromContext(c)
	}

	decision, err := pc.permissionService.CheckPermission(c, tenantID, principalID, req.ResourceID, req.Required)
	if err != nil {
		util.RespondWithError(c, http.StatusForbidden, "Forbidden", err)
		return
	}

	c.JSON(http.StatusOK, decision)
}

// BatchCheckPermissions endpoint
func (pc *PermissionController) BatchCheckPermissions(c *gin.Context) {
	var req batchCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid batch check request", err)
		return
	}

	tenantID := util.GetTenantIDFromContext(c)
	principalID := req.PrincipalID
	if principalID == "" {
		principalID, _ = util.GetUserIDFromContext(c)
	}

	decisions, err := pc.permissionService.BatchCheckPermissions(c, tenantID, principalID, req.ResourceIDs, req.Required)
	if err != nil {
		util.RespondWithError(c, http.StatusForbidden, "Forbidden", err)
		return
	}

	c.JSON(http.StatusOK, decisions)
}

// GrantPermission endpoint
func (pc *PermissionController) GrantPermission(c *gin.Context) {
	var grant model.ACLGrant
	if err := c.ShouldBindJSON(&grant); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid grant data", core_errors.ErrInvalidGrantData)
		return
	}
	if grant.TenantID == "" {
		grant.TenantID = util.GetTenantIDFromContext(c)
	}
	userID, err := util.GetUserIDFromContext(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", core_errors.ErrUnauthorized)
		return
	}

	if err := pc.permissionService.GrantPermission(c, grant, userID); err != nil {
		switch {
		case errors.Is(err, core_errors.ErrInvalidGrantData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid grant data", err)
		case errors.Is(err, core_errors.ErrResourceNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Resource not found", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to grant permission", err)
		}
		return
	}

	c.Status(http.StatusCreated)
}

// UpdateACL endpoint
func (pc *PermissionController) UpdateACL(c *gin.Context) {
	var grant model.ACLGrant
	if err := c.ShouldBindJSON(&grant); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid grant data", core_errors.ErrInvalidGrantData)
		return
	}
	if grant.TenantID == "" {
		grant.TenantID = util.GetTenantIDFromContext(c)
	}
	userID, err := util.GetUserIDFromContext(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", core_errors.ErrUnauthorized)
		return
	}

	if err := pc.permissionService.UpdateACL(c, grant, userID); err != nil {
		switch {
		case errors.Is(err, core_errors.ErrInvalidGrantData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid grant data", err)
		case errors.Is(err, core_errors.ErrResourceNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Resource not found", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update ACL", err)
		}
		return
	}

	c.Status(http.StatusOK)
}

// RevokePermission endpoint
func (pc *PermissionController) RevokePermission(c *gin.Context) {
	resourceID := c.Param("resourceId")
	principal := model.Principal{
		ID:   c.Param("principalId"),
		Kind: model.PrincipalKind(c.DefaultQuery("kind", string(model.PrincipalUser))),
	}
	tenantID := util.GetTenantIDFromContext(c)
	userID, err := util.GetUserIDFromContext(c)
	if err != nil {
		util.RespondWithError(c, http.StatusUnauthorized, "Unauthorized", core_errors.ErrUnauthorized)
		return
	}

	if err := pc.permissionService.RevokePermission(c, tenantID, resourceID, principal, userID); err != nil {
		if errors.Is(err, core_errors.ErrGrantNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Grant not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to revoke permission", err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}
