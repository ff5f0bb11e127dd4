// controller/permission_controller_test.go
package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	"github.com/dealflowhq/dealflow/core/model"
)

type fakePermissionService struct {
	check      func(tenantID, principalID, resourceID string, required model.PermissionLevel) (*model.PermissionDecision, error)
	batchCheck func(tenantID, principalID string, resourceIDs []string, required model.PermissionLevel) (map[string]model.PermissionDecision, error)
	grant      func(grant model.ACLGrant, granterID string) error
	revoke     func(tenantID, resourceID string, principal model.Principal, revokerID string) error
}

func (f *fakePermissionService) CheckPermission(ctx context.Context, tenantID, principalID, resourceID string, required model.PermissionLevel) (*model.PermissionDecision, error) {
	return f.check(tenantID, principalID, resourceID, required)
}

func (f *fakePermissionService) BatchCheckPermissions(ctx context.Context, tenantID, principalID string, resourceIDs []string, required model.PermissionLevel) (map[string]model.PermissionDecision, error) {
	return f.batchCheck(tenantID, principalID, resourceIDs, required)
}

func (f *fakePermissionService) GrantPermission(ctx context.Context, grant model.ACLGrant, granterID string) error {
	return f.grant(grant, granterID)
}

func (f *fakePermissionService) RevokePermission(ctx context.Context, tenantID, resourceID string, principal model.Principal, revokerID string) error {
	return f.revoke(tenantID, resourceID, principal, revokerID)
}

func (f *fakePermissionService) UpdateACL(ctx context.Context, grant model.ACLGrant, updaterID string) error {
	return f.grant(grant, updaterID)
}

// newACLRouter wires the controller behind a stand-in for the auth
// middleware that stamps the authenticated identity.
func newACLRouter(svc *fakePermissionService) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "caller-1")
		c.Set("tenantID", "t1")
		c.Next()
	})
	NewPermissionController(svc).RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckEndpoint(t *testing.T) {
	svc := &fakePermissionService{
		check: func(tenantID, principalID, resourceID string, required model.PermissionLevel) (*model.PermissionDecision, error) {
			assert.Equal(t, "t1", tenantID)
			assert.Equal(t, "caller-1", principalID, "identity falls back to the authenticated user")
			assert.Equal(t, model.PermissionWrite, required)
			return &model.PermissionDecision{Allowed: true, Effective: model.PermissionWrite, Source: model.SourceDirect}, nil
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodPost, "/api/v1/acl/check",
		gin.H{"resource_id": "deal-1", "required": "WRITE"})

	assert.Equal(t, http.StatusOK, w.Code)
	var decision model.PermissionDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decision))
	assert.True(t, decision.Allowed)
}

func TestCheckEndpointForbidden(t *testing.T) {
	svc := &fakePermissionService{
		check: func(string, string, string, model.PermissionLevel) (*model.PermissionDecision, error) {
			return nil, core_errors.ErrPermissionDenied
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodPost, "/api/v1/acl/check",
		gin.H{"resource_id": "deal-1", "required": "WRITE"})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error": "Forbidden"}`, w.Body.String())
}

func TestCheckEndpointRejectsBadRequest(t *testing.T) {
	svc := &fakePermissionService{}
	w := doJSON(newACLRouter(svc), http.MethodPost, "/api/v1/acl/check",
		gin.H{"resource_id": "deal-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchCheckEndpoint(t *testing.T) {
	svc := &fakePermissionService{
		batchCheck: func(tenantID, principalID string, resourceIDs []string, required model.PermissionLevel) (map[string]model.PermissionDecision, error) {
			assert.Len(t, resourceIDs, 2)
			return map[string]model.PermissionDecision{
				"deal-1": {Allowed: true},
				"deal-2": {Allowed: false},
			}, nil
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodPost, "/api/v1/acl/check/batch",
		gin.H{"resource_ids": []string{"deal-1", "deal-2"}, "required": "READ"})

	assert.Equal(t, http.StatusOK, w.Code)
	var decisions map[string]model.PermissionDecision
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decisions))
	assert.True(t, decisions["deal-1"].Allowed)
	assert.False(t, decisions["deal-2"].Allowed)
}

func TestGrantEndpoint(t *testing.T) {
	svc := &fakePermissionService{
		grant: func(grant model.ACLGrant, granterID string) error {
			assert.Equal(t, "caller-1", granterID)
			assert.Equal(t, "t1", grant.TenantID, "tenant comes from the request scope")
			return nil
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodPost, "/api/v1/acl/grants", gin.H{
		"resource_id": "deal-1",
		"principal":   gin.H{"kind": "user", "id": "u2"},
		"permissions": []string{"READ", "WRITE"},
	})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestGrantEndpointInvalidData(t *testing.T) {
	svc := &fakePermissionService{
		grant: func(model.ACLGrant, string) error {
			return core_errors.ErrInvalidGrantData
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodPost, "/api/v1/acl/grants", gin.H{
		"resource_id": "deal-1",
		"principal":   gin.H{"kind": "user", "id": "u2"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRevokeEndpoint(t *testing.T) {
	svc := &fakePermissionService{
		revoke: func(tenantID, resourceID string, principal model.Principal, revokerID string) error {
			assert.Equal(t, "deal-1", resourceID)
			assert.Equal(t, model.PrincipalRole, principal.Kind)
			assert.Equal(t, "analysts", principal.ID)
			return nil
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodDelete, "/api/v1/acl/grants/deal-1/analysts?kind=role", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRevokeEndpointNotFound(t *testing.T) {
	svc := &fakePermissionService{
		revoke: func(string, string, model.Principal, string) error {
			return core_errors.ErrGrantNotFound
		},
	}
	w := doJSON(newACLRouter(svc), http.MethodDelete, "/api/v1/acl/grants/deal-1/u2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
