// dao/acl_dao.go
package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/model"
)

const (
	labelResource  = "Resource"
	labelPrincipal = "Principal"
	relHasAccess   = "HAS_ACCESS"
)

// ACLDAO is the Neo4j-backed implementation of ACLStore. Resources and
// principals are nodes; a grant is a HAS_ACCESS relationship carrying the
// permission set.
type ACLDAO struct {
	Driver neo4j.Driver
}

var _ ACLStore = &ACLDAO{}

func NewACLDAO(driver neo4j.Driver) *ACLDAO {
	dao := &ACLDAO{Driver: driver}
	ctx := context.Background()
	if err := dao.EnsureUniqueConstraint(ctx); err != nil {
		logger.Fatal("Failed to ensure unique constraint for Resource", zap.Error(err))
	}
	return dao
}

func (dao *ACLDAO) EnsureUniqueConstraint(ctx context.Context) error {
	logger.Info("Ensuring unique constraint on Resource ID")
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        CREATE CONSTRAINT unique_resource_id IF NOT EXISTS
        FOR (r:` + labelResource + `) REQUIRE r.id IS UNIQUE
        `
		_, err := transaction.Run(query, nil)
		return nil, err
	})

	if err != nil {
		logger.Error("Failed to ensure unique constraint on Resource ID", zap.Error(err))
		return err
	}

	return nil
}

func (dao *ACLDAO) GetResource(ctx context.Context, tenantID, resourceID string) (*model.Resource, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (r:` + labelResource + ` {id: $id, tenant_id: $tenantId})
        RETURN r.id, r.tenant_id, r.type, r.name, r.parent_id, r.owner_id
        `
		params := map[string]interface{}{
			"id":       resourceID,
			"tenantId": tenantID,
		}

		res, err := transaction.Run(query, params)
		if err != nil {
			return nil, core_errors.ErrDatabaseOperation
		}

		if res.Next() {
			values := res.Record().Values
			resource := &model.Resource{
				ID:       asString(values[0]),
				TenantID: asString(values[1]),
				Type:     asString(values[2]),
				Name:     asString(values[3]),
				ParentID: asString(values[4]),
				OwnerID:  asString(values[5]),
			}
			return resource, nil
		}

		return nil, core_errors.ErrResourceNotFound
	})

	if err != nil {
		return nil, err
	}
	return result.(*model.Resource), nil
}

func (dao *ACLDAO) GetACLGrants(ctx context.Context, tenantID, resourceID string) ([]model.ACLGrant, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:` + labelPrincipal + `)-[g:` + relHasAccess + `]->(r:` + labelResource + ` {id: $id, tenant_id: $tenantId})
        RETURN p.id, p.kind, r.type, g.permissions, g.granted_by, g.granted_at, g.expires_at
        `
		params := map[string]interface{}{
			"id":       resourceID,
			"tenantId": tenantID,
		}

		res, err := transaction.Run(query, params)
		if err != nil {
			return nil, core_errors.ErrDatabaseOperation
		}

		var grants []model.ACLGrant
		for res.Next() {
			values := res.Record().Values
			grant := model.ACLGrant{
				TenantID:     tenantID,
				ResourceID:   resourceID,
				ResourceType: asString(values[2]),
				Principal: model.Principal{
					ID:   asString(values[0]),
					Kind: model.PrincipalKind(asString(values[1])),
				},
				GrantedBy: asString(values[4]),
			}
			for _, raw := range asSlice(values[3]) {
				grant.Permissions = append(grant.Permissions, model.PermissionLevel(asString(raw)))
			}
			if t, err := time.Parse(time.RFC3339, asString(values[5])); err == nil {
				grant.GrantedAt = t
			}
			if exp := asString(values[6]); exp != "" {
				if t, err := time.Parse(time.RFC3339, exp); err == nil {
					grant.ExpiresAt = &t
				}
			}
			grants = append(grants, grant)
		}

		return grants, nil
	})

	if err != nil {
		logger.Error("Failed to fetch ACL grants",
			zap.Error(err),
			zap.String("resourceID", resourceID),
			zap.String("tenantID", tenantID))
		return nil, err
	}
	return result.([]model.ACLGrant), nil
}

func (dao *ACLDAO) GetParentID(ctx context.Context, tenantID, resourceID string) (string, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (r:` + labelResource + ` {id: $id, tenant_id: $tenantId})
        RETURN r.parent_id
        `
		params := map[string]interface{}{
			"id":       resourceID,
			"tenantId": tenantID,
		}

		res, err := transaction.Run(query, params)
		if err != nil {
			return nil, core_errors.ErrDatabaseOperation
		}

		if res.Next() {
			return asString(res.Record().Values[0]), nil
		}

		return nil, core_errors.ErrResourceNotFound
	})

	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (dao *ACLDAO) PutACLGrant(ctx context.Context, grant model.ACLGrant) error {
	start := time.Now()
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	_, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (r:` + labelResource + ` {id: $resourceId, tenant_id: $tenantId})
        MERGE (p:` + labelPrincipal + ` {id: $principalId, tenant_id: $tenantId})
        ON CREATE SET p.kind = $principalKind
        MERGE (p)-[g:` + relHasAccess + `]->(r)
        SET g.permissions = $permissions,
            g.granted_by = $grantedBy,
            g.granted_at = $grantedAt,
            g.expires_at = $expiresAt
        RETURN r.id
        `
		permissions := make([]interface{}, 0, len(grant.Permissions))
		for _, p := range grant.Permissions {
			permissions = append(permissions, string(p))
		}
		var expiresAt interface{}
		if grant.ExpiresAt != nil {
			expiresAt = grant.ExpiresAt.Format(time.RFC3339)
		}
		params := map[string]interface{}{
			"resourceId":    grant.ResourceID,
			"tenantId":      grant.TenantID,
			"principalId":   grant.Principal.ID,
			"principalKind": string(grant.Principal.Kind),
			"permissions":   permissions,
			"grantedBy":     grant.GrantedBy,
			"grantedAt":     grant.GrantedAt.Format(time.RFC3339),
			"expiresAt":     expiresAt,
		}

		res, err := transaction.Run(query, params)
		if err != nil {
			return nil, core_errors.ErrDatabaseOperation
		}

		if res.Next() {
			return res.Record().Values[0], nil
		}

		return nil, core_errors.ErrResourceNotFound
	})

	duration := time.Since(start)
	if err != nil {
		logger.Error("Failed to store ACL grant",
			zap.Error(err),
			zap.String("resourceID", grant.ResourceID),
			zap.String("principalID", grant.Principal.ID),
			zap.Duration("duration", duration))
		return err
	}

	logger.Info("ACL grant stored",
		zap.String("resourceID", grant.ResourceID),
		zap.String("principalID", grant.Principal.ID),
		zap.Duration("duration", duration))
	return nil
}

func (dao *ACLDAO) DeleteACLGrant(ctx context.Context, tenantID, resourceID string, principal model.Principal) error {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close()

	result, err := session.WriteTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:` + labelPrincipal + ` {id: $principalId, tenant_id: $tenantId})-[g:` + relHasAccess + `]->(r:` + labelResource + ` {id: $resourceId, tenant_id: $tenantId})
        DELETE g
        RETURN count(g) as deleted
        `
		params := map[string]interface{}{
			"resourceId":  resourceID,
			"tenantId":    tenantID,
			"principalId": principal.ID,
		}

		res, err := transaction.Run(query, params)
		if err != nil {
			return nil, core_errors.ErrDatabaseOperation
		}

		if res.Next() {
			return res.Record().Values[0], nil
		}

		return int64(0), nil
	})

	if err != nil {
		logger.Error("Failed to delete ACL grant",
			zap.Error(err),
			zap.String("resourceID", resourceID),
			zap.String("principalID", principal.ID))
		return err
	}

	if deleted, ok := result.(int64); ok && deleted == 0 {
		return core_errors.ErrGrantNotFound
	}

	logger.Info("ACL grant deleted",
		zap.String("resourceID", resourceID),
		zap.String("principalID", principal.ID))
	return nil
}

func (dao *ACLDAO) IsTenantMember(ctx context.Context, tenantID, principalID string) (bool, error) {
	session := dao.Driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	result, err := session.ReadTransaction(func(transaction neo4j.Transaction) (interface{}, error) {
		query := `
        MATCH (p:` + labelPrincipal + ` {id: $principalId, tenant_id: $tenantId})
        RETURN count(p) > 0 as member
        `
		params := map[string]interface{}{
			"principalId": principalID,
			"tenantId":    tenantID,
		}

		res, err := transaction.Run(query, params)
		if err != nil {
			return nil, core_errors.ErrDatabaseOperation
		}

		if res.Next() {
			return res.Record().Values[0], nil
		}

		return false, nil
	})

	if err != nil {
		return false, err
	}

	member, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected membership result: %v", result)
	}
	return member, nil
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func asSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}
