// dao/acl_store.go
package dao

import (
	"context"

	"github.com/dealflowhq/dealflow/core/model"
)

// ACLStore is the narrow interface onto the authoritative resource store.
// It is the source of truth for resources and grants; everything the cache
// serves is derived from it. Implemented by the product's document store.
type ACLStore interface {
	GetResource(ctx context.Context, tenantID, resourceID string) (*model.Resource, error)
	GetACLGrants(ctx context.Context, tenantID, resourceID string) ([]model.ACLGrant, error)
	// GetParentID returns the parent resource id, or "" for top-level
	// resources.
	GetParentID(ctx context.Context, tenantID, resourceID string) (string, error)
	PutACLGrant(ctx context.Context, grant model.ACLGrant) error
	DeleteACLGrant(ctx context.Context, tenantID, resourceID string, principal model.Principal) error
	// IsTenantMember reports whether the principal belongs to the tenant.
	// Members carry an implicit default of READ.
	IsTenantMember(ctx context.Context, tenantID, principalID string) (bool, error)
}
