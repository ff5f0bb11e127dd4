// model/resource.go
package model

import "time"

// Resource is the slice of an authoritative resource record the core needs
// for permission resolution. The full document lives in the product's
// document store; only identity, tenancy and the parent pointer matter here.
type Resource struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Type     string `json:"type"` // e.g., "opportunity", "account", "report"
	Name     string `json:"name,omitempty"`

	// ParentID points at the resource permissions are inherited from.
	// Empty for top-level resources.
	ParentID string `json:"parent_id,omitempty"`

	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
