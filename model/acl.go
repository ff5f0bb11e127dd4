// model/acl.go
package model

import "time"

// PermissionLevel is one of the four grantable levels. The levels are
// totally ordered for reporting purposes, but holding a higher level does
// not imply the lower ones: every level must be granted explicitly, with
// the single exception of ADMIN, which satisfies any requirement.
type PermissionLevel string

const (
	PermissionRead   PermissionLevel = "READ"
	PermissionWrite  PermissionLevel = "WRITE"
	PermissionDelete PermissionLevel = "DELETE"
	PermissionAdmin  PermissionLevel = "ADMIN"
)

var permissionRank = map[PermissionLevel]int{
	PermissionRead:   1,
	PermissionWrite:  2,
	PermissionDelete: 3,
	PermissionAdmin:  4,
}

// Valid reports whether the level is one of the four known levels.
func (p PermissionLevel) Valid() bool {
	_, ok := permissionRank[p]
	return ok
}

// Rank returns the position of the level in the total order, 0 for unknown.
func (p PermissionLevel) Rank() int {
	return permissionRank[p]
}

// PermissionSet is the set of levels a principal holds on a resource.
type PermissionSet []PermissionLevel

// Contains reports whether the set holds the given level explicitly.
func (s PermissionSet) Contains(level PermissionLevel) bool {
	for _, p := range s {
		if p == level {
			return true
		}
	}
	return false
}

// Satisfies reports whether the set meets a required level. ADMIN satisfies
// everything; any other level must be present explicitly.
func (s PermissionSet) Satisfies(required PermissionLevel) bool {
	return s.Contains(PermissionAdmin) || s.Contains(required)
}

// Highest returns the highest-ranked level in the set, or "" when empty.
func (s PermissionSet) Highest() PermissionLevel {
	var best PermissionLevel
	for _, p := range s {
		if p.Rank() > best.Rank() {
			best = p
		}
	}
	return best
}

// Union merges another set into this one without duplicates.
func (s PermissionSet) Union(other PermissionSet) PermissionSet {
	merged := s
	for _, p := range other {
		if !merged.Contains(p) {
			merged = append(merged, p)
		}
	}
	return merged
}

// PrincipalKind distinguishes user principals from role principals.
type PrincipalKind string

const (
	PrincipalUser PrincipalKind = "user"
	PrincipalRole PrincipalKind = "role"
)

type Principal struct {
	Kind PrincipalKind `json:"kind"`
	ID   string        `json:"id"`
}

// ACLGrant is an authoritative permission grant stored alongside the
// resource it protects.
type ACLGrant struct {
	TenantID     string        `json:"tenant_id"`
	ResourceID   string        `json:"resource_id"`
	ResourceType string        `json:"resource_type"`
	Principal    Principal     `json:"principal"`
	Permissions  PermissionSet `json:"permissions"`
	GrantedBy    string        `json:"granted_by"`
	GrantedAt    time.Time     `json:"granted_at"`
	ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
}

// Expired reports whether the grant carries an expiry that has passed.
func (g ACLGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && now.After(*g.ExpiresAt)
}

// PermissionSource describes where a resolved permission came from.
type PermissionSource string

const (
	SourceDirect    PermissionSource = "direct"
	SourceInherited PermissionSource = "inherited"
	SourceDefault   PermissionSource = "default"
)

// PermissionCacheEntry is the cached result of a permission resolution for
// a (tenant, principal, resource) triple.
type PermissionCacheEntry struct {
	TenantID           string           `json:"tenant_id"`
	PrincipalID        string           `json:"principal_id"`
	ResourceID         string           `json:"resource_id"`
	GrantedPermissions PermissionSet    `json:"granted_permissions"`
	Source             PermissionSource `json:"source"`
	CachedAt           time.Time        `json:"cached_at"`
	ExpiresAt          time.Time        `json:"expires_at"`
}

// PermissionDecision is the outcome of a permission check.
type PermissionDecision struct {
	Allowed   bool             `json:"allowed"`
	Effective PermissionLevel  `json:"effective,omitempty"`
	Source    PermissionSource `json:"source,omitempty"`
}
