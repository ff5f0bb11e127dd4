// cache/keys.go
package cache

import (
	"fmt"
	"path"
	"strings"
)

// Every cache key is namespaced under its owning tenant:
//
//	tenant:{tenantId}:{resourceType}:{resourceId}:{facet}
//
// The convention is shared with every other consumer of the key-value store
// and must be preserved bit-for-bit. Keeping the tenant first makes
// pattern-based bulk invalidation possible and keeps entries from ever being
// read across tenant boundaries.

const (
	keyPrefix     = "tenant:"
	channelPrefix = "cache:invalidate:"
)

// Key builds a fully qualified cache key.
func Key(tenantID, resourceType, resourceID, facet string) string {
	return fmt.Sprintf("tenant:%s:%s:%s:%s", tenantID, resourceType, resourceID, facet)
}

// ResourcePattern matches every facet cached for one resource.
func ResourcePattern(tenantID, resourceType, resourceID string) string {
	return fmt.Sprintf("tenant:%s:%s:%s:*", tenantID, resourceType, resourceID)
}

// TypePattern matches every entry of one resource type within a tenant.
func TypePattern(tenantID, resourceType string) string {
	return fmt.Sprintf("tenant:%s:%s:*", tenantID, resourceType)
}

// TenantPattern matches every entry a tenant owns.
func TenantPattern(tenantID string) string {
	return fmt.Sprintf("tenant:%s:*", tenantID)
}

// Channel returns the invalidation channel for a resource type.
func Channel(resourceType string) string {
	return channelPrefix + resourceType
}

// TenantScoped reports whether a key or pattern lives inside the tenant
// namespace. The coordinator refuses to touch anything that does not.
func TenantScoped(keyOrPattern string) bool {
	return strings.HasPrefix(keyOrPattern, keyPrefix)
}

// Match reports whether a key matches a glob pattern. Keys never contain
// slashes, so path.Match glob semantics line up with the Redis MATCH glob
// used on the server side.
func Match(pattern, key string) bool {
	ok, err := path.Match(pattern, key)
	return err == nil && ok
}
