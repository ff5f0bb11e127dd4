// service/permission_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dealflowhq/dealflow/core/audit"
	"github.com/dealflowhq/dealflow/core/cache"
	"github.com/dealflowhq/dealflow/core/dao"
	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/model"
	"github.com/dealflowhq/dealflow/core/util"
)

// maxInheritanceDepth bounds the parent-chain walk. A chain longer than
// this resolves using only the first five ancestors.
const maxInheritanceDepth = 5

// resourceTypeACL is the cache namespace for resolved permission entries
// and the suffix of their invalidation channel.
const resourceTypeACL = "acl"

// IPermissionService defines the interface for permission resolution and
// ACL mutation.
type IPermissionService interface {
	CheckPermission(ctx context.Context, tenantID, principalID, resourceID string, required model.PermissionLevel) (*model.PermissionDecision, error)
	BatchCheckPermissions(ctx context.Context, tenantID, principalID string, resourceIDs []string, required model.PermissionLevel) (map[string]model.PermissionDecision, error)
	GrantPermission(ctx context.Context, grant model.ACLGrant, granterID string) error
	RevokePermission(ctx context.Context, tenantID, resourceID string, principal model.Principal, revokerID string) error
	UpdateACL(ctx context.Context, grant model.ACLGrant, updaterID string) error
}

// PermissionService resolves effective permissions for (tenant, principal,
// resource) triples, cache-aside over the Coordinator.
//
// Unlike the Coordinator's fail-open default, a check that cannot be
// resolved -- authoritative store error, inheritance cycle, exceeded walk
// depth -- fails closed and denies. That deviation is deliberate and local
// to this service; do not "fix" it by inheriting the generic contract.
type PermissionService struct {
	aclStore       dao.ACLStore
	coordinator    *cache.Coordinator
	validationUtil *util.ValidationUtil
	auditService   audit.Service
	eventBus       *util.EventBus
}

var _ IPermissionService = &PermissionService{}

// NewPermissionService creates a new instance of PermissionService
func NewPermissionService(aclStore dao.ACLStore, coordinator *cache.Coordinator, validationUtil *util.ValidationUtil, auditService audit.Service, eventBus *util.EventBus) *PermissionService {
	service := &PermissionService{
		aclStore:       aclStore,
		coordinator:    coordinator,
		validationUtil: validationUtil,
		auditService:   auditService,
		eventBus:       eventBus,
	}

	eventBus.Subscribe(util.EventACLChanged, service.handleACLChanged)

	return service
}

func (s *PermissionService) handleACLChanged(ctx context.Context, event util.Event) error {
	change, ok := event.Payload.(audit.SecurityEvent)
	if !ok {
		return fmt.Errorf("unexpected acl.changed payload: %T", event.Payload)
	}
	return s.auditService.Record(ctx, change)
}

func permissionCacheKey(tenantID, resourceID, principalID string) string {
	return cache.Key(tenantID, resourceTypeACL, resourceID, principalID)
}

// CheckPermission resolves the effective permissions of a principal on a
// resource and compares them against the required level.
func (s *PermissionService) CheckPermission(ctx context.Context, tenantID, principalID, resourceID string, required model.PermissionLevel) (*model.PermissionDecision, error) {
	if err := s.validationUtil.ValidatePermissionLevel(required); err != nil {
		return nil, fmt.Errorf("%w: %v", core_errors.ErrPermissionDenied, err)
	}

	key := permissionCacheKey(tenantID, resourceID, principalID)
	if cached, ok := s.coordinator.Get(ctx, key); ok {
		var entry model.PermissionCacheEntry
		if err := json.Unmarshal([]byte(cached), &entry); err == nil {
			return decide(&entry, required), nil
		}
		logger.Warn("Discarding malformed permission cache entry", zap.String("key", key))
	}

	entry, err := s.resolve(ctx, tenantID, principalID, resourceID)
	if err == core_errors.ErrCycleDetected {
		// Unresolvable hierarchy: deny, never loop.
		logger.Warn("Cycle detected during permission resolution",
			zap.String("tenantID", tenantID),
			zap.String("resourceID", resourceID))
		s.eventBus.Publish(ctx, util.EventACLChanged, audit.SecurityEvent{
			TenantID:    tenantID,
			PrincipalID: principalID,
			Action:      audit.ActionPermissionDenied,
			ResourceID:  resourceID,
		})
		return &model.PermissionDecision{Allowed: false}, nil
	} else if err != nil {
		logger.Error("Permission resolution failed, denying",
			zap.Error(err),
			zap.String("tenantID", tenantID),
			zap.String("principalID", principalID),
			zap.String("resourceID", resourceID))
		return nil, fmt.Errorf("%w: %v", core_errors.ErrPermissionDenied, err)
	}

	s.cacheEntry(ctx, key, entry)
	return decide(entry, required), nil
}

// BatchCheckPermissions performs one bulk cache read for all ids and
// computes the misses individually. Ids that cannot be resolved come back
// denied; the batch itself never fails.
func (s *PermissionService) BatchCheckPermissions(ctx context.Context, tenantID, principalID string, resourceIDs []string, required model.PermissionLevel) (map[string]model.PermissionDecision, error) {
	if err := s.validationUtil.ValidatePermissionLevel(required); err != nil {
		return nil, fmt.Errorf("%w: %v", core_errors.ErrPermissionDenied, err)
	}

	keys := make([]string, len(resourceIDs))
	for i, id := range resourceIDs {
		keys[i] = permissionCacheKey(tenantID, id, principalID)
	}
	hits := s.coordinator.MGet(ctx, keys)

	decisions := make(map[string]model.PermissionDecision, len(resourceIDs))
	for i, id := range resourceIDs {
		if cached, ok := hits[keys[i]]; ok {
			var entry model.PermissionCacheEntry
			if err := json.Unmarshal([]byte(cached), &entry); err == nil {
				decisions[id] = *decide(&entry, required)
				continue
			}
		}

		entry, err := s.resolve(ctx, tenantID, principalID, id)
		if err != nil {
			logger.Warn("Batch permission resolution failed for resource, denying",
				zap.Error(err),
				zap.String("resourceID", id))
			decisions[id] = model.PermissionDecision{Allowed: false}
			continue
		}
		s.cacheEntry(ctx, keys[i], entry)
		decisions[id] = *decide(entry, required)
	}

	return decisions, nil
}

// GrantPermission stores a grant and invalidates every affected cache entry
// across all instances before reporting success.
func (s *PermissionService) GrantPermission(ctx context.Context, grant model.ACLGrant, granterID string) error {
	if err := s.validationUtil.ValidateGrant(grant); err != nil {
		return fmt.Errorf("%w: %v", core_errors.ErrInvalidGrantData, err)
	}

	grant.GrantedBy = granterID
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}

	if err := s.aclStore.PutACLGrant(ctx, grant); err != nil {
		logger.Error("Error storing ACL grant", zap.Error(err), zap.String("granterID", granterID))
		return err
	}

	if err := s.invalidateGrant(ctx, grant.TenantID, grant.ResourceID, grant.Principal); err != nil {
		return err
	}

	details, _ := json.Marshal(grant)
	s.eventBus.Publish(ctx, util.EventACLChanged, audit.SecurityEvent{
		TenantID:    grant.TenantID,
		PrincipalID: grant.Principal.ID,
		Action:      audit.ActionACLGranted,
		ResourceID:  grant.ResourceID,
		Granted:     true,
		Details:     details,
	})

	logger.Info("Permission granted",
		zap.String("resourceID", grant.ResourceID),
		zap.String("principalID", grant.Principal.ID),
		zap.String("granterID", granterID))
	return nil
}

// RevokePermission deletes a grant and invalidates affected cache entries.
func (s *PermissionService) RevokePermission(ctx context.Context, tenantID, resourceID string, principal model.Principal, revokerID string) error {
	if err := s.aclStore.DeleteACLGrant(ctx, tenantID, resourceID, principal); err != nil {
		logger.Error("Error deleting ACL grant", zap.Error(err), zap.String("revokerID", revokerID))
		return err
	}

	if err := s.invalidateGrant(ctx, tenantID, resourceID, principal); err != nil {
		return err
	}

	s.eventBus.Publish(ctx, util.EventACLChanged, audit.SecurityEvent{
		TenantID:    tenantID,
		PrincipalID: principal.ID,
		Action:      audit.ActionACLRevoked,
		ResourceID:  resourceID,
	})

	logger.Info("Permission revoked",
		zap.String("resourceID", resourceID),
		zap.String("principalID", principal.ID),
		zap.String("revokerID", revokerID))
	return nil
}

// UpdateACL overwrites an existing grant with a new permission set.
func (s *PermissionService) UpdateACL(ctx context.Context, grant model.ACLGrant, updaterID string) error {
	return s.GrantPermission(ctx, grant, updaterID)
}

// invalidateGrant drops cached resolutions affected by a mutation and
// publishes the invalidation. A grant to a user touches one triple; a grant
// to a role can affect every principal holding it, so the whole resource's
// entries go.
func (s *PermissionService) invalidateGrant(ctx context.Context, tenantID, resourceID string, principal model.Principal) error {
	pattern := permissionCacheKey(tenantID, resourceID, principal.ID)
	if principal.Kind == model.PrincipalRole {
		pattern = cache.ResourcePattern(tenantID, resourceTypeACL, resourceID)
	}

	ev := cache.NewInvalidationEvent(resourceTypeACL, pattern, tenantID, resourceID)
	if err := s.coordinator.Invalidate(ctx, ev); err != nil {
		logger.Error("Failed to invalidate permission cache after ACL mutation",
			zap.Error(err),
			zap.String("pattern", pattern))
		return err
	}
	return nil
}

// resolve computes the effective permission set from the authoritative
// store: direct grants first, then up to five ancestors along the parent
// chain, with a visited set rejecting cycles. Principals with no grant
// anywhere fall back to the tenant-member default of READ.
func (s *PermissionService) resolve(ctx context.Context, tenantID, principalID, resourceID string) (*model.PermissionCacheEntry, error) {
	now := time.Now().UTC()

	direct, err := s.grantsFor(ctx, tenantID, principalID, resourceID, now)
	if err != nil {
		return nil, err
	}

	perms := direct
	source := model.SourceDirect

	// ADMIN already satisfies everything; the walk cannot add anything.
	if !perms.Contains(model.PermissionAdmin) {
		visited := map[string]bool{resourceID: true}
		currentID := resourceID

		for depth := 0; depth < maxInheritanceDepth; depth++ {
			parentID, err := s.aclStore.GetParentID(ctx, tenantID, currentID)
			if err != nil {
				return nil, err
			}
			if parentID == "" {
				break
			}
			if visited[parentID] {
				return nil, core_errors.ErrCycleDetected
			}
			visited[parentID] = true

			inherited, err := s.grantsFor(ctx, tenantID, principalID, parentID, now)
			if err != nil {
				return nil, err
			}
			if len(inherited) > 0 && len(perms) == 0 {
				source = model.SourceInherited
			}
			perms = perms.Union(inherited)

			currentID = parentID
		}
	}

	if len(perms) == 0 {
		member, err := s.aclStore.IsTenantMember(ctx, tenantID, principalID)
		if err != nil {
			return nil, err
		}
		if member {
			perms = model.PermissionSet{model.PermissionRead}
			source = model.SourceDefault
		}
	}
	if len(direct) > 0 {
		source = model.SourceDirect
	}

	ttl := viper.GetDuration("cache.permissionTTL")
	return &model.PermissionCacheEntry{
		TenantID:           tenantID,
		PrincipalID:        principalID,
		ResourceID:         resourceID,
		GrantedPermissions: perms,
		Source:             source,
		CachedAt:           now,
		ExpiresAt:          now.Add(ttl),
	}, nil
}

func (s *PermissionService) grantsFor(ctx context.Context, tenantID, principalID, resourceID string, now time.Time) (model.PermissionSet, error) {
	grants, err := s.aclStore.GetACLGrants(ctx, tenantID, resourceID)
	if err != nil {
		return nil, err
	}
	var perms model.PermissionSet
	for _, grant := range grants {
		if grant.Principal.ID != principalID || grant.Expired(now) {
			continue
		}
		perms = perms.Union(grant.Permissions)
	}
	return perms, nil
}

func (s *PermissionService) cacheEntry(ctx context.Context, key string, entry *model.PermissionCacheEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	ttl := viper.GetDuration("cache.permissionTTL")
	if err := s.coordinator.Set(ctx, key, string(payload), ttl); err != nil {
		logger.Warn("Failed to cache permission entry", zap.Error(err), zap.String("key", key))
	}
}

func decide(entry *model.PermissionCacheEntry, required model.PermissionLevel) *model.PermissionDecision {
	decision := &model.PermissionDecision{
		Allowed:   entry.GrantedPermissions.Satisfies(required),
		Effective: entry.GrantedPermissions.Highest(),
	}
	if len(entry.GrantedPermissions) > 0 {
		decision.Source = entry.Source
	}
	return decision
}
