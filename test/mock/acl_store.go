// test/mock/acl_store.go
package mock

import (
	"context"
	"sync"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	"github.com/dealflowhq/dealflow/core/model"
)

// InMemoryACLStore is a map-backed dao.ACLStore for tests. FailWith, when
// set, makes every call fail with that error to exercise fail-closed paths.
type InMemoryACLStore struct {
	mu        sync.Mutex
	resources map[string]*model.Resource
	grants    map[string][]model.ACLGrant
	members   map[string]bool

	FailWith error

	GrantReads int
}

func NewInMemoryACLStore() *InMemoryACLStore {
	return &InMemoryACLStore{
		resources: make(map[string]*model.Resource),
		grants:    make(map[string][]model.ACLGrant),
		members:   make(map[string]bool),
	}
}

func (s *InMemoryACLStore) AddResource(r model.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := r
	s.resources[r.TenantID+"/"+r.ID] = &copied
}

func (s *InMemoryACLStore) AddGrant(g model.ACLGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := g.TenantID + "/" + g.ResourceID
	s.grants[key] = append(s.grants[key], g)
}

func (s *InMemoryACLStore) SetMember(tenantID, principalID string, member bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[tenantID+"/"+principalID] = member
}

func (s *InMemoryACLStore) GetResource(ctx context.Context, tenantID, resourceID string) (*model.Resource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	r, ok := s.resources[tenantID+"/"+resourceID]
	if !ok {
		return nil, core_errors.ErrResourceNotFound
	}
	copied := *r
	return &copied, nil
}

func (s *InMemoryACLStore) GetACLGrants(ctx context.Context, tenantID, resourceID string) ([]model.ACLGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	s.GrantReads++
	return append([]model.ACLGrant(nil), s.grants[tenantID+"/"+resourceID]...), nil
}

func (s *InMemoryACLStore) GetParentID(ctx context.Context, tenantID, resourceID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return "", s.FailWith
	}
	r, ok := s.resources[tenantID+"/"+resourceID]
	if !ok {
		return "", core_errors.ErrResourceNotFound
	}
	return r.ParentID, nil
}

func (s *InMemoryACLStore) PutACLGrant(ctx context.Context, grant model.ACLGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	key := grant.TenantID + "/" + grant.ResourceID
	kept := s.grants[key][:0]
	for _, g := range s.grants[key] {
		if g.Principal != grant.Principal {
			kept = append(kept, g)
		}
	}
	s.grants[key] = append(kept, grant)
	return nil
}

func (s *InMemoryACLStore) DeleteACLGrant(ctx context.Context, tenantID, resourceID string, principal model.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	key := tenantID + "/" + resourceID
	kept := s.grants[key][:0]
	found := false
	for _, g := range s.grants[key] {
		if g.Principal == principal {
			found = true
			continue
		}
		kept = append(kept, g)
	}
	s.grants[key] = kept
	if !found {
		return core_errors.ErrGrantNotFound
	}
	return nil
}

func (s *InMemoryACLStore) IsTenantMember(ctx context.Context, tenantID, principalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}
	return s.members[tenantID+"/"+principalID], nil
}
