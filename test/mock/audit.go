// test/mock/audit.go
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/dealflowhq/dealflow/core/audit"
)

// CollectingAuditService records every event in memory so tests can assert
// on what was emitted without an Elasticsearch instance.
type CollectingAuditService struct {
	mu     sync.Mutex
	events []audit.SecurityEvent

	FailWith error
}

func NewCollectingAuditService() *CollectingAuditService {
	return &CollectingAuditService{}
}

func (s *CollectingAuditService) Record(ctx context.Context, event audit.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *CollectingAuditService) QueryEvents(ctx context.Context, from, to time.Time, tenantID, principalID string) ([]audit.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	var out []audit.SecurityEvent
	for _, ev := range s.events {
		if tenantID != "" && ev.TenantID != tenantID {
			continue
		}
		if principalID != "" && ev.PrincipalID != principalID {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Events returns a snapshot of everything recorded so far.
func (s *CollectingAuditService) Events() []audit.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.SecurityEvent(nil), s.events...)
}

// CountByAction returns how many recorded events carry the given action.
func (s *CollectingAuditService) CountByAction(action string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Action == action {
			n++
		}
	}
	return n
}
