// audit/service.go
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	logger "github.com/dealflowhq/dealflow/core/logging"
)

type Service interface {
	Record(ctx context.Context, event SecurityEvent) error
	QueryEvents(ctx context.Context, from, to time.Time, tenantID, principalID string) ([]SecurityEvent, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &service{repo: repo}
}

func (s *service) Record(ctx context.Context, event SecurityEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if err := s.repo.Record(ctx, event); err != nil {
		// The trail is best-effort: a sink outage must never block the
		// security decision that produced the event.
		logger.Error("Failed to record security event",
			zap.Error(err),
			zap.String("action", event.Action),
			zap.String("tenantID", event.TenantID))
		return err
	}
	return nil
}

func (s *service) QueryEvents(ctx context.Context, from, to time.Time, tenantID, principalID string) ([]SecurityEvent, error) {
	return s.repo.QueryEvents(ctx, from, to, tenantID, principalID)
}
