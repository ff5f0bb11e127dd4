// token/session.go
package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dealflowhq/dealflow/core/cache"
	core_errors "github.com/dealflowhq/dealflow/core/errors"
	"github.com/dealflowhq/dealflow/core/model"
)

func sessionKey(tenantID, sessionID string) string {
	return cache.Key(tenantID, typeSession, sessionID, facetRecord)
}

// CreateSession stores a new sliding-expiration session.
func (s *Store) CreateSession(ctx context.Context, session *model.Session) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return err
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return core_errors.ErrSessionExpired
	}
	if err := s.client.Set(ctx, sessionKey(session.TenantID, session.SessionID), sessionJSON, ttl).Err(); err != nil {
		return core_errors.ErrStoreUnavailable
	}
	return nil
}

// GetSession returns the session record.
func (s *Store) GetSession(ctx context.Context, tenantID, sessionID string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	sessionJSON, err := s.client.Get(ctx, sessionKey(tenantID, sessionID)).Result()
	if err == redis.Nil {
		return nil, core_errors.ErrSessionNotFound
	} else if err != nil {
		return nil, core_errors.ErrStoreUnavailable
	}

	var session model.Session
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// TouchSession bumps LastActivityAt and recomputes the sliding expiry,
// bounded by the absolute maximum lifetime measured from creation.
func (s *Store) TouchSession(ctx context.Context, tenantID, sessionID string, window, maxLifetime time.Duration) (*model.Session, error) {
	session, err := s.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if now.After(session.ExpiresAt) {
		return nil, core_errors.ErrSessionExpired
	}

	hardStop := session.CreatedAt.Add(maxLifetime)
	expiresAt := now.Add(window)
	if expiresAt.After(hardStop) {
		expiresAt = hardStop
	}
	if !expiresAt.After(now) {
		return nil, core_errors.ErrSessionExpired
	}

	session.LastActivityAt = now
	session.ExpiresAt = expiresAt

	if err := s.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession removes the session record.
func (s *Store) DeleteSession(ctx context.Context, tenantID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Del(ctx, sessionKey(tenantID, sessionID)).Err(); err != nil {
		return core_errors.ErrStoreUnavailable
	}
	return nil
}
