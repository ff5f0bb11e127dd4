// service/auth_service.go
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dealflowhq/dealflow/core/audit"
	"github.com/dealflowhq/dealflow/core/cache"
	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/model"
	"github.com/dealflowhq/dealflow/core/token"
	"github.com/dealflowhq/dealflow/core/util"
)

// resourceTypeAccessToken namespaces validation-cache entries.
const resourceTypeAccessToken = "accesstoken"

// IAuthService defines the credential lifecycle: token families, rotation
// with reuse detection, access-token validation and sliding sessions.
type IAuthService interface {
	Login(ctx context.Context, tenantID, userID string) (*model.Credentials, error)
	Refresh(ctx context.Context, tenantID, presentedTokenID string) (*model.Credentials, error)
	Revoke(ctx context.Context, tenantID, presentedTokenID string) error
	ValidateAccessToken(ctx context.Context, tenantID, accessToken string) (*model.AccessClaims, error)
	ExtendSession(ctx context.Context, tenantID, sessionID string) (*model.Session, error)
}

// AuthService manages refresh-token rotation and sessions. The token store
// is authoritative, not a cache: when it is unreachable no refresh succeeds
// and the caller has to re-authenticate. Only the access-token validation
// cache fails open.
type AuthService struct {
	tokens       *token.Store
	coordinator  *cache.Coordinator
	auditService audit.Service
	eventBus     *util.EventBus
	signingKey   []byte
}

var _ IAuthService = &AuthService{}

func NewAuthService(tokens *token.Store, coordinator *cache.Coordinator, auditService audit.Service, eventBus *util.EventBus) *AuthService {
	return &AuthService{
		tokens:       tokens,
		coordinator:  coordinator,
		auditService: auditService,
		eventBus:     eventBus,
		signingKey:   []byte(viper.GetString("auth.jwtSecret")),
	}
}

// Login creates a fresh token family with one ACTIVE refresh token, a
// sliding session, and an access token.
func (s *AuthService) Login(ctx context.Context, tenantID, userID string) (*model.Credentials, error) {
	now := time.Now().UTC()
	refreshTTL := viper.GetDuration("auth.refreshTokenTTL")
	window := viper.GetDuration("session.window")
	maxLifetime := viper.GetDuration("session.maxLifetime")

	session := &model.Session{
		SessionID:      uuid.New().String(),
		UserID:         userID,
		TenantID:       tenantID,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(minDuration(window, maxLifetime)),
	}

	family := &model.TokenFamily{
		FamilyID:  uuid.New().String(),
		UserID:    userID,
		TenantID:  tenantID,
		SessionID: session.SessionID,
		State:     model.FamilyActive,
		CreatedAt: now,
	}
	first := &model.RefreshToken{
		TokenID:   uuid.New().String(),
		FamilyID:  family.FamilyID,
		UserID:    userID,
		TenantID:  tenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(refreshTTL),
		State:     model.TokenActive,
	}

	if err := s.tokens.CreateFamily(ctx, family, first, refreshTTL); err != nil {
		return nil, err
	}
	if err := s.tokens.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	accessToken, expiresAt, err := s.issueAccessToken(userID, tenantID, session.SessionID, family.FamilyID)
	if err != nil {
		return nil, err
	}

	logger.Info("Token family issued",
		zap.String("familyID", family.FamilyID),
		zap.String("userID", userID),
		zap.String("tenantID", tenantID))

	return &model.Credentials{
		AccessToken:  accessToken,
		RefreshToken: first.TokenID,
		SessionID:    session.SessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// Refresh rotates a presented refresh token. A presented token that is no
// longer ACTIVE is a reuse event: the whole family is revoked before the
// rejection is returned. Two concurrent refreshes with the same token race
// on a conditional write; exactly one wins and the loser triggers the same
// reuse handling.
func (s *AuthService) Refresh(ctx context.Context, tenantID, presentedTokenID string) (*model.Credentials, error) {
	presented, err := s.tokens.GetToken(ctx, tenantID, presentedTokenID)
	if err != nil {
		return nil, err
	}

	family, err := s.tokens.GetFamily(ctx, tenantID, presented.FamilyID)
	if err != nil {
		return nil, err
	}
	if family.State == model.FamilyCompromised {
		return nil, core_errors.ErrFamilyCompromised
	}

	now := time.Now().UTC()
	if now.After(presented.ExpiresAt) {
		return nil, core_errors.ErrTokenExpired
	}

	if presented.State != model.TokenActive {
		return nil, s.handleReuse(ctx, presented, family)
	}

	refreshTTL := viper.GetDuration("auth.refreshTokenTTL")
	next := &model.RefreshToken{
		TokenID:   uuid.New().String(),
		FamilyID:  presented.FamilyID,
		UserID:    presented.UserID,
		TenantID:  tenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(refreshTTL),
		State:     model.TokenActive,
	}

	won, err := s.tokens.RotateToken(ctx, presented, next, refreshTTL)
	if err != nil {
		return nil, err
	}
	if !won {
		// The conditional write lost: a concurrent refresh already rotated
		// this token. Same handling as any other replay.
		return nil, s.handleReuse(ctx, presented, family)
	}

	accessToken, expiresAt, err := s.issueAccessToken(presented.UserID, tenantID, family.SessionID, family.FamilyID)
	if err != nil {
		return nil, err
	}

	logger.Debug("Refresh token rotated",
		zap.String("familyID", family.FamilyID),
		zap.String("tenantID", tenantID))

	return &model.Credentials{
		AccessToken:  accessToken,
		RefreshToken: next.TokenID,
		SessionID:    family.SessionID,
		ExpiresAt:    expiresAt,
	}, nil
}

// handleReuse escalates a replayed token: the family is compromised, every
// member is revoked, the session is torn down and the event is recorded
// before the rejection propagates.
func (s *AuthService) handleReuse(ctx context.Context, presented *model.RefreshToken, family *model.TokenFamily) error {
	logger.Warn("Refresh token reuse detected",
		zap.String("tokenID", presented.TokenID),
		zap.String("familyID", family.FamilyID),
		zap.String("tenantID", family.TenantID))

	if err := s.tokens.CompromiseFamily(ctx, family.TenantID, family.FamilyID); err != nil {
		logger.Error("Failed to compromise token family after reuse", zap.Error(err), zap.String("familyID", family.FamilyID))
	}
	if family.SessionID != "" {
		if err := s.tokens.DeleteSession(ctx, family.TenantID, family.SessionID); err != nil {
			logger.Error("Failed to delete session after reuse", zap.Error(err), zap.String("sessionID", family.SessionID))
		}
	}

	details, _ := json.Marshal(map[string]string{
		"token_id":  presented.TokenID,
		"family_id": family.FamilyID,
		"state":     string(presented.State),
	})
	event := audit.SecurityEvent{
		TenantID:    family.TenantID,
		PrincipalID: family.UserID,
		Action:      audit.ActionTokenReuse,
		Details:     details,
	}
	// Recorded synchronously: reuse is always logged and escalated, then
	// fanned out for anything listening.
	_ = s.auditService.Record(ctx, event)
	s.eventBus.Publish(ctx, util.EventTokenReuse, event)

	return core_errors.ErrTokenReuseDetected
}

// Revoke destroys the presented token's family and its session. Used for
// logout and explicit revocation.
func (s *AuthService) Revoke(ctx context.Context, tenantID, presentedTokenID string) error {
	presented, err := s.tokens.GetToken(ctx, tenantID, presentedTokenID)
	if err != nil {
		return err
	}
	family, err := s.tokens.GetFamily(ctx, tenantID, presented.FamilyID)
	if err != nil {
		return err
	}

	if err := s.tokens.DestroyFamily(ctx, tenantID, family.FamilyID); err != nil {
		return err
	}
	if family.SessionID != "" {
		if err := s.tokens.DeleteSession(ctx, tenantID, family.SessionID); err != nil {
			logger.Error("Failed to delete session on revoke", zap.Error(err), zap.String("sessionID", family.SessionID))
		}
	}

	_ = s.auditService.Record(ctx, audit.SecurityEvent{
		TenantID:    tenantID,
		PrincipalID: family.UserID,
		Action:      audit.ActionFamilyRevoked,
	})

	logger.Info("Token family revoked",
		zap.String("familyID", family.FamilyID),
		zap.String("tenantID", tenantID))
	return nil
}

// ValidateAccessToken verifies an access token, consulting a short-lived
// validation cache first. The cache is a pure performance optimization and
// fails open to full verification.
func (s *AuthService) ValidateAccessToken(ctx context.Context, tenantID, accessToken string) (*model.AccessClaims, error) {
	sum := sha256.Sum256([]byte(accessToken))
	key := cache.Key(tenantID, resourceTypeAccessToken, hex.EncodeToString(sum[:]), "claims")

	if cached, ok := s.coordinator.Get(ctx, key); ok {
		var claims model.AccessClaims
		if err := json.Unmarshal([]byte(cached), &claims); err == nil {
			return &claims, nil
		}
	}

	claims := &model.AccessClaims{}
	parsed, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, core_errors.ErrInvalidAccessToken
	}
	if claims.TenantID != tenantID {
		return nil, core_errors.ErrInvalidAccessToken
	}

	ttl := viper.GetDuration("auth.validationCacheTTL")
	if claims.ExpiresAt != nil {
		if remaining := time.Until(claims.ExpiresAt.Time); remaining < ttl {
			ttl = remaining
		}
	}
	if ttl > 0 {
		if payload, err := json.Marshal(claims); err == nil {
			if err := s.coordinator.Set(ctx, key, string(payload), ttl); err != nil {
				logger.Debug("Failed to populate validation cache", zap.Error(err))
			}
		}
	}

	return claims, nil
}

// ExtendSession bumps the sliding window on every authenticated request.
func (s *AuthService) ExtendSession(ctx context.Context, tenantID, sessionID string) (*model.Session, error) {
	window := viper.GetDuration("session.window")
	maxLifetime := viper.GetDuration("session.maxLifetime")
	session, err := s.tokens.TouchSession(ctx, tenantID, sessionID, window, maxLifetime)
	if err != nil {
		if errors.Is(err, core_errors.ErrSessionNotFound) || errors.Is(err, core_errors.ErrSessionExpired) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}
	return session, nil
}

func (s *AuthService) issueAccessToken(userID, tenantID, sessionID, familyID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(viper.GetDuration("auth.accessTokenTTL"))

	claims := &model.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.New().String(),
			Issuer:    "dealflow-core",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID:  tenantID,
		SessionID: sessionID,
		FamilyID:  familyID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
