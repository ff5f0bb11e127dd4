// token/store.go
package token

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/dealflowhq/dealflow/core/cache"
	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/model"
)

const (
	typeToken   = "token"
	typeFamily  = "tokenfamily"
	typeSession = "session"

	facetRecord  = "record"
	facetState   = "state"
	facetMembers = "members"
)

// rotateScript is the single conditional transition of a refresh: the
// presented token flips ACTIVE -> ROTATED and the successor is installed as
// the family's one ACTIVE token in the same server-side step. Of two
// concurrent refreshes with the same token exactly one sees ACTIVE and wins;
// the loser observes ROTATED and is handled as reuse.
var rotateScript = redis.NewScript(`
local state = redis.call("GET", KEYS[1])
if state ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[1], ARGV[2], "EX", ARGV[3])
redis.call("SET", KEYS[2], ARGV[4], "EX", ARGV[3])
redis.call("SET", KEYS[3], ARGV[5], "EX", ARGV[6])
redis.call("SET", KEYS[4], ARGV[7], "EX", ARGV[6])
redis.call("SADD", KEYS[5], ARGV[8])
redis.call("EXPIRE", KEYS[5], ARGV[6])
return 1
`)

// Store keeps refresh tokens, token families and sessions in Redis. Unlike
// the cache tiers this state is authoritative: it has no durable backing
// store, so unavailability here means fail closed (no refresh succeeds and
// callers must re-authenticate). A flush of the store force-invalidates
// every session; that is a documented tradeoff, not a bug.
type Store struct {
	client    *redis.Client
	opTimeout time.Duration
}

func NewStore(client *redis.Client) *Store {
	opTimeout := viper.GetDuration("cache.opTimeout")
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Store{client: client, opTimeout: opTimeout}
}

func stateKey(tenantID, tokenID string) string {
	return cache.Key(tenantID, typeToken, tokenID, facetState)
}

func recordKey(tenantID, tokenID string) string {
	return cache.Key(tenantID, typeToken, tokenID, facetRecord)
}

func familyKey(tenantID, familyID string) string {
	return cache.Key(tenantID, typeFamily, familyID, facetRecord)
}

func membersKey(tenantID, familyID string) string {
	return cache.Key(tenantID, typeFamily, familyID, facetMembers)
}

// CreateFamily stores a new family and its first ACTIVE token. Called at
// login; ttl is the refresh-token lifetime.
func (s *Store) CreateFamily(ctx context.Context, family *model.TokenFamily, first *model.RefreshToken, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	familyJSON, err := json.Marshal(family)
	if err != nil {
		return err
	}
	tokenJSON, err := json.Marshal(first)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, familyKey(family.TenantID, family.FamilyID), familyJSON, ttl)
	pipe.SAdd(ctx, membersKey(family.TenantID, family.FamilyID), first.TokenID)
	pipe.Expire(ctx, membersKey(family.TenantID, family.FamilyID), ttl)
	pipe.Set(ctx, recordKey(first.TenantID, first.TokenID), tokenJSON, ttl)
	pipe.Set(ctx, stateKey(first.TenantID, first.TokenID), string(model.TokenActive), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Failed to create token family", zap.Error(err), zap.String("familyID", family.FamilyID))
		return core_errors.ErrStoreUnavailable
	}
	return nil
}

// GetToken returns the refresh token record with its current state.
func (s *Store) GetToken(ctx context.Context, tenantID, tokenID string) (*model.RefreshToken, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	recordJSON, err := s.client.Get(ctx, recordKey(tenantID, tokenID)).Result()
	if err == redis.Nil {
		return nil, core_errors.ErrTokenNotFound
	} else if err != nil {
		return nil, core_errors.ErrStoreUnavailable
	}

	var tok model.RefreshToken
	if err := json.Unmarshal([]byte(recordJSON), &tok); err != nil {
		return nil, err
	}

	// The state facet is the one the rotation CAS operates on; it wins over
	// whatever the record carries.
	state, err := s.client.Get(ctx, stateKey(tenantID, tokenID)).Result()
	if err == nil {
		tok.State = model.TokenState(state)
	} else if err != redis.Nil {
		return nil, core_errors.ErrStoreUnavailable
	}

	return &tok, nil
}

// GetFamily returns the token family record.
func (s *Store) GetFamily(ctx context.Context, tenantID, familyID string) (*model.TokenFamily, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	familyJSON, err := s.client.Get(ctx, familyKey(tenantID, familyID)).Result()
	if err == redis.Nil {
		return nil, core_errors.ErrFamilyNotFound
	} else if err != nil {
		return nil, core_errors.ErrStoreUnavailable
	}

	var family model.TokenFamily
	if err := json.Unmarshal([]byte(familyJSON), &family); err != nil {
		return nil, err
	}
	return &family, nil
}

// RotateToken atomically transitions presented ACTIVE -> ROTATED and
// installs next as the family's new ACTIVE token. Returns false when the
// conditional write lost: the presented token was no longer ACTIVE.
func (s *Store) RotateToken(ctx context.Context, presented *model.RefreshToken, next *model.RefreshToken, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	rotated := *presented
	rotated.State = model.TokenRotated
	rotatedJSON, err := json.Marshal(&rotated)
	if err != nil {
		return false, err
	}
	nextJSON, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	remaining := int(time.Until(presented.ExpiresAt).Seconds())
	if remaining < 1 {
		remaining = 1
	}
	nextTTL := int(ttl.Seconds())
	if nextTTL < 1 {
		nextTTL = 1
	}

	keys := []string{
		stateKey(presented.TenantID, presented.TokenID),
		recordKey(presented.TenantID, presented.TokenID),
		stateKey(next.TenantID, next.TokenID),
		recordKey(next.TenantID, next.TokenID),
		membersKey(next.TenantID, next.FamilyID),
	}
	args := []interface{}{
		string(model.TokenActive),
		string(model.TokenRotated),
		remaining,
		string(rotatedJSON),
		string(model.TokenActive),
		nextTTL,
		string(nextJSON),
		next.TokenID,
	}

	won, err := rotateScript.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return false, core_errors.ErrStoreUnavailable
	}
	return won == 1, nil
}

// CompromiseFamily marks the family COMPROMISED and revokes every member
// token. Invoked on reuse detection and on explicit revocation.
func (s *Store) CompromiseFamily(ctx context.Context, tenantID, familyID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	family, err := s.GetFamily(ctx, tenantID, familyID)
	if err != nil {
		return err
	}
	family.State = model.FamilyCompromised
	familyJSON, err := json.Marshal(family)
	if err != nil {
		return err
	}

	remaining, err := s.client.TTL(ctx, familyKey(tenantID, familyID)).Result()
	if err != nil {
		return core_errors.ErrStoreUnavailable
	}
	if remaining < time.Second {
		remaining = time.Second
	}

	members, err := s.client.SMembers(ctx, membersKey(tenantID, familyID)).Result()
	if err != nil {
		return core_errors.ErrStoreUnavailable
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, familyKey(tenantID, familyID), familyJSON, remaining)
	for _, tokenID := range members {
		pipe.Set(ctx, stateKey(tenantID, tokenID), string(model.TokenRevoked), remaining)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Error("Failed to compromise token family", zap.Error(err), zap.String("familyID", familyID))
		return core_errors.ErrStoreUnavailable
	}

	logger.Warn("Token family compromised, all members revoked",
		zap.String("familyID", familyID),
		zap.String("tenantID", tenantID),
		zap.Int("members", len(members)))
	return nil
}

// DestroyFamily removes the family and every member token. Used on logout,
// where there is nothing to keep for forensics.
func (s *Store) DestroyFamily(ctx context.Context, tenantID, familyID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	members, err := s.client.SMembers(ctx, membersKey(tenantID, familyID)).Result()
	if err != nil && err != redis.Nil {
		return core_errors.ErrStoreUnavailable
	}

	keys := []string{familyKey(tenantID, familyID), membersKey(tenantID, familyID)}
	for _, tokenID := range members {
		keys = append(keys, stateKey(tenantID, tokenID), recordKey(tenantID, tokenID))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return core_errors.ErrStoreUnavailable
	}
	return nil
}
