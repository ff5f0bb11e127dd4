// token/store_test.go
package token

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core_errors "github.com/dealflowhq/dealflow/core/errors"
	logger "github.com/dealflowhq/dealflow/core/logging"
	"github.com/dealflowhq/dealflow/core/model"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "token-test-logs")
	if err != nil {
		panic(err)
	}
	logger.InitLogger(dir)
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client), mr
}

func seedFamily(t *testing.T, store *Store, tenantID string) (*model.TokenFamily, *model.RefreshToken) {
	t.Helper()
	now := time.Now().UTC()
	family := &model.TokenFamily{
		FamilyID:  uuid.New().String(),
		UserID:    "u1",
		TenantID:  tenantID,
		SessionID: uuid.New().String(),
		State:     model.FamilyActive,
		CreatedAt: now,
	}
	first := &model.RefreshToken{
		TokenID:   uuid.New().String(),
		FamilyID:  family.FamilyID,
		UserID:    "u1",
		TenantID:  tenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		State:     model.TokenActive,
	}
	require.NoError(t, store.CreateFamily(context.Background(), family, first, time.Hour))
	return family, first
}

func nextToken(first *model.RefreshToken) *model.RefreshToken {
	now := time.Now().UTC()
	return &model.RefreshToken{
		TokenID:   uuid.New().String(),
		FamilyID:  first.FamilyID,
		UserID:    first.UserID,
		TenantID:  first.TenantID,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
		State:     model.TokenActive,
	}
}

func TestCreateAndGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	family, first := seedFamily(t, store, "t1")

	tok, err := store.GetToken(ctx, "t1", first.TokenID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenActive, tok.State)
	assert.Equal(t, family.FamilyID, tok.FamilyID)

	got, err := store.GetFamily(ctx, "t1", family.FamilyID)
	require.NoError(t, err)
	assert.Equal(t, model.FamilyActive, got.State)
	assert.Equal(t, family.SessionID, got.SessionID)
}

func TestGetTokenNotFound(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetToken(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, core_errors.ErrTokenNotFound)

	_, err = store.GetFamily(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, core_errors.ErrFamilyNotFound)
}

func TestTokensAreTenantScoped(t *testing.T) {
	store, _ := newTestStore(t)
	_, first := seedFamily(t, store, "t1")

	_, err := store.GetToken(context.Background(), "t2", first.TokenID)
	assert.ErrorIs(t, err, core_errors.ErrTokenNotFound,
		"a token id never resolves under another tenant")
}

func TestRotateToken(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, first := seedFamily(t, store, "t1")
	next := nextToken(first)

	won, err := store.RotateToken(ctx, first, next, time.Hour)
	require.NoError(t, err)
	assert.True(t, won)

	rotated, err := store.GetToken(ctx, "t1", first.TokenID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenRotated, rotated.State)

	installed, err := store.GetToken(ctx, "t1", next.TokenID)
	require.NoError(t, err)
	assert.Equal(t, model.TokenActive, installed.State)
}

func TestRotateTokenExactlyOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, first := seedFamily(t, store, "t1")

	won, err := store.RotateToken(ctx, first, nextToken(first), time.Hour)
	require.NoError(t, err)
	require.True(t, won)

	// A second rotation with the same presented token must lose the
	// conditional write.
	won, err = store.RotateToken(ctx, first, nextToken(first), time.Hour)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestRotateTokenConcurrent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	_, first := seedFamily(t, store, "t1")

	const racers = 10
	wins := make(chan bool, racers)
	for i := 0; i < racers; i++ {
		go func() {
			won, err := store.RotateToken(ctx, first, nextToken(first), time.Hour)
			assert.NoError(t, err)
			wins <- won
		}()
	}

	winners := 0
	for i := 0; i < racers; i++ {
		if <-wins {
			winners++
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent rotation wins")
}

func TestCompromiseFamily(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	family, first := seedFamily(t, store, "t1")

	next := nextToken(first)
	won, err := store.RotateToken(ctx, first, next, time.Hour)
	require.NoError(t, err)
	require.True(t, won)

	require.NoError(t, store.CompromiseFamily(ctx, "t1", family.FamilyID))

	got, err := store.GetFamily(ctx, "t1", family.FamilyID)
	require.NoError(t, err)
	assert.Equal(t, model.FamilyCompromised, got.State)

	// Every member is revoked, including the freshly installed one.
	for _, tokenID := range []string{first.TokenID, next.TokenID} {
		tok, err := store.GetToken(ctx, "t1", tokenID)
		require.NoError(t, err)
		assert.Equal(t, model.TokenRevoked, tok.State)
	}
}

func TestDestroyFamily(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	family, first := seedFamily(t, store, "t1")

	require.NoError(t, store.DestroyFamily(ctx, "t1", family.FamilyID))

	_, err := store.GetToken(ctx, "t1", first.TokenID)
	assert.ErrorIs(t, err, core_errors.ErrTokenNotFound)
	_, err = store.GetFamily(ctx, "t1", family.FamilyID)
	assert.ErrorIs(t, err, core_errors.ErrFamilyNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	session := &model.Session{
		SessionID:      uuid.New().String(),
		UserID:         "u1",
		TenantID:       "t1",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}
	require.NoError(t, store.CreateSession(ctx, session))

	got, err := store.GetSession(ctx, "t1", session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	require.NoError(t, store.DeleteSession(ctx, "t1", session.SessionID))
	_, err = store.GetSession(ctx, "t1", session.SessionID)
	assert.ErrorIs(t, err, core_errors.ErrSessionNotFound)
}

func TestTouchSessionSlidesWindow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	session := &model.Session{
		SessionID:      uuid.New().String(),
		UserID:         "u1",
		TenantID:       "t1",
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Minute),
	}
	require.NoError(t, store.CreateSession(ctx, session))

	touched, err := store.TouchSession(ctx, "t1", session.SessionID, 9*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, touched.ExpiresAt.After(session.ExpiresAt),
		"activity pushes the expiry out")
	assert.WithinDuration(t, time.Now().UTC().Add(9*time.Hour), touched.ExpiresAt, time.Minute)
}

func TestTouchSessionHonorsMaxLifetime(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Created twenty hours ago: the sliding window would land past the
	// absolute cap, so the cap wins.
	session := &model.Session{
		SessionID:      uuid.New().String(),
		UserID:         "u1",
		TenantID:       "t1",
		CreatedAt:      now.Add(-20 * time.Hour),
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Hour),
	}
	require.NoError(t, store.CreateSession(ctx, session))

	touched, err := store.TouchSession(ctx, "t1", session.SessionID, 9*time.Hour, 24*time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, session.CreatedAt.Add(24*time.Hour), touched.ExpiresAt, time.Second)
}

func TestTouchSessionPastMaxLifetime(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	session := &model.Session{
		SessionID:      uuid.New().String(),
		UserID:         "u1",
		TenantID:       "t1",
		CreatedAt:      now.Add(-25 * time.Hour),
		LastActivityAt: now,
		ExpiresAt:      now.Add(time.Minute),
	}
	require.NoError(t, store.CreateSession(ctx, session))

	_, err := store.TouchSession(ctx, "t1", session.SessionID, 9*time.Hour, 24*time.Hour)
	assert.ErrorIs(t, err, core_errors.ErrSessionExpired)
}
