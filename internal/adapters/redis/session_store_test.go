package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/aad-connect/internal/domain/auth"
	apperrors "github.com/target/aad-connect/internal/errors"
	"github.com/target/aad-connect/internal/testutil"
)

func newSession(id string, ttl time.Duration) domainauth.Session {
	return domainauth.Session{
		ID:          id,
		UserID:      "user-123",
		Username:    "jdoe",
		Email:       "jdoe@school.edu",
		DisplayName: "Jane Doe",
		Provider:    domainauth.ProviderKey,
		Roles:       []string{"editor"},
		ExpiresAt:   time.Now().Add(ttl),
	}
}

func TestSessionStore_SaveAndGet(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	session := newSession("test-session-1", 30*time.Minute)
	require.NoError(t, store.Save(ctx, session))

	retrieved, err := store.Get(ctx, "test-session-1")
	require.NoError(t, err)
	assert.Equal(t, session.UserID, retrieved.UserID)
	assert.Equal(t, session.Roles, retrieved.Roles)
	assert.Equal(t, domainauth.ProviderKey, retrieved.Provider)
	assert.WithinDuration(t, session.ExpiresAt, retrieved.ExpiresAt, time.Second)

	ttl := mr.TTL("session:test-session-1")
	assert.InDelta(t, (30 * time.Minute).Seconds(), ttl.Seconds(), 2)
}

func TestSessionStore_GetMissing(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)

	_, err := store.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, apperrors.IsNotFound(err))

	_, err = store.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_SaveRejectsInvalid(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)

	assert.True(t, apperrors.IsValidation(store.Save(context.Background(), newSession("", time.Hour))))
	assert.True(t, apperrors.IsValidation(store.Save(context.Background(), newSession("old", -time.Minute))))
}

func TestSessionStore_ExpiredSessionIsDeleted(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("s-1", time.Minute)))
	store.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	_, err := store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("session:s-1"))
}

func TestSessionStore_TTLExpiry(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("s-2", time.Minute)))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "s-2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	_, client := testutil.SetupTestRedis(t)
	store := NewSessionStoreWithPrefix(client, "custom:")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("s-3", time.Hour)))
	require.NoError(t, store.Delete(ctx, "s-3"))
	require.NoError(t, store.Delete(ctx, "s-3"))
	require.NoError(t, store.Delete(ctx, ""))

	_, err := store.Get(ctx, "s-3")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionStore_RedisDown(t *testing.T) {
	mr, client := testutil.SetupTestRedis(t)
	store := NewSessionStore(client)
	mr.SetError("ERR injected failure")

	_, err := store.Get(context.Background(), "s")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
