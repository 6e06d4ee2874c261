package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserStore()

	alice, err := users.CreateUser(ctx, "alice", "hash-a")
	require.NoError(t, err)
	bob, err := users.CreateUser(ctx, "bob", "hash-b")
	require.NoError(t, err)

	assert.Equal(t, int64(1), alice.ID)
	assert.Equal(t, int64(2), bob.ID)

	got, err := users.GetByID(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, User{ID: 2, Username: "bob"}, got.Identity())

	got, err = users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "hash-a", got.PasswordHash)
}

func TestMemoryUserStoreErrors(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserStore()

	_, err := users.GetByID(ctx, 42)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = users.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = users.CreateUser(ctx, "carol", "h")
	require.NoError(t, err)
	_, err = users.CreateUser(ctx, "carol", "h2")
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = users.CreateUser(ctx, "  ", "h")
	assert.Error(t, err)
	_, err = users.CreateUser(ctx, "dave", "")
	assert.Error(t, err)
}

func TestMemoryUserStoreDelete(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserStore()

	rec, err := users.CreateUser(ctx, "erin", "h")
	require.NoError(t, err)

	users.Delete(rec.ID)
	_, err = users.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	require.NoError(t, sessions.Set(ctx, "sid", NewSession(7, time.Hour, now), time.Hour))

	sess, err := sessions.Get(ctx, "sid")
	require.NoError(t, err)
	id, ok := sess.UserID()
	assert.True(t, ok)
	assert.Equal(t, int64(7), id)

	require.NoError(t, sessions.Destroy(ctx, "sid"))
	_, err = sessions.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessionStore()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	require.NoError(t, sessions.Set(ctx, "short", NewSession(1, time.Minute, now), time.Minute))
	require.NoError(t, sessions.Set(ctx, "long", NewSession(2, time.Hour, now), time.Hour))
	require.NoError(t, sessions.Set(ctx, "forever", &Session{}, 0))

	now = now.Add(2 * time.Minute)

	_, err := sessions.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)

	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, sessions.Sweep())

	_, err = sessions.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemorySessionStoreRejectsInvalidInput(t *testing.T) {
	sessions := NewMemorySessionStore()
	assert.Error(t, sessions.Set(context.Background(), "", &Session{}, 0))
	assert.Error(t, sessions.Set(context.Background(), "sid", nil, 0))
}

func TestSessionUserID(t *testing.T) {
	var nilSession *Session
	_, ok := nilSession.UserID()
	assert.False(t, ok)

	_, ok = (&Session{}).UserID()
	assert.False(t, ok)

	_, ok = (&Session{Passport: &Passport{}}).UserID()
	assert.False(t, ok)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	sess := NewSession(1, time.Minute, now)
	assert.False(t, sess.Expired(now))
	assert.True(t, sess.Expired(now.Add(time.Minute)))
	assert.False(t, (&Session{}).Expired(now))
}
