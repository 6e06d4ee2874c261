package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/wanderchat/internal/store"
)

type failingSessions struct{}

func (failingSessions) Get(context.Context, string) (*store.Session, error) {
	return nil, errors.New("connection refused")
}

func (failingSessions) Set(context.Context, string, *store.Session, time.Duration) error {
	return errors.New("connection refused")
}

func (failingSessions) Destroy(context.Context, string) error {
	return errors.New("connection refused")
}

type failingUsers struct{ store.UserStore }

func (failingUsers) GetByID(context.Context, int64) (store.UserRecord, error) {
	return store.UserRecord{}, errors.New("database down")
}

type resolverFixture struct {
	users    *store.MemoryUserStore
	sessions *store.MemorySessionStore
	resolver *Resolver
	alice    store.UserRecord
}

func newResolverFixture(t *testing.T) resolverFixture {
	t.Helper()
	ctx := context.Background()
	users := store.NewMemoryUserStore()
	sessions := store.NewMemorySessionStore()

	alice, err := users.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	require.NoError(t, sessions.Set(ctx, "good", store.NewSession(alice.ID, time.Hour, time.Now()), time.Hour))
	require.NoError(t, sessions.Set(ctx, "anonymous", &store.Session{}, time.Hour))
	require.NoError(t, sessions.Set(ctx, "orphan", store.NewSession(999, time.Hour, time.Now()), time.Hour))

	return resolverFixture{
		users:    users,
		sessions: sessions,
		resolver: NewResolver(sessions, users, ResolverConfig{}, nil),
		alice:    alice,
	}
}

func TestResolveValidSession(t *testing.T) {
	f := newResolverFixture(t)

	user, err := f.resolver.Resolve(context.Background(), "theme=dark; travel.sid=good")
	require.NoError(t, err)
	assert.Equal(t, store.User{ID: f.alice.ID, Username: "alice"}, user)
}

func TestResolveUnauthenticated(t *testing.T) {
	f := newResolverFixture(t)

	for _, header := range []string{
		"",
		"garbage;;;",
		"other=1",
		"travel.sid=missing",
		"travel.sid=anonymous",
		"travel.sid=orphan",
	} {
		_, err := f.resolver.Resolve(context.Background(), header)
		assert.ErrorIs(t, err, ErrUnauthenticated, "header %q", header)
	}
}

func TestResolveStoreErrors(t *testing.T) {
	f := newResolverFixture(t)

	r := NewResolver(failingSessions{}, f.users, ResolverConfig{}, nil)
	_, err := r.Resolve(context.Background(), "travel.sid=good")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)

	r = NewResolver(f.sessions, failingUsers{f.users}, ResolverConfig{}, nil)
	_, err = r.Resolve(context.Background(), "travel.sid=good")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveSignedCookie(t *testing.T) {
	f := newResolverFixture(t)
	r := NewResolver(f.sessions, f.users, ResolverConfig{CookieName: "sid", Secret: "s3cret"}, nil)

	user, err := r.Resolve(context.Background(), "sid="+EncodeCookieValue("good", "s3cret"))
	require.NoError(t, err)
	assert.Equal(t, f.alice.ID, user.ID)

	_, err = r.Resolve(context.Background(), "sid=good")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestVerifyDecisions(t *testing.T) {
	f := newResolverFixture(t)

	tests := []struct {
		name     string
		resolver *Resolver
		cookie   string
		accept   bool
		status   int
	}{
		{name: "accepted", resolver: f.resolver, cookie: "travel.sid=good", accept: true, status: http.StatusSwitchingProtocols},
		{name: "no cookie", resolver: f.resolver, status: http.StatusUnauthorized},
		{name: "unknown session", resolver: f.resolver, cookie: "travel.sid=nope", status: http.StatusUnauthorized},
		{name: "store failure", resolver: NewResolver(failingSessions{}, f.users, ResolverConfig{}, nil), cookie: "travel.sid=good", status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/websocket", nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", tt.cookie)
			}
			d := tt.resolver.Verify(req)
			assert.Equal(t, tt.accept, d.Accept)
			assert.Equal(t, tt.status, d.Status)
			if tt.accept {
				assert.Equal(t, "alice", d.User.Username)
			} else {
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}
