package auth

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/store"
)

// ErrUnauthenticated marks a handshake that carries no valid session.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Decision is the outcome of verifying a handshake before the upgrade.
type Decision struct {
	Accept bool
	Status int
	Reason string
	User   store.User
}

func accept(user store.User) Decision {
	return Decision{Accept: true, Status: http.StatusSwitchingProtocols, User: user}
}

func reject(status int, reason string) Decision {
	return Decision{Status: status, Reason: reason}
}

// Resolver maps a Cookie header to a user via the session and user stores.
type Resolver struct {
	sessions   store.SessionStore
	users      store.UserStore
	cookieName string
	secret     string
	log        *zap.Logger
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	CookieName string
	Secret     string
}

// NewResolver constructs a Resolver.
func NewResolver(sessions store.SessionStore, users store.UserStore, cfg ResolverConfig, log *zap.Logger) *Resolver {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		sessions:   sessions,
		users:      users,
		cookieName: cfg.CookieName,
		secret:     cfg.Secret,
		log:        log,
	}
}

// Resolve returns the user behind rawCookieHeader. The error is
// ErrUnauthenticated when there is no usable session, or a wrapped store
// error when a lookup failed.
func (r *Resolver) Resolve(ctx context.Context, rawCookieHeader string) (store.User, error) {
	sessionID, ok := SessionIDFromCookie(rawCookieHeader, r.cookieName, r.secret)
	if !ok {
		return store.User{}, errors.Wrap(ErrUnauthenticated, "no session id")
	}

	sess, err := r.sessions.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess == nil) {
		return store.User{}, errors.Wrap(ErrUnauthenticated, "invalid session")
	}
	if err != nil {
		return store.User{}, errors.Wrap(err, "load session")
	}

	userID, ok := sess.UserID()
	if !ok {
		return store.User{}, errors.Wrap(ErrUnauthenticated, "no user in session")
	}

	rec, err := r.users.GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.User{}, errors.Wrap(ErrUnauthenticated, "user not found")
	}
	if err != nil {
		return store.User{}, errors.Wrap(err, "load user")
	}
	return rec.Identity(), nil
}

// Verify decides whether the upgrade request may proceed. It must be called
// before the WebSocket handshake is answered.
func (r *Resolver) Verify(req *http.Request) Decision {
	user, err := r.Resolve(req.Context(), req.Header.Get("Cookie"))
	switch {
	case err == nil:
		r.log.Debug("websocket client authenticated", zap.Int64("user_id", user.ID))
		return accept(user)
	case errors.Is(err, ErrUnauthenticated):
		r.log.Info("websocket connection rejected", zap.String("reason", err.Error()), zap.String("remote", req.RemoteAddr))
		return reject(http.StatusUnauthorized, "Unauthorized")
	default:
		r.log.Error("websocket authentication error", zap.Error(err), zap.String("remote", req.RemoteAddr))
		return reject(http.StatusInternalServerError, "Internal Server Error")
	}
}
