package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/store"
)

// SessionConfig controls the cookies issued by the REST handlers.
type SessionConfig struct {
	CookieName string
	Secret     string
	TTL        time.Duration
	Secure     bool
}

// Handlers serves register, login, logout and current-user endpoints.
type Handlers struct {
	users    store.UserStore
	sessions store.SessionStore
	resolver *Resolver
	cfg      SessionConfig
	log      *zap.Logger
	now      func() time.Time
}

// NewHandlers constructs the REST auth handlers.
func NewHandlers(users store.UserStore, sessions store.SessionStore, cfg SessionConfig, log *zap.Logger) *Handlers {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		users:    users,
		sessions: sessions,
		resolver: NewResolver(sessions, users, ResolverConfig{CookieName: cfg.CookieName, Secret: cfg.Secret}, log),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func readCredentials(r *http.Request) (credentials, bool) {
	var c credentials
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		return credentials{}, false
	}
	c.Username = strings.TrimSpace(c.Username)
	return c, c.Username != "" && c.Password != ""
}

// Register creates a user and logs it in.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, messageBody{"Username and password are required"})
		return
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		h.log.Error("registration failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
		return
	}

	rec, err := h.users.CreateUser(r.Context(), creds.Username, hash)
	if errors.Is(err, store.ErrUsernameTaken) {
		writeJSON(w, http.StatusBadRequest, messageBody{"Username already exists"})
		return
	}
	if err != nil {
		h.log.Error("registration failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
		return
	}

	if err := h.startSession(w, r, rec.ID); err != nil {
		h.log.Error("auto-login after registration failed", zap.Error(err), zap.Int64("user_id", rec.ID))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
		return
	}

	h.log.Info("user registered", zap.Int64("user_id", rec.ID))
	writeJSON(w, http.StatusCreated, rec.Identity())
}

// Login checks credentials and issues a session cookie.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	creds, ok := readCredentials(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, messageBody{"Username and password are required"})
		return
	}

	rec, err := h.users.GetByUsername(r.Context(), creds.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error("login lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
		return
	}
	if err != nil || !CheckPassword(rec.PasswordHash, creds.Password) {
		writeJSON(w, http.StatusUnauthorized, messageBody{"Invalid username or password"})
		return
	}

	if err := h.startSession(w, r, rec.ID); err != nil {
		h.log.Error("session creation failed", zap.Error(err), zap.Int64("user_id", rec.ID))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
		return
	}

	h.log.Info("login successful", zap.Int64("user_id", rec.ID))
	writeJSON(w, http.StatusOK, rec.Identity())
}

// GuestUsername is the seeded account used by GuestLogin.
const GuestUsername = "guest"

// GuestLogin starts a session for the shared guest account without a password.
func (h *Handlers) GuestLogin(w http.ResponseWriter, r *http.Request) {
	rec, err := h.users.GetByUsername(r.Context(), GuestUsername)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.log.Warn("guest login requested but guest account is missing")
		} else {
			h.log.Error("guest lookup failed", zap.Error(err))
		}
		writeJSON(w, http.StatusInternalServerError, messageBody{"Guest login unavailable"})
		return
	}

	if err := h.startSession(w, r, rec.ID); err != nil {
		h.log.Error("session creation failed", zap.Error(err), zap.Int64("user_id", rec.ID))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Guest login unavailable"})
		return
	}

	h.log.Info("guest login successful", zap.Int64("user_id", rec.ID))
	writeJSON(w, http.StatusOK, rec.Identity())
}

// Logout destroys the current session, if any, and clears the cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if id, ok := SessionIDFromCookie(r.Header.Get("Cookie"), h.cfg.CookieName, h.cfg.Secret); ok {
		if err := h.sessions.Destroy(r.Context(), id); err != nil {
			h.log.Error("logout failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)
}

// CurrentUser returns the user behind the session cookie.
func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.resolver.Resolve(r.Context(), r.Header.Get("Cookie"))
	if errors.Is(err, ErrUnauthenticated) {
		writeJSON(w, http.StatusUnauthorized, messageBody{"Not authenticated"})
		return
	}
	if err != nil {
		h.log.Error("current user lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageBody{"Internal Server Error"})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, userID int64) error {
	id := uuid.NewString()
	sess := store.NewSession(userID, h.cfg.TTL, h.now())
	if err := h.sessions.Set(r.Context(), id, sess, h.cfg.TTL); err != nil {
		return errors.Wrap(err, "store session")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    EncodeCookieValue(id, h.cfg.Secret),
		Path:     "/",
		MaxAge:   int(h.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// DevAccount is a username/password pair created by SeedUsers.
type DevAccount struct {
	Username string
	Password string
}

// DefaultDevAccounts are the accounts available in development.
var DefaultDevAccounts = []DevAccount{
	{Username: GuestUsername, Password: "welcome123"},
	{Username: "test@example.com", Password: "test123"},
}

// SeedUsers creates the given accounts when they are missing.
func SeedUsers(ctx context.Context, users store.UserStore, accounts []DevAccount, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	for _, acct := range accounts {
		if _, err := users.GetByUsername(ctx, acct.Username); err == nil {
			continue
		} else if !errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(err, "look up %s", acct.Username)
		}

		hash, err := HashPassword(acct.Password)
		if err != nil {
			return err
		}
		rec, err := users.CreateUser(ctx, acct.Username, hash)
		if err != nil && !errors.Is(err, store.ErrUsernameTaken) {
			return errors.Wrapf(err, "create %s", acct.Username)
		}
		log.Info("seeded user", zap.String("username", acct.Username), zap.Int64("user_id", rec.ID))
	}
	return nil
}
