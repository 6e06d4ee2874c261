package store

import (
	"context"
	"time"
)

// Session is a stored HTTP session. The JSON layout matches what
// express-session style stores persist, so sessions written by other
// services sharing the same Redis can be read.
type Session struct {
	Cookie   SessionCookie `json:"cookie"`
	Passport *Passport     `json:"passport,omitempty"`
}

// SessionCookie holds cookie metadata recorded alongside the session.
type SessionCookie struct {
	OriginalMaxAge int64      `json:"originalMaxAge"`
	Expires        *time.Time `json:"expires,omitempty"`
	HTTPOnly       bool       `json:"httpOnly"`
	Path           string     `json:"path"`
}

// Passport carries the authenticated user reference.
type Passport struct {
	User *int64 `json:"user,omitempty"`
}

// NewSession builds a session for userID that expires after ttl.
func NewSession(userID int64, ttl time.Duration, now time.Time) *Session {
	expires := now.Add(ttl).UTC()
	id := userID
	return &Session{
		Cookie: SessionCookie{
			OriginalMaxAge: ttl.Milliseconds(),
			Expires:        &expires,
			HTTPOnly:       true,
			Path:           "/",
		},
		Passport: &Passport{User: &id},
	}
}

// UserID returns the authenticated user reference, if any.
func (s *Session) UserID() (int64, bool) {
	if s == nil || s.Passport == nil || s.Passport.User == nil {
		return 0, false
	}
	return *s.Passport.User, true
}

// Expired reports whether the session cookie expiry is before now.
func (s *Session) Expired(now time.Time) bool {
	return s.Cookie.Expires != nil && !now.Before(*s.Cookie.Expires)
}

// SessionStore persists sessions by id.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, sess *Session, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}
