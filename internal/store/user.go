// Package store defines the user and session records shared by the HTTP and
// WebSocket layers, together with in-memory, Redis and Postgres backends.
package store

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrUsernameTaken is returned by CreateUser when the username is already registered.
var ErrUsernameTaken = errors.New("store: username already exists")

// User is the minimal identity projection used for presence and message
// attribution. It never carries credentials.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// UserRecord is a stored user including its password hash.
type UserRecord struct {
	ID           int64
	Username     string
	PasswordHash string
}

// Identity returns the public projection of the record.
func (r UserRecord) Identity() User {
	return User{ID: r.ID, Username: r.Username}
}

// UserStore looks up and creates users.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (UserRecord, error)
	GetByUsername(ctx context.Context, username string) (UserRecord, error)
	CreateUser(ctx context.Context, username, passwordHash string) (UserRecord, error)
}
