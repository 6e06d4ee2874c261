package store

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id       SERIAL PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	password TEXT NOT NULL
)`

// PostgresUserStore reads and writes the users table through a pgx pool.
type PostgresUserStore struct {
	pool *pgxpool.Pool
}

// NewPostgresUserStore connects to databaseURL and ensures the users table exists.
func NewPostgresUserStore(ctx context.Context, databaseURL string) (*PostgresUserStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if _, err := pool.Exec(ctx, createUsersTable); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "create users table")
	}
	return &PostgresUserStore{pool: pool}, nil
}

// GetByID returns the user with the given id or ErrNotFound.
func (s *PostgresUserStore) GetByID(ctx context.Context, id int64) (UserRecord, error) {
	return s.queryOne(ctx, `SELECT id, username, password FROM users WHERE id = $1`, id)
}

// GetByUsername returns the user with the given username or ErrNotFound.
func (s *PostgresUserStore) GetByUsername(ctx context.Context, username string) (UserRecord, error) {
	return s.queryOne(ctx, `SELECT id, username, password FROM users WHERE username = $1`, username)
}

// CreateUser inserts a user and returns it with its assigned id.
func (s *PostgresUserStore) CreateUser(ctx context.Context, username, passwordHash string) (UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" || passwordHash == "" {
		return UserRecord{}, errors.New("store: username and password are required")
	}

	rec := UserRecord{Username: username, PasswordHash: passwordHash}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, password) VALUES ($1, $2) RETURNING id`,
		username, passwordHash,
	).Scan(&rec.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return UserRecord{}, ErrUsernameTaken
		}
		return UserRecord{}, errors.Wrap(err, "insert user")
	}
	return rec, nil
}

// Close releases the pool.
func (s *PostgresUserStore) Close() {
	s.pool.Close()
}

func (s *PostgresUserStore) queryOne(ctx context.Context, query string, arg any) (UserRecord, error) {
	var rec UserRecord
	err := s.pool.QueryRow(ctx, query, arg).Scan(&rec.ID, &rec.Username, &rec.PasswordHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	if err != nil {
		return UserRecord{}, errors.Wrap(err, "query user")
	}
	return rec, nil
}
