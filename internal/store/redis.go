package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionPrefix is the key prefix used by connect-redis compatible stores.
const DefaultSessionPrefix = "sess:"

// RedisConfig holds connection settings for the Redis session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// RedisSessionStore stores sessions as JSON strings with a key TTL.
type RedisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore dials Redis and verifies the connection with PING.
func NewRedisSessionStore(ctx context.Context, cfg RedisConfig) (*RedisSessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis at %s", cfg.Addr)
	}
	return NewRedisSessionStoreFromClient(client, cfg.Prefix), nil
}

// NewRedisSessionStoreFromClient wraps an existing client.
func NewRedisSessionStoreFromClient(client *redis.Client, prefix string) *RedisSessionStore {
	if prefix == "" {
		prefix = DefaultSessionPrefix
	}
	return &RedisSessionStore{client: client, prefix: prefix}
}

func (s *RedisSessionStore) key(id string) string {
	return s.prefix + id
}

// Get loads the session or returns ErrNotFound when the key is missing.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get session")
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, errors.Wrap(err, "decode session")
	}
	return &sess, nil
}

// Set writes the session with the given TTL. A non-positive ttl keeps the key forever.
func (s *RedisSessionStore) Set(ctx context.Context, id string, sess *Session, ttl time.Duration) error {
	if sess == nil {
		return errors.New("store: nil session")
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(id), raw, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set session")
	}
	return nil
}

// Destroy deletes the session key.
func (s *RedisSessionStore) Destroy(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return errors.Wrap(err, "redis delete session")
	}
	return nil
}

// Close releases the underlying client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
