package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// MemoryUserStore keeps users in process memory. Ids are assigned sequentially
// starting at 1.
type MemoryUserStore struct {
	mu     sync.RWMutex
	users  map[int64]UserRecord
	nextID int64
}

// NewMemoryUserStore returns an empty user store.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:  make(map[int64]UserRecord),
		nextID: 1,
	}
}

// GetByID returns the user with the given id or ErrNotFound.
func (s *MemoryUserStore) GetByID(_ context.Context, id int64) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return UserRecord{}, ErrNotFound
	}
	return rec, nil
}

// GetByUsername returns the user with the given username or ErrNotFound.
func (s *MemoryUserStore) GetByUsername(_ context.Context, username string) (UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.users {
		if rec.Username == username {
			return rec, nil
		}
	}
	return UserRecord{}, ErrNotFound
}

// CreateUser stores a new user. Usernames are unique.
func (s *MemoryUserStore) CreateUser(_ context.Context, username, passwordHash string) (UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return UserRecord{}, errors.New("store: username is required")
	}
	if passwordHash == "" {
		return UserRecord{}, errors.New("store: password is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.users {
		if rec.Username == username {
			return UserRecord{}, ErrUsernameTaken
		}
	}

	rec := UserRecord{ID: s.nextID, Username: username, PasswordHash: passwordHash}
	s.users[rec.ID] = rec
	s.nextID++
	return rec, nil
}

// Delete removes a user. Deleting an unknown id is a no-op.
func (s *MemoryUserStore) Delete(id int64) {
	s.mu.Lock()
	delete(s.users, id)
	s.mu.Unlock()
}

type memorySession struct {
	sess     Session
	deadline time.Time
}

// MemorySessionStore keeps sessions in process memory with per-entry expiry.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

// NewMemorySessionStore returns an empty session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// Get returns a copy of the session or ErrNotFound when it is absent or expired.
func (s *MemorySessionStore) Get(_ context.Context, id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if !entry.deadline.IsZero() && !now.Before(entry.deadline) {
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	sess := entry.sess
	return &sess, nil
}

// Set stores a copy of sess. A non-positive ttl stores the session without expiry.
func (s *MemorySessionStore) Set(_ context.Context, id string, sess *Session, ttl time.Duration) error {
	if id == "" {
		return errors.New("store: empty session id")
	}
	if sess == nil {
		return errors.New("store: nil session")
	}

	entry := memorySession{sess: *sess}
	if ttl > 0 {
		entry.deadline = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.sessions[id] = entry
	s.mu.Unlock()
	return nil
}

// Destroy removes the session.
func (s *MemorySessionStore) Destroy(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Sweep drops expired sessions and returns how many were removed.
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, entry := range s.sessions {
		if !entry.deadline.IsZero() && !now.Before(entry.deadline) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemorySessionStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
