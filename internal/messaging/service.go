// Package messaging implements the session-authenticated WebSocket surface:
// a registry holding one connection per user, presence broadcasts, and
// direct-message routing between connected users.
package messaging

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/metrics"
	"github.com/Tyrowin/wanderchat/internal/store"
)

// Peer is the outbound side of a live socket.
type Peer interface {
	Send(payload []byte) bool
	Close()
	IsOpen() bool
}

// Connection pairs an authenticated user with its socket.
type Connection struct {
	User store.User
	Peer Peer
}

// Service owns the connection registry. All mutations and broadcasts are
// serialized by mu, so presence snapshots and deliveries observe a single
// order of admits and evictions.
type Service struct {
	mu      sync.Mutex
	conns   map[int64]Connection
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService returns an empty service.
func NewService(log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		conns:   make(map[int64]Connection),
		log:     log,
		metrics: m,
		now:     time.Now,
	}
}

// Admit registers p as the live connection for user. An existing connection
// for the same user is closed first. A peer that is already closed is not
// registered and Admit returns false.
func (s *Service) Admit(user store.User, p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !p.IsOpen() {
		s.log.Info("skipping admission of closed connection", zap.Int64("user_id", user.ID))
		return false
	}

	if existing, ok := s.conns[user.ID]; ok && existing.Peer != p {
		s.log.Info("closing existing connection for user", zap.Int64("user_id", user.ID))
		existing.Peer.Close()
	} else if !ok {
		s.metrics.ConnectionOpened(metrics.SurfaceMessaging)
	}

	s.conns[user.ID] = Connection{User: user, Peer: p}
	s.broadcastPresenceLocked()
	s.sendLocked(p, ConnectionStatus{Type: TypeConnectionStatus, Status: "connected", UserID: user.ID})

	s.log.Info("user connected", zap.Int64("user_id", user.ID), zap.Int("total_users", len(s.conns)))
	return true
}

// Evict removes the connection for userID only when p is the registered
// socket. A connection that was already replaced leaves the registry untouched.
func (s *Service) Evict(userID int64, p Peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.conns[userID]
	if !ok || current.Peer != p {
		s.log.Debug("ignoring eviction of stale connection", zap.Int64("user_id", userID))
		return false
	}

	delete(s.conns, userID)
	s.metrics.ConnectionClosed(metrics.SurfaceMessaging)
	s.broadcastPresenceLocked()

	s.log.Info("user disconnected", zap.Int64("user_id", userID), zap.Int("remaining_users", len(s.conns)))
	return true
}

// Snapshot returns the connected users ordered by id.
func (s *Service) Snapshot() []store.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Lookup returns the registered connection for userID.
func (s *Service) Lookup(userID int64) (Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[userID]
	return c, ok
}

// Count returns the number of admitted connections.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// BroadcastPresence pushes the full user list to every open socket.
func (s *Service) BroadcastPresence() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastPresenceLocked()
}

// CloseAll closes every registered socket. Their read pumps evict them.
func (s *Service) CloseAll() int {
	s.mu.Lock()
	peers := make([]Peer, 0, len(s.conns))
	for _, c := range s.conns {
		peers = append(peers, c.Peer)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	return len(peers)
}

func (s *Service) snapshotLocked() []store.User {
	users := make([]store.User, 0, len(s.conns))
	for _, c := range s.conns {
		users = append(users, c.User)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users
}

func (s *Service) broadcastPresenceLocked() {
	payload, err := json.Marshal(UserList{Type: TypeUserList, Users: s.snapshotLocked()})
	if err != nil {
		s.log.Error("error encoding user list", zap.Error(err))
		return
	}

	s.log.Debug("broadcasting user list", zap.Int("online", len(s.conns)))
	for _, c := range s.conns {
		if c.Peer.IsOpen() {
			c.Peer.Send(payload)
		}
	}
}

func (s *Service) sendLocked(p Peer, frame any) bool {
	if !p.IsOpen() {
		return false
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		s.log.Error("error encoding frame", zap.Error(err))
		return false
	}
	return p.Send(payload)
}
