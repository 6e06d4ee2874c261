// Package room implements the public chat room: an unauthenticated WebSocket
// surface where clients assert their own identity and every frame is
// broadcast to every connected client.
package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Tyrowin/wanderchat/internal/metrics"
	"github.com/Tyrowin/wanderchat/internal/wsconn"
)

// Peer is the outbound side of a live socket.
type Peer interface {
	Send(payload []byte) bool
	Close()
	IsOpen() bool
}

// Identity is the self-asserted name of an authenticated member.
type Identity struct {
	UserID   string
	Username string
}

// Member is one connection to the room. Its identity starts nil and is set
// only by an auth frame. Handle and Leave must be called from a single
// goroutine per member.
type Member struct {
	peer     Peer
	identity *Identity
}

// Identity returns the member's asserted identity, or nil before auth.
func (m *Member) Identity() *Identity {
	return m.identity
}

// Room broadcasts frames to all of its members.
type Room struct {
	mu      sync.Mutex
	members map[*Member]struct{}
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	newID   func() string
}

// New returns an empty room.
func New(log *zap.Logger, m *metrics.Metrics) *Room {
	if log == nil {
		log = zap.NewNop()
	}
	return &Room{
		members: make(map[*Member]struct{}),
		log:     log,
		metrics: m,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Join adds p to the room as an unauthenticated member.
func (r *Room) Join(p Peer) *Member {
	m := &Member{peer: p}

	r.mu.Lock()
	r.members[m] = struct{}{}
	count := len(r.members)
	r.mu.Unlock()

	r.metrics.ConnectionOpened(metrics.SurfaceRoom)
	r.log.Debug("new room connection", zap.Int("members", count))
	return m
}

// Leave removes m and announces its departure when it had authenticated.
func (r *Room) Leave(m *Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[m]; !ok {
		return
	}
	delete(r.members, m)
	r.metrics.ConnectionClosed(metrics.SurfaceRoom)

	if m.identity == nil {
		return
	}
	r.log.Info("user left the room", zap.String("username", m.identity.Username))
	r.broadcastLocked(TypeStatus, StatusFrame{
		ID:        "leave-" + r.newID(),
		Type:      TypeStatus,
		Content:   m.identity.Username + " left the chat",
		Timestamp: r.now().UnixMilli(),
	})
}

// Handle processes one inbound frame from m. Malformed frames and frames
// other than auth sent before auth are ignored.
func (r *Room) Handle(m *Member, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		r.log.Info("failed to process room frame", zap.Error(err))
		return
	}

	switch {
	case frame.Type == TypeAuth && truthy(frame.UserID) && truthy(frame.Username):
		r.authenticate(m, Identity{UserID: fmt.Sprint(frame.UserID), Username: fmt.Sprint(frame.Username)})
	case frame.Type == TypeMessage && m.identity != nil:
		r.Broadcast(TypeMessage, MessageFrame{
			ID:        frame.ID,
			Type:      TypeMessage,
			Sender:    m.identity.Username,
			Content:   frame.Content,
			Timestamp: r.now().UnixMilli(),
		})
	case frame.Type == TypeReceipt && m.identity != nil:
		r.Broadcast(TypeReceipt, ReceiptFrame{
			Type:      TypeReceipt,
			MessageID: frame.MessageID,
			Status:    frame.Status,
			Recipient: m.identity.Username,
		})
	default:
		r.log.Debug("ignoring room frame", zap.String("type", frame.Type), zap.Bool("authenticated", m.identity != nil))
	}
}

func (r *Room) authenticate(m *Member, id Identity) {
	m.identity = &id
	r.log.Info("user joined the room", zap.String("username", id.Username), zap.String("user_id", id.UserID))
	r.Broadcast(TypeStatus, StatusFrame{
		ID:        "join-" + r.newID(),
		Type:      TypeStatus,
		Content:   id.Username + " joined the chat",
		Timestamp: r.now().UnixMilli(),
	})
}

// Broadcast sends frame to every open member, including the originator.
func (r *Room) Broadcast(frameType string, frame any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(frameType, frame)
}

func (r *Room) broadcastLocked(frameType string, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.log.Error("error encoding room frame", zap.Error(err))
		return
	}
	for m := range r.members {
		if m.peer.IsOpen() {
			m.peer.Send(payload)
		}
	}
	r.metrics.RoomBroadcast(frameType)
}

// Count returns the number of connected members.
func (r *Room) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// CloseAll closes every member socket.
func (r *Room) CloseAll() int {
	r.mu.Lock()
	peers := make([]Peer, 0, len(r.members))
	for m := range r.members {
		peers = append(peers, m.peer)
	}
	r.mu.Unlock()

	for _, p := range peers {
		p.Close()
	}
	return len(peers)
}

type memberHandler struct {
	room   *Room
	member *Member
}

func (h *memberHandler) HandleFrame(_ *wsconn.Conn, data []byte) {
	h.room.Handle(h.member, data)
}

func (h *memberHandler) HandleClose(*wsconn.Conn) {
	h.room.Leave(h.member)
}

// Serve joins c to the room and pumps its frames until the socket closes.
func (r *Room) Serve(c *wsconn.Conn) {
	m := r.Join(c)
	c.Serve(&memberHandler{room: r, member: m})
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case float64:
		return t != 0
	case bool:
		return t
	default:
		return true
	}
}
