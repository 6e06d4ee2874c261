package messaging

import (
	"time"

	"github.com/Tyrowin/wanderchat/internal/store"
)

// Frame types exchanged on the authenticated surface.
const (
	TypeDirectMessage    = "direct_message"
	TypeUserList         = "user_list"
	TypeConnectionStatus = "connection_status"
	TypeError            = "error"
)

// timestampLayout matches ISO-8601 with millisecond precision in UTC.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const processFailure = "Failed to process message"

type inboundFrame struct {
	Type     string  `json:"type"`
	ToUserID *int64  `json:"toUserId"`
	Content  *string `json:"content"`
}

// DirectMessage is the envelope delivered to both ends of a direct message.
type DirectMessage struct {
	Type      string     `json:"type"`
	FromUser  store.User `json:"fromUser"`
	Content   string     `json:"content"`
	Timestamp string     `json:"timestamp"`
}

// UserList is the presence broadcast.
type UserList struct {
	Type  string       `json:"type"`
	Users []store.User `json:"users"`
}

// ConnectionStatus acknowledges an admitted connection.
type ConnectionStatus struct {
	Type   string `json:"type"`
	Status string `json:"status"`
	UserID int64  `json:"userId"`
}

// ErrorFrame reports a frame that could not be processed.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
