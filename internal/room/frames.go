package room

import "encoding/json"

// Frame types used by the public room.
const (
	TypeAuth    = "auth"
	TypeMessage = "message"
	TypeStatus  = "status"
	TypeReceipt = "receipt"
)

// inboundFrame is the union of every client frame. Fields the room only
// relays are kept as raw JSON so any value type passes through unchanged.
type inboundFrame struct {
	Type      string          `json:"type"`
	ID        json.RawMessage `json:"id"`
	Content   json.RawMessage `json:"content"`
	UserID    any             `json:"userId"`
	Username  any             `json:"username"`
	MessageID json.RawMessage `json:"messageId"`
	Status    json.RawMessage `json:"status"`
}

// StatusFrame announces joins and leaves.
type StatusFrame struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// MessageFrame is a chat message stamped with the sender and server time.
type MessageFrame struct {
	ID        json.RawMessage `json:"id,omitempty"`
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ReceiptFrame relays a delivery or read acknowledgment.
type ReceiptFrame struct {
	Type      string          `json:"type"`
	MessageID json.RawMessage `json:"messageId,omitempty"`
	Status    json.RawMessage `json:"status,omitempty"`
	Recipient string          `json:"recipient"`
}
