package chat

import (
	"encoding/json"

	"github.com/pelusa-v/pelusa-relay/internal/media"
)

// Kind is the "type" discriminator of an outbound frame.
type Kind string

const (
	KindChat      Kind = "chat"
	KindMsgUpdate Kind = "msgupdate"
	KindTyping    Kind = "typing"
	KindBlur      Kind = "blur"
	KindStatus    Kind = "status"
	KindPong      Kind = "pong"
)

// ContentBearing kinds survive in the offline store; the rest are stale once missed.
func (k Kind) ContentBearing() bool {
	return k == KindChat || k == KindMsgUpdate
}

type Status string

const (
	StatusOnline  Status = "Online"
	StatusOffline Status = "Offline"
)

// Event is a serialized outbound frame plus the id the recipient acks it with.
type Event struct {
	MessageID string
	Kind      Kind
	Payload   []byte
}

// ChatRecord is a stored chat message as returned by the persistence layer.
type ChatRecord struct {
	ID         int64   `json:"id"`
	SenderID   int64   `json:"sender_id"`
	ReceiverID int64   `json:"receiver_id"`
	Message    string  `json:"message"`
	Timestamp  string  `json:"timestamp"`
	UUID       string  `json:"uuid"`
	Image      *string `json:"image"`
}

// inbound frames; pointer fields distinguish "missing" from zero values.

type frameHeader struct {
	Type string `json:"type"`
}

type chatFrame struct {
	SenderID   *int64        `json:"sender_id"`
	ReceiverID *int64        `json:"receiver_id"`
	Message    *string       `json:"message"`
	UUID       *string       `json:"uuid"`
	Timestamp  *string       `json:"timestamp"`
	File       *media.Upload `json:"file,omitempty"`
}

type typingFrame struct {
	SenderID   *int64 `json:"sender_id"`
	ReceiverID *int64 `json:"receiver_id"`
}

type pingFrame struct {
	UserID *int64 `json:"user_id"`
}

type ackFrame struct {
	MessageID  *string `json:"message_id"`
	ReceiverID *int64  `json:"receiver_id"`
}

// outbound frames

type chatOut struct {
	Type      Kind   `json:"type"`
	MessageID string `json:"message_id"`
	ChatRecord
}

type msgUpdateOut struct {
	Type      Kind   `json:"type"`
	UUID      string `json:"uuid"`
	Event     string `json:"event"`
	MessageID string `json:"message_id"`
}

type typingOut struct {
	Type      Kind   `json:"type"`
	SenderID  int64  `json:"sender_id"`
	MessageID string `json:"message_id"`
}

type statusOut struct {
	Type      Kind   `json:"type"`
	UserID    int64  `json:"user_id"`
	Status    Status `json:"status"`
	MessageID string `json:"message_id"`
}

type pongOut struct {
	Type   Kind  `json:"type"`
	UserID int64 `json:"user_id"`
}

func newEvent(kind Kind, messageID string, frame any) (Event, error) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return Event{}, err
	}
	return Event{MessageID: messageID, Kind: kind, Payload: payload}, nil
}

// kindOf reads the type of a stored payload. Only content-bearing kinds are ever stored, so an
// unreadable payload is treated as chat.
func kindOf(payload []byte) Kind {
	var h frameHeader
	if err := json.Unmarshal(payload, &h); err != nil || h.Type == "" {
		return KindChat
	}
	return Kind(h.Type)
}
