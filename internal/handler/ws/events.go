package ws

import (
	"encoding/json"
	"fmt"

	"socialhub-backend/internal/domain"
)

// Server to client events
const (
	EventNewMessage             = "new_message"
	EventMessageUpdated         = "message_updated"
	EventMessageDeleted         = "message_deleted"
	EventConversationMarkedRead = "conversation_marked_read"
	EventUserTyping             = "user_typing"
	EventUserStoppedTyping      = "user_stopped_typing"
	EventMessageReadReceipt     = "message_read_receipt"
	EventJoined                 = "joined"
	EventLeft                   = "left"
	EventError                  = "error"
)

// Client to server events
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventMessageRead = "message_read"
)

// Frame is the envelope used in both directions
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientPayload is the data of every client event
type ClientPayload struct {
	ConversationID int64 `json:"conversation_id"`
	MessageID      int64 `json:"message_id,omitempty"`
}

// RoomPayload acknowledges join and leave
type RoomPayload struct {
	ConversationID int64 `json:"conversation_id"`
}

// MessageDeletedPayload is sent after a hard delete
type MessageDeletedPayload struct {
	MessageID      int64 `json:"message_id"`
	ConversationID int64 `json:"conversation_id"`
}

// MarkedReadPayload is sent when a reader flips unread messages
type MarkedReadPayload struct {
	ConversationID int64            `json:"conversation_id"`
	Reader         domain.Principal `json:"reader"`
	Count          int64            `json:"count"`
}

// TypingPayload is sent for typing and stop_typing
type TypingPayload struct {
	ConversationID int64            `json:"conversation_id"`
	Principal      domain.Principal `json:"principal"`
}

// ReadReceiptPayload is sent when one message is read
type ReadReceiptPayload struct {
	ConversationID int64            `json:"conversation_id"`
	MessageID      int64            `json:"message_id"`
	Reader         domain.Principal `json:"reader"`
}

// ErrorPayload reports a rejected client event
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Event is one frame addressed to a conversation room. Seq is the message
// sequence for new_message events and zero for everything else.
type Event struct {
	Name           string
	ConversationID int64
	Seq            int64
	Frame          []byte

	except *Client
}

// NewEvent encodes data into a ready-to-send frame
func NewEvent(name string, conversationID int64, data any) (*Event, error) {
	frame, err := encodeFrame(name, data)
	if err != nil {
		return nil, err
	}
	return &Event{Name: name, ConversationID: conversationID, Frame: frame}, nil
}

func encodeFrame(name string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", name, err)
	}
	return json.Marshal(Frame{Event: name, Data: raw})
}
