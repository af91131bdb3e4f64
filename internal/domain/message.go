package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MessageKind is the payload type of a message
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageVideo MessageKind = "video"
	MessageAudio MessageKind = "audio"
)

// PreviewLength is the number of characters of text pushed to devices
const PreviewLength = 100

// ParseMessageKind validates the message_type field
func ParseMessageKind(raw string) (MessageKind, error) {
	switch k := MessageKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case MessageText, MessageImage, MessageVideo, MessageAudio:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown message_type %q", ErrInvalidMessage, raw)
}

// IsMedia reports whether the kind requires an uploaded blob
func (k MessageKind) IsMedia() bool {
	return k == MessageImage || k == MessageVideo || k == MessageAudio
}

// Message represents a chat message entity
// Maps to PostgreSQL messages table
type Message struct {
	ID             int64            `json:"id" db:"id"`
	ConversationID int64            `json:"conversation_id" db:"conversation_id"`
	Seq            int64            `json:"seq" db:"seq"`
	SenderID       int64            `json:"sender_id" db:"sender_id"`
	SenderKind     PrincipalKind    `json:"sender_type" db:"sender_type"`
	Kind           MessageKind      `json:"message_type" db:"message_type"`
	Content        *string          `json:"content,omitempty" db:"content"`
	MediaURL       *string          `json:"media_url,omitempty" db:"media_url"`
	ThumbnailURL   *string          `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	Metadata       *MediaMetadata   `json:"metadata,omitempty" db:"media_metadata"`
	Read           bool             `json:"read" db:"read"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
	Sender         *ProfileSnapshot `json:"sender,omitempty" db:"-"`
}

// SenderPrincipal returns the principal that wrote the message
func (m *Message) SenderPrincipal() Principal {
	return Principal{Kind: m.SenderKind, ID: m.SenderID}
}

// Validate enforces the payload rules: text messages carry non-empty text and no
// media, media messages carry a media URL and may carry a caption.
func (m *Message) Validate() error {
	if !m.SenderKind.Valid() {
		return ErrInvalidPrincipalKind
	}
	switch {
	case m.Kind == MessageText:
		if m.Content == nil || strings.TrimSpace(*m.Content) == "" {
			return fmt.Errorf("%w: content is required for text messages", ErrInvalidMessage)
		}
		if m.MediaURL != nil || m.ThumbnailURL != nil || m.Metadata != nil {
			return fmt.Errorf("%w: text messages cannot carry media", ErrInvalidMessage)
		}
	case m.Kind.IsMedia():
		if m.MediaURL == nil || *m.MediaURL == "" {
			return fmt.Errorf("%w: media_url is required for %s messages", ErrInvalidMessage, m.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown message_type %q", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// Preview is the short text shown in push notifications
func (m *Message) Preview() string {
	switch m.Kind {
	case MessageImage:
		return "Sent a photo"
	case MessageVideo:
		return "Sent a video"
	case MessageAudio:
		return "Sent a voice message"
	}
	if m.Content == nil {
		return ""
	}
	text := *m.Content
	if utf8.RuneCountInString(text) <= PreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:PreviewLength])
}

// MessagePage is one page of a conversation history
type MessagePage struct {
	Messages   []*Message `json:"messages"`
	NextCursor int64      `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
	Page       *int       `json:"page,omitempty"`
	PerPage    int        `json:"per_page"`
}

// PageRequest selects a window of a conversation. Cursor takes precedence over Page.
type PageRequest struct {
	Cursor  int64
	Page    int
	PerPage int
}
