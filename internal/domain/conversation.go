package domain

import (
	"time"
)

// ConversationKind is the shape of a conversation. Only direct chats exist today.
type ConversationKind string

const ConversationDirect ConversationKind = "direct"

// Conversation represents conversation metadata
// Maps to PostgreSQL conversations table
type Conversation struct {
	ID             int64            `json:"id" db:"id"`
	Kind           ConversationKind `json:"kind" db:"kind"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	LastMessageID  *int64           `json:"last_message_id,omitempty" db:"last_message_id"`
	LastActivityAt *time.Time       `json:"last_activity_at,omitempty" db:"last_activity_at"`
	// MessageSeq is the seq of the newest message appended so far
	MessageSeq   int64         `json:"-" db:"message_seq"`
	Participants []Participant `json:"participants"`
}

// Participant binds a principal to a conversation
// Maps to PostgreSQL conversation_participants table
type Participant struct {
	ConversationID int64         `json:"conversation_id" db:"conversation_id"`
	PrincipalKind  PrincipalKind `json:"participant_type" db:"participant_type"`
	PrincipalID    int64         `json:"participant_id" db:"participant_id"`
}

// Principal returns the participant identity
func (p Participant) Principal() Principal {
	return Principal{Kind: p.PrincipalKind, ID: p.PrincipalID}
}

// HasParticipant reports whether principal is one of the conversation members
func (c *Conversation) HasParticipant(principal Principal) bool {
	for _, p := range c.Participants {
		if p.Principal().Equal(principal) {
			return true
		}
	}
	return false
}

// Others returns every participant except principal
func (c *Conversation) Others(principal Principal) []Principal {
	others := make([]Principal, 0, len(c.Participants))
	for _, p := range c.Participants {
		if !p.Principal().Equal(principal) {
			others = append(others, p.Principal())
		}
	}
	return others
}

// ConversationSummary is one row of the recent-conversations listing
type ConversationSummary struct {
	ConversationID   int64            `json:"conversation_id"`
	Kind             ConversationKind `json:"kind"`
	LastActivityAt   *time.Time       `json:"last_activity_at,omitempty"`
	LastMessage      *Message         `json:"last_message,omitempty"`
	OtherParticipant *ProfileSnapshot `json:"other_participant,omitempty"`
	UnreadCount      int64            `json:"unread_count"`

	// Other identifies the counterpart so the profile snapshot can be hydrated
	Other Principal `json:"-"`
}

// ConversationCreate is the body of POST /conversations
type ConversationCreate struct {
	ParticipantID   int64  `json:"participant_id" binding:"required,gt=0"`
	ParticipantType string `json:"participant_type"`
	Strict          bool   `json:"strict"`
}
