// Package memory is a process-local chat store with the same semantics as the
// PostgreSQL store. It backs STORE_DRIVER=memory and the HTTP edge tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"socialhub-backend/internal/domain"
)

type conversationRow struct {
	conversation domain.Conversation
	messageIDs   []int64 // ascending, which is also created_at order
}

// Store keeps every row in maps guarded by one mutex
type Store struct {
	mu sync.Mutex

	conversations map[int64]*conversationRow
	byDirectKey   map[string]int64
	messages      map[int64]*domain.Message
	profiles      map[domain.Principal]*domain.Profile

	nextConversationID int64
	nextMessageID      int64

	now func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		conversations: make(map[int64]*conversationRow),
		byDirectKey:   make(map[string]int64),
		messages:      make(map[int64]*domain.Message),
		profiles:      make(map[domain.Principal]*domain.Profile),
		now:           time.Now,
	}
}

// Ping always succeeds
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// PutProfile registers a profile returned by GetProfile
func (s *Store) PutProfile(profile *domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := *profile
	s.profiles[profile.Principal] = &p
}

// GetProfile looks up a profile registered with PutProfile
func (s *Store) GetProfile(ctx context.Context, principal domain.Principal) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[principal]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	out := *p
	return &out, nil
}

func copyMessage(m *domain.Message) *domain.Message {
	out := *m
	return &out
}

func (s *Store) copyConversation(row *conversationRow) *domain.Conversation {
	out := row.conversation
	out.Participants = append([]domain.Participant(nil), row.conversation.Participants...)
	return &out
}

func (s *Store) ensureParticipant(conversationID int64, principal domain.Principal) (*conversationRow, error) {
	row, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	if !row.conversation.HasParticipant(principal) {
		return nil, domain.ErrNotParticipant
	}
	return row, nil
}

// GetOrCreateDirectConversation returns the direct conversation of {a, b}, creating it if absent
func (s *Store) GetOrCreateDirectConversation(ctx context.Context, a, b domain.Principal) (*domain.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := domain.DirectKey(a, b)
	if id, ok := s.byDirectKey[key]; ok {
		return s.copyConversation(s.conversations[id]), false, nil
	}

	s.nextConversationID++
	id := s.nextConversationID
	participants := []domain.Participant{
		{ConversationID: id, PrincipalKind: a.Kind, PrincipalID: a.ID},
		{ConversationID: id, PrincipalKind: b.Kind, PrincipalID: b.ID},
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].PrincipalKind != participants[j].PrincipalKind {
			return participants[i].PrincipalKind < participants[j].PrincipalKind
		}
		return participants[i].PrincipalID < participants[j].PrincipalID
	})

	row := &conversationRow{conversation: domain.Conversation{
		ID:           id,
		Kind:         domain.ConversationDirect,
		CreatedAt:    s.now().UTC(),
		Participants: participants,
	}}
	s.conversations[id] = row
	s.byDirectKey[key] = id

	return s.copyConversation(row), true, nil
}

// GetConversation retrieves a conversation and its participants by ID
func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.conversations[conversationID]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return s.copyConversation(row), nil
}

// IsParticipant checks if a principal is a participant in a conversation
func (s *Store) IsParticipant(ctx context.Context, conversationID int64, principal domain.Principal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.ensureParticipant(conversationID, principal)
	switch err {
	case nil:
		return true, nil
	case domain.ErrNotParticipant:
		return false, nil
	default:
		return false, err
	}
}

// DeleteConversation removes a conversation with its messages
func (s *Store) DeleteConversation(ctx context.Context, conversationID int64, requester domain.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.ensureParticipant(conversationID, requester)
	if err != nil {
		return err
	}
	for _, id := range row.messageIDs {
		delete(s.messages, id)
	}
	for key, id := range s.byDirectKey {
		if id == conversationID {
			delete(s.byDirectKey, key)
		}
	}
	delete(s.conversations, conversationID)
	return nil
}

// AppendMessage stores msg and advances the conversation pointers
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.ensureParticipant(msg.ConversationID, msg.SenderPrincipal())
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if last := row.conversation.LastActivityAt; last != nil && now.Before(*last) {
		now = *last
	}

	s.nextMessageID++
	stored := copyMessage(msg)
	stored.ID = s.nextMessageID
	stored.Seq = row.conversation.MessageSeq + 1
	stored.Read = false
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Sender = nil

	s.messages[stored.ID] = stored
	row.messageIDs = append(row.messageIDs, stored.ID)
	row.conversation.MessageSeq = stored.Seq
	lastID := stored.ID
	row.conversation.LastMessageID = &lastID
	row.conversation.LastActivityAt = &now

	return copyMessage(stored), nil
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	return copyMessage(msg), nil
}

// FetchMessages returns one page of a conversation and marks the page read for requester
func (s *Store) FetchMessages(ctx context.Context, conversationID int64, requester domain.Principal, req domain.PageRequest) (*domain.MessagePage, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.ensureParticipant(conversationID, requester)
	if err != nil {
		return nil, 0, err
	}

	page := &domain.MessagePage{
		Messages:   []*domain.Message{},
		NextCursor: req.Cursor,
		PerPage:    req.PerPage,
	}
	if req.Cursor == 0 {
		p := req.Page
		page.Page = &p
	}
	if req.PerPage == 0 {
		return page, 0, nil
	}

	var window []int64
	if req.Cursor > 0 {
		start := sort.Search(len(row.messageIDs), func(i int) bool { return row.messageIDs[i] > req.Cursor })
		window = row.messageIDs[start:]
	} else {
		offset := 0
		if req.Page > 1 {
			offset = (req.Page - 1) * req.PerPage
		}
		if offset < len(row.messageIDs) {
			window = row.messageIDs[offset:]
		}
	}
	if len(window) > req.PerPage {
		page.HasMore = true
		window = window[:req.PerPage]
	}

	var marked int64
	for _, id := range window {
		msg := s.messages[id]
		if !msg.SenderPrincipal().Equal(requester) && !msg.Read {
			msg.Read = true
			marked++
		}
		page.Messages = append(page.Messages, copyMessage(msg))
	}
	if len(window) > 0 {
		page.NextCursor = window[len(window)-1]
	}

	return page, marked, nil
}

// MarkConversationRead flips read on every message not sent by requester
func (s *Store) MarkConversationRead(ctx context.Context, conversationID int64, requester domain.Principal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, err := s.ensureParticipant(conversationID, requester)
	if err != nil {
		return 0, err
	}

	var count int64
	for _, id := range row.messageIDs {
		msg := s.messages[id]
		if !msg.Read && !msg.SenderPrincipal().Equal(requester) {
			msg.Read = true
			count++
		}
	}
	return count, nil
}

// MarkMessageRead flips read on one message received by requester
func (s *Store) MarkMessageRead(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, false, domain.ErrMessageNotFound
	}
	if _, err := s.ensureParticipant(msg.ConversationID, requester); err != nil {
		return nil, false, err
	}
	if msg.SenderPrincipal().Equal(requester) {
		return nil, false, domain.ErrOwnMessage
	}

	changed := !msg.Read
	msg.Read = true
	return copyMessage(msg), changed, nil
}

// UpdateMessageText replaces the text of a text message sent by requester
func (s *Store) UpdateMessageText(ctx context.Context, messageID int64, requester domain.Principal, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if !msg.SenderPrincipal().Equal(requester) {
		return nil, domain.ErrNotSender
	}
	if msg.Kind != domain.MessageText {
		return nil, domain.ErrNotEditable
	}

	now := s.now().UTC()
	if now.Before(msg.CreatedAt) {
		now = msg.CreatedAt
	}
	content := text
	msg.Content = &content
	msg.UpdatedAt = now
	return copyMessage(msg), nil
}

// DeleteMessage hard-deletes a message sent by requester
func (s *Store) DeleteMessage(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[messageID]
	if !ok {
		return nil, domain.ErrMessageNotFound
	}
	if !msg.SenderPrincipal().Equal(requester) {
		return nil, domain.ErrNotSender
	}

	delete(s.messages, messageID)
	if row, ok := s.conversations[msg.ConversationID]; ok {
		for i, id := range row.messageIDs {
			if id == messageID {
				row.messageIDs = append(row.messageIDs[:i], row.messageIDs[i+1:]...)
				break
			}
		}
		if row.conversation.LastMessageID != nil && *row.conversation.LastMessageID == messageID {
			row.conversation.LastMessageID = nil
			if n := len(row.messageIDs); n > 0 {
				last := row.messageIDs[n-1]
				row.conversation.LastMessageID = &last
			}
		}
	}
	return msg, nil
}

// UnreadCount sums unread messages from others across the principal's conversations
func (s *Store) UnreadCount(ctx context.Context, principal domain.Principal) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, row := range s.conversations {
		if !row.conversation.HasParticipant(principal) {
			continue
		}
		for _, id := range row.messageIDs {
			msg := s.messages[id]
			if !msg.Read && !msg.SenderPrincipal().Equal(principal) {
				count++
			}
		}
	}
	return count, nil
}

// ListRecentConversations lists the principal's conversations, most recently active first
func (s *Store) ListRecentConversations(ctx context.Context, principal domain.Principal, offset, limit int) ([]*domain.ConversationSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]*conversationRow, 0)
	for _, row := range s.conversations {
		if row.conversation.HasParticipant(principal) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].conversation, rows[j].conversation
		switch {
		case a.LastActivityAt == nil && b.LastActivityAt == nil:
			return a.ID > b.ID
		case a.LastActivityAt == nil:
			return false
		case b.LastActivityAt == nil:
			return true
		case !a.LastActivityAt.Equal(*b.LastActivityAt):
			return a.LastActivityAt.After(*b.LastActivityAt)
		}
		return a.ID > b.ID
	})

	summaries := make([]*domain.ConversationSummary, 0)
	if limit <= 0 || offset >= len(rows) {
		return summaries, nil
	}
	rows = rows[offset:]
	if len(rows) > limit {
		rows = rows[:limit]
	}

	for _, row := range rows {
		summary := &domain.ConversationSummary{
			ConversationID: row.conversation.ID,
			Kind:           row.conversation.Kind,
			LastActivityAt: row.conversation.LastActivityAt,
		}
		if others := row.conversation.Others(principal); len(others) > 0 {
			summary.Other = others[0]
		}
		if id := row.conversation.LastMessageID; id != nil {
			if msg, ok := s.messages[*id]; ok {
				summary.LastMessage = copyMessage(msg)
			}
		}
		for _, id := range row.messageIDs {
			msg := s.messages[id]
			if !msg.Read && !msg.SenderPrincipal().Equal(principal) {
				summary.UnreadCount++
			}
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}
