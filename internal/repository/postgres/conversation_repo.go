package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"socialhub-backend/internal/domain"
)

// GetOrCreateDirectConversation returns the direct conversation of the unordered
// pair {a, b}, creating it with both participants when absent. created reports
// whether this call inserted the row.
func (s *Store) GetOrCreateDirectConversation(ctx context.Context, a, b domain.Principal) (*domain.Conversation, bool, error) {
	key := domain.DirectKey(a, b)

	var (
		conversationID int64
		created        bool
	)
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO conversations (kind, direct_key)
			VALUES ($1, $2)
			ON CONFLICT (direct_key) DO NOTHING
			RETURNING id
		`
		err := tx.QueryRow(ctx, insert, domain.ConversationDirect, key).Scan(&conversationID)
		if err == nil {
			created = true
			participants := `
				INSERT INTO conversation_participants (conversation_id, participant_type, participant_id)
				VALUES ($1, $2, $3), ($1, $4, $5)
				ON CONFLICT DO NOTHING
			`
			if _, err := tx.Exec(ctx, participants, conversationID, a.Kind, a.ID, b.Kind, b.ID); err != nil {
				return fmt.Errorf("failed to add participants: %w", err)
			}
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to create conversation: %w", err)
		}

		// A concurrent or earlier call owns the row
		if err := tx.QueryRow(ctx, `SELECT id FROM conversations WHERE direct_key = $1`, key).Scan(&conversationID); err != nil {
			return fmt.Errorf("failed to get conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	conversation, err := s.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, false, err
	}
	return conversation, created, nil
}

// GetConversation retrieves a conversation and its participants by ID
func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	return getConversation(ctx, s.pool, conversationID)
}

func getConversation(ctx context.Context, q querier, conversationID int64) (*domain.Conversation, error) {
	query := `
		SELECT id, kind, created_at, last_message_id, last_activity_at, message_seq
		FROM conversations
		WHERE id = $1
	`

	conversation := &domain.Conversation{}
	err := q.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.Kind,
		&conversation.CreatedAt,
		&conversation.LastMessageID,
		&conversation.LastActivityAt,
		&conversation.MessageSeq,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	participants, err := getParticipants(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	conversation.Participants = participants

	return conversation, nil
}

func getParticipants(ctx context.Context, q querier, conversationID int64) ([]domain.Participant, error) {
	query := `
		SELECT conversation_id, participant_type, participant_id
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY participant_type, participant_id
	`

	rows, err := q.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	defer rows.Close()

	participants := make([]domain.Participant, 0, 2)
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ConversationID, &p.PrincipalKind, &p.PrincipalID); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate participants: %w", err)
	}

	return participants, nil
}

// IsParticipant checks if a principal is a participant in a conversation.
// A missing conversation yields domain.ErrConversationNotFound.
func (s *Store) IsParticipant(ctx context.Context, conversationID int64, principal domain.Principal) (bool, error) {
	err := ensureParticipant(ctx, s.pool, conversationID, principal)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotParticipant):
		return false, nil
	default:
		return false, err
	}
}

// DeleteConversation removes a conversation, cascading participants and messages
func (s *Store) DeleteConversation(ctx context.Context, conversationID int64, requester domain.Principal) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureParticipant(ctx, tx, conversationID, requester); err != nil {
			return err
		}

		cmdTag, err := tx.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, conversationID)
		if err != nil {
			return fmt.Errorf("failed to delete conversation: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return domain.ErrConversationNotFound
		}
		return nil
	})
}

// ListRecentConversations returns the principal's conversations ordered by
// last activity, newest first, with never-active conversations last.
func (s *Store) ListRecentConversations(ctx context.Context, principal domain.Principal, offset, limit int) ([]*domain.ConversationSummary, error) {
	if limit <= 0 {
		return []*domain.ConversationSummary{}, nil
	}

	query := `
		SELECT
			c.id, c.kind, c.last_activity_at, c.last_message_id,
			other.participant_type, other.participant_id,
			(
				SELECT count(*) FROM messages m
				WHERE m.conversation_id = c.id AND m.read = false
				  AND NOT (m.sender_type = $1 AND m.sender_id = $2)
			) AS unread_count
		FROM conversations c
		INNER JOIN conversation_participants me
			ON me.conversation_id = c.id AND me.participant_type = $1 AND me.participant_id = $2
		LEFT JOIN LATERAL (
			SELECT o.participant_type, o.participant_id
			FROM conversation_participants o
			WHERE o.conversation_id = c.id
			  AND NOT (o.participant_type = $1 AND o.participant_id = $2)
			LIMIT 1
		) other ON true
		ORDER BY c.last_activity_at DESC NULLS LAST, c.id DESC
		OFFSET $3 LIMIT $4
	`

	rows, err := s.pool.Query(ctx, query, principal.Kind, principal.ID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	summaries := make([]*domain.ConversationSummary, 0, limit)
	lastIDs := make([]int64, 0, limit)
	for rows.Next() {
		var (
			summary       domain.ConversationSummary
			lastActivity  *time.Time
			lastMessageID *int64
			otherKind     *string
			otherID       *int64
		)
		err := rows.Scan(
			&summary.ConversationID,
			&summary.Kind,
			&lastActivity,
			&lastMessageID,
			&otherKind,
			&otherID,
			&summary.UnreadCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		summary.LastActivityAt = lastActivity
		if otherKind != nil && otherID != nil {
			summary.Other = domain.Principal{Kind: domain.PrincipalKind(*otherKind), ID: *otherID}
		}
		if lastMessageID != nil {
			// Stash the id until the message rows are loaded below
			summary.LastMessage = &domain.Message{ID: *lastMessageID}
			lastIDs = append(lastIDs, *lastMessageID)
		}
		summaries = append(summaries, &summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}

	if len(lastIDs) == 0 {
		return summaries, nil
	}

	msgRows, err := s.pool.Query(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ANY($1)`, lastIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load last messages: %w", err)
	}
	messages, err := collectMessages(msgRows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*domain.Message, len(messages))
	for _, msg := range messages {
		byID[msg.ID] = msg
	}
	for _, summary := range summaries {
		if summary.LastMessage == nil {
			continue
		}
		summary.LastMessage = byID[summary.LastMessage.ID]
	}

	return summaries, nil
}
