package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"socialhub-backend/internal/domain"
)

// AppendMessage inserts msg and advances the conversation's last message, last
// activity and sequence in one transaction. The conversation row lock orders
// concurrent appends, so seq, id and created_at grow together.
func (s *Store) AppendMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var stored *domain.Message
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			seq int64
			now time.Time
		)
		lock := `
			SELECT message_seq,
			       greatest(clock_timestamp(), coalesce(last_activity_at, '-infinity'::timestamptz))
			FROM conversations
			WHERE id = $1
			FOR UPDATE
		`
		if err := tx.QueryRow(ctx, lock, msg.ConversationID).Scan(&seq, &now); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrConversationNotFound
			}
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		if err := ensureParticipant(ctx, tx, msg.ConversationID, msg.SenderPrincipal()); err != nil {
			return err
		}

		insert := `
			INSERT INTO messages AS m (
				conversation_id, seq, sender_type, sender_id, message_type,
				content, media_url, thumbnail_url, media_metadata, read,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, false, $10, $10)
			RETURNING ` + messageColumns

		var err error
		stored, err = scanMessage(tx.QueryRow(ctx, insert,
			msg.ConversationID,
			seq+1,
			msg.SenderKind,
			msg.SenderID,
			msg.Kind,
			msg.Content,
			msg.MediaURL,
			msg.ThumbnailURL,
			msg.Metadata,
			now,
		))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}

		update := `
			UPDATE conversations
			SET last_message_id = $2, last_activity_at = $3, message_seq = $4
			WHERE id = $1
		`
		if _, err := tx.Exec(ctx, update, msg.ConversationID, stored.ID, stored.CreatedAt, stored.Seq); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return stored, nil
}

// GetMessage retrieves a message by ID
func (s *Store) GetMessage(ctx context.Context, messageID int64) (*domain.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func lockMessage(ctx context.Context, tx pgx.Tx, messageID int64) (*domain.Message, error) {
	msg, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1 FOR UPDATE`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to lock message: %w", err)
	}
	return msg, nil
}

// FetchMessages returns one page of a conversation ordered by (created_at, id)
// and marks the page's messages from other senders as read. marked is the
// number of rows flipped by this call.
func (s *Store) FetchMessages(ctx context.Context, conversationID int64, requester domain.Principal, req domain.PageRequest) (page *domain.MessagePage, marked int64, err error) {
	page = &domain.MessagePage{
		Messages:   []*domain.Message{},
		NextCursor: req.Cursor,
		PerPage:    req.PerPage,
	}
	if req.Cursor == 0 {
		p := req.Page
		page.Page = &p
	}

	err = s.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureParticipant(ctx, tx, conversationID, requester); err != nil {
			return err
		}
		if req.PerPage == 0 {
			return nil
		}

		var rows pgx.Rows
		var err error
		if req.Cursor > 0 {
			query := `SELECT ` + messageColumns + `
				FROM messages m
				WHERE m.conversation_id = $1 AND m.id > $2
				ORDER BY m.created_at ASC, m.id ASC
				LIMIT $3`
			rows, err = tx.Query(ctx, query, conversationID, req.Cursor, req.PerPage+1)
		} else {
			query := `SELECT ` + messageColumns + `
				FROM messages m
				WHERE m.conversation_id = $1
				ORDER BY m.created_at ASC, m.id ASC
				OFFSET $2 LIMIT $3`
			offset := 0
			if req.Page > 1 {
				offset = (req.Page - 1) * req.PerPage
			}
			rows, err = tx.Query(ctx, query, conversationID, offset, req.PerPage+1)
		}
		if err != nil {
			return fmt.Errorf("failed to fetch messages: %w", err)
		}
		messages, err := collectMessages(rows)
		if err != nil {
			return err
		}

		if len(messages) > req.PerPage {
			page.HasMore = true
			messages = messages[:req.PerPage]
		}
		page.Messages = messages
		if len(messages) > 0 {
			page.NextCursor = messages[len(messages)-1].ID
		}

		unread := make([]int64, 0, len(messages))
		for _, msg := range messages {
			if !msg.Read && !msg.SenderPrincipal().Equal(requester) {
				unread = append(unread, msg.ID)
			}
		}
		if len(unread) == 0 {
			return nil
		}

		update := `
			UPDATE messages SET read = true
			WHERE id = ANY($1) AND read = false
			  AND NOT (sender_type = $2 AND sender_id = $3)
		`
		cmdTag, err := tx.Exec(ctx, update, unread, requester.Kind, requester.ID)
		if err != nil {
			return fmt.Errorf("failed to mark messages read: %w", err)
		}
		marked = cmdTag.RowsAffected()
		for _, msg := range messages {
			if !msg.SenderPrincipal().Equal(requester) {
				msg.Read = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	return page, marked, nil
}

// MarkConversationRead flips read on every message in the conversation not
// sent by requester and returns the number of rows changed.
func (s *Store) MarkConversationRead(ctx context.Context, conversationID int64, requester domain.Principal) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := ensureParticipant(ctx, tx, conversationID, requester); err != nil {
			return err
		}

		update := `
			UPDATE messages SET read = true
			WHERE conversation_id = $1 AND read = false
			  AND NOT (sender_type = $2 AND sender_id = $3)
		`
		cmdTag, err := tx.Exec(ctx, update, conversationID, requester.Kind, requester.ID)
		if err != nil {
			return fmt.Errorf("failed to mark conversation read: %w", err)
		}
		count = cmdTag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// MarkMessageRead flips read on a single message. Only a participant other
// than the sender may do so. changed reports whether the flag moved.
func (s *Store) MarkMessageRead(ctx context.Context, messageID int64, requester domain.Principal) (msg *domain.Message, changed bool, err error) {
	err = s.withTx(ctx, func(tx pgx.Tx) error {
		locked, err := lockMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if err := ensureParticipant(ctx, tx, locked.ConversationID, requester); err != nil {
			return err
		}
		if locked.SenderPrincipal().Equal(requester) {
			return domain.ErrOwnMessage
		}

		msg = locked
		if locked.Read {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE messages SET read = true WHERE id = $1`, messageID); err != nil {
			return fmt.Errorf("failed to mark message read: %w", err)
		}
		msg.Read = true
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return msg, changed, nil
}

// UpdateMessageText replaces the text of a text message. Only its sender may edit it.
func (s *Store) UpdateMessageText(ctx context.Context, messageID int64, requester domain.Principal, text string) (*domain.Message, error) {
	var updated *domain.Message
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		locked, err := lockMessage(ctx, tx, messageID)
		if err != nil {
			return err
		}
		if !locked.SenderPrincipal().Equal(requester) {
			return domain.ErrNotSender
		}
		if locked.Kind != domain.MessageText {
			return domain.ErrNotEditable
		}

		update := `
			UPDATE messages AS m
			SET content = $2, updated_at = greatest(clock_timestamp(), m.created_at)
			WHERE m.id = $1
			RETURNING ` + messageColumns
		updated, err = scanMessage(tx.QueryRow(ctx, update, messageID, text))
		if err != nil {
			return fmt.Errorf("failed to update message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteMessage hard-deletes a message sent by requester and repoints the
// conversation's last message at the newest remaining one.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64, requester domain.Principal) (*domain.Message, error) {
	var deleted *domain.Message
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanMessage(tx.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = $1`, messageID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMessageNotFound
			}
			return fmt.Errorf("failed to get message: %w", err)
		}
		if !current.SenderPrincipal().Equal(requester) {
			return domain.ErrNotSender
		}

		// Same lock order as AppendMessage: conversation first
		if _, err := tx.Exec(ctx, `SELECT 1 FROM conversations WHERE id = $1 FOR UPDATE`, current.ConversationID); err != nil {
			return fmt.Errorf("failed to lock conversation: %w", err)
		}

		deleted, err = scanMessage(tx.QueryRow(ctx, `DELETE FROM messages AS m WHERE m.id = $1 RETURNING `+messageColumns, messageID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrMessageNotFound
			}
			return fmt.Errorf("failed to delete message: %w", err)
		}

		repoint := `
			UPDATE conversations
			SET last_message_id = (
				SELECT id FROM messages
				WHERE conversation_id = $1
				ORDER BY created_at DESC, id DESC
				LIMIT 1
			)
			WHERE id = $1 AND last_message_id = $2
		`
		if _, err := tx.Exec(ctx, repoint, deleted.ConversationID, deleted.ID); err != nil {
			return fmt.Errorf("failed to update conversation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// UnreadCount sums unread messages from others across every conversation the
// principal participates in.
func (s *Store) UnreadCount(ctx context.Context, principal domain.Principal) (int64, error) {
	query := `
		SELECT count(*)
		FROM messages m
		INNER JOIN conversation_participants p ON p.conversation_id = m.conversation_id
		WHERE p.participant_type = $1 AND p.participant_id = $2
		  AND m.read = false
		  AND NOT (m.sender_type = $1 AND m.sender_id = $2)
	`

	var count int64
	if err := s.pool.QueryRow(ctx, query, principal.Kind, principal.ID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return count, nil
}
