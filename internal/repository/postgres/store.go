// Package postgres implements the durable chat store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"socialhub-backend/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store handles conversation, participant and message persistence
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// withTx runs fn inside a transaction. The transaction is rolled back when fn
// returns an error and committed otherwise.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

const messageColumns = `
	m.id, m.conversation_id, m.seq, m.sender_type, m.sender_id, m.message_type,
	m.content, m.media_url, m.thumbnail_url, m.media_metadata, m.read,
	m.created_at, m.updated_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	msg := &domain.Message{}
	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.Seq,
		&msg.SenderKind,
		&msg.SenderID,
		&msg.Kind,
		&msg.Content,
		&msg.MediaURL,
		&msg.ThumbnailURL,
		&msg.Metadata,
		&msg.Read,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func collectMessages(rows pgx.Rows) ([]*domain.Message, error) {
	defer rows.Close()

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// ensureParticipant verifies the conversation exists and principal belongs to it
func ensureParticipant(ctx context.Context, q querier, conversationID int64, principal domain.Principal) error {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND participant_type = $2 AND participant_id = $3
		), EXISTS(SELECT 1 FROM conversations WHERE id = $1)
	`

	var member, exists bool
	if err := q.QueryRow(ctx, query, conversationID, principal.Kind, principal.ID).Scan(&member, &exists); err != nil {
		return fmt.Errorf("failed to check participant: %w", err)
	}
	if !exists {
		return domain.ErrConversationNotFound
	}
	if !member {
		return domain.ErrNotParticipant
	}
	return nil
}
