package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Store persists conversations, participants, messages and read state
type Store struct {
	db *sql.DB
}

// NewStore creates a messaging store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateConversation inserts a conversation with its participants in one
// transaction. participantIDs must already include the creator.
func (s *Store) CreateConversation(ctx context.Context, creatorID int64, participantIDs []int64) (*Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	conv := &Conversation{CreatedBy: creatorID, Participants: participantIDs}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO conversations (created_by, created_at)
		VALUES ($1, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`, creatorID).Scan(&conv.ID, &conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	for _, userID := range participantIDs {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
			VALUES ($1, $2, CURRENT_TIMESTAMP)
		`, conv.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to add participant: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation: %w", err)
	}
	return conv, nil
}

// GetConversation returns a conversation with its participant IDs
func (s *Store) GetConversation(ctx context.Context, conversationID int64) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, created_by, created_at FROM conversations WHERE id = $1`,
		conversationID).Scan(&conv.ID, &conv.CreatedBy, &conv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM conversation_participants
		WHERE conversation_id = $1 ORDER BY user_id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, id)
	}
	return &conv, rows.Err()
}

// IsParticipant reports whether the user belongs to the conversation
func (s *Store) IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check participant: %w", err)
	}
	return exists, nil
}

// ConversationIDsFor lists the conversations the user participates in,
// newest first
func (s *Store) ConversationIDsFor(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id
		FROM conversations c
		JOIN conversation_participants cp ON cp.conversation_id = c.id
		WHERE cp.user_id = $1
		ORDER BY c.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertMessage stores a new message
func (s *Store) InsertMessage(ctx context.Context, msg *Message) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO messages (conversation_id, sender_id, body, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id, created_at
	`, msg.ConversationID, msg.SenderID, msg.Body).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// GetMessage returns a message by ID
func (s *Store) GetMessage(ctx context.Context, messageID int64) (*Message, error) {
	var msg Message
	var editedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, edited_at
		FROM messages WHERE id = $1
	`, messageID).Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body,
		&msg.CreatedAt, &editedAt)
	if err == sql.ErrNoRows {
		return nil, ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	return &msg, nil
}

// UpdateMessageBody replaces the body and stamps edited_at
func (s *Store) UpdateMessageBody(ctx context.Context, messageID int64, body string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET body = $1, edited_at = CURRENT_TIMESTAMP WHERE id = $2
	`, body, messageID)
	if err != nil {
		return fmt.Errorf("failed to update message: %w", err)
	}
	return nil
}

// DeleteMessage removes the message row and its read records
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reads WHERE message_id = $1`, messageID); err != nil {
		return fmt.Errorf("failed to delete message reads: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID); err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message delete: %w", err)
	}
	return nil
}

// ListMessages returns messages in a conversation, oldest first, optionally
// only those after a message ID
func (s *Store) ListMessages(ctx context.Context, conversationID int64, afterID int64, limit int) ([]*Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at, edited_at
		FROM messages
		WHERE conversation_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, conversationID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkRead records that the user has read the message. The read set only
// grows: re-marking is a no-op and reads are never un-marked.
func (s *Store) MarkRead(ctx context.Context, messageID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		VALUES ($1, $2, CURRENT_TIMESTAMP)
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// HasRead reports whether the user has read the message
func (s *Store) HasRead(ctx context.Context, messageID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM message_reads WHERE message_id = $1 AND user_id = $2
		)
	`, messageID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check message read: %w", err)
	}
	return exists, nil
}

// TouchLastRead advances the participant's last_read_at watermark, never
// moving it backwards
func (s *Store) TouchLastRead(ctx context.Context, conversationID, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET last_read_at = CURRENT_TIMESTAMP
		WHERE conversation_id = $1 AND user_id = $2
		  AND (last_read_at IS NULL OR last_read_at < CURRENT_TIMESTAMP)
	`, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to update last read: %w", err)
	}
	return nil
}

// SetMutedUntil sets or clears the participant's mute deadline
func (s *Store) SetMutedUntil(ctx context.Context, conversationID, userID int64, until *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE conversation_participants
		SET muted_until = $1
		WHERE conversation_id = $2 AND user_id = $3
	`, until, conversationID, userID)
	if err != nil {
		return fmt.Errorf("failed to set mute: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// SearchMessages finds messages matching the text, restricted to
// conversations the user participates in, newest first. A non-nil senderIDs
// additionally restricts results to those senders; an empty list matches
// nothing.
func (s *Store) SearchMessages(ctx context.Context, userID int64, query string, limit int, senderIDs []int64) ([]*Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	args := []interface{}{userID, "%" + query + "%"}
	q := `
		SELECT m.id, m.conversation_id, m.sender_id, m.body, m.created_at, m.edited_at
		FROM messages m
		JOIN conversation_participants cp
		  ON cp.conversation_id = m.conversation_id AND cp.user_id = $1
		WHERE m.body LIKE $2`

	if senderIDs != nil {
		if len(senderIDs) == 0 {
			return []*Message{}, nil
		}
		placeholders := make([]string, len(senderIDs))
		for i, id := range senderIDs {
			args = append(args, id)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		q += fmt.Sprintf(" AND m.sender_id IN (%s)", strings.Join(placeholders, ", "))
	}

	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY m.id DESC LIMIT $%d", len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		var msg Message
		var editedAt sql.NullTime
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Body,
			&msg.CreatedAt, &editedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if editedAt.Valid {
			t := editedAt.Time
			msg.EditedAt = &t
		}
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
