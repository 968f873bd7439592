package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/partsbot/internal/models"
)

// CreateConversation opens a new conversation for userID. Every call
// creates a new row.
func (s *Store) CreateConversation(ctx context.Context, userID string) (string, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, user_id, created_at)
		VALUES ($1, $2, now())`,
		id, userID,
	)
	if err != nil {
		return "", fmt.Errorf("insert conversation: %w", err)
	}
	return id.String(), nil
}

// GetConversation fetches a conversation by ID.
func (s *Store) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	id, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, fmt.Errorf("parse conversation id: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, created_at FROM conversations WHERE id = $1`, id)

	var (
		c     models.Conversation
		rowID uuid.UUID
	)
	if err := row.Scan(&rowID, &c.UserID, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.ID = rowID.String()
	return &c, nil
}

// AppendMessage stores one message. Transcript order is insertion order.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, sender models.Sender, text string) error {
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return fmt.Errorf("parse conversation id: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender, message, created_at)
		VALUES ($1, $2, $3, $4, clock_timestamp())`,
		uuid.New(), convID, string(sender), text,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a conversation's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, fmt.Errorf("parse conversation id: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, sender, message FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, id`, convID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var (
			id     uuid.UUID
			sender string
			m      models.Message
		)
		if err := rows.Scan(&id, &sender, &m.Text); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.ID = id.String()
		m.ConversationID = conversationID
		m.Sender = models.Sender(sender)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
