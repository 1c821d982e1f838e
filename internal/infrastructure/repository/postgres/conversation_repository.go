package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const conversationColumns = `id, channel, participant_a, participant_b, property_id, last_sequence, created_at, updated_at`

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) EnsureConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error) {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversations (id, channel, participant_a, participant_b, property_id, last_sequence, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
ON CONFLICT (id) DO NOTHING
`, conv.ID, string(conv.Channel), conv.ParticipantA, conv.ParticipantB, conv.PropertyID, conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation insert: %w", err)
	}

	stored, err := r.GetConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("ensure conversation select: %w", err)
	}
	return stored, nil
}

// NextSequence reserves the next message number in a conversation.
func (r *ConversationRepository) NextSequence(ctx context.Context, conversationID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
UPDATE conversations
SET last_sequence = last_sequence + 1, updated_at = $2
WHERE id = $1
RETURNING last_sequence
`, conversationID, time.Now().UTC())

	var seq int
	if err := row.Scan(&seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.WrapError(domain.ErrNotFound, "next sequence", fmt.Errorf("conversation=%s", conversationID))
		}
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	return seq, nil
}

func (r *ConversationRepository) AppendMessage(ctx context.Context, message domain.ChatMessage) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chat_messages (
	id, conversation_id, sequence, sender_id, recipient_id, body, attachment_key, attachment_name, attachment_url, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`,
		message.ID, message.ConversationID, message.Sequence, message.SenderID, message.RecipientID, message.Text,
		nullableString(message.AttachmentKey), nullableString(message.AttachmentName), nullableString(message.AttachmentURL),
		message.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (r *ConversationRepository) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+conversationColumns+`
FROM conversations
WHERE id = $1
`, conversationID)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get conversation", fmt.Errorf("id=%s", conversationID))
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	return &conv, nil
}

func (r *ConversationRepository) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+conversationColumns+`
FROM conversations
WHERE participant_a = $1 OR participant_b = $1
ORDER BY updated_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, afterSequence, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, conversation_id, sequence, sender_id, recipient_id, body,
	COALESCE(attachment_key, ''), COALESCE(attachment_name, ''), COALESCE(attachment_url, ''), created_at
FROM chat_messages
WHERE conversation_id = $1 AND sequence > $2
ORDER BY sequence ASC
LIMIT $3
`, conversationID, afterSequence, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.ChatMessage, 0, limit)
	for rows.Next() {
		var msg domain.ChatMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Sequence,
			&msg.SenderID,
			&msg.RecipientID,
			&msg.Text,
			&msg.AttachmentKey,
			&msg.AttachmentName,
			&msg.AttachmentURL,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var conv domain.Conversation
	var channel string
	err := row.Scan(
		&conv.ID,
		&channel,
		&conv.ParticipantA,
		&conv.ParticipantB,
		&conv.PropertyID,
		&conv.LastSequence,
		&conv.CreatedAt,
		&conv.UpdatedAt,
	)
	if err != nil {
		return domain.Conversation{}, err
	}
	conv.Channel = domain.ChatChannel(channel)
	return conv, nil
}
