package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/core/ports"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 200
)

type ChatRelayUseCase struct {
	store   ports.ConversationStore
	storage ports.ObjectStorage
	relay   ports.MessageRelay
}

func NewChatRelayUseCase(
	store ports.ConversationStore,
	storage ports.ObjectStorage,
	relay ports.MessageRelay,
) *ChatRelayUseCase {
	return &ChatRelayUseCase{
		store:   store,
		storage: storage,
		relay:   relay,
	}
}

// SendMessage persists the message and then forwards it to the recipient's
// topic. Relay failures are logged and reported through Relayed only.
func (uc *ChatRelayUseCase) SendMessage(ctx context.Context, in domain.SendMessageInput) (*domain.SendMessageResult, error) {
	const op = "send message"
	if err := validateSendInput(in); err != nil {
		return nil, err
	}

	key := domain.NewConversationKey(in.Channel, in.SenderID, in.RecipientID, in.PropertyID)
	now := time.Now().UTC()
	conv, err := uc.store.EnsureConversation(ctx, &domain.Conversation{
		ID:           ConversationID(key),
		Channel:      key.Channel,
		ParticipantA: key.ParticipantA,
		ParticipantB: key.ParticipantB,
		PropertyID:   key.PropertyID,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure conversation: %w", err)
	}

	msg := domain.ChatMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       in.SenderID,
		RecipientID:    in.RecipientID,
		Text:           strings.TrimSpace(in.Text),
		CreatedAt:      now,
	}

	if in.Attachment != nil {
		msg.AttachmentName = sanitizeFilename(in.Attachment.Filename)
		msg.AttachmentKey = attachmentKey(conv.ID, in.Attachment.Filename)
		if err := uc.storage.Save(ctx, msg.AttachmentKey, in.Attachment.Body); err != nil {
			return nil, domain.WrapError(domain.ErrStorage, op, err)
		}
		msg.AttachmentURL = uc.storage.URL(msg.AttachmentKey)
	}

	seq, err := uc.store.NextSequence(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("next sequence: %w", err)
	}
	msg.Sequence = seq
	if err := uc.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	result := &domain.SendMessageResult{
		Message: msg,
		Topic:   RelayTopic(in.Channel, in.RecipientID, key.PropertyID),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("chat_relay_encode_failed", "message_id", msg.ID, "error", err)
		return result, nil
	}
	if err := uc.relay.Relay(ctx, result.Topic, payload); err != nil {
		slog.Warn("chat_relay_failed",
			"conversation_id", conv.ID,
			"message_id", msg.ID,
			"topic", result.Topic,
			"error", domain.WrapError(domain.ErrRelay, op, err),
		)
		return result, nil
	}
	result.Relayed = true
	return result, nil
}

func validateSendInput(in domain.SendMessageInput) error {
	const op = "send message"
	switch {
	case strings.TrimSpace(in.SenderID) == "":
		return domain.NewError(domain.ErrUnauthorized, op, "sender is required")
	case strings.TrimSpace(in.RecipientID) == "":
		return domain.NewError(domain.ErrInvalidInput, op, "recipient_id is required")
	case in.SenderID == in.RecipientID:
		return domain.NewError(domain.ErrInvalidInput, op, "sender and recipient must differ")
	case !in.Channel.Valid():
		return domain.NewError(domain.ErrInvalidInput, op, fmt.Sprintf("unknown channel %q", in.Channel))
	case in.Channel == domain.ChannelProperty && strings.TrimSpace(in.PropertyID) == "":
		return domain.NewError(domain.ErrInvalidInput, op, "property_id is required for property chats")
	case strings.TrimSpace(in.Text) == "" && in.Attachment == nil:
		return domain.NewError(domain.ErrInvalidInput, op, "text or attachment is required")
	case in.Attachment != nil && in.Attachment.Body == nil:
		return domain.NewError(domain.ErrInvalidInput, op, "attachment body is required")
	}
	return nil
}

func (uc *ChatRelayUseCase) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.NewError(domain.ErrUnauthorized, "list conversations", "user is required")
	}
	return uc.store.ListConversations(ctx, userID)
}

func (uc *ChatRelayUseCase) ListMessages(
	ctx context.Context,
	userID, conversationID string,
	afterSequence, limit int,
) ([]domain.ChatMessage, error) {
	const op = "list messages"
	conv, err := uc.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Key().Has(userID) {
		return nil, domain.NewError(domain.ErrForbidden, op, fmt.Sprintf("user is not a participant of %s", conversationID))
	}
	if afterSequence < 0 {
		afterSequence = 0
	}
	switch {
	case limit <= 0:
		limit = defaultMessagePage
	case limit > maxMessagePage:
		limit = maxMessagePage
	}
	return uc.store.ListMessages(ctx, conv.ID, afterSequence, limit)
}
