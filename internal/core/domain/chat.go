package domain

import (
	"io"
	"sort"
	"strings"
	"time"
)

type ChatChannel string

const (
	ChannelBuyerSeller     ChatChannel = "buyer-seller"
	ChannelCustomerService ChatChannel = "customer-service"
	ChannelProperty        ChatChannel = "property"
)

func (c ChatChannel) Valid() bool {
	switch c {
	case ChannelBuyerSeller, ChannelCustomerService, ChannelProperty:
		return true
	default:
		return false
	}
}

// ConversationKey identifies a conversation independent of who sends first.
type ConversationKey struct {
	Channel      ChatChannel `json:"channel"`
	ParticipantA string      `json:"participant_a"`
	ParticipantB string      `json:"participant_b"`
	PropertyID   string      `json:"property_id,omitempty"`
}

func NewConversationKey(channel ChatChannel, first, second, propertyID string) ConversationKey {
	pair := []string{strings.TrimSpace(first), strings.TrimSpace(second)}
	sort.Strings(pair)
	return ConversationKey{
		Channel:      channel,
		ParticipantA: pair[0],
		ParticipantB: pair[1],
		PropertyID:   strings.TrimSpace(propertyID),
	}
}

// Canonical is the stable textual form of the key.
func (k ConversationKey) Canonical() string {
	return strings.Join([]string{string(k.Channel), k.ParticipantA, k.ParticipantB, k.PropertyID}, "|")
}

func (k ConversationKey) Has(userID string) bool {
	return k.ParticipantA == userID || k.ParticipantB == userID
}

type Conversation struct {
	ID           string      `json:"id"`
	Channel      ChatChannel `json:"channel"`
	ParticipantA string      `json:"participant_a"`
	ParticipantB string      `json:"participant_b"`
	PropertyID   string      `json:"property_id,omitempty"`
	LastSequence int         `json:"last_sequence"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (c *Conversation) Key() ConversationKey {
	return ConversationKey{
		Channel:      c.Channel,
		ParticipantA: c.ParticipantA,
		ParticipantB: c.ParticipantB,
		PropertyID:   c.PropertyID,
	}
}

type ChatMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Sequence       int       `json:"sequence"`
	SenderID       string    `json:"sender_id"`
	RecipientID    string    `json:"recipient_id"`
	Text           string    `json:"text,omitempty"`
	AttachmentKey  string    `json:"attachment_key,omitempty"`
	AttachmentName string    `json:"attachment_name,omitempty"`
	AttachmentURL  string    `json:"attachment_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Attachment struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type SendMessageInput struct {
	SenderID    string
	RecipientID string
	Channel     ChatChannel
	PropertyID  string
	Text        string
	Attachment  *Attachment
}

type SendMessageResult struct {
	Message ChatMessage `json:"message"`
	Topic   string      `json:"topic"`
	Relayed bool        `json:"relayed"`
}

// Principal is the authenticated caller.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
}

const RoleAdmin = "admin"

func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}
