package ports

import (
	"context"
	"io"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// LocatorIndex answers where answers are drawn on a template.
type LocatorIndex interface {
	LocationsForPage(ctx context.Context, templateID string, page int) ([]domain.AnswerLocation, error)
	LocationsForQuestion(ctx context.Context, questionID string) ([]domain.AnswerLocation, error)
}

// TemplateService is the inbound contract for catalog onboarding and browsing.
type TemplateService interface {
	Onboard(ctx context.Context, tpl *domain.Template, original io.Reader) (*domain.Template, error)
	List(ctx context.Context) ([]domain.Template, error)
	Get(ctx context.Context, id string) (*domain.Template, error)
	PageText(ctx context.Context, templateID string, page int) (string, error)
}

// DocumentLifecycle drives a working document from NONE through SIGNED.
type DocumentLifecycle interface {
	RequestFill(ctx context.Context, req domain.FillRequest) (*domain.WorkingDocument, error)
	SubmitAnswer(ctx context.Context, ownerID, documentID string, answer domain.AnswerInput) (*domain.AnswerResult, error)
	SubmitAnswers(ctx context.Context, ownerID, documentID string, answers []domain.AnswerInput) (*domain.AnswerResult, error)
	GetDocument(ctx context.Context, ownerID, documentID string) (*domain.WorkingDocument, error)
	ListDocuments(ctx context.Context, ownerID string) ([]domain.WorkingDocument, error)
	ListAnswers(ctx context.Context, ownerID, documentID string) ([]domain.RecordedAnswer, error)
	ExportAnswers(ctx context.Context, ownerID, documentID string, w io.Writer) error
}

// DeliveryRetrier retries delivery of signed documents that were not delivered.
type DeliveryRetrier interface {
	RedeliverPending(ctx context.Context, limit int) (int, error)
}

// ChatRelayService is the inbound contract for chat message submission.
type ChatRelayService interface {
	SendMessage(ctx context.Context, in domain.SendMessageInput) (*domain.SendMessageResult, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID string, afterSequence, limit int) ([]domain.ChatMessage, error)
}
