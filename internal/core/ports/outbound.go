package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// TemplateCatalog reads and stores form templates with their locator index.
type TemplateCatalog interface {
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
	FindQuestion(ctx context.Context, questionID string) (*domain.Template, domain.Question, error)
	ListTemplates(ctx context.Context) ([]domain.Template, error)
	UpsertTemplate(ctx context.Context, tpl *domain.Template) error
}

// DocumentRepository persists working documents and their recorded answers.
type DocumentRepository interface {
	// ClaimWorkingDocument inserts doc unless the (owner, template) slot is
	// taken. It returns the stored row and whether this call created it.
	ClaimWorkingDocument(ctx context.Context, doc *domain.WorkingDocument) (*domain.WorkingDocument, bool, error)
	GetByID(ctx context.Context, id string) (*domain.WorkingDocument, error)
	GetByOwnerTemplate(ctx context.Context, ownerID, templateID string) (*domain.WorkingDocument, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.WorkingDocument, error)
	TouchModified(ctx context.Context, id string, at time.Time) error
	MarkSigned(ctx context.Context, id string, at time.Time) error
	RecordDelivery(ctx context.Context, id string, delivered bool, errMessage string) error
	ListUndelivered(ctx context.Context, limit int) ([]domain.WorkingDocument, error)
	UpsertAnswer(ctx context.Context, answer domain.RecordedAnswer) error
	ListAnswers(ctx context.Context, documentID string) ([]domain.RecordedAnswer, error)
}

// ObjectStorage stores template originals, working copies and attachments.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	URL(key string) string
}

// PDFInspector reads page geometry and text from a PDF.
type PDFInspector interface {
	Inspect(ctx context.Context, data []byte) (domain.PageInfo, error)
	PageText(ctx context.Context, data []byte, page int) (string, error)
}

// PDFStamper merges marks on top of existing page content.
type PDFStamper interface {
	Stamp(ctx context.Context, data []byte, marks []domain.Mark) ([]byte, error)
}

// DeliveryNotifier hands a signed document to the delivery channel.
type DeliveryNotifier interface {
	NotifySigned(ctx context.Context, event domain.SignedDocumentEvent) error
}

// MessageRelay forwards a chat payload to live listeners of a topic.
type MessageRelay interface {
	Relay(ctx context.Context, topic string, payload []byte) error
}

// KeyLocker serializes work on a single key across requests.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// ConversationStore persists chat conversations and their ordered messages.
type ConversationStore interface {
	EnsureConversation(ctx context.Context, conv *domain.Conversation) (*domain.Conversation, error)
	NextSequence(ctx context.Context, conversationID string) (int, error)
	AppendMessage(ctx context.Context, message domain.ChatMessage) error
	GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error)
	ListMessages(ctx context.Context, conversationID string, afterSequence, limit int) ([]domain.ChatMessage, error)
}

// AnswerExporter renders recorded answers into a downloadable report.
type AnswerExporter interface {
	ExportAnswers(ctx context.Context, doc *domain.WorkingDocument, answers []domain.RecordedAnswer, w io.Writer) error
}
