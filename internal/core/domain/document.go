package domain

import "time"

type LifecycleState string

const (
	StateNone   LifecycleState = "NONE"
	StateDraft  LifecycleState = "DRAFT"
	StateSigned LifecycleState = "SIGNED"
)

// WorkingDocument is a user-private copy of a template. One exists per
// (owner, template) pair.
type WorkingDocument struct {
	ID            string     `json:"id"`
	OwnerID       string     `json:"owner_id"`
	TemplateID    string     `json:"template_id"`
	Name          string     `json:"name"`
	StorageKey    string     `json:"storage_key"`
	URL           string     `json:"url"`
	DocType       string     `json:"doc_type"`
	StateTag      string     `json:"state_tag,omitempty"`
	Recipient     string     `json:"recipient,omitempty"`
	IsSigned      bool       `json:"is_signed"`
	Delivered     bool       `json:"delivered"`
	DeliveryError string     `json:"delivery_error,omitempty"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastModified  time.Time  `json:"last_modified"`
}

func (d *WorkingDocument) State() LifecycleState {
	switch {
	case d == nil:
		return StateNone
	case d.IsSigned:
		return StateSigned
	default:
		return StateDraft
	}
}

type FillRequest struct {
	OwnerID    string `json:"owner_id"`
	TemplateID string `json:"template_id"`
	Recipient  string `json:"recipient,omitempty"`
}

// RecordedAnswer is the last accepted answer for a question on one document.
type RecordedAnswer struct {
	DocumentID   string    `json:"document_id"`
	QuestionID   string    `json:"question_id"`
	QuestionText string    `json:"question_text"`
	Value        string    `json:"value"`
	Option       string    `json:"option,omitempty"`
	AnsweredAt   time.Time `json:"answered_at"`
}

// AnswerInput is one submitted answer. Value carries the decoded JSON payload
// (bool, string or number).
type AnswerInput struct {
	QuestionID string `json:"question_id"`
	Value      any    `json:"answer"`
	Option     string `json:"option,omitempty"`
}

type AnswerResult struct {
	Document      *WorkingDocument `json:"document"`
	DocURL        string           `json:"doc_url"`
	IsSigned      bool             `json:"is_signed"`
	Delivered     bool             `json:"delivered"`
	DeliveryError string           `json:"delivery_error,omitempty"`
}

// SignedDocumentEvent is handed to the delivery channel after signing.
type SignedDocumentEvent struct {
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	TemplateID string    `json:"template_id"`
	Name       string    `json:"name"`
	URL        string    `json:"url"`
	StorageKey string    `json:"storage_key"`
	Recipient  string    `json:"recipient,omitempty"`
	SignedAt   time.Time `json:"signed_at"`
}
