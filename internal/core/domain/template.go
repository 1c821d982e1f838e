package domain

import (
	"fmt"
	"strings"
	"time"
)

type InputKind string

const (
	InputSingleCheckbox   InputKind = "single-checkbox"
	InputMultipleCheckbox InputKind = "multiple-checkbox"
	InputSingleLine       InputKind = "single-line"
	InputMultiline        InputKind = "multiline"
)

func (k InputKind) Valid() bool {
	switch k {
	case InputSingleCheckbox, InputMultipleCheckbox, InputSingleLine, InputMultiline:
		return true
	default:
		return false
	}
}

func (k InputKind) IsCheckbox() bool {
	return k == InputSingleCheckbox || k == InputMultipleCheckbox
}

// answerShape groups kinds that accept the same answer value. Single-line
// and multiline locations both take text.
func (k InputKind) answerShape() string {
	if k.IsCheckbox() {
		return string(k)
	}
	return "text"
}

// SignatureQuestionText marks the question that finalizes a document.
const SignatureQuestionText = "Signature"

// Rect is expressed in top-left page coordinates.
type Rect struct {
	StartX float64 `json:"start_x"`
	StartY float64 `json:"start_y"`
	EndX   float64 `json:"end_x"`
	EndY   float64 `json:"end_y"`
}

func (r Rect) Width() float64  { return r.EndX - r.StartX }
func (r Rect) Height() float64 { return r.EndY - r.StartY }

// Empty reports a rectangle without drawable area.
func (r Rect) Empty() bool {
	return r.Width() <= 0 || r.Height() <= 0
}

type AnswerLocation struct {
	Page       int       `json:"page"`
	Rect       Rect      `json:"rect"`
	InputKind  InputKind `json:"input_kind"`
	OutputType string    `json:"output_type,omitempty"`
	Value      string    `json:"value,omitempty"`
	Position   string    `json:"position,omitempty"`
}

type Question struct {
	ID        string           `json:"id"`
	Text      string           `json:"text"`
	Locations []AnswerLocation `json:"locations"`
}

// IsSignature reports whether answering this question signs the document.
func (q Question) IsSignature() bool {
	return strings.EqualFold(strings.TrimSpace(q.Text), SignatureQuestionText)
}

type Template struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	DocType   string     `json:"doc_type"`
	StateTag  string     `json:"state_tag,omitempty"`
	FileKey   string     `json:"file_key"`
	PageCount int        `json:"page_count"`
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (t *Template) Question(id string) (Question, bool) {
	for _, q := range t.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// LocationsForPage returns the page's locations in question order.
func (t *Template) LocationsForPage(page int) []AnswerLocation {
	out := make([]AnswerLocation, 0)
	for _, q := range t.Questions {
		for _, loc := range q.Locations {
			if loc.Page == page {
				out = append(out, loc)
			}
		}
	}
	return out
}

// Validate checks catalog invariants before a template is stored.
func (t *Template) Validate() error {
	const op = "validate template"
	if strings.TrimSpace(t.ID) == "" {
		return NewError(ErrInvalidInput, op, "template id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return NewError(ErrInvalidInput, op, "template name is required")
	}

	type slot struct {
		page int
		rect Rect
	}
	seenSlots := make(map[slot]string)
	seenQuestions := make(map[string]struct{}, len(t.Questions))

	for _, q := range t.Questions {
		if strings.TrimSpace(q.ID) == "" {
			return NewError(ErrInvalidInput, op, "question id is required")
		}
		if _, dup := seenQuestions[q.ID]; dup {
			return NewError(ErrInvalidInput, op, fmt.Sprintf("duplicate question id %q", q.ID))
		}
		seenQuestions[q.ID] = struct{}{}

		for i, loc := range q.Locations {
			if !loc.InputKind.Valid() {
				return NewError(ErrInvalidInput, op, fmt.Sprintf("question %s location %d: unknown input kind %q", q.ID, i, loc.InputKind))
			}
			if first := q.Locations[0].InputKind; first.answerShape() != loc.InputKind.answerShape() {
				return NewError(ErrInvalidInput, op, fmt.Sprintf("question %s location %d: %s cannot share a question with %s", q.ID, i, loc.InputKind, first))
			}
			if loc.Page < 1 {
				return NewError(ErrInvalidInput, op, fmt.Sprintf("question %s location %d: page must be >= 1", q.ID, i))
			}
			if t.PageCount > 0 && loc.Page > t.PageCount {
				return NewError(ErrInvalidInput, op, fmt.Sprintf("question %s location %d: page %d exceeds page count %d", q.ID, i, loc.Page, t.PageCount))
			}
			if loc.InputKind == InputMultipleCheckbox && strings.TrimSpace(loc.Value) == "" {
				return NewError(ErrInvalidInput, op, fmt.Sprintf("question %s location %d: multiple-checkbox requires an option value", q.ID, i))
			}
			if loc.Rect.Empty() {
				continue
			}
			key := slot{page: loc.Page, rect: loc.Rect}
			if owner, dup := seenSlots[key]; dup {
				return NewError(ErrInvalidInput, op, fmt.Sprintf("question %s location %d: rectangle on page %d already used by question %s", q.ID, i, loc.Page, owner))
			}
			seenSlots[key] = q.ID
		}
	}
	return nil
}
