package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/core/ports"
)

const (
	checkmarkYOffset  = 6.0
	textYOffset       = 2.0
	defaultFontSize   = 10.0
	minFontSize       = 4.0
	checkmarkFontSize = 12.0
	lineSpacing       = 1.2
	// Average Helvetica glyph advance as a fraction of the font size.
	avgGlyphWidth = 0.5
)

// OverlayItem is one validated answer bound to its question.
type OverlayItem struct {
	Question domain.Question
	Answer   domain.AnswerInput

	checked bool
	option  string
	text    string
}

// Display returns the value recorded for the answer.
func (it OverlayItem) Display() string {
	switch {
	case it.option != "":
		return it.option
	case it.checked:
		return "true"
	case it.text != "":
		return it.text
	}
	if text, ok := answerText(it.Answer.Value); ok {
		return text
	}
	if b, ok := it.Answer.Value.(bool); ok {
		return strconv.FormatBool(b)
	}
	return ""
}

type OverlayRenderer struct {
	storage   ports.ObjectStorage
	inspector ports.PDFInspector
	stamper   ports.PDFStamper
}

func NewOverlayRenderer(
	storage ports.ObjectStorage,
	inspector ports.PDFInspector,
	stamper ports.PDFStamper,
) *OverlayRenderer {
	return &OverlayRenderer{
		storage:   storage,
		inspector: inspector,
		stamper:   stamper,
	}
}

// Prepare validates an answer against every location of its question.
// Nothing is read or written.
func (r *OverlayRenderer) Prepare(question domain.Question, answer domain.AnswerInput) (OverlayItem, error) {
	const op = "validate answer"
	item := OverlayItem{Question: question, Answer: answer}

	var needsCheck, needsOption, needsText bool
	for _, loc := range question.Locations {
		switch loc.InputKind {
		case domain.InputSingleCheckbox:
			needsCheck = true
		case domain.InputMultipleCheckbox:
			needsCheck = true
			needsOption = true
		default:
			needsText = true
		}
	}

	if needsCheck {
		checked, ok := answer.Value.(bool)
		if !ok || !checked {
			return OverlayItem{}, domain.NewError(domain.ErrInvalidInput, op, fmt.Sprintf("question %s expects answer true for a checkbox", question.ID))
		}
		item.checked = true
	}
	if needsOption {
		option := strings.TrimSpace(answer.Option)
		if option == "" {
			return OverlayItem{}, domain.NewError(domain.ErrInvalidInput, op, fmt.Sprintf("question %s expects an option value", question.ID))
		}
		if !hasOption(question, option) {
			return OverlayItem{}, domain.NewError(domain.ErrInvalidInput, op, fmt.Sprintf("question %s has no option %q", question.ID, option))
		}
		item.option = option
	}
	if needsText {
		text, ok := answerText(answer.Value)
		if !ok || strings.TrimSpace(text) == "" {
			return OverlayItem{}, domain.NewError(domain.ErrInvalidInput, op, fmt.Sprintf("question %s expects a non-empty text answer", question.ID))
		}
		item.text = text
	}
	return item, nil
}

// Apply stamps prepared items onto the working copy and overwrites it in
// storage. When the working copy does not exist yet the template original is
// used as the base.
func (r *OverlayRenderer) Apply(
	ctx context.Context,
	doc *domain.WorkingDocument,
	tpl *domain.Template,
	items []OverlayItem,
) (string, error) {
	const op = "apply overlay"

	sourceKey := doc.StorageKey
	exists, err := r.storage.Exists(ctx, doc.StorageKey)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorage, op, err)
	}
	if !exists {
		sourceKey = tpl.FileKey
	}

	data, err := r.read(ctx, sourceKey)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorage, op, err)
	}

	info, err := r.inspector.Inspect(ctx, data)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorage, op, fmt.Errorf("inspect %s: %w", sourceKey, err))
	}

	marks := make([]domain.Mark, 0, len(items))
	for _, item := range items {
		marks = append(marks, PlanMarks(item, info)...)
	}

	out := data
	if len(marks) > 0 {
		out, err = r.stamper.Stamp(ctx, data, marks)
		if err != nil {
			return "", domain.WrapError(domain.ErrStorage, op, fmt.Errorf("stamp %s: %w", doc.StorageKey, err))
		}
	}

	if len(marks) > 0 || !exists {
		if err := r.storage.Save(ctx, doc.StorageKey, bytes.NewReader(out)); err != nil {
			return "", domain.WrapError(domain.ErrStorage, op, err)
		}
	}
	return r.storage.URL(doc.StorageKey), nil
}

func (r *OverlayRenderer) read(ctx context.Context, key string) ([]byte, error) {
	rc, err := r.storage.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// PlanMarks converts a prepared answer into marks in bottom-left page
// coordinates. Locations without area are skipped, and so are locations on
// pages the document does not have.
func PlanMarks(item OverlayItem, info domain.PageInfo) []domain.Mark {
	marks := make([]domain.Mark, 0, len(item.Question.Locations))
	for _, loc := range item.Question.Locations {
		if loc.Rect.Empty() {
			continue
		}
		height := info.Height(loc.Page)
		if height <= 0 {
			slog.Warn("overlay_page_out_of_range",
				"question_id", item.Question.ID,
				"page", loc.Page,
				"page_count", info.PageCount,
			)
			continue
		}

		switch loc.InputKind {
		case domain.InputSingleCheckbox:
			marks = append(marks, checkMark(loc, height))
		case domain.InputMultipleCheckbox:
			if loc.Value == item.option {
				marks = append(marks, checkMark(loc, height))
			}
		case domain.InputMultiline:
			marks = append(marks, multilineMarks(loc, height, item.text)...)
		default:
			size := fitFontSize(loc.Rect)
			marks = append(marks, domain.Mark{
				Page:     loc.Page,
				X:        loc.Rect.StartX,
				Y:        height - loc.Rect.EndY + textYOffset,
				Text:     item.text,
				FontSize: size,
			})
		}
	}
	return marks
}

func checkMark(loc domain.AnswerLocation, pageHeight float64) domain.Mark {
	return domain.Mark{
		Page:      loc.Page,
		X:         loc.Rect.StartX,
		Y:         pageHeight - loc.Rect.EndY + checkmarkYOffset,
		Checkmark: true,
		FontSize:  checkmarkFontSize,
	}
}

// multilineMarks wraps text to the rectangle width. A single line sits on the
// same baseline as single-line answers; more lines flow down from the top.
func multilineMarks(loc domain.AnswerLocation, pageHeight float64, text string) []domain.Mark {
	size := fitFontSize(loc.Rect)
	lines := WrapText(text, loc.Rect.Width(), size)
	if len(lines) == 1 {
		return []domain.Mark{{
			Page:     loc.Page,
			X:        loc.Rect.StartX,
			Y:        pageHeight - loc.Rect.EndY + textYOffset,
			Text:     lines[0],
			FontSize: size,
		}}
	}

	marks := make([]domain.Mark, 0, len(lines))
	y := pageHeight - loc.Rect.StartY - size
	for _, line := range lines {
		marks = append(marks, domain.Mark{
			Page:     loc.Page,
			X:        loc.Rect.StartX,
			Y:        y,
			Text:     line,
			FontSize: size,
		})
		y -= size * lineSpacing
	}
	return marks
}

func fitFontSize(rect domain.Rect) float64 {
	h := rect.Height()
	if h <= 0 || h >= defaultFontSize {
		return defaultFontSize
	}
	return math.Max(h, minFontSize)
}

// WrapText greedily breaks text into lines no wider than width. Words longer
// than a line are kept whole. Explicit newlines are preserved.
func WrapText(text string, width, fontSize float64) []string {
	maxRunes := int(width / (fontSize * avgGlyphWidth))
	if maxRunes < 1 {
		maxRunes = 1
	}

	lines := make([]string, 0)
	for _, paragraph := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		current := words[0]
		for _, w := range words[1:] {
			if utf8.RuneCountInString(current)+1+utf8.RuneCountInString(w) > maxRunes {
				lines = append(lines, current)
				current = w
				continue
			}
			current += " " + w
		}
		lines = append(lines, current)
	}

	for len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func hasOption(q domain.Question, option string) bool {
	for _, loc := range q.Locations {
		if loc.InputKind == domain.InputMultipleCheckbox && loc.Value == option {
			return true
		}
	}
	return false
}

func answerText(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	default:
		return "", false
	}
}
