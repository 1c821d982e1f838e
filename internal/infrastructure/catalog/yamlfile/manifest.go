package yamlfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// Manifest describes templates to onboard and where their PDFs live.
type Manifest struct {
	Templates []TemplateEntry `yaml:"templates"`
}

type TemplateEntry struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	DocType   string          `yaml:"doc_type"`
	StateTag  string          `yaml:"state_tag"`
	PDF       string          `yaml:"pdf"`
	Questions []QuestionEntry `yaml:"questions"`
}

type QuestionEntry struct {
	ID        string          `yaml:"id"`
	Text      string          `yaml:"text"`
	Locations []LocationEntry `yaml:"locations"`
}

type LocationEntry struct {
	Page       int       `yaml:"page"`
	Rect       []float64 `yaml:"rect"`
	InputKind  string    `yaml:"input_kind"`
	OutputType string    `yaml:"output_type"`
	Value      string    `yaml:"value"`
	Position   string    `yaml:"position"`
}

// Load reads a manifest file. Relative PDF paths are resolved against the
// manifest's directory.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i := range m.Templates {
		pdf := m.Templates[i].PDF
		if pdf != "" && !filepath.IsAbs(pdf) {
			m.Templates[i].PDF = filepath.Join(base, pdf)
		}
	}
	return m, nil
}

func Decode(r io.Reader) (*Manifest, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		if err == io.EOF {
			return &m, nil
		}
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode manifest", err)
	}
	for i, entry := range m.Templates {
		if strings.TrimSpace(entry.PDF) == "" {
			return nil, domain.NewError(domain.ErrInvalidInput, "decode manifest", fmt.Sprintf("template %d (%s): pdf is required", i, entry.Name))
		}
	}
	return &m, nil
}

// Template converts an entry into a catalog template. Page count and file key
// are filled in on onboarding.
func (e TemplateEntry) Template() (*domain.Template, error) {
	tpl := &domain.Template{
		ID:        strings.TrimSpace(e.ID),
		Name:      strings.TrimSpace(e.Name),
		DocType:   strings.TrimSpace(e.DocType),
		StateTag:  strings.TrimSpace(e.StateTag),
		Questions: make([]domain.Question, 0, len(e.Questions)),
	}
	for _, qe := range e.Questions {
		q := domain.Question{ID: strings.TrimSpace(qe.ID), Text: qe.Text, Locations: make([]domain.AnswerLocation, 0, len(qe.Locations))}
		for j, le := range qe.Locations {
			if len(le.Rect) != 4 {
				return nil, domain.NewError(domain.ErrInvalidInput, "manifest template", fmt.Sprintf("question %s location %d: rect needs 4 numbers, got %d", q.ID, j, len(le.Rect)))
			}
			q.Locations = append(q.Locations, domain.AnswerLocation{
				Page:       le.Page,
				Rect:       domain.Rect{StartX: le.Rect[0], StartY: le.Rect[1], EndX: le.Rect[2], EndY: le.Rect[3]},
				InputKind:  domain.InputKind(strings.TrimSpace(le.InputKind)),
				OutputType: le.OutputType,
				Value:      le.Value,
				Position:   le.Position,
			})
		}
		tpl.Questions = append(tpl.Questions, q)
	}
	return tpl, nil
}

// DecodeTemplate parses a single template definition. JSON input is accepted
// as well since it is valid YAML.
func DecodeTemplate(r io.Reader) (*domain.Template, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var entry TemplateEntry
	if err := dec.Decode(&entry); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode template", err)
	}
	return entry.Template()
}
