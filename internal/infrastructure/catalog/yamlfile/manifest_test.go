package yamlfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const sampleManifest = `
templates:
  - id: tpl-lease
    name: Residential Lease
    doc_type: lease
    state_tag: CA
    pdf: forms/lease.pdf
    questions:
      - id: q-pets
        text: Pets allowed?
        locations:
          - page: 1
            rect: [100, 700, 110, 720]
            input_kind: single-checkbox
      - id: q-sign
        text: Signature
        locations:
          - page: 2
            rect: [50, 700, 250, 715]
            input_kind: single-line
`

func TestLoadResolvesRelativePDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(m.Templates) != 1 {
		t.Fatalf("expected 1 template, got %d", len(m.Templates))
	}
	if want := filepath.Join(dir, "forms", "lease.pdf"); m.Templates[0].PDF != want {
		t.Fatalf("pdf path = %s, want %s", m.Templates[0].PDF, want)
	}

	tpl, err := m.Templates[0].Template()
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if tpl.ID != "tpl-lease" || len(tpl.Questions) != 2 {
		t.Fatalf("unexpected template %+v", tpl)
	}
	loc := tpl.Questions[0].Locations[0]
	if loc.InputKind != domain.InputSingleCheckbox || loc.Rect.EndY != 720 {
		t.Fatalf("unexpected location %+v", loc)
	}
	if !tpl.Questions[1].IsSignature() {
		t.Fatal("expected signature question")
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("templates:\n  - id: x\n    pdf: a.pdf\n    colour: red\n"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDecodeRequiresPDF(t *testing.T) {
	_, err := Decode(strings.NewReader("templates:\n  - id: x\n    name: Lease\n"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestTemplateRejectsShortRect(t *testing.T) {
	entry := TemplateEntry{ID: "t", Name: "n", PDF: "a.pdf", Questions: []QuestionEntry{
		{ID: "q", Locations: []LocationEntry{{Page: 1, Rect: []float64{1, 2, 3}}}},
	}}
	if _, err := entry.Template(); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestDecodeTemplateAcceptsJSON(t *testing.T) {
	tpl, err := DecodeTemplate(strings.NewReader(`{
		"id": "tpl-offer",
		"name": "Purchase Offer",
		"questions": [
			{"id": "q-price", "text": "Offer price", "locations": [
				{"page": 1, "rect": [72, 200, 300, 214], "input_kind": "single-line"}
			]}
		]
	}`))
	if err != nil {
		t.Fatalf("DecodeTemplate() error = %v", err)
	}
	if tpl.ID != "tpl-offer" || len(tpl.Questions) != 1 {
		t.Fatalf("unexpected template %+v", tpl)
	}
	if got := tpl.Questions[0].Locations[0].Rect; got.EndX != 300 || got.StartY != 200 {
		t.Fatalf("unexpected rect %+v", got)
	}
}

func TestDecodeTemplateRejectsGarbage(t *testing.T) {
	if _, err := DecodeTemplate(strings.NewReader("id: [")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
