package usecase

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/core/ports"
)

type TemplateCatalogUseCase struct {
	catalog   ports.TemplateCatalog
	storage   ports.ObjectStorage
	inspector ports.PDFInspector
}

func NewTemplateCatalogUseCase(
	catalog ports.TemplateCatalog,
	storage ports.ObjectStorage,
	inspector ports.PDFInspector,
) *TemplateCatalogUseCase {
	return &TemplateCatalogUseCase{
		catalog:   catalog,
		storage:   storage,
		inspector: inspector,
	}
}

// Onboard stores the original PDF and upserts the template with its locator
// index. The page count always comes from the PDF itself.
func (uc *TemplateCatalogUseCase) Onboard(ctx context.Context, tpl *domain.Template, original io.Reader) (*domain.Template, error) {
	const op = "onboard template"
	if tpl == nil {
		return nil, domain.NewError(domain.ErrInvalidInput, op, "template is required")
	}
	if original == nil {
		return nil, domain.NewError(domain.ErrInvalidInput, op, "template pdf is required")
	}

	data, err := io.ReadAll(original)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("read pdf: %w", err))
	}
	info, err := uc.inspector.Inspect(ctx, data)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("inspect pdf: %w", err))
	}

	if strings.TrimSpace(tpl.ID) == "" {
		tpl.ID = uuid.NewString()
	}
	tpl.PageCount = info.PageCount
	if err := tpl.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if existing, err := uc.catalog.GetTemplate(ctx, tpl.ID); err == nil {
		tpl.CreatedAt = existing.CreatedAt
	} else if domain.IsKind(err, domain.ErrNotFound) {
		tpl.CreatedAt = now
	} else {
		return nil, err
	}
	tpl.UpdatedAt = now
	tpl.FileKey = templateFileKey(tpl)

	if err := uc.checkQuestionOwnership(ctx, tpl); err != nil {
		return nil, err
	}

	if err := uc.storage.Save(ctx, tpl.FileKey, bytes.NewReader(data)); err != nil {
		return nil, domain.WrapError(domain.ErrStorage, op, err)
	}
	if err := uc.catalog.UpsertTemplate(ctx, tpl); err != nil {
		return nil, fmt.Errorf("upsert template: %w", err)
	}
	return tpl, nil
}

// checkQuestionOwnership rejects question ids already used by another
// template, since the locator index resolves a question id to one template.
func (uc *TemplateCatalogUseCase) checkQuestionOwnership(ctx context.Context, tpl *domain.Template) error {
	for _, q := range tpl.Questions {
		owner, _, err := uc.catalog.FindQuestion(ctx, q.ID)
		switch {
		case err == nil && owner.ID != tpl.ID:
			return domain.NewError(domain.ErrConflict, "onboard template",
				fmt.Sprintf("question id %s already belongs to template %s", q.ID, owner.ID))
		case err != nil && !domain.IsKind(err, domain.ErrNotFound):
			return err
		}
	}
	return nil
}

func (uc *TemplateCatalogUseCase) List(ctx context.Context) ([]domain.Template, error) {
	return uc.catalog.ListTemplates(ctx)
}

func (uc *TemplateCatalogUseCase) Get(ctx context.Context, id string) (*domain.Template, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "get template", "template id is required")
	}
	return uc.catalog.GetTemplate(ctx, id)
}

// PageText extracts the plain text of one template page for previews.
func (uc *TemplateCatalogUseCase) PageText(ctx context.Context, templateID string, page int) (string, error) {
	const op = "template page text"
	tpl, err := uc.Get(ctx, templateID)
	if err != nil {
		return "", err
	}
	if page < 1 || page > tpl.PageCount {
		return "", domain.NewError(domain.ErrNotFound, op, fmt.Sprintf("page %d not in template %s", page, tpl.ID))
	}

	rc, err := uc.storage.Open(ctx, tpl.FileKey)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorage, op, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", domain.WrapError(domain.ErrStorage, op, err)
	}
	return uc.inspector.PageText(ctx, data, page)
}

type LocatorIndexUseCase struct {
	catalog ports.TemplateCatalog
}

func NewLocatorIndexUseCase(catalog ports.TemplateCatalog) *LocatorIndexUseCase {
	return &LocatorIndexUseCase{catalog: catalog}
}

func (uc *LocatorIndexUseCase) LocationsForPage(ctx context.Context, templateID string, page int) ([]domain.AnswerLocation, error) {
	if page < 1 {
		return nil, domain.NewError(domain.ErrInvalidInput, "locations for page", "page must be >= 1")
	}
	tpl, err := uc.catalog.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	return tpl.LocationsForPage(page), nil
}

func (uc *LocatorIndexUseCase) LocationsForQuestion(ctx context.Context, questionID string) ([]domain.AnswerLocation, error) {
	if strings.TrimSpace(questionID) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, "locations for question", "question id is required")
	}
	_, question, err := uc.catalog.FindQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AnswerLocation, len(question.Locations))
	copy(out, question.Locations)
	return out, nil
}
