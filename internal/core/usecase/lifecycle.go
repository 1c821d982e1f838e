package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/core/ports"
)

type DocumentLifecycleUseCase struct {
	catalog  ports.TemplateCatalog
	repo     ports.DocumentRepository
	storage  ports.ObjectStorage
	renderer *OverlayRenderer
	notifier ports.DeliveryNotifier
	locker   ports.KeyLocker
	exporter ports.AnswerExporter
	now      func() time.Time
}

func NewDocumentLifecycleUseCase(
	catalog ports.TemplateCatalog,
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	renderer *OverlayRenderer,
	notifier ports.DeliveryNotifier,
	locker ports.KeyLocker,
	exporter ports.AnswerExporter,
) *DocumentLifecycleUseCase {
	return &DocumentLifecycleUseCase{
		catalog:  catalog,
		repo:     repo,
		storage:  storage,
		renderer: renderer,
		notifier: notifier,
		locker:   locker,
		exporter: exporter,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// RequestFill returns the caller's working copy of a template, creating it on
// the first request. Signed documents are final and cannot be reopened.
func (uc *DocumentLifecycleUseCase) RequestFill(ctx context.Context, req domain.FillRequest) (*domain.WorkingDocument, error) {
	const op = "request fill"
	if strings.TrimSpace(req.OwnerID) == "" {
		return nil, domain.NewError(domain.ErrUnauthorized, op, "owner is required")
	}
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, op, "template_id is required")
	}

	tpl, err := uc.catalog.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}

	existing, err := uc.repo.GetByOwnerTemplate(ctx, req.OwnerID, tpl.ID)
	switch {
	case err == nil:
		return reuseWorkingDocument(existing)
	case !domain.IsKind(err, domain.ErrNotFound):
		return nil, err
	}

	unlock, err := uc.locker.Lock(ctx, "fill:"+req.OwnerID+":"+tpl.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, op, err)
	}
	defer unlock()

	now := uc.now()
	key := workingFileKey(req.OwnerID, tpl)
	candidate := &domain.WorkingDocument{
		ID:           uuid.NewString(),
		OwnerID:      req.OwnerID,
		TemplateID:   tpl.ID,
		Name:         tpl.Name,
		StorageKey:   key,
		URL:          uc.storage.URL(key),
		DocType:      tpl.DocType,
		StateTag:     tpl.StateTag,
		Recipient:    strings.TrimSpace(req.Recipient),
		CreatedAt:    now,
		LastModified: now,
	}

	doc, created, err := uc.repo.ClaimWorkingDocument(ctx, candidate)
	if err != nil {
		return nil, fmt.Errorf("claim working document: %w", err)
	}
	if !created {
		return reuseWorkingDocument(doc)
	}

	if err := uc.copyTemplate(ctx, doc, tpl); err != nil {
		return nil, err
	}
	return doc, nil
}

func reuseWorkingDocument(doc *domain.WorkingDocument) (*domain.WorkingDocument, error) {
	if doc.IsSigned {
		return nil, domain.NewError(domain.ErrConflict, "request fill", fmt.Sprintf("document %s is already signed", doc.ID))
	}
	return doc, nil
}

// copyTemplate shares the document lock with overlays. The claimed row is
// visible before the copy lands, so an answer may already have written the
// working file from the template; that file is kept.
func (uc *DocumentLifecycleUseCase) copyTemplate(ctx context.Context, doc *domain.WorkingDocument, tpl *domain.Template) error {
	const op = "copy template"
	unlock, err := uc.locker.Lock(ctx, "doc:"+doc.ID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	defer unlock()

	exists, err := uc.storage.Exists(ctx, doc.StorageKey)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, op, err)
	}
	if exists {
		return nil
	}

	src, err := uc.storage.Open(ctx, tpl.FileKey)
	if err != nil {
		return domain.WrapError(domain.ErrStorage, op, err)
	}
	defer src.Close()

	if err := uc.storage.Save(ctx, doc.StorageKey, src); err != nil {
		return domain.WrapError(domain.ErrStorage, op, err)
	}
	return nil
}

func (uc *DocumentLifecycleUseCase) SubmitAnswer(
	ctx context.Context,
	ownerID, documentID string,
	answer domain.AnswerInput,
) (*domain.AnswerResult, error) {
	return uc.SubmitAnswers(ctx, ownerID, documentID, []domain.AnswerInput{answer})
}

// SubmitAnswers validates every answer, stamps them in a single pass and
// signs the document when the signature question is among them.
func (uc *DocumentLifecycleUseCase) SubmitAnswers(
	ctx context.Context,
	ownerID, documentID string,
	answers []domain.AnswerInput,
) (*domain.AnswerResult, error) {
	const op = "submit answers"
	if len(answers) == 0 {
		return nil, domain.NewError(domain.ErrInvalidInput, op, "at least one answer is required")
	}

	doc, err := uc.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.IsSigned {
		return nil, domain.NewError(domain.ErrConflict, op, fmt.Sprintf("document %s is signed", doc.ID))
	}

	tpl, err := uc.catalog.GetTemplate(ctx, doc.TemplateID)
	if err != nil {
		return nil, err
	}

	items := make([]OverlayItem, 0, len(answers))
	signing := false
	for _, answer := range answers {
		question, ok := tpl.Question(answer.QuestionID)
		if !ok {
			return nil, domain.NewError(domain.ErrNotFound, op, fmt.Sprintf("question %s not in template %s", answer.QuestionID, tpl.ID))
		}
		item, err := uc.renderer.Prepare(question, answer)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		signing = signing || question.IsSignature()
	}

	unlock, err := uc.locker.Lock(ctx, "doc:"+doc.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, op, err)
	}
	defer unlock()

	// Another request may have signed it while we waited for the lock.
	doc, err = uc.repo.GetByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if doc.IsSigned {
		return nil, domain.NewError(domain.ErrConflict, op, fmt.Sprintf("document %s is signed", doc.ID))
	}

	url, err := uc.renderer.Apply(ctx, doc, tpl, items)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	if err := uc.repo.TouchModified(ctx, doc.ID, now); err != nil {
		return nil, fmt.Errorf("touch document: %w", err)
	}
	doc.LastModified = now
	doc.URL = url

	for _, item := range items {
		if err := uc.repo.UpsertAnswer(ctx, domain.RecordedAnswer{
			DocumentID:   doc.ID,
			QuestionID:   item.Question.ID,
			QuestionText: item.Question.Text,
			Value:        item.Display(),
			Option:       item.option,
			AnsweredAt:   now,
		}); err != nil {
			return nil, fmt.Errorf("record answer %s: %w", item.Question.ID, err)
		}
	}

	result := &domain.AnswerResult{Document: doc, DocURL: url}
	if !signing {
		return result, nil
	}

	if err := uc.repo.MarkSigned(ctx, doc.ID, now); err != nil {
		return nil, fmt.Errorf("mark signed: %w", err)
	}
	doc.IsSigned = true
	doc.SignedAt = &now
	result.IsSigned = true

	if err := uc.deliver(ctx, doc); err != nil {
		result.DeliveryError = err.Error()
		return result, nil
	}
	result.Delivered = true
	return result, nil
}

// deliver hands a signed document to the notifier and records the outcome.
// A failure never reverts the signature.
func (uc *DocumentLifecycleUseCase) deliver(ctx context.Context, doc *domain.WorkingDocument) error {
	signedAt := doc.LastModified
	if doc.SignedAt != nil {
		signedAt = *doc.SignedAt
	}
	sendErr := uc.notifier.NotifySigned(ctx, domain.SignedDocumentEvent{
		DocumentID: doc.ID,
		OwnerID:    doc.OwnerID,
		TemplateID: doc.TemplateID,
		Name:       doc.Name,
		URL:        doc.URL,
		StorageKey: doc.StorageKey,
		Recipient:  doc.Recipient,
		SignedAt:   signedAt,
	})
	if sendErr != nil {
		sendErr = domain.WrapError(domain.ErrDelivery, "deliver signed document", sendErr)
		slog.Warn("document_delivery_failed", "document_id", doc.ID, "owner_id", doc.OwnerID, "error", sendErr)
	}

	message := ""
	if sendErr != nil {
		message = sendErr.Error()
	}
	if err := uc.repo.RecordDelivery(ctx, doc.ID, sendErr == nil, message); err != nil {
		slog.Error("document_delivery_record_failed", "document_id", doc.ID, "error", err)
	}
	doc.Delivered = sendErr == nil
	doc.DeliveryError = message
	return sendErr
}

// RedeliverPending retries delivery for signed documents whose delivery
// failed earlier. It returns how many were delivered.
func (uc *DocumentLifecycleUseCase) RedeliverPending(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	pending, err := uc.repo.ListUndelivered(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list undelivered: %w", err)
	}

	delivered := 0
	var errs []error
	for i := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := uc.deliver(ctx, &pending[i]); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
	}
	return delivered, errors.Join(errs...)
}

func (uc *DocumentLifecycleUseCase) GetDocument(ctx context.Context, ownerID, documentID string) (*domain.WorkingDocument, error) {
	return uc.ownedDocument(ctx, ownerID, documentID)
}

func (uc *DocumentLifecycleUseCase) ListDocuments(ctx context.Context, ownerID string) ([]domain.WorkingDocument, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, domain.NewError(domain.ErrUnauthorized, "list documents", "owner is required")
	}
	return uc.repo.ListByOwner(ctx, ownerID)
}

func (uc *DocumentLifecycleUseCase) ListAnswers(ctx context.Context, ownerID, documentID string) ([]domain.RecordedAnswer, error) {
	doc, err := uc.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return nil, err
	}
	return uc.repo.ListAnswers(ctx, doc.ID)
}

func (uc *DocumentLifecycleUseCase) ExportAnswers(ctx context.Context, ownerID, documentID string, w io.Writer) error {
	doc, err := uc.ownedDocument(ctx, ownerID, documentID)
	if err != nil {
		return err
	}
	answers, err := uc.repo.ListAnswers(ctx, doc.ID)
	if err != nil {
		return err
	}
	if err := uc.exporter.ExportAnswers(ctx, doc, answers, w); err != nil {
		return fmt.Errorf("export answers: %w", err)
	}
	return nil
}

func (uc *DocumentLifecycleUseCase) ownedDocument(ctx context.Context, ownerID, documentID string) (*domain.WorkingDocument, error) {
	const op = "load document"
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, op, "document id is required")
	}
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.OwnerID != ownerID {
		return nil, domain.NewError(domain.ErrForbidden, op, fmt.Sprintf("document %s belongs to another user", documentID))
	}
	return doc, nil
}
