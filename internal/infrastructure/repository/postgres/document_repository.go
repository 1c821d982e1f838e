package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const documentColumns = `id, owner_id, template_id, name, storage_key, url, doc_type, state_tag, recipient,
	is_signed, delivered, delivery_error, signed_at, created_at, last_modified`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// ClaimWorkingDocument inserts doc unless the owner already has a copy of the
// template. The stored row is returned either way; created reports whether
// this call inserted it.
func (r *DocumentRepository) ClaimWorkingDocument(ctx context.Context, doc *domain.WorkingDocument) (*domain.WorkingDocument, bool, error) {
	result, err := r.db.ExecContext(ctx, `
INSERT INTO working_documents (
	id, owner_id, template_id, name, storage_key, url, doc_type, state_tag, recipient, created_at, last_modified
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (owner_id, template_id) DO NOTHING
`,
		doc.ID, doc.OwnerID, doc.TemplateID, doc.Name, doc.StorageKey, doc.URL,
		doc.DocType, doc.StateTag, doc.Recipient, doc.CreatedAt, doc.LastModified,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert working document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert working document rows affected: %w", err)
	}

	stored, err := r.GetByOwnerTemplate(ctx, doc.OwnerID, doc.TemplateID)
	if err != nil {
		return nil, false, err
	}
	return stored, rows == 1, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.WorkingDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
FROM working_documents
WHERE id = $1
`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByOwnerTemplate(ctx context.Context, ownerID, templateID string) (*domain.WorkingDocument, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+`
FROM working_documents
WHERE owner_id = $1 AND template_id = $2
`, ownerID, templateID)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get document", fmt.Errorf("owner=%s template=%s", ownerID, templateID))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.WorkingDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM working_documents
WHERE owner_id = $1
ORDER BY last_modified DESC
`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) ListUndelivered(ctx context.Context, limit int) ([]domain.WorkingDocument, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+documentColumns+`
FROM working_documents
WHERE is_signed AND NOT delivered
ORDER BY signed_at ASC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list undelivered documents: %w", err)
	}
	return collectDocuments(rows)
}

func (r *DocumentRepository) TouchModified(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE working_documents
SET last_modified = $2
WHERE id = $1
`, id, at)
	if err != nil {
		return fmt.Errorf("touch document: %w", err)
	}
	return requireRow(result, "touch document", id)
}

func (r *DocumentRepository) MarkSigned(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE working_documents
SET is_signed = TRUE, signed_at = $2, last_modified = $2
WHERE id = $1
`, id, at)
	if err != nil {
		return fmt.Errorf("mark document signed: %w", err)
	}
	return requireRow(result, "mark document signed", id)
}

func (r *DocumentRepository) RecordDelivery(ctx context.Context, id string, delivered bool, errMessage string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE working_documents
SET delivered = $2, delivery_error = $3
WHERE id = $1
`, id, delivered, errMessage)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return requireRow(result, "record delivery", id)
}

func (r *DocumentRepository) UpsertAnswer(ctx context.Context, answer domain.RecordedAnswer) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO document_answers (document_id, question_id, question_text, value, option_value, answered_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (document_id, question_id) DO UPDATE
SET question_text = EXCLUDED.question_text,
	value = EXCLUDED.value,
	option_value = EXCLUDED.option_value,
	answered_at = EXCLUDED.answered_at
`, answer.DocumentID, answer.QuestionID, answer.QuestionText, answer.Value, answer.Option, answer.AnsweredAt)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListAnswers(ctx context.Context, documentID string) ([]domain.RecordedAnswer, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, question_id, question_text, value, option_value, answered_at
FROM document_answers
WHERE document_id = $1
ORDER BY answered_at ASC, question_id ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	out := make([]domain.RecordedAnswer, 0)
	for rows.Next() {
		var a domain.RecordedAnswer
		if err := rows.Scan(&a.DocumentID, &a.QuestionID, &a.QuestionText, &a.Value, &a.Option, &a.AnsweredAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}

func requireRow(result sql.Result, op, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows == 0 {
		return domain.WrapError(domain.ErrNotFound, op, fmt.Errorf("id=%s", id))
	}
	return nil
}

func collectDocuments(rows *sql.Rows) ([]domain.WorkingDocument, error) {
	defer rows.Close()
	out := make([]domain.WorkingDocument, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func scanDocument(row rowScanner) (domain.WorkingDocument, error) {
	var doc domain.WorkingDocument
	var signedAt sql.NullTime
	err := row.Scan(
		&doc.ID,
		&doc.OwnerID,
		&doc.TemplateID,
		&doc.Name,
		&doc.StorageKey,
		&doc.URL,
		&doc.DocType,
		&doc.StateTag,
		&doc.Recipient,
		&doc.IsSigned,
		&doc.Delivered,
		&doc.DeliveryError,
		&signedAt,
		&doc.CreatedAt,
		&doc.LastModified,
	)
	if err != nil {
		return domain.WorkingDocument{}, err
	}
	if signedAt.Valid {
		t := signedAt.Time.UTC()
		doc.SignedAt = &t
	}
	return doc, nil
}
