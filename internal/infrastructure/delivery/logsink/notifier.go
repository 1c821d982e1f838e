package logsink

import (
	"context"
	"log/slog"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// Notifier records signed documents in the service log. It is the delivery
// channel when no broker is configured.
type Notifier struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

func (n *Notifier) NotifySigned(ctx context.Context, event domain.SignedDocumentEvent) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrDelivery, "log delivery", err)
	}
	n.logger.InfoContext(ctx, "document_signed",
		"document_id", event.DocumentID,
		"owner_id", event.OwnerID,
		"template_id", event.TemplateID,
		"url", event.URL,
		"signed_at", event.SignedAt,
	)
	return nil
}
