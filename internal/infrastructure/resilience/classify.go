package resilience

import (
	"context"
	"errors"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// TransientClassifier builds the classifier shared by broker adapters.
// Caller cancellation is neither retried nor counted against the breaker,
// an open breaker and errors matched by transient are retried, and anything
// else fails fast but still counts.
func TransientClassifier(transient func(error) bool) ErrorClassifier {
	return func(err error) ErrorClassification {
		switch {
		case err == nil:
			return ErrorClassification{}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return ErrorClassification{Retryable: false, RecordFailure: false}
		case IsCircuitOpen(err):
			return ErrorClassification{Retryable: true, RecordFailure: true}
		case transient != nil && transient(err):
			return ErrorClassification{Retryable: true, RecordFailure: true}
		default:
			return ErrorClassification{Retryable: false, RecordFailure: true}
		}
	}
}

// WrapTemporary tags retryable failures with domain.ErrTemporary so the HTTP
// layer can answer 503 instead of 500.
func WrapTemporary(operation string, err error, classifier ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifier == nil {
		classifier = defaultClassifier
	}
	if classifier(err).Retryable || IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
