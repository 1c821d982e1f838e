package httpadapter

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers {"error": reason}. Internal failures are logged with
// their full chain and reported with a generic reason.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
		if status == http.StatusServiceUnavailable {
			writeJSON(w, status, map[string]string{"error": "temporarily unavailable, retry later"})
			return
		}
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": errorReason(err)})
}

// errorReason drops the "op: kind: " prefixes added by domain.WrapError.
func errorReason(err error) string {
	msg := err.Error()
	for _, kind := range []error{
		domain.ErrInvalidInput, domain.ErrUnauthorized, domain.ErrForbidden,
		domain.ErrNotFound, domain.ErrConflict,
	} {
		if !errors.Is(err, kind) {
			continue
		}
		marker := ": " + kind.Error() + ": "
		if i := strings.LastIndex(msg, marker); i >= 0 {
			return msg[i+len(marker):]
		}
	}
	return msg
}
