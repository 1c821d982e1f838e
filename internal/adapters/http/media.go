package httpadapter

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// serveMedia streams stored objects under the public media prefix.
func (rt *Router) serveMedia(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if unescaped, err := url.PathUnescape(key); err == nil {
		key = unescaped
	}
	if key == "" {
		writeError(w, r, domain.NewError(domain.ErrInvalidInput, "serve media", "object key is required"))
		return
	}
	if rt.svc.Media == nil {
		writeError(w, r, domain.NewError(domain.ErrNotFound, "serve media", key))
		return
	}

	body, err := rt.svc.Media.Open(r.Context(), key)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	contentType := mime.TypeByExtension(strings.ToLower(path.Ext(key)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}
