package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/property-desk/internal/core/domain"
	"github.com/kirillkom/property-desk/internal/infrastructure/catalog/yamlfile"
)

func (rt *Router) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := rt.svc.Templates.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": templates})
}

// createTemplate onboards a PDF form. The multipart body carries the PDF in
// "file" and a JSON or YAML definition in "definition".
func (rt *Router) createTemplate(w http.ResponseWriter, r *http.Request) {
	const op = "create template"
	r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes())
	if err := r.ParseMultipartForm(rt.maxUploadBytes()); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, op, err))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	definition := strings.TrimSpace(r.FormValue("definition"))
	if definition == "" {
		writeError(w, r, domain.NewError(domain.ErrInvalidInput, op, "multipart field 'definition' is required"))
		return
	}
	tpl, err := yamlfile.DecodeTemplate(strings.NewReader(definition))
	if err != nil {
		writeError(w, r, err)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.NewError(domain.ErrInvalidInput, op, "multipart field 'file' is required"))
		return
	}
	defer file.Close()

	stored, err := rt.svc.Templates.Onboard(r.Context(), tpl, file)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (rt *Router) getTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, err := pathParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	tpl, err := rt.svc.Templates.Get(r.Context(), templateID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

func (rt *Router) pageLocations(w http.ResponseWriter, r *http.Request) {
	templateID, page, ok := rt.templatePage(w, r)
	if !ok {
		return
	}
	locations, err := rt.svc.Locator.LocationsForPage(r.Context(), templateID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"template_id": templateID,
		"page":        page,
		"locations":   locations,
	})
}

func (rt *Router) pageText(w http.ResponseWriter, r *http.Request) {
	templateID, page, ok := rt.templatePage(w, r)
	if !ok {
		return
	}
	text, err := rt.svc.Templates.PageText(r.Context(), templateID, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"template_id": templateID,
		"page":        page,
		"text":        text,
	})
}

func (rt *Router) questionLocations(w http.ResponseWriter, r *http.Request) {
	questionID, err := pathParam(r, "questionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	locations, err := rt.svc.Locator.LocationsForQuestion(r.Context(), questionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"question_id": questionID,
		"locations":   locations,
	})
}

func (rt *Router) templatePage(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	templateID, err := pathParam(r, "templateID")
	if err != nil {
		writeError(w, r, err)
		return "", 0, false
	}
	page, err := pathInt(r, "page")
	if err != nil {
		writeError(w, r, err)
		return "", 0, false
	}
	return templateID, page, true
}

func (rt *Router) maxUploadBytes() int64 {
	if rt.cfg.APIMaxUploadBytes > 0 {
		return rt.cfg.APIMaxUploadBytes
	}
	return 20 << 20
}
