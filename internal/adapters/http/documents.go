package httpadapter

import (
	"bytes"
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type documentResponse struct {
	*domain.WorkingDocument
	State domain.LifecycleState `json:"state"`
}

func newDocumentResponse(doc *domain.WorkingDocument) documentResponse {
	return documentResponse{WorkingDocument: doc, State: doc.State()}
}

func (rt *Router) requestFill(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	var req struct {
		TemplateID string `json:"template_id"`
		Recipient  string `json:"recipient"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := rt.svc.Documents.RequestFill(r.Context(), domain.FillRequest{
		OwnerID:    principal.UserID,
		TemplateID: req.TemplateID,
		Recipient:  req.Recipient,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	docs, err := rt.svc.Documents.ListDocuments(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]documentResponse, 0, len(docs))
	for i := range docs {
		out = append(out, newDocumentResponse(&docs[i]))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": out})
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	documentID, err := pathParam(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	doc, err := rt.svc.Documents.GetDocument(r.Context(), principal.UserID, documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (rt *Router) submitAnswer(w http.ResponseWriter, r *http.Request) {
	var answer domain.AnswerInput
	if err := decodeJSON(r, &answer); err != nil {
		writeError(w, r, err)
		return
	}
	rt.applyAnswers(w, r, []domain.AnswerInput{answer})
}

func (rt *Router) submitAnswers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers []domain.AnswerInput `json:"answers"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rt.applyAnswers(w, r, req.Answers)
}

func (rt *Router) applyAnswers(w http.ResponseWriter, r *http.Request, answers []domain.AnswerInput) {
	principal, _ := principalFromContext(r.Context())
	documentID, err := pathParam(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var result *domain.AnswerResult
	if len(answers) == 1 {
		result, err = rt.svc.Documents.SubmitAnswer(r.Context(), principal.UserID, documentID, answers[0])
	} else {
		result, err = rt.svc.Documents.SubmitAnswers(r.Context(), principal.UserID, documentID, answers)
	}
	rt.recordOverlay(result, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recordOverlay(result *domain.AnswerResult, err error) {
	if rt.svc.Metrics == nil {
		return
	}
	switch {
	case err == nil:
		rt.svc.Metrics.RecordOverlay(serviceName, "applied")
		if result != nil && result.IsSigned {
			rt.svc.Metrics.RecordSigned(serviceName, result.Delivered)
		}
	case mapErrorToHTTPStatus(err) < http.StatusInternalServerError:
		rt.svc.Metrics.RecordOverlay(serviceName, "rejected")
	default:
		rt.svc.Metrics.RecordOverlay(serviceName, "failed")
	}
}

func (rt *Router) listAnswers(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	documentID, err := pathParam(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	answers, err := rt.svc.Documents.ListAnswers(r.Context(), principal.UserID, documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document_id": documentID, "answers": answers})
}

func (rt *Router) exportAnswers(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	documentID, err := pathParam(r, "documentID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	// Buffered so a failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := rt.svc.Documents.ExportAnswers(r.Context(), principal.UserID, documentID, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": "answers_" + documentID + ".xlsx"}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// decodeJSON keeps numbers as json.Number so answers are validated against
// their question kind rather than float64.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "decode request", err)
	}
	return nil
}
