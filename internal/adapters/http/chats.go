package httpadapter

import (
	"net/http"
	"strings"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// sendMessage accepts JSON or a multipart form with an optional
// "attachment" file part.
func (rt *Router) sendMessage(w http.ResponseWriter, r *http.Request) {
	const op = "send message"
	principal, _ := principalFromContext(r.Context())

	var req struct {
		RecipientID string `json:"recipient_id"`
		Channel     string `json:"channel"`
		PropertyID  string `json:"property_id"`
		Text        string `json:"text"`
	}
	in := domain.SendMessageInput{SenderID: principal.UserID}

	if mediaType(r) == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, rt.maxUploadBytes())
		if err := r.ParseMultipartForm(rt.maxUploadBytes()); err != nil {
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, op, err))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		req.RecipientID = r.FormValue("recipient_id")
		req.Channel = r.FormValue("channel")
		req.PropertyID = r.FormValue("property_id")
		req.Text = r.FormValue("text")

		file, header, err := r.FormFile("attachment")
		switch {
		case err == nil:
			defer file.Close()
			in.Attachment = &domain.Attachment{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		case err != http.ErrMissingFile:
			writeError(w, r, domain.WrapError(domain.ErrInvalidInput, op, err))
			return
		}
	} else if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	in.RecipientID = strings.TrimSpace(req.RecipientID)
	in.Channel = domain.ChatChannel(strings.TrimSpace(req.Channel))
	in.PropertyID = strings.TrimSpace(req.PropertyID)
	in.Text = req.Text

	result, err := rt.svc.Chat.SendMessage(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.svc.Metrics != nil {
		rt.svc.Metrics.RecordChatMessage(serviceName, string(in.Channel), result.Relayed)
	}
	writeJSON(w, http.StatusCreated, result)
}

func (rt *Router) listConversations(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	conversations, err := rt.svc.Chat.ListConversations(r.Context(), principal.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

func (rt *Router) listMessages(w http.ResponseWriter, r *http.Request) {
	principal, _ := principalFromContext(r.Context())
	conversationID, err := pathParam(r, "conversationID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	after, err := queryInt(r, "after", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}

	messages, err := rt.svc.Chat.ListMessages(r.Context(), principal.UserID, conversationID, after, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}
