package usecase

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

// conversationNamespace seeds name-based conversation ids.
var conversationNamespace = uuid.MustParse("5b0f5f9e-4d6c-4a53-9d55-2f0b9c7e61a4")

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == ".." {
		return "document.bin"
	}
	return base
}

func pdfName(name string) string {
	base := sanitizeFilename(name)
	if !strings.EqualFold(filepath.Ext(base), ".pdf") {
		base += ".pdf"
	}
	return base
}

func templateFileKey(tpl *domain.Template) string {
	return path.Join("templates", sanitizeFilename(tpl.ID), pdfName(tpl.Name))
}

func workingFileKey(ownerID string, tpl *domain.Template) string {
	return path.Join("working", sanitizeFilename(ownerID), sanitizeFilename(tpl.ID), pdfName(tpl.Name))
}

func attachmentKey(conversationID, filename string) string {
	return path.Join("chat", conversationID, uuid.NewString()+"_"+sanitizeFilename(filename))
}

// ConversationID derives a stable id so both participants land in one thread.
func ConversationID(key domain.ConversationKey) string {
	return uuid.NewSHA1(conversationNamespace, []byte(key.Canonical())).String()
}

// RelayTopic builds the broker topic a recipient listens on.
func RelayTopic(channel domain.ChatChannel, recipientID, propertyID string) string {
	parts := []string{"chat", topicToken(string(channel)), topicToken(recipientID)}
	if strings.TrimSpace(propertyID) != "" {
		parts = append(parts, topicToken(propertyID))
	}
	return strings.Join(parts, ".")
}

func topicToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		default:
			return r
		}
	}, v)
}
