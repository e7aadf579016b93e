package parse

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleUnknown   Role = "unknown"
	RoleError     Role = "error"
)

// NormalizeRole maps an author role onto the known set.
func NormalizeRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleAssistant, RoleSystem, RoleError:
		return r
	case "tool":
		return RoleAssistant
	default:
		return RoleUnknown
	}
}

type AttachmentRef struct {
	FileID         string `json:"file_id"`
	FileName       string `json:"file_name,omitempty"`
	MimeType       string `json:"mime_type,omitempty"`
	ConversationID string `json:"conversation_id"`
	// SourceURL is the address the page rendered the attachment from, when
	// it was scraped rather than declared by the API.
	SourceURL string `json:"source_url,omitempty"`
}

type Message struct {
	Role        Role            `json:"role"`
	Text        string          `json:"text"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// Empty reports whether the message carries nothing worth keeping.
func (m Message) Empty() bool {
	return strings.TrimSpace(m.Text) == "" && len(m.Attachments) == 0
}

// Source says which path produced a Record.
type Source string

const (
	SourceAPI   Source = "api"
	SourceDOM   Source = "dom"
	SourceError Source = "error"
)

// Record is the canonical form of one conversation.
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Source    Source    `json:"source"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
	Messages  []Message `json:"messages"`
}

// Append adds m unless it is empty.
func (r *Record) Append(m Message) {
	if m.Empty() {
		return
	}
	r.Messages = append(r.Messages, m)
}

// Attachments returns every attachment of the record in message order,
// deduplicated by file id.
func (r *Record) Attachments() []AttachmentRef {
	seen := make(map[string]bool)
	var out []AttachmentRef
	for _, m := range r.Messages {
		for _, a := range m.Attachments {
			if seen[a.FileID] {
				continue
			}
			seen[a.FileID] = true
			out = append(out, a)
		}
	}
	return out
}

// ErrorRecord is the record returned when no path could read a conversation.
func ErrorRecord(id string, err error) Record {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Record{
		ID:     id,
		Title:  FallbackTitle(id),
		Source: SourceError,
		Messages: []Message{{
			Role: RoleError,
			Text: "Error retrieving content: " + msg,
		}},
	}
}

const MaxTitle = 100

func FallbackTitle(id string) string {
	return Truncate("Conversation_"+id, MaxTitle)
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// addAttachment appends a unless its file id is already on the message.
func (m *Message) addAttachment(a AttachmentRef) {
	if a.FileID == "" {
		return
	}
	for _, have := range m.Attachments {
		if have.FileID == a.FileID {
			if have.FileName == "" || have.MimeType == "" {
				m.mergeAttachment(a)
			}
			return
		}
	}
	m.Attachments = append(m.Attachments, a)
}

func (m *Message) mergeAttachment(a AttachmentRef) {
	for i := range m.Attachments {
		if m.Attachments[i].FileID != a.FileID {
			continue
		}
		if m.Attachments[i].FileName == "" {
			m.Attachments[i].FileName = a.FileName
		}
		if m.Attachments[i].MimeType == "" {
			m.Attachments[i].MimeType = a.MimeType
		}
	}
}
