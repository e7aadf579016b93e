package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// ErrMalformed is returned when an API payload lacks the message graph.
var ErrMalformed = errors.New("malformed conversation payload")

type apiConversation struct {
	Title      string             `json:"title"`
	CreateTime *float64           `json:"create_time"`
	UpdateTime *float64           `json:"update_time"`
	Mapping    map[string]apiNode `json:"mapping"`
}

type apiNode struct {
	ID       string      `json:"id"`
	Parent   *string     `json:"parent"`
	Children []string    `json:"children"`
	Message  *apiMessage `json:"message"`
}

type apiMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    struct {
		ContentType string            `json:"content_type"`
		Parts       []json.RawMessage `json:"parts"`
		Text        string            `json:"text"`
	} `json:"content"`
	Metadata struct {
		Attachments []apiAttachment `json:"attachments"`
	} `json:"metadata"`
}

type apiAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
}

// apiPart is an object entry of content.parts.
type apiPart struct {
	ContentType  string `json:"content_type"`
	AssetPointer string `json:"asset_pointer"`
	Text         string `json:"text"`
}

var assetSchemes = []string{"file-service://", "sediment://"}

// FromAPI converts the backend's conversation resource into a Record. A
// resource without both a title and a mapping is malformed.
// Messages follow the mapping graph: roots ordered by creation time, then
// depth-first through children in their listed order.
func FromAPI(id string, raw []byte) (Record, error) {
	var conv apiConversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(conv.Mapping) == 0 {
		return Record{}, fmt.Errorf("%w: no mapping", ErrMalformed)
	}
	if conv.Title == "" {
		return Record{}, fmt.Errorf("%w: no title", ErrMalformed)
	}

	title := CollapseSpace(conv.Title)
	if title == "" {
		title = FallbackTitle(id)
	}
	rec := Record{
		ID:        id,
		Title:     Truncate(title, MaxTitle),
		Source:    SourceAPI,
		CreatedAt: epoch(conv.CreateTime),
		UpdatedAt: epoch(conv.UpdateTime),
	}

	for _, key := range walkOrder(conv.Mapping) {
		node := conv.Mapping[key]
		if node.Message == nil {
			continue
		}
		rec.Append(convertMessage(id, node.Message))
	}
	return rec, nil
}

func walkOrder(mapping map[string]apiNode) []string {
	var roots []string
	for key, n := range mapping {
		if n.Parent == nil || *n.Parent == "" {
			roots = append(roots, key)
			continue
		}
		if _, ok := mapping[*n.Parent]; !ok {
			roots = append(roots, key)
		}
	}
	sort.Slice(roots, func(i, j int) bool {
		ti, tj := nodeTime(mapping[roots[i]]), nodeTime(mapping[roots[j]])
		if ti != tj {
			return ti < tj
		}
		return roots[i] < roots[j]
	})

	order := make([]string, 0, len(mapping))
	visited := make(map[string]bool, len(mapping))
	var visit func(key string)
	visit = func(key string) {
		if visited[key] {
			return
		}
		n, ok := mapping[key]
		if !ok {
			return
		}
		visited[key] = true
		order = append(order, key)
		for _, c := range n.Children {
			visit(c)
		}
	}
	for _, r := range roots {
		visit(r)
	}
	if len(order) < len(mapping) {
		// nodes only reachable through a cycle
		rest := make([]string, 0, len(mapping)-len(order))
		for key := range mapping {
			if !visited[key] {
				rest = append(rest, key)
			}
		}
		sort.Strings(rest)
		for _, key := range rest {
			visit(key)
		}
	}
	return order
}

func nodeTime(n apiNode) float64 {
	if n.Message == nil || n.Message.CreateTime == nil {
		return 0
	}
	return *n.Message.CreateTime
}

func convertMessage(conversationID string, m *apiMessage) Message {
	msg := Message{
		Role:      NormalizeRole(m.Author.Role),
		CreatedAt: epoch(m.CreateTime),
	}

	var texts []string
	for _, raw := range m.Content.Parts {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if strings.TrimSpace(s) != "" {
				texts = append(texts, s)
			}
			continue
		}
		var p apiPart
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if fid := assetFileID(p.AssetPointer); fid != "" {
			msg.addAttachment(AttachmentRef{FileID: fid, ConversationID: conversationID})
			continue
		}
		if strings.TrimSpace(p.Text) != "" {
			texts = append(texts, p.Text)
		}
	}
	if len(m.Content.Parts) == 0 && strings.TrimSpace(m.Content.Text) != "" {
		texts = append(texts, m.Content.Text)
	}
	msg.Text = strings.TrimSpace(strings.Join(texts, "\n"))

	for _, a := range m.Metadata.Attachments {
		msg.addAttachment(AttachmentRef{
			FileID:         a.ID,
			FileName:       a.Name,
			MimeType:       a.MimeType,
			ConversationID: conversationID,
		})
	}
	return msg
}

// assetFileID extracts the file id from an asset pointer.
func assetFileID(ptr string) string {
	for _, s := range assetSchemes {
		if strings.HasPrefix(ptr, s) {
			return strings.TrimPrefix(ptr, s)
		}
	}
	return ""
}

func epoch(f *float64) time.Time {
	if f == nil || *f <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(*f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
