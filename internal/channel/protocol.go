// Package channel is the JSON control surface: a request/response protocol
// an external UI uses to drive listing, deletion, reading and downloads.
package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

type Action string

const (
	ActionList     Action = "listConversations"
	ActionDelete   Action = "deleteConversation"
	ActionRead     Action = "readConversationContent"
	ActionDownload Action = "downloadAttachment"
)

type Request struct {
	Seq            uint64 `json:"seq,omitempty"`
	Action         Action `json:"action"`
	ID             string `json:"id,omitempty"`
	FileID         string `json:"fileId,omitempty"`
	FileName       string `json:"fileName,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MimeType       string `json:"mimeType,omitempty"`
	SourceURL      string `json:"sourceUrl,omitempty"`
}

type Response struct {
	Seq     uint64     `json:"seq,omitempty"`
	Success bool       `json:"success"`
	Error   string     `json:"error,omitempty"`
	Kind    chain.Kind `json:"kind,omitempty"`
	Routine bool       `json:"routine,omitempty"`
	Status  int        `json:"status,omitempty"`

	Conversations []locate.Summary `json:"conversations,omitempty"`
	Method        string           `json:"method,omitempty"`
	Content       *parse.Record    `json:"content,omitempty"`
	Filename      string           `json:"filename,omitempty"`
	MimeType      string           `json:"mimeType,omitempty"`
	DataArray     Bytes            `json:"dataArray,omitempty"`
}

// failure converts an unsuccessful response back into a Failure.
func (r Response) failure() *chain.Failure {
	kind := r.Kind
	if kind == "" {
		kind = chain.Unexpected
	}
	msg := r.Error
	if msg == "" {
		msg = "request failed"
	}
	return &chain.Failure{Kind: kind, Message: msg, Routine: r.Routine, Status: r.Status}
}

func failed(f *chain.Failure) Response {
	return Response{Error: f.Error(), Kind: f.Kind, Routine: f.Routine, Status: f.Status}
}

// Bytes is binary data carried as a JSON array of numbers, since the
// channel carries JSON only.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.Grow(len(b)*4 + 2)
	buf.WriteByte('[')
	for i, v := range b {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Itoa(int(v)))
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	var nums []int
	if err := json.Unmarshal(data, &nums); err != nil {
		return fmt.Errorf("byte array: %w", err)
	}
	out := make([]byte, len(nums))
	for i, n := range nums {
		if n < 0 || n > 255 {
			return fmt.Errorf("byte array: value %d at %d out of range", n, i)
		}
		out[i] = byte(n)
	}
	*b = out
	return nil
}
