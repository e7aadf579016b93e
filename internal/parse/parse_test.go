package parse

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiFixture = `{
  "title": "Trip   planning",
  "create_time": 1700000000.5,
  "mapping": {
    "root": {"id": "root", "parent": null, "children": ["sys"], "message": null},
    "sys": {"id": "sys", "parent": "root", "children": ["u1"],
      "message": {"author": {"role": "system"}, "content": {"content_type": "text", "parts": [""]}}},
    "u1": {"id": "u1", "parent": "sys", "children": ["a1"],
      "message": {"author": {"role": "user"}, "create_time": 1700000001,
        "content": {"content_type": "multimodal_text", "parts": [
          {"content_type": "image_asset_pointer", "asset_pointer": "file-service://file-AAA"},
          "What is in this picture?",
          {"content_type": "image_asset_pointer", "asset_pointer": "file-service://file-AAA"}
        ]},
        "metadata": {"attachments": [
          {"id": "file-AAA", "name": "beach.png", "mime_type": "image/png"},
          {"id": "file-BBB", "name": "plan.pdf", "mime_type": "application/pdf"}
        ]}}},
    "a1": {"id": "a1", "parent": "u1", "children": [],
      "message": {"author": {"role": "assistant"}, "create_time": 1700000002,
        "content": {"content_type": "text", "parts": ["A beach.", "Sunny."]}}}
  }
}`

func TestFromAPIWalksMappingInOrder(t *testing.T) {
	rec, err := FromAPI("c1", []byte(apiFixture))
	require.NoError(t, err)

	assert.Equal(t, "Trip planning", rec.Title)
	assert.Equal(t, SourceAPI, rec.Source)
	require.Len(t, rec.Messages, 2, "empty system message must be dropped")

	u := rec.Messages[0]
	assert.Equal(t, RoleUser, u.Role)
	assert.Equal(t, "What is in this picture?", u.Text)
	require.Len(t, u.Attachments, 2)
	assert.Equal(t, AttachmentRef{FileID: "file-AAA", FileName: "beach.png", MimeType: "image/png", ConversationID: "c1"}, u.Attachments[0])
	assert.Equal(t, "file-BBB", u.Attachments[1].FileID)

	a := rec.Messages[1]
	assert.Equal(t, RoleAssistant, a.Role)
	assert.Equal(t, "A beach.\nSunny.", a.Text)
	assert.Equal(t, int64(1700000002), a.CreatedAt.Unix())
}

func TestFromAPIRejectsMissingTitleOrMapping(t *testing.T) {
	_, err := FromAPI("c1", []byte(`{"title":"x"}`))
	assert.True(t, errors.Is(err, ErrMalformed))

	_, err = FromAPI("c1", []byte(`{"mapping": {"u1": {"message": {"author": {"role": "user"}, "content": {"parts": ["hi"]}}}}}`))
	assert.ErrorIs(t, err, ErrMalformed)
	assert.ErrorContains(t, err, "no title")

	_, err = FromAPI("c1", []byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestFromAPISiblingRootsOrderedByTime(t *testing.T) {
	raw := `{"title": "  ", "mapping": {
	  "b": {"parent": null, "children": [], "message": {"author": {"role": "user"}, "create_time": 2, "content": {"parts": ["second"]}}},
	  "a": {"parent": "gone", "children": [], "message": {"author": {"role": "user"}, "create_time": 1, "content": {"parts": ["first"]}}}
	}}`
	rec, err := FromAPI("c9", []byte(raw))
	require.NoError(t, err)
	require.Len(t, rec.Messages, 2)
	assert.Equal(t, "first", rec.Messages[0].Text)
	assert.Equal(t, "Conversation_c9", rec.Title)
}

const domFixture = `<html><body>
<div class="conversation-title">  My   chat </div>
<div class="message-list">
  <article role="article"><p>Hello</p><p>there</p></article>
  <div class="message"><span>Answer</span><img src="https://files.example/download/file-XYZ?sig=1"><img src="data:image/png;base64,AA"></div>
  <div class="message">   </div>
  <div class="message"><img src="/static/pic.jpg"></div>
</div>
</body></html>`

func TestFromDOM(t *testing.T) {
	rec, err := FromDOM("c2", domFixture, DOMSelectors{
		Messages: []string{`[class*="message"]`, `[role="article"]`},
		Title:    `[class*="title"]`,
	})
	require.NoError(t, err)
	assert.Equal(t, "My chat", rec.Title)

	// .message-list is the outermost match and swallows its children
	require.Len(t, rec.Messages, 1)
	m := rec.Messages[0]
	assert.Equal(t, RoleUnknown, m.Role)
	assert.Equal(t, "Hello\nthere\nAnswer", m.Text)
	require.Len(t, m.Attachments, 2)
	assert.Equal(t, "file-XYZ", m.Attachments[0].FileID)
	assert.Equal(t, "https://files.example/download/file-XYZ?sig=1", m.Attachments[0].SourceURL)
	assert.True(t, strings.HasPrefix(m.Attachments[1].FileID, "img-"))
}

func TestFromDOMSeparateContainers(t *testing.T) {
	page := `<html><body>
<div role="article">one</div>
<div role="article"></div>
<div role="article">two</div>
</body></html>`
	rec, err := FromDOM("c3", page, DOMSelectors{Messages: []string{`[role="article"]`}, Title: `[class*="title"]`})
	require.NoError(t, err)
	assert.Equal(t, "Conversation_c3", rec.Title)
	require.Len(t, rec.Messages, 2)
	assert.Equal(t, "one", rec.Messages[0].Text)
	assert.Equal(t, "two", rec.Messages[1].Text)
	for _, m := range rec.Messages {
		assert.Equal(t, RoleUnknown, m.Role)
	}
}

func TestNoEmptyMessages(t *testing.T) {
	var r Record
	r.Append(Message{Role: RoleUser, Text: "  \n"})
	r.Append(Message{Role: RoleUser, Attachments: []AttachmentRef{{FileID: "f"}}})
	r.Append(Message{Role: RoleUser, Text: "x"})
	require.Len(t, r.Messages, 2)
	for _, m := range r.Messages {
		assert.False(t, m.Empty())
	}
}

func TestErrorRecord(t *testing.T) {
	r := ErrorRecord("c4", errors.New("boom"))
	require.Len(t, r.Messages, 1)
	assert.Equal(t, RoleError, r.Messages[0].Role)
	assert.Contains(t, r.Messages[0].Text, "boom")
	assert.Equal(t, SourceError, r.Source)
}

func TestTextHelpers(t *testing.T) {
	assert.Equal(t, "a b c", CollapseSpace("  a\n\tb   c "))
	assert.Equal(t, "héll", Truncate("héllo", 4))
	assert.Equal(t, RoleAssistant, NormalizeRole("Tool"))
	assert.Equal(t, RoleUnknown, NormalizeRole("critic"))
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`{"version":1,"run_id":"r","conversations":[{"id":"c","title":"t","source":"api","messages":[]}]}`))
	require.NoError(t, err)
	assert.Equal(t, "r", m.RunID)
	assert.NotNil(t, m.Attachments)

	_, err = ParseManifest([]byte(`{"version":9}`))
	assert.Error(t, err)
}
