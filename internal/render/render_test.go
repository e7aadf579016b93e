package render

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/archive"
	"github.com/Zuo-Peng/chatsweep/internal/index"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

func indexOne(t *testing.T, rec parse.Record, files map[string]string) (*index.DB, string) {
	t.Helper()
	db, err := index.OpenDB(filepath.Join(t.TempDir(), "csw.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	a := archive.NewAssembler()
	require.NoError(t, a.AddJSON(archive.ManifestName, parse.Manifest{
		Version:       parse.ManifestVersion,
		ExportedAt:    at,
		BaseURL:       "https://chatgpt.com",
		Conversations: []parse.Record{rec},
		Attachments:   files,
	}))
	p, err := a.Save(t.TempDir(), at)
	require.NoError(t, err)
	_, err = index.IndexAll(db, filepath.Dir(p))
	require.NoError(t, err)
	return db, index.ConvKey(p, rec.ID)
}

func TestRenderConversationRoles(t *testing.T) {
	db, key := indexOne(t, parse.Record{ID: "c1", Title: "Mixed", Messages: []parse.Message{
		{Role: parse.RoleUser, Text: "hello"},
		{Role: parse.RoleAssistant, Text: "hi there"},
		{Role: parse.RoleSystem, Text: "be brief"},
		{Role: parse.RoleUnknown, Text: "scraped"},
		{Role: parse.RoleError, Text: "Error retrieving content: boom"},
	}}, nil)

	out, hitLine, err := RenderConversation(db, key, Options{HitMsgID: -1})
	require.NoError(t, err)
	assert.Equal(t, -1, hitLine)
	for _, label := range []string{"USER >", "ASST >", "SYS >", "UNKNOWN >", "ERROR >"} {
		assert.Contains(t, out, label)
	}
	assert.Contains(t, out, "Mixed [c1]")
	assert.Contains(t, out, "https://chatgpt.com/c/c1")
	assert.Contains(t, out, "  Error retrieving content: boom")
}

func TestRenderConversationWindowAndHit(t *testing.T) {
	rec := parse.Record{ID: "long", Title: "Long"}
	for i := range 30 {
		rec.Messages = append(rec.Messages, parse.Message{Role: parse.RoleUser, Text: fmt.Sprintf("line %d", i)})
	}
	db, key := indexOne(t, rec, nil)

	out, hitLine, err := RenderConversation(db, key, Options{HitMsgID: 15, Context: 2, Query: "line"})
	require.NoError(t, err)
	assert.Contains(t, out, "(13 messages before)")
	assert.Contains(t, out, "(12 messages after)")
	lines := strings.Split(out, "\n")
	require.Greater(t, len(lines), hitLine)
	assert.Contains(t, lines[hitLine], ">> USER")
	assert.Contains(t, out, colorBoldRed+"line"+colorReset)
}

func TestRenderConversationAttachments(t *testing.T) {
	db, key := indexOne(t, parse.Record{ID: "c1", Title: "Files", Messages: []parse.Message{
		{Role: parse.RoleUser, Text: "see attached", Attachments: []parse.AttachmentRef{
			{FileID: "file-1", FileName: "map.png"},
			{FileID: "file-2"},
		}},
	}}, map[string]string{"file-1": "file-1_map.png"})

	out, _, err := RenderConversation(db, key, Options{HitMsgID: -1})
	require.NoError(t, err)
	assert.Contains(t, out, "map.png -> file-1_map.png")
	assert.Contains(t, out, "file-2 "+colorDim+"(not in archive)")
}

func TestRenderConversationMissing(t *testing.T) {
	db, _ := indexOne(t, parse.Record{ID: "c1", Messages: []parse.Message{{Role: parse.RoleUser, Text: "x"}}}, nil)
	_, _, err := RenderConversation(db, "nope", Options{})
	assert.ErrorContains(t, err, "conversation not found")
}

func TestWrapLineSkipsEscapes(t *testing.T) {
	got := wrapLine(colorUser+"abcdef"+colorReset, 4)
	require.Len(t, got, 2)
	assert.Equal(t, colorUser+"abcd", got[0])
	assert.Equal(t, "ef"+colorReset, got[1])

	assert.Equal(t, []string{"日本", "語"}, wrapLine("日本語", 4))
}

func TestHighlightKeywordsSkipsOperators(t *testing.T) {
	got := highlightKeywords("cats and dogs", "cats AND dogs")
	assert.Equal(t, colorBoldRed+"cats"+colorReset+" and "+colorBoldRed+"dogs"+colorReset, got)
}
