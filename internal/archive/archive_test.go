package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

var exportedAt = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestRenderEscapesAndLinks(t *testing.T) {
	rec := parse.Record{
		ID:    "c1",
		Title: `<script>alert("t")</script>`,
		Messages: []parse.Message{
			{Role: parse.RoleUser, Text: "a < b & <b>bold</b>", Attachments: []parse.AttachmentRef{
				{FileID: "file-img", FileName: "cat.png"},
				{FileID: "file-doc", FileName: "report.pdf"},
				{FileID: "file-lost", FileName: "gone.docx"},
				{FileID: "file-anon"},
			}},
			{Role: parse.RoleAssistant, Text: "ok"},
		},
	}
	files := map[string]string{
		"file-img": "file-img.png",
		"file-doc": "file-doc_report.pdf",
	}

	out, err := Render(rec, files, exportedAt)
	require.NoError(t, err)
	doc := string(out)

	assert.NotContains(t, doc, "<script>alert")
	assert.Contains(t, doc, "&lt;script&gt;")
	assert.Contains(t, doc, "a &lt; b &amp; &lt;b&gt;bold&lt;/b&gt;")
	assert.Contains(t, doc, `<div class="role user">user</div>`)
	assert.Contains(t, doc, `<div class="role assistant">assistant</div>`)
	assert.Contains(t, doc, `<img src="attachments/file-img.png" alt="cat.png"`)
	assert.Contains(t, doc, `<a href="attachments/file-doc_report.pdf" download="file-doc_report.pdf">report.pdf</a>`)
	assert.Contains(t, doc, "Attachment not available: gone.docx")
	assert.Contains(t, doc, "Attachment not available: file-anon")
	assert.Contains(t, doc, "extracted the entire ZIP file")
	assert.Contains(t, doc, "2026-03-14 09:26:53")
}

func TestIsImage(t *testing.T) {
	for _, name := range []string{"a.jpg", "a.JPEG", "a.png", "a.gif", "a.webp"} {
		assert.True(t, IsImage(name), name)
	}
	for _, name := range []string{"a.pdf", "a.bin", "a.svg", "png"} {
		assert.False(t, IsImage(name), name)
	}
}

func TestDocumentNames(t *testing.T) {
	a := NewAssembler()
	assert.Equal(t, "trip_to_lisbon_.html", a.AddDocument("Trip to Lisbon!", nil))
	assert.Equal(t, "trip_to_lisbon.html", a.AddDocument("trip to lisbon", nil))
	assert.Equal(t, "conversation.html", a.AddDocument("", nil))
	assert.Equal(t, "conversation_2.html", a.AddDocument("¿?", nil))
}

func TestDocumentNameCollisions(t *testing.T) {
	a := NewAssembler()
	assert.Equal(t, "notes.html", a.AddDocument("Notes", nil))
	assert.Equal(t, "notes_2.html", a.AddDocument("notes", nil))
	assert.Equal(t, "notes_3.html", a.AddDocument("NOTES", nil))
}

func TestArchiveName(t *testing.T) {
	assert.Equal(t, "ChatGPT_Export_2026-03-14.zip", ArchiveName(exportedAt))
}

func TestWriteAndSave(t *testing.T) {
	a := NewAssembler()
	a.AddDocument("One", []byte("<html>1</html>"))
	a.AddAttachment("file-1.png", []byte{0x89, 'P', 'N', 'G'})
	a.AddAttachment("file-1.png", []byte("second copy"))
	require.NoError(t, a.AddJSON(ManifestName, map[string]int{"version": 1}))
	assert.Equal(t, []string{"one.html", "attachments/file-1.png", "manifest.json"}, a.Names())

	dir := t.TempDir()
	p1, err := a.Save(dir, exportedAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ChatGPT_Export_2026-03-14.zip"), p1)
	p2, err := a.Save(dir, exportedAt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ChatGPT_Export_2026-03-14_2.zip"), p2)

	data, err := os.ReadFile(p1)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)

	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, body)
}
