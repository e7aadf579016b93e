// Package archive assembles an export: one HTML document per conversation,
// the downloaded attachments, and a manifest, written as a single zip.
package archive

import (
	"bytes"
	"html/template"
	"path"
	"strings"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

// AttachmentDir is the archive directory holding downloaded files.
const AttachmentDir = "attachments"

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// IsImage reports whether name has an extension browsers render inline.
func IsImage(name string) bool {
	return imageExts[strings.ToLower(path.Ext(name))]
}

var documentTmpl = template.Must(template.New("conversation").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; background: #f5f5f5; line-height: 1.6; }
h1 { color: #333; border-bottom: 2px solid #10a37f; padding-bottom: 10px; }
.message { background: #fff; border-radius: 8px; padding: 15px 20px; margin: 15px 0; box-shadow: 0 1px 3px rgba(0,0,0,0.1); }
.role { font-weight: 600; text-transform: capitalize; margin-bottom: 8px; }
.role.user { color: #2563eb; }
.role.assistant { color: #10a37f; }
.role.system { color: #7c3aed; }
.role.unknown { color: #6b7280; }
.role.error { color: #dc2626; }
.text { white-space: pre-wrap; word-wrap: break-word; }
.images img { max-width: 100%; border-radius: 6px; margin: 10px 0; display: block; }
.notice { background: #fff3cd; border: 1px solid #ffc107; border-radius: 6px; padding: 12px; margin: 15px 0; color: #856404; font-size: 0.9em; }
.missing { color: #666; }
.timestamp { color: #666; font-size: 0.9em; margin-bottom: 20px; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="notice"><strong>Note:</strong> If images or attachments are not displaying, make sure you've <strong>extracted the entire ZIP file</strong> before opening this HTML. Browsers cannot access files when viewing HTML directly from within a ZIP archive.</div>
<div class="timestamp">Exported on {{.ExportedAt}}</div>
{{- range .Messages}}
<div class="message">
<div class="role {{.Role}}">{{.Role}}</div>
{{- if .Text}}
<div class="text">{{.Text}}</div>
{{- end}}
{{- if .Attachments}}
<div class="images">
{{- range .Attachments}}
{{- if not .Path}}
<p class="missing"><em>Attachment not available: {{.Label}}</em><br><small>This file may need to be downloaded from the conversation directly. Open it in the chat first, then export again so it is loaded in the page.</small></p>
{{- else if .Image}}
<img src="{{.Path}}" alt="{{.Label}}" loading="lazy">
{{- else}}
<p><a href="{{.Path}}" download="{{.Name}}">{{.Label}}</a></p>
{{- end}}
{{- end}}
</div>
{{- end}}
</div>
{{- end}}
</body>
</html>
`))

type docView struct {
	Title      string
	ExportedAt string
	Messages   []messageView
}

type messageView struct {
	Role        string
	Text        string
	Attachments []attachmentView
}

type attachmentView struct {
	Label string
	Name  string
	Path  string // empty when the file was not downloaded
	Image bool
}

// Render writes the HTML document for rec. files maps file id to the name
// under AttachmentDir of every attachment that was downloaded.
func Render(rec parse.Record, files map[string]string, exportedAt time.Time) ([]byte, error) {
	v := docView{
		Title:      rec.Title,
		ExportedAt: exportedAt.Format("2006-01-02 15:04:05"),
	}
	for _, m := range rec.Messages {
		mv := messageView{Role: strings.ToLower(string(m.Role)), Text: strings.TrimSpace(m.Text)}
		for _, a := range m.Attachments {
			av := attachmentView{Label: a.FileName, Name: files[a.FileID]}
			if av.Name != "" {
				av.Path = AttachmentDir + "/" + av.Name
				av.Image = IsImage(av.Name)
				if av.Label == "" {
					av.Label = av.Name
				}
			} else if av.Label == "" {
				av.Label = a.FileID
			}
			mv.Attachments = append(mv.Attachments, av)
		}
		v.Messages = append(v.Messages, mv)
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
