package action

import (
	"bytes"
	"context"
	"encoding/json"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// Download is a fetched attachment.
type Download struct {
	FileID   string
	Filename string
	MimeType string
	Strategy string
	Data     []byte
}

const genericType = "application/octet-stream"

// genericTypes say nothing about the content.
var genericTypes = map[string]bool{
	"":                           true,
	genericType:                  true,
	"binary/octet-stream":        true,
	"application/binary":         true,
	"application/x-binary":       true,
	"application/download":       true,
	"application/x-download":     true,
	"application/force-download": true,
}

var extensions = map[string]string{
	"image/jpeg":         "jpg",
	"image/jpg":          "jpg",
	"image/png":          "png",
	"image/gif":          "gif",
	"image/webp":         "webp",
	"image/svg+xml":      "svg",
	"application/pdf":    "pdf",
	"application/json":   "json",
	"application/zip":    "zip",
	"text/plain":         "txt",
	"text/csv":           "csv",
	"text/markdown":      "md",
	"text/html":          "html",
	"application/msword": "doc",

	"application/vnd.ms-excel":      "xls",
	"application/vnd.ms-powerpoint": "ppt",

	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
}

// Sniff returns the content type announced by data's leading bytes, or "".
func Sniff(data []byte) string {
	if len(data) > 12 {
		data = data[:12]
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && string(data[8:12]) == "WEBP":
		return "image/webp"
	case bytes.HasPrefix(data, []byte("%PDF")):
		return "application/pdf"
	}
	return ""
}

// ResolveType picks the content type of data. A recognised signature beats
// the declared type; otherwise the declared media type is kept, falling back
// to application/octet-stream.
func ResolveType(declared string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}
	if sniffed := Sniff(data); sniffed != "" {
		return sniffed
	}
	if genericTypes[mt] {
		return genericType
	}
	return mt
}

// Extension maps a content type to a file extension, "bin" when unknown.
func Extension(contentType string) string {
	if ext, ok := extensions[contentType]; ok {
		return ext
	}
	return "bin"
}

var unsafeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Filename names a downloaded attachment. The file id keeps names unique
// within an export; a known original name with an extension is appended.
func Filename(ref parse.AttachmentRef, contentType string) string {
	if ref.FileName != "" {
		base := unsafeNameRe.ReplaceAllString(path.Base(ref.FileName), "_")
		base = strings.Trim(base, "._")
		if path.Ext(base) != "" && base != "" {
			return ref.FileID + "_" + base
		}
	}
	return ref.FileID + "." + Extension(contentType)
}

type downloadLink struct {
	DownloadURL string `json:"download_url"`
}

// DownloadAttachment fetches the bytes of ref. Upstream rejections are
// routine: attachments that are no longer resident in the page commonly
// answer 422 or 404.
func (e *Executor) DownloadAttachment(ctx context.Context, ref parse.AttachmentRef) (r chain.Result[Download]) {
	defer guard(&r, "download")

	addr := e.loc.FindAttachment(ctx, ref)
	resp := e.api.Fetch(ctx, addr.URL)
	if !resp.OK() {
		return chain.Err[Download](routine(resp.Failure))
	}
	body := resp.Value
	if link, ok := indirect(body); ok {
		e.log.Debug("following download link", "file", ref.FileID)
		if resp = e.api.Fetch(ctx, link); !resp.OK() {
			return chain.Err[Download](routine(resp.Failure))
		}
		body = resp.Value
	}

	ct := ResolveType(body.Header.Get("Content-Type"), body.Body)
	if ct == genericType && ref.MimeType != "" {
		ct = ResolveType(ref.MimeType, nil)
	}
	d := Download{
		FileID:   ref.FileID,
		Filename: Filename(ref, ct),
		MimeType: ct,
		Strategy: addr.Strategy,
		Data:     body.Body,
	}
	e.log.Debug("attachment downloaded", "file", ref.FileID, "name", d.Filename, "type", ct, "bytes", len(d.Data), "strategy", addr.Strategy)
	return chain.Ok(d)
}

// indirect reports a JSON body that only points at the real content.
func indirect(resp *transport.Response) (string, bool) {
	if !strings.Contains(resp.Header.Get("Content-Type"), "json") {
		return "", false
	}
	var l downloadLink
	if err := json.Unmarshal(resp.Body, &l); err != nil || l.DownloadURL == "" {
		return "", false
	}
	return l.DownloadURL, true
}

func routine(f *chain.Failure) *chain.Failure {
	if f == nil {
		return nil
	}
	if f.Kind == chain.UpstreamRejected || f.Kind == chain.ResourceNotFound {
		c := *f
		c.Routine = true
		return &c
	}
	return f
}
