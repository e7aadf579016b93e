package archive

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ManifestName is the manifest's path inside the archive.
const ManifestName = "manifest.json"

// NamePrefix starts every archive file name.
const NamePrefix = "ChatGPT_Export_"

type entry struct {
	name string
	data []byte
}

// Assembler collects files in insertion order. Document names are made
// unique; attachment names are unique by construction.
type Assembler struct {
	entries []entry
	names   map[string]bool
}

func NewAssembler() *Assembler {
	return &Assembler{names: map[string]bool{}}
}

// Len returns how many files have been added.
func (a *Assembler) Len() int { return len(a.entries) }

// Names returns the archive paths in insertion order.
func (a *Assembler) Names() []string {
	out := make([]string, len(a.entries))
	for i, e := range a.entries {
		out[i] = e.name
	}
	return out
}

func (a *Assembler) add(name string, data []byte) {
	a.names[name] = true
	a.entries = append(a.entries, entry{name: name, data: data})
}

// AddAttachment stores a downloaded file under AttachmentDir. Adding the
// same name twice keeps the first copy.
func (a *Assembler) AddAttachment(name string, data []byte) {
	p := AttachmentDir + "/" + name
	if a.names[p] {
		return
	}
	a.add(p, data)
}

// AddDocument stores a conversation document named after title and returns
// the name it was given.
func (a *Assembler) AddDocument(title string, doc []byte) string {
	base := DocumentBase(title)
	name := base + ".html"
	for n := 2; a.names[name]; n++ {
		name = base + "_" + strconv.Itoa(n) + ".html"
	}
	a.add(name, doc)
	return name
}

// AddJSON stores v, indented, at name.
func (a *Assembler) AddJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	a.add(name, data)
	return nil
}

// WriteTo writes the zip archive to w.
func (a *Assembler) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	for _, e := range a.entries {
		f, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate, Modified: time.Now()})
		if err != nil {
			return cw.n, fmt.Errorf("add %s: %w", e.name, err)
		}
		if _, err := f.Write(e.data); err != nil {
			return cw.n, fmt.Errorf("write %s: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finish archive: %w", err)
	}
	return cw.n, nil
}

// Save writes the archive into dir under the dated export name, adding a
// numeric suffix instead of overwriting an earlier export from the same day.
func (a *Assembler) Save(dir string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	base := strings.TrimSuffix(ArchiveName(now), ".zip")
	p := filepath.Join(dir, base+".zip")
	for n := 2; ; n++ {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			break
		}
		p = filepath.Join(dir, base+"_"+strconv.Itoa(n)+".zip")
	}

	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create archive: %w", err)
	}
	if _, err := a.WriteTo(f); err != nil {
		f.Close()
		os.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close archive: %w", err)
	}
	return p, nil
}

// ArchiveName is the file name of an export made at t.
func ArchiveName(t time.Time) string {
	return NamePrefix + t.Format("2006-01-02") + ".zip"
}

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]`)

// DocumentBase derives a file name stem from a conversation title.
func DocumentBase(title string) string {
	base := nonAlnumRe.ReplaceAllString(strings.ToLower(title), "_")
	if strings.Trim(base, "_") == "" {
		return "conversation"
	}
	return base
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
