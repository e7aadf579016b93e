package scan

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/archive"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

func TestScanExports(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)

	a := archive.NewAssembler()
	require.NoError(t, a.AddJSON(archive.ManifestName, parse.Manifest{Version: parse.ManifestVersion, RunID: "r1"}))
	first, err := a.Save(dir, at)
	require.NoError(t, err)
	second, err := a.Save(dir, at)
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(first, at, at))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.zip"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, archive.NamePrefix+"draft.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, archive.NamePrefix+"dir.zip"), 0o755))

	files, err := ScanExports(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, first, files[0].Path)
	assert.Equal(t, second, files[1].Path)
	assert.Positive(t, files[0].Size)

	m, err := ReadManifest(second)
	require.NoError(t, err)
	assert.Equal(t, "r1", m.RunID)
	assert.NotNil(t, m.Attachments)
}

func TestScanExportsMissingDir(t *testing.T) {
	files, err := ScanExports(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestReadManifestRejectsPlainZip(t *testing.T) {
	dir := t.TempDir()
	a := archive.NewAssembler()
	a.AddAttachment("x.bin", []byte{1})
	p, err := a.Save(dir, time.Now())
	require.NoError(t, err)

	_, err = ReadManifest(p)
	assert.ErrorContains(t, err, archive.ManifestName)
}
