package scan

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Zuo-Peng/chatsweep/internal/archive"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

type FileInfo struct {
	Path  string
	Mtime int64
	Size  int64
}

// ScanExports lists the export archives directly under dir, oldest first.
// A missing dir yields no files.
func ScanExports(dir string) ([]FileInfo, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []FileInfo
	for _, e := range entries {
		if e.IsDir() || !isExport(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while scanning
		}
		files = append(files, FileInfo{
			Path:  filepath.Join(dir, e.Name()),
			Mtime: info.ModTime().Unix(),
			Size:  info.Size(),
		})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].Mtime != files[j].Mtime {
			return files[i].Mtime < files[j].Mtime
		}
		return files[i].Path < files[j].Path
	})
	return files, nil
}

func isExport(name string) bool {
	return strings.HasPrefix(name, archive.NamePrefix) && filepath.Ext(name) == ".zip"
}

// ReadManifest opens the archive at path and decodes its manifest.
func ReadManifest(path string) (*parse.Manifest, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	f, err := zr.Open(archive.ManifestName)
	if err != nil {
		return nil, fmt.Errorf("no %s in archive: %w", archive.ManifestName, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parse.ParseManifest(data)
}
