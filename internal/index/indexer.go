package index

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/parse"
	"github.com/Zuo-Peng/chatsweep/internal/scan"
)

type Stats struct {
	Scanned       int
	Updated       int
	Skipped       int
	Pruned        int
	Errors        int
	Conversations int
}

func (s Stats) String() string {
	return fmt.Sprintf("scanned=%d updated=%d skipped=%d pruned=%d errors=%d conversations=%d",
		s.Scanned, s.Updated, s.Skipped, s.Pruned, s.Errors, s.Conversations)
}

// ConvKey identifies one conversation inside one archive. The same
// conversation exported twice is indexed once per archive.
func ConvKey(archivePath, conversationID string) string {
	return archivePath + "#" + conversationID
}

// IndexAll brings the ledger in line with the archives in exportDir.
func IndexAll(db *DB, exportDir string) (Stats, error) {
	var stats Stats

	files, err := scan.ScanExports(exportDir)
	if err != nil {
		return stats, fmt.Errorf("scan: %w", err)
	}
	stats.Scanned = len(files)

	// track which archives we see, for pruning
	seen := make(map[string]struct{})

	for _, fi := range files {
		needs, err := needsUpdate(db, fi.Path, fi.Mtime, fi.Size)
		if err != nil {
			stats.Errors++
			continue
		}
		if !needs {
			seen[fi.Path] = struct{}{}
			stats.Skipped++
			continue
		}

		m, err := scan.ReadManifest(fi.Path)
		if err != nil {
			stats.Errors++
			slog.Warn("skipping archive", "path", fi.Path, "err", err)
			continue
		}
		seen[fi.Path] = struct{}{}

		if err := indexArchive(db, fi, m); err != nil {
			stats.Errors++
			slog.Warn("index archive failed", "path", fi.Path, "err", err)
			continue
		}
		stats.Updated++
		stats.Conversations += len(m.Conversations)
	}

	// prune archives that no longer exist
	pruned, err := pruneArchives(db, seen)
	if err != nil {
		return stats, fmt.Errorf("prune: %w", err)
	}
	stats.Pruned = pruned

	return stats, nil
}

func needsUpdate(db *DB, path string, mtime, size int64) (bool, error) {
	info, err := db.GetArchiveInfo(path)
	if err != nil {
		return false, err
	}
	if info == nil {
		return true, nil // new archive
	}
	return info.Mtime != mtime || info.Size != size, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func indexArchive(db *DB, fi scan.FileInfo, m *parse.Manifest) error {
	// delete old data first
	if err := db.DeleteArchive(fi.Path); err != nil {
		return err
	}

	tx, err := db.Raw().Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exportedAt := formatTime(m.ExportedAt)
	_, err = tx.Exec(
		`INSERT INTO archives (path, run_id, exported_at, base_url, mtime, size)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fi.Path, m.RunID, exportedAt, m.BaseURL, fi.Mtime, fi.Size,
	)
	if err != nil {
		return err
	}

	convStmt, err := tx.Prepare(
		`INSERT OR REPLACE INTO conversations (conv_key, archive_path, conversation_id, title, source, created_at, updated_at, exported_at, base_url)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer convStmt.Close()

	msgStmt, err := tx.Prepare(
		`INSERT INTO messages (conv_key, msg_id, role, text, ts) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer msgStmt.Close()

	attStmt, err := tx.Prepare(
		`INSERT OR IGNORE INTO attachments (conv_key, file_id, file_name, archive_name) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer attStmt.Close()

	for _, rec := range m.Conversations {
		key := ConvKey(fi.Path, rec.ID)
		_, err := convStmt.Exec(
			key, fi.Path, rec.ID, rec.Title, string(rec.Source),
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), exportedAt, m.BaseURL,
		)
		if err != nil {
			return err
		}
		for i, msg := range rec.Messages {
			if _, err := msgStmt.Exec(key, i, string(msg.Role), msg.Text, formatTime(msg.CreatedAt)); err != nil {
				return err
			}
		}
		for _, a := range rec.Attachments() {
			if _, err := attStmt.Exec(key, a.FileID, a.FileName, m.Attachments[a.FileID]); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func pruneArchives(db *DB, seen map[string]struct{}) (int, error) {
	all, err := db.AllArchivePaths()
	if err != nil {
		return 0, err
	}

	pruned := 0
	for path := range all {
		if _, ok := seen[path]; !ok {
			if err := db.DeleteArchive(path); err != nil {
				return pruned, err
			}
			pruned++
		}
	}
	return pruned, nil
}
