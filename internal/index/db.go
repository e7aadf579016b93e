package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA cache_size = -64000;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS archives (
    path        TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL DEFAULT '',
    exported_at TEXT NOT NULL DEFAULT '',
    base_url    TEXT NOT NULL DEFAULT '',
    mtime       INTEGER NOT NULL DEFAULT 0,
    size        INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS conversations (
    conv_key        TEXT PRIMARY KEY,
    archive_path    TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    created_at      TEXT NOT NULL DEFAULT '',
    updated_at      TEXT NOT NULL DEFAULT '',
    exported_at     TEXT NOT NULL DEFAULT '',
    base_url        TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS conversations_archive ON conversations(archive_path);
CREATE INDEX IF NOT EXISTS conversations_id ON conversations(conversation_id);

CREATE TABLE IF NOT EXISTS messages (
    conv_key TEXT NOT NULL,
    msg_id   INTEGER NOT NULL,
    role     TEXT NOT NULL,
    text     TEXT NOT NULL,
    ts       TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (conv_key, msg_id)
);

CREATE TABLE IF NOT EXISTS attachments (
    conv_key     TEXT NOT NULL,
    file_id      TEXT NOT NULL,
    file_name    TEXT NOT NULL DEFAULT '',
    archive_name TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (conv_key, file_id)
);

CREATE TABLE IF NOT EXISTS deletions (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id          TEXT NOT NULL,
    conversation_id TEXT NOT NULL,
    title           TEXT NOT NULL DEFAULT '',
    via             TEXT NOT NULL,
    error           TEXT NOT NULL DEFAULT '',
    deleted_at      TEXT NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    text,
    content=messages,
    content_rowid=rowid,
    tokenize='unicode61'
);

-- triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text) VALUES('delete', old.rowid, old.text);
END;

CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, text) VALUES('delete', old.rowid, old.text);
    INSERT INTO messages_fts(rowid, text) VALUES (new.rowid, new.text);
END;

CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);
`

const timeLayout = "2006-01-02T15:04:05Z"

type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db}
	d.migrateSchemaVersion()
	return d, nil
}

// schemaVersion should be bumped whenever manifest indexing changes
// to force a full re-index.
const schemaVersion = "1"

func (d *DB) migrateSchemaVersion() {
	var ver string
	err := d.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&ver)
	if err != nil || ver != schemaVersion {
		// force re-index by resetting all archive mtime/size to 0
		d.db.Exec("UPDATE archives SET mtime = 0, size = 0")
		d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", schemaVersion)
	}
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Raw() *sql.DB {
	return d.db
}

type ArchiveInfo struct {
	Mtime int64
	Size  int64
}

func (d *DB) GetArchiveInfo(path string) (*ArchiveInfo, error) {
	var info ArchiveInfo
	err := d.db.QueryRow(
		"SELECT mtime, size FROM archives WHERE path = ?",
		path,
	).Scan(&info.Mtime, &info.Size)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (d *DB) AllArchivePaths() (map[string]struct{}, error) {
	rows, err := d.db.Query("SELECT path FROM archives")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

// DeleteArchive removes an archive and everything indexed from it.
func (d *DB) DeleteArchive(path string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const inArchive = "conv_key IN (SELECT conv_key FROM conversations WHERE archive_path = ?)"
	if _, err := tx.Exec("DELETE FROM messages WHERE "+inArchive, path); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM attachments WHERE "+inArchive, path); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM conversations WHERE archive_path = ?", path); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM archives WHERE path = ?", path); err != nil {
		return err
	}
	return tx.Commit()
}

func (d *DB) ArchiveCount() (int, error) {
	return d.count("archives")
}

func (d *DB) ConversationCount() (int, error) {
	return d.count("conversations")
}

func (d *DB) MessageCount() (int, error) {
	return d.count("messages")
}

func (d *DB) count(table string) (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	return n, err
}

type ConversationRow struct {
	ConvKey        string
	ArchivePath    string
	ConversationID string
	Title          string
	Source         string
	CreatedAt      string
	UpdatedAt      string
	ExportedAt     string
	BaseURL        string
}

// URL is the conversation's address on the chat site.
func (c ConversationRow) URL() string {
	return c.BaseURL + "/c/" + c.ConversationID
}

func (d *DB) GetConversationByKey(convKey string) (*ConversationRow, error) {
	var c ConversationRow
	err := d.db.QueryRow(
		`SELECT conv_key, archive_path, conversation_id, title, source, created_at, updated_at, exported_at, base_url
		 FROM conversations WHERE conv_key = ?`,
		convKey,
	).Scan(&c.ConvKey, &c.ArchivePath, &c.ConversationID, &c.Title, &c.Source, &c.CreatedAt, &c.UpdatedAt, &c.ExportedAt, &c.BaseURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type MessageRow struct {
	ConvKey string
	MsgID   int
	Role    string
	Text    string
	Ts      string
}

func (d *DB) GetMessages(convKey string) ([]MessageRow, error) {
	rows, err := d.db.Query(
		"SELECT conv_key, msg_id, role, text, ts FROM messages WHERE conv_key = ? ORDER BY msg_id",
		convKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]MessageRow, error) {
	var out []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(&m.ConvKey, &m.MsgID, &m.Role, &m.Text, &m.Ts); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMessagesWindow returns a window of messages around a hit message.
// startPos is the number of messages before the returned window and
// totalCount the number in the conversation.
func (d *DB) GetMessagesWindow(convKey string, hitMsgID, context int) (msgs []MessageRow, hitIdx int, startPos int, totalCount int, err error) {
	err = d.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE conv_key = ?", convKey,
	).Scan(&totalCount)
	if err != nil {
		return nil, -1, 0, 0, err
	}

	// 0-based position of the hit message
	hitPos := -1
	if hitMsgID >= 0 {
		err = d.db.QueryRow(`
			SELECT pos FROM (
				SELECT msg_id, ROW_NUMBER() OVER (ORDER BY msg_id) - 1 AS pos
				FROM messages WHERE conv_key = ?
			) WHERE msg_id = ?`,
			convKey, hitMsgID,
		).Scan(&hitPos)
		if err == sql.ErrNoRows {
			hitPos = -1
			err = nil
		} else if err != nil {
			return nil, -1, 0, 0, err
		}
	}

	startPos = 0
	limit := totalCount
	if hitPos >= 0 && context >= 0 {
		startPos = max(hitPos-context, 0)
		endPos := min(hitPos+context+1, totalCount)
		limit = endPos - startPos
	}

	rows, err := d.db.Query(
		"SELECT conv_key, msg_id, role, text, ts FROM messages WHERE conv_key = ? ORDER BY msg_id LIMIT ? OFFSET ?",
		convKey, limit, startPos,
	)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	defer rows.Close()

	msgs, err = scanMessages(rows)
	if err != nil {
		return nil, -1, 0, 0, err
	}
	hitIdx = -1
	for i, m := range msgs {
		if m.MsgID == hitMsgID {
			hitIdx = i
			break
		}
	}
	return msgs, hitIdx, startPos, totalCount, nil
}

type AttachmentRow struct {
	FileID      string
	FileName    string
	ArchiveName string // empty when the file was not stored in the archive
}

func (d *DB) GetAttachments(convKey string) ([]AttachmentRow, error) {
	rows, err := d.db.Query(
		"SELECT file_id, file_name, archive_name FROM attachments WHERE conv_key = ? ORDER BY rowid",
		convKey,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AttachmentRow
	for rows.Next() {
		var a AttachmentRow
		if err := rows.Scan(&a.FileID, &a.FileName, &a.ArchiveName); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Deletion is one conversation's outcome in a delete batch.
type Deletion struct {
	RunID          string
	ConversationID string
	Title          string
	Via            string // "api", "ui" or "failed"
	Error          string
	DeletedAt      time.Time
}

// RecordDeletions appends a batch's outcomes to the delete log.
func (d *DB) RecordDeletions(ds []Deletion) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO deletions (run_id, conversation_id, title, via, error, deleted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, del := range ds {
		if _, err := stmt.Exec(del.RunID, del.ConversationID, del.Title, del.Via, del.Error, del.DeletedAt.UTC().Format(timeLayout)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Deletions returns the most recent delete log entries, newest first.
func (d *DB) Deletions(limit int) ([]Deletion, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.db.Query(
		"SELECT run_id, conversation_id, title, via, error, deleted_at FROM deletions ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Deletion
	for rows.Next() {
		var del Deletion
		var at string
		if err := rows.Scan(&del.RunID, &del.ConversationID, &del.Title, &del.Via, &del.Error, &at); err != nil {
			return nil, err
		}
		del.DeletedAt, _ = time.Parse(timeLayout, at)
		out = append(out, del)
	}
	return out, rows.Err()
}

// DeletedConversations maps each conversation id with a successful delete
// in the log to the time of its latest one.
func (d *DB) DeletedConversations() (map[string]time.Time, error) {
	rows, err := d.db.Query(
		"SELECT conversation_id, MAX(deleted_at) FROM deletions WHERE via != 'failed' GROUP BY conversation_id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var id, at string
		if err := rows.Scan(&id, &at); err != nil {
			return nil, err
		}
		out[id], _ = time.Parse(timeLayout, at)
	}
	return out, rows.Err()
}
