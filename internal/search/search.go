package search

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/Zuo-Peng/chatsweep/internal/index"
)

type Result struct {
	ConvKey        string
	ConversationID string
	MsgID          int
	Title          string
	UpdatedAt      string
	ExportedAt     string
	BaseURL        string
	Snippet        string
	Role           string
	Rank           float64
}

// URL is the conversation's address on the chat site.
func (r Result) URL() string {
	return r.BaseURL + "/c/" + r.ConversationID
}

type Options struct {
	Query string
	Role  string // "" = all, "user", "assistant", ...
	Since string // "" = no filter, e.g. "2024-01-01"; compared against the export time
	Limit int
}

// containsCJK returns true if the string contains any CJK Unified Ideograph.
func containsCJK(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// makeSnippet extracts a snippet around the first occurrence of query in text.
func makeSnippet(text, query string, contextChars int) string {
	runes := []rune(text)
	qRunes := []rune(query)
	lower := []rune(strings.ToLower(text))
	runePos := -1
	if len(lower) == len(runes) && len(qRunes) > 0 {
		runePos = indexRunes(lower, []rune(strings.ToLower(query)))
	}
	if runePos < 0 {
		// no match, return head
		if len(runes) > contextChars*2 {
			return string(runes[:contextChars*2]) + "..."
		}
		return text
	}
	start := max(runePos-contextChars, 0)
	end := min(runePos+len(qRunes)+contextChars, len(runes))
	prefix := ""
	suffix := ""
	if start > 0 {
		prefix = "..."
	}
	if end < len(runes) {
		suffix = "..."
	}
	// wrap the matched part with markers
	snippet := string(runes[start:runePos]) +
		">>>" + string(runes[runePos:runePos+len(qRunes)]) + "<<<" +
		string(runes[runePos+len(qRunes):end])
	return prefix + snippet + suffix
}

func indexRunes(s, sub []rune) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Search runs a full-text query over exported messages and returns the best
// hit per conversation. A conversation exported in several archives is
// reported once, from its most recent export.
func Search(db *index.DB, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}

	// Fetch more results before dedup so we still have enough after
	origLimit := opts.Limit
	opts.Limit = origLimit * 3

	var results []Result
	var err error
	if containsCJK(opts.Query) {
		results, err = searchLike(db, opts)
	} else {
		results, err = searchFTS(db, opts)
	}
	if err != nil {
		return nil, err
	}
	return dedup(results, origLimit), nil
}

func dedup(results []Result, limit int) []Result {
	seen := make(map[string]bool)
	var out []Result
	for _, r := range results {
		if seen[r.ConversationID] {
			continue
		}
		seen[r.ConversationID] = true
		out = append(out, r)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func filters(opts Options) ([]string, []any) {
	var conditions []string
	var args []any

	if opts.Role != "" {
		conditions = append(conditions, "m.role = ?")
		args = append(args, opts.Role)
	}
	if opts.Since != "" {
		conditions = append(conditions, "c.exported_at >= ?")
		args = append(args, opts.Since)
	}
	return conditions, args
}

func searchFTS(db *index.DB, opts Options) ([]Result, error) {
	conditions := []string{"messages_fts MATCH ?"}
	args := []any{opts.Query}
	more, moreArgs := filters(opts)
	conditions = append(conditions, more...)
	args = append(args, moreArgs...)

	query := fmt.Sprintf(`
		SELECT
			m.conv_key,
			c.conversation_id,
			m.msg_id,
			c.title,
			c.updated_at,
			c.exported_at,
			c.base_url,
			snippet(messages_fts, 0, '>>>','<<<', '...', 40) as snip,
			m.role,
			bm25(messages_fts, 1.0) as rank
		FROM messages_fts
		JOIN messages m ON messages_fts.rowid = m.rowid
		JOIN conversations c ON m.conv_key = c.conv_key
		WHERE %s
		ORDER BY rank, c.exported_at DESC
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	return scanResults(rows)
}

func searchLike(db *index.DB, opts Options) ([]Result, error) {
	// LIKE match for CJK substring search
	conditions := []string{"m.text LIKE ?"}
	args := []any{"%" + opts.Query + "%"}
	more, moreArgs := filters(opts)
	conditions = append(conditions, more...)
	args = append(args, moreArgs...)

	query := fmt.Sprintf(`
		SELECT
			m.conv_key,
			c.conversation_id,
			m.msg_id,
			c.title,
			c.updated_at,
			c.exported_at,
			c.base_url,
			m.text,
			m.role
		FROM messages m
		JOIN conversations c ON m.conv_key = c.conv_key
		WHERE %s
		ORDER BY c.exported_at DESC
		LIMIT ?
	`, strings.Join(conditions, " AND "))

	args = append(args, opts.Limit)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var fullText string
		if err := rows.Scan(
			&r.ConvKey, &r.ConversationID, &r.MsgID, &r.Title,
			&r.UpdatedAt, &r.ExportedAt, &r.BaseURL,
			&fullText, &r.Role,
		); err != nil {
			return nil, err
		}
		r.Snippet = makeSnippet(fullText, opts.Query, 30)
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanResults(rows *sql.Rows) ([]Result, error) {
	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(
			&r.ConvKey, &r.ConversationID, &r.MsgID, &r.Title,
			&r.UpdatedAt, &r.ExportedAt, &r.BaseURL,
			&r.Snippet, &r.Role, &r.Rank,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// ListAll returns every indexed conversation, most recently exported first.
// A non-empty opts.Query filters by title substring.
func ListAll(db *index.DB, opts Options) ([]Result, error) {
	if opts.Limit <= 0 {
		opts.Limit = 500
	}
	var conditions []string
	var args []any
	if opts.Query != "" {
		conditions = append(conditions, "c.title LIKE ?")
		args = append(args, "%"+opts.Query+"%")
	}
	if opts.Since != "" {
		conditions = append(conditions, "c.exported_at >= ?")
		args = append(args, opts.Since)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT
			c.conv_key,
			c.conversation_id,
			c.title,
			c.updated_at,
			c.exported_at,
			c.base_url,
			COALESCE((SELECT m.text FROM messages m WHERE m.conv_key = c.conv_key ORDER BY m.msg_id LIMIT 1), '')
		FROM conversations c
		%s
		ORDER BY c.exported_at DESC, c.updated_at DESC
		LIMIT ?
	`, where)
	args = append(args, opts.Limit*3)

	rows, err := db.Raw().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var first string
		if err := rows.Scan(&r.ConvKey, &r.ConversationID, &r.Title, &r.UpdatedAt, &r.ExportedAt, &r.BaseURL, &first); err != nil {
			return nil, err
		}
		r.MsgID = -1
		r.Snippet = makeSnippet(first, "", 40)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return dedup(results, opts.Limit), nil
}
