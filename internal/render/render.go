package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/chatsweep/internal/index"
)

const (
	colorReset   = "\033[0m"
	colorUser    = "\033[1;34m" // bold blue
	colorAssist  = "\033[1;32m" // bold green
	colorSystem  = "\033[2;35m" // dim magenta
	colorError   = "\033[1;31m"
	colorDim     = "\033[2m"
	colorHit     = "\033[43m"   // yellow background
	colorBoldRed = "\033[1;31m" // bold red for keyword highlights
)

type Options struct {
	HitMsgID int
	Context  int    // messages before/after hit to show; negative shows all
	Width    int    // wrap width (0 = no wrap)
	Query    string // search query for keyword highlighting
}

// fts5Operators are FTS5 operators that should not be highlighted as keywords.
var fts5Operators = map[string]bool{
	"AND": true, "OR": true, "NOT": true, "NEAR": true,
	"and": true, "or": true, "not": true, "near": true,
}

// highlightKeywords wraps case-insensitive matches of query terms in bold red ANSI codes.
func highlightKeywords(text, query string) string {
	if query == "" {
		return text
	}
	var filtered []string
	for _, t := range strings.Fields(query) {
		t = strings.Trim(t, `"*()`)
		if t != "" && !fts5Operators[t] {
			filtered = append(filtered, t)
		}
	}
	for _, term := range filtered {
		lower := strings.ToLower(term)
		i := 0
		for i < len(text) {
			idx := strings.Index(strings.ToLower(text[i:]), lower)
			if idx < 0 {
				break
			}
			pos := i + idx
			if pos+len(term) > len(text) {
				break
			}
			orig := text[pos : pos+len(term)]
			replacement := colorBoldRed + orig + colorReset
			text = text[:pos] + replacement + text[pos+len(term):]
			i = pos + len(replacement)
		}
	}
	return text
}

// indentLines prepends each line of text with the given prefix.
func indentLines(text, prefix string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

// wrapLine breaks a single line into multiple lines that fit within maxWidth
// visible columns, skipping ANSI escape sequences when measuring width.
func wrapLine(line string, maxWidth int) []string {
	if maxWidth <= 0 {
		return []string{line}
	}

	var result []string
	var cur strings.Builder
	visW := 0

	i := 0
	for i < len(line) {
		// ESC[ ... m
		if i+1 < len(line) && line[i] == '\033' && line[i+1] == '[' {
			j := i + 2
			for j < len(line) && line[j] != 'm' {
				j++
			}
			if j < len(line) {
				j++ // include 'm'
			}
			cur.WriteString(line[i:j])
			i = j
			continue
		}

		r, size := utf8.DecodeRuneInString(line[i:])
		rw := runewidth.RuneWidth(r)

		if visW+rw > maxWidth {
			result = append(result, cur.String())
			cur.Reset()
			visW = 0
		}

		cur.WriteRune(r)
		visW += rw
		i += size
	}

	if cur.Len() > 0 {
		result = append(result, cur.String())
	}

	if len(result) == 0 {
		return []string{""}
	}
	return result
}

func roleStyle(role string) (color, label string) {
	switch role {
	case "user":
		return colorUser, "USER"
	case "assistant":
		return colorAssist, "ASST"
	case "system":
		return colorSystem, "SYS"
	case "error":
		return colorError, "ERROR"
	default:
		return colorDim, "UNKNOWN"
	}
}

// RenderConversation renders an indexed conversation and returns the
// content, the 0-based line number of the hit message header (-1 if no
// hit), and any error.
func RenderConversation(db *index.DB, convKey string, opts Options) (string, int, error) {
	if opts.Context == 0 {
		opts.Context = 10
	}

	conv, err := db.GetConversationByKey(convKey)
	if err != nil {
		return "", -1, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return "", -1, fmt.Errorf("conversation not found: %s", convKey)
	}

	msgs, hitIdx, startPos, totalCount, err := db.GetMessagesWindow(convKey, opts.HitMsgID, opts.Context)
	if err != nil {
		return "", -1, fmt.Errorf("get messages: %w", err)
	}

	if totalCount == 0 {
		return "(empty conversation)", -1, nil
	}

	skipAfter := totalCount - startPos - len(msgs)

	var b strings.Builder
	hitLine := -1
	lineCount := 0
	separator := colorDim + "--------------------------------------------------" + colorReset
	wrapW := opts.Width

	// tracks line count; wraps long lines if Width is set
	writeLine := func(s string) {
		for _, wl := range wrapLine(s, wrapW) {
			b.WriteString(wl)
			b.WriteString("\n")
			lineCount++
		}
	}

	writeLine(fmt.Sprintf("%s--- %s [%s] exported %s ---%s", colorDim, conv.Title, conv.ConversationID, conv.ExportedAt, colorReset))
	writeLine(colorDim + conv.URL() + colorReset)

	if startPos > 0 {
		writeLine(fmt.Sprintf("%s... (%d messages before) ...%s", colorDim, startPos, colorReset))
	}

	for i, m := range msgs {
		isHit := i == hitIdx

		if i > 0 {
			writeLine(separator)
		}
		if isHit {
			hitLine = lineCount
		}

		roleColor, roleLabel := roleStyle(m.Role)
		if isHit {
			writeLine(fmt.Sprintf("%s>> %s > %s <<%s", colorHit, roleLabel, m.Ts, colorReset))
		} else {
			writeLine(fmt.Sprintf("%s%s >%s %s%s%s", roleColor, roleLabel, colorReset, colorDim, m.Ts, colorReset))
		}

		text := highlightKeywords(m.Text, opts.Query)
		for _, tl := range strings.Split(indentLines(text, "  "), "\n") {
			writeLine(tl)
		}
		writeLine("")
	}

	if skipAfter > 0 {
		writeLine(fmt.Sprintf("%s... (%d messages after) ...%s", colorDim, skipAfter, colorReset))
	}

	atts, err := db.GetAttachments(convKey)
	if err != nil {
		return "", -1, fmt.Errorf("get attachments: %w", err)
	}
	if len(atts) > 0 {
		writeLine(separator)
		writeLine(fmt.Sprintf("%sATTACHMENTS%s", colorDim, colorReset))
		for _, a := range atts {
			name := a.FileName
			if name == "" {
				name = a.FileID
			}
			if a.ArchiveName == "" {
				writeLine(fmt.Sprintf("  %s %s(not in archive)%s", name, colorDim, colorReset))
			} else {
				writeLine(fmt.Sprintf("  %s -> %s", name, a.ArchiveName))
			}
		}
	}

	return b.String(), hitLine, nil
}
