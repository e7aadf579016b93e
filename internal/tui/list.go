package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Zuo-Peng/chatsweep/internal/search"
)

// rowsPerHit is the number of terminal lines each hit occupies.
const rowsPerHit = 2

// hitList is the result list with its cursor and scroll offset.
type hitList struct {
	results []search.Result
	cursor  int
	offset  int
}

func (h *hitList) reset(rs []search.Result) {
	h.results = rs
	h.cursor, h.offset = 0, 0
}

func (h hitList) len() int { return len(h.results) }

func (h hitList) current() (search.Result, bool) {
	if h.cursor < 0 || h.cursor >= len(h.results) {
		return search.Result{}, false
	}
	return h.results[h.cursor], true
}

// moveTo puts the cursor on i and scrolls it into view. It reports whether
// the cursor moved.
func (h *hitList) moveTo(i, visible int) bool {
	if i < 0 || i >= len(h.results) || i == h.cursor {
		return false
	}
	h.cursor = i
	if h.cursor < h.offset {
		h.offset = h.cursor
	}
	if h.cursor >= h.offset+visible {
		h.offset = h.cursor - visible + 1
	}
	return true
}

func (h *hitList) scrollBy(n, visible int) {
	h.offset = min(max(h.offset+n, 0), max(len(h.results)-visible, 0))
}

func (b browser) renderHits(width, height int) string {
	if b.hits.len() == 0 {
		msg := "No matching chats"
		if b.input.Value() == "" && !b.listAll {
			msg = "Type to search exported chats"
		}
		return lipgloss.NewStyle().
			Foreground(colorDim).
			Width(width).
			Height(height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(msg)
	}

	var lines []string
	for i := b.hits.offset; i < b.hits.len() && len(lines)+rowsPerHit <= height; i++ {
		r := b.hits.results[i]
		lines = append(lines, hitRows(r, width, i == b.hits.cursor, b.deleted[r.ConversationID])...)
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

// hitRows renders one hit:
//
//	> MM-DD [role] title         (deleted chats are badged)
//	    snippet
func hitRows(r search.Result, width int, selected bool, deletedAt time.Time) []string {
	lead := "  "
	if selected {
		lead = styleListSelected.Render("> ")
	}

	// "2026-01-27T..." -> "01-27"
	date := r.ExportedAt
	if len(date) >= 10 {
		date = date[5:10]
	}
	head := lead + styleDate.Render(date) + " "
	used := 2 + runewidth.StringWidth(date) + 1

	if r.Role != "" && r.MsgID >= 0 {
		tag := roleTag(r.Role)
		head += styleRole.Render(tag) + " "
		used += runewidth.StringWidth(tag) + 1
	}
	badge := ""
	if !deletedAt.IsZero() {
		badge = " " + styleGone.Render("deleted")
		used += len(" deleted")
	}

	title := oneLine(r.Title)
	if title == "" {
		title = r.ConversationID
	}
	head += clip(title, width-used) + badge

	snippet := strings.NewReplacer(">>>", "", "<<<", "").Replace(oneLine(r.Snippet))
	body := "    " + lipgloss.NewStyle().Foreground(colorDim).Render(clip(snippet, width-4))
	return []string{head, body}
}

func roleTag(role string) string {
	switch role {
	case "assistant":
		return "asst"
	case "system":
		return "sys"
	}
	return role
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// clip truncates s to at most w terminal columns.
func clip(s string, w int) string {
	w = max(w, 0)
	if runewidth.StringWidth(s) > w {
		return runewidth.Truncate(s, w, "")
	}
	return s
}
