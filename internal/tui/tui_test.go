package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/search"
)

func press(t *testing.T, p picker, msgs ...tea.KeyMsg) picker {
	t.Helper()
	for _, m := range msgs {
		next, _ := p.Update(m)
		p = next.(picker)
	}
	return p
}

var (
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	all   = tea.KeyMsg{Type: tea.KeyCtrlA}
)

func typed(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

var items = []locate.Summary{
	{ID: "a1", Title: "Trip to Lisbon"},
	{ID: "b2", Title: "Recipes"},
	{ID: "c3", Title: "Lisbon trams"},
}

func TestPickerMarksInListingOrder(t *testing.T) {
	p := press(t, newPicker("Delete", items), down, down, tab, tea.KeyMsg{Type: tea.KeyUp}, tea.KeyMsg{Type: tea.KeyUp}, tab, enter)
	assert.True(t, p.done)
	assert.Equal(t, []string{"a1", "c3"}, p.selection())
}

func TestPickerEnterTakesCursorRow(t *testing.T) {
	p := press(t, newPicker("Export", items), down, enter)
	assert.Equal(t, []string{"b2"}, p.selection())
}

func TestPickerFilterAndMarkAll(t *testing.T) {
	p := press(t, newPicker("Delete", items), typed("lisbon"))
	require.Len(t, p.visible, 2)

	p = press(t, p, all)
	assert.Equal(t, []string{"a1", "c3"}, p.selection())

	p = press(t, p, all)
	assert.Empty(t, p.selection())
}

func TestPickerCancel(t *testing.T) {
	p := press(t, newPicker("Delete", items), tab, esc)
	assert.True(t, p.cancelled)
	assert.Empty(t, p.View())
}

func TestPickerView(t *testing.T) {
	p := press(t, newPicker("Delete conversations", items), tab)
	v := p.View()
	assert.Contains(t, v, "Delete conversations")
	assert.Contains(t, v, "Recipes")
	assert.Contains(t, v, "1/3 marked")
}

func TestHitRows(t *testing.T) {
	r := search.Result{ConversationID: "c1", MsgID: 3, Role: "assistant", Title: "Trip\nplanning", ExportedAt: "2026-03-14T09:00:00Z", Snippet: "a >>>lisbon<<< trip"}
	lines := hitRows(r, 60, true, time.Time{})
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "03-14")
	assert.Contains(t, lines[0], "asst")
	assert.Contains(t, lines[0], "Trip planning")
	assert.NotContains(t, lines[0], "deleted")
	assert.Contains(t, lines[1], "a lisbon trip")
	assert.False(t, strings.Contains(lines[1], ">>>"))

	gone := hitRows(r, 60, false, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	assert.Contains(t, gone[0], "deleted")
}

func hits(ids ...string) []search.Result {
	var rs []search.Result
	for _, id := range ids {
		rs = append(rs, search.Result{ConvKey: "a.zip#" + id, ConversationID: id, Title: id})
	}
	return rs
}

func step(t *testing.T, b browser, msgs ...tea.Msg) browser {
	t.Helper()
	for _, m := range msgs {
		next, _ := b.Update(m)
		b = next.(browser)
	}
	return b
}

func TestBrowserDropsStaleResults(t *testing.T) {
	b := newBrowser(nil, "", search.Options{}, true)
	b = step(t, b, tea.WindowSizeMsg{Width: 100, Height: 30}, typed("lis"))
	require.Equal(t, 1, b.seq)

	b = step(t, b, hitsMsg{seq: 0, results: hits("old")})
	assert.Equal(t, 0, b.hits.len())

	b = step(t, b, hitsMsg{seq: 1, results: hits("a", "b")})
	assert.Equal(t, 2, b.hits.len())
}

func TestBrowserCyclesRoleFilter(t *testing.T) {
	b := newBrowser(nil, "x", search.Options{}, false)
	var seen []string
	for range roleCycle {
		b = step(t, b, tea.KeyMsg{Type: tea.KeyCtrlR})
		seen = append(seen, b.opts.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "system", "unknown", "error", ""}, seen)
	assert.Equal(t, len(roleCycle), b.seq)
}

func TestBrowserEnterChoosesHit(t *testing.T) {
	b := newBrowser(nil, "", search.Options{}, true)
	b = step(t, b, hitsMsg{results: hits("a", "b")}, down, enter)
	require.NotNil(t, b.chosen)
	assert.Equal(t, "b", b.chosen.ConversationID)
	assert.True(t, b.done)
}

func TestBrowserStatusShowsDeleted(t *testing.T) {
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	b := newBrowser(nil, "", search.Options{}, true)
	b = step(t, b, hitsMsg{results: hits("a")}, deletedMsg{"a": at})
	assert.Contains(t, b.statusBar(), "deleted from chat")
	assert.Contains(t, b.statusBar(), "role all")
}

func TestHitListScrolls(t *testing.T) {
	var h hitList
	h.reset(hits("a", "b", "c", "d", "e"))
	assert.False(t, h.moveTo(0, 2))
	assert.True(t, h.moveTo(3, 2))
	assert.Equal(t, 2, h.offset)
	assert.False(t, h.moveTo(9, 2))

	h.scrollBy(10, 2)
	assert.Equal(t, 3, h.offset)
	h.scrollBy(-10, 2)
	assert.Equal(t, 0, h.offset)
}

func TestGeometryHitTest(t *testing.T) {
	g := browser{width: 100, height: 30}.geometry()
	assert.Equal(t, 36, g.listW)
	assert.Equal(t, 24, g.panelH)

	r, row := g.hitTest(5, 2)
	assert.Equal(t, regionList, r)
	assert.Equal(t, 0, row)
	r, row = g.hitTest(5, 5)
	assert.Equal(t, regionList, r)
	assert.Equal(t, 1, row)
	r, _ = g.hitTest(60, 10)
	assert.Equal(t, regionPreview, r)
	r, _ = g.hitTest(5, 0)
	assert.Equal(t, regionNone, r)
}

func TestClip(t *testing.T) {
	assert.Equal(t, "日本", clip("日本語", 5))
	assert.Equal(t, "", clip("abc", -3))
	assert.Equal(t, "abc", clip("abc", 10))
}
