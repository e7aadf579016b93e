package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/chatsweep/internal/index"
	"github.com/Zuo-Peng/chatsweep/internal/open"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
	"github.com/Zuo-Peng/chatsweep/internal/search"
)

const debounceDelay = 200 * time.Millisecond

// roleCycle is the order the role filter steps through; "" is every role.
var roleCycle = []string{
	"",
	string(parse.RoleUser),
	string(parse.RoleAssistant),
	string(parse.RoleSystem),
	string(parse.RoleUnknown),
	string(parse.RoleError),
}

// browser is the ledger search screen: exported conversations on the left,
// the rendered conversation on the right.
type browser struct {
	db      *index.DB
	opts    search.Options
	listAll bool // empty input lists every conversation instead of nothing

	input   textinput.Model
	hits    hitList
	preview viewport.Model
	shown   string // preview key currently in the viewport

	// seq numbers every query; ticks and results from older queries are dropped
	seq     int
	deleted map[string]time.Time
	notice  string

	width, height int
	ready         bool
	done          bool
	chosen        *search.Result
}

type queryTickMsg struct{ seq int }

type hitsMsg struct {
	seq     int
	results []search.Result
	err     error
}

type deletedMsg map[string]time.Time

type openedMsg struct{ err error }

func newBrowser(db *index.DB, query string, opts search.Options, listAll bool) browser {
	in := textinput.New()
	in.Placeholder = "Search exported chats..."
	if listAll {
		in.Placeholder = "Filter titles, or search..."
	}
	in.Focus()
	in.SetValue(query)
	in.Prompt = "> "
	in.PromptStyle = styleInputPrompt
	in.TextStyle = styleInput
	in.CharLimit = 256

	return browser{
		db:      db,
		opts:    opts,
		listAll: listAll,
		input:   in,
		preview: viewport.New(0, 0),
	}
}

// Run browses search hits for query. Choosing a hit copies its chat URL.
func Run(db *index.DB, query string, opts search.Options) error {
	return run(newBrowser(db, query, opts, false))
}

// RunList browses every indexed conversation, most recently exported first.
func RunList(db *index.DB, opts search.Options) error {
	return run(newBrowser(db, "", opts, true))
}

func run(b browser) error {
	final, err := tea.NewProgram(b, tea.WithAltScreen(), tea.WithMouseCellMotion()).Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	if r := final.(browser).chosen; r != nil {
		copyURL(r.URL())
	}
	return nil
}

// copyURL puts url on the clipboard, printing it instead when no clipboard
// is available.
func copyURL(url string) {
	if err := clipboard.WriteAll(url); err != nil {
		fmt.Println(url)
		return
	}
	fmt.Printf("Copied to clipboard: %s\n", url)
}

func (b browser) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, b.loadDeleted(), b.query())
}

func (b browser) query() tea.Cmd {
	db, opts, seq, listAll := b.db, b.opts, b.seq, b.listAll
	opts.Query = strings.TrimSpace(b.input.Value())
	return func() tea.Msg {
		var rs []search.Result
		var err error
		switch {
		case opts.Query != "":
			rs, err = search.Search(db, opts)
		case listAll:
			rs, err = search.ListAll(db, opts)
		}
		return hitsMsg{seq: seq, results: rs, err: err}
	}
}

func (b browser) loadDeleted() tea.Cmd {
	db := b.db
	return func() tea.Msg {
		// the badge is cosmetic; an unreadable log just shows none
		d, _ := db.DeletedConversations()
		return deletedMsg(d)
	}
}

func openInBrowser(url string) tea.Cmd {
	return func() tea.Msg { return openedMsg{err: open.OpenURL(url)} }
}

func (b browser) View() string {
	if b.done || !b.ready {
		return ""
	}
	g := b.geometry()

	list := stylePanelBorder.Width(g.listW).Height(g.panelH).
		Render(b.renderHits(g.listW, g.panelH))

	b.preview.Width = g.previewW
	b.preview.Height = g.panelH
	pane := styleActiveBorder.Width(g.previewW).Height(g.panelH).
		Render(b.preview.View())

	return lipgloss.JoinVertical(lipgloss.Left,
		b.input.View(),
		lipgloss.JoinHorizontal(lipgloss.Top, list, pane),
		b.statusBar(),
	)
}

func (b browser) statusBar() string {
	role := b.opts.Role
	if role == "" {
		role = "all"
	}
	parts := []string{
		fmt.Sprintf("%d chats", b.hits.len()),
		"role " + role + " (C-r)",
		"Enter copy URL",
		"C-o open",
		"C-u/C-d scroll",
		"Esc quit",
	}
	if r, ok := b.hits.current(); ok {
		if at, gone := b.deleted[r.ConversationID]; gone {
			parts = append(parts, styleGone.Render("deleted from chat "+at.Local().Format("2006-01-02")))
		}
	}
	if b.notice != "" {
		parts = append(parts, b.notice)
	}
	return styleStatusBar.Render(strings.Join(parts, " | "))
}
