package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Zuo-Peng/chatsweep/internal/locate"
)

// picker is a filterable multi-select over the conversations listed in the
// chat tab.
type picker struct {
	heading    string
	items      []locate.Summary
	visible    []int // indexes into items matching the filter
	marked     map[string]bool
	cursor     int
	listOffset int
	filter     textinput.Model
	width      int
	height     int
	done       bool
	cancelled  bool
}

func newPicker(heading string, items []locate.Summary) picker {
	ti := textinput.New()
	ti.Placeholder = "Filter..."
	ti.Focus()
	ti.Prompt = "> "
	ti.PromptStyle = styleInputPrompt
	ti.TextStyle = styleInput
	ti.CharLimit = 256

	p := picker{heading: heading, items: items, marked: map[string]bool{}, filter: ti}
	p.applyFilter()
	return p
}

// Pick lets the user mark conversations and returns the marked ids in
// listing order. A cancelled picker returns no ids and no error.
func Pick(heading string, items []locate.Summary) ([]string, error) {
	prog := tea.NewProgram(newPicker(heading, items), tea.WithAltScreen())
	final, err := prog.Run()
	if err != nil {
		return nil, fmt.Errorf("tui: %w", err)
	}
	p := final.(picker)
	if p.cancelled {
		return nil, nil
	}
	return p.selection(), nil
}

func (p picker) selection() []string {
	var ids []string
	for _, it := range p.items {
		if p.marked[it.ID] {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

func (p *picker) applyFilter() {
	q := strings.ToLower(strings.TrimSpace(p.filter.Value()))
	p.visible = p.visible[:0]
	for i, it := range p.items {
		if q == "" || strings.Contains(strings.ToLower(it.Title), q) || strings.Contains(it.ID, q) {
			p.visible = append(p.visible, i)
		}
	}
	p.cursor = min(p.cursor, max(len(p.visible)-1, 0))
	p.listOffset = 0
	p.scroll()
}

func (p picker) listHeight() int {
	if p.height <= 0 {
		return 20
	}
	// heading, input, status
	return max(p.height-3, 3)
}

func (p *picker) scroll() {
	h := p.listHeight()
	if p.cursor < p.listOffset {
		p.listOffset = p.cursor
	}
	if p.cursor >= p.listOffset+h {
		p.listOffset = p.cursor - h + 1
	}
}

func (p picker) Init() tea.Cmd {
	return textinput.Blink
}

func (p picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.scroll()
		return p, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			p.cancelled = true
			return p, tea.Quit

		case key.Matches(msg, keys.Enter):
			// with nothing marked, Enter takes the row under the cursor
			if len(p.marked) == 0 && len(p.visible) > 0 {
				p.marked[p.items[p.visible[p.cursor]].ID] = true
			}
			p.done = true
			return p, tea.Quit

		case key.Matches(msg, keys.Toggle):
			if len(p.visible) > 0 {
				id := p.items[p.visible[p.cursor]].ID
				if p.marked[id] {
					delete(p.marked, id)
				} else {
					p.marked[id] = true
				}
				if p.cursor < len(p.visible)-1 {
					p.cursor++
					p.scroll()
				}
			}
			return p, nil

		case key.Matches(msg, keys.All):
			all := true
			for _, i := range p.visible {
				if !p.marked[p.items[i].ID] {
					all = false
					break
				}
			}
			for _, i := range p.visible {
				if all {
					delete(p.marked, p.items[i].ID)
				} else {
					p.marked[p.items[i].ID] = true
				}
			}
			return p, nil

		case key.Matches(msg, keys.Up):
			if p.cursor > 0 {
				p.cursor--
				p.scroll()
			}
			return p, nil

		case key.Matches(msg, keys.Down):
			if p.cursor < len(p.visible)-1 {
				p.cursor++
				p.scroll()
			}
			return p, nil
		}

		var cmd tea.Cmd
		before := p.filter.Value()
		p.filter, cmd = p.filter.Update(msg)
		if p.filter.Value() != before {
			p.applyFilter()
		}
		return p, cmd
	}
	return p, nil
}

func (p picker) View() string {
	if p.done || p.cancelled {
		return ""
	}
	width := p.width
	if width <= 0 {
		width = 80
	}

	var rows []string
	h := p.listHeight()
	for n, i := range p.visible {
		if n < p.listOffset {
			continue
		}
		if len(rows) >= h {
			break
		}
		it := p.items[i]
		mark := "[ ]"
		if p.marked[it.ID] {
			mark = styleMarked.Render("[x]")
		}
		cursor := "  "
		if n == p.cursor {
			cursor = styleListSelected.Render("> ")
		}
		title := it.Title
		if title == "" {
			title = it.ID
		}
		rows = append(rows, fmt.Sprintf("%s%s %s", cursor, mark, clip(title, width-8)))
	}
	if len(p.visible) == 0 {
		rows = append(rows, lipgloss.NewStyle().Foreground(colorDim).Render("  No conversations"))
	}
	for len(rows) < h {
		rows = append(rows, "")
	}

	status := styleStatusBar.Render(strings.Join([]string{
		fmt.Sprintf("%d/%d marked", len(p.marked), len(p.items)),
		"tab mark",
		"C-a mark all",
		"Enter confirm",
		"Esc cancel",
	}, " | "))

	return lipgloss.JoinVertical(lipgloss.Left,
		styleTitle.Render(p.heading),
		p.filter.View(),
		strings.Join(rows, "\n"),
		status,
	)
}
