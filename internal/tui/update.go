package tui

import (
	"slices"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

func (b browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		b.ready = true
		g := b.geometry()
		b.preview = newViewport(g.previewW, g.panelH)
		b.shown = ""
		return b, b.showCurrent()

	case tea.KeyMsg:
		return b.onKey(msg)

	case tea.MouseMsg:
		return b.onMouse(msg)

	case queryTickMsg:
		if msg.seq != b.seq {
			return b, nil
		}
		return b, b.query()

	case hitsMsg:
		if msg.seq != b.seq {
			return b, nil
		}
		b.hits.reset(msg.results)
		b.shown = ""
		if msg.err != nil {
			b.preview.SetContent("Error: " + msg.err.Error())
			return b, nil
		}
		if b.hits.len() == 0 {
			b.preview.SetContent("")
			return b, nil
		}
		return b, b.showCurrent()

	case deletedMsg:
		b.deleted = msg
		return b, nil

	case openedMsg:
		b.notice = "opened in browser"
		if msg.err != nil {
			b.notice = msg.err.Error()
		}
		return b, nil

	case previewMsg:
		r, ok := b.hits.current()
		if !ok || msg.key != previewKey(r) || msg.key == b.shown {
			return b, nil
		}
		b.shown = msg.key
		if msg.err != nil {
			b.preview.SetContent("Preview error: " + msg.err.Error())
			return b, nil
		}
		b.preview.SetContent(msg.content)
		if msg.hitLine > 0 {
			b.preview.SetYOffset(msg.hitLine)
		} else {
			b.preview.GotoTop()
		}
		return b, nil
	}
	return b, nil
}

func (b browser) onKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	half := b.geometry().panelH / 2
	switch {
	case key.Matches(msg, keys.Quit):
		b.done = true
		return b, tea.Quit

	case key.Matches(msg, keys.Enter):
		if r, ok := b.hits.current(); ok {
			b.chosen = &r
			b.done = true
			return b, tea.Quit
		}
		return b, nil

	case key.Matches(msg, keys.Open):
		if r, ok := b.hits.current(); ok {
			return b, openInBrowser(r.URL())
		}
		return b, nil

	case key.Matches(msg, keys.Role):
		i := slices.Index(roleCycle, b.opts.Role)
		b.opts.Role = roleCycle[(i+1)%len(roleCycle)]
		b.seq++
		return b, b.query()

	case key.Matches(msg, keys.Up):
		return b.moveTo(b.hits.cursor - 1)

	case key.Matches(msg, keys.Down):
		return b.moveTo(b.hits.cursor + 1)

	case key.Matches(msg, keys.PreviewUp):
		b.preview.LineUp(half)
		return b, nil

	case key.Matches(msg, keys.PreviewDn):
		b.preview.LineDown(half)
		return b, nil

	case key.Matches(msg, keys.PageUp):
		b.preview.LineUp(half * 2)
		return b, nil

	case key.Matches(msg, keys.PageDown):
		b.preview.LineDown(half * 2)
		return b, nil
	}

	before := b.input.Value()
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	if b.input.Value() == before {
		return b, cmd
	}
	b.seq++
	seq := b.seq
	tick := tea.Tick(debounceDelay, func(time.Time) tea.Msg { return queryTickMsg{seq: seq} })
	return b, tea.Batch(cmd, tick)
}

func (b browser) onMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if !b.ready || b.hits.len() == 0 {
		return b, nil
	}
	g := b.geometry()
	region, row := g.hitTest(msg.X, msg.Y)

	switch region {
	case regionList:
		switch {
		case msg.Button == tea.MouseButtonWheelUp:
			b.hits.scrollBy(-1, g.visibleRows())
		case msg.Button == tea.MouseButtonWheelDown:
			b.hits.scrollBy(1, g.visibleRows())
		case msg.Button == tea.MouseButtonLeft && msg.Action == tea.MouseActionPress:
			return b.moveTo(b.hits.offset + row)
		}
	case regionPreview:
		if msg.Button == tea.MouseButtonWheelUp || msg.Button == tea.MouseButtonWheelDown {
			var cmd tea.Cmd
			b.preview, cmd = b.preview.Update(msg)
			return b, cmd
		}
	}
	return b, nil
}

func (b browser) moveTo(i int) (tea.Model, tea.Cmd) {
	if !b.hits.moveTo(i, b.geometry().visibleRows()) {
		return b, nil
	}
	return b, b.showCurrent()
}

func (b browser) showCurrent() tea.Cmd {
	r, ok := b.hits.current()
	if !ok || previewKey(r) == b.shown {
		return nil
	}
	return renderPreview(b.db, r, b.input.Value(), b.geometry().previewW)
}
