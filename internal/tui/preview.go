package tui

import (
	"strconv"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Zuo-Peng/chatsweep/internal/index"
	"github.com/Zuo-Peng/chatsweep/internal/render"
	"github.com/Zuo-Peng/chatsweep/internal/search"
)

// previewMsg carries a rendered conversation back to the browser.
type previewMsg struct {
	key     string
	content string
	hitLine int
	err     error
}

// previewKey identifies what a preview shows: the conversation in one
// archive, scrolled to one hit.
func previewKey(r search.Result) string {
	return r.ConvKey + "@" + strconv.Itoa(r.MsgID)
}

// renderPreview renders the whole conversation off the update loop,
// highlighting query terms and scrolling to the hit.
func renderPreview(db *index.DB, r search.Result, query string, width int) tea.Cmd {
	return func() tea.Msg {
		out, line, err := render.RenderConversation(db, r.ConvKey, render.Options{
			HitMsgID: r.MsgID,
			Context:  -1,
			Width:    width,
			Query:    query,
		})
		return previewMsg{key: previewKey(r), content: out, hitLine: line, err: err}
	}
}

func newViewport(width, height int) viewport.Model {
	vp := viewport.New(width, height)
	vp.Style = stylePanelBorder
	return vp
}
