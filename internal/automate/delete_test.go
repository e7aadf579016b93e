package automate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/browser/browsertest"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
)

var testSettle = Settle{
	Scroll:       50 * time.Millisecond,
	Hover:        200 * time.Millisecond,
	Menu:         300 * time.Millisecond,
	Confirm:      500 * time.Millisecond,
	OptionsTries: 3,
	MaxClimb:     5,
}

func newDeleter(p *browsertest.Page) (*Deleter, *[]time.Duration) {
	d := NewDeleter(p, testSettle, nil)
	var pauses []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		pauses = append(pauses, dur)
		return nil
	}
	return d, &pauses
}

func TestDeleteHappyPath(t *testing.T) {
	p := browsertest.New("https://chatgpt.com/")
	p.Returns("findRow", true).
		Returns("hoverRow", true).
		Returns("openOptions", true).
		Returns("clickDeleteOption", true).
		Returns("confirmDelete", true)

	d, pauses := newDeleter(p)
	r := d.Delete(context.Background(), "abc")
	require.True(t, r.OK())
	assert.Equal(t, Trace{Options: true, DeleteOption: "menu-item", Confirm: true}, r.Value)

	assert.Equal(t, 1, p.Count("hoverRow"))
	assert.Zero(t, p.Count("openContextMenu"))
	assert.Zero(t, p.Count("clickDeleteText"))
	assert.Equal(t, []time.Duration{
		50 * time.Millisecond,  // scroll
		200 * time.Millisecond, // hover
		300 * time.Millisecond, // options menu
		300 * time.Millisecond, // delete option
		300 * time.Millisecond, // before confirm
		500 * time.Millisecond, // confirm
	}, *pauses)
	assert.Contains(t, p.Evals[0], `"abc"`)
	assert.Contains(t, p.Evals[len(p.Evals)-2], `(5)`)
}

func TestDeleteEscalatesToContextMenu(t *testing.T) {
	p := browsertest.New("https://chatgpt.com/")
	p.Returns("findRow", true).
		Returns("hoverRow", true).
		Returns("openOptions", false).
		Returns("openContextMenu", true).
		Returns("clickDeleteOption", false).
		Returns("clickDeleteText", true).
		Returns("confirmDelete", false)

	d, _ := newDeleter(p)
	r := d.Delete(context.Background(), "abc")
	require.True(t, r.OK(), "the chain reports success once it has run")
	assert.Equal(t, Trace{ContextMenu: true, DeleteOption: "exact-text"}, r.Value)
	assert.Equal(t, 3, p.Count("hoverRow"))
	assert.Equal(t, 3, p.Count("openOptions"))
	assert.Equal(t, 1, p.Count("openContextMenu"))
}

func TestDeleteRowMissing(t *testing.T) {
	p := browsertest.New("https://chatgpt.com/")
	p.Returns("findRow", false)

	d, _ := newDeleter(p)
	r := d.Delete(context.Background(), "gone")
	require.False(t, r.OK())
	assert.Equal(t, chain.ResourceNotFound, r.Failure.Kind)
	assert.Zero(t, p.Count("hoverRow"))
}

func TestDeleteCancelled(t *testing.T) {
	p := browsertest.New("https://chatgpt.com/")
	p.Returns("findRow", true)
	d := NewDeleter(p, testSettle, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := d.Delete(ctx, "abc")
	require.False(t, r.OK())
	assert.Equal(t, chain.AutomationTimeout, r.Failure.Kind)
}
