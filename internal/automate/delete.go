// Package automate drives the chat UI the way a user would, for when the
// backend refuses a request.
package automate

import (
	"context"
	"log/slog"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
)

// Settle holds the pauses after each simulated action. The host UI reacts
// asynchronously, so every step waits before inspecting the page again.
type Settle struct {
	Scroll  time.Duration
	Hover   time.Duration
	Menu    time.Duration
	Confirm time.Duration
	// OptionsTries is how many hover rounds are tried before giving up on
	// the options control; the last round also opens a context menu.
	OptionsTries int
	// MaxClimb bounds the ancestor walk from a "delete" label to something
	// clickable.
	MaxClimb int
}

// Trace records which controls the delete chain actually clicked.
type Trace struct {
	Options      bool
	ContextMenu  bool
	DeleteOption string // strategy that clicked it, empty when none did
	Confirm      bool
}

type Deleter struct {
	page   browser.Page
	settle Settle
	log    *slog.Logger
	sleep  func(context.Context, time.Duration) error
}

func NewDeleter(page browser.Page, settle Settle, log *slog.Logger) *Deleter {
	if log == nil {
		log = slog.Default()
	}
	if settle.OptionsTries < 1 {
		settle.OptionsTries = 1
	}
	return &Deleter{page: page, settle: settle, log: log.With("component", "automate"), sleep: Sleep}
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *Deleter) eval(ctx context.Context, fn string, args ...any) bool {
	var ok bool
	if err := d.page.Eval(ctx, browser.Call(fn, args...), &ok); err != nil {
		d.log.Debug("ui step failed", "error", err)
		return false
	}
	return ok
}

func (d *Deleter) pause(ctx context.Context, dur time.Duration) *chain.Failure {
	if err := d.sleep(ctx, dur); err != nil {
		return chain.Fail(chain.AutomationTimeout, err)
	}
	return nil
}

// Delete runs the UI deletion chain for conversation id: reveal and open
// the row's options, click "Delete", confirm. It succeeds once the chain has
// run to the end; it does not check that the row disappeared.
func (d *Deleter) Delete(ctx context.Context, id string) chain.Result[Trace] {
	var tr Trace

	if !d.eval(ctx, findRowJS, id) {
		return chain.Err[Trace](chain.Failf(chain.ResourceNotFound, "conversation not found in page: %s", id))
	}
	if f := d.pause(ctx, d.settle.Scroll); f != nil {
		return chain.Err[Trace](f)
	}

	for attempt := 0; attempt < d.settle.OptionsTries; attempt++ {
		d.eval(ctx, hoverRowJS, id)
		if f := d.pause(ctx, d.settle.Hover); f != nil {
			return chain.Err[Trace](f)
		}
		if d.eval(ctx, openOptionsJS) {
			tr.Options = true
			if f := d.pause(ctx, d.settle.Menu); f != nil {
				return chain.Err[Trace](f)
			}
			break
		}
		if attempt == d.settle.OptionsTries-1 {
			tr.ContextMenu = d.eval(ctx, contextMenuJS, id)
			if f := d.pause(ctx, d.settle.Menu); f != nil {
				return chain.Err[Trace](f)
			}
		}
	}

	clicked := chain.Run(ctx, d.log,
		chain.Step[string]{Name: "menu-item", Run: d.clickStep("menu-item", clickDeleteOptionJS, d.settle.MaxClimb)},
		chain.Step[string]{Name: "exact-text", Run: d.clickStep("exact-text", clickDeleteTextJS)},
	)
	if clicked.OK() {
		tr.DeleteOption = clicked.Value
		if f := d.pause(ctx, d.settle.Menu); f != nil {
			return chain.Err[Trace](f)
		}
	}
	if f := d.pause(ctx, d.settle.Menu); f != nil {
		return chain.Err[Trace](f)
	}

	if d.eval(ctx, confirmJS) {
		tr.Confirm = true
		if f := d.pause(ctx, d.settle.Confirm); f != nil {
			return chain.Err[Trace](f)
		}
	}

	d.log.Debug("ui delete finished", "id", id, "options", tr.Options, "context_menu", tr.ContextMenu,
		"delete_option", tr.DeleteOption, "confirm", tr.Confirm)
	return chain.Ok(tr)
}

func (d *Deleter) clickStep(name, fn string, args ...any) func(context.Context) chain.Result[string] {
	return func(ctx context.Context) chain.Result[string] {
		if d.eval(ctx, fn, args...) {
			return chain.Ok(name)
		}
		return chain.Err[string](chain.Failf(chain.AutomationTimeout, "%s: no delete control visible", name))
	}
}
