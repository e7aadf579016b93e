// Package action runs the user-facing operations against the chat
// application. Each operation is a fallback chain that prefers the backend
// API and drops to UI automation or page scraping when the API path fails.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/automate"
	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// Backend is the subset of backend.Client the executor calls.
type Backend interface {
	HideConversation(ctx context.Context, id string) chain.Result[struct{}]
	Conversation(ctx context.Context, id string) chain.Result[[]byte]
	Fetch(ctx context.Context, rawURL string) chain.Result[*transport.Response]
	ConversationURL(id string) string
}

// UIDeleter deletes a conversation by driving the page.
type UIDeleter interface {
	Delete(ctx context.Context, id string) chain.Result[automate.Trace]
}

// Locator finds things in the rendered page.
type Locator interface {
	FindConversations(ctx context.Context) ([]locate.Summary, error)
	FindAttachment(ctx context.Context, ref parse.AttachmentRef) locate.Address
}

// Nudger re-runs credential harvesting.
type Nudger interface {
	Nudge(ctx context.Context)
}

// Outcome names the path that completed a delete.
type Outcome string

const (
	ViaAPI Outcome = "api"
	ViaUI  Outcome = "ui"
)

type Options struct {
	// Hosts the tab must be on before listing. Defaults to browser.ChatHosts.
	Hosts     []string
	Navigate  time.Duration // settle after navigating to a conversation
	Selectors parse.DOMSelectors
}

type Executor struct {
	page    browser.Page
	api     Backend
	ui      UIDeleter
	loc     Locator
	harvest Nudger
	opts    Options
	log     *slog.Logger
	sleep   func(context.Context, time.Duration) error
}

func New(page browser.Page, api Backend, ui UIDeleter, loc Locator, harvest Nudger, opts Options, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	if len(opts.Hosts) == 0 {
		opts.Hosts = browser.ChatHosts
	}
	return &Executor{
		page:    page,
		api:     api,
		ui:      ui,
		loc:     loc,
		harvest: harvest,
		opts:    opts,
		log:     log.With("component", "action"),
		sleep:   automate.Sleep,
	}
}

func (e *Executor) nudge(ctx context.Context) {
	if e.harvest != nil {
		e.harvest.Nudge(ctx)
	}
}

// List returns the conversations shown in the sidebar. It refuses to run
// when the tab has wandered off the chat application.
func (e *Executor) List(ctx context.Context) (r chain.Result[[]locate.Summary]) {
	defer guard(&r, "list")

	cur, err := e.page.URL(ctx)
	if err != nil {
		return chain.Err[[]locate.Summary](chain.Fail(chain.Unexpected, fmt.Errorf("read tab url: %w", err)))
	}
	if !browser.OnOrigin(cur, e.opts.Hosts...) {
		return chain.Err[[]locate.Summary](chain.Failf(chain.ResourceNotFound, "tab is not on the chat application: %s", cur))
	}
	e.nudge(ctx)

	found, err := e.loc.FindConversations(ctx)
	if err != nil {
		return chain.Err[[]locate.Summary](chain.Fail(chain.ResourceNotFound, err))
	}
	return chain.Ok(found)
}

// Delete removes conversation id, through the API when it accepts the call
// and through the sidebar's menus otherwise.
func (e *Executor) Delete(ctx context.Context, id string) (r chain.Result[Outcome]) {
	defer guard(&r, "delete")

	r = chain.Run(ctx, e.log,
		chain.Step[Outcome]{Name: "api", Run: func(ctx context.Context) chain.Result[Outcome] {
			if res := e.api.HideConversation(ctx, id); !res.OK() {
				return chain.Err[Outcome](res.Failure)
			}
			return chain.Ok(ViaAPI)
		}},
		chain.Step[Outcome]{Name: "ui", Run: func(ctx context.Context) chain.Result[Outcome] {
			if res := e.ui.Delete(ctx, id); !res.OK() {
				return chain.Err[Outcome](res.Failure)
			}
			return chain.Ok(ViaUI)
		}},
	)
	if r.OK() {
		e.log.Info("conversation deleted", "id", id, "via", r.Value)
	} else {
		e.log.Warn("delete failed", "id", id, "kind", r.Failure.Kind, "error", r.Failure.Message)
	}
	return r
}

// ReadContent returns the canonical record of conversation id. It always
// succeeds: when neither the API nor the page yields content, the record
// holds a single error message naming the reason.
func (e *Executor) ReadContent(ctx context.Context, id string) (r chain.Result[parse.Record]) {
	defer func() {
		if p := recover(); p != nil {
			r = chain.Ok(parse.ErrorRecord(id, fmt.Errorf("read panicked: %v", p)))
		}
	}()

	r = chain.Run(ctx, e.log,
		chain.Step[parse.Record]{Name: "api", Run: func(ctx context.Context) chain.Result[parse.Record] {
			return e.readAPI(ctx, id)
		}},
		chain.Step[parse.Record]{Name: "dom", Run: func(ctx context.Context) chain.Result[parse.Record] {
			return e.readDOM(ctx, id)
		}},
	)
	if !r.OK() {
		e.log.Warn("read failed, writing error record", "id", id, "kind", r.Failure.Kind, "error", r.Failure.Message)
		return chain.Ok(parse.ErrorRecord(id, r.Failure))
	}
	e.log.Debug("conversation read", "id", id, "source", r.Value.Source, "messages", len(r.Value.Messages))
	return r
}

func (e *Executor) readAPI(ctx context.Context, id string) chain.Result[parse.Record] {
	raw := e.api.Conversation(ctx, id)
	if !raw.OK() {
		return chain.Err[parse.Record](raw.Failure)
	}
	rec, err := parse.FromAPI(id, raw.Value)
	if err != nil {
		return chain.Err[parse.Record](chain.Fail(chain.UpstreamRejected, err))
	}
	return chain.Ok(rec)
}

func (e *Executor) readDOM(ctx context.Context, id string) chain.Result[parse.Record] {
	cur, err := e.page.URL(ctx)
	if err != nil {
		return chain.Err[parse.Record](chain.Fail(chain.Unexpected, err))
	}
	if !browser.Viewing(cur, id) {
		if err := e.page.Navigate(ctx, e.api.ConversationURL(id)); err != nil {
			return chain.Err[parse.Record](chain.Fail(chain.AutomationTimeout, fmt.Errorf("navigate: %w", err)))
		}
		if err := e.sleep(ctx, e.opts.Navigate); err != nil {
			return chain.Err[parse.Record](chain.Fail(chain.AutomationTimeout, err))
		}
		e.nudge(ctx)
	}
	page, err := e.page.HTML(ctx)
	if err != nil {
		return chain.Err[parse.Record](chain.Fail(chain.ResourceNotFound, fmt.Errorf("snapshot: %w", err)))
	}
	rec, err := parse.FromDOM(id, page, e.opts.Selectors)
	if err != nil {
		return chain.Err[parse.Record](chain.Fail(chain.Unexpected, err))
	}
	return chain.Ok(rec)
}

// guard turns a panic into an Unexpected failure on r.
func guard[T any](r *chain.Result[T], op string) {
	if p := recover(); p != nil {
		*r = chain.Err[T](chain.Failf(chain.Unexpected, "%s panicked: %v", op, p))
	}
}
