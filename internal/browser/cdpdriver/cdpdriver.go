// Package cdpdriver implements browser.Page with chromedp.
package cdpdriver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

type Page struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	log         *slog.Logger

	mu        sync.Mutex
	observers map[int]transport.Observer
	nextObs   int
}

var _ browser.Page = (*Page)(nil)

// Open launches Chrome on the profile directory (or attaches to RemoteURL)
// and returns its first tab with network events enabled.
func Open(ctx context.Context, opts browser.Options, log *slog.Logger) (*Page, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "cdpdriver")

	var (
		actx        context.Context
		cancelAlloc context.CancelFunc
	)
	if opts.RemoteURL != "" {
		log.Info("connecting to Chrome", "url", opts.RemoteURL)
		actx, cancelAlloc = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		log.Info("launching Chrome", "profile", opts.ProfileDir, "headless", opts.Headless)
		actx, cancelAlloc = chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	}

	tctx, cancelTab := chromedp.NewContext(actx)
	p := &Page{
		ctx:         tctx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		log:         log,
		observers:   map[int]transport.Observer{},
	}
	chromedp.ListenTarget(tctx, p.onEvent)

	actions := []chromedp.Action{network.Enable()}
	if opts.StartURL != "" {
		actions = append(actions, chromedp.Navigate(opts.StartURL))
	}
	if err := chromedp.Run(tctx, actions...); err != nil {
		p.Close()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return p, nil
}

func allocatorOptions(opts browser.Options) []chromedp.ExecAllocatorOption {
	o := []chromedp.ExecAllocatorOption{
		chromedp.UserDataDir(opts.ProfileDir),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("hide-crash-restore-bubble", true),
		chromedp.WindowSize(1366, 768),
	}
	if opts.Headless {
		o = append(o, chromedp.Headless)
	} else {
		o = append(o, chromedp.Flag("headless", false))
	}
	return o
}

// run executes actions on the tab, bounded by the caller's ctx.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		rctx, cancelDL = context.WithDeadline(rctx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(rctx, actions...)
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) WaitLoad(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		var state string
		if err := p.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err == nil && state == "complete" {
			return nil
		}
		if time.Now().After(deadline) {
			p.log.Debug("page load wait timed out", "timeout", timeout)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (p *Page) Reload(ctx context.Context) error {
	return p.run(ctx, chromedp.Reload())
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var u string
	err := p.run(ctx, chromedp.Location(&u))
	return u, err
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("snapshot html: %w", err)
	}
	return html, nil
}

func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	var raw string
	err := p.run(ctx, chromedp.Evaluate(browser.Wrap(expr), &raw, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	return browser.Decode(raw, out)
}

func (p *Page) Cookies(ctx context.Context) ([]credential.Cookie, error) {
	var cookies []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	out := make([]credential.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, credential.Cookie{Name: c.Name, Value: c.Value})
	}
	return out, nil
}

func (p *Page) Observe(fn transport.Observer) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.observers, id)
	}
}

func (p *Page) onEvent(ev any) {
	var e transport.Exchange
	switch ev := ev.(type) {
	case *network.EventRequestWillBeSent:
		if ev.Request == nil {
			return
		}
		e = transport.Exchange{Direction: transport.Outbound, URL: ev.Request.URL, Header: toHeader(ev.Request.Headers)}
	case *network.EventRequestWillBeSentExtraInfo:
		e = transport.Exchange{Direction: transport.Outbound, Header: toHeader(ev.Headers)}
	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		e = transport.Exchange{Direction: transport.Inbound, URL: ev.Response.URL, Header: toHeader(ev.Response.Headers)}
	default:
		return
	}

	p.mu.Lock()
	obs := make([]transport.Observer, 0, len(p.observers))
	for _, o := range p.observers {
		obs = append(obs, o)
	}
	p.mu.Unlock()
	for _, o := range obs {
		o(e)
	}
}

func toHeader(h network.Headers) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			out[k] = []string{s}
		} else {
			out[k] = []string{fmt.Sprint(v)}
		}
	}
	return out
}

func (p *Page) Close() error {
	if p.cancelTab != nil {
		p.cancelTab()
	}
	if p.cancelAlloc != nil {
		p.cancelAlloc()
	}
	return nil
}
