// Package roddriver implements browser.Page with go-rod.
package roddriver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

type Page struct {
	browser *rod.Browser
	page    *rod.Page
	log     *slog.Logger

	cancelEvents context.CancelFunc

	mu        sync.Mutex
	observers map[int]transport.Observer
	nextObs   int
}

var _ browser.Page = (*Page)(nil)

// Open launches (or attaches to) a browser and opens one tab on StartURL.
func Open(ctx context.Context, opts browser.Options, log *slog.Logger) (*Page, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "roddriver")

	var controlURL string
	if opts.RemoteURL != "" {
		u, err := launcher.ResolveURL(opts.RemoteURL)
		if err != nil {
			return nil, fmt.Errorf("resolve devtools url: %w", err)
		}
		log.Info("connecting to browser", "url", u)
		controlURL = u
	} else {
		if err := os.MkdirAll(opts.ProfileDir, 0o755); err != nil {
			return nil, fmt.Errorf("create profile dir: %w", err)
		}
		path, _ := launcher.LookPath()
		l := launcher.New().Bin(path).Headless(opts.Headless).UserDataDir(opts.ProfileDir)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		log.Info("launched browser", "profile", opts.ProfileDir, "headless", opts.Headless)
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	pg, err := b.Page(proto.TargetCreateTarget{URL: opts.StartURL})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := (proto.NetworkEnable{}).Call(pg); err != nil {
		b.Close()
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	p := &Page{browser: b, page: pg, log: log, observers: map[int]transport.Observer{}}

	ectx, cancel := context.WithCancel(context.Background())
	p.cancelEvents = cancel
	wait := pg.Context(ectx).EachEvent(
		func(e *proto.NetworkRequestWillBeSent) {
			if e.Request != nil {
				p.emit(transport.Exchange{Direction: transport.Outbound, URL: e.Request.URL, Header: toHeader(e.Request.Headers)})
			}
		},
		func(e *proto.NetworkResponseReceived) {
			if e.Response != nil {
				p.emit(transport.Exchange{Direction: transport.Inbound, URL: e.Response.URL, Header: toHeader(e.Response.Headers)})
			}
		},
	)
	go wait()

	return p, nil
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *Page) WaitLoad(ctx context.Context, timeout time.Duration) error {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := p.page.Context(wctx).WaitLoad()
	if err != nil && errors.Is(wctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		p.log.Debug("page load wait timed out", "timeout", timeout)
		return nil
	}
	return err
}

func (p *Page) Reload(ctx context.Context) error {
	return p.page.Context(ctx).Reload()
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("snapshot html: %w", err)
	}
	return html, nil
}

func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	res, err := p.page.Context(ctx).Eval(browser.Wrap(expr))
	if err != nil {
		return fmt.Errorf("eval: %w", err)
	}
	return browser.Decode(res.Value.Str(), out)
}

func (p *Page) Cookies(ctx context.Context) ([]credential.Cookie, error) {
	cookies, err := p.page.Context(ctx).Cookies(nil)
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

func (p *Page) emit(e transport.Exchange) {
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

func toHeader(h proto.NetworkHeaders) http.Header {
	out := make(http.Header, len(h))
	for k, v := range h {
		out[k] = []string{v.Str()}
	}
	return out
}

func (p *Page) Close() error {
	if p.cancelEvents != nil {
		p.cancelEvents()
	}
	return p.browser.Close()
}
