// Package browsertest provides a scripted in-memory browser.Page for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// Handler answers an Eval whose expression contains its marker.
type Handler func(expr string) (any, error)

type handler struct {
	marker string
	fn     Handler
}

// Page records every call. HTML returns ByURL[current URL] when present,
// otherwise the next entry of Snapshots (the last one repeats).
type Page struct {
	mu sync.Mutex

	CurrentURL string
	ByURL      map[string]string
	Snapshots  []string
	HTMLErr    error
	CookieJar  []credential.Cookie

	Evals       []string
	Navigations []string
	Reloads     int
	Waits       int

	handlers  []handler
	observers map[int]transport.Observer
	nextObs   int
	snapshot  int
}

func New(url string) *Page {
	return &Page{CurrentURL: url, ByURL: map[string]string{}, observers: map[int]transport.Observer{}}
}

// Handle registers fn for expressions containing marker. Earlier
// registrations win.
func (p *Page) Handle(marker string, fn Handler) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler{marker: marker, fn: fn})
	return p
}

// Returns registers a constant answer for marker.
func (p *Page) Returns(marker string, v any) *Page {
	return p.Handle(marker, func(string) (any, error) { return v, nil })
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Navigations = append(p.Navigations, url)
	p.CurrentURL = url
	return nil
}

func (p *Page) WaitLoad(ctx context.Context, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Waits++
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Reloads++
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.HTMLErr != nil {
		return "", p.HTMLErr
	}
	if h, ok := p.ByURL[p.CurrentURL]; ok {
		return h, nil
	}
	if len(p.Snapshots) == 0 {
		return "<html><body></body></html>", nil
	}
	i := p.snapshot
	if i >= len(p.Snapshots) {
		i = len(p.Snapshots) - 1
	} else {
		p.snapshot++
	}
	return p.Snapshots[i], nil
}

func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	p.mu.Lock()
	p.Evals = append(p.Evals, expr)
	var fn Handler
	for _, h := range p.handlers {
		if strings.Contains(expr, h.marker) {
			fn = h.fn
			break
		}
	}
	p.mu.Unlock()

	if fn == nil {
		return fmt.Errorf("browsertest: no handler for %.60q", expr)
	}
	v, err := fn(expr)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (p *Page) Cookies(ctx context.Context) ([]credential.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CookieJar, nil
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

// Emit delivers e to every active observer.
func (p *Page) Emit(e transport.Exchange) {
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

func (p *Page) Close() error { return nil }

// Count returns how many Eval expressions contained marker.
func (p *Page) Count(marker string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.Evals {
		if strings.Contains(e, marker) {
			n++
		}
	}
	return n
}
