// Package locate finds conversations and attachment addresses in the
// rendered page.
package locate

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

// Summary is one conversation in the listing.
type Summary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

var (
	conversationHrefRe = regexp.MustCompile(`(?i)/c/([a-z0-9-]+)`)
	rawIDRe            = regexp.MustCompile(`(?i)^[a-z0-9-]+$`)
)

// Addresses builds backend addresses for files the page does not show.
type Addresses interface {
	BaseURL() string
	FileDownloadURL(conversationID, fileID string) string
	ContentURL(fileID string) string
}

type Config struct {
	Conversations []string // listing strategies, most specific first
	Trigger       time.Duration
}

type Locator struct {
	page  browser.Page
	addrs Addresses
	cfg   Config
	log   *slog.Logger
}

func New(page browser.Page, addrs Addresses, cfg Config, log *slog.Logger) *Locator {
	if log == nil {
		log = slog.Default()
	}
	return &Locator{page: page, addrs: addrs, cfg: cfg, log: log.With("component", "locate")}
}

// FindConversations lists the conversations in the page's sidebar.
func (l *Locator) FindConversations(ctx context.Context) ([]Summary, error) {
	page, err := l.page.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	doc, err := parse.ParseHTML(page)
	if err != nil {
		return nil, fmt.Errorf("find conversations: %w", err)
	}
	out, strategy, err := Conversations(doc, l.cfg.Conversations)
	if err != nil {
		return nil, err
	}
	l.log.Debug("conversations found", "count", len(out), "selector", strategy)
	return out, nil
}

// Conversations applies the selector strategies in order. The first one
// that matches anything is used alone; the returned string names it.
func Conversations(doc *html.Node, selectors []string) ([]Summary, string, error) {
	for _, s := range selectors {
		sel, err := cascadia.Compile(s)
		if err != nil {
			return nil, "", fmt.Errorf("selector %q: %w", s, err)
		}
		nodes := sel.MatchAll(doc)
		if len(nodes) == 0 {
			continue
		}
		return summarize(nodes), s, nil
	}
	return []Summary{}, "", nil
}

func summarize(nodes []*html.Node) []Summary {
	out := []Summary{}
	seen := make(map[string]bool)
	for _, n := range nodes {
		m := conversationHrefRe.FindStringSubmatch(parse.Attr(n, "href"))
		if m == nil || seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, Summary{ID: m[1], Title: resolveTitle(n)})
	}
	return out
}

// resolveTitle prefers the element's own text; when that is empty or looks
// like a raw id it climbs to the enclosing button, list item or parent.
func resolveTitle(n *html.Node) string {
	title := parse.CollapseSpace(parse.InnerText(n))
	if title == "" || rawIDRe.MatchString(title) {
		if p := titleAncestor(n); p != nil {
			title = parse.CollapseSpace(parse.InnerText(p))
		}
	}
	title = parse.Truncate(title, parse.MaxTitle)
	if title == "" {
		return "Conversation"
	}
	return title
}

func titleAncestor(n *html.Node) *html.Node {
	if p := closest(n, func(e *html.Node) bool { return parse.Attr(e, "role") == "button" }); p != nil {
		return p
	}
	if p := closest(n, func(e *html.Node) bool { return e.Data == "li" }); p != nil {
		return p
	}
	if n.Parent != nil && n.Parent.Type == html.ElementNode {
		return n.Parent
	}
	return nil
}

// closest returns the nearest element ancestor (excluding n) matching pred.
func closest(n *html.Node, pred func(*html.Node) bool) *html.Node {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && pred(p) {
			return p
		}
	}
	return nil
}
