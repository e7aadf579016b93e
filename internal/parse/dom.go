package parse

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DOMSelectors drive scraping of a rendered conversation.
type DOMSelectors struct {
	Messages []string
	Title    string
}

var (
	fileIDRe  = regexp.MustCompile(`file[-_][A-Za-z0-9]+`)
	imgSrcSel = cascadia.MustCompile("img[src]")
)

// FromDOM scrapes a rendered conversation page. Roles cannot be recovered
// from the page, so every message is RoleUnknown; images become attachment
// references carrying only their source address.
func FromDOM(id, page string, sel DOMSelectors) (Record, error) {
	doc, err := ParseHTML(page)
	if err != nil {
		return Record{}, err
	}

	rec := Record{ID: id, Title: FallbackTitle(id), Source: SourceDOM}
	if sel.Title != "" {
		ts, err := cascadia.Compile(sel.Title)
		if err != nil {
			return Record{}, fmt.Errorf("title selector %q: %w", sel.Title, err)
		}
		if n := ts.MatchFirst(doc); n != nil {
			if t := CollapseSpace(InnerText(n)); t != "" {
				rec.Title = Truncate(t, MaxTitle)
			}
		}
	}

	if len(sel.Messages) == 0 {
		return rec, nil
	}
	group, err := cascadia.Compile(strings.Join(sel.Messages, ", "))
	if err != nil {
		return Record{}, fmt.Errorf("message selectors: %w", err)
	}
	for _, n := range Outermost(group.MatchAll(doc)) {
		msg := Message{Role: RoleUnknown, Text: strings.TrimSpace(InnerText(n))}
		for _, img := range cascadia.QueryAll(n, imgSrcSel) {
			src := Attr(img, "src")
			if src == "" || strings.HasPrefix(src, "data:") {
				continue
			}
			msg.addAttachment(AttachmentRef{
				FileID:         ImageFileID(src),
				ConversationID: id,
				SourceURL:      src,
			})
		}
		rec.Append(msg)
	}
	return rec, nil
}

// ImageFileID derives a stable file id from an image address: the embedded
// file id when there is one, otherwise a hash of the address.
func ImageFileID(src string) string {
	if m := fileIDRe.FindString(src); m != "" {
		return m
	}
	sum := sha1.Sum([]byte(src))
	return "img-" + hex.EncodeToString(sum[:6])
}

func ParseHTML(s string) (*html.Node, error) {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Outermost drops nodes nested inside another node of the list.
func Outermost(nodes []*html.Node) []*html.Node {
	in := make(map[*html.Node]bool, len(nodes))
	for _, n := range nodes {
		in[n] = true
	}
	out := nodes[:0:0]
	for _, n := range nodes {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if in[p] {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

func Attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// InnerText approximates the rendered text of n: block elements and <br>
// break lines, scripts and styles are skipped.
func InnerText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Br:
				b.WriteString("\n")
				return
			}
		}
		block := n.Type == html.ElementNode && isBlock(n.DataAtom)
		if block {
			b.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			b.WriteString("\n")
		}
	}
	walk(n)
	return tidyLines(b.String())
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Pre, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Tr, atom.Table, atom.Article, atom.Section, atom.Header, atom.Footer:
		return true
	}
	return false
}

// tidyLines collapses spaces within lines and drops blank lines.
func tidyLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
