package locate

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/Zuo-Peng/chatsweep/internal/browser"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

// Address is where an attachment's bytes can be fetched from.
type Address struct {
	URL      string
	Strategy string
	// Synthetic addresses were built rather than found in the page.
	Synthetic bool
}

// DocumentExtensions mark controls that plausibly open a file preview.
var DocumentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv", ".zip"}

var (
	imgSel       = cascadia.MustCompile("img[src]")
	linkSel      = cascadia.MustCompile("a[href], [download]")
	anchorSel    = cascadia.MustCompile("a[href]")
	fileLikeSel  = cascadia.MustCompile(`[class*="file"], [class*="attachment"], [data-testid*="file"], [data-testid*="attachment"]`)
	urlAttrSel   = cascadia.MustCompile("[href], [src], [data-url], [data-src]")
	previewSel   = cascadia.MustCompile("img[src], iframe[src]")
	urlAttrNames = []string{"href", "src", "data-url", "data-src"}
)

const triggerJS = `async function triggerFile(fileId, fileName, exts) {
	const lower = (s) => (s || '').toLowerCase();
	const name = lower(fileName);
	const els = Array.from(document.querySelectorAll('button, [role="button"], a, [class*="file"], [class*="attachment"]'))
		.filter(el => el.offsetParent !== null);
	const hit = els.find(el => {
		const t = lower(el.innerText) + ' ' + lower(el.getAttribute('aria-label'));
		if (name && t.includes(name)) return true;
		if (exts.some(e => t.includes(e))) return true;
		return Array.from(el.attributes).some(a => (a.value || '').includes(fileId));
	});
	if (!hit) return false;
	hit.click();
	return true;
}`

// FindAttachment resolves the address of ref. It never fails: when nothing
// in the page references the file a synthetic backend address is returned.
func (l *Locator) FindAttachment(ctx context.Context, ref parse.AttachmentRef) Address {
	var doc *html.Node
	snapshot := func(ctx context.Context) (*html.Node, *chain.Failure) {
		if doc != nil {
			return doc, nil
		}
		page, err := l.page.HTML(ctx)
		if err != nil {
			return nil, chain.Fail(chain.ResourceNotFound, err)
		}
		d, err := parse.ParseHTML(page)
		if err != nil {
			return nil, chain.Fail(chain.ResourceNotFound, err)
		}
		doc = d
		return doc, nil
	}
	inPage := func(name string, find func(*html.Node, string) string) chain.Step[Address] {
		return chain.Step[Address]{Name: name, Run: func(ctx context.Context) chain.Result[Address] {
			d, f := snapshot(ctx)
			if f != nil {
				return chain.Err[Address](f)
			}
			if u := find(d, ref.FileID); u != "" {
				return chain.Ok(Address{URL: l.resolve(u), Strategy: name})
			}
			return chain.Err[Address](chain.Failf(chain.ResourceNotFound, "%s: no match for %s", name, ref.FileID))
		}}
	}

	steps := []chain.Step[Address]{}
	if ref.SourceURL != "" {
		steps = append(steps, chain.Step[Address]{Name: "source", Run: func(context.Context) chain.Result[Address] {
			return chain.Ok(Address{URL: l.resolve(ref.SourceURL), Strategy: "source"})
		}})
	}
	steps = append(steps,
		inPage("image", findImage),
		inPage("link", findLink),
		inPage("data-attribute", findDataAttribute),
		inPage("file-container", findFileContainer),
		chain.Step[Address]{Name: "trigger", Run: func(ctx context.Context) chain.Result[Address] {
			return l.triggerAndRescan(ctx, ref, doc)
		}},
		chain.Step[Address]{Name: "synthetic", Run: func(context.Context) chain.Result[Address] {
			return chain.Ok(l.synthetic(ref))
		}},
	)

	r := chain.Run(ctx, l.log, steps...)
	if !r.OK() {
		return l.synthetic(ref)
	}
	l.log.Debug("attachment located", "file", ref.FileID, "strategy", r.Value.Strategy)
	return r.Value
}

func (l *Locator) synthetic(ref parse.AttachmentRef) Address {
	if ref.ConversationID != "" {
		return Address{URL: l.addrs.FileDownloadURL(ref.ConversationID, ref.FileID), Strategy: "synthetic-conversation", Synthetic: true}
	}
	return Address{URL: l.addrs.ContentURL(ref.FileID), Strategy: "synthetic-content", Synthetic: true}
}

// resolve makes u absolute against the base URL.
func (l *Locator) resolve(u string) string {
	ref, err := url.Parse(u)
	if err != nil {
		return u
	}
	base, err := url.Parse(l.addrs.BaseURL())
	if err != nil {
		return u
	}
	return base.ResolveReference(ref).String()
}

func (l *Locator) triggerAndRescan(ctx context.Context, ref parse.AttachmentRef, before *html.Node) chain.Result[Address] {
	var clicked bool
	if err := l.page.Eval(ctx, browser.Call(triggerJS, ref.FileID, ref.FileName, DocumentExtensions), &clicked); err != nil {
		return chain.Err[Address](chain.Fail(chain.AutomationTimeout, err))
	}
	if !clicked {
		return chain.Err[Address](chain.Failf(chain.ResourceNotFound, "no control for %s", ref.FileID))
	}

	t := time.NewTimer(l.cfg.Trigger)
	select {
	case <-ctx.Done():
		t.Stop()
		return chain.Err[Address](chain.Fail(chain.AutomationTimeout, ctx.Err()))
	case <-t.C:
	}

	page, err := l.page.HTML(ctx)
	if err != nil {
		return chain.Err[Address](chain.Fail(chain.ResourceNotFound, err))
	}
	after, err := parse.ParseHTML(page)
	if err != nil {
		return chain.Err[Address](chain.Fail(chain.ResourceNotFound, err))
	}
	if u := findPreview(before, after, ref.FileID); u != "" {
		return chain.Ok(Address{URL: l.resolve(u), Strategy: "trigger"})
	}
	return chain.Err[Address](chain.Failf(chain.AutomationTimeout, "nothing appeared for %s", ref.FileID))
}

func findImage(doc *html.Node, fileID string) string {
	for _, n := range imgSel.MatchAll(doc) {
		if src := parse.Attr(n, "src"); strings.Contains(src, fileID) {
			return src
		}
	}
	return ""
}

func findLink(doc *html.Node, fileID string) string {
	for _, n := range linkSel.MatchAll(doc) {
		if href := parse.Attr(n, "href"); href != "" && strings.Contains(href, fileID) {
			return href
		}
	}
	return ""
}

// findDataAttribute finds an element whose data-* attribute names the file
// and returns the address of the anchor inside it or next to it.
func findDataAttribute(doc *html.Node, fileID string) string {
	var found string
	walk(doc, func(n *html.Node) bool {
		for _, a := range n.Attr {
			if strings.HasPrefix(a.Key, "data-") && strings.Contains(a.Val, fileID) {
				if u := colocatedAnchor(n); u != "" {
					found = u
					return false
				}
			}
		}
		return true
	})
	return found
}

func colocatedAnchor(n *html.Node) string {
	if n.Data == "a" {
		if href := parse.Attr(n, "href"); href != "" {
			return href
		}
	}
	if a := cascadia.Query(n, anchorSel); a != nil {
		return parse.Attr(a, "href")
	}
	if n.Parent != nil {
		if a := cascadia.Query(n.Parent, anchorSel); a != nil {
			return parse.Attr(a, "href")
		}
	}
	return ""
}

// findFileContainer scans file-like containers for any attribute naming the
// file, then takes the first address-carrying attribute in that container.
func findFileContainer(doc *html.Node, fileID string) string {
	for _, c := range fileLikeSel.MatchAll(doc) {
		mentions := false
		walk(c, func(n *html.Node) bool {
			for _, a := range n.Attr {
				if strings.Contains(a.Val, fileID) {
					mentions = true
					return false
				}
			}
			return true
		})
		if !mentions {
			continue
		}
		for _, n := range urlAttrSel.MatchAll(c) {
			for _, name := range urlAttrNames {
				if v := parse.Attr(n, name); v != "" && !strings.HasPrefix(v, "#") && !strings.HasPrefix(v, "javascript:") {
					return v
				}
			}
		}
	}
	return ""
}

// findPreview looks for an image or frame naming the file, else one that
// was not in the page before the trigger.
func findPreview(before, after *html.Node, fileID string) string {
	old := map[string]bool{}
	if before != nil {
		for _, n := range previewSel.MatchAll(before) {
			old[parse.Attr(n, "src")] = true
		}
	}
	var fresh string
	for _, n := range previewSel.MatchAll(after) {
		src := parse.Attr(n, "src")
		if strings.Contains(src, fileID) {
			return src
		}
		if fresh == "" && !old[src] && !strings.HasPrefix(src, "data:") {
			fresh = src
		}
	}
	return fresh
}

// walk visits element nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if n.Type == html.ElementNode && !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}
