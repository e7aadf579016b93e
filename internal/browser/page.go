// Package browser defines the tab the tool drives and the helpers that run
// JavaScript inside it. Drivers live in the cdpdriver and roddriver
// subpackages.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

// Page is one browser tab on the chat application.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitLoad blocks until the document has loaded or timeout elapses.
	// A timeout is not an error.
	WaitLoad(ctx context.Context, timeout time.Duration) error
	Reload(ctx context.Context) error
	URL(ctx context.Context) (string, error)
	// HTML returns a snapshot of the rendered document.
	HTML(ctx context.Context) (string, error)
	// Eval evaluates a JavaScript expression, awaiting it if it is a promise,
	// and JSON-decodes its value into out (which may be nil).
	Eval(ctx context.Context, expr string, out any) error
	Cookies(ctx context.Context) ([]credential.Cookie, error)
	// Observe delivers the header sets of every request the tab sends and
	// every response it receives until stop is called.
	Observe(fn transport.Observer) (stop func())
	Close() error
}

// Wrap turns expr into a self-contained expression that evaluates to the
// JSON text of expr's awaited value. Drivers evaluate the result with
// promise awaiting on and return the string.
func Wrap(expr string) string {
	return "(async()=>JSON.stringify((await (" + expr + ")) ?? null))()"
}

// Decode unmarshals the string produced by a wrapped expression.
func Decode(raw string, out any) error {
	if out == nil || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode eval result: %w", err)
	}
	return nil
}

// Call builds an expression invoking the function literal fn with args
// encoded as JSON literals.
func Call(fn string, args ...any) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(fn)
	b.WriteString(")(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(",")
		}
		raw, err := json.Marshal(a)
		if err != nil {
			raw = []byte("null")
		}
		b.Write(raw)
	}
	b.WriteString(")")
	return b.String()
}

// OnOrigin reports whether rawURL is served from one of hosts.
func OnOrigin(rawURL string, hosts ...string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	h := strings.ToLower(u.Hostname())
	for _, want := range hosts {
		want = strings.ToLower(want)
		if h == want || strings.HasSuffix(h, "."+want) {
			return true
		}
	}
	return false
}

// ChatHosts are the hosts the chat application is served from.
var ChatHosts = []string{"chatgpt.com", "chat.openai.com"}

// ConversationPath returns the in-app path of a conversation.
func ConversationPath(id string) string {
	return "/c/" + id
}

// Viewing reports whether rawURL already shows conversation id.
func Viewing(rawURL, id string) bool {
	return id != "" && strings.Contains(rawURL, ConversationPath(id))
}

// Options configure how a driver obtains its tab.
type Options struct {
	ProfileDir string
	Headless   bool
	// RemoteURL attaches to a running browser's DevTools endpoint instead of
	// launching one.
	RemoteURL string
	StartURL  string
}
