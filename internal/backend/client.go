// Package backend talks to the chat application's backend API through a
// transport.Doer, attaching the harvested credential when one is held.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/credential"
	"github.com/Zuo-Peng/chatsweep/internal/transport"
)

const (
	sessionPath      = "/api/auth/session"
	conversationPath = "/backend-api/conversation/"
	contentPath      = "/backend-api/estuary/content"
)

type Client struct {
	base    string
	doer    transport.Doer
	store   *credential.Store
	timeout time.Duration
	log     *slog.Logger
}

// New returns a client for baseURL. timeout caps every call; zero means no cap.
func New(baseURL string, doer transport.Doer, store *credential.Store, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		doer:    doer,
		store:   store,
		timeout: timeout,
		log:     log.With("component", "backend"),
	}
}

func (c *Client) BaseURL() string { return c.base }

// URL resolves path against the base URL.
func (c *Client) URL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.base + path
}

// ConversationURL is the in-app address of a conversation.
func (c *Client) ConversationURL(id string) string {
	return c.base + "/c/" + url.PathEscape(id)
}

// FileDownloadURL is the conversation-scoped download address of a file.
func (c *Client) FileDownloadURL(conversationID, fileID string) string {
	return c.base + conversationPath + url.PathEscape(conversationID) + "/attachment/" + url.PathEscape(fileID) + "/download"
}

// ContentURL is the generic content-by-id address of a file.
func (c *Client) ContentURL(fileID string) string {
	q := url.Values{"id": {fileID}, "p": {"fs"}}
	return c.base + contentPath + "?" + q.Encode()
}

// Credentialed reports whether a credential would be attached.
func (c *Client) Credentialed() bool {
	if c.store == nil {
		return false
	}
	_, ok := c.store.Current()
	return ok
}

func (c *Client) do(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	if c.store != nil {
		if tok, ok := c.store.Current(); ok {
			req.Header.Set("Authorization", credential.Authorization(tok))
		}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.doer.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	c.log.Debug("backend call", "method", req.Method, "url", req.URL, "status", resp.Status)
	return resp, nil
}

// statusFailure maps a non-success response to a Failure.
func statusFailure(resp *transport.Response, what string) *chain.Failure {
	kind := chain.UpstreamRejected
	if resp.Status == http.StatusNotFound {
		kind = chain.ResourceNotFound
	}
	return &chain.Failure{Kind: kind, Status: resp.Status, Message: fmt.Sprintf("%s: status %d", what, resp.Status)}
}

func callFailure(err error, what string) *chain.Failure {
	return chain.Fail(chain.UpstreamRejected, fmt.Errorf("%s: %w", what, err))
}

type session struct {
	AccessToken string `json:"accessToken"`
}

// SessionToken queries the session-info endpoint for its access token.
func (c *Client) SessionToken(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, transport.NewRequest(http.MethodGet, c.URL(sessionPath), nil))
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("get session: status %d", resp.Status)
	}
	var s session
	if err := json.Unmarshal(resp.Body, &s); err != nil {
		return "", fmt.Errorf("decode session: %w", err)
	}
	return s.AccessToken, nil
}

// Probe issues a GET to path and discards the response.
func (c *Client) Probe(ctx context.Context, path string) error {
	_, err := c.doer.Do(ctx, transport.NewRequest(http.MethodGet, c.URL(path), nil))
	return err
}

// HideConversation marks the conversation invisible, which is how the
// application deletes it.
func (c *Client) HideConversation(ctx context.Context, id string) chain.Result[struct{}] {
	req := transport.NewRequest(http.MethodPatch, c.URL(conversationPath+url.PathEscape(id)), []byte(`{"is_visible":false}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, req)
	if err != nil {
		return chain.Err[struct{}](callFailure(err, "hide conversation"))
	}
	if !resp.OK() {
		return chain.Err[struct{}](statusFailure(resp, "hide conversation"))
	}
	return chain.Ok(struct{}{})
}

// Conversation fetches the raw conversation resource.
func (c *Client) Conversation(ctx context.Context, id string) chain.Result[[]byte] {
	req := transport.NewRequest(http.MethodGet, c.URL(conversationPath+url.PathEscape(id)), nil)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(ctx, req)
	if err != nil {
		return chain.Err[[]byte](callFailure(err, "get conversation"))
	}
	if !resp.OK() {
		return chain.Err[[]byte](statusFailure(resp, "get conversation"))
	}
	return chain.Ok(resp.Body)
}

// Fetch GETs an arbitrary address with the credential attached.
func (c *Client) Fetch(ctx context.Context, rawURL string) chain.Result[*transport.Response] {
	resp, err := c.do(ctx, transport.NewRequest(http.MethodGet, c.URL(rawURL), nil))
	if err != nil {
		return chain.Err[*transport.Response](callFailure(err, "fetch"))
	}
	if !resp.OK() {
		return chain.Err[*transport.Response](statusFailure(resp, "fetch"))
	}
	return chain.Ok(resp)
}
