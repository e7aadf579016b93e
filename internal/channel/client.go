package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

// Transport carries one request to a handler and returns its response.
// Implementations return ctx's error when ctx ends first.
type Transport interface {
	RoundTrip(ctx context.Context, req Request) (Response, error)
}

// Local delivers requests to an in-process handler. Both directions pass
// through JSON so the payloads are the ones a remote peer would see.
type Local struct {
	Handler *Handler
}

func (l Local) RoundTrip(ctx context.Context, req Request) (Response, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return Response{}, err
	}
	var in Request
	if err := json.Unmarshal(raw, &in); err != nil {
		return Response{}, err
	}

	done := make(chan []byte, 1)
	go func() {
		resp := l.Handler.Handle(ctx, in)
		b, err := json.Marshal(resp)
		if err != nil {
			b, _ = json.Marshal(failed(chain.Fail(chain.Unexpected, err)))
		}
		done <- b
	}()

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case b := <-done:
		var out Response
		if err := json.Unmarshal(b, &out); err != nil {
			return Response{}, fmt.Errorf("decode response: %w", err)
		}
		return out, nil
	}
}

// Client calls a handler through a Transport, capping every round trip.
// It implements bulk.Operations.
type Client struct {
	t       Transport
	timeout time.Duration
	log     *slog.Logger
}

func NewClient(t Transport, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{t: t, timeout: timeout, log: log.With("component", "channel-client")}
}

func (c *Client) call(ctx context.Context, req Request) chain.Result[Response] {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp, err := c.t.RoundTrip(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.log.Warn("channel round trip timed out", "action", req.Action, "timeout", c.timeout)
			return chain.Err[Response](chain.Failf(chain.ChannelTimeout, "%s: no response within %s", req.Action, c.timeout))
		}
		return chain.Err[Response](chain.Fail(chain.Unexpected, fmt.Errorf("%s: %w", req.Action, err)))
	}
	if !resp.Success {
		return chain.Err[Response](resp.failure())
	}
	return chain.Ok(resp)
}

func (c *Client) List(ctx context.Context) chain.Result[[]locate.Summary] {
	r := c.call(ctx, Request{Action: ActionList})
	if !r.OK() {
		return chain.Err[[]locate.Summary](r.Failure)
	}
	if r.Value.Conversations == nil {
		return chain.Ok([]locate.Summary{})
	}
	return chain.Ok(r.Value.Conversations)
}

func (c *Client) Delete(ctx context.Context, id string) chain.Result[action.Outcome] {
	r := c.call(ctx, Request{Action: ActionDelete, ID: id})
	if !r.OK() {
		return chain.Err[action.Outcome](r.Failure)
	}
	return chain.Ok(action.Outcome(r.Value.Method))
}

func (c *Client) ReadContent(ctx context.Context, id string) chain.Result[parse.Record] {
	r := c.call(ctx, Request{Action: ActionRead, ID: id})
	if !r.OK() {
		return chain.Err[parse.Record](r.Failure)
	}
	if r.Value.Content == nil {
		return chain.Err[parse.Record](chain.Failf(chain.Unexpected, "readConversationContent: empty content"))
	}
	return chain.Ok(*r.Value.Content)
}

func (c *Client) DownloadAttachment(ctx context.Context, ref parse.AttachmentRef) chain.Result[action.Download] {
	r := c.call(ctx, Request{
		Action:         ActionDownload,
		FileID:         ref.FileID,
		FileName:       ref.FileName,
		ConversationID: ref.ConversationID,
		MimeType:       ref.MimeType,
		SourceURL:      ref.SourceURL,
	})
	if !r.OK() {
		return chain.Err[action.Download](r.Failure)
	}
	if r.Value.Filename == "" {
		return chain.Err[action.Download](chain.Failf(chain.Unexpected, "downloadAttachment: no filename for %s", ref.FileID))
	}
	return chain.Ok(action.Download{
		FileID:   ref.FileID,
		Filename: r.Value.Filename,
		MimeType: r.Value.MimeType,
		Data:     []byte(r.Value.DataArray),
	})
}
