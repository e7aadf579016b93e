package channel

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

type fakeExec struct {
	listed []locate.Summary
	block  chan struct{} // when set, Delete waits on it

	mu   sync.Mutex
	refs []parse.AttachmentRef
}

func (f *fakeExec) List(context.Context) chain.Result[[]locate.Summary] {
	return chain.Ok(f.listed)
}

func (f *fakeExec) Delete(ctx context.Context, id string) chain.Result[action.Outcome] {
	if f.block != nil {
		<-f.block
	}
	if id == "missing" {
		return chain.Err[action.Outcome](chain.Failf(chain.ResourceNotFound, "conversation not found in page: %s", id))
	}
	return chain.Ok(action.ViaUI)
}

func (f *fakeExec) ReadContent(ctx context.Context, id string) chain.Result[parse.Record] {
	return chain.Ok(parse.Record{ID: id, Title: "T", Source: parse.SourceDOM, Messages: []parse.Message{{Role: parse.RoleUnknown, Text: "hi"}}})
}

func (f *fakeExec) DownloadAttachment(ctx context.Context, ref parse.AttachmentRef) chain.Result[action.Download] {
	f.mu.Lock()
	f.refs = append(f.refs, ref)
	f.mu.Unlock()
	if ref.FileID == "file-gone" {
		return chain.Err[action.Download](&chain.Failure{Kind: chain.UpstreamRejected, Message: "fetch: status 422", Status: 422, Routine: true})
	}
	return chain.Ok(action.Download{FileID: ref.FileID, Filename: ref.FileID + ".jpg", MimeType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF, 0x00}})
}

func TestBytesAsNumberArray(t *testing.T) {
	raw, err := json.Marshal(Response{Success: true, DataArray: Bytes{0, 1, 255}})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"dataArray":[0,1,255]`)

	var back Response
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, Bytes{0, 1, 255}, back.DataArray)

	var bad Bytes
	assert.Error(t, json.Unmarshal([]byte(`[1, 256]`), &bad))
}

func TestHandlerDispatch(t *testing.T) {
	h := NewHandler(&fakeExec{}, nil)
	ctx := context.Background()

	list := h.Handle(ctx, Request{Seq: 7, Action: ActionList})
	assert.True(t, list.Success)
	assert.Equal(t, uint64(7), list.Seq)
	assert.NotNil(t, list.Conversations)

	del := h.Handle(ctx, Request{Action: ActionDelete, ID: "abc"})
	assert.True(t, del.Success)
	assert.Equal(t, "ui", del.Method)

	miss := h.Handle(ctx, Request{Action: ActionDelete, ID: "missing"})
	assert.False(t, miss.Success)
	assert.Equal(t, chain.ResourceNotFound, miss.Kind)
	assert.Contains(t, miss.Error, "not found")

	read := h.Handle(ctx, Request{Action: ActionRead, ID: "abc"})
	require.True(t, read.Success)
	assert.Equal(t, "abc", read.Content.ID)

	dl := h.Handle(ctx, Request{Action: ActionDownload, FileID: "file-1"})
	require.True(t, dl.Success)
	assert.Equal(t, "file-1.jpg", dl.Filename)

	unknown := h.Handle(ctx, Request{Action: "reboot"})
	assert.False(t, unknown.Success)
	assert.Equal(t, chain.Unexpected, unknown.Kind)
}

func TestClientOverLocal(t *testing.T) {
	c := NewClient(Local{Handler: NewHandler(&fakeExec{listed: []locate.Summary{{ID: "a", Title: "A"}}}, nil)}, time.Second, nil)
	ctx := context.Background()

	l := c.List(ctx)
	require.True(t, l.OK())
	assert.Equal(t, []locate.Summary{{ID: "a", Title: "A"}}, l.Value)

	d := c.DownloadAttachment(ctx, parse.AttachmentRef{FileID: "file-1"})
	require.True(t, d.OK())
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0x00}, d.Value.Data)

	gone := c.DownloadAttachment(ctx, parse.AttachmentRef{FileID: "file-gone"})
	require.False(t, gone.OK())
	assert.True(t, gone.Failure.Routine)
	assert.Equal(t, 422, gone.Failure.Status)
	assert.Equal(t, chain.UpstreamRejected, gone.Failure.Kind)
}

func TestClientKeepsScrapedAttachmentFields(t *testing.T) {
	ref := parse.AttachmentRef{
		FileID:         parse.ImageFileID("https://cdn.example/x.png"),
		FileName:       "x.png",
		MimeType:       "image/png",
		ConversationID: "c1",
		SourceURL:      "https://cdn.example/x.png",
	}

	t.Run("local", func(t *testing.T) {
		exec := &fakeExec{}
		c := NewClient(Local{Handler: NewHandler(exec, nil)}, time.Second, nil)
		require.True(t, c.DownloadAttachment(context.Background(), ref).OK())
		assert.Equal(t, []parse.AttachmentRef{ref}, exec.refs)
	})

	t.Run("stream", func(t *testing.T) {
		reqR, reqW := io.Pipe()
		respR, respW := io.Pipe()
		exec := &fakeExec{}
		served := make(chan error, 1)
		go func() {
			served <- Serve(context.Background(), reqR, respW, NewHandler(exec, nil))
			respW.Close()
		}()

		c := NewClient(NewStream(respR, reqW), 2*time.Second, nil)
		require.True(t, c.DownloadAttachment(context.Background(), ref).OK())
		reqW.Close()
		require.NoError(t, <-served)
		assert.Equal(t, []parse.AttachmentRef{ref}, exec.refs)
	})
}

func TestRequestWireNames(t *testing.T) {
	raw, err := json.Marshal(Request{Action: ActionDownload, FileID: "img-1", MimeType: "image/png", SourceURL: "https://cdn.example/x.png"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"downloadAttachment","fileId":"img-1","mimeType":"image/png","sourceUrl":"https://cdn.example/x.png"}`, string(raw))
}

func TestClientEmptyListIsNotNil(t *testing.T) {
	c := NewClient(Local{Handler: NewHandler(&fakeExec{}, nil)}, time.Second, nil)
	l := c.List(context.Background())
	require.True(t, l.OK())
	assert.NotNil(t, l.Value)
	assert.Empty(t, l.Value)
}

func TestClientTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	c := NewClient(Local{Handler: NewHandler(&fakeExec{block: block}, nil)}, 50*time.Millisecond, nil)

	start := time.Now()
	r := c.Delete(context.Background(), "abc")
	require.False(t, r.OK())
	assert.Equal(t, chain.ChannelTimeout, r.Failure.Kind)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Request{Action: ActionList}))
	require.NoError(t, WriteFrame(&buf, Request{Action: ActionRead, ID: "x"}))

	n := binary.LittleEndian.Uint32(buf.Bytes()[:4])
	assert.Equal(t, `{"action":"listConversations"}`, string(buf.Bytes()[4:4+n]))

	var a, b Request
	require.NoError(t, ReadFrame(&buf, &a))
	require.NoError(t, ReadFrame(&buf, &b))
	assert.Equal(t, ActionList, a.Action)
	assert.Equal(t, "x", b.ID)
	assert.ErrorIs(t, ReadFrame(&buf, &a), io.EOF)

	var huge bytes.Buffer
	binary.Write(&huge, binary.LittleEndian, uint32(MaxFrame+1))
	assert.ErrorIs(t, ReadFrame(&huge, &a), ErrFrameTooLarge)
}

func TestStreamRoundTrip(t *testing.T) {
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	served := make(chan error, 1)
	go func() {
		served <- Serve(context.Background(), reqR, respW, NewHandler(&fakeExec{}, nil))
		respW.Close()
	}()

	c := NewClient(NewStream(respR, reqW), 2*time.Second, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]chain.Result[action.Download], 5)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.DownloadAttachment(ctx, parse.AttachmentRef{FileID: "file-" + string(rune('a'+i))})
		}()
	}
	wg.Wait()
	for i, r := range results {
		require.True(t, r.OK())
		assert.Equal(t, "file-"+string(rune('a'+i))+".jpg", r.Value.Filename)
	}

	rec := c.ReadContent(ctx, "abc")
	require.True(t, rec.OK())
	assert.Equal(t, parse.RoleUnknown, rec.Value.Messages[0].Role)

	reqW.Close()
	require.NoError(t, <-served)

	after := c.List(ctx)
	require.False(t, after.OK())
	assert.Equal(t, chain.Unexpected, after.Failure.Kind)
}
