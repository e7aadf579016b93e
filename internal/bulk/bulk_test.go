package bulk

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/browser/browsertest"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/channel"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

type fakeOps struct {
	mu        sync.Mutex
	records   map[string]parse.Record
	deleteFn  func(id string) chain.Result[action.Outcome]
	gone      map[string]bool // file ids that answer 422
	reads     []string
	downloads []string
	refs      []parse.AttachmentRef
}

func (f *fakeOps) Delete(ctx context.Context, id string) chain.Result[action.Outcome] {
	return f.deleteFn(id)
}

func (f *fakeOps) ReadContent(ctx context.Context, id string) chain.Result[parse.Record] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, id)
	if rec, ok := f.records[id]; ok {
		return chain.Ok(rec)
	}
	return chain.Ok(parse.ErrorRecord(id, chain.Failf(chain.ResourceNotFound, "no such conversation")))
}

func (f *fakeOps) DownloadAttachment(ctx context.Context, ref parse.AttachmentRef) chain.Result[action.Download] {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, ref.FileID)
	f.refs = append(f.refs, ref)
	if f.gone[ref.FileID] {
		return chain.Err[action.Download](&chain.Failure{Kind: chain.UpstreamRejected, Status: 422, Routine: true, Message: "fetch: status 422"})
	}
	// scraped images have no backend address; only their source reaches them
	if strings.HasPrefix(ref.FileID, "img-") && ref.SourceURL == "" {
		return chain.Err[action.Download](&chain.Failure{Kind: chain.UpstreamRejected, Status: 404, Routine: true, Message: "fetch: status 404"})
	}
	return chain.Ok(action.Download{
		FileID:   ref.FileID,
		Filename: ref.FileID + ".png",
		MimeType: "image/png",
		Data:     []byte{0x89, 'P', 'N', 'G'},
	})
}

// listingOps serves fakeOps behind a channel handler.
type listingOps struct{ *fakeOps }

func (listingOps) List(context.Context) chain.Result[[]locate.Summary] {
	return chain.Ok([]locate.Summary{})
}

type countingNudger struct {
	mu sync.Mutex
	n  int
}

func (c *countingNudger) Nudge(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
}

func newOrchestrator(ops Operations, tab Tab, progress Progress) (*Orchestrator, *countingNudger) {
	n := &countingNudger{}
	o := New(ops, tab, n, Options{
		BaseURL:         "https://chatgpt.com",
		ConversationURL: func(id string) string { return "https://chatgpt.com/c/" + id },
		PageLoad:        10 * time.Second,
		Progress:        progress,
	}, nil)
	o.sleep = func(context.Context, time.Duration) error { return nil }
	o.now = func() time.Time { return time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC) }
	return o, n
}

func record(id, title string, files ...string) parse.Record {
	msg := parse.Message{Role: parse.RoleUser, Text: "see attached"}
	for _, f := range files {
		msg.Attachments = append(msg.Attachments, parse.AttachmentRef{FileID: f, ConversationID: id})
	}
	return parse.Record{ID: id, Title: title, Source: parse.SourceAPI, Messages: []parse.Message{msg}}
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = string(b)
	}
	return out
}

func TestDeleteBatchIsConcurrentAndIsolatesFailures(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	var started sync.WaitGroup
	started.Add(len(ids))
	all := make(chan struct{})
	go func() { started.Wait(); close(all) }()

	ops := &fakeOps{deleteFn: func(id string) chain.Result[action.Outcome] {
		started.Done()
		select {
		case <-all:
		case <-time.After(5 * time.Second):
			return chain.Err[action.Outcome](chain.Failf(chain.Unexpected, "deletes were serialised"))
		}
		switch id {
		case "b":
			return chain.Err[action.Outcome](chain.Failf(chain.ResourceNotFound, "conversation not found in page: b"))
		case "c":
			return chain.Ok(action.ViaUI)
		}
		return chain.Ok(action.ViaAPI)
	}}
	tab := browsertest.New("https://chatgpt.com/")
	o, _ := newOrchestrator(ops, tab, nil)

	listed := []locate.Summary{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}, {ID: "e", Title: "kept"}}
	rep := o.DeleteBatch(context.Background(), listed, ids)

	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 3, rep.Succeeded)
	assert.Equal(t, []locate.Summary{{ID: "e", Title: "kept"}}, rep.Remaining)
	require.Len(t, rep.Outcomes, 4)
	assert.Equal(t, action.ViaAPI, rep.Outcomes[0].Via)
	assert.Equal(t, Failed, rep.Outcomes[1].Via)
	assert.Error(t, rep.Outcomes[1].Err)
	assert.Equal(t, action.ViaUI, rep.Outcomes[2].Via)
	assert.Equal(t, 1, tab.Reloads)
}

func TestExportSharedAttachmentIsDownloadedOnce(t *testing.T) {
	ops := &fakeOps{records: map[string]parse.Record{
		"c1": record("c1", "First chat", "file-shared"),
		"c2": record("c2", "Second chat", "file-shared"),
	}}
	tab := browsertest.New("https://chatgpt.com/")
	o, nudges := newOrchestrator(ops, tab, nil)

	rep, err := o.ExportBatch(context.Background(), []string{"c1", "c2"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{"file-shared"}, ops.downloads)
	assert.Equal(t, 1, rep.Downloaded)
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, []string{"https://chatgpt.com/c/c1"}, tab.Navigations)
	assert.Equal(t, 1, tab.Waits)
	assert.Equal(t, 1, nudges.n)
	assert.True(t, strings.HasSuffix(rep.ArchivePath, "ChatGPT_Export_2026-05-02.zip"))

	files := readZip(t, rep.ArchivePath)
	var attachments, docs []string
	for name := range files {
		switch {
		case strings.HasPrefix(name, "attachments/"):
			attachments = append(attachments, name)
		case strings.HasSuffix(name, ".html"):
			docs = append(docs, name)
		}
	}
	assert.Equal(t, []string{"attachments/file-shared.png"}, attachments)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Contains(t, files[d], `<img src="attachments/file-shared.png"`)
	}
	assert.Equal(t, []string{"first_chat.html", "second_chat.html"}, rep.Documents)

	m, err := parse.ParseManifest([]byte(files["manifest.json"]))
	require.NoError(t, err)
	assert.Equal(t, rep.RunID, m.RunID)
	assert.Len(t, m.Conversations, 2)
	assert.Equal(t, map[string]string{"file-shared": "file-shared.png"}, m.Attachments)
}

func TestExportScrapedRecordsThroughChannel(t *testing.T) {
	sel := parse.DOMSelectors{Messages: []string{"div.msg"}, Title: "h1"}
	page := func(title, src string) string {
		return `<html><body><h1>` + title + `</h1>` +
			`<div class="msg">look at this <img src="` + src + `"></div>` +
			`<div class="msg">and the file <img src="https://files.example/file-abc123/download"></div>` +
			`</body></html>`
	}
	c1, err := parse.FromDOM("c1", page("Trip", "https://cdn.example/x.png"), sel)
	require.NoError(t, err)
	c2, err := parse.FromDOM("c2", page("Menu", "https://cdn.example/y.png"), sel)
	require.NoError(t, err)

	ops := &fakeOps{records: map[string]parse.Record{"c1": c1, "c2": c2}}
	client := channel.NewClient(channel.Local{Handler: channel.NewHandler(listingOps{ops}, nil)}, time.Second, nil)
	o, _ := newOrchestrator(client, browsertest.New("https://chatgpt.com/"), nil)

	rep, err := o.ExportBatch(context.Background(), []string{"c1", "c2"}, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Skipped)
	assert.Equal(t, 3, rep.Downloaded)

	// the file shared by both pages is fetched once, for c1
	want := append(c1.Attachments(), c2.Messages[0].Attachments...)
	require.Len(t, want, 3)
	assert.Equal(t, want, ops.refs)
	assert.Equal(t, "https://cdn.example/y.png", ops.refs[2].SourceURL)

	files := readZip(t, rep.ArchivePath)
	x := parse.ImageFileID("https://cdn.example/x.png")
	assert.Contains(t, files["trip.html"], `<img src="attachments/`+x+`.png"`)
	assert.NotContains(t, files["trip.html"], "Attachment not available")
}

func TestExportSkipsRoutineFailures(t *testing.T) {
	files := []string{"file-gone"}
	for i := 0; i < 10; i++ {
		files = append(files, "file-"+string(rune('a'+i)))
	}
	ops := &fakeOps{
		records: map[string]parse.Record{"c1": record("c1", "Files", files...)},
		gone:    map[string]bool{"file-gone": true},
	}
	o, _ := newOrchestrator(ops, browsertest.New("https://chatgpt.com/"), nil)

	rep, err := o.ExportBatch(context.Background(), []string{"c1", "missing"}, t.TempDir())
	require.NoError(t, err)
	assert.Len(t, ops.downloads, 11)
	assert.Equal(t, 10, rep.Downloaded)
	assert.Equal(t, 1, rep.Skipped)
	assert.Equal(t, 1, rep.Unreadable)

	zipped := readZip(t, rep.ArchivePath)
	assert.Contains(t, zipped["files.html"], "Attachment not available: file-gone")
	assert.Contains(t, zipped["conversation_missing.html"], "Error retrieving content")
}

func TestExportProgress(t *testing.T) {
	ops := &fakeOps{records: map[string]parse.Record{
		"c1": record("c1", "One", "file-1"),
		"c2": record("c2", "Two"),
	}}
	var updates []Update
	o, _ := newOrchestrator(ops, browsertest.New("https://chatgpt.com/"), func(u Update) { updates = append(updates, u) })

	_, err := o.ExportBatch(context.Background(), []string{"c1", "c2"}, t.TempDir())
	require.NoError(t, err)

	var pcts []int
	for _, u := range updates {
		pcts = append(pcts, u.Percent)
	}
	assert.Equal(t, []int{25, 50, 80, 85, 90, 95, 100}, pcts)
	assert.Equal(t, PhaseDone, updates[len(updates)-1].Phase)
}

func TestFetchIntoHitsCache(t *testing.T) {
	ops := &fakeOps{}
	o, _ := newOrchestrator(ops, nil, nil)
	cache := NewCache()
	ref := parse.AttachmentRef{FileID: "file-1", ConversationID: "c1"}

	assert.True(t, o.fetchInto(context.Background(), cache, ref))
	assert.True(t, o.fetchInto(context.Background(), cache, ref))
	assert.Equal(t, []string{"file-1"}, ops.downloads)
	name, ok := cache.Get("file-1")
	assert.True(t, ok)
	assert.Equal(t, "file-1.png", name)
}

func TestCachePutOnce(t *testing.T) {
	c := NewCache()
	assert.True(t, c.Put("f", "f.png", []byte("1")))
	assert.False(t, c.Put("f", "other.png", []byte("2")))
	var got []string
	c.Each(func(id, name string, data []byte) { got = append(got, id+"="+name+":"+string(data)) })
	assert.Equal(t, []string{"f=f.png:1"}, got)
}

func TestGroupAttachments(t *testing.T) {
	a := record("c1", "A", "f1", "f2")
	a.Messages = append(a.Messages, parse.Message{Text: "again", Attachments: []parse.AttachmentRef{{FileID: "f1"}}})
	b := record("c2", "B", "f1")
	b.Messages[0].Attachments = append(b.Messages[0].Attachments, parse.AttachmentRef{FileID: "f3"})

	groups := groupAttachments([]parse.Record{a, b})
	require.Len(t, groups, 2)
	assert.Equal(t, "c1", groups[0].conversationID)
	assert.Len(t, groups[0].refs, 2)
	assert.Equal(t, "c2", groups[1].conversationID)
	require.Len(t, groups[1].refs, 2)
	assert.Equal(t, "c2", groups[1].refs[1].ConversationID)
}

func TestManifestIsValidJSON(t *testing.T) {
	ops := &fakeOps{records: map[string]parse.Record{"c1": record("c1", "One")}}
	o, _ := newOrchestrator(ops, nil, nil)
	rep, err := o.ExportBatch(context.Background(), []string{"c1"}, t.TempDir())
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(readZip(t, rep.ArchivePath)["manifest.json"])))
}
