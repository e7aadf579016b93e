package bulk

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Zuo-Peng/chatsweep/internal/archive"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

type ExportReport struct {
	RunID         string
	ArchivePath   string
	Conversations int
	Unreadable    int // records that only carry an error message
	Documents     []string
	Attachments   int // references, deduplicated within each conversation
	Downloaded    int
	Skipped       int
}

// group is the attachments of one conversation, deduplicated by file id.
type group struct {
	conversationID string
	refs           []parse.AttachmentRef
}

// ExportBatch reads every id, downloads their attachments one conversation
// at a time, and writes the archive into outDir. Reads and downloads are
// sequential because the DOM paths move the one shared tab. Per-item
// failures are recorded and skipped; only writing the archive can fail the
// batch.
func (o *Orchestrator) ExportBatch(ctx context.Context, ids []string, outDir string) (ExportReport, error) {
	rep := ExportReport{RunID: uuid.NewString(), Conversations: len(ids)}
	log := o.log.With("run", rep.RunID)

	records := make([]parse.Record, 0, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		r := o.ops.ReadContent(ctx, id)
		rec := r.Value
		if !r.OK() {
			rec = parse.ErrorRecord(id, r.Failure)
		}
		if rec.Source == parse.SourceError {
			rep.Unreadable++
		}
		records = append(records, rec)
		o.report(PhaseFetch, i+1, len(ids), 0, 50)
	}

	groups := groupAttachments(records)
	for _, g := range groups {
		rep.Attachments += len(g.refs)
	}
	cache := NewCache()
	done := 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		pending := make([]parse.AttachmentRef, 0, len(g.refs))
		for _, ref := range g.refs {
			if _, ok := cache.Get(ref.FileID); ok {
				done++
				continue
			}
			pending = append(pending, ref)
		}
		if len(pending) == 0 {
			o.report(PhaseDownload, done, rep.Attachments, 50, 30)
			continue
		}
		if err := o.visit(ctx, g.conversationID); err != nil {
			log.Warn("failed to load conversation, skipping its attachments", "id", g.conversationID, "error", err)
			rep.Skipped += len(pending)
			done += len(pending)
			o.report(PhaseDownload, done, rep.Attachments, 50, 30)
			continue
		}
		for _, ref := range pending {
			if o.fetchInto(ctx, cache, ref) {
				rep.Downloaded++
			} else {
				rep.Skipped++
			}
			done++
			o.report(PhaseDownload, done, rep.Attachments, 50, 30)
		}
	}
	log.Info("attachments downloaded", "downloaded", rep.Downloaded, "total", rep.Attachments, "skipped", rep.Skipped)

	now := o.now()
	files := cache.Names()
	a := archive.NewAssembler()
	for i, rec := range records {
		doc, err := archive.Render(rec, files, now)
		if err != nil {
			return rep, fmt.Errorf("render %s: %w", rec.ID, err)
		}
		rep.Documents = append(rep.Documents, a.AddDocument(rec.Title, doc))
		o.report(PhaseRender, i+1, len(records), 80, 10)
	}
	cache.Each(func(_, name string, data []byte) {
		a.AddAttachment(name, data)
	})
	err := a.AddJSON(archive.ManifestName, parse.Manifest{
		Version:       parse.ManifestVersion,
		RunID:         rep.RunID,
		ExportedAt:    now,
		BaseURL:       o.opts.BaseURL,
		Conversations: records,
		Attachments:   files,
	})
	if err != nil {
		return rep, err
	}

	o.report(PhaseZip, 0, 0, 95, 0)
	path, err := a.Save(outDir, now)
	if err != nil {
		return rep, err
	}
	rep.ArchivePath = path
	o.report(PhaseDone, 0, 0, 100, 0)
	log.Info("export written", "path", path, "conversations", len(records), "files", a.Len())
	return rep, nil
}

// visit moves the tab to a conversation and waits for it to settle, so the
// attachments it renders can be located.
func (o *Orchestrator) visit(ctx context.Context, conversationID string) error {
	if o.tab == nil || o.opts.ConversationURL == nil {
		return nil
	}
	if err := o.tab.Navigate(ctx, o.opts.ConversationURL(conversationID)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := o.tab.WaitLoad(ctx, o.opts.PageLoad); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	if o.harvest != nil {
		o.harvest.Nudge(ctx)
	}
	return o.sleep(ctx, o.opts.ScriptInit)
}

// fetchInto downloads ref into cache unless it is already there.
func (o *Orchestrator) fetchInto(ctx context.Context, cache *Cache, ref parse.AttachmentRef) bool {
	if _, ok := cache.Get(ref.FileID); ok {
		return true
	}
	r := o.ops.DownloadAttachment(ctx, ref)
	if !r.OK() {
		label := ref.FileName
		if label == "" {
			label = ref.FileID
		}
		if chain.IsRoutine(r.Failure) {
			o.log.Info("skipped attachment", "file", label, "conversation", ref.ConversationID, "reason", r.Failure.Message)
		} else {
			o.log.Warn("attachment download failed", "file", label, "conversation", ref.ConversationID, "kind", r.Failure.Kind, "error", r.Failure.Message)
		}
		return false
	}
	cache.Put(ref.FileID, r.Value.Filename, r.Value.Data)
	return true
}

// groupAttachments collects attachment references by owning conversation in
// first-seen order, deduplicated by file id within each conversation.
func groupAttachments(records []parse.Record) []group {
	var groups []group
	index := map[string]int{}
	seen := map[string]map[string]bool{}
	for _, rec := range records {
		for _, ref := range rec.Attachments() {
			if ref.FileID == "" {
				continue
			}
			cid := ref.ConversationID
			if cid == "" {
				cid = rec.ID
				ref.ConversationID = cid
			}
			i, ok := index[cid]
			if !ok {
				i = len(groups)
				index[cid] = i
				groups = append(groups, group{conversationID: cid})
				seen[cid] = map[string]bool{}
			}
			if seen[cid][ref.FileID] {
				continue
			}
			seen[cid][ref.FileID] = true
			groups[i].refs = append(groups[i].refs, ref)
		}
	}
	return groups
}
