// Package bulk runs operations over a user's selection of conversations:
// concurrent deletes, and sequential exports into a single archive.
package bulk

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/automate"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

// Operations are the per-conversation actions a batch is built from. The
// executor implements them directly; channel.Client implements them over a
// message channel.
type Operations interface {
	Delete(ctx context.Context, id string) chain.Result[action.Outcome]
	ReadContent(ctx context.Context, id string) chain.Result[parse.Record]
	DownloadAttachment(ctx context.Context, ref parse.AttachmentRef) chain.Result[action.Download]
}

// Tab is the shared page batches navigate.
type Tab interface {
	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context, timeout time.Duration) error
	Reload(ctx context.Context) error
}

// Nudger re-arms credential harvesting after a navigation.
type Nudger interface {
	Nudge(ctx context.Context)
}

type Phase string

const (
	PhaseFetch    Phase = "fetch"
	PhaseDownload Phase = "download"
	PhaseRender   Phase = "render"
	PhaseZip      Phase = "zip"
	PhaseDone     Phase = "done"
)

// Update reports export progress. Percent spans the whole export.
type Update struct {
	Phase   Phase
	Current int
	Total   int
	Percent int
}

type Progress func(Update)

type Options struct {
	BaseURL         string
	ConversationURL func(id string) string
	PageLoad        time.Duration // cap on waiting for a navigation to finish loading
	ScriptInit      time.Duration // settle after re-arming harvesting
	Reload          time.Duration // pause before reloading after a delete batch
	Progress        Progress
}

type Orchestrator struct {
	ops     Operations
	tab     Tab
	harvest Nudger
	opts    Options
	log     *slog.Logger
	sleep   func(context.Context, time.Duration) error
	now     func() time.Time
}

func New(ops Operations, tab Tab, harvest Nudger, opts Options, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		ops:     ops,
		tab:     tab,
		harvest: harvest,
		opts:    opts,
		log:     log.With("component", "bulk"),
		sleep:   automate.Sleep,
		now:     time.Now,
	}
}

func (o *Orchestrator) report(phase Phase, current, total, base, span int) {
	if o.opts.Progress == nil {
		return
	}
	pct := base
	if total > 0 {
		pct = base + int(math.Round(float64(current)/float64(total)*float64(span)))
	}
	o.opts.Progress(Update{Phase: phase, Current: current, Total: total, Percent: pct})
}
