package bulk

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
)

// Failed marks a delete that no path completed.
const Failed action.Outcome = "failed"

type DeleteOutcome struct {
	ID  string
	Via action.Outcome
	Err error
}

type DeleteReport struct {
	Total     int
	Succeeded int
	// Remaining is the listing with every selected id removed, whatever
	// its outcome.
	Remaining []locate.Summary
	Outcomes  []DeleteOutcome
}

// DeleteBatch deletes every id concurrently and reconciles listed. One
// failed delete never stops the others. When a tab is attached it is
// reloaded afterwards so the sidebar catches up.
func (o *Orchestrator) DeleteBatch(ctx context.Context, listed []locate.Summary, ids []string) DeleteReport {
	rep := DeleteReport{Total: len(ids), Outcomes: make([]DeleteOutcome, len(ids))}

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			r := o.ops.Delete(ctx, id)
			if !r.OK() {
				rep.Outcomes[i] = DeleteOutcome{ID: id, Via: Failed, Err: r.Failure}
				o.log.Warn("delete failed", "id", id, "kind", r.Failure.Kind, "error", r.Failure.Message)
				return nil
			}
			rep.Outcomes[i] = DeleteOutcome{ID: id, Via: r.Value}
			return nil
		})
	}
	_ = g.Wait()

	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}
	for _, out := range rep.Outcomes {
		if out.Via != Failed {
			rep.Succeeded++
		}
	}
	rep.Remaining = make([]locate.Summary, 0, len(listed))
	for _, s := range listed {
		if !selected[s.ID] {
			rep.Remaining = append(rep.Remaining, s)
		}
	}
	o.log.Info("delete batch finished", "succeeded", rep.Succeeded, "total", rep.Total)

	if o.tab != nil && len(ids) > 0 {
		if err := o.sleep(ctx, o.opts.Reload); err == nil {
			if err := o.tab.Reload(ctx); err != nil {
				o.log.Warn("reload after delete failed", "error", err)
			}
		}
	}
	return rep
}
