package channel

import (
	"context"
	"log/slog"

	"github.com/Zuo-Peng/chatsweep/internal/action"
	"github.com/Zuo-Peng/chatsweep/internal/chain"
	"github.com/Zuo-Peng/chatsweep/internal/locate"
	"github.com/Zuo-Peng/chatsweep/internal/parse"
)

// Executor is what the handler dispatches to; action.Executor implements it.
type Executor interface {
	List(ctx context.Context) chain.Result[[]locate.Summary]
	Delete(ctx context.Context, id string) chain.Result[action.Outcome]
	ReadContent(ctx context.Context, id string) chain.Result[parse.Record]
	DownloadAttachment(ctx context.Context, ref parse.AttachmentRef) chain.Result[action.Download]
}

type Handler struct {
	exec Executor
	log  *slog.Logger
}

func NewHandler(exec Executor, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{exec: exec, log: log.With("component", "channel")}
}

// Handle answers one request. It never panics and never returns a
// transport-level error: every outcome is a Response.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			resp = failed(chain.Failf(chain.Unexpected, "%s panicked: %v", req.Action, p))
		}
		resp.Seq = req.Seq
	}()
	h.log.Debug("request", "action", req.Action, "id", req.ID, "file", req.FileID)

	switch req.Action {
	case ActionList:
		r := h.exec.List(ctx)
		if !r.OK() {
			return failed(r.Failure)
		}
		list := r.Value
		if list == nil {
			list = []locate.Summary{}
		}
		return Response{Success: true, Conversations: list}

	case ActionDelete:
		if req.ID == "" {
			return failed(chain.Failf(chain.Unexpected, "deleteConversation: missing id"))
		}
		r := h.exec.Delete(ctx, req.ID)
		if !r.OK() {
			return failed(r.Failure)
		}
		return Response{Success: true, Method: string(r.Value)}

	case ActionRead:
		if req.ID == "" {
			return failed(chain.Failf(chain.Unexpected, "readConversationContent: missing id"))
		}
		r := h.exec.ReadContent(ctx, req.ID)
		if !r.OK() {
			return failed(r.Failure)
		}
		rec := r.Value
		return Response{Success: true, Content: &rec}

	case ActionDownload:
		if req.FileID == "" {
			return failed(chain.Failf(chain.Unexpected, "downloadAttachment: missing fileId"))
		}
		r := h.exec.DownloadAttachment(ctx, parse.AttachmentRef{
			FileID:         req.FileID,
			FileName:       req.FileName,
			ConversationID: req.ConversationID,
			MimeType:       req.MimeType,
			SourceURL:      req.SourceURL,
		})
		if !r.OK() {
			return failed(r.Failure)
		}
		return Response{
			Success:   true,
			Filename:  r.Value.Filename,
			MimeType:  r.Value.MimeType,
			DataArray: Bytes(r.Value.Data),
		}
	}
	return failed(chain.Failf(chain.Unexpected, "unknown action %q", req.Action))
}
