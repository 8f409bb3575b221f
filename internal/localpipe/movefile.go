package localpipe

import (
	"context"

	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/tools"
)

// MoveFileID is the manifest id of MoveFileBetweenKB.
const MoveFileID = "move_file_between_kb"

// MoveFileBetweenKB moves metadata["file_id"] from knowledge base
// metadata["src_kb_id"] to metadata["dst_kb_id"]: the file is added to the
// destination first, then removed from the source. The outcome of either
// call is reported through its own status events only.
func MoveFileBetweenKB(t *tools.Tools) Pipeline {
	return func(ctx context.Context, in Input, sink events.Sink) (Result, error) {
		if res, ok := RequireFields(in.Metadata, "src_kb_id", "dst_kb_id", "file_id"); !ok {
			return res, nil
		}

		events.Emit(ctx, sink, events.Event{"type": "status", "data": map[string]any{"status": "validating"}})

		src := in.Metadata.String("src_kb_id")
		dst := in.Metadata.String("dst_kb_id")
		fileID := in.Metadata.String("file_id")

		t.AddFileToKnowledge(ctx, dst, fileID, in.User, sink)
		t.RemoveFileFromKnowledge(ctx, src, fileID, in.User, sink)

		events.Emit(ctx, sink, events.Event{"type": "status", "data": map[string]any{"status": "done", "done": true}})

		return Result{
			FinishReason: FinishStop,
			Content: map[string]any{
				"moved":     true,
				"file_id":   in.Metadata["file_id"],
				"dst_kb_id": in.Metadata["dst_kb_id"],
			},
		}, nil
	}
}

// RegisterBuiltins registers the pipelines shipped with the service.
func RegisterBuiltins(r *Registry, t *tools.Tools) error {
	return r.Register(MoveFileID, MoveFileBetweenKB(t))
}
