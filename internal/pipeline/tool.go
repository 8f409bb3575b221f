package pipeline

import (
	"context"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/tools"
)

// ToolName is the name under which Run is exposed as a tool. The prompt
// snippet points models at it via "call_via".
const ToolName = "run_pipeline"

type RunArgs struct {
	PipeID     string         `json:"pipe_id" jsonschema:"id of the pipeline to run"`
	Metadata   map[string]any `json:"metadata,omitempty" jsonschema:"pipeline input fields"`
	UserPrompt string         `json:"user_prompt,omitempty" jsonschema:"free-form instruction for the pipeline"`
	Stream     bool           `json:"stream,omitempty" jsonschema:"relay pipeline events while it runs"`
}

// RegisterTool exposes r as the run_pipeline tool. Calls without metadata
// arguments fall back to the host-provided metadata.
func RegisterTool(reg *tools.Registry, r *Runner) error {
	return tools.Register(reg, ToolName, "Run a registered pipeline.",
		func(ctx context.Context, a RunArgs, c tools.Call) string {
			metadata := domain.Metadata(a.Metadata)
			if metadata == nil {
				metadata = c.Metadata
			}
			return r.Run(ctx, Request{
				PipeID:     a.PipeID,
				Metadata:   metadata,
				UserPrompt: a.UserPrompt,
				Stream:     a.Stream,
			}, c.User, c.Sink)
		})
}
