package toolserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
	"github.com/Dmi3yy/webui-pipes/internal/n8n"
	"github.com/Dmi3yy/webui-pipes/internal/pipeline"
	"github.com/Dmi3yy/webui-pipes/internal/prompt"
	"github.com/Dmi3yy/webui-pipes/internal/server"
	"github.com/Dmi3yy/webui-pipes/internal/storage"
	"github.com/Dmi3yy/webui-pipes/internal/tools"
)

// ToolRequest is the POST /tools/{name} body.
type ToolRequest struct {
	User     *domain.User    `json:"user,omitempty"`
	Metadata domain.Metadata `json:"metadata,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// PipelineRunRequest is the POST /pipelines/{id}/run body.
type PipelineRunRequest struct {
	Metadata   domain.Metadata `json:"metadata"`
	UserPrompt string          `json:"user_prompt,omitempty"`
}

// N8NRequest is the POST /pipe/n8n body.
type N8NRequest struct {
	Body   map[string]any `json:"body"`
	User   *domain.User   `json:"user,omitempty"`
	ChatID string         `json:"chat_id,omitempty"`
}

// resultBody is the final answer of a tool or pipe.
type resultBody struct {
	Result any `json:"result"`
}

func (h *Handlers) listTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cfg.Tools.Spec())
}

func (h *Handlers) callTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	server.AddLogField(r.Context(), "tool", name)

	if !h.cfg.Tools.Has(name) {
		writeError(w, domain.ErrNotFound("unknown tool: "+name))
		return
	}

	var req ToolRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, "invalid request body: "+err.Error()))
		return
	}
	if req.User == nil {
		req.User = server.UserFrom(r.Context())
	}

	call := tools.Call{User: req.User, Metadata: req.Metadata, Args: req.Args}

	var sse *events.SSEWriter
	if wantsStream(r) {
		var err error
		if sse, err = events.NewSSEWriter(w); err != nil {
			writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, err.Error()))
			return
		}
		call.Sink = sse
	}

	res, err := h.cfg.Tools.Invoke(r.Context(), name, call)
	if err != nil {
		server.AddError(r.Context(), err)
		h.record(r.Context(), storage.KindTool, name, req.User, metrics.OutcomeError, 0)
		p := domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, err.Error())
		if sse != nil {
			_ = sse.WriteNamed("result", resultBody{Result: p.String()})
			_ = sse.Done()
			return
		}
		writeError(w, p)
		return
	}
	h.record(r.Context(), storage.KindTool, name, req.User, res.Outcome, res.Duration)

	if sse != nil {
		_ = sse.WriteNamed("result", resultBody{Result: res.Output})
		_ = sse.Done()
		return
	}
	writeJSON(w, http.StatusOK, resultBody{Result: res.Output})
}

func (h *Handlers) listPipelines(w http.ResponseWriter, r *http.Request) {
	user := server.UserFrom(r.Context())
	writeJSON(w, http.StatusOK, h.cfg.ACL.FilterManifest(user, h.cfg.Manifests.Load()))
}

// pipelinePrompt renders the pipelines visible to the caller. With a
// "system" query parameter the snippet is also appended to that system prompt.
func (h *Handlers) pipelinePrompt(w http.ResponseWriter, r *http.Request) {
	user := server.UserFrom(r.Context())
	text := prompt.Build(h.cfg.ACL.FilterManifest(user, h.cfg.Manifests.Load()))
	tokens, err := prompt.TokenCount(text)
	if err != nil {
		h.logger.Warn("token count failed", slog.String("error", err.Error()))
	}
	resp := map[string]any{"prompt": text, "tokens": tokens}
	if q := r.URL.Query(); q.Has("system") {
		resp["system"] = prompt.Inject(q.Get("system"), text)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) runPipeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	user := server.UserFrom(r.Context())
	server.AddLogField(r.Context(), "pipe_id", id)

	var body PipelineRunRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, "invalid request body: "+err.Error()))
		return
	}
	req := pipeline.Request{PipeID: id, Metadata: body.Metadata, UserPrompt: body.UserPrompt, Stream: wantsStream(r)}

	start := time.Now()
	if !req.Stream {
		watch := tools.NewOutcomeSink(events.Discard)
		out := h.cfg.Runner.Run(r.Context(), req, user, watch)
		h.record(r.Context(), storage.KindPipeline, id, user, watch.Outcome(), time.Since(start))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(out))
		return
	}

	sse, err := events.NewSSEWriter(w)
	if err != nil {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, err.Error()))
		return
	}
	watch := tools.NewOutcomeSink(sse)
	out := h.cfg.Runner.Run(r.Context(), req, user, watch)
	h.record(r.Context(), storage.KindPipeline, id, user, watch.Outcome(), time.Since(start))
	if out != "" {
		_ = sse.WriteNamed("result", json.RawMessage(out))
	}
	_ = sse.Done()
}

func (h *Handlers) runN8N(w http.ResponseWriter, r *http.Request) {
	var req N8NRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, "invalid request body: "+err.Error()))
		return
	}
	if req.Body == nil {
		req.Body = map[string]any{}
	}
	if req.User == nil {
		req.User = server.UserFrom(r.Context())
	}
	server.AddLogField(r.Context(), "chat_id", req.ChatID)

	var sink events.Sink = events.Discard
	var sse *events.SSEWriter
	if wantsStream(r) {
		var err error
		if sse, err = events.NewSSEWriter(w); err != nil {
			writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, err.Error()))
			return
		}
		sink = sse
	}

	start := time.Now()
	reply := h.cfg.N8N.Pipe(r.Context(), req.Body, req.User, req.ChatID, sink)
	h.record(r.Context(), storage.KindPipe, n8n.ID, req.User, metrics.Outcome(!isErrorReply(reply)), time.Since(start))

	out := map[string]any{"result": reply, "messages": req.Body["messages"]}
	if sse != nil {
		_ = sse.WriteNamed("result", out)
		_ = sse.Done()
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func isErrorReply(reply any) bool {
	m, ok := reply.(map[string]any)
	if !ok {
		return false
	}
	_, failed := m["error"]
	return failed
}
