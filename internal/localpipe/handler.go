package localpipe

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Dmi3yy/webui-pipes/internal/auth"
	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
)

// RunRequest is the /run request body.
type RunRequest struct {
	PipeID     string          `json:"pipe_id"`
	Metadata   domain.Metadata `json:"metadata"`
	UserPrompt *string         `json:"user_prompt"`
	User       *domain.User    `json:"user,omitempty"`
}

// Handler serves POST /run.
type Handler struct {
	registry *Registry
	key      string
	logger   *slog.Logger
}

// NewHandler requires "Authorization: Bearer <key>" unless key is empty.
func NewHandler(registry *Registry, key string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{registry: registry, key: key, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !auth.MatchBearer(r, h.key) {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeUnauthorized, "invalid pipeline key"))
		return
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, "invalid request body: "+err.Error()))
		return
	}

	pipeline, ok := h.registry.Get(req.PipeID)
	if !ok {
		writeError(w, domain.ErrNotFound("unknown pipeline: "+req.PipeID))
		return
	}

	stream, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
	in := Input{Metadata: req.Metadata, User: req.User}
	if req.UserPrompt != nil {
		in.UserPrompt = *req.UserPrompt
	}

	if !stream {
		res, err := pipeline(r.Context(), in, events.Discard)
		if err != nil {
			h.logger.Error("pipeline failed", slog.String("pipe_id", req.PipeID), slog.String("error", err.Error()))
			writeError(w, domain.ErrUpstream(err.Error()))
			return
		}
		metrics.LocalPipelineRunsTotal.WithLabelValues(req.PipeID, res.FinishReason).Inc()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(res)
		return
	}

	sse, err := events.NewSSEWriter(w)
	if err != nil {
		writeError(w, domain.NewErrorPayload(domain.ErrorCodeInvalidRequest, err.Error()))
		return
	}

	res, err := pipeline(r.Context(), in, sse)
	if err != nil {
		h.logger.Error("pipeline failed", slog.String("pipe_id", req.PipeID), slog.String("error", err.Error()))
		_ = sse.WriteData(domain.ErrUpstream(err.Error()).String())
		_ = sse.Done()
		return
	}
	metrics.LocalPipelineRunsTotal.WithLabelValues(req.PipeID, res.FinishReason).Inc()

	data, err := domain.MarshalUnescaped(res)
	if err == nil {
		_ = sse.WriteData(data)
	}
	_ = sse.Done()
}

func writeError(w http.ResponseWriter, p domain.ErrorPayload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(p.Error.HTTPStatusCode())
	_ = json.NewEncoder(w).Encode(p)
}
