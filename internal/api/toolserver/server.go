// Package toolserver exposes tools, pipelines and pipes over HTTP.
package toolserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dmi3yy/webui-pipes/internal/acl"
	"github.com/Dmi3yy/webui-pipes/internal/auth"
	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/manifest"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
	"github.com/Dmi3yy/webui-pipes/internal/n8n"
	"github.com/Dmi3yy/webui-pipes/internal/pipeline"
	"github.com/Dmi3yy/webui-pipes/internal/server"
	"github.com/Dmi3yy/webui-pipes/internal/storage"
	"github.com/Dmi3yy/webui-pipes/internal/tools"
)

// Config wires the handlers to their components. Store, N8N and LocalPipes
// are optional.
type Config struct {
	Tools      *tools.Registry
	Runner     *pipeline.Runner
	ACL        *acl.Loader
	Manifests  *manifest.Loader
	N8N        *n8n.Pipe
	LocalPipes http.Handler
	Store      storage.Store
	Auth       *auth.Authenticator
	Logger     *slog.Logger
}

type Handlers struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Handlers {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{cfg: cfg, logger: logger}
}

// Mount registers every route on r. /healthz, /metrics and /run are outside
// the API key check; /run carries its own pipeline key.
func (h *Handlers) Mount(r chi.Router) {
	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())
	if h.cfg.LocalPipes != nil {
		r.Method(http.MethodPost, "/run", h.recorded(storage.KindPipeline, "local", h.cfg.LocalPipes))
	}

	r.Group(func(r chi.Router) {
		r.Use(server.AuthMiddleware(h.cfg.Auth))
		r.Use(server.UserMiddleware)

		r.Get("/tools", h.listTools)
		r.Post("/tools/{name}", h.callTool)

		r.Get("/pipelines", h.listPipelines)
		r.Get("/pipelines/prompt", h.pipelinePrompt)
		r.With(h.requirePipe).Post("/pipelines/{id}/run", h.runPipeline)

		if h.cfg.N8N != nil {
			r.Post("/pipe/n8n", h.runN8N)
		}

		r.Get("/invocations", h.listInvocations)
		r.Get("/debug/dumps/{id}", h.getDebugDump)
	})
}

// requirePipe answers JSON requests for a forbidden pipe with 403. Streamed
// requests pass through; the runner then reports the denial on the stream
// with a terminal error status and the forbidden payload.
func (h *Handlers) requirePipe(next http.Handler) http.Handler {
	guarded := acl.RequirePipe(h.cfg.ACL, h.cfg.Manifests, userFromRequest, pipeFromRequest)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if wantsStream(r) {
			next.ServeHTTP(w, r)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}

func userFromRequest(r *http.Request) *domain.User { return server.UserFrom(r.Context()) }

func pipeFromRequest(r *http.Request) string { return chi.URLParam(r, "id") }

func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// record stores one invocation. Storage failures are logged only.
func (h *Handlers) record(ctx context.Context, kind, name string, user *domain.User, outcome string, d time.Duration) {
	if h.cfg.Store == nil {
		return
	}
	inv := &storage.Invocation{
		Kind:       kind,
		Name:       name,
		UserID:     user.UserID(),
		Outcome:    outcome,
		DurationNS: d.Nanoseconds(),
	}
	if err := h.cfg.Store.RecordInvocation(ctx, inv); err != nil {
		h.logger.Warn("failed to record invocation",
			slog.String("kind", kind),
			slog.String("name", name),
			slog.String("error", err.Error()))
	}
}

// recorded wraps a handler whose outcome is its status code.
func (h *Handlers) recorded(kind, name string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		h.record(r.Context(), kind, name, nil, metrics.Outcome(rec.status < 400), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (h *Handlers) listInvocations(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Store == nil {
		writeJSON(w, http.StatusOK, []*storage.Invocation{})
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	list, err := h.cfg.Store.ListInvocations(r.Context(), storage.ListOptions{
		Kind:   q.Get("kind"),
		UserID: q.Get("user_id"),
		Limit:  limit,
	})
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, domain.ErrUpstream(err.Error()))
		return
	}
	if list == nil {
		list = []*storage.Invocation{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handlers) getDebugDump(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.cfg.Store == nil {
		writeError(w, domain.ErrNotFound("debug dump not found: "+id))
		return
	}
	dump, err := h.cfg.Store.GetDebugDump(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, domain.ErrNotFound("debug dump not found: "+id))
		return
	}
	if err != nil {
		server.AddError(r.Context(), err)
		writeError(w, domain.ErrUpstream(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, dump)
}

func wantsStream(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("stream")); err == nil {
		return v
	}
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, p domain.ErrorPayload) {
	writeJSON(w, p.Error.HTTPStatusCode(), p)
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
