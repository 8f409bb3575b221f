package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Dmi3yy/webui-pipes/internal/acl"
	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/manifest"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
)

// Request names a pipeline and its input.
type Request struct {
	PipeID     string          `json:"pipe_id"`
	Metadata   domain.Metadata `json:"metadata"`
	UserPrompt string          `json:"user_prompt,omitempty"`
	Stream     bool            `json:"stream,omitempty"`
}

type runPayload struct {
	PipeID     string          `json:"pipe_id"`
	Metadata   domain.Metadata `json:"metadata"`
	UserPrompt *string         `json:"user_prompt"`
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	BaseURL   string // PIPE_URL
	Key       string // PIPE_KEY
	ACL       *acl.Loader
	Manifests *manifest.Loader
	Client    *http.Client
	Logger    *slog.Logger
}

// Runner executes pipelines through the pipeline service.
type Runner struct {
	baseURL   string
	key       string
	acl       *acl.Loader
	manifests *manifest.Loader
	client    *http.Client
	logger    *slog.Logger
}

func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		key:       cfg.Key,
		acl:       cfg.ACL,
		manifests: cfg.Manifests,
		client:    cfg.Client,
		logger:    cfg.Logger,
	}
	if r.client == nil {
		r.client = http.DefaultClient
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Run checks the ACL and calls the pipeline. Streaming runs relay events to
// sink and return ""; other runs return the service's JSON answer. Denials
// and failures are returned as {"error": {...}} payloads.
func (r *Runner) Run(ctx context.Context, req Request, user *domain.User, sink events.Sink) string {
	st := events.NewStatus(sink)
	stream := strconv.FormatBool(req.Stream)
	start := time.Now()

	if !r.acl.IsPipeAllowed(req.PipeID, user, r.manifests.Load()) {
		st.Fail(ctx, "Pipeline not permitted")
		metrics.PipelineRunsTotal.WithLabelValues(req.PipeID, "forbidden", stream).Inc()
		r.logger.Info("pipeline not permitted",
			slog.String("pipe_id", req.PipeID),
			slog.String("user_id", user.UserID()))
		return domain.ErrForbidden("Not allowed").String()
	}

	st.Progress(ctx, "Calling pipeline...")

	defer func() {
		metrics.PipelineRunDuration.WithLabelValues(req.PipeID, stream).Observe(time.Since(start).Seconds())
	}()

	resp, err := r.post(ctx, req)
	if err != nil {
		return r.fail(ctx, st, req, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	if req.Stream {
		n, err := Relay(ctx, resp.Body, sink)
		metrics.RelayedEventsTotal.WithLabelValues(req.PipeID).Add(float64(n))
		if err != nil {
			return r.fail(ctx, st, req, fmt.Errorf("read stream: %w", err))
		}
		r.finish(ctx, st, req, ok)
		return ""
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return r.fail(ctx, st, req, fmt.Errorf("read response: %w", err))
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return r.fail(ctx, st, req, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err))
	}
	r.finish(ctx, st, req, ok)

	out, err := domain.MarshalUnescaped(data)
	if err != nil {
		return r.fail(ctx, st, req, err)
	}
	return out
}

func (r *Runner) post(ctx context.Context, req Request) (*http.Response, error) {
	payload := runPayload{PipeID: req.PipeID, Metadata: req.Metadata}
	if req.UserPrompt != "" {
		payload.UserPrompt = &req.UserPrompt
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	target := r.baseURL + "/run?" + url.Values{"stream": {strconv.FormatBool(req.Stream)}}.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.key)
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("pipeline request failed: %w", err)
	}
	return resp, nil
}

func (r *Runner) finish(ctx context.Context, st *events.Status, req Request, ok bool) {
	if ok {
		st.Success(ctx, "Pipeline finished")
	} else {
		st.Fail(ctx, "Pipeline failed")
	}
	metrics.PipelineRunsTotal.WithLabelValues(req.PipeID, metrics.Outcome(ok), strconv.FormatBool(req.Stream)).Inc()
}

func (r *Runner) fail(ctx context.Context, st *events.Status, req Request, err error) string {
	r.logger.Error("pipeline run failed",
		slog.String("pipe_id", req.PipeID),
		slog.String("error", err.Error()))
	st.Fail(ctx, "Pipeline failed")
	metrics.PipelineRunsTotal.WithLabelValues(req.PipeID, metrics.OutcomeError, strconv.FormatBool(req.Stream)).Inc()
	return domain.ErrUpstream(err.Error()).String()
}
