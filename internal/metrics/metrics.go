// Package metrics holds the Prometheus collectors of the tool server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webui_pipes_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_tool_calls_total",
			Help: "Total number of tool invocations by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_pipeline_runs_total",
			Help: "Total number of proxied pipeline runs",
		},
		[]string{"pipe", "outcome", "stream"},
	)

	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webui_pipes_pipeline_run_duration_seconds",
			Help:    "Duration of proxied pipeline runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"pipe", "stream"},
	)

	RelayedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_relayed_events_total",
			Help: "Total number of SSE events relayed from pipelines",
		},
		[]string{"pipe"},
	)

	ACLDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_acl_decisions_total",
			Help: "Total number of pipeline ACL decisions",
		},
		[]string{"decision"},
	)

	N8NCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_n8n_calls_total",
			Help: "Total number of n8n workflow calls by outcome",
		},
		[]string{"outcome"},
	)

	LocalPipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webui_pipes_local_pipeline_runs_total",
			Help: "Total number of in-process pipeline executions",
		},
		[]string{"pipe", "finish_reason"},
	)
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Outcome maps a boolean result onto an outcome label.
func Outcome(ok bool) string {
	if ok {
		return OutcomeSuccess
	}
	return OutcomeError
}

// Middleware returns a chi middleware that records HTTP metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}

		status := strconv.Itoa(ww.Status())
		HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
