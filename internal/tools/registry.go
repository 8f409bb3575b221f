package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/metrics"
)

var (
	ErrUnknownTool = errors.New("unknown tool")
	ErrInvalidArgs = errors.New("invalid tool arguments")
)

// Call carries the host-provided context of one tool invocation.
type Call struct {
	User     *domain.User
	Metadata domain.Metadata
	Args     json.RawMessage
	Sink     events.Sink
}

// Result is the outcome of Registry.Invoke.
type Result struct {
	Output   string
	Outcome  string
	Duration time.Duration
}

// Spec describes a tool to the host.
type Spec struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

type tool struct {
	spec       Spec
	deprecated bool
	invoke     func(ctx context.Context, args json.RawMessage, call Call) (string, error)
}

// Registry dispatches tool calls by name.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]*tool
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{tools: make(map[string]*tool), logger: logger}
}

// Option tweaks a registration.
type Option func(*tool)

// Deprecated keeps the tool callable but hides it from Spec.
func Deprecated() Option {
	return func(t *tool) { t.deprecated = true }
}

// Register adds a tool whose arguments decode into A. The parameter schema
// is derived from A.
func Register[A any](r *Registry, name, description string, fn func(ctx context.Context, args A, call Call) string, opts ...Option) error {
	schema, err := jsonschema.For[A](nil)
	if err != nil {
		return fmt.Errorf("failed to create %s input schema: %w", name, err)
	}

	t := &tool{
		spec: Spec{Name: name, Description: description, Parameters: schema},
		invoke: func(ctx context.Context, raw json.RawMessage, call Call) (string, error) {
			var args A
			if len(raw) > 0 && string(raw) != "null" {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("%w: %v", ErrInvalidArgs, err)
				}
			}
			return fn(ctx, args, call), nil
		},
	}
	for _, opt := range opts {
		opt(t)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Spec lists the non-deprecated tools, sorted by name.
func (r *Registry) Spec() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.tools))
	for _, t := range r.tools {
		if t.deprecated {
			continue
		}
		out = append(out, t.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Has reports whether name is registered, deprecated or not.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Invoke runs the named tool. Errors are limited to unknown tools and
// undecodable arguments; tool failures are reported in Result.Output and
// Result.Outcome.
func (r *Registry) Invoke(ctx context.Context, name string, call Call) (Result, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	watch := NewOutcomeSink(call.Sink)
	call.Sink = watch

	start := time.Now()
	out, err := t.invoke(ctx, call.Args, call)
	duration := time.Since(start)
	if err != nil {
		metrics.ToolCallsTotal.WithLabelValues(name, metrics.OutcomeError).Inc()
		return Result{}, err
	}

	outcome := watch.Outcome()
	metrics.ToolCallsTotal.WithLabelValues(name, outcome).Inc()
	r.logger.Debug("tool invoked",
		slog.String("tool", name),
		slog.String("outcome", outcome),
		slog.Duration("duration", duration))

	return Result{Output: out, Outcome: outcome, Duration: duration}, nil
}

// OutcomeSink forwards events and remembers whether a terminal status
// reported an error.
type OutcomeSink struct {
	next   events.Sink
	failed bool
}

func NewOutcomeSink(next events.Sink) *OutcomeSink {
	return &OutcomeSink{next: next}
}

func (s *OutcomeSink) Emit(ctx context.Context, ev events.Event) error {
	if ev.Type() == "status" {
		data := ev.Data()
		if done, _ := data["done"].(bool); done {
			if status, _ := data["status"].(string); status == events.StatusError {
				s.failed = true
			}
		}
	}
	return events.Emit(ctx, s.next, ev)
}

// Outcome is metrics.OutcomeError once a failed terminal status was seen.
func (s *OutcomeSink) Outcome() string {
	return metrics.Outcome(!s.failed)
}
