// Package localpipe runs pipelines in-process and serves them over the
// /run contract consumed by package pipeline, so this service can act as
// its own PIPE_URL.
package localpipe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
)

// Finish reasons.
const (
	FinishStop     = "stop"
	FinishFollowUp = "follow_up"
)

// Input is what a pipeline receives.
type Input struct {
	Metadata   domain.Metadata
	UserPrompt string
	User       *domain.User
}

// FollowUp asks the caller for more input.
type FollowUp struct {
	MissingFields []string `json:"missing_fields"`
	Message       string   `json:"message"`
}

// Result is a pipeline's answer.
type Result struct {
	FinishReason string    `json:"finish_reason"`
	Content      any       `json:"content,omitempty"`
	FollowUp     *FollowUp `json:"follow_up,omitempty"`
}

// Pipeline executes one run, emitting progress to sink.
type Pipeline func(ctx context.Context, in Input, sink events.Sink) (Result, error)

// RequireFields returns a follow-up result naming the fields absent from
// metadata, in the order given, and false when any are missing.
func RequireFields(metadata domain.Metadata, fields ...string) (Result, bool) {
	var missing []string
	for _, f := range fields {
		if !metadata.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) == 0 {
		return Result{}, true
	}
	return Result{
		FinishReason: FinishFollowUp,
		FollowUp: &FollowUp{
			MissingFields: missing,
			Message:       "Please provide missing fields",
		},
	}, false
}

// Registry maps pipeline ids to implementations.
type Registry struct {
	mu        sync.RWMutex
	pipelines map[string]Pipeline
}

func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]Pipeline)}
}

func (r *Registry) Register(id string, p Pipeline) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pipelines[id]; exists {
		return fmt.Errorf("pipeline %q already registered", id)
	}
	r.pipelines[id] = p
	return nil
}

func (r *Registry) Get(id string) (Pipeline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pipelines[id]
	return p, ok
}

// IDs lists the registered ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.pipelines))
	for id := range r.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
