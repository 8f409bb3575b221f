// Package events carries status and data events from tools, pipes and
// pipelines back to the caller's event sink.
//
// Events are plain JSON objects. Status events have the shape
//
//	{"type": "status", "data": {"status": "...", "description": "...", "done": false}}
//
// while events relayed from a pipeline stream are forwarded untouched.
package events

import (
	"context"
	"sync"
)

// Event is a single JSON object sent to a Sink.
type Event map[string]any

// Type returns the event's "type" field, or "".
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Data returns the event's "data" object, or nil.
func (e Event) Data() map[string]any {
	d, _ := e["data"].(map[string]any)
	return d
}

// Sink receives events. Implementations must be safe to call from the
// goroutine that runs the tool; they are never called concurrently for a
// single invocation.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })

// Emit sends ev to sink; a nil sink discards it.
func Emit(ctx context.Context, sink Sink, ev Event) error {
	if sink == nil {
		return nil
	}
	return sink.Emit(ctx, ev)
}

// Recorder stores every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Sink.
func (r *Recorder) Emit(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Statuses returns the data objects of recorded status events, in order.
func (r *Recorder) Statuses() []map[string]any {
	var out []map[string]any
	for _, ev := range r.Events() {
		if ev.Type() == "status" {
			out = append(out, ev.Data())
		}
	}
	return out
}

// Last returns the last recorded event, or nil.
func (r *Recorder) Last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}
