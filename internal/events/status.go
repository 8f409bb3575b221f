package events

import "context"

// Status levels used in status events.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusError      = "error"
)

// Status emits status events to a sink. The zero value discards events.
type Status struct {
	sink         Sink
	withProgress bool
}

// NewStatus returns a Status that includes a "progress" field in every event:
// 100 once done, otherwise the given progress or 0.
func NewStatus(sink Sink) *Status {
	return &Status{sink: sink, withProgress: true}
}

// NewPlainStatus returns a Status whose events carry no "progress" field.
func NewPlainStatus(sink Sink) *Status {
	return &Status{sink: sink}
}

// Progress reports an in-progress step.
func (s *Status) Progress(ctx context.Context, description string) {
	s.Emit(ctx, description, StatusInProgress, false, nil)
}

// Success reports a terminal success.
func (s *Status) Success(ctx context.Context, description string) {
	s.Emit(ctx, description, StatusSuccess, true, nil)
}

// Fail reports a terminal failure.
func (s *Status) Fail(ctx context.Context, description string) {
	s.Emit(ctx, description, StatusError, true, nil)
}

// Emit sends one status event. Sink errors are ignored.
func (s *Status) Emit(ctx context.Context, description, status string, done bool, progress *int) {
	if s == nil || s.sink == nil {
		return
	}
	data := map[string]any{
		"status":      status,
		"description": description,
		"done":        done,
	}
	if s.withProgress {
		switch {
		case done:
			data["progress"] = 100
		case progress != nil:
			data["progress"] = *progress
		default:
			data["progress"] = 0
		}
	}
	_ = s.sink.Emit(ctx, Event{"type": "status", "data": data})
}
