package events

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttle emits leveled status events no more often than Interval.
// Terminal events always pass. A disabled Throttle drops everything.
type Throttle struct {
	sink     Sink
	clock    clockwork.Clock
	interval time.Duration
	enabled  bool

	mu   sync.Mutex
	last time.Time
}

// NewThrottle returns a Throttle writing to sink.
func NewThrottle(sink Sink, interval time.Duration, enabled bool, clock clockwork.Clock) *Throttle {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Throttle{sink: sink, clock: clock, interval: interval, enabled: enabled}
}

// Emit sends {"status": "complete"|"in_progress", "level", "description", "done"}
// when allowed and reports whether the event was sent.
func (t *Throttle) Emit(ctx context.Context, level, message string, done bool) bool {
	if t == nil || t.sink == nil || !t.enabled {
		return false
	}

	t.mu.Lock()
	now := t.clock.Now()
	if !done && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return false
	}
	t.last = now
	t.mu.Unlock()

	status := StatusInProgress
	if done {
		status = "complete"
	}
	_ = t.sink.Emit(ctx, Event{
		"type": "status",
		"data": map[string]any{
			"status":      status,
			"level":       level,
			"description": message,
			"done":        done,
		},
	})
	return true
}
