package events

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Progress(t *testing.T) {
	rec := &Recorder{}
	s := NewStatus(rec)
	ctx := context.Background()

	s.Progress(ctx, "Calling pipeline...")
	fifty := 50
	s.Emit(ctx, "half way", StatusInProgress, false, &fifty)
	s.Success(ctx, "Pipeline finished")

	statuses := rec.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, 0, statuses[0]["progress"])
	assert.Equal(t, 50, statuses[1]["progress"])
	assert.Equal(t, 100, statuses[2]["progress"])
	assert.Equal(t, "success", statuses[2]["status"])
	assert.Equal(t, true, statuses[2]["done"])
}

func TestPlainStatus_NoProgressField(t *testing.T) {
	rec := &Recorder{}
	NewPlainStatus(rec).Fail(context.Background(), "Deletion failed")

	statuses := rec.Statuses()
	require.Len(t, statuses, 1)
	assert.NotContains(t, statuses[0], "progress")
	assert.Equal(t, "error", statuses[0]["status"])
	assert.Equal(t, "Deletion failed", statuses[0]["description"])
}

func TestStatus_NilSink(t *testing.T) {
	var s *Status
	s.Progress(context.Background(), "ignored")
	NewStatus(nil).Success(context.Background(), "ignored")
	assert.NoError(t, Emit(context.Background(), nil, Event{"type": "x"}))
}

func TestThrottle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	rec := &Recorder{}
	th := NewThrottle(rec, 2*time.Second, true, clock)
	ctx := context.Background()

	assert.True(t, th.Emit(ctx, "info", "first", false))
	assert.False(t, th.Emit(ctx, "info", "too soon", false))

	clock.Advance(2 * time.Second)
	assert.True(t, th.Emit(ctx, "info", "later", false))

	// Terminal events bypass the interval.
	assert.True(t, th.Emit(ctx, "info", "Complete", true))

	statuses := rec.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "in_progress", statuses[0]["status"])
	assert.Equal(t, "complete", statuses[2]["status"])
	assert.Equal(t, "info", statuses[2]["level"])
}

func TestThrottle_Disabled(t *testing.T) {
	rec := &Recorder{}
	th := NewThrottle(rec, time.Second, false, clockwork.NewFakeClock())
	assert.False(t, th.Emit(context.Background(), "error", "boom", true))
	assert.Empty(t, rec.Events())
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.Emit(context.Background(), Event{"delta": map[string]any{"content": "hi"}}))
	require.NoError(t, sse.WriteNamed("result", map[string]string{"result": "{}"}))
	require.NoError(t, sse.Done())

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, `data: {"delta":{"content":"hi"}}`+"\n\n"))
	assert.Contains(t, body, "event: result\n")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
}
