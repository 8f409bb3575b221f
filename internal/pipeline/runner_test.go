package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dmi3yy/webui-pipes/internal/acl"
	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
	"github.com/Dmi3yy/webui-pipes/internal/manifest"
	"github.com/Dmi3yy/webui-pipes/internal/tools"
)

var admin = &domain.User{ID: "1", Role: "admin"}

func newRunner(t *testing.T, baseURL string) *Runner {
	t.Helper()
	dir := t.TempDir()
	aclPath := filepath.Join(dir, "acl.json")
	manifestPath := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(aclPath, []byte(`{"kb_admin": {"roles": ["admin"]}}`), 0o644))
	require.NoError(t, os.WriteFile(manifestPath, []byte(`[
		{"id": "move_file_between_kb", "name": "Move file", "group": "kb_admin"},
		{"id": "report", "group": "reports"},
		{"name": "Draft without id", "group": "kb_admin"}
	]`), 0o644))

	return NewRunner(RunnerConfig{
		BaseURL:   baseURL + "/",
		Key:       "pipe-key",
		ACL:       acl.NewLoader(aclPath, nil),
		Manifests: manifest.NewLoader(manifestPath, nil),
	})
}

func statuses(rec *events.Recorder) []string {
	var out []string
	for _, st := range rec.Statuses() {
		out = append(out, fmt.Sprintf("%v/%v/%v", st["description"], st["status"], st["done"]))
	}
	return out
}

func TestRunForbidden(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	r := newRunner(t, srv.URL)
	rec := &events.Recorder{}

	out := r.Run(context.Background(), Request{PipeID: "report"}, admin, rec)

	assert.JSONEq(t, `{"error":{"code":"forbidden","message":"Not allowed"}}`, out)
	assert.Equal(t, []string{"Pipeline not permitted/error/true"}, statuses(rec))
	assert.False(t, called)

	out = r.Run(context.Background(), Request{PipeID: "unknown"}, admin, rec)
	assert.Contains(t, out, "forbidden")

	out = r.Run(context.Background(), Request{PipeID: "move_file_between_kb"}, nil, rec)
	assert.Contains(t, out, "forbidden")
}

func TestRunNonStreaming(t *testing.T) {
	var gotAuth, gotStream string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotStream = r.URL.Query().Get("stream")
		assert.Equal(t, "/run", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, `{"finish_reason":"stop","content":{"note":"Привіт <b>"}}`)
	}))
	defer srv.Close()

	r := newRunner(t, srv.URL)
	rec := &events.Recorder{}
	out := r.Run(context.Background(), Request{
		PipeID:   "move_file_between_kb",
		Metadata: domain.Metadata{"file_id": "f1"},
	}, admin, rec)

	assert.Equal(t, `{"content":{"note":"Привіт <b>"},"finish_reason":"stop"}`, out)
	assert.Equal(t, "Bearer pipe-key", gotAuth)
	assert.Equal(t, "false", gotStream)
	assert.Equal(t, map[string]any{
		"pipe_id":     "move_file_between_kb",
		"metadata":    map[string]any{"file_id": "f1"},
		"user_prompt": nil,
	}, gotBody)
	assert.Equal(t, []string{
		"Calling pipeline.../in_progress/false",
		"Pipeline finished/success/true",
	}, statuses(rec))
}

func TestRunNonStreamingErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"detail":"boom"}`)
	}))
	defer srv.Close()

	rec := &events.Recorder{}
	out := newRunner(t, srv.URL).Run(context.Background(), Request{PipeID: "move_file_between_kb"}, admin, rec)

	assert.JSONEq(t, `{"detail":"boom"}`, out)
	assert.Equal(t, "Pipeline failed/error/true", statuses(rec)[1])
}

func TestRunTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &events.Recorder{}
	out := newRunner(t, url).Run(context.Background(), Request{PipeID: "move_file_between_kb"}, admin, rec)

	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	assert.Equal(t, domain.ErrorCodeUpstream, payload.Error.Code)
	assert.Equal(t, "Pipeline failed/error/true", statuses(rec)[1])
}

func TestRunNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "<html>bad gateway</html>")
	}))
	defer srv.Close()

	out := newRunner(t, srv.URL).Run(context.Background(), Request{PipeID: "move_file_between_kb"}, admin, nil)
	assert.Contains(t, out, `"upstream_error"`)
}

func TestRunStreaming(t *testing.T) {
	big := strings.Repeat("x", 2<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("stream"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"status\",\"data\":{\"status\":\"validating\"}}\n\n")
		fmt.Fprint(w, ": keep-alive comment\n")
		fmt.Fprint(w, "data: not json\n\n")
		fmt.Fprintf(w, "data: {\"type\":\"chunk\",\"data\":{\"text\":%q}}\r\n\r\n", big)
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, "data: {\"type\":\"after-done\"}\n\n")
	}))
	defer srv.Close()

	rec := &events.Recorder{}
	out := newRunner(t, srv.URL).Run(context.Background(), Request{PipeID: "move_file_between_kb", Stream: true}, admin, rec)
	assert.Equal(t, "", out)

	evs := rec.Events()
	require.Len(t, evs, 4)
	assert.Equal(t, "Calling pipeline...", evs[0].Data()["description"])
	assert.Equal(t, "validating", evs[1].Data()["status"])
	assert.Equal(t, "chunk", evs[2].Type())
	assert.Len(t, evs[2].Data()["text"], len(big))
	assert.Equal(t, "Pipeline finished", evs[3].Data()["description"])
}

func TestRunStreamingFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "data: {\"type\":\"status\",\"data\":{\"status\":\"error\"}}\n")
	}))
	defer srv.Close()

	rec := &events.Recorder{}
	out := newRunner(t, srv.URL).Run(context.Background(), Request{PipeID: "move_file_between_kb", Stream: true}, admin, rec)
	assert.Equal(t, "", out)
	last := rec.Last().Data()
	assert.Equal(t, "Pipeline failed", last["description"])
	assert.Equal(t, true, last["done"])
}

func TestRelayWithoutTrailingNewline(t *testing.T) {
	rec := &events.Recorder{}
	n, err := Relay(context.Background(), strings.NewReader("data: {\"a\":1}\ndata:{\"b\":2}"), rec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, json.Number("2"), rec.Last()["b"])
}

func TestRelayWrapsNonObjects(t *testing.T) {
	rec := &events.Recorder{}
	body := "data: [1,2]\ndata: \"chunk text\"\ndata: 7\ndata: null\nevent: x\ndata: not json\ndata: {\"type\":\"x\"}\n"
	n, err := Relay(context.Background(), strings.NewReader(body), rec)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got := rec.Events()
	require.Len(t, got, 5)
	assert.Equal(t, events.Event{"type": "data", "data": []any{json.Number("1"), json.Number("2")}}, got[0])
	assert.Equal(t, events.Event{"type": "data", "data": "chunk text"}, got[1])
	assert.Equal(t, events.Event{"type": "data", "data": json.Number("7")}, got[2])
	assert.Equal(t, events.Event{"type": "data", "data": nil}, got[3])
	assert.Equal(t, events.Event{"type": "x"}, got[4])
}

func TestRunPipelineToolMissingPipeID(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	reg := tools.NewRegistry(nil)
	require.NoError(t, RegisterTool(reg, newRunner(t, srv.URL)))

	res, err := reg.Invoke(context.Background(), ToolName, tools.Call{
		User: admin,
		Args: json.RawMessage(`{"user_prompt":"go"}`),
	})
	require.NoError(t, err)
	assert.Contains(t, res.Output, "forbidden")
	assert.Equal(t, "error", res.Outcome)
	assert.False(t, called)
}

func TestRunPipelineTool(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"ok":true}`)
	}))
	defer srv.Close()

	reg := tools.NewRegistry(nil)
	require.NoError(t, RegisterTool(reg, newRunner(t, srv.URL)))

	res, err := reg.Invoke(context.Background(), ToolName, tools.Call{
		User:     admin,
		Metadata: domain.Metadata{"chat_id": "c1"},
		Args:     json.RawMessage(`{"pipe_id":"move_file_between_kb","user_prompt":"go"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, res.Output)
	assert.Equal(t, "success", res.Outcome)
	assert.Equal(t, map[string]any{"chat_id": "c1"}, gotBody["metadata"])
	assert.Equal(t, "go", gotBody["user_prompt"])
}
