package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dmi3yy/webui-pipes/internal/domain"
	"github.com/Dmi3yy/webui-pipes/internal/events"
)

func TestRegistrySpecHidesDeprecated(t *testing.T) {
	_, tl := newFakeWebUI(t)
	r := NewRegistry(nil)
	require.NoError(t, RegisterBuiltins(r, tl))

	var names []string
	for _, s := range r.Spec() {
		names = append(names, s.Name)
		require.NotNil(t, s.Parameters)
	}
	assert.Contains(t, names, "delete_file")
	assert.Contains(t, names, "create_knowledge")
	assert.NotContains(t, names, "get_files_from_knowledge")
	assert.True(t, r.Has("get_files_from_knowledge"))
}

func TestRegistrySchemaFromArgs(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, Register(r, "echo", "Echo.", func(_ context.Context, a KnowledgeFileArgs, _ Call) string {
		return a.KnowledgeID + "/" + a.FileID
	}))

	spec := r.Spec()
	require.Len(t, spec, 1)
	raw, err := json.Marshal(spec[0].Parameters)
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(raw, &schema))
	props := schema["properties"].(map[string]any)
	assert.Contains(t, props, "knowledge_id")
	assert.Contains(t, props, "file_id")
}

func TestRegistryInvoke(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, Register(r, "echo", "Echo.", func(ctx context.Context, a FileIDArgs, c Call) string {
		events.NewStatus(c.Sink).Success(ctx, "ok")
		return a.FileID + ":" + c.User.UserID()
	}))
	require.NoError(t, Register(r, "fail", "Fail.", func(ctx context.Context, _ NoArgs, c Call) string {
		events.NewStatus(c.Sink).Fail(ctx, "nope")
		return `{}`
	}))

	rec := &events.Recorder{}
	res, err := r.Invoke(context.Background(), "echo", Call{
		User: &domain.User{ID: "u1"},
		Args: json.RawMessage(`{"file_id":"f1"}`),
		Sink: rec,
	})
	require.NoError(t, err)
	assert.Equal(t, "f1:u1", res.Output)
	assert.Equal(t, "success", res.Outcome)
	assert.Len(t, rec.Events(), 1)

	res, err = r.Invoke(context.Background(), "fail", Call{})
	require.NoError(t, err)
	assert.Equal(t, "error", res.Outcome)

	_, err = r.Invoke(context.Background(), "missing", Call{})
	assert.ErrorIs(t, err, ErrUnknownTool)

	_, err = r.Invoke(context.Background(), "echo", Call{Args: json.RawMessage(`[1]`)})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	fn := func(context.Context, NoArgs, Call) string { return "" }
	require.NoError(t, Register(r, "x", "", fn))
	assert.Error(t, Register(r, "x", "", fn))
}
