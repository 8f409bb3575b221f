package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dmi3yy/webui-pipes/internal/storage"
)

func TestMemoryStore_Invocations(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Now()

	require.NoError(t, s.RecordInvocation(ctx, &storage.Invocation{Kind: storage.KindTool, Name: "a", CreatedAt: base}))
	require.NoError(t, s.RecordInvocation(ctx, &storage.Invocation{Kind: storage.KindPipe, Name: "n8n", CreatedAt: base.Add(time.Second)}))

	all, err := s.ListInvocations(ctx, storage.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "n8n", all[0].Name)
	assert.NotEmpty(t, all[0].ID)

	pipes, err := s.ListInvocations(ctx, storage.ListOptions{Kind: storage.KindPipe})
	require.NoError(t, err)
	assert.Len(t, pipes, 1)

	one, err := s.ListInvocations(ctx, storage.ListOptions{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestMemoryStore_DebugDump(t *testing.T) {
	s := New()
	ctx := context.Background()

	dump := &storage.DebugDump{ChatID: "c1", Payload: "{}"}
	require.NoError(t, s.SaveDebugDump(ctx, dump))

	got, err := s.GetDebugDump(ctx, dump.ID)
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ChatID)

	_, err = s.GetDebugDump(ctx, "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
