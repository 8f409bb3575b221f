package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dmi3yy/webui-pipes/internal/storage"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "pipes.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_RecordInvocation(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*storage.Invocation{
		{Kind: storage.KindTool, Name: "delete_file", UserID: "u1", Outcome: "success", CreatedAt: base},
		{Kind: storage.KindPipeline, Name: "move_file_between_kb", UserID: "u1", Outcome: "forbidden", CreatedAt: base.Add(time.Minute)},
		{Kind: storage.KindTool, Name: "knowledge_list", UserID: "u2", Outcome: "error", DurationNS: 42, CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, inv := range records {
		if err := store.RecordInvocation(ctx, inv); err != nil {
			t.Fatalf("RecordInvocation() error = %v", err)
		}
		if inv.ID == "" {
			t.Error("RecordInvocation() did not assign an ID")
		}
	}

	all, err := store.ListInvocations(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListInvocations() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListInvocations() returned %d, want 3", len(all))
	}
	if all[0].Name != "knowledge_list" {
		t.Errorf("newest first: got %q", all[0].Name)
	}
	if all[0].DurationNS != 42 {
		t.Errorf("DurationNS = %d, want 42", all[0].DurationNS)
	}

	tools, err := store.ListInvocations(ctx, storage.ListOptions{Kind: storage.KindTool, UserID: "u1"})
	if err != nil {
		t.Fatalf("ListInvocations() error = %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "delete_file" {
		t.Errorf("filtered list = %+v", tools)
	}

	limited, err := store.ListInvocations(ctx, storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListInvocations() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited list len = %d, want 2", len(limited))
	}
}

func TestSQLiteStore_DebugDump(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	dump := &storage.DebugDump{ChatID: "chat-1", Payload: `{"chatInput": "Привіт"}`}
	if err := store.SaveDebugDump(ctx, dump); err != nil {
		t.Fatalf("SaveDebugDump() error = %v", err)
	}

	got, err := store.GetDebugDump(ctx, dump.ID)
	if err != nil {
		t.Fatalf("GetDebugDump() error = %v", err)
	}
	if got.Payload != dump.Payload || got.ChatID != "chat-1" {
		t.Errorf("GetDebugDump() = %+v", got)
	}

	if _, err := store.GetDebugDump(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetDebugDump(missing) error = %v, want ErrNotFound", err)
	}
}
