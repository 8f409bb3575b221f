package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dmi3yy/webui-pipes/internal/filecache"
)

func TestDecode(t *testing.T) {
	entries := Decode([]byte(`[
		{"id": "pipe1", "name": "Pipe One", "group": "kb_admin", "timeout": 30},
		{"id": 7},
		"not an object"
	]`))

	require.Len(t, entries, 2)
	assert.Equal(t, "pipe1", entries[0].ID)
	assert.Equal(t, "Pipe One", entries[0].Name)
	assert.Equal(t, "kb_admin", entries[0].Group)
	assert.Equal(t, float64(30), entries[0].Extra["timeout"])
	assert.Empty(t, entries[1].ID, "non-string ids never match")
	assert.Equal(t, "7", entries[1].DisplayID())
}

func TestDecode_NotAList(t *testing.T) {
	assert.Empty(t, Decode([]byte(`{"id": "x"}`)))
	assert.Empty(t, Decode(nil))
}

func TestEntry_MarshalKeepsExtra(t *testing.T) {
	e := Entry{ID: "a", Group: "g", Extra: map[string]any{"owner": "ops"}}
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","group":"g","owner":"ops"}`, string(data))
}

func TestEntry_MarshalEchoesStoredKeys(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"no id", `{"name":"no id","group":"g"}`},
		{"numeric id", `{"id":1,"group":"g"}`},
		{"empty name kept", `{"id":"a","name":"","group":"g"}`},
		{"null group", `{"id":"a","group":null,"timeout":30}`},
		{"numeric name", `{"id":"a","name":5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Entry
			require.NoError(t, json.Unmarshal([]byte(tt.in), &e))
			data, err := json.Marshal(e)
			require.NoError(t, err)
			assert.JSONEq(t, tt.in, string(data))
		})
	}
}

func TestEntry_MarshalAfterEdit(t *testing.T) {
	var e Entry
	require.NoError(t, json.Unmarshal([]byte(`{"id":1,"group":"g"}`), &e))
	e.ID = "renamed"
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"renamed","group":"g"}`, string(data))
}

func TestFind_EmptyID(t *testing.T) {
	entries := Decode([]byte(`[{"name":"no id"},{"id":""}]`))
	_, ok := Find(entries, "")
	assert.False(t, ok)
}

func TestLoader_Caches(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"a"}]`), 0o644))

	clock := clockwork.NewFakeClock()
	l := NewLoader(path, nil, filecache.WithClock(clock))

	first := l.Load()
	require.Len(t, first, 1)
	assert.Equal(t, "a", first[0].ID)

	require.NoError(t, os.WriteFile(path, []byte(`[{"id":"b"}]`), 0o644))
	assert.Equal(t, "a", l.Load()[0].ID)

	clock.Advance(61 * time.Second)
	assert.Equal(t, "b", l.Load()[0].ID)

	_, ok := l.Find("b")
	assert.True(t, ok)
	_, ok = l.Find("a")
	assert.False(t, ok)
}
