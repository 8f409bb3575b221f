// Package manifest loads the list of known pipelines.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Dmi3yy/webui-pipes/internal/filecache"
)

// Entry describes one external pipeline. Keys other than id, name and group
// are kept in Extra and written back out unchanged.
//
// ID and Group are set only from string values, so an entry whose id is
// missing or not a string never matches a pipeline id.
type Entry struct {
	ID    string
	Name  string
	Group string
	Extra map[string]any

	// raw holds id, name and group as decoded, for the keys that were present.
	raw map[string]any
}

var entryKeys = []string{"id", "name", "group"}

// UnmarshalJSON decodes an entry. A non-string name is stringified for
// display.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = Entry{}
	for k, v := range obj {
		switch k {
		case "id", "name", "group":
			if e.raw == nil {
				e.raw = make(map[string]any, len(entryKeys))
			}
			e.raw[k] = v
		default:
			if e.Extra == nil {
				e.Extra = make(map[string]any)
			}
			e.Extra[k] = v
		}
	}
	e.ID, _ = e.raw["id"].(string)
	e.Group, _ = e.raw["group"].(string)
	e.Name = stringify(e.raw["name"])
	return nil
}

// MarshalJSON encodes the entry as a flat object. Decoded entries write back
// the keys they were read with; unchanged non-string values keep their type.
func (e Entry) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Extra)+len(entryKeys))
	for k, v := range e.Extra {
		out[k] = v
	}
	fields := map[string]string{"id": e.ID, "name": e.Name, "group": e.Group}
	for _, k := range entryKeys {
		v, present := e.raw[k]
		switch {
		case present && !isString(v) && fields[k] == decodedField(k, v):
			out[k] = v
		case present || fields[k] != "":
			out[k] = fields[k]
		}
	}
	return json.Marshal(out)
}

// decodedField is the field value UnmarshalJSON derives from v.
func decodedField(key string, v any) string {
	if key == "name" {
		return stringify(v)
	}
	s, _ := v.(string)
	return s
}

// DisplayID renders the id as written in the manifest.
func (e Entry) DisplayID() string {
	if e.ID != "" {
		return e.ID
	}
	return stringify(e.raw["id"])
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// Decode parses a manifest document. Anything that is not a JSON list of
// objects yields an empty manifest; non-object items are skipped.
func Decode(data []byte) []Entry {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil
	}
	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries
}

// Find returns the entry with the given id. An empty id matches nothing.
func Find(entries []Entry, id string) (Entry, bool) {
	if id == "" {
		return Entry{}, false
	}
	for _, e := range entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Loader reads the manifest file through a 60 second cache.
type Loader struct {
	cache *filecache.Cache[[]Entry]
}

// NewLoader creates a loader for path.
func NewLoader(path string, logger *slog.Logger, opts ...filecache.Option) *Loader {
	if logger != nil {
		opts = append([]filecache.Option{filecache.WithLogger(logger)}, opts...)
	}
	return &Loader{
		cache: filecache.New(path, Decode, func(v []Entry) bool { return len(v) == 0 }, opts...),
	}
}

// Load returns the pipeline definitions.
func (l *Loader) Load() []Entry {
	return l.cache.Load()
}

// Find looks up a pipeline by id in the current manifest.
func (l *Loader) Find(id string) (Entry, bool) {
	return Find(l.Load(), id)
}

// Path returns the manifest file path.
func (l *Loader) Path() string {
	return l.cache.Path()
}

// SetPath switches to another manifest file.
func (l *Loader) SetPath(path string) {
	l.cache.SetPath(path)
}
