package domain

import (
	"bytes"
	"encoding/json"
)

// User is the host's view of the caller.
type User struct {
	ID    string `json:"id"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// UserID returns the id of u, or "" for a nil user.
func (u *User) UserID() string {
	if u == nil {
		return ""
	}
	return u.ID
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// Metadata is the free-form context the host attaches to a tool call
// (chat_id, message_id, session_id ...).
type Metadata map[string]any

// String returns the string value stored under key, or "".
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(data)
	}
}

// Has reports whether key is present, regardless of its value.
func (m Metadata) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// MarshalUnescaped encodes v as JSON without HTML escaping so non-ASCII and
// markup characters are kept as-is.
func MarshalUnescaped(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// MarshalIndentUnescaped is MarshalUnescaped with two-space indentation.
func MarshalIndentUnescaped(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
