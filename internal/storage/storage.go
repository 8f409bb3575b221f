// Package storage records an audit trail of tool, pipeline and pipe
// invocations, plus the n8n debug payload dumps.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// Invocation kinds.
const (
	KindTool     = "tool"
	KindPipeline = "pipeline"
	KindPipe     = "pipe"
)

// Invocation is one call served by the tool server.
type Invocation struct {
	ID         string    `db:"id" json:"id"`
	Kind       string    `db:"kind" json:"kind"`
	Name       string    `db:"name" json:"name"`
	UserID     string    `db:"user_id" json:"user_id,omitempty"`
	Outcome    string    `db:"outcome" json:"outcome"`
	DurationNS int64     `db:"duration_ns" json:"duration_ns"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// DebugDump is the full payload sent to n8n for one chat turn.
type DebugDump struct {
	ID        string    `db:"id" json:"id"`
	ChatID    string    `db:"chat_id" json:"chat_id"`
	Payload   string    `db:"payload" json:"payload"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ListOptions filters ListInvocations. Results are newest first.
type ListOptions struct {
	Kind   string
	UserID string
	Limit  int
}

// DefaultListLimit applies when ListOptions.Limit is not positive.
const DefaultListLimit = 100

// Store persists invocations and debug dumps. Records without an ID or
// CreatedAt get one assigned on write.
type Store interface {
	RecordInvocation(ctx context.Context, inv *Invocation) error
	ListInvocations(ctx context.Context, opts ListOptions) ([]*Invocation, error)
	SaveDebugDump(ctx context.Context, dump *DebugDump) error
	GetDebugDump(ctx context.Context, id string) (*DebugDump, error)
	Close() error
}
