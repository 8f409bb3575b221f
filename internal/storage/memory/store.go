// Package memory is an in-process audit store for tests and single-run use.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Dmi3yy/webui-pipes/internal/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu          sync.RWMutex
	invocations []*storage.Invocation
	dumps       map[string]*storage.DebugDump
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{dumps: make(map[string]*storage.DebugDump)}
}

func (s *Store) RecordInvocation(ctx context.Context, inv *storage.Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	cp := *inv

	s.mu.Lock()
	defer s.mu.Unlock()
	s.invocations = append(s.invocations, &cp)
	return nil
}

func (s *Store) ListInvocations(ctx context.Context, opts storage.ListOptions) ([]*storage.Invocation, error) {
	s.mu.RLock()
	var out []*storage.Invocation
	for _, inv := range s.invocations {
		if opts.Kind != "" && inv.Kind != opts.Kind {
			continue
		}
		if opts.UserID != "" && inv.UserID != opts.UserID {
			continue
		}
		cp := *inv
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SaveDebugDump(ctx context.Context, dump *storage.DebugDump) error {
	if dump.ID == "" {
		dump.ID = uuid.NewString()
	}
	if dump.CreatedAt.IsZero() {
		dump.CreatedAt = time.Now().UTC()
	}
	cp := *dump

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dumps[dump.ID] = &cp
	return nil
}

func (s *Store) GetDebugDump(ctx context.Context, id string) (*storage.DebugDump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dump, ok := s.dumps[id]
	if !ok {
		return nil, fmt.Errorf("debug dump %s: %w", id, storage.ErrNotFound)
	}
	cp := *dump
	return &cp, nil
}

func (s *Store) Close() error {
	return nil
}
