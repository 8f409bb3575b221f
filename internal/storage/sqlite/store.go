// Package sqlite is the SQLite-backed audit store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Dmi3yy/webui-pipes/internal/storage"
)

// Store is a SQLite implementation of storage.Store.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New opens (creating if needed) the database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS invocations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			name TEXT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			duration_ns INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS debug_dumps (
			id TEXT PRIMARY KEY,
			chat_id TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_kind ON invocations(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_user ON invocations(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invocations_created ON invocations(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_debug_dumps_chat ON debug_dumps(chat_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (s *Store) RecordInvocation(ctx context.Context, inv *storage.Invocation) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO invocations (id, kind, name, user_id, outcome, duration_ns, created_at)
		VALUES (:id, :kind, :name, :user_id, :outcome, :duration_ns, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, inv); err != nil {
		return fmt.Errorf("failed to record invocation: %w", err)
	}
	return nil
}

func (s *Store) ListInvocations(ctx context.Context, opts storage.ListOptions) ([]*storage.Invocation, error) {
	var (
		where []string
		args  []any
	)
	if opts.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, opts.Kind)
	}
	if opts.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, opts.UserID)
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	query := `SELECT id, kind, name, user_id, outcome, duration_ns, created_at FROM invocations`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	var out []*storage.Invocation
	if err := s.db.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
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

	query := `INSERT INTO debug_dumps (id, chat_id, payload, created_at)
		VALUES (:id, :chat_id, :payload, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, dump); err != nil {
		return fmt.Errorf("failed to save debug dump: %w", err)
	}
	return nil
}

func (s *Store) GetDebugDump(ctx context.Context, id string) (*storage.DebugDump, error) {
	var dump storage.DebugDump
	err := s.db.GetContext(ctx, &dump,
		`SELECT id, chat_id, payload, created_at FROM debug_dumps WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("debug dump %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get debug dump: %w", err)
	}
	return &dump, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
