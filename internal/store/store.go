// Package store persists page journals in SQLite: the snapshot a page was
// opened with, the DOM write batches applied to it and the lifecycle events
// of its marks and triggers.
//
// Usage:
//
//	st, err := store.Open("glossmark.db", store.WithMkdirAll())
//	defer st.Close()
//
// In tests:
//
//	st := store.OpenMemory(t)
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshots (
	id        TEXT PRIMARY KEY,
	page_id   TEXT NOT NULL,
	page_url  TEXT NOT NULL DEFAULT '',
	html      BLOB NOT NULL,
	html_hash TEXT NOT NULL,
	ts        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_page ON snapshots(page_id, ts);

CREATE TABLE IF NOT EXISTS batches (
	id           TEXT PRIMARY KEY,
	page_id      TEXT NOT NULL,
	seq          INTEGER NOT NULL,
	cause        TEXT NOT NULL,
	records      TEXT NOT NULL,
	ts           INTEGER NOT NULL,
	snapshot_ref TEXT NOT NULL DEFAULT '',
	UNIQUE(page_id, seq)
);

CREATE TABLE IF NOT EXISTS events (
	id            TEXT PRIMARY KEY,
	page_id       TEXT NOT NULL,
	kind          TEXT NOT NULL,
	mark_kind     TEXT NOT NULL DEFAULT '',
	trigger_id    TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	annotation_id INTEGER NOT NULL DEFAULT 0,
	result        INTEGER,
	error         TEXT NOT NULL DEFAULT '',
	ts            INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_page ON events(page_id, ts);
CREATE INDEX IF NOT EXISTS events_trigger ON events(trigger_id);
`

type config struct {
	busyTimeout int
	synchronous string
	mkdirAll    bool
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithMkdirAll creates parent directories of the database path.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// Store is a journal database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string, opts ...Option) (*Store, error) {
	cfg := config{busyTimeout: 10_000, synchronous: "NORMAL"}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.synchronous),
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for tests. All queries share one
// connection, and the store is closed on cleanup.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	s.db.SetMaxOpenConns(1)
	t.Cleanup(func() { s.Close() })
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

const maxRetries = 3

// IsBusy reports whether err is an SQLite BUSY condition.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// runTx executes fn in a transaction, retrying on SQLITE_BUSY with
// 100/200/300 ms backoff.
func (s *Store) runTx(ctx context.Context, fn func(*sql.Tx) error) error {
	for i := range maxRetries {
		err := s.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsBusy(err) || i == maxRetries-1 {
			return err
		}
		t := time.NewTimer(time.Duration(100*(i+1)) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("store: context cancelled during retry: %w", ctx.Err())
		case <-t.C:
		}
	}
	return fmt.Errorf("store: max retries exceeded")
}

func (s *Store) runOnce(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
