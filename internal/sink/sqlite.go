package sink

import (
	"context"

	"github.com/hazyhaar/glossmark/internal/store"
	"github.com/hazyhaar/glossmark/mutation"
)

// SQLite persists the journal in a store. Close closes the store.
type SQLite struct {
	st *store.Store
}

// NewSQLite wraps an open store.
func NewSQLite(st *store.Store) *SQLite { return &SQLite{st: st} }

func (s *SQLite) Send(ctx context.Context, batch mutation.Batch) error {
	return s.st.SaveBatch(ctx, batch)
}

func (s *SQLite) SendEvent(ctx context.Context, ev mutation.Event) error {
	return s.st.SaveEvent(ctx, ev)
}

func (s *SQLite) SendSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	return s.st.SaveSnapshot(ctx, snap)
}

func (s *SQLite) Close() error { return s.st.Close() }
