package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/glossmark/mutation"
)

// ErrNotFound is returned when a page has no snapshot.
var ErrNotFound = errors.New("store: not found")

// SaveSnapshot stores a snapshot.
func (s *Store) SaveSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	return s.runTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO snapshots (id, page_id, page_url, html, html_hash, ts) VALUES (?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.PageID, snap.PageURL, snap.HTML, snap.HTMLHash, snap.Timestamp)
		if err != nil {
			return fmt.Errorf("store: insert snapshot: %w", err)
		}
		return nil
	})
}

// LatestSnapshot returns the most recent snapshot of a page.
func (s *Store) LatestSnapshot(ctx context.Context, pageID string) (mutation.Snapshot, error) {
	var snap mutation.Snapshot
	err := s.db.QueryRowContext(ctx,
		`SELECT id, page_id, page_url, html, html_hash, ts FROM snapshots WHERE page_id = ? ORDER BY ts DESC, rowid DESC LIMIT 1`,
		pageID).Scan(&snap.ID, &snap.PageID, &snap.PageURL, &snap.HTML, &snap.HTMLHash, &snap.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, ErrNotFound
	}
	if err != nil {
		return snap, fmt.Errorf("store: snapshot: %w", err)
	}
	return snap, nil
}

// SaveBatch stores a batch. Records are kept as JSON.
func (s *Store) SaveBatch(ctx context.Context, b mutation.Batch) error {
	records, err := json.Marshal(b.Records)
	if err != nil {
		return fmt.Errorf("store: marshal records: %w", err)
	}
	return s.runTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, page_id, seq, cause, records, ts, snapshot_ref) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.PageID, int64(b.Seq), b.Cause, string(records), b.Timestamp, b.SnapshotRef)
		if err != nil {
			return fmt.Errorf("store: insert batch: %w", err)
		}
		return nil
	})
}

// Batches returns the batches of a page with seq > after, in order.
func (s *Store) Batches(ctx context.Context, pageID string, after uint64) ([]mutation.Batch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, page_id, seq, cause, records, ts, snapshot_ref FROM batches WHERE page_id = ? AND seq > ? ORDER BY seq`,
		pageID, int64(after))
	if err != nil {
		return nil, fmt.Errorf("store: batches: %w", err)
	}
	defer rows.Close()

	var out []mutation.Batch
	for rows.Next() {
		var (
			b       mutation.Batch
			seq     int64
			records string
		)
		if err := rows.Scan(&b.ID, &b.PageID, &seq, &b.Cause, &records, &b.Timestamp, &b.SnapshotRef); err != nil {
			return nil, fmt.Errorf("store: scan batch: %w", err)
		}
		b.Seq = uint64(seq)
		if err := json.Unmarshal([]byte(records), &b.Records); err != nil {
			return nil, fmt.Errorf("store: batch %s records: %w", b.ID, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveEvent stores a lifecycle event.
func (s *Store) SaveEvent(ctx context.Context, ev mutation.Event) error {
	var result sql.NullBool
	if ev.Result != nil {
		result = sql.NullBool{Bool: *ev.Result, Valid: true}
	}
	return s.runTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, page_id, kind, mark_kind, trigger_id, content, annotation_id, result, error, ts)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.ID, ev.PageID, string(ev.Kind), ev.MarkKind, ev.TriggerID, ev.Content, ev.AnnotationID, result, ev.Error, ev.Timestamp)
		if err != nil {
			return fmt.Errorf("store: insert event: %w", err)
		}
		return nil
	})
}

// Events returns the events of a page in insertion order. A non-empty
// triggerID restricts them to one trigger.
func (s *Store) Events(ctx context.Context, pageID, triggerID string) ([]mutation.Event, error) {
	query := `SELECT id, page_id, kind, mark_kind, trigger_id, content, annotation_id, result, error, ts FROM events WHERE page_id = ?`
	args := []any{pageID}
	if triggerID != "" {
		query += ` AND trigger_id = ?`
		args = append(args, triggerID)
	}
	query += ` ORDER BY rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: events: %w", err)
	}
	defer rows.Close()

	var out []mutation.Event
	for rows.Next() {
		var (
			ev     mutation.Event
			kind   string
			result sql.NullBool
		)
		if err := rows.Scan(&ev.ID, &ev.PageID, &kind, &ev.MarkKind, &ev.TriggerID, &ev.Content,
			&ev.AnnotationID, &result, &ev.Error, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		ev.Kind = mutation.EventKind(kind)
		if result.Valid {
			v := result.Bool
			ev.Result = &v
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// FeedbackStats counts accepted and rejected feedback reports of a page.
func (s *Store) FeedbackStats(ctx context.Context, pageID string) (accepted, rejected int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(result = 1), 0), COALESCE(SUM(result = 0), 0) FROM events WHERE page_id = ? AND kind = ?`,
		pageID, string(mutation.EventFeedback)).Scan(&accepted, &rejected)
	if err != nil {
		return 0, 0, fmt.Errorf("store: feedback stats: %w", err)
	}
	return accepted, rejected, nil
}
