package sink

import (
	"context"

	"github.com/hazyhaar/glossmark/mutation"
)

// BatchFunc is called for each batch.
type BatchFunc func(ctx context.Context, batch mutation.Batch) error

// EventFunc is called for each event.
type EventFunc func(ctx context.Context, ev mutation.Event) error

// SnapshotFunc is called for each snapshot.
type SnapshotFunc func(ctx context.Context, snap mutation.Snapshot) error

// Callback delivers the journal through Go function calls, without
// serialisation. Session watchers use it to stream events in-process.
type Callback struct {
	onBatch    BatchFunc
	onEvent    EventFunc
	onSnapshot SnapshotFunc
}

// NewCallback creates a Callback sink. Any handler may be nil.
func NewCallback(onBatch BatchFunc, onEvent EventFunc, onSnapshot SnapshotFunc) *Callback {
	return &Callback{onBatch: onBatch, onEvent: onEvent, onSnapshot: onSnapshot}
}

func (c *Callback) Send(ctx context.Context, batch mutation.Batch) error {
	if c.onBatch != nil {
		return c.onBatch(ctx, batch)
	}
	return nil
}

func (c *Callback) SendEvent(ctx context.Context, ev mutation.Event) error {
	if c.onEvent != nil {
		return c.onEvent(ctx, ev)
	}
	return nil
}

func (c *Callback) SendSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	if c.onSnapshot != nil {
		return c.onSnapshot(ctx, snap)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
