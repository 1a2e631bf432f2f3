// Package sink defines output backends for the glossmark journal.
package sink

import (
	"context"

	"github.com/hazyhaar/glossmark/mutation"
)

// Sink is the output interface. Implementations deliver batches, events
// and snapshots to different backends (stdout, webhook, SQLite, in-process
// callback). A Sink satisfies controller.Journal.
type Sink interface {
	Send(ctx context.Context, batch mutation.Batch) error
	SendEvent(ctx context.Context, ev mutation.Event) error
	SendSnapshot(ctx context.Context, snap mutation.Snapshot) error
	Close() error
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}
