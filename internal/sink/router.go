package sink

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/glossmark/mutation"
)

// Router fans out to all configured sinks. One sink error does not block
// the others: errors are logged and the first one is returned.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

// Add appends a sink.
func (r *Router) Add(s Sink) { r.sinks = append(r.sinks, s) }

// Len returns the number of sinks.
func (r *Router) Len() int { return len(r.sinks) }

func (r *Router) Send(ctx context.Context, batch mutation.Batch) error {
	return r.each("batch", func(s Sink) error { return s.Send(ctx, batch) })
}

func (r *Router) SendEvent(ctx context.Context, ev mutation.Event) error {
	return r.each("event", func(s Sink) error { return s.SendEvent(ctx, ev) })
}

func (r *Router) SendSnapshot(ctx context.Context, snap mutation.Snapshot) error {
	return r.each("snapshot", func(s Sink) error { return s.SendSnapshot(ctx, snap) })
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Router) each(what string, fn func(Sink) error) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := fn(s); err != nil {
			r.logger.Warn("sink: send "+what+" failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
