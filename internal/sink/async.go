package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hazyhaar/glossmark/mutation"
)

// ErrQueueFull is returned when an Async sink cannot accept more items.
var ErrQueueFull = errors.New("sink: queue full")

// ErrClosed is returned by an Async sink after Close.
var ErrClosed = errors.New("sink: closed")

type item struct {
	batch *mutation.Batch
	event *mutation.Event
	snap  *mutation.Snapshot
}

// Async decouples the controller loop from slow sinks. Items are delivered
// to the inner sink in order by one goroutine; when the queue is full new
// items are rejected rather than blocking the caller.
type Async struct {
	inner  Sink
	logger *slog.Logger
	queue  chan item
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsync starts delivering to inner through a queue of the given size.
func NewAsync(inner Sink, size int, logger *slog.Logger) *Async {
	if size <= 0 {
		size = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &Async{
		inner:  inner,
		logger: logger,
		queue:  make(chan item, size),
		done:   make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *Async) loop() {
	defer close(a.done)
	ctx := context.Background()
	for it := range a.queue {
		var err error
		switch {
		case it.batch != nil:
			err = a.inner.Send(ctx, *it.batch)
		case it.event != nil:
			err = a.inner.SendEvent(ctx, *it.event)
		case it.snap != nil:
			err = a.inner.SendSnapshot(ctx, *it.snap)
		}
		if err != nil {
			a.logger.Warn("sink: async delivery failed", "error", err)
		}
	}
}

func (a *Async) enqueue(it item) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- it:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *Async) Send(_ context.Context, batch mutation.Batch) error {
	return a.enqueue(item{batch: &batch})
}

func (a *Async) SendEvent(_ context.Context, ev mutation.Event) error {
	return a.enqueue(item{event: &ev})
}

func (a *Async) SendSnapshot(_ context.Context, snap mutation.Snapshot) error {
	return a.enqueue(item{snap: &snap})
}

// Close drains the queue, then closes the inner sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()
	<-a.done
	return a.inner.Close()
}
