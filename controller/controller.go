// Package controller is the event loop of the engine. It owns the single
// pending mark, the map of triggers and the set of visible popovers, and it
// is the only place where they change.
//
// All state lives on one goroutine. Inputs arrive either synchronously
// through Handle (when the caller already is the loop) or through Post,
// which queues them for Run. Annotation and feedback requests run on an
// executor and post their results back as events, so a response never
// touches state directly.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/idgen"
	"github.com/hazyhaar/glossmark/mark"
	"github.com/hazyhaar/glossmark/mutation"
)

// Defaults.
const (
	DefaultCaretDebounce  = 200 * time.Millisecond
	DefaultRequestTimeout = 30 * time.Second
	DefaultQueueSize      = 256
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("controller: stopped")

// Backend is the annotation service. *annotation.Client implements it.
type Backend interface {
	AnnotateWord(ctx context.Context, word, context string, previous *string) (annotation.Annotation, error)
	AnnotateText(ctx context.Context, text, origin string, previous *string) (annotation.Annotation, error)
	RecordSuccess(ctx context.Context, id int64, result bool) error
}

// Journal receives the DOM writes of every step and the lifecycle events.
type Journal interface {
	Send(ctx context.Context, b mutation.Batch) error
	SendEvent(ctx context.Context, ev mutation.Event) error
}

// Config tunes a controller.
type Config struct {
	// PageID tags journal batches and events.
	PageID string
	// Origin is the page URL sent with selection annotations.
	Origin string
	// SnapshotRef links batches to the snapshot they apply to.
	SnapshotRef string
	// CaretDebounce is the window a caret must stay put before it is used.
	// Zero means DefaultCaretDebounce, a negative value disables it.
	CaretDebounce time.Duration
	// RequestTimeout bounds each annotation or feedback request.
	RequestTimeout time.Duration
	// Frame is the tick period of Run. Zero disables the ticker; ticks then
	// only come from posted Tick events.
	Frame time.Duration
	// QueueSize is the capacity of the Post queue.
	QueueSize int
	// Marks is passed to every mount.
	Marks mark.Options
}

func (c *Config) defaults() {
	if c.CaretDebounce == 0 {
		c.CaretDebounce = DefaultCaretDebounce
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithJournal sets where batches and events go.
func WithJournal(j Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithIDGenerator sets the trigger id source. Default: idgen.Default.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Controller) { c.newID = g }
}

// WithExecutor sets how requests are run. Default: one goroutine each.
// Tests pass a synchronous executor and drain the queue afterwards.
func WithExecutor(exec func(func())) Option {
	return func(c *Controller) { c.exec = exec }
}

// WithExtensionRoot marks a subtree (the popover layer) where carets are
// ignored.
func WithExtensionRoot(n *html.Node) Option {
	return func(c *Controller) { c.extRoot = n }
}

// WithClock sets the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// recordable is implemented by *dom.Tree.
type recordable interface {
	SetRecorder(fn dom.RecordFunc)
}

type entry struct {
	trigger mark.Trigger
	gen     uint64
	// previous is the prior annotation sent with the last request.
	previous *string
}

// Controller drives marks and triggers.
type Controller struct {
	tree    dom.Adapter
	backend Backend
	journal Journal
	logger  *slog.Logger
	cfg     Config
	newID   idgen.Generator
	exec    func(func())
	now     func() time.Time
	extRoot *html.Node

	lifetime context.Context
	queue    chan Event
	stopped  chan struct{}

	pending  mark.Pending
	triggers map[string]*entry
	visible  []string
	down     bool
	caret    caretDebouncer

	records []mutation.Record
	seq     uint64
}

// New creates a controller writing through tree and annotating through
// backend. When tree is a *dom.Tree its writes are journaled.
func New(tree dom.Adapter, backend Backend, cfg Config, opts ...Option) *Controller {
	cfg.defaults()
	c := &Controller{
		tree:     tree,
		backend:  backend,
		cfg:      cfg,
		logger:   slog.Default(),
		newID:    idgen.Default,
		exec:     func(fn func()) { go fn() },
		now:      time.Now,
		lifetime: context.Background(),
		queue:    make(chan Event, cfg.QueueSize),
		stopped:  make(chan struct{}),
		triggers: make(map[string]*entry),
	}
	for _, o := range opts {
		o(c)
	}
	c.caret.window = cfg.CaretDebounce
	if r, ok := tree.(recordable); ok {
		r.SetRecorder(func(rec mutation.Record) { c.records = append(c.records, rec) })
	}
	return c
}

// Post queues an event for the loop. It blocks while the queue is full.
func (c *Controller) Post(ev Event) {
	select {
	case c.queue <- ev:
	case <-c.stopped:
	}
}

// Run processes posted events and, when Config.Frame is set, emits ticks
// until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	c.lifetime = ctx
	defer close(c.stopped)

	var frames <-chan time.Time
	if c.cfg.Frame > 0 {
		t := time.NewTicker(c.cfg.Frame)
		defer t.Stop()
		frames = t.C
	}
	last := c.now()
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug("controller: stopped", "page", c.cfg.PageID)
			return ctx.Err()
		case ev := <-c.queue:
			c.Handle(ev)
		case <-frames:
			now := c.now()
			c.Handle(Tick{Delta: now.Sub(last)})
			last = now
		}
	}
}

// Drain handles every queued event without blocking. It must not be called
// while Run is active.
func (c *Controller) Drain() int {
	n := 0
	for {
		select {
		case ev := <-c.queue:
			c.Handle(ev)
			n++
		default:
			return n
		}
	}
}

// Do runs fn on the loop and waits for it. Use it to read controller state
// from another goroutine while Run is active.
func (c *Controller) Do(ctx context.Context, fn func(*Controller)) error {
	done := make(chan struct{})
	ev := inspect{fn: func() { fn(c) }, done: done}
	select {
	case c.queue <- ev:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle applies one event. It must only be called from the loop.
func (c *Controller) Handle(ev Event) {
	c.records = c.records[:0]
	switch e := ev.(type) {
	case PointerMove:
		c.pointerMove(e)
	case PointerDown:
		c.down = e.PointerType != "touch"
	case PointerUp:
		c.pointerUp(e)
	case MouseLeave, WindowBlur:
		c.caret.reset()
		c.clearPending()
	case Tick:
		c.tick(e.Delta)
	case AnnotationResult:
		c.annotationResult(e)
	case FeedbackSent:
		c.feedbackSent(e)
	case UserClose:
		c.close(e.ID, e.Quality)
	case UserRegenerate:
		c.regenerate(e.ID)
	case inspect:
		e.fn()
		close(e.done)
	default:
		c.logger.Warn("controller: unknown event", "kind", ev.Kind())
	}
	c.flush(ev.Kind())
}

// Pending returns the pending mark, nil when there is none.
func (c *Controller) Pending() mark.Pending { return c.pending }

// Trigger returns a mounted trigger by id.
func (c *Controller) Trigger(id string) (mark.Trigger, bool) {
	e, ok := c.triggers[id]
	if !ok {
		return nil, false
	}
	return e.trigger, true
}

// Triggers returns the mounted triggers ordered by id.
func (c *Controller) Triggers() []mark.Trigger {
	ids := make([]string, 0, len(c.triggers))
	for id := range c.triggers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]mark.Trigger, len(ids))
	for i, id := range ids {
		out[i] = c.triggers[id].trigger
	}
	return out
}

// Visible returns the ids whose popover is open, in creation order.
func (c *Controller) Visible() []string { return slices.Clone(c.visible) }

// IsVisible reports whether id's popover is open.
func (c *Controller) IsVisible(id string) bool {
	_, ok := slices.BinarySearch(c.visible, id)
	return ok
}

// PointerDown reports whether a non-touch press is in progress.
func (c *Controller) PointerDown() bool { return c.down }

// --- pointer and caret ---

func (c *Controller) pointerMove(e PointerMove) {
	if c.down {
		c.caret.reset()
		c.clearPending()
		return
	}
	car := c.filter(e.Caret)
	if c.caret.set(car) {
		c.applyCaret(car)
	}
}

// filter drops carets that are unusable or inside the extension root.
func (c *Controller) filter(car *Caret) *Caret {
	if car == nil || car.Node == nil {
		return nil
	}
	if c.extRoot != nil && dom.Contains(c.extRoot, car.Node) {
		return nil
	}
	return car
}

func (c *Controller) applyCaret(car *Caret) {
	if car == nil {
		if c.pending != nil && c.pending.Kind() == mark.KindWord {
			c.clearPending()
		}
		return
	}
	if id, _, ok := mark.LookupID(car.Node); ok {
		if _, known := c.triggers[id]; known {
			c.show(id)
		} else {
			c.logger.Debug("controller: caret on unknown trigger", "id", id)
		}
		return
	}
	if c.pending != nil {
		// A pending selection keeps priority over the pointer.
		if c.pending.Kind() == mark.KindText {
			return
		}
		if c.pending.IsSame(car.Node, car.Offset) {
			return
		}
		var ok bool
		if car, ok = c.revertCaret(car); !ok {
			return
		}
	}
	w, err := mark.MountWord(c.tree, car.Node, car.Offset, c.cfg.Marks)
	if err != nil {
		c.logger.Debug("controller: no word mark", "error", err)
		return
	}
	c.pending = w
	c.emit(mutation.EventMounted, w.Kind(), "", w.Content())
}

// revertCaret reverts the pending mark and maps car onto the restored
// nodes when it pointed inside the mark.
func (c *Controller) revertCaret(car *Caret) (*Caret, bool) {
	remapped, ok := c.revertRemap([]dom.Boundary{{Node: car.Node, Offset: car.Offset}})
	if !ok {
		return nil, false
	}
	return &Caret{Node: remapped[0].Node, Offset: remapped[0].Offset}, true
}

func (c *Controller) pointerUp(e PointerUp) {
	c.down = false
	if e.Selection == nil || e.Selection.Collapsed() {
		return
	}
	rng := *e.Selection
	if c.extRoot != nil && (dom.Contains(c.extRoot, rng.Start.Node) || dom.Contains(c.extRoot, rng.End.Node)) {
		return
	}
	if c.pending != nil {
		bs, ok := c.revertRemap([]dom.Boundary{rng.Start, rng.End})
		if !ok {
			return
		}
		rng = dom.Range{Start: bs[0], End: bs[1]}
	}
	t, err := mark.MountText(c.tree, rng, c.cfg.Marks)
	if err != nil {
		c.logger.Debug("controller: no selection mark", "error", err)
		return
	}
	c.pending = t
	c.emit(mutation.EventMounted, t.Kind(), "", t.Content())
}

// revertRemap reverts the pending mark. Boundaries inside the mark are
// translated to text positions of its container before the revert and
// resolved again afterwards.
func (c *Controller) revertRemap(bs []dom.Boundary) ([]dom.Boundary, bool) {
	p := c.pending
	container := p.Container()
	positions := make([]int, len(bs))
	owned := make([]bool, len(bs))
	for i, b := range bs {
		if !p.Owns(b.Node) {
			continue
		}
		pos, ok := dom.TextOffset(container, b)
		if !ok {
			c.clearPending()
			return nil, false
		}
		positions[i], owned[i] = pos, true
	}
	c.clearPending()
	out := slices.Clone(bs)
	for i := range out {
		if !owned[i] {
			continue
		}
		b, ok := dom.ResolveOffset(container, positions[i])
		if !ok {
			return nil, false
		}
		out[i] = b
	}
	return out, true
}

// clearPending reverts and forgets the pending mark, if any.
func (c *Controller) clearPending() {
	p := c.pending
	if p == nil {
		return
	}
	c.pending = nil
	if err := p.Revert(); err != nil {
		c.logger.Warn("controller: revert pending mark", "kind", p.Kind(), "error", err)
		return
	}
	c.emit(mutation.EventReverted, p.Kind(), "", p.Content())
}

// --- dwell ---

func (c *Controller) tick(delta time.Duration) {
	before := c.pending
	if car, ok := c.caret.advance(delta); ok {
		c.applyCaret(car)
	}
	// A mark mounted by this frame starts counting on the next one.
	if c.pending == nil || c.pending != before {
		return
	}
	done, err := c.pending.Tick(delta)
	if err != nil {
		c.logger.Warn("controller: tick pending mark", "error", err)
		p := c.pending
		c.pending = nil
		if rerr := p.Revert(); rerr != nil && !errors.Is(rerr, mark.ErrReverted) {
			c.logger.Warn("controller: revert after failed tick", "error", rerr)
		}
		return
	}
	if done {
		c.promote()
	}
}

func (c *Controller) promote() {
	p := c.pending
	c.pending = nil
	id := c.newID()
	t, err := p.Promote(id)
	if err != nil {
		c.logger.Warn("controller: promote", "kind", p.Kind(), "error", err)
		if rerr := p.Revert(); rerr != nil && !errors.Is(rerr, mark.ErrReverted) {
			c.logger.Warn("controller: revert after failed promote", "error", rerr)
		}
		return
	}
	c.triggers[id] = &entry{trigger: t}
	c.logger.Info("controller: trigger created", "id", id, "kind", t.Kind(), "content", t.Content())
	c.emit(mutation.EventPromoted, t.Kind(), id, t.Content())
	c.show(id)
	c.request(id, nil)
}

// --- visible set ---

func (c *Controller) show(id string) {
	i, found := slices.BinarySearch(c.visible, id)
	if found {
		return
	}
	c.visible = slices.Insert(c.visible, i, id)
	c.emit(mutation.EventShown, c.kindOf(id), id, "")
}

func (c *Controller) hide(id string) {
	i, found := slices.BinarySearch(c.visible, id)
	if !found {
		return
	}
	c.visible = slices.Delete(c.visible, i, i+1)
	c.emit(mutation.EventHidden, c.kindOf(id), id, "")
}

func (c *Controller) kindOf(id string) mark.Kind {
	if e, ok := c.triggers[id]; ok {
		return e.trigger.Kind()
	}
	return ""
}

// --- annotation lifecycle ---

// request dispatches an annotation request for trigger id. Earlier requests
// still in flight become stale.
func (c *Controller) request(id string, previous *string) {
	e := c.triggers[id]
	e.gen++
	e.previous = previous
	gen := e.gen
	t := e.trigger
	kind, content, ctxText, origin := t.Kind(), t.Content(), t.Context(), c.cfg.Origin
	c.emit(mutation.EventRequested, kind, id, content)

	parent, timeout := c.lifetime, c.cfg.RequestTimeout
	c.exec(func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		var (
			ann annotation.Annotation
			err error
		)
		if kind == mark.KindWord {
			ann, err = c.backend.AnnotateWord(ctx, content, ctxText, previous)
		} else {
			ann, err = c.backend.AnnotateText(ctx, content, origin, previous)
		}
		c.Post(AnnotationResult{ID: id, Gen: gen, Annotation: ann, Err: err})
	})
}

func (c *Controller) annotationResult(r AnnotationResult) {
	e, ok := c.triggers[r.ID]
	if !ok {
		c.logger.Debug("controller: annotation for removed trigger", "id", r.ID)
		c.emitDropped(r, "")
		return
	}
	if r.Gen != e.gen {
		c.logger.Debug("controller: stale annotation", "id", r.ID, "gen", r.Gen, "current", e.gen)
		c.emitDropped(r, e.trigger.Kind())
		return
	}
	e.trigger.Annotate(&annotation.Result{Annotation: r.Annotation, Err: r.Err})
	ev := c.event(mutation.EventAnnotated, e.trigger.Kind(), r.ID, e.trigger.Content())
	if r.Err != nil {
		c.logger.Warn("controller: annotation failed", "id", r.ID, "kind", annotation.KindName(r.Err), "error", r.Err)
		ev.Kind = mutation.EventAnnotationFailed
		ev.Error = annotation.Message(r.Err)
	} else {
		ev.AnnotationID = r.Annotation.ID
	}
	c.send(ev)
}

func (c *Controller) emitDropped(r AnnotationResult, kind mark.Kind) {
	ev := c.event(mutation.EventDropped, kind, r.ID, "")
	ev.AnnotationID = r.Annotation.ID
	c.send(ev)
}

func (c *Controller) close(id string, quality *bool) {
	c.hide(id)
	e, ok := c.triggers[id]
	if !ok {
		c.logger.Debug("controller: close of unknown trigger", "id", id)
		return
	}
	t := e.trigger
	if quality != nil && !t.FeedbackSent() {
		if r := t.Annotation(); r.OK() {
			c.feedback(id, t.Kind(), r.Annotation.ID, *quality)
			t.Feedback(true)
		}
	}
	if quality != nil && *quality {
		return
	}
	if err := t.Unmount(); err != nil {
		c.logger.Warn("controller: unmount trigger", "id", id, "error", err)
	}
	delete(c.triggers, id)
	c.emit(mutation.EventRemoved, t.Kind(), id, t.Content())
}

func (c *Controller) regenerate(id string) {
	e, ok := c.triggers[id]
	if !ok {
		c.logger.Debug("controller: regenerate of unknown trigger", "id", id)
		return
	}
	t := e.trigger
	// Retrying a failed request re-sends the same previous annotation.
	previous := e.previous
	if r := t.Annotation(); r.OK() {
		prev := r.Annotation.Annotation
		previous = &prev
		if !t.FeedbackSent() {
			c.feedback(id, t.Kind(), r.Annotation.ID, false)
		}
	}
	t.Feedback(false)
	t.Annotate(nil)
	c.request(id, previous)
}

func (c *Controller) feedback(id string, kind mark.Kind, annID int64, result bool) {
	ev := c.event(mutation.EventFeedback, kind, id, "")
	ev.AnnotationID = annID
	ev.Result = &result
	c.send(ev)

	parent, timeout := c.lifetime, c.cfg.RequestTimeout
	c.exec(func() {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		err := c.backend.RecordSuccess(ctx, annID, result)
		c.Post(FeedbackSent{ID: id, AnnotationID: annID, Result: result, Err: err})
	})
}

func (c *Controller) feedbackSent(f FeedbackSent) {
	if f.Err != nil {
		c.logger.Warn("controller: record success", "id", f.ID, "annotation", f.AnnotationID, "error", f.Err)
		return
	}
	c.logger.Debug("controller: feedback recorded", "id", f.ID, "annotation", f.AnnotationID, "result", f.Result)
}

// --- journal ---

func (c *Controller) event(kind mutation.EventKind, mk mark.Kind, triggerID, content string) mutation.Event {
	return mutation.Event{
		ID:        idgen.New(),
		PageID:    c.cfg.PageID,
		Kind:      kind,
		MarkKind:  string(mk),
		TriggerID: triggerID,
		Content:   content,
		Timestamp: c.now().UnixMilli(),
	}
}

func (c *Controller) emit(kind mutation.EventKind, mk mark.Kind, triggerID, content string) {
	c.send(c.event(kind, mk, triggerID, content))
}

func (c *Controller) send(ev mutation.Event) {
	if c.journal == nil {
		return
	}
	if err := c.journal.SendEvent(c.lifetime, ev); err != nil {
		c.logger.Warn("controller: send event", "kind", ev.Kind, "error", err)
	}
}

// flush ships the DOM writes of the current step as one batch.
func (c *Controller) flush(cause string) {
	if len(c.records) == 0 || c.journal == nil {
		return
	}
	c.seq++
	b := mutation.Batch{
		ID:          idgen.New(),
		PageID:      c.cfg.PageID,
		Seq:         c.seq,
		Cause:       cause,
		Records:     mutation.Compress(slices.Clone(c.records)),
		Timestamp:   c.now().UnixMilli(),
		SnapshotRef: c.cfg.SnapshotRef,
	}
	c.records = c.records[:0]
	if err := c.journal.Send(c.lifetime, b); err != nil {
		c.logger.Warn("controller: send batch", "seq", b.Seq, "error", err)
	}
}
