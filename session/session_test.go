package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/controller"
	"github.com/hazyhaar/glossmark/idgen"
	"github.com/hazyhaar/glossmark/internal/sink"
	"github.com/hazyhaar/glossmark/mark"
	"github.com/hazyhaar/glossmark/mutation"
)

const (
	page      = `<html><body><p>I like cats and dogs</p></body></html>`
	firstID   = "00000000-0000-7000-8000-000000000001"
	textXPath = "/html/body/p/text()"
)

type fakeBackend struct {
	mu        sync.Mutex
	words     []string
	texts     []string
	successes []bool
}

func (b *fakeBackend) AnnotateWord(_ context.Context, word, _ string, _ *string) (annotation.Annotation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.words = append(b.words, word)
	return annotation.Annotation{Annotation: "gloss:" + word, ID: int64(len(b.words))}, nil
}

func (b *fakeBackend) AnnotateText(_ context.Context, text, _ string, _ *string) (annotation.Annotation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	return annotation.Annotation{Annotation: "gloss:" + text, ID: 100 + int64(len(b.texts))}, nil
}

func (b *fakeBackend) RecordSuccess(_ context.Context, _ int64, result bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes = append(b.successes, result)
	return nil
}

type recorder struct {
	mu        sync.Mutex
	snapshots []mutation.Snapshot
	batches   []mutation.Batch
	events    []mutation.Event
}

func (r *recorder) sink() sink.Sink {
	return sink.NewCallback(
		func(_ context.Context, b mutation.Batch) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.batches = append(r.batches, b)
			return nil
		},
		func(_ context.Context, ev mutation.Event) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
			return nil
		},
		func(_ context.Context, s mutation.Snapshot) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.snapshots = append(r.snapshots, s)
			return nil
		},
	)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newManager builds a manager whose controllers annotate synchronously and
// number triggers from firstID.
func newManager(t *testing.T, rec *recorder, opts ...Option) (*Manager, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{}
	cfg := Config{
		MaxSessions:   4,
		IdleTimeout:   time.Minute,
		ExtensionRoot: "glossmark-extension-root",
		Controller:    controller.Config{CaretDebounce: -1},
	}
	base := []Option{
		WithLogger(quietLogger()),
		WithIDGenerator(idgen.Sequence()),
		WithControllerOptions(
			controller.WithIDGenerator(idgen.Sequence()),
			controller.WithExecutor(func(fn func()) { fn() }),
		),
	}
	if rec != nil {
		base = append(base, WithJournal(rec.sink()))
	}
	m := NewManager(b, cfg, append(base, opts...)...)
	t.Cleanup(m.Shutdown)
	return m, b
}

func mustOpen(t *testing.T, m *Manager, html string) *Session {
	t.Helper()
	s, err := m.Open(context.Background(), OpenRequest{HTML: html, Origin: "https://example.org/a"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func mustDispatch(t *testing.T, s *Session, req EventRequest) {
	t.Helper()
	if err := s.Dispatch(context.Background(), req); err != nil {
		t.Fatalf("dispatch %s: %v", req.Type, err)
	}
}

func mustState(t *testing.T, s *Session) State {
	t.Helper()
	st, err := s.State(context.Background())
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	return st
}

func TestSession_DwellAnnotatesWord(t *testing.T) {
	rec := &recorder{}
	m, b := newManager(t, rec)
	s := mustOpen(t, m, page)

	mustDispatch(t, s, EventRequest{Type: EventPointerMove, XPath: textXPath, Offset: 8})
	st := mustState(t, s)
	if st.Pending == nil || st.Pending.Kind != mark.KindWord || st.Pending.Content != "cats" {
		t.Fatalf("pending = %+v", st.Pending)
	}

	mustDispatch(t, s, EventRequest{Type: EventTick, DeltaMS: 2000})
	st = mustState(t, s)
	if st.Pending != nil {
		t.Errorf("pending survived promotion: %+v", st.Pending)
	}
	if len(st.Triggers) != 1 {
		t.Fatalf("triggers = %+v", st.Triggers)
	}
	tv := st.Triggers[0]
	if tv.ID != firstID || tv.Content != "cats" || !tv.Visible || tv.Loading {
		t.Errorf("trigger = %+v", tv)
	}
	if tv.Annotation != "gloss:cats" || tv.AnnotationID != 1 {
		t.Errorf("annotation = %q (%d)", tv.Annotation, tv.AnnotationID)
	}
	if len(tv.Marks) != 1 || tv.Marks[0] != "/html/body/p/span/mark" {
		t.Errorf("marks = %v", tv.Marks)
	}
	if len(b.words) != 1 {
		t.Errorf("backend calls = %v", b.words)
	}

	doc, err := s.Document(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, ">cats</mark>") || !strings.Contains(doc, `id="glossmark-extension-root"`) {
		t.Errorf("document = %s", doc)
	}

	got, err := s.Trigger(context.Background(), firstID)
	if err != nil || got.Content != "cats" {
		t.Errorf("trigger = %+v, %v", got, err)
	}
	if _, err := s.Trigger(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown trigger err = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.snapshots) != 1 || rec.snapshots[0].PageID != s.ID() {
		t.Fatalf("snapshots = %d", len(rec.snapshots))
	}
	if len(rec.batches) == 0 {
		t.Fatal("no batches journaled")
	}
	for _, bt := range rec.batches {
		if bt.SnapshotRef != rec.snapshots[0].ID || bt.PageID != s.ID() {
			t.Errorf("batch %d: ref %s page %s", bt.Seq, bt.SnapshotRef, bt.PageID)
		}
	}
}

func TestSession_SelectionText(t *testing.T) {
	m, b := newManager(t, nil)
	s := mustOpen(t, m, page)

	mustDispatch(t, s, EventRequest{Type: EventPointerUp, Selection: &SelectionRequest{
		StartXPath: textXPath, StartOffset: 7,
		EndXPath: textXPath, EndOffset: 15,
	}})
	sel, err := s.Selection(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sel.SelectedText != "cats and" || sel.Origin != "https://example.org/a" {
		t.Errorf("selection = %+v", sel)
	}
	st := mustState(t, s)
	if st.Pending == nil || st.Pending.Kind != mark.KindText || st.Pending.Content != "cats and" {
		t.Fatalf("pending = %+v", st.Pending)
	}

	mustDispatch(t, s, EventRequest{Type: EventTick, DeltaMS: 2000})
	st = mustState(t, s)
	if len(st.Triggers) != 1 || st.Triggers[0].Annotation != "gloss:cats and" {
		t.Fatalf("triggers = %+v", st.Triggers)
	}
	if len(b.texts) != 1 {
		t.Errorf("text calls = %v", b.texts)
	}

	mustDispatch(t, s, EventRequest{Type: EventPointerUp})
	sel, _ = s.Selection(context.Background())
	if sel.SelectedText != "" {
		t.Errorf("selection after empty pointer_up = %q", sel.SelectedText)
	}
}

func TestSession_CloseWithVerdict(t *testing.T) {
	m, b := newManager(t, nil)
	s := mustOpen(t, m, page)
	mustDispatch(t, s, EventRequest{Type: EventPointerMove, XPath: textXPath, Offset: 8})
	mustDispatch(t, s, EventRequest{Type: EventTick, DeltaMS: 2000})

	no := false
	mustDispatch(t, s, EventRequest{Type: EventClose, ID: firstID, Quality: &no})
	st := mustState(t, s)
	if len(st.Triggers) != 0 || len(st.Visible) != 0 {
		t.Errorf("state after rejection = %+v", st)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.successes) != 1 || b.successes[0] {
		t.Errorf("successes = %v", b.successes)
	}
}

func TestSession_BadEvents(t *testing.T) {
	m, _ := newManager(t, nil)
	s := mustOpen(t, m, page)
	for _, req := range []EventRequest{
		{Type: "hover"},
		{Type: EventPointerMove, XPath: "/html/body/section"},
		{Type: EventTick, DeltaMS: -1},
		{Type: EventClose},
		{Type: EventRegenerate},
		{Type: EventPointerUp, Selection: &SelectionRequest{StartXPath: "/html/body/p[x]"}},
	} {
		if err := s.Dispatch(context.Background(), req); !errors.Is(err, ErrBadEvent) {
			t.Errorf("%+v: err = %v", req, err)
		}
	}
}

func TestManager_OpenLimits(t *testing.T) {
	m, _ := newManager(t, nil)
	if _, err := m.Open(context.Background(), OpenRequest{}); !errors.Is(err, ErrNoSource) {
		t.Errorf("empty request err = %v", err)
	}
	if _, err := m.Open(context.Background(), OpenRequest{URL: "https://example.org"}); !errors.Is(err, ErrNoLoader) {
		t.Errorf("url without loader err = %v", err)
	}
	for i := 0; i < 4; i++ {
		mustOpen(t, m, fmt.Sprintf("<p>page %d</p>", i))
	}
	if _, err := m.Open(context.Background(), OpenRequest{HTML: "<p>x</p>"}); !errors.Is(err, ErrTooMany) {
		t.Errorf("fifth session err = %v", err)
	}
	list := m.List()
	if len(list) != 4 || list[0].ID > list[1].ID {
		t.Errorf("list = %+v", list)
	}
}

func TestManager_ExistingExtensionRoot(t *testing.T) {
	m, _ := newManager(t, nil)
	s := mustOpen(t, m, `<p>a</p><div id="glossmark-extension-root"><p>popover</p></div>`)
	doc, _ := s.Document(context.Background())
	if n := strings.Count(doc, "glossmark-extension-root"); n != 1 {
		t.Errorf("extension roots = %d in %s", n, doc)
	}
	// Carets inside the extension root do not mount marks.
	mustDispatch(t, s, EventRequest{Type: EventPointerMove, XPath: "/html/body/div/p/text()", Offset: 2})
	if st := mustState(t, s); st.Pending != nil {
		t.Errorf("pending in extension root: %+v", st.Pending)
	}
}

func TestManager_CloseAndReap(t *testing.T) {
	m, _ := newManager(t, nil)
	a := mustOpen(t, m, page)
	b := mustOpen(t, m, page)

	if err := m.Close(a.ID()); err != nil {
		t.Fatal(err)
	}
	if err := m.Close(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("double close err = %v", err)
	}
	if _, err := m.Get(a.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("get closed err = %v", err)
	}
	if err := a.Dispatch(context.Background(), EventRequest{Type: EventMouseLeave}); !errors.Is(err, controller.ErrStopped) {
		t.Errorf("dispatch on closed session err = %v", err)
	}

	if n := m.Reap(time.Now()); n != 0 {
		t.Errorf("reaped %d fresh sessions", n)
	}
	if n := m.Reap(time.Now().Add(2 * time.Minute)); n != 1 {
		t.Errorf("reaped %d, want 1", n)
	}
	if _, err := m.Get(b.ID()); !errors.Is(err, ErrNotFound) {
		t.Errorf("idle session survived: %v", err)
	}

	m.Shutdown()
	if _, err := m.Open(context.Background(), OpenRequest{HTML: page}); !errors.Is(err, ErrClosed) {
		t.Errorf("open after shutdown err = %v", err)
	}
}
