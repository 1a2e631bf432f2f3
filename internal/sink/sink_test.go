package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/glossmark/internal/store"
	"github.com/hazyhaar/glossmark/mutation"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testBatch(seq uint64) mutation.Batch {
	return mutation.Batch{ID: "b", PageID: "p1", Seq: seq, Cause: "pointer_move",
		Records: []mutation.Record{{Op: mutation.OpInsert, XPath: "/html/body/p/span"}}}
}

func TestStdoutEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()

	if err := s.Send(ctx, testBatch(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.SendEvent(ctx, mutation.Event{ID: "e1", Kind: mutation.EventPromoted}); err != nil {
		t.Fatal(err)
	}
	if err := s.SendSnapshot(ctx, mutation.Snapshot{ID: "s1"}); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	var types []string
	for _, l := range lines {
		var env struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal([]byte(l), &env); err != nil {
			t.Fatal(err)
		}
		types = append(types, env.Type)
	}
	if strings.Join(types, ",") != "batch,event,snapshot" {
		t.Errorf("types = %v", types)
	}
}

func TestCallbackNilHandlers(t *testing.T) {
	var got []uint64
	c := NewCallback(func(_ context.Context, b mutation.Batch) error {
		got = append(got, b.Seq)
		return nil
	}, nil, nil)
	ctx := context.Background()
	if err := c.Send(ctx, testBatch(4)); err != nil {
		t.Fatal(err)
	}
	if err := c.SendEvent(ctx, mutation.Event{}); err != nil {
		t.Fatal(err)
	}
	if err := c.SendSnapshot(ctx, mutation.Snapshot{}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("got = %v", got)
	}
}

func TestRouterFansOutDespiteErrors(t *testing.T) {
	boom := errors.New("boom")
	var delivered int
	failing := NewCallback(nil, func(context.Context, mutation.Event) error { return boom }, nil)
	counting := NewCallback(nil, func(context.Context, mutation.Event) error { delivered++; return nil }, nil)

	r := NewRouter(quiet(), failing, counting)
	if err := r.SendEvent(context.Background(), mutation.Event{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
	r.Add(NewStdout(io.Discard))
	if r.Len() != 3 {
		t.Errorf("len = %d", r.Len())
	}
	if err := r.Close(); err != nil {
		t.Error(err)
	}
}

func TestWebhookRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		var env envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil || env.Type != "event" {
			t.Errorf("envelope = %+v, %v", env, err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	if err := w.SendEvent(context.Background(), mutation.Event{ID: "e1"}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestWebhookExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookRetries(1), WithWebhookBackoff(time.Millisecond), WithWebhookLogger(quiet()))
	err := w.Send(context.Background(), testBatch(1))
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Errorf("err = %v", err)
	}
}

func TestSQLiteSink(t *testing.T) {
	st := store.OpenMemory(t)
	s := NewSQLite(st)
	ctx := context.Background()

	if err := s.Send(ctx, testBatch(1)); err != nil {
		t.Fatal(err)
	}
	if err := s.SendEvent(ctx, mutation.Event{ID: "e1", PageID: "p1", Kind: mutation.EventMounted}); err != nil {
		t.Fatal(err)
	}
	html := []byte("<p></p>")
	if err := s.SendSnapshot(ctx, mutation.Snapshot{ID: "s1", PageID: "p1", HTML: html, HTMLHash: mutation.HashHTML(html)}); err != nil {
		t.Fatal(err)
	}

	batches, err := st.Batches(ctx, "p1", 0)
	if err != nil || len(batches) != 1 {
		t.Fatalf("batches = %v, %v", batches, err)
	}
	events, err := st.Events(ctx, "p1", "")
	if err != nil || len(events) != 1 {
		t.Fatalf("events = %v, %v", events, err)
	}
	if _, err := st.LatestSnapshot(ctx, "p1"); err != nil {
		t.Fatal(err)
	}
}

type slowSink struct {
	Callback
	mu     sync.Mutex
	seqs   []uint64
	gate   chan struct{}
	closed bool
}

func (s *slowSink) Send(_ context.Context, b mutation.Batch) error {
	<-s.gate
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs = append(s.seqs, b.Seq)
	return nil
}

func (s *slowSink) Close() error {
	s.closed = true
	return nil
}

func TestAsyncOrderAndBackpressure(t *testing.T) {
	inner := &slowSink{gate: make(chan struct{})}
	a := NewAsync(inner, 2, quiet())
	ctx := context.Background()

	// The loop blocks on the gate, so the queue fills up.
	if err := a.Send(ctx, testBatch(1)); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	var full bool
	for seq := uint64(2); time.Now().Before(deadline); seq++ {
		if err := a.Send(ctx, testBatch(seq)); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("queue never filled")
	}

	close(inner.gate)
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if !inner.closed {
		t.Error("inner sink not closed")
	}
	inner.mu.Lock()
	defer inner.mu.Unlock()
	for i := 1; i < len(inner.seqs); i++ {
		if inner.seqs[i] <= inner.seqs[i-1] {
			t.Fatalf("out of order: %v", inner.seqs)
		}
	}
	if len(inner.seqs) < 2 {
		t.Errorf("delivered %v", inner.seqs)
	}
	if err := a.Send(ctx, testBatch(99)); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close = %v", err)
	}
}
