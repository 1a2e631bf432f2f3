package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/glossmark/internal/store"
	"github.com/hazyhaar/glossmark/mutation"
)

func TestOpenPragmas(t *testing.T) {
	st := store.OpenMemory(t)

	var fk int
	if err := st.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}
	var bt int
	if err := st.DB().QueryRow("PRAGMA busy_timeout").Scan(&bt); err != nil {
		t.Fatal(err)
	}
	if bt != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", bt)
	}
}

func TestOpenMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "journal.db")
	st, err := store.Open(path, store.WithMkdirAll(), store.WithSynchronous("FULL"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestSnapshots(t *testing.T) {
	st := store.OpenMemory(t)
	ctx := context.Background()

	if _, err := st.LatestSnapshot(ctx, "p1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	html := []byte("<p>hi</p>")
	for i, id := range []string{"s1", "s2"} {
		snap := mutation.Snapshot{ID: id, PageID: "p1", PageURL: "https://example.org", HTML: html, HTMLHash: mutation.HashHTML(html), Timestamp: int64(100 + i)}
		if err := st.SaveSnapshot(ctx, snap); err != nil {
			t.Fatal(err)
		}
	}
	got, err := st.LatestSnapshot(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "s2" || string(got.HTML) != "<p>hi</p>" || got.PageURL != "https://example.org" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestBatches(t *testing.T) {
	st := store.OpenMemory(t)
	ctx := context.Background()

	for seq := uint64(1); seq <= 3; seq++ {
		b := mutation.Batch{
			ID: fmt.Sprintf("b%d", seq), PageID: "p1", Seq: seq, Cause: "tick",
			Records:   []mutation.Record{{Op: mutation.OpAttr, XPath: "/html/body/p/mark", Name: "data-x", Value: "1"}},
			Timestamp: 1,
		}
		if err := st.SaveBatch(ctx, b); err != nil {
			t.Fatal(err)
		}
	}
	dup := mutation.Batch{ID: "other", PageID: "p1", Seq: 2, Cause: "tick"}
	if err := st.SaveBatch(ctx, dup); err == nil {
		t.Error("duplicate seq accepted")
	}

	got, err := st.Batches(ctx, "p1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 3 {
		t.Fatalf("batches = %+v", got)
	}
	if len(got[0].Records) != 1 || got[0].Records[0].Value != "1" {
		t.Errorf("records = %+v", got[0].Records)
	}
}

func TestEventsAndFeedbackStats(t *testing.T) {
	st := store.OpenMemory(t)
	ctx := context.Background()
	yes, no := true, false

	events := []mutation.Event{
		{ID: "e1", PageID: "p1", Kind: mutation.EventPromoted, TriggerID: "t1", Content: "cats", Timestamp: 1},
		{ID: "e2", PageID: "p1", Kind: mutation.EventFeedback, TriggerID: "t1", AnnotationID: 7, Result: &yes, Timestamp: 2},
		{ID: "e3", PageID: "p1", Kind: mutation.EventFeedback, TriggerID: "t2", AnnotationID: 8, Result: &no, Timestamp: 3},
		{ID: "e4", PageID: "p2", Kind: mutation.EventFeedback, TriggerID: "t3", Result: &yes, Timestamp: 4},
	}
	for _, ev := range events {
		if err := st.SaveEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	all, err := st.Events(ctx, "p1", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Kind != mutation.EventPromoted || all[0].Result != nil {
		t.Fatalf("events = %+v", all)
	}
	one, err := st.Events(ctx, "p1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(one) != 2 || one[1].Result == nil || !*one[1].Result || one[1].AnnotationID != 7 {
		t.Errorf("trigger events = %+v", one)
	}

	acc, rej, err := st.FeedbackStats(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if acc != 1 || rej != 1 {
		t.Errorf("stats = %d/%d, want 1/1", acc, rej)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("other"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("prefix: database is locked"), true},
		{errors.New("database table is locked"), true},
	}
	for _, tt := range tests {
		if got := store.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
