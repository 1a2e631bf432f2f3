package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hazyhaar/glossmark/mutation"
)

type fakeRenderer struct {
	calls int
	html  string
	err   error
}

func (r *fakeRenderer) Render(context.Context, string) ([]byte, error) {
	r.calls++
	return []byte(r.html), r.err
}

const shell = `<html><head><script src="/app.js"></script></head><body><div id="root"></div></body></html>`

var article = "<html><body><p>" + strings.Repeat("cats and dogs ", 40) + "</p></body></html>"

func pageServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLoader_SufficientPageSkipsRenderer(t *testing.T) {
	srv := pageServer(t, article)
	r := &fakeRenderer{html: "<p>rendered</p>"}
	l := NewLoader(LoaderConfig{}, WithRenderer(r), WithLoaderLogger(quietLogger()))

	snap, err := l.Load(context.Background(), srv.URL, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if string(snap.HTML) != article || r.calls != 0 {
		t.Errorf("html = %d bytes, renderer calls = %d", len(snap.HTML), r.calls)
	}
}

func TestLoader_ShellIsRendered(t *testing.T) {
	srv := pageServer(t, shell)
	r := &fakeRenderer{html: article}
	l := NewLoader(LoaderConfig{}, WithRenderer(r), WithLoaderLogger(quietLogger()))

	snap, err := l.Load(context.Background(), srv.URL, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if r.calls != 1 || string(snap.HTML) != article {
		t.Errorf("calls = %d, html = %q", r.calls, snap.HTML)
	}
	if snap.HTMLHash != mutation.HashHTML([]byte(article)) {
		t.Error("hash not recomputed after render")
	}
}

func TestLoader_RenderFailureKeepsFetchedHTML(t *testing.T) {
	srv := pageServer(t, shell)
	r := &fakeRenderer{err: errors.New("no chrome")}
	l := NewLoader(LoaderConfig{}, WithRenderer(r), WithLoaderLogger(quietLogger()))

	snap, err := l.Load(context.Background(), srv.URL, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if string(snap.HTML) != shell {
		t.Errorf("html = %q", snap.HTML)
	}
}

func TestManager_OpenByURL(t *testing.T) {
	srv := pageServer(t, article)
	l := NewLoader(LoaderConfig{}, WithLoaderLogger(quietLogger()))
	m, _ := newManager(t, nil, WithLoader(l))

	s, err := m.Open(context.Background(), OpenRequest{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if info := s.Info(); info.URL != srv.URL || info.Origin != srv.URL {
		t.Errorf("info = %+v", info)
	}
	doc, _ := s.Document(context.Background())
	if !strings.Contains(doc, "cats and dogs") {
		t.Errorf("document = %.80s", doc)
	}

	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()
	if _, err := m.Open(context.Background(), OpenRequest{URL: bad.URL}); err == nil {
		t.Error("expected error for 404 page")
	}
}
