package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnnotateWord_RequestShape(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/translate-word" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content-type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{"annotation": "a small cat", "id": 42})
	}))
	defer srv.Close()

	c := New(srv.URL + "/api/")
	ann, err := c.AnnotateWord(context.Background(), "cats", "I like cats and dogs", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ann.ID != 42 || ann.Annotation != "a small cat" {
		t.Errorf("annotation = %+v", ann)
	}
	if got["word"] != "cats" || got["context"] != "I like cats and dogs" {
		t.Errorf("body = %v", got)
	}
	prev, present := got["previous"]
	if !present || prev != nil {
		t.Errorf("previous must be sent as null, got %v (present=%v)", prev, present)
	}
}

func TestAnnotateText_Previous(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/translate-text" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"annotation":"second","id":7}`))
	}))
	defer srv.Close()

	prev := "first"
	ann, err := New(srv.URL).AnnotateText(context.Background(), "some text", "https://example.com", &prev)
	if err != nil {
		t.Fatal(err)
	}
	if ann.Annotation != "second" {
		t.Errorf("annotation = %q", ann.Annotation)
	}
	if got["text"] != "some text" || got["origin"] != "https://example.com" || got["previous"] != "first" {
		t.Errorf("body = %v", got)
	}
}

func TestRecordSuccess(t *testing.T) {
	var got successRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/success-record" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, "whatever")
	}))
	defer srv.Close()

	if err := New(srv.URL).RecordSuccess(context.Background(), 9, false); err != nil {
		t.Fatal(err)
	}
	if got.ID != 9 || got.Result {
		t.Errorf("body = %+v", got)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
		kind    string
	}{
		{"4xx", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "bad", http.StatusBadRequest) }, ErrClient, "client_error"},
		{"5xx", func(w http.ResponseWriter, r *http.Request) { http.Error(w, "boom", http.StatusBadGateway) }, ErrServer, "server_error"},
		{"not json", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("<html>")) }, ErrIntegration, "integration_error"},
		{"wrong shape", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"text":"x"}`)) }, ErrIntegration, "integration_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := New(srv.URL).AnnotateWord(context.Background(), "w", "c", nil)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if KindOf(err) != tt.want {
				t.Errorf("KindOf = %v", KindOf(err))
			}
			if KindName(err) != tt.kind {
				t.Errorf("KindName = %q, want %q", KindName(err), tt.kind)
			}
			if Message(err) == "" {
				t.Error("empty user message")
			}
		})
	}
}

func TestTransportErrorIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).AnnotateWord(context.Background(), "w", "c", nil)
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("err = %v, want ErrUnknown", err)
	}
	if KindOf(errors.New("foreign")) != ErrUnknown {
		t.Error("foreign errors must be unknown")
	}
}
