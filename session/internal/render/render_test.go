package render

import (
	"context"
	"testing"
)

func TestShouldBlock(t *testing.T) {
	set := blockSet([]string{"Images", "fonts", "xhr"})
	tests := []struct {
		typ  string
		want bool
	}{
		{"Image", true},
		{"Font", true},
		{"Stylesheet", false},
		{"Media", false},
		{"XHR", true},
		{"Document", false},
	}
	for _, tt := range tests {
		if got := shouldBlock(set, tt.typ); got != tt.want {
			t.Errorf("shouldBlock(%q) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestRenderAfterClose(t *testing.T) {
	b := New(Config{})
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Render(context.Background(), "http://example.org"); err == nil {
		t.Error("render on a closed browser succeeded")
	}
}
