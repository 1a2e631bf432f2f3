// Package session drives the engine on the server. A session owns a parsed
// page, the controller wired to it and the goroutine running its loop.
// Clients address nodes by XPath and post the events a browser would
// produce; the HTTP and MCP surfaces are thin wrappers over Manager and
// Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/controller"
	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/segment"
)

// ErrNotFound is returned for unknown sessions or triggers.
var ErrNotFound = errors.New("session: not found")

// Info summarises a session.
type Info struct {
	ID         string    `json:"id"`
	URL        string    `json:"url,omitempty"`
	Origin     string    `json:"origin,omitempty"`
	SnapshotID string    `json:"snapshot_id"`
	Created    time.Time `json:"created"`
	LastUsed   time.Time `json:"last_used"`
}

// Session is one annotated page.
type Session struct {
	id         string
	url        string
	origin     string
	snapshotID string
	created    time.Time
	lastUsed   atomic.Int64

	doc    *html.Node
	ctrl   *controller.Controller
	cancel context.CancelFunc
	done   chan struct{}

	// Loop-owned.
	selection string
}

// ID returns the session id, also used as the journal page id.
func (s *Session) ID() string { return s.id }

// Info returns a summary.
func (s *Session) Info() Info {
	return Info{
		ID:         s.id,
		URL:        s.url,
		Origin:     s.origin,
		SnapshotID: s.snapshotID,
		Created:    s.created,
		LastUsed:   time.UnixMilli(s.lastUsed.Load()),
	}
}

func (s *Session) touch() { s.lastUsed.Store(time.Now().UnixMilli()) }

// Dispatch resolves a wire event against the document and handles it on
// the loop.
func (s *Session) Dispatch(ctx context.Context, req EventRequest) error {
	s.touch()
	var err error
	if derr := s.ctrl.Do(ctx, func(c *controller.Controller) {
		var ev controller.Event
		if ev, err = resolve(s.doc, req); err != nil {
			return
		}
		if up, ok := ev.(controller.PointerUp); ok {
			s.selection = rangeText(up.Selection)
		}
		c.Handle(ev)
	}); derr != nil {
		return fmt.Errorf("session: dispatch: %w", derr)
	}
	return err
}

// State reads the controller.
func (s *Session) State(ctx context.Context) (State, error) {
	s.touch()
	var st State
	err := s.ctrl.Do(ctx, func(c *controller.Controller) { st = stateOf(s.id, c) })
	return st, err
}

// Trigger reads one trigger.
func (s *Session) Trigger(ctx context.Context, id string) (TriggerView, error) {
	s.touch()
	var (
		v     TriggerView
		found bool
	)
	err := s.ctrl.Do(ctx, func(c *controller.Controller) {
		if t, ok := c.Trigger(id); ok {
			v, found = viewOf(t, c.IsVisible(id)), true
		}
	})
	if err != nil {
		return v, err
	}
	if !found {
		return v, fmt.Errorf("%w: trigger %s", ErrNotFound, id)
	}
	return v, nil
}

// Document serialises the current document, marks included.
func (s *Session) Document(ctx context.Context) (string, error) {
	s.touch()
	var out string
	err := s.ctrl.Do(ctx, func(*controller.Controller) { out = dom.Render(s.doc) })
	return out, err
}

// Selection returns the text of the last selection and the page origin.
func (s *Session) Selection(ctx context.Context) (annotation.Selection, error) {
	s.touch()
	var sel annotation.Selection
	err := s.ctrl.Do(ctx, func(*controller.Controller) {
		sel = annotation.Selection{SelectedText: s.selection, Origin: s.origin}
	})
	return sel, err
}

func (s *Session) stop() {
	s.cancel()
	<-s.done
}

// rangeText is the text a browser selection of rng would copy.
func rangeText(rng *dom.Range) string {
	if rng == nil || rng.Collapsed() {
		return ""
	}
	anc := rng.CommonAncestor()
	if anc == nil {
		return ""
	}
	if anc.Type == html.TextNode {
		anc = anc.Parent
	}
	start, ok1 := dom.TextOffset(anc, rng.Start)
	end, ok2 := dom.TextOffset(anc, rng.End)
	if !ok1 || !ok2 || end <= start {
		return ""
	}
	return segment.Slice(dom.TextContent(anc), start, end)
}
