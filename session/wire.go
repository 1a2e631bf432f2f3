package session

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/controller"
	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/mark"
)

// ErrBadEvent is returned for events that cannot be resolved against the
// session document.
var ErrBadEvent = errors.New("session: bad event")

// Event types accepted by Dispatch.
const (
	EventPointerMove = "pointer_move"
	EventPointerDown = "pointer_down"
	EventPointerUp   = "pointer_up"
	EventMouseLeave  = "mouse_leave"
	EventWindowBlur  = "window_blur"
	EventTick        = "tick"
	EventClose       = "close"
	EventRegenerate  = "regenerate"
)

// EventRequest is the wire form of a controller event. Nodes are addressed
// by XPath; offsets count runes.
type EventRequest struct {
	Type        string            `json:"type"`
	XPath       string            `json:"xpath,omitempty"`
	Offset      int               `json:"offset,omitempty"`
	PointerType string            `json:"pointer_type,omitempty"`
	Selection   *SelectionRequest `json:"selection,omitempty"`
	DeltaMS     int64             `json:"delta_ms,omitempty"`
	ID          string            `json:"id,omitempty"`
	Quality     *bool             `json:"quality,omitempty"`
}

// SelectionRequest addresses a range by its two boundaries.
type SelectionRequest struct {
	StartXPath  string `json:"start_xpath"`
	StartOffset int    `json:"start_offset"`
	EndXPath    string `json:"end_xpath"`
	EndOffset   int    `json:"end_offset"`
}

// PendingView describes the pending mark.
type PendingView struct {
	Kind      mark.Kind `json:"kind"`
	Content   string    `json:"content"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// TriggerView describes a trigger and its annotation.
type TriggerView struct {
	ID           string    `json:"id"`
	Kind         mark.Kind `json:"kind"`
	Content      string    `json:"content"`
	Context      string    `json:"context,omitempty"`
	Visible      bool      `json:"visible"`
	Marks        []string  `json:"marks"`
	Annotation   string    `json:"annotation,omitempty"`
	AnnotationID int64     `json:"annotation_id,omitempty"`
	Error        string    `json:"error,omitempty"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	Loading      bool      `json:"loading"`
	FeedbackSent bool      `json:"feedback_sent"`
}

// State is a read of the controller.
type State struct {
	SessionID   string        `json:"session_id"`
	Pending     *PendingView  `json:"pending,omitempty"`
	Triggers    []TriggerView `json:"triggers"`
	Visible     []string      `json:"visible"`
	PointerDown bool          `json:"pointer_down"`
}

func viewOf(t mark.Trigger, visible bool) TriggerView {
	v := TriggerView{
		ID:           t.ID(),
		Kind:         t.Kind(),
		Content:      t.Content(),
		Context:      t.Context(),
		Visible:      visible,
		FeedbackSent: t.FeedbackSent(),
	}
	for _, m := range t.Marks() {
		v.Marks = append(v.Marks, dom.XPath(m))
	}
	switch r := t.Annotation(); {
	case r == nil:
		v.Loading = true
	case r.Err != nil:
		v.Error = annotation.Message(r.Err)
		v.ErrorKind = annotation.KindName(r.Err)
	default:
		v.Annotation = r.Annotation.Annotation
		v.AnnotationID = r.Annotation.ID
	}
	return v
}

func stateOf(id string, c *controller.Controller) State {
	st := State{SessionID: id, Visible: c.Visible(), PointerDown: c.PointerDown(), Triggers: []TriggerView{}}
	if p := c.Pending(); p != nil {
		st.Pending = &PendingView{Kind: p.Kind(), Content: p.Content(), ElapsedMS: p.Elapsed().Milliseconds()}
	}
	for _, t := range c.Triggers() {
		st.Triggers = append(st.Triggers, viewOf(t, c.IsVisible(t.ID())))
	}
	return st
}

// resolve turns a wire event into a controller event against doc.
func resolve(doc *html.Node, req EventRequest) (controller.Event, error) {
	switch req.Type {
	case EventPointerMove:
		if req.XPath == "" {
			return controller.PointerMove{}, nil
		}
		n, err := find(doc, req.XPath)
		if err != nil {
			return nil, err
		}
		return controller.PointerMove{Caret: &controller.Caret{Node: n, Offset: req.Offset}}, nil
	case EventPointerDown:
		return controller.PointerDown{PointerType: req.PointerType}, nil
	case EventPointerUp:
		if req.Selection == nil {
			return controller.PointerUp{}, nil
		}
		rng, err := resolveRange(doc, *req.Selection)
		if err != nil {
			return nil, err
		}
		return controller.PointerUp{Selection: &rng}, nil
	case EventMouseLeave:
		return controller.MouseLeave{}, nil
	case EventWindowBlur:
		return controller.WindowBlur{}, nil
	case EventTick:
		if req.DeltaMS < 0 {
			return nil, fmt.Errorf("%w: negative delta", ErrBadEvent)
		}
		return controller.Tick{Delta: time.Duration(req.DeltaMS) * time.Millisecond}, nil
	case EventClose:
		if req.ID == "" {
			return nil, fmt.Errorf("%w: id required", ErrBadEvent)
		}
		return controller.UserClose{ID: req.ID, Quality: req.Quality}, nil
	case EventRegenerate:
		if req.ID == "" {
			return nil, fmt.Errorf("%w: id required", ErrBadEvent)
		}
		return controller.UserRegenerate{ID: req.ID}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrBadEvent, req.Type)
}

func resolveRange(doc *html.Node, sel SelectionRequest) (dom.Range, error) {
	start, err := find(doc, sel.StartXPath)
	if err != nil {
		return dom.Range{}, err
	}
	end, err := find(doc, sel.EndXPath)
	if err != nil {
		return dom.Range{}, err
	}
	return dom.Range{
		Start: dom.Boundary{Node: start, Offset: sel.StartOffset},
		End:   dom.Boundary{Node: end, Offset: sel.EndOffset},
	}, nil
}

func find(doc *html.Node, path string) (*html.Node, error) {
	n, err := dom.Find(doc, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}
	return n, nil
}
