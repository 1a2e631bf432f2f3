package controller

import (
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/dom"
)

// Event is one input of the controller. The set is closed: the types in
// this file are the only implementations.
type Event interface {
	Kind() string
	event()
}

// Caret is a caret position: a node and an offset inside it.
type Caret struct {
	Node   *html.Node
	Offset int
}

// PointerMove carries the caret under the pointer. A nil Caret means the
// pointer is over nothing that has a caret position.
type PointerMove struct{ Caret *Caret }

// PointerDown starts a press. Touch presses do not count as drags.
type PointerDown struct{ PointerType string }

// PointerUp ends a press. Selection is the browser selection at that point,
// nil when there is none.
type PointerUp struct{ Selection *dom.Range }

// MouseLeave fires when the pointer leaves the window.
type MouseLeave struct{}

// WindowBlur fires when the window loses focus.
type WindowBlur struct{}

// Tick is one animation frame.
type Tick struct{ Delta time.Duration }

// AnnotationResult delivers the outcome of an annotation request. Gen is the
// request generation the controller assigned when dispatching it.
type AnnotationResult struct {
	ID         string
	Gen        uint64
	Annotation annotation.Annotation
	Err        error
}

// FeedbackSent reports the outcome of a success-record request.
type FeedbackSent struct {
	ID           string
	AnnotationID int64
	Result       bool
	Err          error
}

// UserClose closes a trigger's popover. Quality is nil when dismissed
// without judgment, false when rejected and true when accepted.
type UserClose struct {
	ID      string
	Quality *bool
}

// UserRegenerate asks for a new annotation of a trigger.
type UserRegenerate struct{ ID string }

// inspect runs fn on the loop.
type inspect struct {
	fn   func()
	done chan struct{}
}

func (PointerMove) Kind() string      { return "pointer_move" }
func (PointerDown) Kind() string      { return "pointer_down" }
func (PointerUp) Kind() string        { return "pointer_up" }
func (MouseLeave) Kind() string       { return "mouse_leave" }
func (WindowBlur) Kind() string       { return "window_blur" }
func (Tick) Kind() string             { return "tick" }
func (AnnotationResult) Kind() string { return "annotation_result" }
func (FeedbackSent) Kind() string     { return "feedback_sent" }
func (UserClose) Kind() string        { return "user_close" }
func (UserRegenerate) Kind() string   { return "user_regenerate" }
func (inspect) Kind() string          { return "inspect" }

func (PointerMove) event()      {}
func (PointerDown) event()      {}
func (PointerUp) event()        {}
func (MouseLeave) event()       {}
func (WindowBlur) event()       {}
func (Tick) event()             {}
func (AnnotationResult) event() {}
func (FeedbackSent) event()     {}
func (UserClose) event()        {}
func (UserRegenerate) event()   {}
func (inspect) event()          {}
