// Package annotation is the HTTP client for the annotation backend: word and
// selection annotation requests, and the success-record feedback report.
package annotation

import (
	"errors"
	"fmt"
)

// Annotation is the backend's answer. ID correlates later feedback.
type Annotation struct {
	Annotation string `json:"annotation"`
	ID         int64  `json:"id"`
}

// Result fills a trigger's annotation slot: either an annotation or the
// error that replaced it.
type Result struct {
	Annotation Annotation
	Err        error
}

// OK reports whether r holds an annotation.
func (r *Result) OK() bool { return r != nil && r.Err == nil }

// Selection is the payload of the host's getSelectedText bridge.
type Selection struct {
	SelectedText string `json:"selectedText"`
	Origin       string `json:"origin"`
}

// Error kinds. Every error returned by Client matches exactly one of them
// with errors.Is.
var (
	ErrClient      = errors.New("annotation: client error")
	ErrServer      = errors.New("annotation: server error")
	ErrIntegration = errors.New("annotation: integration error")
	ErrUnknown     = errors.New("annotation: unknown error")
)

var messages = map[error]string{
	ErrClient:      "Something went wrong. Please try again.",
	ErrServer:      "Error. Please try again later.",
	ErrIntegration: "Error. Please update the extension.",
	ErrUnknown:     "Unknown error.",
}

// Error carries the kind, the HTTP status when there was one, and the cause.
type Error struct {
	Kind   error
	Status int
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%v: status %d: %v", e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%v: status %d", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind sentinel of err. Errors that are not from this
// package are ErrUnknown.
func KindOf(err error) error {
	for _, k := range []error{ErrClient, ErrServer, ErrIntegration, ErrUnknown} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrUnknown
}

// KindName returns a short machine name for the kind of err.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrClient:
		return "client_error"
	case ErrServer:
		return "server_error"
	case ErrIntegration:
		return "integration_error"
	}
	return "unknown_error"
}

// Message returns the short user-facing text for err.
func Message(err error) string {
	return messages[KindOf(err)]
}

func statusKind(code int) error {
	switch {
	case code >= 400 && code < 500:
		return ErrClient
	case code >= 500 && code < 600:
		return ErrServer
	}
	return ErrUnknown
}
