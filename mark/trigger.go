package mark

import (
	"fmt"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/annotation"
	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/idgen"
)

// Trigger is a promoted mark: a *WordTrigger or a *TextTrigger. Its id lives
// in the DOM, so LookupID can find it again from any node it covers.
type Trigger interface {
	ID() string
	Kind() Kind
	// Content is the literal marked text.
	Content() string
	// Context is the surrounding text sent for disambiguation.
	Context() string
	// Marks returns the highlight elements in document order.
	Marks() []*html.Node
	// Anchors returns the empty elements placed before and after the text.
	Anchors() (start, end *html.Node)
	Unmount() error

	// Annotate sets the annotation slot; nil clears it.
	Annotate(r *annotation.Result)
	Annotation() *annotation.Result
	// Feedback records whether feedback for the current annotation was sent.
	Feedback(sent bool)
	FeedbackSent() bool
}

type base struct {
	a        dom.Adapter
	id       string
	content  string
	context  string
	groups   []group
	anchors  [2]*html.Node
	result   *annotation.Result
	feedback bool
	removed  bool
}

func (b *base) ID() string { return b.id }
func (b *base) Content() string { return b.content }
func (b *base) Context() string { return b.context }
func (b *base) Marks() []*html.Node { return marksOf(b.groups) }
func (b *base) Anchors() (start, end *html.Node) { return b.anchors[0], b.anchors[1] }
func (b *base) Annotate(r *annotation.Result) { b.result = r }
func (b *base) Annotation() *annotation.Result { return b.result }
func (b *base) Feedback(sent bool) { b.feedback = sent }
func (b *base) FeedbackSent() bool { return b.feedback }

// WordTrigger is a promoted WordMark.
type WordTrigger struct {
	base
	Start   int
	End     int
	Ordinal int
}

func (t *WordTrigger) Kind() Kind { return KindWord }

// Root returns the wrapper span.
func (t *WordTrigger) Root() *html.Node { return t.groups[0].root }

// Unmount restores the original text node. Unmounting twice is a no-op.
func (t *WordTrigger) Unmount() error {
	if t.removed {
		return nil
	}
	if err := unwrap(t.a, t.groups); err != nil {
		return fmt.Errorf("mark: unmount word trigger %s: %w", t.id, err)
	}
	t.removed = true
	return nil
}

// TextTrigger is a promoted TextMark.
type TextTrigger struct {
	base
	Start    int
	End      int
	ancestor *html.Node
	ownsRoot bool
}

func (t *TextTrigger) Kind() Kind { return KindText }

// Ancestor returns the selection's common ancestor element.
func (t *TextTrigger) Ancestor() *html.Node { return t.ancestor }

// Unmount restores every wrapped text node in one transaction.
func (t *TextTrigger) Unmount() error {
	if t.removed {
		return nil
	}
	if err := revertGroups(t.a, t.ancestor, t.groups, t.ownsRoot); err != nil {
		return fmt.Errorf("mark: unmount text trigger %s: %w", t.id, err)
	}
	t.removed = true
	return nil
}

// LookupID recovers the trigger owning n from the DOM alone. It walks up
// from n while each ancestor's text equals the text observed at n, and
// returns the id of the first element carrying a trigger attribute.
func LookupID(n *html.Node) (id string, kind Kind, ok bool) {
	if n == nil {
		return "", "", false
	}
	observed := dom.TextContent(n)
	for cur := dom.ClosestElement(n); cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if v, has := dom.Attr(cur, AttrTriggerWord); has {
			return parsedID(v, KindWord)
		}
		if v, has := dom.Attr(cur, AttrTriggerText); has {
			return parsedID(v, KindText)
		}
		if dom.TextContent(cur) != observed {
			break
		}
	}
	return "", "", false
}

func parsedID(v string, kind Kind) (string, Kind, bool) {
	id, err := idgen.Parse(v)
	if err != nil {
		return "", "", false
	}
	return id, kind, true
}
