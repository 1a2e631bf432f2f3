package mark

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/segment"
)

// WordMark highlights the word under the caret. Its root span always holds
// exactly three children: the text before the word, the highlight element,
// and the text after it.
type WordMark struct {
	a    dom.Adapter
	opts Options
	tick

	// Start, End and Ordinal locate the word in the original text node.
	Start   int
	End     int
	Ordinal int
	Word    string

	root     *html.Node
	mark     *html.Node
	reverted bool
}

// MountWord wraps the word at offset inside node. node may be an element
// that resolves to a single text node.
func MountWord(a dom.Adapter, node *html.Node, offset int, opts Options) (*WordMark, error) {
	opts.defaults()
	tn := dom.ResolveTextNode(node)
	if tn == nil {
		return nil, ErrUnresolvable
	}
	if IsInsideActiveMark(tn) {
		return nil, ErrActiveMark
	}
	parent := tn.Parent
	if parent == nil {
		return nil, fmt.Errorf("mark: mount word: %w", dom.ErrNotAttached)
	}

	w, ok := segment.WordAt(tn.Data, offset)
	if !ok || strings.TrimSpace(w.Text) == "" {
		return nil, ErrNoWord
	}

	before := segment.Slice(tn.Data, 0, w.Start)
	after := segment.Slice(tn.Data, w.End, segment.Len(tn.Data))
	g, err := buildGroup(a, opts.Tag, AttrPendingWord, pendingStyle(opts.Threshold), before, w.Text, after, true)
	if err != nil {
		return nil, fmt.Errorf("mark: mount word: %w", err)
	}
	if err := a.ReplaceChild(parent, g.root, tn); err != nil {
		return nil, fmt.Errorf("mark: mount word: %w", err)
	}

	return &WordMark{
		a:       a,
		opts:    opts,
		Start:   w.Start,
		End:     w.End,
		Ordinal: w.Ordinal,
		Word:    w.Text,
		root:    g.root,
		mark:    g.mark,
	}, nil
}

func (w *WordMark) Kind() Kind { return KindWord }

// Root returns the wrapper span.
func (w *WordMark) Root() *html.Node { return w.root }

// Mark returns the highlight element.
func (w *WordMark) Mark() *html.Node { return w.mark }

func (w *WordMark) Content() string { return w.Word }

func (w *WordMark) Elapsed() time.Duration { return w.elapsed }

func (w *WordMark) Container() *html.Node { return w.root.Parent }

func (w *WordMark) Owns(n *html.Node) bool {
	return !w.reverted && dom.Contains(w.root, n)
}

// Tick flips the pending attribute to "1" on the first tick.
func (w *WordMark) Tick(delta time.Duration) (bool, error) {
	if w.reverted {
		return false, ErrReverted
	}
	if w.elapsed == 0 {
		if err := w.a.SetAttr(w.mark, AttrPendingWord, "1"); err != nil {
			return false, fmt.Errorf("mark: tick: %w", err)
		}
	}
	return w.advance(delta, w.opts.Threshold), nil
}

// IsSame maps the caret into the root's text and compares the word found
// there with the frozen span.
func (w *WordMark) IsSame(node *html.Node, offset int) bool {
	if w.reverted || node == nil || !dom.Contains(w.root, node) {
		return false
	}
	pos, ok := dom.TextOffset(w.root, dom.Boundary{Node: node, Offset: offset})
	if !ok {
		return false
	}
	runs := segment.Split(dom.TextContent(w.root))
	i, ok := segment.At(runs, pos)
	if !ok {
		return false
	}
	r := runs[i]
	return r.Start == w.Start && r.End == w.End && i == w.Ordinal && dom.TextContent(w.mark) == r.Text
}

// Revert puts a single text node with the root's text back in its place.
// Reverting twice is a no-op.
func (w *WordMark) Revert() error {
	if w.reverted {
		return nil
	}
	if err := unwrap(w.a, []group{{root: w.root, mark: w.mark}}); err != nil {
		return fmt.Errorf("mark: revert word: %w", err)
	}
	w.reverted = true
	return nil
}

// Promote stamps the highlight with the trigger attribute and id
// "mark-<id>", then inserts the anchors. The visible text is unchanged.
func (w *WordMark) Promote(id string) (Trigger, error) {
	if w.reverted {
		return nil, ErrReverted
	}
	if w.root.Parent == nil {
		return nil, ErrDetached
	}
	groups := []group{{root: w.root, mark: w.mark}}
	start, end, err := stamp(w.a, groups, AttrPendingWord, AttrTriggerWord, id, func(int) string { return "mark-" + id })
	if err != nil {
		return nil, fmt.Errorf("mark: promote word: %w", err)
	}
	return &WordTrigger{
		base: base{
			a:       w.a,
			id:      id,
			content: w.Word,
			context: contextFor(marksOf(groups), w.opts.Context),
			groups:  groups,
			anchors: [2]*html.Node{start, end},
		},
		Start:   w.Start,
		End:     w.End,
		Ordinal: w.Ordinal,
	}, nil
}
