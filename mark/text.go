package mark

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/segment"
)

// TextMark highlights a selection. Each text node the selection touches is
// replaced by its own root span, and the whole set is mounted, reverted and
// promoted as one unit.
type TextMark struct {
	a    dom.Adapter
	opts Options
	tick

	// Start and End are rune positions in the ancestor's text.
	Start int
	End   int
	Text  string

	ancestor *html.Node
	ownsRoot bool // ancestor had no root attribute before mount
	groups   []group
	reverted bool
}

// MountText wraps every text segment covered by rng. Segments made only of
// whitespace stay plain text. The mount is refused when any covered node
// already belongs to an active mark.
func MountText(a dom.Adapter, rng dom.Range, opts Options) (*TextMark, error) {
	opts.defaults()
	if rng.Start.Node == nil || rng.End.Node == nil {
		return nil, ErrUnresolvable
	}
	ancestor := dom.ClosestElement(rng.CommonAncestor())
	if ancestor == nil {
		return nil, ErrUnresolvable
	}
	start, ok := dom.TextOffset(ancestor, rng.Start)
	if !ok {
		return nil, ErrUnresolvable
	}
	end, ok := dom.TextOffset(ancestor, rng.End)
	if !ok {
		return nil, ErrUnresolvable
	}
	if start > end {
		start, end = end, start
	}
	if start == end {
		return nil, ErrEmptyRange
	}

	type cut struct {
		node                    *html.Node
		before, selected, after string
	}
	var cuts []cut
	acc := 0
	for _, n := range dom.TextNodes(ancestor) {
		l := utf8.RuneCountInString(n.Data)
		lo, hi := max(start, acc), min(end, acc+l)
		nodeStart := acc
		acc += l
		if lo >= hi {
			continue
		}
		if IsInsideActiveMark(n) {
			return nil, ErrActiveMark
		}
		selected := segment.Slice(n.Data, lo-nodeStart, hi-nodeStart)
		if strings.TrimSpace(selected) == "" {
			continue
		}
		cuts = append(cuts, cut{
			node:     n,
			before:   segment.Slice(n.Data, 0, lo-nodeStart),
			selected: selected,
			after:    segment.Slice(n.Data, hi-nodeStart, l),
		})
	}
	if len(cuts) == 0 {
		return nil, ErrEmptyRange
	}

	text := segment.Slice(dom.TextContent(ancestor), start, end)
	style := pendingStyle(opts.Threshold)
	tx := dom.NewTx(a)
	groups := make([]group, 0, len(cuts))
	for _, c := range cuts {
		g, err := buildGroup(a, opts.Tag, AttrPendingText, style, c.before, c.selected, c.after, false)
		if err != nil {
			return nil, fmt.Errorf("mark: mount text: %w", err)
		}
		tx.Replace(c.node.Parent, g.root, c.node)
		groups = append(groups, g)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("mark: mount text: %w", err)
	}

	m := &TextMark{
		a:        a,
		opts:     opts,
		Start:    start,
		End:      end,
		Text:     text,
		ancestor: ancestor,
		groups:   groups,
	}
	if !dom.HasAttr(ancestor, AttrRoot) {
		if err := a.SetAttr(ancestor, AttrRoot, ""); err == nil {
			m.ownsRoot = true
		}
	}
	return m, nil
}

func (m *TextMark) Kind() Kind { return KindText }

// Ancestor returns the selection's common ancestor element.
func (m *TextMark) Ancestor() *html.Node { return m.ancestor }

// Marks returns the highlight elements in document order.
func (m *TextMark) Marks() []*html.Node { return marksOf(m.groups) }

func (m *TextMark) Content() string { return m.Text }

func (m *TextMark) Elapsed() time.Duration { return m.elapsed }

func (m *TextMark) Container() *html.Node { return m.ancestor }

func (m *TextMark) Owns(n *html.Node) bool {
	if m.reverted {
		return false
	}
	for _, g := range m.groups {
		if dom.Contains(g.root, n) {
			return true
		}
	}
	return false
}

// Tick flips the pending attribute of every highlight on the first tick.
func (m *TextMark) Tick(delta time.Duration) (bool, error) {
	if m.reverted {
		return false, ErrReverted
	}
	if m.elapsed == 0 {
		for _, g := range m.groups {
			if err := m.a.SetAttr(g.mark, AttrPendingText, "1"); err != nil {
				return false, fmt.Errorf("mark: tick: %w", err)
			}
		}
	}
	return m.advance(delta, m.opts.Threshold), nil
}

// IsSame reports whether the caret rests on one of the highlights.
func (m *TextMark) IsSame(node *html.Node, _ int) bool {
	if m.reverted || node == nil {
		return false
	}
	for _, g := range m.groups {
		if dom.Contains(g.mark, node) {
			return true
		}
	}
	return false
}

// Revert restores every wrapped text node in one transaction.
func (m *TextMark) Revert() error {
	if m.reverted {
		return nil
	}
	if err := revertGroups(m.a, m.ancestor, m.groups, m.ownsRoot); err != nil {
		return fmt.Errorf("mark: revert text: %w", err)
	}
	m.reverted = true
	return nil
}

// Promote stamps every highlight with the trigger attribute and an id of
// the form "mark--<n>--<id>".
func (m *TextMark) Promote(id string) (Trigger, error) {
	if m.reverted {
		return nil, ErrReverted
	}
	for _, g := range m.groups {
		if g.root.Parent == nil {
			return nil, ErrDetached
		}
	}
	start, end, err := stamp(m.a, m.groups, AttrPendingText, AttrTriggerText, id, func(i int) string {
		return fmt.Sprintf("mark--%d--%s", i, id)
	})
	if err != nil {
		return nil, fmt.Errorf("mark: promote text: %w", err)
	}
	return &TextTrigger{
		base: base{
			a:       m.a,
			id:      id,
			content: m.Text,
			context: contextFor(marksOf(m.groups), m.opts.Context),
			groups:  m.groups,
			anchors: [2]*html.Node{start, end},
		},
		Start:    m.Start,
		End:      m.End,
		ancestor: m.ancestor,
		ownsRoot: m.ownsRoot,
	}, nil
}

func revertGroups(a dom.Adapter, ancestor *html.Node, groups []group, ownsRoot bool) error {
	if err := unwrap(a, groups); err != nil {
		return err
	}
	if ownsRoot {
		_ = a.RemoveAttr(ancestor, AttrRoot)
	}
	return nil
}

func marksOf(groups []group) []*html.Node {
	out := make([]*html.Node, len(groups))
	for i, g := range groups {
		out[i] = g.mark
	}
	return out
}
