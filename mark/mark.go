// Package mark owns the DOM surgery of the engine: pending marks that
// highlight a word or a selection while the dwell timer runs, and the
// permanent triggers they are promoted into.
//
// Every write goes through a dom.Adapter. A pending mark is either reverted,
// which restores the original text nodes, or promoted, which hands its
// elements over to a Trigger. The DOM attributes declared below are the only
// state a later scan needs to recognise marks and triggers.
package mark

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/dom"
)

// DOM attributes shared by mount and lookup.
const (
	AttrRoot        = "data-glossmark-root"
	AttrPendingWord = "data-glossmark-pending-word"
	AttrPendingText = "data-glossmark-pending-text"
	AttrTriggerWord = "data-glossmark-trigger-word"
	AttrTriggerText = "data-glossmark-trigger-text"
	AttrAnchor      = "data-glossmark-anchor"
)

// Kind tells word marks from selection marks.
type Kind string

const (
	KindWord Kind = "word"
	KindText Kind = "text"
)

// DefaultThreshold is the dwell time before a pending mark is promoted.
const DefaultThreshold = 1600 * time.Millisecond

// BrandColor is the RGB highlight colour.
var BrandColor = [3]uint8{239, 207, 227}

var (
	ErrUnresolvable = errors.New("mark: node does not resolve to a text node")
	ErrActiveMark   = errors.New("mark: node is inside an active mark")
	ErrNoWord       = errors.New("mark: no word at offset")
	ErrEmptyRange   = errors.New("mark: range selects no text")
	ErrDetached     = errors.New("mark: mark is no longer attached")
	ErrReverted     = errors.New("mark: mark was already reverted")
)

// Options tune mark construction.
type Options struct {
	// Threshold is the dwell time. Default: DefaultThreshold.
	Threshold time.Duration
	// Tag is the highlight element. Default: "mark".
	Tag string
	// Context selects the context window sent with word triggers.
	Context ContextOptions
}

func (o *Options) defaults() {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.Tag == "" {
		o.Tag = "mark"
	}
	o.Context.defaults()
}

// Pending is a mark still subject to revert: a *WordMark or a *TextMark.
type Pending interface {
	Kind() Kind
	// Tick advances the dwell timer and reports whether it reached the
	// threshold. Non-positive deltas never advance it.
	Tick(delta time.Duration) (bool, error)
	// IsSame reports whether a caret at (node, offset) still designates
	// this mark.
	IsSame(node *html.Node, offset int) bool
	// Owns reports whether n belongs to the DOM the mark inserted.
	Owns(n *html.Node) bool
	// Container is a node whose text content Revert leaves unchanged.
	Container() *html.Node
	Revert() error
	Promote(id string) (Trigger, error)
	Content() string
	Elapsed() time.Duration
}

// IsInsideActiveMark walks n and its ancestors looking for a pending or
// trigger attribute.
func IsInsideActiveMark(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type != html.ElementNode {
			continue
		}
		if dom.HasAttr(n, AttrPendingWord) || dom.HasAttr(n, AttrPendingText) ||
			dom.HasAttr(n, AttrTriggerWord) || dom.HasAttr(n, AttrTriggerText) {
			return true
		}
	}
	return false
}

func pendingStyle(threshold time.Duration) string {
	return fmt.Sprintf("--pending-animation-duration: %dms; --mark-background-color: rgba(%d, %d, %d, 0.75)",
		threshold.Milliseconds(), BrandColor[0], BrandColor[1], BrandColor[2])
}

func triggerStyle() string {
	return fmt.Sprintf("background-color: rgba(%d, %d, %d, 1);", BrandColor[0], BrandColor[1], BrandColor[2])
}

// tick is the dwell accumulator shared by both pending marks.
type tick struct {
	elapsed time.Duration
}

func (t *tick) advance(delta, threshold time.Duration) bool {
	if delta > 0 {
		t.elapsed += delta
	}
	return t.elapsed >= threshold
}

// group is one wrapped text segment: a root span standing in place of the
// original text node, holding the highlight element.
type group struct {
	root *html.Node
	mark *html.Node
}

// buildGroup creates a detached root span holding before, a highlight
// element around selected, and after. Empty neighbours are kept only when
// keepEmpty is set.
func buildGroup(a dom.Adapter, tag, pendingAttr, style, before, selected, after string, keepEmpty bool) (group, error) {
	m := a.CreateElement(tag)
	if err := a.SetAttr(m, pendingAttr, "0"); err != nil {
		return group{}, err
	}
	if err := a.SetAttr(m, "style", style); err != nil {
		return group{}, err
	}
	if err := a.InsertBefore(m, a.CreateText(selected), nil); err != nil {
		return group{}, err
	}

	root := a.CreateElement("span")
	if err := a.SetAttr(root, "style", "display: inline;"); err != nil {
		return group{}, err
	}
	if err := a.SetAttr(root, AttrRoot, ""); err != nil {
		return group{}, err
	}
	for _, c := range []struct {
		node *html.Node
		text string
	}{{a.CreateText(before), before}, {m, ""}, {a.CreateText(after), after}} {
		if c.node != m && c.text == "" && !keepEmpty {
			continue
		}
		if err := a.InsertBefore(root, c.node, nil); err != nil {
			return group{}, err
		}
	}
	return group{root: root, mark: m}, nil
}

// unwrap replaces every group root with a single text node carrying its text
// content, as one transaction.
func unwrap(a dom.Adapter, groups []group) error {
	tx := dom.NewTx(a)
	for _, g := range groups {
		if g.root.Parent == nil {
			return ErrDetached
		}
		tx.Replace(g.root.Parent, a.CreateText(dom.TextContent(g.root)), g.root)
	}
	return tx.Commit()
}

// stamp moves every highlight from the pending attribute to the trigger
// attribute and inserts the two empty anchors around the first and last
// highlight's text.
func stamp(a dom.Adapter, groups []group, pendingAttr, triggerAttr, id string, elementID func(i int) string) (start, end *html.Node, err error) {
	for i, g := range groups {
		if err := a.RemoveAttr(g.mark, pendingAttr); err != nil {
			return nil, nil, err
		}
		if err := a.SetAttr(g.mark, triggerAttr, id); err != nil {
			return nil, nil, err
		}
		if err := a.SetAttr(g.mark, "id", elementID(i)); err != nil {
			return nil, nil, err
		}
		if err := a.SetAttr(g.mark, "style", triggerStyle()); err != nil {
			return nil, nil, err
		}
	}
	first, last := groups[0].mark, groups[len(groups)-1].mark
	start = a.CreateElement("span")
	end = a.CreateElement("span")
	if err := a.SetAttr(start, AttrAnchor, "start"); err != nil {
		return nil, nil, err
	}
	if err := a.SetAttr(end, AttrAnchor, "end"); err != nil {
		return nil, nil, err
	}
	if err := a.InsertBefore(first, start, first.FirstChild); err != nil {
		return nil, nil, err
	}
	if err := a.InsertBefore(last, end, nil); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
