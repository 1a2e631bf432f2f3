// Package dom is the DOM adapter the mark engine works through. Nodes are
// golang.org/x/net/html nodes; every write goes through an Adapter so the
// engine never touches node pointers directly and every failure is an error,
// never a panic.
package dom

import (
	"errors"
	"fmt"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/glossmark/mutation"
)

var (
	ErrNilNode     = errors.New("dom: nil node")
	ErrNotChild    = errors.New("dom: node is not a child of parent")
	ErrAttached    = errors.New("dom: node already has a parent")
	ErrCycle       = errors.New("dom: insertion would create a cycle")
	ErrNotElement  = errors.New("dom: node is not an element")
	ErrNotAttached = errors.New("dom: node is not attached to the document")
)

// Adapter is the write surface over a node tree.
type Adapter interface {
	CreateElement(tag string) *html.Node
	CreateText(data string) *html.Node
	ReplaceChild(parent, newChild, oldChild *html.Node) error
	InsertBefore(parent, newChild, ref *html.Node) error
	RemoveChild(parent, child *html.Node) error
	SetAttr(n *html.Node, key, val string) error
	RemoveAttr(n *html.Node, key string) error
}

// RecordFunc receives one journal record per write applied to the attached
// document.
type RecordFunc func(mutation.Record)

// Tree is the default Adapter over a parsed document.
type Tree struct {
	doc    *html.Node
	record RecordFunc
}

// Option configures a Tree.
type Option func(*Tree)

// WithRecorder journals every write that touches the attached document.
// Writes on detached subtrees are not journaled.
func WithRecorder(fn RecordFunc) Option {
	return func(t *Tree) { t.record = fn }
}

// NewTree wraps doc.
func NewTree(doc *html.Node, opts ...Option) *Tree {
	t := &Tree{doc: doc}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Document returns the root node.
func (t *Tree) Document() *html.Node { return t.doc }

// SetRecorder swaps the journal callback. Nil disables journaling.
func (t *Tree) SetRecorder(fn RecordFunc) { t.record = fn }

func (t *Tree) CreateElement(tag string) *html.Node {
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: atom.Lookup([]byte(tag))}
}

func (t *Tree) CreateText(data string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: data}
}

func (t *Tree) ReplaceChild(parent, newChild, oldChild *html.Node) error {
	if parent == nil || newChild == nil || oldChild == nil {
		return fmt.Errorf("dom: replace: %w", ErrNilNode)
	}
	if oldChild.Parent != parent {
		return fmt.Errorf("dom: replace: %w", ErrNotChild)
	}
	if newChild == oldChild {
		return nil
	}
	if err := checkInsertable(parent, newChild); err != nil {
		return fmt.Errorf("dom: replace: %w", err)
	}
	journal := t.attached(parent)
	var oldPath string
	if journal {
		oldPath = XPath(oldChild)
	}
	parent.InsertBefore(newChild, oldChild)
	parent.RemoveChild(oldChild)
	if journal {
		t.emit(mutation.Record{Op: mutation.OpRemove, XPath: oldPath, NodeType: nodeType(oldChild), Tag: tagOf(oldChild)})
		t.emitInsert(newChild)
	}
	return nil
}

func (t *Tree) InsertBefore(parent, newChild, ref *html.Node) error {
	if parent == nil || newChild == nil {
		return fmt.Errorf("dom: insert: %w", ErrNilNode)
	}
	if ref != nil && ref.Parent != parent {
		return fmt.Errorf("dom: insert: %w", ErrNotChild)
	}
	if err := checkInsertable(parent, newChild); err != nil {
		return fmt.Errorf("dom: insert: %w", err)
	}
	parent.InsertBefore(newChild, ref)
	if t.attached(parent) {
		t.emitInsert(newChild)
	}
	return nil
}

func (t *Tree) RemoveChild(parent, child *html.Node) error {
	if parent == nil || child == nil {
		return fmt.Errorf("dom: remove: %w", ErrNilNode)
	}
	if child.Parent != parent {
		return fmt.Errorf("dom: remove: %w", ErrNotChild)
	}
	journal := t.attached(parent)
	var path string
	if journal {
		path = XPath(child)
	}
	parent.RemoveChild(child)
	if journal {
		t.emit(mutation.Record{Op: mutation.OpRemove, XPath: path, NodeType: nodeType(child), Tag: tagOf(child)})
	}
	return nil
}

func (t *Tree) SetAttr(n *html.Node, key, val string) error {
	if n == nil {
		return fmt.Errorf("dom: set attr %s: %w", key, ErrNilNode)
	}
	if n.Type != html.ElementNode {
		return fmt.Errorf("dom: set attr %s: %w", key, ErrNotElement)
	}
	old, had := Attr(n, key)
	if had && old == val {
		return nil
	}
	if had {
		for i := range n.Attr {
			if n.Attr[i].Namespace == "" && n.Attr[i].Key == key {
				n.Attr[i].Val = val
				break
			}
		}
	} else {
		n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
	}
	if t.attached(n) {
		t.emit(mutation.Record{Op: mutation.OpAttr, XPath: XPath(n), NodeType: nodeType(n), Tag: tagOf(n), Name: key, Value: val, OldValue: old})
	}
	return nil
}

func (t *Tree) RemoveAttr(n *html.Node, key string) error {
	if n == nil {
		return fmt.Errorf("dom: remove attr %s: %w", key, ErrNilNode)
	}
	if n.Type != html.ElementNode {
		return fmt.Errorf("dom: remove attr %s: %w", key, ErrNotElement)
	}
	old, had := Attr(n, key)
	if !had {
		return nil
	}
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
	if t.attached(n) {
		t.emit(mutation.Record{Op: mutation.OpAttrDel, XPath: XPath(n), NodeType: nodeType(n), Tag: tagOf(n), Name: key, OldValue: old})
	}
	return nil
}

func (t *Tree) attached(n *html.Node) bool {
	return t.record != nil && t.doc != nil && Root(n) == t.doc
}

func (t *Tree) emit(rec mutation.Record) {
	if t.record != nil {
		t.record(rec)
	}
}

func (t *Tree) emitInsert(n *html.Node) {
	t.emit(mutation.Record{Op: mutation.OpInsert, XPath: XPath(n), NodeType: nodeType(n), Tag: tagOf(n), HTML: Render(n)})
}

func checkInsertable(parent, child *html.Node) error {
	if child.Parent != nil || child.PrevSibling != nil || child.NextSibling != nil {
		return ErrAttached
	}
	if Contains(child, parent) {
		return ErrCycle
	}
	return nil
}

// nodeType maps to the DOM nodeType numbers used in journal records.
func nodeType(n *html.Node) int {
	switch n.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	case html.DoctypeNode:
		return 10
	}
	return 0
}

func tagOf(n *html.Node) string {
	if n.Type == html.ElementNode {
		return n.Data
	}
	return ""
}
