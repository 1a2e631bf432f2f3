package dom

import (
	"unicode/utf8"

	"golang.org/x/net/html"
)

// Boundary is a DOM position. For a text node Offset counts runes into its
// data; for any other node it is a child index.
type Boundary struct {
	Node   *html.Node
	Offset int
}

// Range is a contiguous selection between two boundaries.
type Range struct {
	Start Boundary
	End   Boundary
}

// Collapsed reports whether the range is empty.
func (r Range) Collapsed() bool {
	return r.Start.Node == r.End.Node && r.Start.Offset == r.End.Offset
}

// CommonAncestor returns the deepest node containing both boundaries.
func (r Range) CommonAncestor() *html.Node {
	return CommonAncestor(r.Start.Node, r.End.Node)
}

// ResolveTextNode returns n when it is a text node. For an element it
// descends into the only child whose text equals the element's text,
// recursively. It returns nil when no such chain exists.
func ResolveTextNode(n *html.Node) *html.Node {
	for n != nil {
		switch n.Type {
		case html.TextNode:
			return n
		case html.ElementNode, html.DocumentNode:
		default:
			return nil
		}
		text := TextContent(n)
		var match *html.Node
		count := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if TextContent(c) == text {
				match = c
				count++
			}
		}
		if count != 1 {
			return nil
		}
		n = match
	}
	return nil
}

// TextOffset maps a boundary to a rune position within TextContent(anchor).
// It returns false when the boundary node is not inside anchor.
func TextOffset(anchor *html.Node, b Boundary) (int, bool) {
	if anchor == nil || b.Node == nil || !Contains(anchor, b.Node) {
		return 0, false
	}
	if b.Node.Type == html.TextNode {
		pos, ok := textBefore(anchor, b.Node)
		if !ok {
			return 0, false
		}
		return pos + clamp(b.Offset, 0, utf8.RuneCountInString(b.Node.Data)), true
	}
	// Element boundary: the text before child[Offset], or after the last child.
	child := b.Node.FirstChild
	for i := 0; i < b.Offset && child != nil; i++ {
		child = child.NextSibling
	}
	if child == nil {
		before, ok := textBefore(anchor, b.Node)
		if !ok {
			return 0, false
		}
		return before + utf8.RuneCountInString(TextContent(b.Node)), true
	}
	return textBefore(anchor, child)
}

// textBefore counts the runes of text nodes under anchor that precede n in
// document order.
func textBefore(anchor, n *html.Node) (int, bool) {
	if n == anchor {
		return 0, true
	}
	total := 0
	found := false
	var walk func(*html.Node) bool
	walk = func(p *html.Node) bool {
		for c := p.FirstChild; c != nil; c = c.NextSibling {
			if c == n {
				found = true
				return true
			}
			switch c.Type {
			case html.TextNode:
				total += utf8.RuneCountInString(c.Data)
			case html.ElementNode, html.DocumentNode:
				if walk(c) {
					return true
				}
			}
		}
		return false
	}
	walk(anchor)
	return total, found
}

// ResolveOffset maps a rune position within TextContent(anchor) back to a
// text node boundary. A position on the edge between two text nodes
// resolves to the start of the later one.
func ResolveOffset(anchor *html.Node, pos int) (Boundary, bool) {
	nodes := TextNodes(anchor)
	if len(nodes) == 0 || pos < 0 {
		return Boundary{}, false
	}
	acc := 0
	for i, n := range nodes {
		l := utf8.RuneCountInString(n.Data)
		if pos < acc+l || (pos == acc+l && i == len(nodes)-1) {
			return Boundary{Node: n, Offset: pos - acc}, true
		}
		acc += l
	}
	return Boundary{}, false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
