package dom

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// XPath returns a positional path for n, e.g. /html/body/p[2]/text().
// A step carries an index only when its parent has several children of the
// same name. Nodes outside a document get a path relative to their root.
func XPath(n *html.Node) string {
	if n == nil {
		return ""
	}
	var steps []string
	for c := n; c != nil && c.Type != html.DocumentNode; c = c.Parent {
		name := stepName(c)
		if name == "" {
			continue
		}
		steps = append(steps, name+siblingIndex(c, name))
	}
	if len(steps) == 0 {
		return "/"
	}
	var b strings.Builder
	for i := len(steps) - 1; i >= 0; i-- {
		b.WriteByte('/')
		b.WriteString(steps[i])
	}
	return b.String()
}

func stepName(n *html.Node) string {
	switch n.Type {
	case html.ElementNode:
		return strings.ToLower(n.Data)
	case html.TextNode:
		return "text()"
	case html.CommentNode:
		return "comment()"
	}
	return ""
}

func siblingIndex(n *html.Node, name string) string {
	if n.Parent == nil {
		return ""
	}
	idx, total := 0, 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if stepName(c) != name {
			continue
		}
		total++
		if c == n {
			idx = total
		}
	}
	if total > 1 {
		return "[" + strconv.Itoa(idx) + "]"
	}
	return ""
}

// Find resolves a path produced by XPath against root.
func Find(root *html.Node, path string) (*html.Node, error) {
	if root == nil {
		return nil, ErrNilNode
	}
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return root, nil
	}
	cur := root
	for _, step := range strings.Split(strings.Trim(path, "/"), "/") {
		name, idx, err := parseStep(step)
		if err != nil {
			return nil, fmt.Errorf("dom: xpath %q: %w", path, err)
		}
		var next *html.Node
		seen := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if stepName(c) != name {
				continue
			}
			seen++
			if seen == idx {
				next = c
				break
			}
		}
		if next == nil {
			return nil, fmt.Errorf("dom: xpath %q: no match for %s", path, step)
		}
		cur = next
	}
	return cur, nil
}

func parseStep(step string) (string, int, error) {
	open := strings.LastIndexByte(step, '[')
	if open < 0 || !strings.HasSuffix(step, "]") {
		return strings.ToLower(step), 1, nil
	}
	idx, err := strconv.Atoi(step[open+1 : len(step)-1])
	if err != nil || idx < 1 {
		return "", 0, fmt.Errorf("bad index in step %q", step)
	}
	return strings.ToLower(step[:open]), idx, nil
}
