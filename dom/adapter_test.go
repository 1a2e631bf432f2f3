package dom

import (
	"errors"
	"testing"

	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/mutation"
)

func mustParse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func mustFind(t *testing.T, doc *html.Node, path string) *html.Node {
	t.Helper()
	n, err := Find(doc, path)
	if err != nil {
		t.Fatalf("find %s: %v", path, err)
	}
	return n
}

func TestReplaceChild_Journal(t *testing.T) {
	doc := mustParse(t, "<p>I like cats</p>")
	var recs []mutation.Record
	tree := NewTree(doc, WithRecorder(func(r mutation.Record) { recs = append(recs, r) }))

	text := mustFind(t, doc, "/html/body/p/text()")
	span := tree.CreateElement("span")
	if err := tree.InsertBefore(span, tree.CreateText("I like cats"), nil); err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Fatalf("detached write journaled: %+v", recs)
	}

	if err := tree.ReplaceChild(text.Parent, span, text); err != nil {
		t.Fatal(err)
	}
	if got := Render(mustFind(t, doc, "/html/body/p")); got != "<p><span>I like cats</span></p>" {
		t.Errorf("render = %s", got)
	}
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].Op != mutation.OpRemove || recs[0].XPath != "/html/body/p/text()" {
		t.Errorf("remove record = %+v", recs[0])
	}
	if recs[1].Op != mutation.OpInsert || recs[1].XPath != "/html/body/p/span" || recs[1].HTML != "<span>I like cats</span>" {
		t.Errorf("insert record = %+v", recs[1])
	}
}

func TestReplaceChild_Errors(t *testing.T) {
	doc := mustParse(t, "<p>a</p><div>b</div>")
	tree := NewTree(doc)
	p := mustFind(t, doc, "/html/body/p")
	div := mustFind(t, doc, "/html/body/div")
	text := p.FirstChild

	if err := tree.ReplaceChild(div, tree.CreateText("x"), text); !errors.Is(err, ErrNotChild) {
		t.Errorf("wrong parent: err = %v, want ErrNotChild", err)
	}
	if err := tree.ReplaceChild(p, div, text); !errors.Is(err, ErrAttached) {
		t.Errorf("attached new child: err = %v, want ErrAttached", err)
	}
	if err := tree.ReplaceChild(p, nil, text); !errors.Is(err, ErrNilNode) {
		t.Errorf("nil child: err = %v, want ErrNilNode", err)
	}
	if TextContent(p) != "a" {
		t.Errorf("failed writes changed the tree: %q", TextContent(p))
	}
}

func TestInsertBefore_RejectsCycle(t *testing.T) {
	tree := NewTree(nil)
	outer := tree.CreateElement("span")
	inner := tree.CreateElement("mark")
	if err := tree.InsertBefore(outer, inner, nil); err != nil {
		t.Fatal(err)
	}
	detached := tree.CreateElement("b")
	if err := tree.InsertBefore(detached, outer, nil); err != nil {
		t.Fatal(err)
	}
	if err := tree.RemoveChild(detached, outer); err != nil {
		t.Fatal(err)
	}
	if err := tree.InsertBefore(inner, outer, nil); !errors.Is(err, ErrCycle) {
		t.Errorf("err = %v, want ErrCycle", err)
	}
}

func TestAttributes(t *testing.T) {
	doc := mustParse(t, `<p><mark>w</mark></p>`)
	var recs []mutation.Record
	tree := NewTree(doc, WithRecorder(func(r mutation.Record) { recs = append(recs, r) }))
	mark := mustFind(t, doc, "/html/body/p/mark")

	if err := tree.SetAttr(mark, "data-x", "0"); err != nil {
		t.Fatal(err)
	}
	if err := tree.SetAttr(mark, "data-x", "1"); err != nil {
		t.Fatal(err)
	}
	if err := tree.SetAttr(mark, "data-x", "1"); err != nil {
		t.Fatal(err)
	}
	if v, _ := Attr(mark, "data-x"); v != "1" {
		t.Errorf("data-x = %q", v)
	}
	if err := tree.RemoveAttr(mark, "data-x"); err != nil {
		t.Fatal(err)
	}
	if HasAttr(mark, "data-x") {
		t.Error("attribute still present")
	}
	if err := tree.RemoveAttr(mark, "data-x"); err != nil {
		t.Errorf("removing a missing attribute: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3 (unchanged writes are not journaled)", len(recs))
	}
	if recs[1].OldValue != "0" || recs[2].Op != mutation.OpAttrDel {
		t.Errorf("records = %+v", recs)
	}

	if err := tree.SetAttr(mark.FirstChild, "k", "v"); !errors.Is(err, ErrNotElement) {
		t.Errorf("text node attr: err = %v, want ErrNotElement", err)
	}
}
