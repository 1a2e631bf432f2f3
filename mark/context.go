package mark

import (
	"regexp"
	"strings"

	htmlmd "github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	mdbase "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/glossmark/dom"
	"github.com/hazyhaar/glossmark/segment"
)

// Context window modes.
const (
	ContextWords    = "words"    // n words on each side of the mark
	ContextBlock    = "block"    // text of the enclosing block element
	ContextMarkdown = "markdown" // enclosing block converted to markdown
)

// DefaultContextWords is the window size of ContextWords.
const DefaultContextWords = 3

// ContextOptions select how a trigger's context is extracted.
type ContextOptions struct {
	Mode  string
	Words int
}

func (c *ContextOptions) defaults() {
	switch c.Mode {
	case ContextWords, ContextBlock, ContextMarkdown:
	default:
		c.Mode = ContextWords
	}
	if c.Words <= 0 {
		c.Words = DefaultContextWords
	}
}

var (
	sanitizer   = bluemonday.UGCPolicy()
	mdConverter = htmlmd.NewConverter(
		htmlmd.WithPlugins(
			mdbase.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

// contextFor extracts the context around the span running from the start of
// the first highlight to the end of the last one.
func contextFor(marks []*html.Node, opts ContextOptions) string {
	opts.defaults()
	if len(marks) == 0 {
		return ""
	}
	first, last := marks[0], marks[len(marks)-1]
	block := dom.ClosestBlock(dom.CommonAncestor(first, last))
	if block == nil {
		block = dom.ClosestElement(dom.Root(first))
	}
	if block == nil {
		return ""
	}

	switch opts.Mode {
	case ContextBlock:
		return CleanText(dom.TextContent(block))
	case ContextMarkdown:
		if md := Markdown(dom.InnerHTML(block)); md != "" {
			return md
		}
		return CleanText(dom.TextContent(block))
	}

	start, ok := dom.TextOffset(block, dom.Boundary{Node: first, Offset: 0})
	if !ok {
		return ""
	}
	end, ok := dom.TextOffset(block, dom.Boundary{Node: last, Offset: len(dom.Children(last))})
	if !ok || end <= start {
		return ""
	}
	text := dom.TextContent(block)
	runs := segment.Split(text)
	lo, hi, ok := segment.Covering(runs, start, end)
	if !ok {
		return ""
	}
	ws, we := segment.Window(runs, lo, hi, opts.Words)
	return CleanText(segment.Slice(text, ws, we))
}

// Markdown sanitises an HTML fragment and converts it to markdown. It
// returns "" when conversion fails.
func Markdown(fragment string) string {
	clean := sanitizer.Sanitize(fragment)
	out, err := mdConverter.ConvertString(clean)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

var multiSpaceRe = regexp.MustCompile(`\s+`)

// CleanText strips zero-width characters, collapses whitespace and trims.
func CleanText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\ufeff', '\u00ad':
			return -1
		}
		return r
	}, text)
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(text, " "))
}
