package fetcher

import (
	"bytes"
	"strings"
)

var spaIndicators = [][]byte{
	[]byte(`<div id="root"></div>`),
	[]byte(`<div id="app"></div>`),
	[]byte(`<div id="__next"></div>`),
	[]byte("<noscript>you need to enable javascript"),
	[]byte("<noscript>enable javascript"),
}

// IsSufficient reports whether the HTML has enough visible text relative to
// markup to be annotated without running scripts. minText is the minimum
// count of non-space text bytes.
func IsSufficient(html []byte, minText int) bool {
	if len(html) < 256 {
		return false
	}

	textLen, markupLen := textMarkupRatio(html)
	total := textLen + markupLen
	if total == 0 {
		return false
	}

	// Under 10% text is likely an SPA shell.
	if float64(textLen)/float64(total) < 0.10 {
		return false
	}
	if textLen < minText {
		return false
	}

	lower := bytes.ToLower(html)
	for _, ind := range spaIndicators {
		if bytes.Contains(lower, ind) {
			return false
		}
	}
	return true
}

// textMarkupRatio computes the approximate byte count of text vs markup.
// Script and style bodies count as markup.
func textMarkupRatio(html []byte) (text, markup int) {
	s := string(html)
	inTag := false
	for i := 0; i < len(s); {
		ch := s[i]
		if ch == '<' {
			if n, ok := rawElement(s[i:]); ok {
				markup += n
				i += n
				continue
			}
			inTag = true
			markup++
		} else if ch == '>' {
			inTag = false
			markup++
		} else if inTag {
			markup++
		} else if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			text++
		}
		i++
	}
	return text, markup
}

// rawElement returns the length of a script or style element starting at
// the beginning of s, up to the end of s when it is unterminated.
func rawElement(s string) (int, bool) {
	head := strings.ToLower(s[:min(len(s), 7)])
	for _, tag := range []string{"script", "style"} {
		if !strings.HasPrefix(head, "<"+tag) {
			continue
		}
		end := strings.Index(strings.ToLower(s), "</"+tag)
		if end == -1 {
			return len(s), true
		}
		gt := strings.IndexByte(s[end:], '>')
		if gt == -1 {
			return len(s), true
		}
		return end + gt + 1, true
	}
	return 0, false
}
