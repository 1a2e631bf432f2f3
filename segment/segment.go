// Package segment splits text into runs of letters. Every other rune
// (space, punctuation, digit, symbol) becomes a run of its own.
//
// Offsets are rune indices into the source string and spans are half-open.
package segment

import "unicode"

// Run is one span of the source text.
type Run struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Len returns the rune length of the run.
func (r Run) Len() int { return r.End - r.Start }

// IsWord reports whether the run is a non-empty run of alphabetic runes.
func (r Run) IsWord() bool {
	if r.Text == "" {
		return false
	}
	for _, c := range r.Text {
		if !isAlpha(c) {
			return false
		}
	}
	return true
}

// isAlpha reports whether c has the Unicode Alphabetic property: letters,
// letter numbers and combining marks such as Indic vowel signs.
func isAlpha(c rune) bool {
	return unicode.IsLetter(c) || unicode.Is(unicode.Nl, c) || unicode.Is(unicode.Other_Alphabetic, c)
}

// Contains reports whether offset falls inside [Start, End).
func (r Run) Contains(offset int) bool {
	return offset >= r.Start && offset < r.End
}

// Word is a letter run located inside its source text.
type Word struct {
	Run
	// Ordinal is the index of the run among all runs of the source text.
	Ordinal int `json:"ordinal"`
}

// Split scans text once. A run grows while both the previous and the
// current rune are alphabetic.
func Split(text string) []Run {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	runs := make([]Run, 0, len(runes)/4+1)
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && isAlpha(runes[i-1]) && isAlpha(runes[i]) {
			continue
		}
		runs = append(runs, Run{Start: start, End: i, Text: string(runes[start:i])})
		start = i
	}
	return runs
}

// At returns the index of the run containing offset. A boundary offset
// belongs to the run that starts there.
func At(runs []Run, offset int) (int, bool) {
	lo, hi := 0, len(runs)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case offset < runs[mid].Start:
			hi = mid
		case offset >= runs[mid].End:
			lo = mid + 1
		default:
			return mid, true
		}
	}
	return -1, false
}

// WordAt segments text and returns the letter run containing offset.
func WordAt(text string, offset int) (Word, bool) {
	runs := Split(text)
	i, ok := At(runs, offset)
	if !ok || !runs[i].IsWord() {
		return Word{}, false
	}
	return Word{Run: runs[i], Ordinal: i}, true
}

// Window returns the rune span covering up to n letter runs on each side of
// the runs in [first, last]. With n <= 0 the span of the runs themselves is
// returned.
func Window(runs []Run, first, last, n int) (start, end int) {
	if len(runs) == 0 || first < 0 || last >= len(runs) || first > last {
		return 0, 0
	}
	start, end = runs[first].Start, runs[last].End
	for i, seen := first-1, 0; i >= 0 && seen < n; i-- {
		start = runs[i].Start
		if runs[i].IsWord() {
			seen++
		}
	}
	for i, seen := last+1, 0; i < len(runs) && seen < n; i++ {
		end = runs[i].End
		if runs[i].IsWord() {
			seen++
		}
	}
	return start, end
}

// Covering returns the indices of the first and last runs intersecting the
// half-open span [start, end).
func Covering(runs []Run, start, end int) (first, last int, ok bool) {
	first, last = -1, -1
	for i, r := range runs {
		if r.End <= start || r.Start >= end {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	return first, last, first >= 0
}

// Slice returns the runes of s in [start, end), clamped to the string.
func Slice(s string, start, end int) string {
	runes := []rune(s)
	if start < 0 {
		start = 0
	}
	if end > len(runes) {
		end = len(runes)
	}
	if start >= end {
		return ""
	}
	return string(runes[start:end])
}

// Len returns the number of runes in s.
func Len(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}
