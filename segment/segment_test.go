package segment

import (
	"strings"
	"testing"
)

func TestSplit_Concatenation(t *testing.T) {
	inputs := []string{
		"",
		"I like cats and dogs",
		"état-major, 42 œufs!",
		"  leading and trailing  ",
		"日本語のテキスト",
		"a1b2c3",
		"emoji 🙂 here",
	}
	for _, in := range inputs {
		runs := Split(in)
		var b strings.Builder
		pos := 0
		for i, r := range runs {
			if r.Start != pos {
				t.Fatalf("%q: run %d starts at %d, want %d", in, i, r.Start, pos)
			}
			if r.End <= r.Start {
				t.Fatalf("%q: run %d is empty", in, i)
			}
			if Len(r.Text) != r.Len() {
				t.Fatalf("%q: run %d text %q does not match span", in, i, r.Text)
			}
			b.WriteString(r.Text)
			pos = r.End
		}
		if b.String() != in {
			t.Errorf("concatenation = %q, want %q", b.String(), in)
		}
		if pos != Len(in) {
			t.Errorf("%q: runs end at %d, want %d", in, pos, Len(in))
		}
	}
}

func TestSplit_MaximalLetterRuns(t *testing.T) {
	runs := Split("état-major, 42 œufs!")
	var words []string
	for _, r := range runs {
		if r.IsWord() {
			words = append(words, r.Text)
		} else if Len(r.Text) != 1 {
			t.Errorf("non-letter run %q has more than one rune", r.Text)
		}
	}
	want := []string{"état", "major", "œufs"}
	if strings.Join(words, "|") != strings.Join(want, "|") {
		t.Errorf("words = %v, want %v", words, want)
	}
}

func TestAt_Boundaries(t *testing.T) {
	runs := Split("I like cats and dogs")
	tests := []struct {
		offset int
		want   string
		ok     bool
	}{
		{0, "I", true},
		{1, " ", true},
		{2, "like", true},
		{5, "like", true},
		{6, " ", true},
		{7, "cats", true},
		{10, "cats", true},
		{11, " ", true},
		{19, "dogs", true},
		{20, "", false},
		{-1, "", false},
	}
	for _, tt := range tests {
		i, ok := At(runs, tt.offset)
		if ok != tt.ok {
			t.Fatalf("At(%d) ok = %v, want %v", tt.offset, ok, tt.ok)
		}
		if ok && runs[i].Text != tt.want {
			t.Errorf("At(%d) = %q, want %q", tt.offset, runs[i].Text, tt.want)
		}
	}
}

func TestWordAt(t *testing.T) {
	w, ok := WordAt("I like cats and dogs", 7)
	if !ok {
		t.Fatal("expected a word at offset 7")
	}
	if w.Start != 7 || w.End != 11 || w.Text != "cats" || w.Ordinal != 4 {
		t.Errorf("word = %+v, want cats [7,11) ordinal 4", w)
	}

	if _, ok := WordAt("I like cats and dogs", 6); ok {
		t.Error("space must not be a word")
	}
	if _, ok := WordAt("room 101", 6); ok {
		t.Error("digit must not be a word")
	}
}

func TestSplit_CombiningMarks(t *testing.T) {
	// Devanagari vowel signs are alphabetic but not letters.
	text := "मेरी किताब"
	runs := Split(text)
	if len(runs) != 3 || runs[2].Text != "किताब" || !runs[2].IsWord() {
		t.Fatalf("runs = %+v", runs)
	}
	if got := Split("किताब"); len(got) != 1 {
		t.Errorf("Split(किताब) = %d runs, want 1", len(got))
	}
	w, ok := WordAt("किताब", 1)
	if !ok || w.Text != "किताब" || w.Start != 0 || w.End != 5 {
		t.Errorf("word = %+v, %v", w, ok)
	}
}

func TestWindow(t *testing.T) {
	text := "one two three four five six seven"
	runs := Split(text)
	i, _ := At(runs, 14) // "four"
	start, end := Window(runs, i, i, 2)
	if got := Slice(text, start, end); got != "two three four five six" {
		t.Errorf("window = %q", got)
	}

	start, end = Window(runs, i, i, 0)
	if got := Slice(text, start, end); got != "four" {
		t.Errorf("zero window = %q", got)
	}

	start, end = Window(runs, 0, 0, 10)
	if got := Slice(text, start, end); got != text {
		t.Errorf("wide window = %q", got)
	}
}

func TestCovering(t *testing.T) {
	runs := Split("ab cd ef")
	first, last, ok := Covering(runs, 1, 4)
	if !ok || runs[first].Text != "ab" || runs[last].Text != "cd" {
		t.Errorf("Covering = %d,%d,%v", first, last, ok)
	}
	if _, _, ok := Covering(runs, 8, 9); ok {
		t.Error("span past the end must not cover anything")
	}
}
