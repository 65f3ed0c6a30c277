// Package segment splits a paragraph's styled runs into independently
// classifiable segments. All functions return new run lists and never
// modify their input.
package segment

import (
	"strings"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

// Runs is an ordered run sequence addressed by byte offset into its
// concatenated text.
type Runs = []doctree.StyledRun

// Text concatenates the run text.
func Text(runs Runs) string {
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.Text)
	}
	return sb.String()
}

// Cut returns the runs covering text offsets [start, end). Runs that
// straddle a bound are split with their style preserved; zero-length
// pieces are omitted.
func Cut(runs Runs, start, end int) Runs {
	if start < 0 {
		start = 0
	}
	var out Runs
	cursor := 0
	for _, r := range runs {
		runStart, runEnd := cursor, cursor+len(r.Text)
		cursor = runEnd
		lo, hi := max(start, runStart), min(end, runEnd)
		if lo >= hi {
			continue
		}
		piece := r
		piece.Text = r.Text[lo-runStart : hi-runStart]
		out = append(out, piece)
	}
	return out
}

// Split divides runs at a text offset.
func Split(runs Runs, at int) (before, after Runs) {
	total := len(Text(runs))
	return Cut(runs, 0, at), Cut(runs, at, total)
}

// Remove drops the text spans [start, end) given as ascending,
// non-overlapping pairs.
func Remove(runs Runs, spans [][2]int) Runs {
	var out Runs
	cursor := 0
	for _, s := range spans {
		out = append(out, Cut(runs, cursor, s[0])...)
		cursor = s[1]
	}
	return append(out, Cut(runs, cursor, len(Text(runs)))...)
}

// Trim removes whitespace surrounding the concatenated text, across run
// boundaries.
func Trim(runs Runs) Runs {
	text := Text(runs)
	start := len(text) - len(strings.TrimLeft(text, " \t\r\n\v\f"))
	end := len(strings.TrimRight(text, " \t\r\n\v\f"))
	if start >= end {
		return nil
	}
	return Cut(runs, start, end)
}

// StripPrefix removes a leading token that follows optional whitespace,
// then trims. Runs without the token are only trimmed.
func StripPrefix(runs Runs, token string) Runs {
	text := Text(runs)
	lead := len(text) - len(strings.TrimLeft(text, " \t\r\n\v\f"))
	if token == "" || !strings.HasPrefix(text[lead:], token) {
		return Trim(runs)
	}
	return Trim(Cut(runs, lead+len(token), len(text)))
}

// HasDistinguished reports whether any run carries the question color.
func HasDistinguished(runs Runs) bool {
	for _, r := range runs {
		if r.Distinguished && r.Text != "" {
			return true
		}
	}
	return false
}

// Restyle returns a single run of text carrying the style of ref.
func Restyle(ref doctree.StyledRun, text string) doctree.StyledRun {
	ref.Text = text
	return ref
}
