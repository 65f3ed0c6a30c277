package segment

import (
	"regexp"
	"strings"
)

var (
	picTagRE = regexp.MustCompile(`(?i)\[Pic:\s*([^\]]+?)\s*\]`)

	// A tab or a dot run, widened over neighbouring spaces, tabs and dots
	// so "\t......." is one leader.
	leaderRE = regexp.MustCompile(`[ \t]*(?:\t|\.{2,})[ \t.]*`)

	scriptureRE = regexp.MustCompile(`\b[A-Za-z][A-Za-z.]+\s+\d+[:.]\d`)
)

// ImageTag is one inline [Pic: name] occurrence.
type ImageTag struct {
	Literal  string // Matched tag text exactly as written
	Filename string // Trimmed name inside the tag
}

// ExtractImages locates every inline image tag and returns them with the
// runs that remain once the tag spans are removed.
func ExtractImages(runs Runs) (Runs, []ImageTag) {
	text := Text(runs)
	matches := picTagRE.FindAllStringSubmatchIndex(text, -1)
	if matches == nil {
		return runs, nil
	}
	tags := make([]ImageTag, 0, len(matches))
	spans := make([][2]int, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, ImageTag{
			Literal:  text[m[0]:m[1]],
			Filename: strings.TrimSpace(text[m[2]:m[3]]),
		})
		spans = append(spans, [2]int{m[0], m[1]})
	}
	return Remove(runs, spans), tags
}

// SplitOnMarker cuts runs before every occurrence of token except one at
// the very start of the trimmed text. Each segment after the first begins
// with the token.
func SplitOnMarker(runs Runs, token string) []Runs {
	text := Text(runs)
	lead := len(text) - len(strings.TrimLeft(text, " \t\r\n\v\f"))

	var cuts []int
	for off := 0; ; {
		i := strings.Index(text[off:], token)
		if i < 0 {
			break
		}
		at := off + i
		if at != lead {
			cuts = append(cuts, at)
		}
		off = at + len(token)
	}
	if len(cuts) == 0 {
		return []Runs{runs}
	}

	segments := make([]Runs, 0, len(cuts)+1)
	prev := 0
	for _, at := range append(cuts, len(text)) {
		if piece := Cut(runs, prev, at); len(piece) > 0 {
			segments = append(segments, piece)
		}
		prev = at
	}
	return segments
}

// TitleRef is a heading label paired with a scripture citation.
type TitleRef struct {
	Left, Right         string // Trimmed plain text of each side
	LeftRuns, RightRuns Runs   // Trimmed runs of each side
}

// FindTitleRef splits runs at the first tab or dot leader when both sides
// are non-empty and the right side reads as a scripture reference.
func FindTitleRef(runs Runs) (TitleRef, bool) {
	text := Text(runs)
	loc := leaderRE.FindStringIndex(text)
	if loc == nil {
		return TitleRef{}, false
	}
	left := strings.TrimSpace(text[:loc[0]])
	right := strings.TrimSpace(text[loc[1]:])
	if left == "" || right == "" || !scriptureRE.MatchString(right) {
		return TitleRef{}, false
	}
	return TitleRef{
		Left:      left,
		Right:     right,
		LeftRuns:  Trim(Cut(runs, 0, loc[0])),
		RightRuns: Trim(Cut(runs, loc[1], len(text))),
	}, true
}
