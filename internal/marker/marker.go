// Package marker recognizes the bracketed structural tags of a manuscript.
package marker

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the structural marker a trimmed line starts with.
type Kind int

const (
	None Kind = iota
	Intro
	Section
	Chapter
	Note
	Poetry
	Responsive
	Table
	Unknown
)

// Literal marker tokens.
const (
	TokenIntro      = "[I]"
	TokenSection    = "[S]"
	TokenChapter    = "[Ch]"
	TokenNote       = "[N]"
	TokenPoetry     = "[P]"
	TokenResponsive = "[R]"
	TokenTable      = "[T]"
)

var tokens = map[string]Kind{
	TokenIntro:      Intro,
	TokenSection:    Section,
	TokenChapter:    Chapter,
	TokenNote:       Note,
	TokenPoetry:     Poetry,
	TokenResponsive: Responsive,
	TokenTable:      Table,
}

// The [Ch] token is case-sensitive like every other marker; only the
// heading word is not.
var chapterRE = regexp.MustCompile(`^(?:\[Ch\]\s*)?(?i:chapter)\s+(\d+)`)

var picPrefixRE = regexp.MustCompile(`(?i)^\[pic:`)

// Recognize classifies a trimmed line by its leading marker and returns
// the bracketed token it found, if any. A bare "Chapter N" heading is a
// Chapter marker with an empty token.
func Recognize(stripped string) (Kind, string) {
	if chapterRE.MatchString(stripped) && !strings.HasPrefix(stripped, TokenChapter) {
		return Chapter, ""
	}
	if !strings.HasPrefix(stripped, "[") {
		return None, ""
	}
	end := strings.Index(stripped, "]")
	if end < 0 {
		return None, ""
	}
	token := stripped[:end+1]
	if k, ok := tokens[token]; ok {
		return k, token
	}
	if picPrefixRE.MatchString(token) {
		return None, ""
	}
	return Unknown, token
}

// EndsAggregate reports whether the marker closes an open poetry,
// responsive or table aggregate.
func (k Kind) EndsAggregate() bool {
	switch k {
	case Section, Chapter, Note, Responsive, Table:
		return true
	}
	return false
}

// EndsNote reports whether the marker closes an open note.
func (k Kind) EndsNote() bool {
	return k.EndsAggregate() || k == Poetry
}

// OpensAggregate reports whether the marker starts a multi-line block.
func (k Kind) OpensAggregate() bool {
	switch k {
	case Poetry, Responsive, Table:
		return true
	}
	return false
}

// ChapterNumber extracts N from a "Chapter N" heading.
func ChapterNumber(stripped string) (int, bool) {
	m := chapterRE.FindStringSubmatch(stripped)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// StripToken removes a leading token and surrounding whitespace.
func StripToken(stripped, token string) string {
	if token == "" {
		return strings.TrimSpace(stripped)
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(stripped), token))
}
