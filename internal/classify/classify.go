// Package classify turns a parsed manuscript into an ordered stream of
// typed content blocks. It is a single pass over the paragraphs with all
// buffering held in an explicit state value.
package classify

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/maruel/natural"

	"github.com/dgallion1/brhcimport/internal/doctree"
	"github.com/dgallion1/brhcimport/internal/marker"
	"github.com/dgallion1/brhcimport/internal/normalize"
	"github.com/dgallion1/brhcimport/internal/segment"
)

// Options controls classification.
type Options struct {
	// Strict rejects unknown bracketed markers instead of reading them as text.
	Strict bool
	// KnownImages is the lower-cased filename registry for [Pic:] tags.
	// A nil map disables the missing-file check.
	KnownImages map[string]bool
	Logger      *slog.Logger
}

// Counts are per-type totals of one classification pass.
type Counts struct {
	Sections   int `json:"sections"`
	Chapters   int `json:"chapters"`
	Questions  int `json:"questions"`
	Notes      int `json:"notes"`
	Poetry     int `json:"poetry"`
	Responsive int `json:"responsive"`
	Tables     int `json:"tables"`
	TitleRefs  int `json:"title_refs"`
	Images     int `json:"images"`
}

// Result is the output of one pass. Block IDs are left zero; the
// reconciler assigns them.
type Result struct {
	Blocks    []doctree.Block
	Sections  []doctree.Section
	Chapters  []doctree.Chapter
	Counts    Counts
	Anomalies []doctree.Anomaly
}

// UnknownMarkerError reports a bracketed token at the start of a line that
// is not part of the marker vocabulary.
type UnknownMarkerError struct {
	Token     string
	Paragraph int // Zero-based paragraph index
	Text      string
}

func (e *UnknownMarkerError) Error() string {
	return fmt.Sprintf("unknown structural marker %s in paragraph %d: %q", e.Token, e.Paragraph, e.Text)
}

// Classifier runs classification passes with fixed options.
type Classifier struct {
	opts Options
}

func New(opts Options) *Classifier {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Classifier{opts: opts}
}

// Run classifies every paragraph of doc in order.
func (c *Classifier) Run(doc doctree.Document) (*Result, error) {
	s := newState(c.opts)
	for i, p := range doc.Paragraphs {
		s.para = i
		if p.Table != nil {
			s.table(p.Table)
			continue
		}
		runs := normalize.Paragraph(p, doc.Defaults)

		runs, tags := segment.ExtractImages(runs)
		for _, tag := range tags {
			s.image(tag)
		}

		for _, seg := range segment.SplitOnMarker(runs, marker.TokenNote) {
			if err := s.step(seg); err != nil {
				return nil, err
			}
		}
	}
	s.finish()

	c.opts.Logger.Info("classified document",
		"title", doc.Title,
		"paragraphs", len(doc.Paragraphs),
		"blocks", len(s.res.Blocks),
		"anomalies", len(s.res.Anomalies),
	)
	return s.res, nil
}

// QuestionRows rebuilds the question projection from blocks. Numbers run
// 1..N per chapter in block order, and any manual numbering typed into the
// question text is dropped.
func QuestionRows(blocks []doctree.Block, chapters []doctree.Chapter) []doctree.QuestionRow {
	numbers := make(map[int]int)
	var rows []doctree.QuestionRow
	for _, b := range blocks {
		if b.Type != doctree.BlockQuestion {
			continue
		}
		numbers[b.ChapterSeq]++
		row := doctree.QuestionRow{
			BlockID:        b.ID,
			SectionTitle:   b.Section,
			ChapterTitle:   b.Chapter,
			QuestionNumber: numbers[b.ChapterSeq],
			QuestionText:   QuestionText(b.RawText),
		}
		if b.ChapterSeq > 0 && b.ChapterSeq <= len(chapters) {
			row.ChapterNumber = chapters[b.ChapterSeq-1].Number
		}
		rows = append(rows, row)
	}
	return rows
}

var (
	listNumberRE = regexp.MustCompile(`^\s*\d+[.)]\s*`)
	bareNumberRE = regexp.MustCompile(`^\s*\d+\s+`)
)

// QuestionText strips a leading "12." or "3)" list number, or a bare
// "12 " prefix, and collapses whitespace.
func QuestionText(text string) string {
	text = listNumberRE.ReplaceAllString(text, "")
	text = bareNumberRE.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}

func (s *state) finish() {
	s.flushAggregate()
	s.flushQA()
	s.flushNote()

	if len(s.missing) == 0 {
		return
	}
	seen := make(map[string]bool, len(s.missing))
	var names []string
	for _, name := range s.missing {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Sort(natural.StringSlice(names))
	s.anomaly(doctree.AnomalyUnknownImage, "missing [Pic] filenames in image registry: "+strings.Join(names, ", "))
}
