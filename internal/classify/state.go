package classify

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/dgallion1/brhcimport/internal/doctree"
	"github.com/dgallion1/brhcimport/internal/markup"
	"github.com/dgallion1/brhcimport/internal/segment"
)

type qaMode int

const (
	qaIdle qaMode = iota
	qaQuestion
	qaAnswer
)

func modeOf(r doctree.StyledRun) qaMode {
	if r.Distinguished {
		return qaQuestion
	}
	return qaAnswer
}

// lines accumulates a multi-paragraph block. A zero kind means closed.
type lines struct {
	kind      doctree.BlockType
	raw       []string
	markup    []string
	hasMarkup bool
}

func (l *lines) active() bool { return l.kind != "" }

func (l *lines) open(kind doctree.BlockType, runs segment.Runs) {
	*l = lines{kind: kind}
	l.add(runs)
}

func (l *lines) add(runs segment.Runs) {
	plain, m, has := markup.Serialize(runs)
	l.raw = append(l.raw, plain)
	l.markup = append(l.markup, m)
	l.hasMarkup = l.hasMarkup || has
}

func (l *lines) text() (raw, normalized string) {
	raw = strings.TrimSpace(strings.Join(l.raw, "\n"))
	if !l.hasMarkup {
		return raw, raw
	}
	return raw, strings.TrimSpace(strings.Join(l.markup, "\n"))
}

type state struct {
	opts Options
	log  *slog.Logger
	res  *Result
	para int

	intro        bool
	section      *string
	sectionOrder int
	chapter      *string
	chapterSeq   int // Ordinal of the current chapter, 0 when none
	chapterCount int
	order        int
	questionNo   int

	agg    lines
	note   lines
	qaMode qaMode
	qaRuns segment.Runs

	missing []string
}

func newState(opts Options) *state {
	return &state{
		opts:  opts,
		log:   opts.Logger,
		res:   &Result{},
		intro: true,
	}
}

// block stamps a new block with the current context and the next order.
func (s *state) block(typ doctree.BlockType, raw, normalized string) doctree.Block {
	s.order++
	return doctree.Block{
		Section:        s.section,
		Chapter:        s.chapter,
		Order:          s.order,
		Type:           typ,
		RawText:        raw,
		NormalizedText: normalized,
		ChapterSeq:     s.chapterSeq,
	}
}

func (s *state) emit(b doctree.Block) {
	s.res.Blocks = append(s.res.Blocks, b)
}

func (s *state) anomaly(kind doctree.AnomalyKind, msg string) {
	s.log.Warn("import anomaly", "kind", kind, "message", msg, "paragraph", s.para)
	s.res.Anomalies = append(s.res.Anomalies, doctree.Anomaly{Kind: kind, Message: msg})
}

func (s *state) flushAll() {
	s.flushNote()
	s.flushAggregate()
	s.flushQA()
}

func (s *state) flushAggregate() {
	agg := s.agg
	s.agg = lines{}
	if !agg.active() || len(agg.raw) == 0 {
		return
	}
	raw, normalized := agg.text()
	b := s.block(agg.kind, raw, normalized)

	switch agg.kind {
	case doctree.BlockPoetry:
		s.res.Counts.Poetry++
	case doctree.BlockResponsive:
		s.res.Counts.Responsive++
	case doctree.BlockTable:
		s.res.Counts.Tables++
		if rows, ok := markup.TableRows(agg.raw); ok {
			b.TableJSON = doctree.Str(marshal(rows))
			b.NormalizedText = markup.RenderTable(rows)
		} else {
			s.log.Debug("table rows uneven, rendering preformatted", "paragraph", s.para)
			b.NormalizedText = markup.RenderPre(raw)
		}
	}
	s.emit(b)
}

// table emits a native document table as one table block. Rows of
// unequal width are kept as preformatted text.
func (s *state) table(rows [][]string) {
	s.flushAll()
	if len(rows) == 0 {
		return
	}
	joined := make([]string, len(rows))
	for i, row := range rows {
		joined[i] = strings.Join(row, "\t")
	}
	raw := strings.Join(joined, "\n")
	if s.chapter == nil {
		s.anomaly(doctree.AnomalyOrphanTable, "table before chapter: "+excerpt(raw))
		return
	}

	b := s.block(doctree.BlockTable, raw, raw)
	if even(rows) {
		b.TableJSON = doctree.Str(marshal(rows))
		b.NormalizedText = markup.RenderTable(rows)
	} else {
		s.log.Debug("table rows uneven, rendering preformatted", "paragraph", s.para)
		b.NormalizedText = markup.RenderPre(raw)
	}
	s.emit(b)
	s.res.Counts.Tables++
}

func even(rows [][]string) bool {
	for _, row := range rows[1:] {
		if len(row) != len(rows[0]) {
			return false
		}
	}
	return true
}

func (s *state) flushNote() {
	note := s.note
	s.note = lines{}
	if !note.active() || len(note.raw) == 0 {
		return
	}
	raw, normalized := note.text()
	s.emit(s.block(doctree.BlockNote, raw, normalized))
	s.res.Counts.Notes++
}

func (s *state) flushQA() {
	mode, runs := s.qaMode, segment.Trim(s.qaRuns)
	s.qaMode, s.qaRuns = qaIdle, nil
	if mode == qaIdle || len(runs) == 0 {
		return
	}
	plain, m, has := markup.Serialize(runs)
	normalized := plain
	if has {
		normalized = m
	}
	if mode == qaAnswer {
		s.emit(s.block(doctree.BlockAnswer, plain, normalized))
		return
	}
	s.questionNo++
	b := s.block(doctree.BlockQuestion, plain, normalized)
	b.QuestionNumber = s.questionNo
	s.emit(b)
	s.res.Counts.Questions++
}

// marshal encodes v without HTML escaping so stored payloads keep the
// literal manuscript text.
func marshal(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Slices of strings and flat structs always encode.
	_ = enc.Encode(v)
	return strings.TrimSuffix(buf.String(), "\n")
}
