package classify

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/brhcimport/internal/doctree"
	"github.com/dgallion1/brhcimport/internal/markup"
	"github.com/dgallion1/brhcimport/internal/marker"
	"github.com/dgallion1/brhcimport/internal/segment"
)

func aggregateType(k marker.Kind) doctree.BlockType {
	switch k {
	case marker.Poetry:
		return doctree.BlockPoetry
	case marker.Responsive:
		return doctree.BlockResponsive
	}
	return doctree.BlockTable
}

// step dispatches one segment. Branch order matters: open aggregates and
// notes see every segment before any marker handling.
func (s *state) step(runs segment.Runs) error {
	stripped := strings.TrimSpace(segment.Text(runs))
	kind, token := marker.Recognize(stripped)

	if s.agg.active() {
		if !kind.EndsAggregate() {
			s.agg.add(runs)
			return nil
		}
		s.flushAggregate()
	}

	if s.note.active() {
		if !kind.EndsNote() && !segment.HasDistinguished(runs) {
			s.note.add(runs)
			return nil
		}
		s.flushNote()
	}

	if stripped == "" {
		if s.qaMode != qaIdle && len(s.qaRuns) > 0 {
			s.qaRuns = append(s.qaRuns, segment.Restyle(s.qaRuns[len(s.qaRuns)-1], "\n"))
		}
		return nil
	}

	if kind == marker.Unknown {
		if s.opts.Strict {
			return &UnknownMarkerError{Token: token, Paragraph: s.para, Text: excerpt(stripped)}
		}
		s.log.Debug("unknown marker read as text", "token", token, "paragraph", s.para)
		kind, token = marker.None, ""
	}

	switch kind {
	case marker.Chapter:
		s.openChapter(stripped, token)
		return nil
	case marker.Section:
		s.openSection(stripped)
		return nil
	}

	if s.intro {
		s.introBlock(runs, kind)
		return nil
	}

	if s.chapter == nil {
		if segment.HasDistinguished(runs) {
			s.anomaly(doctree.AnomalyOrphanQuestion, "orphan question before chapter: "+excerpt(stripped))
		}
		return nil
	}

	if kind.OpensAggregate() {
		s.flushQA()
		s.agg.open(aggregateType(kind), segment.StripPrefix(runs, token))
		return nil
	}
	if kind == marker.Note {
		s.flushQA()
		s.note.open(doctree.BlockNote, segment.Trim(runs))
		return nil
	}

	if ref, ok := segment.FindTitleRef(runs); ok {
		s.flushNote()
		s.flushQA()
		s.titleRef(ref)
		return nil
	}

	s.bufferQA(runs)
	return nil
}

func (s *state) openChapter(stripped, token string) {
	s.flushAll()

	title := marker.StripToken(stripped, token)
	s.chapterCount++
	number, ok := marker.ChapterNumber(stripped)
	if !ok {
		number = s.chapterCount
	}

	s.chapter = &title
	s.chapterSeq = s.chapterCount
	s.order = 0
	s.questionNo = 0
	s.intro = false

	s.res.Chapters = append(s.res.Chapters, doctree.Chapter{
		Title:        title,
		OrderIndex:   s.chapterSeq,
		Number:       number,
		SectionOrder: s.sectionOrder,
	})
	s.res.Counts.Chapters++
	s.emit(doctree.Block{
		Section:        s.section,
		Chapter:        s.chapter,
		Type:           doctree.BlockChapter,
		RawText:        title,
		NormalizedText: title,
		ChapterSeq:     s.chapterSeq,
	})
}

func (s *state) openSection(stripped string) {
	s.flushAll()

	title := marker.StripToken(stripped, marker.TokenSection)
	s.sectionOrder++
	s.section = &title
	s.chapter = nil
	s.chapterSeq = 0
	s.order = 0
	s.questionNo = 0
	s.intro = false

	s.res.Sections = append(s.res.Sections, doctree.Section{Title: title, OrderIndex: s.sectionOrder})
	s.res.Counts.Sections++
	s.emit(doctree.Block{
		Section:        s.section,
		Type:           doctree.BlockSection,
		RawText:        title,
		NormalizedText: title,
	})
}

func (s *state) introBlock(runs segment.Runs, kind marker.Kind) {
	s.flushNote()
	s.flushQA()

	if kind == marker.Intro {
		runs = segment.StripPrefix(runs, marker.TokenIntro)
	} else {
		runs = segment.Trim(runs)
	}
	plain, m, has := markup.Serialize(runs)
	if plain == "" {
		return
	}
	normalized := plain
	if has {
		normalized = m
	}

	typ := doctree.BlockIntroParagraph
	if isHeading(plain) {
		typ = doctree.BlockIntroHeading
	}
	b := s.block(typ, plain, normalized)
	b.Section, b.Chapter = nil, nil
	s.emit(b)
}

func (s *state) titleRef(ref segment.TitleRef) {
	left := markup.Normalized(ref.LeftRuns)
	right := markup.Normalized(ref.RightRuns)
	b := s.block(doctree.BlockTitleRef, ref.Left+"\n"+ref.Right, left+"\n"+right)
	b.TableJSON = doctree.Str(marshal(struct {
		Left  string `json:"left"`
		Right string `json:"right"`
	}{ref.Left, ref.Right}))
	s.emit(b)
	s.res.Counts.TitleRefs++
}

// bufferQA appends runs to the question/answer buffer, flushing on every
// change between question and answer text.
func (s *state) bufferQA(runs segment.Runs) {
	if len(runs) == 0 {
		return
	}
	if s.qaMode != qaIdle && len(s.qaRuns) > 0 {
		if s.qaMode == modeOf(runs[0]) {
			s.qaRuns = append(s.qaRuns, segment.Restyle(s.qaRuns[len(s.qaRuns)-1], "\n"))
		} else {
			s.flushQA()
		}
	}
	for _, r := range runs {
		mode := modeOf(r)
		// Whitespace between runs stays with the open block.
		if s.qaMode != qaIdle && strings.TrimSpace(r.Text) == "" {
			mode = s.qaMode
		}
		if s.qaMode != mode {
			s.flushQA()
			s.qaMode = mode
		}
		s.qaRuns = append(s.qaRuns, r)
	}
}

func (s *state) image(tag segment.ImageTag) {
	if tag.Filename == "" {
		return
	}
	if s.opts.KnownImages != nil && !s.opts.KnownImages[strings.ToLower(tag.Filename)] {
		s.missing = append(s.missing, tag.Filename)
	}
	if s.chapter == nil {
		s.anomaly(doctree.AnomalyOrphanImage, "image tag before chapter: "+tag.Literal)
		return
	}
	s.flushQA()
	s.emit(s.block(doctree.BlockImage, tag.Literal, tag.Literal))
	s.res.Counts.Images++
}

// isHeading reports whether the letters of text are all upper case.
func isHeading(text string) bool {
	letters := 0
	for _, r := range text {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters > 0
}

func excerpt(s string) string {
	const limit = 80
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
