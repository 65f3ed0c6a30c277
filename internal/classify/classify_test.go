package classify

import (
	"errors"
	"strings"
	"testing"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

func txt(s string) doctree.Run { return doctree.Run{Text: s} }
func blue(s string) doctree.Run { return doctree.Run{Text: s, Color: "0000FF"} }

func para(runs ...doctree.Run) doctree.Paragraph { return doctree.Paragraph{Runs: runs} }
func line(s string) doctree.Paragraph { return para(txt(s)) }

func classify(t *testing.T, opts Options, paras ...doctree.Paragraph) *Result {
	t.Helper()
	res, err := New(opts).Run(doctree.Document{Title: "test", Paragraphs: paras})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func strict() Options { return Options{Strict: true} }

func types(blocks []doctree.Block) []doctree.BlockType {
	out := make([]doctree.BlockType, len(blocks))
	for i, b := range blocks {
		out[i] = b.Type
	}
	return out
}

func expectTypes(t *testing.T, blocks []doctree.Block, want ...doctree.BlockType) {
	t.Helper()
	got := types(blocks)
	if len(got) != len(want) {
		t.Fatalf("expected types %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected types %v, got %v", want, got)
		}
	}
}

func TestRun_QuestionAnswerAlternation(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1 Creation"),
		para(blue("What is sin?"), txt("Sin is transgression of law.")),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockQuestion, doctree.BlockAnswer)

	q, a := res.Blocks[1], res.Blocks[2]
	if q.RawText != "What is sin?" || q.QuestionNumber != 1 || q.Order != 1 {
		t.Errorf("unexpected question %+v", q)
	}
	if a.RawText != "Sin is transgression of law." || a.Order != 2 {
		t.Errorf("unexpected answer %+v", a)
	}
	if doctree.Deref(q.Chapter) != "Chapter 1 Creation" {
		t.Errorf("unexpected chapter title %q", doctree.Deref(q.Chapter))
	}
	if res.Counts.Questions != 1 || res.Counts.Chapters != 1 {
		t.Errorf("unexpected counts %+v", res.Counts)
	}
}

func TestRun_TitleReference(t *testing.T) {
	res := classify(t, strict(),
		line("[Ch] Chapter 1"),
		line("The Creation\t.......Genesis 1:1"),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockTitleRef)
	b := res.Blocks[1]
	if b.RawText != "The Creation\nGenesis 1:1" {
		t.Errorf("unexpected raw text %q", b.RawText)
	}
	if b.TableJSON == nil || *b.TableJSON != `{"left":"The Creation","right":"Genesis 1:1"}` {
		t.Errorf("unexpected payload %v", doctree.Deref(b.TableJSON))
	}
	if res.Counts.TitleRefs != 1 {
		t.Errorf("expected 1 title ref, got %d", res.Counts.TitleRefs)
	}
}

func TestRun_QuestionNumberingPerChapter(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		para(blue("Q1?")), line("A1."),
		para(blue("Q2?")), line("A2."),
		line("Chapter 2"),
		para(blue("Q1 again?")), line("A."),
	)
	var numbers []int
	for _, b := range res.Blocks {
		if b.Type == doctree.BlockQuestion {
			numbers = append(numbers, b.QuestionNumber)
		}
	}
	if want := []int{1, 2, 1}; len(numbers) != 3 || numbers[0] != want[0] || numbers[1] != want[1] || numbers[2] != want[2] {
		t.Errorf("expected numbers %v, got %v", want, numbers)
	}

	rows := QuestionRows(res.Blocks, res.Chapters)
	if len(rows) != 3 {
		t.Fatalf("expected 3 question rows, got %d", len(rows))
	}
	if rows[2].ChapterNumber != 2 || rows[2].QuestionNumber != 1 || rows[2].QuestionText != "Q1 again?" {
		t.Errorf("unexpected row %+v", rows[2])
	}
}

func TestRun_OrderMonotonicPerChapter(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		para(blue("Q?")), line("A."),
		line("[P] verse"),
		line("[N] note"),
		line("Chapter 2"),
		para(blue("Q?")),
	)
	last := map[int]int{}
	for _, b := range res.Blocks {
		if b.Type == doctree.BlockChapter {
			if b.Order != 0 {
				t.Errorf("chapter heading should carry order 0, got %d", b.Order)
			}
			last[b.ChapterSeq] = 0
			continue
		}
		if prev, ok := last[b.ChapterSeq]; ok && b.Order != prev+1 {
			t.Errorf("block %s: expected order %d, got %d", b.Type, prev+1, b.Order)
		}
		last[b.ChapterSeq] = b.Order
	}
	if res.Blocks[len(res.Blocks)-1].Order != 1 {
		t.Error("expected order to restart at 1 in chapter 2")
	}
}

func TestRun_PoetryThenNote(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		line("[P] The Lord is my shepherd"),
		line("  I shall not want."),
		line("[N] A note"),
		line("note continues"),
		para(blue("Q?")),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockPoetry, doctree.BlockNote, doctree.BlockQuestion)
	if got := res.Blocks[1].RawText; got != "The Lord is my shepherd\n  I shall not want." {
		t.Errorf("unexpected poetry %q", got)
	}
	if got := res.Blocks[2].RawText; got != "[N] A note\nnote continues" {
		t.Errorf("unexpected note %q", got)
	}
}

func TestRun_EmbeddedNoteSplitsParagraph(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		para(blue("What is faith?"), txt(" [N] See Hebrews.")),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockQuestion, doctree.BlockNote)
	if res.Blocks[1].RawText != "What is faith?" {
		t.Errorf("unexpected question %q", res.Blocks[1].RawText)
	}
	if res.Blocks[2].RawText != "[N] See Hebrews." {
		t.Errorf("unexpected note %q", res.Blocks[2].RawText)
	}
}

func TestRun_Tables(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		line("[T] Day|Reading"),
		line("Sunday|Psalm 23"),
		line(""),
		line("Monday|Psalm 24"),
		line("[T] a|b|c"),
		line("d|e"),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockTable, doctree.BlockTable)

	good := res.Blocks[1]
	if good.TableJSON == nil || *good.TableJSON != `[["Day","Reading"],["Sunday","Psalm 23"],["Monday","Psalm 24"]]` {
		t.Errorf("unexpected table json %v", doctree.Deref(good.TableJSON))
	}
	if !strings.HasPrefix(good.NormalizedText, "<table><tr><td>Day</td>") {
		t.Errorf("unexpected table html %q", good.NormalizedText)
	}

	bad := res.Blocks[2]
	if bad.TableJSON != nil {
		t.Error("expected no table json for uneven rows")
	}
	if bad.NormalizedText != "<pre>a|b|c\nd|e</pre>" {
		t.Errorf("unexpected fallback %q", bad.NormalizedText)
	}
	if res.Counts.Tables != 2 {
		t.Errorf("expected 2 tables, got %d", res.Counts.Tables)
	}
}

func TestRun_IntroSectionAndOrphans(t *testing.T) {
	res := classify(t, strict(),
		line("[I] PREFACE"),
		line("Some lead-in prose."),
		line("[S] Old Testament"),
		line("stray text"),
		para(blue("orphan?")),
		line("[Ch] Chapter 1 Genesis"),
	)
	expectTypes(t, res.Blocks,
		doctree.BlockIntroHeading, doctree.BlockIntroParagraph, doctree.BlockSection, doctree.BlockChapter)

	if res.Blocks[0].RawText != "PREFACE" || res.Blocks[0].Chapter != nil || res.Blocks[0].Section != nil {
		t.Errorf("unexpected intro heading %+v", res.Blocks[0])
	}
	if doctree.Deref(res.Blocks[3].Section) != "Old Testament" {
		t.Errorf("expected chapter in section, got %q", doctree.Deref(res.Blocks[3].Section))
	}
	if len(res.Chapters) != 1 || res.Chapters[0].SectionOrder != 1 || res.Chapters[0].Number != 1 {
		t.Errorf("unexpected chapters %+v", res.Chapters)
	}
	if len(res.Anomalies) != 1 || res.Anomalies[0].Kind != doctree.AnomalyOrphanQuestion {
		t.Errorf("expected one orphan anomaly, got %+v", res.Anomalies)
	}
}

func TestRun_UnknownMarker(t *testing.T) {
	paras := []doctree.Paragraph{line("Chapter 1"), line("[X] mystery")}

	_, err := New(strict()).Run(doctree.Document{Paragraphs: paras})
	var umErr *UnknownMarkerError
	if !errors.As(err, &umErr) {
		t.Fatalf("expected UnknownMarkerError, got %v", err)
	}
	if umErr.Token != "[X]" || umErr.Paragraph != 1 {
		t.Errorf("unexpected error fields %+v", umErr)
	}

	res := classify(t, Options{}, paras...)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockAnswer)
	if res.Blocks[1].RawText != "[X] mystery" {
		t.Errorf("expected lenient mode to keep text, got %q", res.Blocks[1].RawText)
	}
}

func TestRun_Images(t *testing.T) {
	opts := Options{Strict: true, KnownImages: map[string]bool{"tree.png": true}}
	res := classify(t, opts,
		line("[Pic: early.png]"),
		line("Chapter 1"),
		line("See [Pic: map10.png] here [Pic: Tree.png]"),
		line("[Pic: map9.png]"),
	)
	// Tags precede the text of their own paragraph but follow any answer
	// buffered from earlier paragraphs.
	expectTypes(t, res.Blocks,
		doctree.BlockChapter, doctree.BlockImage, doctree.BlockImage, doctree.BlockAnswer, doctree.BlockImage)
	if got := res.Blocks[3].RawText; got != "See  here" {
		t.Errorf("unexpected answer text %q", got)
	}
	if res.Blocks[1].RawText != "[Pic: map10.png]" || res.Blocks[1].NormalizedText != "[Pic: map10.png]" {
		t.Errorf("unexpected image block %+v", res.Blocks[1])
	}
	if res.Blocks[4].RawText != "[Pic: map9.png]" {
		t.Errorf("expected last image after the answer, got %+v", res.Blocks[4])
	}
	for i := 2; i < len(res.Blocks); i++ {
		if res.Blocks[i].Order <= res.Blocks[i-1].Order {
			t.Errorf("block %d order %d does not follow %d", i, res.Blocks[i].Order, res.Blocks[i-1].Order)
		}
	}
	if res.Counts.Images != 3 {
		t.Errorf("expected 3 images, got %d", res.Counts.Images)
	}

	var orphan, missing string
	for _, a := range res.Anomalies {
		switch a.Kind {
		case doctree.AnomalyOrphanImage:
			orphan = a.Message
		case doctree.AnomalyUnknownImage:
			missing = a.Message
		}
	}
	if !strings.Contains(orphan, "early.png") {
		t.Errorf("expected orphan image anomaly, got %q", orphan)
	}
	if !strings.HasSuffix(missing, "early.png, map9.png, map10.png") {
		t.Errorf("expected naturally sorted missing names, got %q", missing)
	}
}

func TestRun_MarkupAndParagraphBreaks(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		para(blue("Line one")),
		para(),
		para(blue("Line two")),
		para(txt("Sin is "), doctree.Run{Text: "transgression", Italic: doctree.On}),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockQuestion, doctree.BlockAnswer)
	if got := res.Blocks[1].RawText; got != "Line one\n\nLine two" {
		t.Errorf("unexpected merged question %q", got)
	}
	if got := res.Blocks[2].NormalizedText; got != "Sin is <em>transgression</em>" {
		t.Errorf("unexpected markup %q", got)
	}
}

func TestRun_SectionResetsChapter(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		line("[S] Part Two"),
		line("dropped"),
		line("Chapter 2"),
		line("kept"),
	)
	expectTypes(t, res.Blocks, doctree.BlockChapter, doctree.BlockSection, doctree.BlockChapter, doctree.BlockAnswer)
	if res.Blocks[1].Chapter != nil {
		t.Error("section block should carry no chapter")
	}
	if res.Chapters[0].SectionOrder != 0 || res.Chapters[1].SectionOrder != 1 {
		t.Errorf("unexpected section links %+v", res.Chapters)
	}
}

func TestRun_ImageFlushesBufferedQuestion(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 1"),
		para(blue("What is sin?"), txt("Sin is transgression.")),
		line("[Pic: law.png]"),
		para(blue("Who made you?")),
	)
	expectTypes(t, res.Blocks,
		doctree.BlockChapter, doctree.BlockQuestion, doctree.BlockAnswer, doctree.BlockImage, doctree.BlockQuestion)
	if res.Blocks[2].RawText != "Sin is transgression." {
		t.Errorf("unexpected answer %+v", res.Blocks[2])
	}
}

func table(rows ...[]string) doctree.Paragraph {
	return doctree.Paragraph{Table: append([][]string{}, rows...)}
}

func TestRun_NativeTables(t *testing.T) {
	res := classify(t, strict(),
		table([]string{"early", "table"}),
		line("Chapter 1"),
		para(blue("Which psalms?"), txt("These:")),
		table([]string{"Day", "Reading"}, []string{"Sunday", "Psalm <23>"}),
		table([]string{"a", "b", "c"}, []string{"d"}),
		table(),
		para(blue("Next?")),
	)
	expectTypes(t, res.Blocks,
		doctree.BlockChapter, doctree.BlockQuestion, doctree.BlockAnswer,
		doctree.BlockTable, doctree.BlockTable, doctree.BlockQuestion)

	good := res.Blocks[3]
	if good.RawText != "Day\tReading\nSunday\tPsalm <23>" {
		t.Errorf("unexpected raw text %q", good.RawText)
	}
	if doctree.Deref(good.TableJSON) != `[["Day","Reading"],["Sunday","Psalm <23>"]]` {
		t.Errorf("unexpected table json %v", doctree.Deref(good.TableJSON))
	}
	if !strings.Contains(good.NormalizedText, "<td>Psalm &lt;23&gt;</td>") {
		t.Errorf("expected escaped table html, got %q", good.NormalizedText)
	}
	if doctree.Deref(good.Chapter) != "Chapter 1" || good.ChapterSeq != 1 {
		t.Errorf("expected table in chapter 1, got %+v", good)
	}

	uneven := res.Blocks[4]
	if uneven.TableJSON != nil || uneven.NormalizedText != "<pre>a\tb\tc\nd</pre>" {
		t.Errorf("unexpected uneven table %+v", uneven)
	}
	if res.Counts.Tables != 2 {
		t.Errorf("expected 2 tables, got %d", res.Counts.Tables)
	}
	if len(res.Anomalies) != 1 || res.Anomalies[0].Kind != doctree.AnomalyOrphanTable {
		t.Errorf("expected one orphan table anomaly, got %+v", res.Anomalies)
	}
}

func TestQuestionText(t *testing.T) {
	tests := []struct{ in, want string }{
		{"12. What is sin?", "What is sin?"},
		{"3) Who made you?", "Who made you?"},
		{"  7   Why  was the\nlaw given?", "Why was the law given?"},
		{"What did 12 spies see?", "What did 12 spies see?"},
		{"1000", "1000"},
	}
	for _, tt := range tests {
		if got := QuestionText(tt.in); got != tt.want {
			t.Errorf("QuestionText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuestionRows_StripsManualNumbers(t *testing.T) {
	res := classify(t, strict(),
		line("Chapter 4 Noah"),
		para(blue("1. Who built the ark?"), txt("Noah.")),
	)
	rows := QuestionRows(res.Blocks, res.Chapters)
	if len(rows) != 1 || rows[0].QuestionText != "Who built the ark?" || rows[0].ChapterNumber != 4 {
		t.Errorf("unexpected rows %+v", rows)
	}
	if res.Blocks[1].RawText != "1. Who built the ark?" {
		t.Errorf("expected block text untouched, got %q", res.Blocks[1].RawText)
	}
}
