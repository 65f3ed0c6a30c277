// Package validate runs structural checks that gate committing an import.
package validate

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dgallion1/brhcimport/internal/classify"
	"github.com/dgallion1/brhcimport/internal/doctree"
)

// ErrInvalid is wrapped by every validation issue.
var ErrInvalid = errors.New("validation failed")

// Check returns every structural issue in res and its question projection
// joined into one error, or nil. Blocks must already carry final IDs.
func Check(res *classify.Result, rows []doctree.QuestionRow) error {
	var err error
	issue := func(format string, args ...any) {
		err = multierr.Append(err, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	sections := make(map[int]bool, len(res.Sections))
	for _, s := range res.Sections {
		sections[s.OrderIndex] = true
	}
	for _, c := range res.Chapters {
		if c.SectionOrder != 0 && !sections[c.SectionOrder] {
			issue("orphan chapter %q references missing section %d", c.Title, c.SectionOrder)
		}
	}

	ids := make(map[int64]bool, len(res.Blocks))
	lastOrder := make(map[int]int)
	questions := make(map[int]int)
	for _, b := range res.Blocks {
		switch {
		case b.ID == 0:
			issue("%s block at order %d has no id", b.Type, b.Order)
		case ids[b.ID]:
			issue("duplicate block id %d", b.ID)
		}
		ids[b.ID] = true

		if b.Type.RequiresChapter() && b.Chapter == nil {
			issue("%s block %d has no chapter", b.Type, b.ID)
		}

		if b.ChapterSeq > 0 {
			if prev, ok := lastOrder[b.ChapterSeq]; ok && b.Order <= prev {
				issue("block %d order %d does not follow %d in chapter %q", b.ID, b.Order, prev, doctree.Deref(b.Chapter))
			}
			lastOrder[b.ChapterSeq] = b.Order
		}

		if b.Type == doctree.BlockQuestion {
			questions[b.ChapterSeq]++
			if b.QuestionNumber != questions[b.ChapterSeq] {
				issue("question block %d numbered %d, expected %d in chapter %q",
					b.ID, b.QuestionNumber, questions[b.ChapterSeq], doctree.Deref(b.Chapter))
			}
		}
	}

	type chapterKey struct {
		title  string
		number int
	}
	seen := make(map[chapterKey]map[int]bool)
	for _, r := range rows {
		k := chapterKey{doctree.Deref(r.ChapterTitle), r.ChapterNumber}
		if seen[k] == nil {
			seen[k] = make(map[int]bool)
		}
		if seen[k][r.QuestionNumber] {
			issue("question number %d repeated in chapter %q", r.QuestionNumber, k.title)
		}
		seen[k][r.QuestionNumber] = true
	}
	for k, numbers := range seen {
		for n := 1; n <= len(numbers); n++ {
			if !numbers[n] {
				issue("question numbering in chapter %q is not 1..%d", k.title, len(numbers))
				break
			}
		}
	}

	return err
}
