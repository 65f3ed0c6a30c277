// Package markup folds styled runs into a minimal bold/italic tag stream.
package markup

import (
	"strings"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

const (
	openBold    = "<strong>"
	closeBold   = "</strong>"
	openItalic  = "<em>"
	closeItalic = "</em>"
)

// Serialize walks runs in order and returns their plain text, the markup
// form, and whether any tag was emitted. Tags open and close only where
// the style changes; empty runs are skipped.
func Serialize(runs []doctree.StyledRun) (plain, markup string, hasMarkup bool) {
	var text, out strings.Builder
	var open *doctree.StyledRun

	closeTags := func() {
		if open == nil {
			return
		}
		if open.Italic {
			out.WriteString(closeItalic)
		}
		if open.Bold {
			out.WriteString(closeBold)
		}
		open = nil
	}

	for i := range runs {
		r := runs[i]
		if r.Text == "" {
			continue
		}
		if open == nil || !open.SameStyle(r) {
			closeTags()
			if r.Bold {
				out.WriteString(openBold)
				hasMarkup = true
			}
			if r.Italic {
				out.WriteString(openItalic)
				hasMarkup = true
			}
			open = &runs[i]
		}
		out.WriteString(r.Text)
		text.WriteString(r.Text)
	}
	closeTags()

	return text.String(), out.String(), hasMarkup
}

// Normalized returns the markup form when it carries tags, else the plain
// form. Both are trimmed.
func Normalized(runs []doctree.StyledRun) string {
	plain, m, has := Serialize(runs)
	if has {
		return strings.TrimSpace(m)
	}
	return strings.TrimSpace(plain)
}
