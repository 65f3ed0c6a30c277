// Package normalize resolves the effective style of text runs.
package normalize

import (
	"strings"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

// DistinguishedColor is the foreground color that marks question text.
const DistinguishedColor = "0000FF"

// Resolve returns the effective style of a run. Explicit run flags win,
// then the paragraph default, then the document default, then false.
func Resolve(run doctree.Run, para, doc doctree.RunDefaults) doctree.StyledRun {
	return doctree.StyledRun{
		Text:          run.Text,
		Bold:          resolve(run.Bold, para.Bold, doc.Bold),
		Italic:        resolve(run.Italic, para.Italic, doc.Italic),
		Distinguished: IsDistinguished(run.Color),
	}
}

// Paragraph resolves every non-empty run of a paragraph.
func Paragraph(p doctree.Paragraph, doc doctree.RunDefaults) []doctree.StyledRun {
	out := make([]doctree.StyledRun, 0, len(p.Runs))
	for _, r := range p.Runs {
		if r.Text == "" {
			continue
		}
		out = append(out, Resolve(r, p.Defaults, doc))
	}
	return out
}

// IsDistinguished reports whether a hex color is the question color.
func IsDistinguished(color string) bool {
	color = strings.TrimPrefix(strings.TrimSpace(color), "#")
	return strings.EqualFold(color, DistinguishedColor)
}

func resolve(chain ...doctree.Toggle) bool {
	for _, t := range chain {
		switch t {
		case doctree.On:
			return true
		case doctree.Off:
			return false
		}
	}
	return false
}
