package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/fumiama/go-docx"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

const documentPart = "word/document.xml"

// DOCXParser handles .docx files.
//
// go-docx validates the package, but its run properties keep only the
// presence of w:b and w:i, so the body is read from word/document.xml
// directly to honor explicit w:val="0" overrides and character styles.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read docx: %w", err)
	}

	if _, err := docx.Parse(bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}
	styles, err := loadStyles(zr)
	if err != nil {
		return nil, fmt.Errorf("read styles: %w", err)
	}
	root, err := readPart(zr, documentPart)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("parse docx: missing %s", documentPart)
	}

	tree := &doctree.Document{
		Title:    titleFromFilename(filename),
		Defaults: styles.defaults,
	}
	if body := root.SelectElement("w:body"); body != nil {
		tree.Paragraphs = styles.body(body, tree.Paragraphs)
	}
	return tree, nil
}

// body appends the paragraphs and tables of a body-level container in
// document order. Content controls are descended into.
func (s *styleSheet) body(el *etree.Element, out []doctree.Paragraph) []doctree.Paragraph {
	for _, child := range el.ChildElements() {
		switch child.FullTag() {
		case "w:p":
			out = append(out, s.docxParagraph(child))
		case "w:tbl":
			out = append(out, doctree.Paragraph{Table: docxTable(child)})
		case "w:sdt":
			if content := child.SelectElement("w:sdtContent"); content != nil {
				out = s.body(content, out)
			}
		}
	}
	return out
}

func (s *styleSheet) docxParagraph(p *etree.Element) doctree.Paragraph {
	var styleID string
	if ps := p.FindElement("./w:pPr/w:pStyle"); ps != nil {
		styleID = ps.SelectAttrValue("w:val", "")
	}
	out := doctree.Paragraph{
		Style:    styleID,
		Defaults: s.paragraph(styleID),
	}
	for _, r := range runElements(p, nil) {
		out.Runs = append(out.Runs, s.docxRun(r))
	}
	return out
}

// runElements collects the runs of a paragraph, including those wrapped in
// hyperlinks, insertions and simple fields. Deleted text is skipped.
func runElements(el *etree.Element, out []*etree.Element) []*etree.Element {
	for _, child := range el.ChildElements() {
		switch child.FullTag() {
		case "w:r":
			out = append(out, child)
		case "w:hyperlink", "w:ins", "w:smartTag", "w:fldSimple":
			out = runElements(child, out)
		}
	}
	return out
}

// docxRun maps one w:r. Direct formatting wins over the run's character
// style. Toggles left Unset fall back to the paragraph style later.
func (s *styleSheet) docxRun(r *etree.Element) doctree.Run {
	out := doctree.Run{Text: runText(r)}
	rPr := r.SelectElement("w:rPr")
	if rPr == nil {
		return out
	}
	props := runDefaults(rPr)
	if rs := rPr.SelectElement("w:rStyle"); rs != nil {
		props = inherit(props, s.character(rs.SelectAttrValue("w:val", "")))
	}
	out.Bold, out.Italic = props.Bold, props.Italic
	if c := rPr.SelectElement("w:color"); c != nil {
		out.Color = c.SelectAttrValue("w:val", "")
	}
	return out
}

func runText(r *etree.Element) string {
	var buf strings.Builder
	for _, child := range r.ChildElements() {
		switch child.FullTag() {
		case "w:t":
			buf.WriteString(child.Text())
		case "w:tab":
			buf.WriteByte('\t')
		case "w:br", "w:cr":
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

// docxTable reads the cell text of a native table. Nested tables are not
// descended into.
func docxTable(tbl *etree.Element) [][]string {
	rows := [][]string{}
	for _, tr := range tbl.SelectElements("w:tr") {
		var cells []string
		for _, tc := range tr.SelectElements("w:tc") {
			var paras []string
			for _, p := range tc.SelectElements("w:p") {
				var text strings.Builder
				for _, r := range runElements(p, nil) {
					text.WriteString(runText(r))
				}
				paras = append(paras, text.String())
			}
			cells = append(cells, strings.Join(paras, "\n"))
		}
		rows = append(rows, cells)
	}
	return rows
}
