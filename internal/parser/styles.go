package parser

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/beevik/etree"

	"github.com/dgallion1/brhcimport/internal/doctree"
)

const stylesPart = "word/styles.xml"

// basedOn chains deeper than this are treated as cyclic.
const maxStyleDepth = 16

type styleEntry struct {
	basedOn string
	run     doctree.RunDefaults
}

// styleSheet is the subset of word/styles.xml that affects bold and italic.
type styleSheet struct {
	defaults     doctree.RunDefaults
	defaultStyle string
	styles       map[string]styleEntry // Paragraph styles
	chars        map[string]styleEntry // Character styles, referenced by w:rStyle
}

func openPackage(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	return zr, nil
}

// readPart parses one XML part of the package. A missing part yields a
// nil root and no error.
func readPart(zr *zip.Reader, name string) (*etree.Element, error) {
	f, err := zr.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return doc.Root(), nil
}

// readStyles loads the style part of a .docx archive. A package without
// one yields an empty sheet.
func readStyles(data []byte) (*styleSheet, error) {
	zr, err := openPackage(data)
	if err != nil {
		return nil, err
	}
	return loadStyles(zr)
}

func loadStyles(zr *zip.Reader) (*styleSheet, error) {
	sheet := &styleSheet{
		styles: make(map[string]styleEntry),
		chars:  make(map[string]styleEntry),
	}
	root, err := readPart(zr, stylesPart)
	if err != nil || root == nil {
		return sheet, err
	}

	sheet.defaults = runDefaults(root.FindElement("./w:docDefaults/w:rPrDefault/w:rPr"))

	for _, el := range root.SelectElements("w:style") {
		id := el.SelectAttrValue("w:styleId", "")
		if id == "" {
			continue
		}
		entry := styleEntry{run: runDefaults(el.SelectElement("w:rPr"))}
		if based := el.SelectElement("w:basedOn"); based != nil {
			entry.basedOn = based.SelectAttrValue("w:val", "")
		}
		switch el.SelectAttrValue("w:type", "paragraph") {
		case "paragraph":
			sheet.styles[id] = entry
			if isOn(el.SelectAttrValue("w:default", "")) {
				sheet.defaultStyle = id
			}
		case "character":
			sheet.chars[id] = entry
		}
	}
	return sheet, nil
}

// paragraph resolves the defaults of a paragraph style through its basedOn
// chain. An empty id means the sheet's default paragraph style.
func (s *styleSheet) paragraph(id string) doctree.RunDefaults {
	if id == "" {
		id = s.defaultStyle
	}
	return resolve(s.styles, id)
}

// character resolves a character style through its basedOn chain.
func (s *styleSheet) character(id string) doctree.RunDefaults {
	return resolve(s.chars, id)
}

func resolve(styles map[string]styleEntry, id string) doctree.RunDefaults {
	var out doctree.RunDefaults
	for depth := 0; id != "" && depth < maxStyleDepth; depth++ {
		entry, ok := styles[id]
		if !ok {
			break
		}
		out = inherit(out, entry.run)
		id = entry.basedOn
	}
	return out
}

// inherit fills the unset toggles of d from parent.
func inherit(d, parent doctree.RunDefaults) doctree.RunDefaults {
	if d.Bold == doctree.Unset {
		d.Bold = parent.Bold
	}
	if d.Italic == doctree.Unset {
		d.Italic = parent.Italic
	}
	return d
}

func runDefaults(rPr *etree.Element) doctree.RunDefaults {
	if rPr == nil {
		return doctree.RunDefaults{}
	}
	return doctree.RunDefaults{
		Bold:   toggle(rPr.SelectElement("w:b")),
		Italic: toggle(rPr.SelectElement("w:i")),
	}
}

// toggle reads an OOXML on/off property. A bare element means on.
func toggle(el *etree.Element) doctree.Toggle {
	if el == nil {
		return doctree.Unset
	}
	val := el.SelectAttrValue("w:val", "")
	if val == "" || isOn(val) {
		return doctree.On
	}
	return doctree.Off
}

func isOn(val string) bool {
	switch strings.ToLower(val) {
	case "1", "true", "on":
		return true
	}
	return false
}
