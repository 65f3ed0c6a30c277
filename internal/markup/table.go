package markup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// SplitCells splits a table line into cells on pipe, or on tab when the
// line has no pipe.
func SplitCells(line string) []string {
	if strings.Contains(line, "|") {
		return strings.Split(line, "|")
	}
	return strings.Split(line, "\t")
}

// TableRows splits lines into rows and reports whether every row has the
// same column count. Blank lines are ignored.
func TableRows(lines []string) ([][]string, bool) {
	var rows [][]string
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := SplitCells(line)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, false
	}
	for _, row := range rows[1:] {
		if len(row) != len(rows[0]) {
			return rows, false
		}
	}
	return rows, true
}

// RenderTable renders rows as an HTML table with escaped cell text.
func RenderTable(rows [][]string) string {
	table := element(atom.Table)
	for _, row := range rows {
		tr := element(atom.Tr)
		for _, cell := range row {
			td := element(atom.Td)
			td.AppendChild(&html.Node{Type: html.TextNode, Data: cell})
			tr.AppendChild(td)
		}
		table.AppendChild(tr)
	}
	return render(table)
}

// RenderPre renders text as a single preformatted block.
func RenderPre(text string) string {
	pre := element(atom.Pre)
	pre.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return render(pre)
}

func element(a atom.Atom) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
}

func render(n *html.Node) string {
	var sb strings.Builder
	// Rendering into a strings.Builder cannot fail.
	_ = html.Render(&sb, n)
	return sb.String()
}
