package console

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// maxColumnWidth caps a table column; longer cells are truncated.
const maxColumnWidth = 48

// writeTable prints rows under headers with columns aligned by display
// width, so wide (CJK) and combining characters line up.
func writeTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if cw := runewidth.StringWidth(cell); cw > widths[i] {
				widths[i] = min(cw, maxColumnWidth)
			}
		}
	}

	writeRow(w, headers, widths)
	rule := make([]string, len(widths))
	for i, n := range widths {
		rule[i] = strings.Repeat("─", n)
	}
	writeRow(w, rule, widths)
	for _, row := range rows {
		writeRow(w, row, widths)
	}
}

func writeRow(w io.Writer, cells []string, widths []int) {
	var b strings.Builder
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if i == len(widths)-1 {
			b.WriteString(truncate(cell, width))
			break
		}
		b.WriteString(padRight(cell, width))
		b.WriteString("  ")
	}
	io.WriteString(w, strings.TrimRight(b.String(), " ")+"\n") //nolint:errcheck
}

func truncate(s string, width int) string {
	if runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}

func padRight(s string, width int) string {
	s = truncate(s, width)
	return s + strings.Repeat(" ", width-runewidth.StringWidth(s))
}
