package main

import (
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

// writeTable prints header and rows as left-aligned columns separated by two
// spaces. Widths are measured in terminal cells, so CJK and emoji names
// line up.
func writeTable(w io.Writer, header []string, rows [][]string) error {
	colWidths := make([]int, len(header))
	measure := func(row []string) {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if width := runewidth.StringWidth(row[i]); width > colWidths[i] {
				colWidths[i] = width
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	var sb strings.Builder
	writeRow := func(row []string) {
		for j := range colWidths {
			content := ""
			if j < len(row) {
				content = row[j]
			}
			if j == len(colWidths)-1 {
				// No trailing padding on the last column.
				sb.WriteString(content)
				break
			}
			sb.WriteString(content)
			if padding := colWidths[j] - runewidth.StringWidth(content); padding > 0 {
				sb.WriteString(strings.Repeat(" ", padding))
			}
			sb.WriteString("  ")
		}
		sb.WriteString("\n")
	}

	writeRow(header)
	for _, row := range rows {
		writeRow(row)
	}

	_, err := io.WriteString(w, sb.String())
	return err
}
