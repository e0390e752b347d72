package formatter

import (
	"strings"
)

// markdownTable renders rows under headers. Pipes and newlines inside cells
// are escaped so a cell never breaks the row.
func markdownTable(headers []string, rows [][]string) string {
	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("| ")
		for i, c := range cells {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(escapeCell(c))
		}
		b.WriteString(" |\n")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, r := range rows {
		// pad short rows to the header width
		for len(r) < len(headers) {
			r = append(r, "")
		}
		writeRow(r[:len(headers)])
	}
	return b.String()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}
