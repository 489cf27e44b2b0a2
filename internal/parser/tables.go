package parser

import (
	"sort"
	"strings"
)

// textRun is a positioned piece of text on a single baseline.
type textRun struct {
	X, W     float64
	FontSize float64
	S        string
}

const (
	defaultFontSize = 10.0
	// gaps wider than this many font sizes start a new cell
	cellGapFactor = 1.5
)

// splitCells groups the runs of one line into cells separated by wide
// horizontal gaps.
func splitCells(line []textRun) []string {
	if len(line) == 0 {
		return nil
	}
	runs := make([]textRun, len(line))
	copy(runs, line)
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].X < runs[j].X })

	var (
		cells   []string
		current strings.Builder
	)
	end := runs[0].X
	for i, r := range runs {
		size := r.FontSize
		if size <= 0 {
			size = defaultFontSize
		}
		if i > 0 && r.X-end > size*cellGapFactor {
			cells = appendCell(cells, current.String())
			current.Reset()
		}
		current.WriteString(r.S)
		end = max(end, r.X+r.W)
	}
	return appendCell(cells, current.String())
}

func appendCell(cells []string, cell string) []string {
	if cell = strings.Join(strings.Fields(cell), " "); cell != "" {
		cells = append(cells, cell)
	}
	return cells
}

// detectTables finds runs of at least two consecutive lines that split into
// the same number (>= 2) of cells. The first line of each run is the header.
func detectTables(lines [][]textRun) [][][]string {
	var (
		tables  [][][]string
		current [][]string
	)
	flush := func() {
		if len(current) >= 2 {
			tables = append(tables, current)
		}
		current = nil
	}
	for _, line := range lines {
		cells := splitCells(line)
		if len(cells) < 2 {
			flush()
			continue
		}
		if len(current) > 0 && len(current[0]) != len(cells) {
			flush()
		}
		current = append(current, cells)
	}
	flush()
	return tables
}

// renderMarkdownTable renders rows as a markdown grid: header row, separator
// row, data rows. Rows are padded or cut to the header width.
func renderMarkdownTable(rows [][]string) string {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return ""
	}
	width := len(rows[0])

	var sb strings.Builder
	writeRow := func(cells []string) {
		sb.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(cells) {
				cell = cleanCell(cells[i])
			}
			sb.WriteString(" " + cell + " |")
		}
		sb.WriteString("\n")
	}

	writeRow(rows[0])
	sep := make([]string, width)
	for i := range sep {
		sep[i] = "---"
	}
	writeRow(sep)
	for _, row := range rows[1:] {
		writeRow(row)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func cleanCell(cell string) string {
	cell = strings.Join(strings.Fields(cell), " ")
	return strings.ReplaceAll(cell, "|", `\|`)
}
