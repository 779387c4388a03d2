package cli

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// columnGap separates adjacent columns
const columnGap = 2

var ansiPattern = regexp.MustCompile("\x1b\\[[0-9;]*m")

// Table buffers rows and writes them column-aligned on Flush. When the
// writer is a terminal, columns are narrowed to fit its width and long
// cells wrap onto continuation lines. Empty tables produce no output.
type Table struct {
	w        io.Writer
	headers  []string
	rows     [][]string
	prefix   string
	maxWidth int
}

// NewTable creates a table on stdout with the given column headers.
func NewTable(headers ...string) *Table {
	return NewTableTo(os.Stdout, headers...)
}

// NewTableTo creates a table writing to w
func NewTableTo(w io.Writer, headers ...string) *Table {
	return &Table{
		w:        w,
		headers:  headers,
		maxWidth: TerminalWidth(w),
	}
}

// WithPrefix sets a string prepended to each line (headers, divider, rows).
// Useful for indenting sub-tables within larger output.
func (t *Table) WithPrefix(prefix string) *Table {
	t.prefix = prefix
	return t
}

// WithMaxWidth caps the total line width; 0 disables wrapping
func (t *Table) WithMaxWidth(width int) *Table {
	t.maxWidth = width
	return t
}

// Row adds a row. Missing cells render empty, extra cells are dropped.
func (t *Table) Row(values ...string) {
	row := make([]string, len(t.headers))
	copy(row, values)
	t.rows = append(t.rows, row)
}

// Len returns the number of buffered rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Flush writes the headers, a dash divider and the rows. If no rows were
// added, nothing is printed.
func (t *Table) Flush() {
	if len(t.rows) == 0 {
		return
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visualLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if n := visualLen(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}
	widths = capWidths(widths, t.headers, t.maxWidth, visualLen(t.prefix))

	dividers := make([]string, len(t.headers))
	for i, h := range t.headers {
		dividers[i] = strings.Repeat("-", visualLen(h))
	}
	t.writeRow(t.headers, widths)
	t.writeRow(dividers, widths)
	for _, row := range t.rows {
		t.writeRow(row, widths)
	}
	t.rows = nil
}

func (t *Table) writeRow(cells []string, widths []int) {
	wrapped := make([][]string, len(cells))
	lines := 1
	for i, cell := range cells {
		wrapped[i] = wrapCell(cell, widths[i])
		if len(wrapped[i]) > lines {
			lines = len(wrapped[i])
		}
	}
	for l := 0; l < lines; l++ {
		var b strings.Builder
		b.WriteString(t.prefix)
		for i := range cells {
			part := ""
			if l < len(wrapped[i]) {
				part = wrapped[i][l]
			}
			b.WriteString(part)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-visualLen(part)+columnGap))
			}
		}
		fmt.Fprintln(t.w, strings.TrimRight(b.String(), " "))
	}
}

// visualLen is the printed width of s, ignoring ANSI color codes
func visualLen(s string) int {
	return utf8.RuneCountInString(ansiPattern.ReplaceAllString(s, ""))
}

// capWidths narrows the widest columns, one cell at a time, until the
// line fits termWidth. No column goes below its header width. A
// termWidth of 0 leaves widths unchanged.
func capWidths(widths []int, headers []string, termWidth, prefix int) []int {
	got := append([]int(nil), widths...)
	if termWidth <= 0 {
		return got
	}

	total := func() int {
		n := prefix + columnGap*(len(got)-1)
		for _, w := range got {
			n += w
		}
		return n
	}

	for total() > termWidth {
		widest := -1
		for i, w := range got {
			if w > visualLen(headers[i]) && (widest < 0 || w > got[widest]) {
				widest = i
			}
		}
		if widest < 0 {
			break
		}
		got[widest]--
	}
	return got
}

// wrapCell splits s into lines of at most width, breaking at spaces and
// hard-breaking words longer than width. Cells that fit are returned
// unchanged, color codes included.
func wrapCell(s string, width int) []string {
	if width <= 0 || visualLen(s) <= width {
		return []string{s}
	}

	var lines []string
	cur := ""
	for _, word := range strings.Fields(ansiPattern.ReplaceAllString(s, "")) {
		runes := []rune(word)
		for len(runes) > width {
			if cur != "" {
				lines = append(lines, cur)
				cur = ""
			}
			lines = append(lines, string(runes[:width]))
			runes = runes[width:]
		}
		word = string(runes)
		switch {
		case word == "":
		case cur == "":
			cur = word
		case utf8.RuneCountInString(cur)+1+len(runes) <= width:
			cur += " " + word
		default:
			lines = append(lines, cur)
			cur = word
		}
	}
	if cur != "" || len(lines) == 0 {
		lines = append(lines, cur)
	}
	return lines
}
