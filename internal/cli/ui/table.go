package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

// Column describes one column of a Table
type Column struct {
	Title string
	// Style returns the color of a cell, nil leaves it plain
	Style func(cell string) *color.Color
}

// Table renders rows under bold titles. Cells are padded before they are
// colored so escape sequences never shift the alignment.
type Table struct {
	writer  io.Writer
	columns []Column
	rows    [][]string
	noColor bool
}

// NewTable creates a table with the given columns
func NewTable(w io.Writer, noColor bool, columns ...Column) *Table {
	return &Table{writer: w, columns: columns, noColor: noColor}
}

// AddRow adds a row, missing cells render empty and extra ones are dropped
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.columns))
	copy(row, cells)
	t.rows = append(t.rows, row)
}

// Render writes the titles, a rule under each title and the rows
func (t *Table) Render() {
	if len(t.columns) == 0 {
		return
	}

	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = width(c.Title)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			widths[i] = max(widths[i], width(cell))
		}
	}

	titles := make([]string, len(t.columns))
	rules := make([]string, len(t.columns))
	for i, c := range t.columns {
		titles[i] = t.paint(color.New(color.Bold, color.FgCyan), padRight(c.Title, widths[i]))
		rules[i] = t.paint(color.New(color.FgHiBlack), strings.Repeat("─", widths[i]))
	}
	t.line(titles)
	t.line(rules)

	for _, row := range t.rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			padded := padRight(cell, widths[i])
			if style := t.columns[i].Style; style != nil {
				padded = t.paint(style(cell), padded)
			}
			cells[i] = padded
		}
		t.line(cells)
	}
}

func (t *Table) line(cells []string) {
	fmt.Fprintln(t.writer, strings.TrimRight(strings.Join(cells, "  "), " "))
}

func (t *Table) paint(c *color.Color, s string) string {
	if c == nil {
		return s
	}
	if t.noColor {
		c.DisableColor()
	}
	return c.Sprint(s)
}

// Details renders aligned "key: value" lines
type Details struct {
	writer  io.Writer
	keys    []string
	values  []string
	noColor bool
}

// NewDetails creates an empty details list
func NewDetails(w io.Writer, noColor bool) *Details {
	return &Details{writer: w, noColor: noColor}
}

// Add appends a key and its value
func (d *Details) Add(key, value string) {
	d.keys = append(d.keys, key)
	d.values = append(d.values, value)
}

// Render writes one line per key, values start on the same column
func (d *Details) Render() {
	keyWidth := 0
	for _, key := range d.keys {
		keyWidth = max(keyWidth, width(key)+1)
	}

	cyan := color.New(color.FgCyan)
	if d.noColor {
		cyan.DisableColor()
	}
	for i, key := range d.keys {
		cyan.Fprint(d.writer, padRight(key+":", keyWidth))
		fmt.Fprintf(d.writer, " %s\n", d.values[i])
	}
}

// Header writes title underlined to its own width
func Header(w io.Writer, title string, noColor bool) {
	bold := color.New(color.Bold, color.FgCyan)
	gray := color.New(color.FgHiBlack)
	if noColor {
		bold.DisableColor()
		gray.DisableColor()
	}
	bold.Fprintln(w, title)
	gray.Fprintln(w, strings.Repeat("─", width(title)))
}

// width is the number of terminal cells of s, one per rune
func width(s string) int {
	return utf8.RuneCountInString(s)
}

// padRight pads s with spaces up to n cells
func padRight(s string, n int) string {
	if pad := n - width(s); pad > 0 {
		return s + strings.Repeat(" ", pad)
	}
	return s
}
