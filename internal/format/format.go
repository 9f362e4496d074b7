package format

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// #region mode
// Mode selects how a table is rendered.
type Mode int

const (
	ASCII    Mode = iota // box-drawn terminal table
	Markdown             // GitHub-flavoured Markdown
	CSV                  // comma-separated, one header line
)

var modeNames = []string{"ascii", "markdown", "csv"}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// ParseMode maps "ascii", "markdown"/"md" or "csv" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ascii", "table":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	}
	return ASCII, fmt.Errorf("unknown output format %q (want ascii, markdown or csv)", s)
}
// #endregion mode

// #region table
// Align is the horizontal alignment of a column.
type Align int

const (
	AlignDefault Align = iota
	AlignLeft
	AlignRight
)

// Table accumulates a header and rows and renders them in one Mode.
type Table struct {
	w    table.Writer
	mode Mode
	cols []table.ColumnConfig
}

// NewTable returns an empty table rendered in mode m.
func NewTable(m Mode) *Table {
	w := table.NewWriter()
	style := table.StyleDefault
	if m == ASCII {
		style = table.StyleLight
	}
	// column titles double as CSV field names, keep them verbatim
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	w.SetStyle(style)
	return &Table{w: w, mode: m}
}

// Header sets the column titles.
func (t *Table) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	t.w.AppendHeader(row)
}

// Row appends one row.
func (t *Table) Row(vals ...any) {
	t.w.AppendRow(table.Row(vals))
}

// Footer appends a footer row. CSV output omits it.
func (t *Table) Footer(vals ...any) {
	if t.mode == CSV {
		return
	}
	t.w.AppendFooter(table.Row(vals))
}

// AlignColumn sets the alignment of the 1-based column n.
func (t *Table) AlignColumn(n int, a Align) {
	al := text.AlignDefault
	switch a {
	case AlignLeft:
		al = text.AlignLeft
	case AlignRight:
		al = text.AlignRight
	}
	t.cols = append(t.cols, table.ColumnConfig{Number: n, Align: al})
	t.w.SetColumnConfigs(t.cols)
}

// Len returns the number of rows appended so far.
func (t *Table) Len() int { return t.w.Length() }

// String renders the table.
func (t *Table) String() string {
	switch t.mode {
	case Markdown:
		return t.w.RenderMarkdown()
	case CSV:
		return t.w.RenderCSV() + "\n"
	}
	return t.w.Render()
}
// #endregion table
