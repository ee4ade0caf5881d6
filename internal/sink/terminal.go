package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"reportql/internal/domain"
)

// TerminalConfig configures the interactive preview sink.
type TerminalConfig struct {
	Out io.Writer // defaults to os.Stdout
	// Width overrides terminal width detection. Zero means detect, or
	// fall back to 120 when Out is not a terminal.
	Width int
	// MaxRows caps the rows printed per account, zero for no cap.
	MaxRows int
}

// TerminalWriter renders each account's rows as an aligned table. When the
// table would not fit the terminal it transposes to one column-per-line
// block per row.
type TerminalWriter struct {
	cfg    TerminalConfig
	plan   *domain.QueryPlan
	script string

	account string
	rows    []domain.Row
	total   int
}

func NewTerminalWriter(cfg TerminalConfig) *TerminalWriter {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &TerminalWriter{cfg: cfg}
}

func (w *TerminalWriter) BeginScript(scriptName string, plan *domain.QueryPlan) error {
	w.script = scriptName
	w.plan = plan
	fmt.Fprintf(w.cfg.Out, "%s\n", scriptName)
	return nil
}

func (w *TerminalWriter) BeginCustomer(accountID string) error {
	w.account = accountID
	w.rows = w.rows[:0]
	w.total = 0
	return nil
}

func (w *TerminalWriter) AddRow(cells domain.Row) error {
	w.total++
	if w.cfg.MaxRows > 0 && len(w.rows) >= w.cfg.MaxRows {
		return nil
	}
	w.rows = append(w.rows, cells)
	return nil
}

func (w *TerminalWriter) EndCustomer() error {
	fmt.Fprintf(w.cfg.Out, "\naccount %s (%d rows)\n", w.account, w.total)
	if len(w.rows) == 0 {
		return nil
	}

	cells := make([][]string, len(w.rows))
	for i, row := range w.rows {
		cells[i] = make([]string, len(row))
		for j, cell := range row {
			cells[i][j] = FormatCell(cell, "|")
		}
	}

	if w.tableWidth(cells) > w.width() {
		w.printTransposed(cells)
	} else {
		w.printTable(cells)
	}
	if w.total > len(w.rows) {
		fmt.Fprintf(w.cfg.Out, "... %d more rows\n", w.total-len(w.rows))
	}
	return nil
}

func (w *TerminalWriter) EndScript() error { return nil }

func (w *TerminalWriter) printTable(cells [][]string) {
	tw := tabwriter.NewWriter(w.cfg.Out, 2, 2, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(w.plan.ColumnNames, "\t"))
	for _, row := range cells {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	tw.Flush()
}

func (w *TerminalWriter) printTransposed(cells [][]string) {
	nameWidth := 0
	for _, name := range w.plan.ColumnNames {
		if len(name) > nameWidth {
			nameWidth = len(name)
		}
	}
	for i, row := range cells {
		fmt.Fprintf(w.cfg.Out, "row %d\n", i+1)
		for j, cell := range row {
			fmt.Fprintf(w.cfg.Out, "  %-*s  %s\n", nameWidth, w.plan.ColumnNames[j], cell)
		}
	}
}

// tableWidth estimates the rendered table width from the widest cell in
// each column.
func (w *TerminalWriter) tableWidth(cells [][]string) int {
	widths := make([]int, len(w.plan.ColumnNames))
	for i, name := range w.plan.ColumnNames {
		widths[i] = len(name)
	}
	for _, row := range cells {
		for j, cell := range row {
			if len(cell) > widths[j] {
				widths[j] = len(cell)
			}
		}
	}
	total := 0
	for _, width := range widths {
		total += width + 2
	}
	return total
}

func (w *TerminalWriter) width() int {
	if w.cfg.Width > 0 {
		return w.cfg.Width
	}
	if f, ok := w.cfg.Out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			return cols
		}
	}
	return 120
}
