package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"reportql/internal/domain"
)

// CSVConfig configures the CSV file sink.
type CSVConfig struct {
	// Path is the output file, or the output directory when
	// PerAccountFiles is set.
	Path            string
	PerAccountFiles bool
	// ArraySeparator joins repeated cell values inside one CSV field.
	// Defaults to "|".
	ArraySeparator string
}

// CSVWriter writes one CSV file per script, or one per account.
type CSVWriter struct {
	cfg    CSVConfig
	script string
	plan   *domain.QueryPlan

	file *os.File
	out  *csv.Writer
}

func NewCSVWriter(cfg CSVConfig) *CSVWriter {
	if cfg.ArraySeparator == "" {
		cfg.ArraySeparator = "|"
	}
	return &CSVWriter{cfg: cfg}
}

func (w *CSVWriter) BeginScript(scriptName string, plan *domain.QueryPlan) error {
	w.script = scriptName
	w.plan = plan
	if w.cfg.PerAccountFiles {
		return nil
	}
	return w.open(w.cfg.Path)
}

func (w *CSVWriter) BeginCustomer(accountID string) error {
	if !w.cfg.PerAccountFiles {
		return nil
	}
	name := fmt.Sprintf("%s_%s.csv", sanitizeName(w.script), sanitizeName(accountID))
	return w.open(filepath.Join(w.cfg.Path, name))
}

func (w *CSVWriter) AddRow(cells domain.Row) error {
	record := make([]string, len(cells))
	for i, cell := range cells {
		record[i] = FormatCell(cell, w.cfg.ArraySeparator)
	}
	if err := w.out.Write(record); err != nil {
		return &domain.FatalWriteError{Sink: "csv", Err: err}
	}
	return nil
}

func (w *CSVWriter) EndCustomer() error {
	if !w.cfg.PerAccountFiles {
		return nil
	}
	return w.close()
}

func (w *CSVWriter) EndScript() error {
	if w.cfg.PerAccountFiles {
		return nil
	}
	return w.close()
}

func (w *CSVWriter) open(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &domain.FatalWriteError{Sink: "csv", Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return &domain.FatalWriteError{Sink: "csv", Err: err}
	}
	w.file = f
	w.out = csv.NewWriter(f)
	if err := w.out.Write(w.plan.ColumnNames); err != nil {
		return &domain.FatalWriteError{Sink: "csv", Err: err}
	}
	return nil
}

func (w *CSVWriter) close() error {
	if w.out == nil {
		return nil
	}
	w.out.Flush()
	flushErr := w.out.Error()
	closeErr := w.file.Close()
	w.out = nil
	w.file = nil
	if flushErr != nil {
		return &domain.FatalWriteError{Sink: "csv", Err: flushErr}
	}
	if closeErr != nil {
		return &domain.FatalWriteError{Sink: "csv", Err: closeErr}
	}
	return nil
}
