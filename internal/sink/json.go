package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"reportql/internal/domain"
)

// JSONFormat selects the JSON file layout.
type JSONFormat int

const (
	// JSONRecords writes one array of objects per file.
	JSONRecords JSONFormat = iota
	// JSONLines writes newline-delimited objects.
	JSONLines
	// JSONRaw writes rows as arrays of cells, without column names.
	JSONRaw
)

// JSONConfig configures the JSON file sink.
type JSONConfig struct {
	Path            string
	PerAccountFiles bool
	Format          JSONFormat
}

// JSONWriter writes report rows as JSON objects keyed by column name.
// Repeated cells stay native arrays.
type JSONWriter struct {
	cfg    JSONConfig
	script string
	plan   *domain.QueryPlan

	file    *os.File
	enc     *json.Encoder
	records []map[string]interface{}
	raw     []domain.Row
}

func NewJSONWriter(cfg JSONConfig) *JSONWriter {
	return &JSONWriter{cfg: cfg}
}

func (w *JSONWriter) BeginScript(scriptName string, plan *domain.QueryPlan) error {
	w.script = scriptName
	w.plan = plan
	if w.cfg.PerAccountFiles {
		return nil
	}
	return w.open(w.cfg.Path)
}

func (w *JSONWriter) BeginCustomer(accountID string) error {
	if !w.cfg.PerAccountFiles {
		return nil
	}
	ext := "json"
	if w.cfg.Format == JSONLines {
		ext = "jsonl"
	}
	name := fmt.Sprintf("%s_%s.%s", sanitizeName(w.script), sanitizeName(accountID), ext)
	return w.open(filepath.Join(w.cfg.Path, name))
}

func (w *JSONWriter) AddRow(cells domain.Row) error {
	switch w.cfg.Format {
	case JSONLines:
		if err := w.enc.Encode(recordFromRow(w.plan.ColumnNames, cells)); err != nil {
			return &domain.FatalWriteError{Sink: "json", Err: err}
		}
	case JSONRaw:
		w.raw = append(w.raw, cells)
	default:
		w.records = append(w.records, recordFromRow(w.plan.ColumnNames, cells))
	}
	return nil
}

func (w *JSONWriter) EndCustomer() error {
	if !w.cfg.PerAccountFiles {
		return nil
	}
	return w.close()
}

func (w *JSONWriter) EndScript() error {
	if w.cfg.PerAccountFiles {
		return nil
	}
	return w.close()
}

func (w *JSONWriter) open(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &domain.FatalWriteError{Sink: "json", Err: err}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return &domain.FatalWriteError{Sink: "json", Err: err}
	}
	w.file = f
	w.enc = json.NewEncoder(f)
	w.records = nil
	w.raw = nil
	return nil
}

func (w *JSONWriter) close() error {
	if w.file == nil {
		return nil
	}
	var encErr error
	switch w.cfg.Format {
	case JSONRecords:
		records := w.records
		if records == nil {
			records = []map[string]interface{}{}
		}
		w.enc.SetIndent("", "  ")
		encErr = w.enc.Encode(records)
	case JSONRaw:
		rows := w.raw
		if rows == nil {
			rows = []domain.Row{}
		}
		w.enc.SetIndent("", "  ")
		encErr = w.enc.Encode(rows)
	}
	closeErr := w.file.Close()
	w.file = nil
	w.enc = nil
	w.records = nil
	w.raw = nil
	if encErr != nil {
		return &domain.FatalWriteError{Sink: "json", Err: encErr}
	}
	if closeErr != nil {
		return &domain.FatalWriteError{Sink: "json", Err: closeErr}
	}
	return nil
}
