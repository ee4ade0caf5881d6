package sink

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2" // database/sql driver

	"reportql/internal/domain"
)

// defaultMaxBatchRows is the flush chunk ceiling for one INSERT.
const defaultMaxBatchRows = 1000

// DuckDBConfig configures the analytical store sink.
type DuckDBConfig struct {
	Path             string // database file, empty for in-memory
	Table            string // base table name, defaults to the script name
	PerAccountTables bool   // one physical table per account
	CombinedView     bool   // create a view over all per-account tables
	MaxBatchRows     int
}

// DuckDBWriter writes rows into a DuckDB database, schema-on-write. It
// batches all accounts into one destination (or one table per account), so
// the flush step is serialized internally for parallel account execution.
type DuckDBWriter struct {
	db  *sql.DB
	cfg DuckDBConfig

	mu       sync.Mutex
	plan     *domain.QueryPlan
	base     string
	colDefs  string
	colList  string
	buffer   []domain.Row
	account  string
	accounts []accountTable
}

type accountTable struct {
	id    string
	table string
}

// NewDuckDBWriter opens (or creates) the database.
func NewDuckDBWriter(cfg DuckDBConfig) (*DuckDBWriter, error) {
	if cfg.MaxBatchRows <= 0 {
		cfg.MaxBatchRows = defaultMaxBatchRows
	}
	db, err := sql.Open("duckdb", cfg.Path)
	if err != nil {
		return nil, &domain.FatalWriteError{Sink: "duckdb", Err: err}
	}
	return &DuckDBWriter{db: db, cfg: cfg}, nil
}

// Close releases the database handle.
func (w *DuckDBWriter) Close() error { return w.db.Close() }

// BeginScript derives the physical schema from the plan and creates the
// destination table unless tables are per-account.
func (w *DuckDBWriter) BeginScript(scriptName string, plan *domain.QueryPlan) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.plan = plan
	w.base = w.cfg.Table
	if w.base == "" {
		w.base = sanitizeName(scriptName)
	}
	if err := validateIdentifier(w.base); err != nil {
		return &domain.FatalWriteError{Sink: "duckdb", Err: fmt.Errorf("table name: %w", err)}
	}

	defs := make([]string, len(plan.ColumnNames))
	names := make([]string, len(plan.ColumnNames))
	for i, name := range plan.ColumnNames {
		defs[i] = quoteIdent(name) + " " + DuckDBType(plan.ColumnTypes[i])
		names[i] = quoteIdent(name)
	}
	w.colDefs = strings.Join(defs, ", ")
	w.colList = strings.Join(names, ", ")
	w.accounts = nil

	if !w.cfg.PerAccountTables {
		return w.createTable(w.base)
	}
	return nil
}

// BeginCustomer resets the buffer and, in per-account mode, creates the
// account's table.
func (w *DuckDBWriter) BeginCustomer(accountID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.account = accountID
	w.buffer = w.buffer[:0]
	if w.cfg.PerAccountTables {
		table := w.accountTable(accountID)
		w.accounts = append(w.accounts, accountTable{id: accountID, table: table})
		return w.createTable(table)
	}
	return nil
}

// AddRow buffers one row for the current account.
func (w *DuckDBWriter) AddRow(cells domain.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, cells)
	return nil
}

// EndCustomer flushes the buffer in MaxBatchRows chunks. Rows the store
// rejects are enumerated in a PartialWriteError; the buffer is discarded
// either way.
func (w *DuckDBWriter) EndCustomer() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows := w.buffer
	w.buffer = nil

	table := w.base
	if w.cfg.PerAccountTables {
		table = w.accountTable(w.account)
	}

	var rejected []domain.RowError
	for start := 0; start < len(rows); start += w.cfg.MaxBatchRows {
		end := start + w.cfg.MaxBatchRows
		if end > len(rows) {
			end = len(rows)
		}
		if err := w.insertBatch(table, rows[start:end]); err != nil {
			// Replay the chunk row by row so every rejected row is reported.
			for i, row := range rows[start:end] {
				if rowErr := w.insertBatch(table, []domain.Row{row}); rowErr != nil {
					rejected = append(rejected, domain.RowError{
						Index:  start + i,
						Reason: rowErr.Error(),
					})
				}
			}
		}
	}
	if len(rejected) > 0 {
		return &domain.PartialWriteError{Sink: "duckdb", Rows: rejected}
	}
	return nil
}

// EndScript creates the combining view over per-account tables when
// configured.
func (w *DuckDBWriter) EndScript() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.cfg.PerAccountTables || !w.cfg.CombinedView || len(w.accounts) == 0 {
		return nil
	}
	selects := make([]string, len(w.accounts))
	for i, at := range w.accounts {
		selects[i] = fmt.Sprintf("SELECT %s AS account_id, * FROM %s",
			quoteLiteral(at.id), quoteIdent(at.table))
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s",
		quoteIdent(w.base), strings.Join(selects, " UNION ALL "))
	if _, err := w.db.Exec(stmt); err != nil {
		return &domain.FatalWriteError{Sink: "duckdb", Err: fmt.Errorf("combined view: %w", err)}
	}
	return nil
}

func (w *DuckDBWriter) accountTable(accountID string) string {
	return w.base + "_" + sanitizeName(accountID)
}

func (w *DuckDBWriter) createTable(table string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(table), w.colDefs)
	if _, err := w.db.Exec(stmt); err != nil {
		return &domain.FatalWriteError{Sink: "duckdb", Err: fmt.Errorf("create table: %w", err)}
	}
	return nil
}

func (w *DuckDBWriter) insertBatch(table string, rows []domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = sqlLiteral(cell)
		}
		values[i] = "(" + strings.Join(cells, ", ") + ")"
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		quoteIdent(table), w.colList, strings.Join(values, ", "))
	_, err := w.db.Exec(stmt)
	return err
}

// sqlLiteral renders one cell as a DuckDB literal; array cells become
// native list literals.
func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteLiteral(val)
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case []interface{}:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = sqlLiteral(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	default:
		return FormatCell(v, ",")
	}
}
