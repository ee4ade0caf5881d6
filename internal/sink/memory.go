package sink

import (
	"sync"

	"reportql/internal/domain"
)

// MemoryWriter collects rows per account in memory. Used by tests and by
// account tree resolution, where the result set feeds back into the run.
type MemoryWriter struct {
	mu      sync.Mutex
	plan    *domain.QueryPlan
	script  string
	account string
	rows    map[string][]domain.Row
	order   []string
}

func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{rows: make(map[string][]domain.Row)}
}

func (w *MemoryWriter) BeginScript(scriptName string, plan *domain.QueryPlan) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.script = scriptName
	w.plan = plan
	return nil
}

func (w *MemoryWriter) BeginCustomer(accountID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.account = accountID
	if _, ok := w.rows[accountID]; !ok {
		w.rows[accountID] = nil
		w.order = append(w.order, accountID)
	}
	return nil
}

func (w *MemoryWriter) AddRow(cells domain.Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows[w.account] = append(w.rows[w.account], cells)
	return nil
}

func (w *MemoryWriter) EndCustomer() error { return nil }
func (w *MemoryWriter) EndScript() error   { return nil }

// Plan returns the plan seen by the last BeginScript.
func (w *MemoryWriter) Plan() *domain.QueryPlan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plan
}

// Script returns the script name seen by the last BeginScript.
func (w *MemoryWriter) Script() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.script
}

// Accounts returns account IDs in first-seen order.
func (w *MemoryWriter) Accounts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.order))
	copy(out, w.order)
	return out
}

// Rows returns the rows collected for one account.
func (w *MemoryWriter) Rows(accountID string) []domain.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows[accountID]
}

// AllRows returns every row in account order.
func (w *MemoryWriter) AllRows() []domain.Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []domain.Row
	for _, id := range w.order {
		out = append(out, w.rows[id]...)
	}
	return out
}
