package domain

// Record is one raw nested API record: string-keyed maps continue the
// field path, slices and scalars are leaves.
type Record = map[string]interface{}

// Row is one interpreted output row, cells aligned with the plan's columns.
type Row = []interface{}

// RowWriter is the sink-facing lifecycle every output backend implements.
//
// The executor guarantees the call order
//
//	BeginScript (BeginCustomer AddRow* EndCustomer)* EndScript
//
// with EndCustomer invoked on every exit path, including failure, so
// buffered state is always flushed or discarded. A writer that batches all
// accounts into one physical destination must serialize EndCustomer itself
// when accounts run in parallel.
type RowWriter interface {
	// BeginScript derives the physical schema from plan.ColumnTypes and
	// prepares the destination.
	BeginScript(scriptName string, plan *QueryPlan) error
	// BeginCustomer resets per-account buffered state.
	BeginCustomer(accountID string) error
	AddRow(cells Row) error
	// EndCustomer flushes buffered cells, chunked to the sink's batch-size
	// ceiling if it has one.
	EndCustomer() error
	EndScript() error
}
