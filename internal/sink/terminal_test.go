package sink

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reportql/internal/domain"
)

func TestTerminalWriterTable(t *testing.T) {
	var buf bytes.Buffer
	w := NewTerminalWriter(TerminalConfig{Out: &buf, Width: 120})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	for _, row := range testRows() {
		require.NoError(t, w.AddRow(row))
	}
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.EndScript())

	out := buf.String()
	assert.Contains(t, out, "account 111 (2 rows)")
	assert.Contains(t, out, "campaign_id")
	assert.Contains(t, out, "Brand")
	assert.Contains(t, out, "a|b")
	assert.NotContains(t, out, "row 1")
}

func TestTerminalWriterTransposesWhenNarrow(t *testing.T) {
	var buf bytes.Buffer
	w := NewTerminalWriter(TerminalConfig{Out: &buf, Width: 20})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	require.NoError(t, w.AddRow(testRows()[0]))
	require.NoError(t, w.EndCustomer())

	out := buf.String()
	assert.Contains(t, out, "row 1")
	assert.Contains(t, out, "campaign_id")
	assert.Contains(t, out, "101")
}

func TestTerminalWriterCapsRows(t *testing.T) {
	var buf bytes.Buffer
	w := NewTerminalWriter(TerminalConfig{Out: &buf, Width: 120, MaxRows: 1})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	for i := 0; i < 5; i++ {
		require.NoError(t, w.AddRow(domain.Row{int64(i), "n", int64(i), nil}))
	}
	require.NoError(t, w.EndCustomer())

	out := buf.String()
	assert.Contains(t, out, "account 111 (5 rows)")
	assert.Contains(t, out, "... 4 more rows")
}
