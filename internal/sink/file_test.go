package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriterSingleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewCSVWriter(CSVConfig{Path: path})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	for _, account := range []string{"111", "222"} {
		require.NoError(t, w.BeginCustomer(account))
		for _, row := range testRows() {
			require.NoError(t, w.AddRow(row))
		}
		require.NoError(t, w.EndCustomer())
	}
	require.NoError(t, w.EndScript())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "campaign_id,name,clicks,labels", lines[0])
	assert.Equal(t, "101,Brand,5,a|b", lines[1])
	assert.Equal(t, "102,Generic,7,", lines[2])
}

func TestCSVWriterPerAccountFiles(t *testing.T) {
	dir := t.TempDir()
	w := NewCSVWriter(CSVConfig{Path: dir, PerAccountFiles: true, ArraySeparator: ";"})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	require.NoError(t, w.AddRow(testRows()[0]))
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.BeginCustomer("222"))
	require.NoError(t, w.AddRow(testRows()[1]))
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.EndScript())

	data, err := os.ReadFile(filepath.Join(dir, "perf_t_111.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "101,Brand,5,a;b")

	_, err = os.Stat(filepath.Join(dir, "perf_t_222.csv"))
	require.NoError(t, err)
}

func TestJSONWriterRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewJSONWriter(JSONConfig{Path: path})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	for _, row := range testRows() {
		require.NoError(t, w.AddRow(row))
	}
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.EndScript())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	require.Len(t, records, 2)
	assert.Equal(t, "Brand", records[0]["name"])
	assert.Equal(t, []interface{}{"a", "b"}, records[0]["labels"])
	assert.Nil(t, records[1]["labels"])
}

func TestJSONWriterLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w := NewJSONWriter(JSONConfig{Path: path, Format: JSONLines})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	for _, row := range testRows() {
		require.NoError(t, w.AddRow(row))
	}
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.EndScript())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, float64(101), rec["campaign_id"])
}

func TestJSONWriterRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewJSONWriter(JSONConfig{Path: path, Format: JSONRaw})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	require.NoError(t, w.AddRow(testRows()[0]))
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.EndScript())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rows [][]interface{}
	require.NoError(t, json.Unmarshal(data, &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, float64(101), rows[0][0])
	assert.Equal(t, "Brand", rows[0][1])
}

func TestJSONWriterEmptyResultIsValidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	w := NewJSONWriter(JSONConfig{Path: path})

	require.NoError(t, w.BeginScript("perf", testPlan()))
	require.NoError(t, w.BeginCustomer("111"))
	require.NoError(t, w.EndCustomer())
	require.NoError(t, w.EndScript())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Empty(t, records)
}
