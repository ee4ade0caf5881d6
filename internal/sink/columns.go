// Package sink implements the writer lifecycle against concrete output
// backends: a DuckDB analytical store, delimited text files, JSON
// documents, and the terminal. Each sink derives its physical schema from
// the compiled plan's column types.
package sink

import (
	"fmt"
	"strconv"
	"strings"

	"reportql/internal/domain"
	"reportql/internal/schema"
)

// DuckDBType maps a resolved column type to the store's physical type.
// 32-bit integers widen to BIGINT, floats to DOUBLE; enum and struct
// columns collapse to VARCHAR; repeated columns use native lists.
func DuckDBType(ft domain.FieldType) string {
	base := "VARCHAR"
	if ft.Kind == domain.KindPrimitive {
		switch ft.TypeName {
		case schema.TypeInt32, schema.TypeInt64:
			base = "BIGINT"
		case schema.TypeFloat32, schema.TypeFloat64:
			base = "DOUBLE"
		case schema.TypeBool:
			base = "BOOLEAN"
		case schema.TypeDate:
			base = "DATE"
		}
	}
	if ft.Repeated {
		return base + "[]"
	}
	return base
}

// FormatCell renders one cell as text for delimited and terminal output.
// Array cells are joined with sep.
func FormatCell(v interface{}, sep string) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatCell(item, sep)
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// recordFromRow zips column names with cells for record-shaped output.
func recordFromRow(columns []string, cells domain.Row) map[string]interface{} {
	rec := make(map[string]interface{}, len(columns))
	for i, name := range columns {
		rec[name] = cells[i]
	}
	return rec
}
