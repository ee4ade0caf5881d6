package macro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixed is 23:30 local time so day-offset tests would catch any midnight
// boundary mistakes.
var fixed = time.Date(2024, 7, 15, 23, 30, 0, 0, time.UTC)

func fixedEngine() *Engine {
	return &Engine{Now: func() time.Time { return fixed }}
}

func TestSubstitute_Simple(t *testing.T) {
	e := fixedEngine()

	out, unresolved := e.Substitute("abc={xyz}", map[string]string{"xyz": "123"})
	assert.Equal(t, "abc=123", out)
	assert.Empty(t, unresolved)
}

func TestSubstitute_Unresolved(t *testing.T) {
	e := fixedEngine()

	out, unresolved := e.Substitute("abc={xyz}", nil)
	assert.Equal(t, "abc={xyz}", out)
	assert.Equal(t, []string{"xyz"}, unresolved)
}

func TestSubstitute_UnresolvedReportedOnce(t *testing.T) {
	e := fixedEngine()

	_, unresolved := e.Substitute("{a} {b} {a}", map[string]string{})
	assert.Equal(t, []string{"a", "b"}, unresolved)
}

func TestSubstitute_Builtins(t *testing.T) {
	e := fixedEngine()

	out, unresolved := e.Substitute("d={date_iso} c={current_date} t={current_datetime}", nil)
	require.Empty(t, unresolved)
	assert.Equal(t, "d=20240715 c=2024-07-15 t=2024-07-15 23:30:00", out)
}

func TestSubstitute_BuiltinOverride(t *testing.T) {
	e := fixedEngine()

	out, _ := e.Substitute("{date_iso}", map[string]string{"date_iso": "19700101"})
	assert.Equal(t, "19700101", out)
}

func TestSubstitute_DynamicDates(t *testing.T) {
	e := fixedEngine()

	tests := []struct {
		value string
		want  string
	}{
		{":YYYYMMDD", "2024-07-15"},
		{":YYYYMMDD-7", "2024-07-08"},
		{":YYYYMMDD+1", "2024-07-16"},
		{":YYYYMM", "2024-07"},
		{":YYYYMM-1", "2024-06"},
		{":YYYY", "2024"},
		{":YYYY-1", "2023"},
	}
	for _, tt := range tests {
		out, unresolved := e.Substitute("{d}", map[string]string{"d": tt.value})
		require.Empty(t, unresolved, tt.value)
		assert.Equal(t, tt.want, out, tt.value)
	}
}

func TestSubstitute_NonDynamicColonValuePassesThrough(t *testing.T) {
	e := fixedEngine()

	out, _ := e.Substitute("{d}", map[string]string{"d": ":something_else"})
	assert.Equal(t, ":something_else", out)
}

func TestSubstitute_ExpressionBlockUntouched(t *testing.T) {
	e := fixedEngine()

	// ${...} is the expression evaluator's input; macros must not rewrite
	// its interior even when it looks like a {name} token.
	out, unresolved := e.Substitute("x=${foo} y={foo}", map[string]string{"foo": "1"})
	assert.Equal(t, "x=${foo} y=1", out)
	assert.Empty(t, unresolved)
}

func TestSubstitute_BareBraceLiteral(t *testing.T) {
	e := fixedEngine()

	out, unresolved := e.Substitute("a { b } c", nil)
	assert.Equal(t, "a { b } c", out)
	assert.Empty(t, unresolved)
}
