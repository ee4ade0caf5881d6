package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"reportql/internal/domain"
)

const (
	defaultMaxSteps = uint64(50_000)
	defaultTimeout  = 2 * time.Second
)

// Evaluator runs ${...} expression blocks and inline column transforms in a
// sandboxed Starlark thread. Now is injectable for deterministic tests.
type Evaluator struct {
	Now      func() time.Time
	MaxSteps uint64
	Timeout  time.Duration
}

// NewEvaluator returns an Evaluator with the default sandbox limits.
func NewEvaluator() *Evaluator {
	return &Evaluator{Now: time.Now, MaxSteps: defaultMaxSteps, Timeout: defaultTimeout}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Evaluator) newThread(name string) *starlark.Thread {
	thread := &starlark.Thread{Name: name}
	if e.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(e.MaxSteps)
	}
	return thread
}

// env builds the predeclared environment: builtins plus macro bindings.
// Numeric-looking macro values are bound as ints so they participate in
// arithmetic directly.
func (e *Evaluator) env(macros map[string]string) starlark.StringDict {
	env := starlark.StringDict{
		"today":    starlark.NewBuiltin("today", e.builtinToday),
		"now":      starlark.NewBuiltin("now", e.builtinNow),
		"date":     starlark.NewBuiltin("date", builtinDate),
		"datetime": starlark.NewBuiltin("datetime", builtinDatetime),
		"duration": starlark.NewBuiltin("duration", builtinDuration),
		"period":   starlark.NewBuiltin("period", builtinPeriod),
		"days":     starlark.NewBuiltin("days", builtinDays),
		"months":   starlark.NewBuiltin("months", builtinMonths),
		"years":    starlark.NewBuiltin("years", builtinYears),
		"format":   starlark.NewBuiltin("format", builtinFormat),
	}
	for name, value := range macros {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			env[name] = starlark.MakeInt64(n)
		} else {
			env[name] = starlark.String(value)
		}
	}
	return env
}

// Eval evaluates one expression and returns the raw Starlark value.
func (e *Evaluator) Eval(src string, macros map[string]string) (starlark.Value, error) {
	fn, err := starlark.ExprFuncOptions(&syntax.FileOptions{}, "expr", src, e.env(macros))
	if err != nil {
		return nil, compileError(src, err)
	}

	thread := e.newThread("expr")
	var result starlark.Value
	err = runWithTimeout(thread, e.Timeout, func() error {
		v, callErr := starlark.Call(thread, fn, nil, nil)
		result = v
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", src, err)
	}
	return result, nil
}

// EvalString evaluates one expression and renders the result as query text.
func (e *Evaluator) EvalString(src string, macros map[string]string) (string, error) {
	v, err := e.Eval(src, macros)
	if err != nil {
		return "", err
	}
	return Render(v), nil
}

// ExpandExpressions replaces every ${...} block in text with its evaluated,
// rendered value. Macro substitution must already have happened; blocks may
// reference macro values by bare name.
func (e *Evaluator) ExpandExpressions(text string, macros map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(text))

	for i := 0; i < len(text); {
		if text[i] != '$' || i+1 >= len(text) || text[i+1] != '{' {
			out.WriteByte(text[i])
			i++
			continue
		}
		end, ok := closeBrace(text, i+1)
		if !ok {
			return "", domain.ErrSyntax("unterminated ${...} expression at offset %d", i)
		}
		rendered, err := e.EvalString(text[i+2:end], macros)
		if err != nil {
			return "", err
		}
		out.WriteString(rendered)
		i = end + 1
	}
	return out.String(), nil
}

// CompileTransform compiles a one-parameter expression body into a reusable
// column transform. The body sees the parameter plus the standard builtins.
func (e *Evaluator) CompileTransform(name, param, body string) (domain.Transform, error) {
	src := fmt.Sprintf("lambda %s: (%s)", param, body)
	fn, err := starlark.ExprFuncOptions(&syntax.FileOptions{}, name, src, e.env(nil))
	if err != nil {
		return nil, compileError(body, err)
	}

	thread := e.newThread("transform-compile")
	lambda, err := starlark.Call(thread, fn, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("compile function %q: %w", name, err)
	}
	// Transforms run from parallel account goroutines.
	lambda.Freeze()

	return func(v interface{}) (interface{}, error) {
		arg, err := toStarlark(v)
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", name, err)
		}
		callThread := e.newThread("transform")
		var result starlark.Value
		err = runWithTimeout(callThread, e.Timeout, func() error {
			out, callErr := starlark.Call(callThread, lambda, starlark.Tuple{arg}, nil)
			result = out
			return callErr
		})
		if err != nil {
			return nil, fmt.Errorf("function %q: %w", name, err)
		}
		return fromStarlark(result), nil
	}, nil
}

var undefinedRe = regexp.MustCompile(`undefined: (\w+)`)

// compileError maps Starlark resolve failures for unknown names onto the
// macro taxonomy; everything else is a syntax problem in the expression.
func compileError(src string, err error) error {
	if m := undefinedRe.FindStringSubmatch(err.Error()); m != nil {
		return domain.ErrUnresolvedMacros(m[1])
	}
	return domain.ErrSyntax("invalid expression %q: %v", src, err)
}

// runWithTimeout mirrors the sandbox discipline used for all embedded
// evaluation: cancel the thread when the wall clock expires, then wait for
// it to unwind.
func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("expression timed out")
		<-done
		return fmt.Errorf("expression timed out after %s", timeout)
	}
}

// Render converts an evaluated value to query text. Integral floats render
// without a decimal part so arithmetic like (5+5)/10 splices as "1".
func Render(v starlark.Value) string {
	switch val := v.(type) {
	case starlark.String:
		return string(val)
	case starlark.Float:
		return strconv.FormatFloat(float64(val), 'f', -1, 64)
	case starlark.Bool:
		if bool(val) {
			return "true"
		}
		return "false"
	case starlark.NoneType:
		return ""
	default:
		return v.String()
	}
}

func toStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(val), nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int32:
		return starlark.MakeInt64(int64(val)), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case time.Time:
		return DateTime{t: val}, nil
	default:
		return nil, fmt.Errorf("unsupported argument type %T", v)
	}
}

func fromStarlark(v starlark.Value) interface{} {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.String:
		return string(val)
	case starlark.Bool:
		return bool(val)
	case starlark.Int:
		if n, ok := val.Int64(); ok {
			return n
		}
		return val.String()
	case starlark.Float:
		return float64(val)
	default:
		return Render(v)
	}
}

// === builtins ===

func (e *Evaluator) builtinToday(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return NewDate(e.now()), nil
}

func (e *Evaluator) builtinNow(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return DateTime{t: e.now()}, nil
}

func builtinDate(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	return ParseDate(s)
}

func builtinDatetime(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	return ParseDateTime(s)
}

func builtinDuration(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	return ParseDuration(s)
}

func builtinPeriod(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var s string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &s); err != nil {
		return nil, err
	}
	return ParsePeriod(s)
}

func builtinDays(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &n); err != nil {
		return nil, err
	}
	return Period{Days: n}, nil
}

func builtinMonths(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &n); err != nil {
		return nil, err
	}
	return Period{Months: n}, nil
}

func builtinYears(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var n int
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n", &n); err != nil {
		return nil, err
	}
	return Period{Years: n}, nil
}

func builtinFormat(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	var pattern string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value", &v, "pattern", &pattern); err != nil {
		return nil, err
	}
	layout := toGoLayout(pattern)
	switch val := v.(type) {
	case Date:
		return starlark.String(val.Time().Format(layout)), nil
	case DateTime:
		return starlark.String(val.Time().Format(layout)), nil
	default:
		return nil, fmt.Errorf("format: unsupported value type %s", v.Type())
	}
}

// layoutTokens maps date-pattern tokens to Go reference-time fragments,
// longest token first.
var layoutTokens = []struct{ from, to string }{
	{"yyyy", "2006"},
	{"YYYY", "2006"},
	{"MM", "01"},
	{"dd", "02"},
	{"DD", "02"},
	{"HH", "15"},
	{"mm", "04"},
	{"ss", "05"},
}

func toGoLayout(pattern string) string {
	var out strings.Builder
	for i := 0; i < len(pattern); {
		matched := false
		for _, tok := range layoutTokens {
			if strings.HasPrefix(pattern[i:], tok.from) {
				out.WriteString(tok.to)
				i += len(tok.from)
				matched = true
				break
			}
		}
		if !matched {
			out.WriteByte(pattern[i])
			i++
		}
	}
	return out.String()
}

// closeBrace finds the brace closing the block opened at open, tracking
// nesting depth and quoted strings.
func closeBrace(text string, open int) (int, bool) {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
