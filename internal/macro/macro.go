// Package macro performs text-level placeholder substitution: {name} tokens
// are replaced from a binding map, with built-in and dynamic date macros
// evaluated at substitution time.
package macro

import (
	"strconv"
	"strings"
	"time"
)

// Built-in macro names, supplied automatically unless the caller overrides
// them in the binding map.
const (
	MacroDateISO         = "date_iso"
	MacroCurrentDate     = "current_date"
	MacroCurrentDatetime = "current_datetime"
)

// Engine substitutes {name} placeholders. Now is injectable so dynamic date
// macros are deterministic in tests; the zero value uses time.Now.
type Engine struct {
	Now func() time.Time
}

// New returns an Engine on the system clock.
func New() *Engine {
	return &Engine{Now: time.Now}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Builtins returns the automatic macro bindings for the current moment.
func (e *Engine) Builtins() map[string]string {
	now := e.now()
	return map[string]string{
		MacroDateISO:         now.Format("20060102"),
		MacroCurrentDate:     now.Format("2006-01-02"),
		MacroCurrentDatetime: now.Format("2006-01-02 15:04:05"),
	}
}

// Resolve merges the built-ins under params and expands dynamic date values
// of the form :PATTERN[+N|-N]. Caller-supplied bindings win over built-ins.
func (e *Engine) Resolve(params map[string]string) map[string]string {
	resolved := e.Builtins()
	for name, value := range params {
		if expanded, ok := e.expandDynamicDate(value); ok {
			resolved[name] = expanded
		} else {
			resolved[name] = value
		}
	}
	return resolved
}

// Substitute replaces every {name} token in text with its binding. Names
// with no binding are left in place and collected, first occurrence first,
// each reported once. ${...} expression blocks are passed through untouched;
// they are the expression evaluator's input, not macros.
func (e *Engine) Substitute(text string, params map[string]string) (string, []string) {
	bindings := e.Resolve(params)

	var out strings.Builder
	out.Grow(len(text))
	var unresolved []string
	reported := map[string]bool{}

	for i := 0; i < len(text); {
		c := text[i]
		if c == '$' && i+1 < len(text) && text[i+1] == '{' {
			end := matchBrace(text, i+1)
			out.WriteString(text[i : end+1])
			i = end + 1
			continue
		}
		if c != '{' {
			out.WriteByte(c)
			i++
			continue
		}

		name, end := scanMacroName(text, i)
		if name == "" {
			out.WriteByte(c)
			i++
			continue
		}
		if value, ok := bindings[name]; ok {
			out.WriteString(value)
		} else {
			if !reported[name] {
				reported[name] = true
				unresolved = append(unresolved, name)
			}
			out.WriteString(text[i : end+1])
		}
		i = end + 1
	}
	return out.String(), unresolved
}

// expandDynamicDate expands values like ":YYYYMMDD-7" into the offset date.
// The pattern picks both the output granularity and the offset unit:
// YYYY offsets years, YYYYMM months, YYYYMMDD days.
func (e *Engine) expandDynamicDate(value string) (string, bool) {
	if !strings.HasPrefix(value, ":") {
		return "", false
	}
	body := value[1:]

	pattern := body
	offset := 0
	if idx := strings.IndexAny(body, "+-"); idx > 0 {
		n, err := strconv.Atoi(body[idx:])
		if err != nil {
			return "", false
		}
		pattern, offset = body[:idx], n
	}

	now := e.now()
	switch pattern {
	case "YYYYMMDD":
		return now.AddDate(0, 0, offset).Format("2006-01-02"), true
	case "YYYYMM":
		return now.AddDate(0, offset, 0).Format("2006-01"), true
	case "YYYY":
		return now.AddDate(offset, 0, 0).Format("2006"), true
	}
	return "", false
}

// scanMacroName reads a {name} token starting at the brace. Returns the
// empty string when the braces do not enclose a plain identifier.
func scanMacroName(text string, open int) (string, int) {
	i := open + 1
	for i < len(text) && isIdentChar(text[i]) {
		i++
	}
	if i == open+1 || i >= len(text) || text[i] != '}' {
		return "", open
	}
	return text[open+1 : i], i
}

// matchBrace returns the index of the brace closing the block opened at
// open, honoring nesting and quoted strings. Falls back to end-of-text for
// an unterminated block; the expression evaluator reports that properly.
func matchBrace(text string, open int) int {
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
				return i
			}
		}
	}
	return len(text) - 1
}

func isIdentChar(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
