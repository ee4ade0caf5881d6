package rql

import (
	"strconv"
	"strings"

	"reportql/internal/domain"
)

// selectItem is one parsed entry of the select list.
type selectItem struct {
	Raw        string // left side with spaces stripped, customizer included
	Path       string // dotted field path, customizer suffix removed
	Customizer domain.Customizer
	Alias      string
	Wildcard   bool
}

// ColumnName is the output column: the alias when present, else the raw
// field text.
func (it selectItem) ColumnName() string {
	if it.Alias != "" {
		return it.Alias
	}
	return it.Raw
}

// funcDef is one named inline transform from the functions block.
type funcDef struct {
	Name  string
	Param string
	Body  string
}

// parsedQuery is the untyped parse result, resolved against a schema
// registry in a second pass.
type parsedQuery struct {
	Items     []selectItem
	Resource  string
	Tail      string // clauses after the resource name (filters etc.), passed through
	Functions []funcDef
}

// Parse splits cleaned query text into select items, the root resource,
// pass-through tail clauses, and function definitions.
func Parse(text string) (*parsedQuery, error) {
	text = strings.TrimSpace(text)
	if !hasKeywordPrefix(text, "SELECT") {
		return nil, domain.ErrSyntax("query must start with SELECT")
	}
	rest := strings.TrimSpace(text[len("SELECT"):])

	fromIdx := findKeyword(rest, "FROM")
	if fromIdx < 0 {
		return nil, domain.ErrSyntax("query has no FROM clause")
	}
	selectList := strings.TrimSpace(rest[:fromIdx])
	afterFrom := strings.TrimSpace(rest[fromIdx+len("FROM"):])
	if afterFrom == "" {
		return nil, domain.ErrSyntax("FROM clause names no resource")
	}

	resource := afterFrom
	tail := ""
	if i := strings.IndexByte(afterFrom, ' '); i >= 0 {
		resource, tail = afterFrom[:i], strings.TrimSpace(afterFrom[i+1:])
	}

	var functions []funcDef
	if fnIdx := findKeyword(" "+tail, "FUNCTIONS"); fnIdx >= 0 {
		defs, err := parseFunctions(strings.TrimSpace(tail[fnIdx-1+len("FUNCTIONS"):]))
		if err != nil {
			return nil, err
		}
		functions = defs
		tail = strings.TrimSpace(tail[:fnIdx-1])
	}

	items, err := parseSelectList(selectList)
	if err != nil {
		return nil, err
	}

	return &parsedQuery{
		Items:     items,
		Resource:  resource,
		Tail:      tail,
		Functions: functions,
	}, nil
}

// parseSelectList splits on top-level commas and parses each item. One
// trailing comma immediately before FROM is tolerated.
func parseSelectList(list string) ([]selectItem, error) {
	if list == "" {
		return nil, domain.ErrSyntax("empty select list")
	}
	parts := splitTopLevel(list, ',')

	var items []selectItem
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			if i == len(parts)-1 {
				continue // trailing comma
			}
			return nil, domain.ErrSyntax("empty select item at position %d", i+1)
		}
		item, err := parseSelectItem(part)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return nil, domain.ErrSyntax("empty select list")
	}
	return items, nil
}

func parseSelectItem(item string) (selectItem, error) {
	field := item
	alias := ""
	if asIdx := findKeyword(item, "AS"); asIdx >= 0 {
		field = strings.TrimSpace(item[:asIdx])
		alias = strings.TrimSpace(item[asIdx+len("AS"):])
		if alias == "" {
			return selectItem{}, domain.ErrSyntax("missing alias after AS in %q", item)
		}
	}

	// Internal spaces in the field expression are insignificant.
	field = strings.ReplaceAll(field, " ", "")
	if field == "" {
		return selectItem{}, domain.ErrSyntax("empty field in select item %q", item)
	}
	if field == "*" {
		if alias != "" {
			return selectItem{}, domain.ErrSyntax("wildcard cannot be aliased")
		}
		return selectItem{Raw: "*", Wildcard: true}, nil
	}

	path, customizer, err := parseCustomizer(field)
	if err != nil {
		return selectItem{}, err
	}
	if path == "" {
		return selectItem{}, domain.ErrSyntax("empty field in select item %q", item)
	}

	return selectItem{Raw: field, Path: path, Customizer: customizer, Alias: alias}, nil
}

// parseCustomizer strips a customizer suffix off a field expression.
// Longest-match precedence: ~N, then :$name, then :path. Exactly one
// customizer is permitted.
func parseCustomizer(field string) (string, domain.Customizer, error) {
	idx := strings.IndexAny(field, "~:")
	if idx < 0 {
		return field, domain.Customizer{}, nil
	}
	path := field[:idx]
	spec := field[idx:]

	switch {
	case spec[0] == '~':
		n, err := strconv.Atoi(spec[1:])
		if err != nil || n < 0 {
			return "", domain.Customizer{}, domain.ErrSyntax("invalid resource index in %q", field)
		}
		return path, domain.Customizer{Kind: domain.CustomizerResourceIndex, Index: n}, nil

	case strings.HasPrefix(spec, ":$"):
		name := spec[2:]
		if name == "" || strings.ContainsAny(name, "~:$") {
			return "", domain.Customizer{}, domain.ErrSyntax("invalid function reference in %q", field)
		}
		return path, domain.Customizer{Kind: domain.CustomizerFunction, Name: name}, nil

	default: // ':'
		nested := spec[1:]
		if nested == "" || strings.ContainsAny(nested, "~:$") {
			return "", domain.Customizer{}, domain.ErrSyntax("at most one customizer per field in %q", field)
		}
		return path, domain.Customizer{Kind: domain.CustomizerNestedField, Path: nested}, nil
	}
}

// parseFunctions parses `name(param) { body }` definitions. Every body must
// be one matched enclosing block.
func parseFunctions(text string) ([]funcDef, error) {
	var defs []funcDef
	i := 0
	for {
		for i < len(text) && text[i] == ' ' {
			i++
		}
		if i >= len(text) {
			break
		}

		open := strings.IndexByte(text[i:], '(')
		if open < 0 {
			return nil, domain.ErrSyntax("malformed function definition near %q", text[i:])
		}
		name := strings.TrimSpace(text[i : i+open])
		if name == "" || strings.ContainsAny(name, "{}") {
			return nil, domain.ErrSyntax("malformed function definition near %q", text[i:])
		}
		i += open + 1

		closeParen := strings.IndexByte(text[i:], ')')
		if closeParen < 0 {
			return nil, domain.ErrSyntax("unmatched ( in function %q", name)
		}
		param := strings.TrimSpace(text[i : i+closeParen])
		if param == "" {
			return nil, domain.ErrSyntax("function %q must take exactly one parameter", name)
		}
		i += closeParen + 1

		for i < len(text) && text[i] == ' ' {
			i++
		}
		if i >= len(text) || text[i] != '{' {
			return nil, domain.ErrSyntax("function %q has no body block", name)
		}
		end, ok := matchBody(text, i)
		if !ok {
			return nil, domain.ErrSyntax("unmatched { in function %q", name)
		}
		body := strings.TrimSpace(text[i+1 : end])
		if body == "" {
			return nil, domain.ErrSyntax("function %q has an empty body", name)
		}
		defs = append(defs, funcDef{Name: name, Param: param, Body: body})
		i = end + 1
	}
	if len(defs) == 0 {
		return nil, domain.ErrSyntax("FUNCTIONS block defines no functions")
	}
	return defs, nil
}

// matchBody returns the index of the brace closing the block opened at
// open, honoring nesting and quoted strings.
func matchBody(text string, open int) (int, bool) {
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

// splitTopLevel splits on sep outside parentheses, brackets, and quotes.
func splitTopLevel(text string, sep byte) []string {
	var parts []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(text); i++ {
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
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, text[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, text[start:])
}

// hasKeywordPrefix reports whether text starts with the keyword followed by
// a space, case-insensitively.
func hasKeywordPrefix(text, keyword string) bool {
	return len(text) > len(keyword) &&
		strings.EqualFold(text[:len(keyword)], keyword) &&
		text[len(keyword)] == ' '
}

// findKeyword locates a space-delimited keyword outside quotes,
// case-insensitively, returning the index of its first letter or -1.
func findKeyword(text, keyword string) int {
	var quote byte
	for i := 0; i+len(keyword) < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if c != ' ' {
			continue
		}
		rest := text[i+1:]
		if len(rest) >= len(keyword) && strings.EqualFold(rest[:len(keyword)], keyword) {
			after := rest[len(keyword):]
			if after == "" || after[0] == ' ' {
				return i + 1
			}
		}
	}
	return -1
}
