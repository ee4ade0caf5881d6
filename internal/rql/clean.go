// Package rql compiles report query text into a typed query plan: comment
// stripping, select-list parsing with per-field customizers, an optional
// trailing function-definitions block, and schema-driven type resolution.
package rql

import "strings"

// Clean strips single-line (# and --) and block (/* */) comments, drops
// blank lines, and collapses whitespace runs to single spaces. Comment
// markers inside quoted strings are left alone.
func Clean(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	var quote byte
	for i := 0; i < len(text); {
		c := text[i]
		if quote != 0 {
			out.WriteByte(c)
			if c == quote {
				quote = 0
			}
			i++
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			out.WriteByte(c)
			i++
		case c == '#':
			i = skipToLineEnd(text, i)
		case c == '-' && i+1 < len(text) && text[i+1] == '-':
			i = skipToLineEnd(text, i)
		case c == '/' && i+1 < len(text) && text[i+1] == '*':
			end := strings.Index(text[i+2:], "*/")
			if end < 0 {
				i = len(text)
			} else {
				i += 2 + end + 2
			}
		default:
			out.WriteByte(c)
			i++
		}
	}
	return collapseWhitespace(out.String())
}

func skipToLineEnd(text string, i int) int {
	for i < len(text) && text[i] != '\n' {
		i++
	}
	return i
}

// collapseWhitespace folds whitespace runs outside quotes into single
// spaces and trims the ends.
func collapseWhitespace(text string) string {
	var out strings.Builder
	out.Grow(len(text))

	var quote byte
	space := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			out.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch {
		case c == '\'' || c == '"':
			quote = c
			space = false
			out.WriteByte(c)
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			space = true
		default:
			if space && out.Len() > 0 {
				out.WriteByte(' ')
			}
			space = false
			out.WriteByte(c)
		}
	}
	return out.String()
}
