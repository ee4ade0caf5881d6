// Package domain defines core types, interfaces, and errors for the report
// query pipeline.
package domain

import (
	"fmt"
	"strings"
)

// SyntaxError indicates a malformed query: bad select list, empty field
// path, or an unmatched function-body delimiter.
type SyntaxError struct {
	Message string
}

func (e *SyntaxError) Error() string { return e.Message }

// UnknownResourceError indicates the query's root resource is not present
// in the schema registry.
type UnknownResourceError struct {
	Resource string
}

func (e *UnknownResourceError) Error() string {
	return fmt.Sprintf("unknown resource %q", e.Resource)
}

// UnknownFieldError indicates a field path segment that the schema does not
// declare on its enclosing type.
type UnknownFieldError struct {
	Field string
	Scope string
}

func (e *UnknownFieldError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("unknown field %q in %s", e.Field, e.Scope)
	}
	return fmt.Sprintf("unknown field %q", e.Field)
}

// DuplicateColumnError indicates two select items resolve to the same
// output column name.
type DuplicateColumnError struct {
	Column string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("duplicate column %q", e.Column)
}

// UnresolvedMacroError indicates macro placeholders that no binding was
// supplied for, or an expression referencing an undefined macro.
type UnresolvedMacroError struct {
	Names []string
}

func (e *UnresolvedMacroError) Error() string {
	return fmt.Sprintf("unresolved macros: %s", strings.Join(e.Names, ", "))
}

// TransientError is a tagged, retryable service failure. Only the outer
// orchestration layer acts on it; this layer merely classifies.
type TransientError struct {
	Tag  string // "connection", "timeout", or "" for plain HTTP failures
	Code int    // numeric service/HTTP code, 0 if none
	Err  error
}

func (e *TransientError) Error() string {
	switch {
	case e.Tag != "" && e.Code != 0:
		return fmt.Sprintf("transient %s failure (code %d): %v", e.Tag, e.Code, e.Err)
	case e.Tag != "":
		return fmt.Sprintf("transient %s failure: %v", e.Tag, e.Err)
	default:
		return fmt.Sprintf("service failure (code %d): %v", e.Code, e.Err)
	}
}

func (e *TransientError) Unwrap() error { return e.Err }

// RowError describes one rejected row inside a partially failed flush.
type RowError struct {
	Index  int // position within the flushed batch
	Reason string
}

// PartialWriteError reports a flush where some rows were rejected. Every
// rejected row is enumerated; callers must never collapse this to a count.
type PartialWriteError struct {
	Sink string
	Rows []RowError
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s: %d of batch rejected (first: row %d: %s)",
		e.Sink, len(e.Rows), e.Rows[0].Index, e.Rows[0].Reason)
}

// FatalWriteError indicates an unrecoverable sink failure.
type FatalWriteError struct {
	Sink string
	Err  error
}

func (e *FatalWriteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Sink, e.Err)
}

func (e *FatalWriteError) Unwrap() error { return e.Err }

// ErrSyntax creates a SyntaxError with a formatted message.
func ErrSyntax(format string, args ...interface{}) *SyntaxError {
	return &SyntaxError{Message: fmt.Sprintf(format, args...)}
}

// ErrUnknownResource creates an UnknownResourceError.
func ErrUnknownResource(resource string) *UnknownResourceError {
	return &UnknownResourceError{Resource: resource}
}

// ErrUnknownField creates an UnknownFieldError scoped to the enclosing type.
func ErrUnknownField(field, scope string) *UnknownFieldError {
	return &UnknownFieldError{Field: field, Scope: scope}
}

// ErrDuplicateColumn creates a DuplicateColumnError.
func ErrDuplicateColumn(column string) *DuplicateColumnError {
	return &DuplicateColumnError{Column: column}
}

// ErrUnresolvedMacros creates an UnresolvedMacroError for the given names.
func ErrUnresolvedMacros(names ...string) *UnresolvedMacroError {
	return &UnresolvedMacroError{Names: names}
}
