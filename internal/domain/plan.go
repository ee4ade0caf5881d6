package domain

import "fmt"

// TypeKind classifies a resolved column type.
type TypeKind int

const (
	KindPrimitive TypeKind = iota
	KindEnum
	KindStruct
)

// String returns the lower-case kind name.
func (k TypeKind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindEnum:
		return "enum"
	case KindStruct:
		return "struct"
	}
	return fmt.Sprintf("TypeKind(%d)", int(k))
}

// FieldType is the resolved type of one output column.
type FieldType struct {
	Kind     TypeKind
	TypeName string // primitive name, enum type name, or struct type name
	Repeated bool
}

// String renders the type for plan dumps, e.g. "enum(AdGroupStatus)[]".
func (t FieldType) String() string {
	s := t.TypeName
	if t.Kind != KindPrimitive {
		s = fmt.Sprintf("%s(%s)", t.Kind, t.TypeName)
	}
	if t.Repeated {
		s += "[]"
	}
	return s
}

// CustomizerKind discriminates the Customizer variant.
type CustomizerKind int

const (
	CustomizerNone CustomizerKind = iota
	CustomizerResourceIndex
	CustomizerNestedField
	CustomizerFunction
)

// Customizer is a per-column post-processing directive. At most one applies
// to each selected field.
type Customizer struct {
	Kind  CustomizerKind
	Index int    // ResourceIndex: n-th part of the composite resource id
	Path  string // NestedField: further dotted segments into the value
	Name  string // Function: key into QueryPlan.Functions
}

// IsZero reports whether no customizer was specified.
func (c Customizer) IsZero() bool { return c.Kind == CustomizerNone }

// Transform is a named inline single-argument column transform.
type Transform func(v interface{}) (interface{}, error)

// QueryPlan is the immutable output of compiling one query text against one
// macro binding. It is built once and shared read-only across every account
// processed in a run.
type QueryPlan struct {
	QueryText   string // fully resolved text, as sent to the fetch collaborator
	Resource    string // root resource named by the FROM clause
	Fields      []string
	ColumnNames []string
	Customizers []Customizer
	ColumnTypes []FieldType
	Functions   map[string]Transform
}

// Validate checks the plan's structural invariants: the four per-column
// slices are the same length and column names are unique.
func (p *QueryPlan) Validate() error {
	n := len(p.Fields)
	if len(p.ColumnNames) != n || len(p.Customizers) != n || len(p.ColumnTypes) != n {
		return fmt.Errorf("inconsistent plan: %d fields, %d names, %d customizers, %d types",
			n, len(p.ColumnNames), len(p.Customizers), len(p.ColumnTypes))
	}
	seen := make(map[string]struct{}, n)
	for _, name := range p.ColumnNames {
		if _, dup := seen[name]; dup {
			return ErrDuplicateColumn(name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
