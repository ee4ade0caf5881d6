// Package schema resolves resource, struct, and enum type names to field
// metadata. The type graph is mutually recursive (structs referencing
// resources referencing other structs), so types live in an arena of
// descriptors addressed by integer handles rather than in a pointer graph.
package schema

import (
	"fmt"
	"sort"

	"reportql/internal/domain"
)

// Handle addresses a type descriptor inside a Registry's arena.
type Handle int

// NoRef marks a field whose type is primitive rather than a type reference.
const NoRef Handle = -1

// Kind discriminates type descriptors.
type Kind int

const (
	KindMessage Kind = iota
	KindEnum
)

// Primitive field type names accepted by the registry.
const (
	TypeString  = "string"
	TypeInt32   = "int32"
	TypeInt64   = "int64"
	TypeFloat32 = "float32"
	TypeFloat64 = "float64"
	TypeBool    = "bool"
	TypeBytes   = "bytes"
	TypeDate    = "date" // calendar date, string on the wire
)

var primitives = map[string]bool{
	TypeString: true, TypeInt32: true, TypeInt64: true,
	TypeFloat32: true, TypeFloat64: true, TypeBool: true,
	TypeBytes: true, TypeDate: true,
}

// IsPrimitive reports whether name is a primitive field type.
func IsPrimitive(name string) bool { return primitives[name] }

// Field describes one field of a message type.
type Field struct {
	Name      string
	Primitive string // primitive type name, "" when Ref is set
	Ref       Handle // referenced type, NoRef for primitives
	Enum      bool   // Ref points at an enum descriptor
	Repeated  bool
}

// TypeDesc is one entry in the arena: a message (resource or struct) with
// ordered fields, or an enum with its code/name tables.
type TypeDesc struct {
	Name     string
	Kind     Kind
	Resource bool // messages only: usable as a query root

	Fields  []Field        // messages, declaration order
	byField map[string]int // field name -> index into Fields

	names map[int64]string // enums: wire code -> symbolic name
	codes map[string]int64
}

// FieldByName returns the named field of a message descriptor.
func (t *TypeDesc) FieldByName(name string) (Field, bool) {
	i, ok := t.byField[name]
	if !ok {
		return Field{}, false
	}
	return t.Fields[i], true
}

// ValueName returns the symbolic name for an enum wire code.
func (t *TypeDesc) ValueName(code int64) (string, bool) {
	name, ok := t.names[code]
	return name, ok
}

// ValueCode returns the wire code for an enum symbolic name.
func (t *TypeDesc) ValueCode(name string) (int64, bool) {
	code, ok := t.codes[name]
	return code, ok
}

// Registry is an immutable arena of type descriptors with name indexes.
// Build one with a Builder or Load and share it freely; lookups are
// read-only and safe for concurrent use.
type Registry struct {
	arena  []TypeDesc
	byName map[string]Handle
}

// Resource resolves a query root resource name.
func (r *Registry) Resource(name string) (Handle, error) {
	h, ok := r.byName[name]
	if !ok || r.arena[h].Kind != KindMessage || !r.arena[h].Resource {
		return NoRef, domain.ErrUnknownResource(name)
	}
	return h, nil
}

// Message resolves any message (resource or struct) type name.
func (r *Registry) Message(name string) (Handle, error) {
	h, ok := r.byName[name]
	if !ok || r.arena[h].Kind != KindMessage {
		return NoRef, domain.ErrUnknownResource(name)
	}
	return h, nil
}

// Type returns the descriptor for a handle. Handles come from this
// registry's own lookups, so out-of-range access is a programming error.
func (r *Registry) Type(h Handle) *TypeDesc { return &r.arena[h] }

// EnumValueName maps an enum type name and wire code to the symbolic name.
func (r *Registry) EnumValueName(typeName string, code int64) (string, bool) {
	h, ok := r.byName[typeName]
	if !ok || r.arena[h].Kind != KindEnum {
		return "", false
	}
	return r.arena[h].ValueName(code)
}

// TypeNames returns all registered type names, sorted, for diagnostics.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FieldSpec declares one field while building: Type is a primitive name or
// the name of any registered type, resolved (forward references included)
// when Build links the arena.
type FieldSpec struct {
	Name     string
	Type     string
	Repeated bool
}

// F is shorthand for a FieldSpec.
func F(name, typ string) FieldSpec { return FieldSpec{Name: name, Type: typ} }

// FR is shorthand for a repeated FieldSpec.
func FR(name, typ string) FieldSpec { return FieldSpec{Name: name, Type: typ, Repeated: true} }

type pendingType struct {
	name     string
	kind     Kind
	resource bool
	fields   []FieldSpec
	values   map[int64]string
}

// Builder accumulates type declarations and links them into a Registry.
// Declaration order is preserved; references may point forward.
type Builder struct {
	types []pendingType
	seen  map[string]bool
	errs  []error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{seen: map[string]bool{}}
}

func (b *Builder) add(t pendingType) {
	if b.seen[t.name] {
		b.errs = append(b.errs, fmt.Errorf("type %q declared twice", t.name))
		return
	}
	b.seen[t.name] = true
	b.types = append(b.types, t)
}

// Enum declares an enum type with its code/name table.
func (b *Builder) Enum(name string, values map[int64]string) *Builder {
	b.add(pendingType{name: name, kind: KindEnum, values: values})
	return b
}

// Struct declares a non-root message type.
func (b *Builder) Struct(name string, fields ...FieldSpec) *Builder {
	b.add(pendingType{name: name, kind: KindMessage, fields: fields})
	return b
}

// Resource declares a message type usable as a query root.
func (b *Builder) Resource(name string, fields ...FieldSpec) *Builder {
	b.add(pendingType{name: name, kind: KindMessage, resource: true, fields: fields})
	return b
}

// Build links all declarations into an immutable Registry. Field type
// references are resolved by name in a second pass, so mutually recursive
// types need no ordering.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	reg := &Registry{
		arena:  make([]TypeDesc, len(b.types)),
		byName: make(map[string]Handle, len(b.types)),
	}
	for i, t := range b.types {
		reg.byName[t.name] = Handle(i)
	}

	for i, t := range b.types {
		desc := TypeDesc{Name: t.name, Kind: t.kind, Resource: t.resource}
		switch t.kind {
		case KindEnum:
			desc.names = make(map[int64]string, len(t.values))
			desc.codes = make(map[string]int64, len(t.values))
			for code, name := range t.values {
				desc.names[code] = name
				desc.codes[name] = code
			}
		case KindMessage:
			desc.Fields = make([]Field, 0, len(t.fields))
			desc.byField = make(map[string]int, len(t.fields))
			for _, fs := range t.fields {
				if fs.Name == "" {
					return nil, fmt.Errorf("type %q: field with empty name", t.name)
				}
				if _, dup := desc.byField[fs.Name]; dup {
					return nil, fmt.Errorf("type %q: field %q declared twice", t.name, fs.Name)
				}
				f := Field{Name: fs.Name, Ref: NoRef, Repeated: fs.Repeated}
				if IsPrimitive(fs.Type) {
					f.Primitive = fs.Type
				} else {
					ref, ok := reg.byName[fs.Type]
					if !ok {
						return nil, fmt.Errorf("type %q: field %q references unknown type %q",
							t.name, fs.Name, fs.Type)
					}
					f.Ref = ref
					f.Enum = b.types[ref].kind == KindEnum
				}
				desc.byField[fs.Name] = len(desc.Fields)
				desc.Fields = append(desc.Fields, f)
			}
		}
		reg.arena[i] = desc
	}
	return reg, nil
}
