package rql

import (
	"strings"

	"reportql/internal/domain"
	"reportql/internal/expr"
	"reportql/internal/schema"
)

// resolver assigns a concrete type to every selected column by walking the
// schema graph from the query's root resource.
type resolver struct {
	reg  *schema.Registry
	eval *expr.Evaluator
}

// Resolve turns a parsed query into a typed, immutable QueryPlan.
func Resolve(q *parsedQuery, reg *schema.Registry, eval *expr.Evaluator) (*domain.QueryPlan, error) {
	root, err := reg.Resource(q.Resource)
	if err != nil {
		return nil, err
	}
	r := &resolver{reg: reg, eval: eval}

	functions, err := r.compileFunctions(q.Functions)
	if err != nil {
		return nil, err
	}

	items, err := r.expandWildcards(q.Items, root)
	if err != nil {
		return nil, err
	}

	plan := &domain.QueryPlan{
		Resource:  q.Resource,
		Functions: functions,
	}
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		name := item.ColumnName()
		if _, dup := seen[name]; dup {
			return nil, domain.ErrDuplicateColumn(name)
		}
		seen[name] = struct{}{}

		ft, err := r.resolveField(root, item.Path, item.Customizer)
		if err != nil {
			return nil, err
		}
		if item.Customizer.Kind == domain.CustomizerFunction {
			if _, ok := functions[item.Customizer.Name]; !ok {
				return nil, domain.ErrSyntax("undefined function $%s in %q", item.Customizer.Name, item.Raw)
			}
		}

		plan.Fields = append(plan.Fields, item.Path)
		plan.ColumnNames = append(plan.ColumnNames, name)
		plan.Customizers = append(plan.Customizers, item.Customizer)
		plan.ColumnTypes = append(plan.ColumnTypes, ft)
	}

	plan.QueryText = buildQueryText(plan.Fields, q.Resource, q.Tail)
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// buildQueryText reconstructs the text sent to the fetch collaborator:
// plain field paths, no aliases, customizers, or function definitions.
func buildQueryText(fields []string, resource, tail string) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(fields, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(resource)
	if tail != "" {
		sb.WriteByte(' ')
		sb.WriteString(tail)
	}
	return sb.String()
}

func (r *resolver) compileFunctions(defs []funcDef) (map[string]domain.Transform, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	functions := make(map[string]domain.Transform, len(defs))
	for _, def := range defs {
		if _, dup := functions[def.Name]; dup {
			return nil, domain.ErrSyntax("function %q defined twice", def.Name)
		}
		fn, err := r.eval.CompileTransform(def.Name, def.Param, def.Body)
		if err != nil {
			return nil, err
		}
		functions[def.Name] = fn
	}
	return functions, nil
}

// resolveField walks one dotted path from the root resource and applies the
// customizer's effect on the resulting type.
func (r *resolver) resolveField(root schema.Handle, path string, c domain.Customizer) (domain.FieldType, error) {
	base, elem, err := r.walk(root, path)
	if err != nil {
		return domain.FieldType{}, err
	}

	switch c.Kind {
	case domain.CustomizerNestedField:
		// The nested walk starts from the value's own struct type; when the
		// value is repeated it applies element-wise, and the result is
		// repeated if either side is.
		if base.Kind != domain.KindStruct {
			return domain.FieldType{}, domain.ErrSyntax(
				"nested-field customizer on non-struct field %q", path)
		}
		nested, _, err := r.walk(elem, c.Path)
		if err != nil {
			return domain.FieldType{}, err
		}
		nested.Repeated = nested.Repeated || base.Repeated
		return nested, nil

	case domain.CustomizerFunction:
		// The transform's return type is not statically known.
		return domain.FieldType{Kind: domain.KindPrimitive, TypeName: schema.TypeString,
			Repeated: base.Repeated}, nil

	default:
		return base, nil
	}
}

// walk resolves a dotted path inside the message addressed by scope,
// returning the terminal field's type and, for struct terminals, the handle
// of the struct type for further navigation.
func (r *resolver) walk(scope schema.Handle, path string) (domain.FieldType, schema.Handle, error) {
	segments := strings.Split(path, ".")
	for i, seg := range segments {
		desc := r.reg.Type(scope)
		field, ok := desc.FieldByName(seg)
		if !ok {
			return domain.FieldType{}, schema.NoRef, domain.ErrUnknownField(seg, desc.Name)
		}
		last := i == len(segments)-1

		if field.Repeated && !last {
			return domain.FieldType{}, schema.NoRef, domain.ErrSyntax(
				"cannot navigate through repeated field %q in %q; use a nested-field customizer", seg, path)
		}

		switch {
		case field.Primitive != "":
			if !last {
				return domain.FieldType{}, schema.NoRef, domain.ErrUnknownField(segments[i+1], seg)
			}
			return domain.FieldType{Kind: domain.KindPrimitive, TypeName: field.Primitive,
				Repeated: field.Repeated}, schema.NoRef, nil

		case field.Enum:
			if !last {
				return domain.FieldType{}, schema.NoRef, domain.ErrUnknownField(segments[i+1], seg)
			}
			return domain.FieldType{Kind: domain.KindEnum, TypeName: r.reg.Type(field.Ref).Name,
				Repeated: field.Repeated}, schema.NoRef, nil

		default: // message
			if last {
				return domain.FieldType{Kind: domain.KindStruct, TypeName: r.reg.Type(field.Ref).Name,
					Repeated: field.Repeated}, field.Ref, nil
			}
			scope = field.Ref
		}
	}
	// Unreachable: the loop always returns on the last segment.
	return domain.FieldType{}, schema.NoRef, domain.ErrSyntax("empty field path")
}

// expandWildcards replaces each * item, in place, with every terminal
// primitive or enum field of the root resource in schema declaration order,
// skipping any column already selected explicitly.
func (r *resolver) expandWildcards(items []selectItem, root schema.Handle) ([]selectItem, error) {
	hasWildcard := false
	for _, it := range items {
		if it.Wildcard {
			hasWildcard = true
			break
		}
	}
	if !hasWildcard {
		return items, nil
	}

	explicit := make(map[string]struct{})
	for _, it := range items {
		if !it.Wildcard {
			explicit[it.Path] = struct{}{}
			explicit[it.ColumnName()] = struct{}{}
		}
	}

	var expanded []selectItem
	for _, it := range items {
		if !it.Wildcard {
			expanded = append(expanded, it)
			continue
		}
		for _, path := range r.terminalFields(root, "") {
			if _, taken := explicit[path]; taken {
				continue
			}
			explicit[path] = struct{}{}
			expanded = append(expanded, selectItem{Raw: path, Path: path})
		}
	}
	return expanded, nil
}

// terminalFields lists the dotted paths of all primitive and enum leaves
// under a message type, declaration order, depth first. Repeated message
// subtrees are skipped: their interiors are unreachable without a
// nested-field customizer.
func (r *resolver) terminalFields(h schema.Handle, prefix string) []string {
	var paths []string
	for _, field := range r.reg.Type(h).Fields {
		path := field.Name
		if prefix != "" {
			path = prefix + "." + field.Name
		}
		switch {
		case field.Primitive != "" || field.Enum:
			paths = append(paths, path)
		case field.Repeated:
			// skip
		default:
			paths = append(paths, r.terminalFields(field.Ref, path)...)
		}
	}
	return paths
}
