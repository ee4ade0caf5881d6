package interp

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"reportql/internal/domain"
	"reportql/internal/schema"
)

// Interpreter flattens raw records into rows matching a compiled plan.
// It is stateless and safe for concurrent use across accounts.
type Interpreter struct {
	reg *schema.Registry
}

// New builds an Interpreter over the registry the plan was compiled with.
func New(reg *schema.Registry) *Interpreter {
	return &Interpreter{reg: reg}
}

// Interpret turns one raw record into an ordered row aligned with
// plan.ColumnNames.
func (in *Interpreter) Interpret(plan *domain.QueryPlan, record domain.Record) (domain.Row, error) {
	flat := Flatten(record)

	row := make(domain.Row, len(plan.Fields))
	for i, field := range plan.Fields {
		value := flat[field]

		value, err := in.applyCustomizer(plan, plan.Customizers[i], value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", plan.ColumnNames[i], err)
		}

		value, err = in.normalize(plan.ColumnTypes[i], value)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", plan.ColumnNames[i], err)
		}
		row[i] = value
	}
	return row, nil
}

func (in *Interpreter) applyCustomizer(plan *domain.QueryPlan, c domain.Customizer, value interface{}) (interface{}, error) {
	if value == nil || c.IsZero() {
		return value, nil
	}
	switch c.Kind {
	case domain.CustomizerResourceIndex:
		return resourceIndex(value, c.Index)

	case domain.CustomizerNestedField:
		segments := strings.Split(c.Path, ".")
		return elementWise(value, func(v interface{}) (interface{}, error) {
			return navigate(v, segments), nil
		})

	case domain.CustomizerFunction:
		fn, ok := plan.Functions[c.Name]
		if !ok {
			return nil, fmt.Errorf("undefined function $%s", c.Name)
		}
		return elementWise(value, fn)
	}
	return value, nil
}

// elementWise applies fn to the value, once per element when the value is
// an array.
func elementWise(value interface{}, fn domain.Transform) (interface{}, error) {
	arr, ok := value.([]interface{})
	if !ok {
		return fn(value)
	}
	out := make([]interface{}, len(arr))
	for i, v := range arr {
		mapped, err := fn(v)
		if err != nil {
			return nil, err
		}
		out[i] = mapped
	}
	return out, nil
}

// resourceIndex splits the composite tail of a resource name on "~" and
// returns the n-th part, coerced to an integer when numeric.
func resourceIndex(value interface{}, n int) (interface{}, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("resource index on non-string value %T", value)
	}
	tail := s
	if slash := strings.LastIndexByte(s, '/'); slash >= 0 {
		tail = s[slash+1:]
	}
	parts := strings.Split(tail, "~")
	if n >= len(parts) {
		return nil, fmt.Errorf("resource index %d out of range for %q", n, s)
	}
	return coerceNumeric(parts[n]), nil
}

func coerceNumeric(s string) interface{} {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

// normalize applies the declared column type: enum wire codes become
// symbolic names, struct values become their canonical representation.
func (in *Interpreter) normalize(ft domain.FieldType, value interface{}) (interface{}, error) {
	if value == nil {
		return nil, nil
	}
	switch ft.Kind {
	case domain.KindEnum:
		return elementWise(value, func(v interface{}) (interface{}, error) {
			return in.enumName(ft.TypeName, v)
		})
	case domain.KindStruct:
		return elementWise(value, func(v interface{}) (interface{}, error) {
			return canonicalize(v)
		})
	default:
		return value, nil
	}
}

// enumName maps a numeric wire code onto the schema's symbolic name.
// Already-symbolic strings pass through.
func (in *Interpreter) enumName(typeName string, value interface{}) (interface{}, error) {
	var code int64
	switch v := value.(type) {
	case int64:
		code = v
	case int:
		code = int64(v)
	case float64:
		code = int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("enum %s: bad wire code %q", typeName, v.String())
		}
		code = n
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return v, nil // already symbolic
		}
		code = n
	default:
		return nil, fmt.Errorf("enum %s: unsupported wire value %T", typeName, value)
	}

	name, ok := in.reg.EnumValueName(typeName, code)
	if !ok {
		return nil, fmt.Errorf("enum %s: unknown wire code %d", typeName, code)
	}
	return name, nil
}

// canonicalize renders a struct value as compact JSON text. Values already
// reduced to a canonical string pass through.
func canonicalize(value interface{}) (interface{}, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("canonicalize struct value: %w", err)
	}
	return string(b), nil
}
