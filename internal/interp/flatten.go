// Package interp turns one raw nested record into a flat output row aligned
// with a compiled query plan, applying customizers and enum/struct
// normalization along the way.
package interp

import "reportql/internal/domain"

// Flatten walks a nested record and indexes every node by its dotted path.
// String-keyed maps continue the path (and are themselves indexed, so
// struct-typed columns resolve in one lookup); arrays and scalars are
// leaves. A map that is just a resource reference carrying its canonical
// name collapses to that name.
func Flatten(record domain.Record) map[string]interface{} {
	flat := make(map[string]interface{})
	flattenInto(flat, "", record)
	return flat
}

func flattenInto(flat map[string]interface{}, prefix string, value interface{}) {
	m, ok := value.(map[string]interface{})
	if !ok {
		flat[prefix] = value
		return
	}
	if prefix != "" {
		// A pure resource reference reads as its canonical name; the
		// reference is still navigable below.
		if name, ok := canonicalName(m); ok {
			flat[prefix] = name
		} else {
			flat[prefix] = m
		}
	}
	for key, v := range m {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		flattenInto(flat, path, v)
	}
}

// canonicalName detects a pure resource-reference object: a single-entry
// map holding only the canonical resource name.
func canonicalName(m map[string]interface{}) (string, bool) {
	if len(m) != 1 {
		return "", false
	}
	for key, v := range m {
		if key != "resource_name" && key != "resourceName" {
			return "", false
		}
		s, ok := v.(string)
		return s, ok
	}
	return "", false
}

// navigate descends further dotted segments into a value, used by the
// nested-field customizer after the plan-level path lookup.
func navigate(value interface{}, segments []string) interface{} {
	for _, seg := range segments {
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil
		}
		value, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return value
}
