package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// fileDoc is the YAML descriptor document shape. Field lists are ordered:
// declaration order drives wildcard expansion.
type fileDoc struct {
	Enums     map[string]enumDoc     `yaml:"enums"`
	Structs   map[string]messageDoc  `yaml:"structs"`
	Resources map[string]messageDoc  `yaml:"resources"`
}

type enumDoc struct {
	Values map[int64]string `yaml:"values"`
}

type messageDoc struct {
	Fields []fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Repeated bool   `yaml:"repeated"`
}

// Load reads a YAML schema descriptor and links it into a Registry.
// Unknown document keys are rejected.
func Load(r io.Reader) (*Registry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}

	b := NewBuilder()
	// Map iteration order does not matter for linking: references resolve
	// by name in Build's second pass.
	for name, e := range doc.Enums {
		if len(e.Values) == 0 {
			return nil, fmt.Errorf("enum %q has no values", name)
		}
		b.Enum(name, e.Values)
	}
	for name, m := range doc.Structs {
		b.Struct(name, toSpecs(m.Fields)...)
	}
	for name, m := range doc.Resources {
		b.Resource(name, toSpecs(m.Fields)...)
	}
	return b.Build()
}

// LoadFile reads a YAML schema descriptor from disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	reg, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}

func toSpecs(fields []fieldDoc) []FieldSpec {
	specs := make([]FieldSpec, len(fields))
	for i, f := range fields {
		specs[i] = FieldSpec{Name: f.Name, Type: f.Type, Repeated: f.Repeated}
	}
	return specs
}
