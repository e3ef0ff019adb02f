package schema

import (
	"os"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// Schema is a YAML document of host type definitions.
type Schema struct {
	Enums      []Enum   `yaml:"enums"`
	Interfaces []string `yaml:"interfaces"`
	Structs    []Record `yaml:"structs"`
	Classes    []Class  `yaml:"classes"`
}

type Enum struct {
	Name  string     `yaml:"name"`
	Cases []EnumCase `yaml:"cases"`
}

// EnumCase accepts either a bare name or {name, value}.
type EnumCase struct {
	Name  string  `yaml:"name"`
	Value *uint32 `yaml:"value"`
}

func (c *EnumCase) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Name = node.Value
		return nil
	}
	type plain EnumCase
	return node.Decode((*plain)(c))
}

type Field struct {
	Name  string   `yaml:"name"`
	Type  string   `yaml:"type"`
	Flags []string `yaml:"flags"`
}

type Record struct {
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

type Class struct {
	Name       string   `yaml:"name"`
	Super      string   `yaml:"super"`
	Interfaces []string `yaml:"interfaces"`
	Fields     []Field  `yaml:"fields"`
}

var flagNames = map[string]host.FieldFlags{
	"out":      host.FlagOut,
	"ref":      host.FlagRef,
	"readonly": host.FlagReadOnly,
}

// Parse decodes a schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(errors.PhaseSchema, errors.KindInvalidData, err, "decode schema")
	}

	var names []string
	names = append(names, lo.Map(s.Enums, func(e Enum, _ int) string { return e.Name })...)
	names = append(names, s.Interfaces...)
	names = append(names, lo.Map(s.Structs, func(r Record, _ int) string { return r.Name })...)
	names = append(names, lo.Map(s.Classes, func(c Class, _ int) string { return c.Name })...)
	if lo.Contains(names, "") {
		return nil, errors.InvalidInput(errors.PhaseSchema, "type with empty name")
	}
	if dup := lo.FindDuplicates(names); len(dup) > 0 {
		return nil, errors.New(errors.PhaseSchema, errors.KindInvalidInput).
			Value(dup).
			Detail("duplicate type names: %v", dup).
			Build()
	}
	return &s, nil
}

// Load parses data and applies it to reg.
func Load(reg *host.Registry, data []byte) (*Schema, error) {
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(reg); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadFile reads and applies a schema file.
func LoadFile(reg *host.Registry, path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseSchema, errors.KindNotFound, err, path)
	}
	return Load(reg, data)
}

// Apply defines every type of s in reg. Enums and interfaces come first,
// then structs in document order, then classes after their superclass.
func (s *Schema) Apply(reg *host.Registry) error {
	for _, e := range s.Enums {
		cases := make([]host.EnumCase, len(e.Cases))
		next := uint32(0)
		for i, c := range e.Cases {
			if c.Value != nil {
				next = *c.Value
			}
			cases[i] = host.EnumCase{Name: c.Name, Value: next}
			next++
		}
		if _, err := reg.DefineEnum(e.Name, cases...); err != nil {
			return err
		}
	}

	for _, name := range s.Interfaces {
		if _, err := reg.DefineInterface(name); err != nil {
			return err
		}
	}

	// Forward references between classes resolve to declared shells.
	for _, c := range s.Classes {
		reg.DeclareClass(c.Name)
	}

	for _, r := range s.Structs {
		specs, err := fieldSpecs(reg, r.Name, r.Fields)
		if err != nil {
			return err
		}
		if _, err := reg.DefineStruct(r.Name, specs...); err != nil {
			return err
		}
	}

	ordered, err := classOrder(s.Classes)
	if err != nil {
		return err
	}
	for _, c := range ordered {
		var super *host.Class
		if c.Super != "" {
			var ok bool
			if super, ok = reg.Class(c.Super); !ok {
				return errors.NotFound(errors.PhaseSchema, "superclass "+c.Super+" of "+c.Name)
			}
		}
		specs, err := fieldSpecs(reg, c.Name, c.Fields)
		if err != nil {
			return err
		}
		class, err := reg.DefineClass(c.Name, super, specs...)
		if err != nil {
			return err
		}
		for _, name := range lo.Uniq(c.Interfaces) {
			iface, ok := reg.Interface(name)
			if !ok {
				return errors.NotFound(errors.PhaseSchema, "interface "+name+" of "+c.Name)
			}
			class.AddInterface(iface)
		}
	}

	if undefined := reg.Undefined(); len(undefined) > 0 {
		return errors.New(errors.PhaseSchema, errors.KindNotFound).
			Value(undefined).
			Detail("referenced classes never defined: %v", undefined).
			Build()
	}
	return nil
}

func fieldSpecs(reg *host.Registry, owner string, fields []Field) ([]host.FieldSpec, error) {
	specs := make([]host.FieldSpec, 0, len(fields))
	for _, f := range fields {
		t, err := reg.ParseType(f.Type)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseSchema, errors.KindInvalidInput, err, owner+"."+f.Name)
		}
		var flags host.FieldFlags
		for _, name := range f.Flags {
			flag, ok := flagNames[name]
			if !ok {
				return nil, errors.InvalidInput(errors.PhaseSchema, "unknown flag "+name+" on "+owner+"."+f.Name)
			}
			flags |= flag
		}
		specs = append(specs, host.FieldSpec{Name: f.Name, Type: t, Flags: flags})
	}
	return specs, nil
}

// classOrder sorts classes so every superclass defined in the document
// precedes its subclasses. Superclasses outside the document must
// already exist in the registry.
func classOrder(classes []Class) ([]Class, error) {
	byName := lo.SliceToMap(classes, func(c Class) (string, Class) { return c.Name, c })
	state := make(map[string]int, len(classes))
	out := make([]Class, 0, len(classes))

	var visit func(c Class) error
	visit = func(c Class) error {
		switch state[c.Name] {
		case 1:
			return errors.InvalidInput(errors.PhaseSchema, "inheritance cycle at "+c.Name)
		case 2:
			return nil
		}
		state[c.Name] = 1
		if super, ok := byName[c.Super]; ok {
			if err := visit(super); err != nil {
				return err
			}
		}
		state[c.Name] = 2
		out = append(out, c)
		return nil
	}
	for _, c := range classes {
		if err := visit(c); err != nil {
			return nil, err
		}
	}
	return out, nil
}
