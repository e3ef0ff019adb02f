package host

import (
	"github.com/wippyai/propbridge/internal/layout"
)

// EnumCase is one named value of an enum.
type EnumCase struct {
	Name  string
	Value uint32
}

// Cases numbers names sequentially from zero.
func Cases(names ...string) []EnumCase {
	out := make([]EnumCase, len(names))
	for i, n := range names {
		out[i] = EnumCase{Name: n, Value: uint32(i)}
	}
	return out
}

// Enum is a named set of integer values stored in the smallest unsigned
// integer that holds the largest value.
type Enum struct {
	name    string
	cases   []EnumCase
	byName  map[string]uint32
	byValue map[uint32]string
	size    uint32
	typ     *Type
}

func newEnum(name string, cases []EnumCase) *Enum {
	e := &Enum{
		name:    name,
		cases:   append([]EnumCase(nil), cases...),
		byName:  make(map[string]uint32, len(cases)),
		byValue: make(map[uint32]string, len(cases)),
	}
	var maxValue uint32
	for _, c := range cases {
		e.byName[c.Name] = c.Value
		e.byValue[c.Value] = c.Name
		if c.Value > maxValue {
			maxValue = c.Value
		}
	}
	e.size = layout.EnumSize(maxValue)
	e.typ = &Type{kind: KindEnum, enum: e}
	return e
}

func (e *Enum) Name() string { return e.name }

// Type returns the host type of values of this enum.
func (e *Enum) Type() *Type { return e.typ }

func (e *Enum) Info() layout.Info { return layout.Info{Size: e.size, Align: e.size} }

// Cases returns the cases in declaration order.
func (e *Enum) Cases() []EnumCase {
	return append([]EnumCase(nil), e.cases...)
}

// Lookup returns the value of the named case.
func (e *Enum) Lookup(name string) (uint32, bool) {
	v, ok := e.byName[name]
	return v, ok
}

// NameOf returns the case name for v.
func (e *Enum) NameOf(v uint32) (string, bool) {
	n, ok := e.byValue[v]
	return n, ok
}
