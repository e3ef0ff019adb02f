package host

import (
	"github.com/wippyai/propbridge/internal/layout"
)

// Struct is a value type laid out inline wherever it is stored.
type Struct struct {
	record
	typ *Type
}

func newStruct(name string) *Struct {
	s := &Struct{record: newRecord(name, 0)}
	s.typ = &Type{kind: KindStruct, strct: s}
	return s
}

func (s *Struct) Name() string { return s.name }

// Type returns the host type of values of this struct.
func (s *Struct) Type() *Type { return s.typ }

func (s *Struct) Info() layout.Info { return s.info() }
func (s *Struct) Size() uint32      { return s.info().Size }

// Fields returns the fields in declaration order.
func (s *Struct) Fields() []*Field {
	out := make([]*Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by name.
func (s *Struct) Field(name string) (*Field, bool) {
	f, ok := s.index[name]
	return f, ok
}
