package host

import (
	"github.com/wippyai/propbridge/internal/layout"
)

// FieldFlags mark parameter and property behavior.
type FieldFlags uint8

const (
	FlagOut FieldFlags = 1 << iota
	FlagRef
	FlagReturn
	FlagReadOnly
)

// FieldSpec declares a field or parameter before layout.
type FieldSpec struct {
	Name  string
	Type  *Type
	Flags FieldFlags
}

// Field describes one typed slot inside a struct, class, parameter frame
// or container element. Fields are immutable once laid out; a reload
// replaces them with new Field values.
type Field struct {
	Name   string
	Type   *Type
	Offset uint32
	Flags  FieldFlags
	owner  string
	class  *Class
}

// NewField returns a descriptor with no owner, as used for container
// elements and call frames.
func NewField(name string, t *Type, offset uint32, flags FieldFlags) *Field {
	return &Field{Name: name, Type: t, Offset: offset, Flags: flags}
}

// Kind returns the kind of the field's type.
func (f *Field) Kind() Kind {
	return f.Type.Kind()
}

// ContainerAddressOf returns the field's address inside a container that
// starts at base.
func (f *Field) ContainerAddressOf(base uint32) uint32 {
	return base + f.Offset
}

// OwnerClass returns the declaring class, or nil when the field belongs
// to a struct, a frame or a container.
func (f *Field) OwnerClass() *Class {
	return f.class
}

// Owner returns the name of the declaring type, if any.
func (f *Field) Owner() string {
	return f.owner
}

func (f *Field) Has(flag FieldFlags) bool {
	return f.Flags&flag != 0
}

// Path returns the owner-qualified name for error reporting.
func (f *Field) Path() []string {
	if f.owner == "" {
		return []string{f.Name}
	}
	return []string{f.owner, f.Name}
}

// Extent is the byte range [Offset, Offset+Size) occupied by the field.
func (f *Field) Extent() uint32 {
	return f.Offset + f.Type.Size()
}

// record holds an ordered set of laid-out fields.
type record struct {
	name   string
	fields []*Field
	index  map[string]*Field
	end    uint32
	align  uint32
}

func newRecord(name string, start uint32) record {
	return record{
		name:  name,
		index: make(map[string]*Field),
		end:   start,
		align: 1,
	}
}

func (r *record) add(f *Field) {
	info := f.Type.Info()
	f.Offset, r.end = layout.Append(r.end, info)
	r.push(f, info.Align)
}

func (r *record) push(f *Field, align uint32) {
	if align > r.align {
		r.align = align
	}
	r.fields = append(r.fields, f)
	r.index[f.Name] = f
}

func (r *record) info() layout.Info {
	return layout.Pad(r.end, r.align)
}

// fieldKey is the logical identity of a field across reloads.
type fieldKey struct {
	owner string
	name  string
}

type fieldSlot struct {
	field *Field
	gen   uint32
	live  bool
}

// FieldRef is a weak, generation-checked reference to a field
// descriptor. It stays valid while the descriptor keeps its logical
// identity and type; reloads that keep both swap the descriptor under it.
type FieldRef struct {
	reg    *Registry
	static *Field
	key    fieldKey
	gen    uint32
}

// StaticRef returns a reference that is always live, for descriptors
// that are never reloaded (container elements, call frames).
func StaticRef(f *Field) FieldRef {
	return FieldRef{static: f}
}

// Resolve returns the current descriptor, or false once it was retired.
func (r FieldRef) Resolve() (*Field, bool) {
	if r.static != nil {
		return r.static, true
	}
	if r.reg == nil {
		return nil, false
	}
	return r.reg.resolve(r.key, r.gen)
}

// Name returns the field name the reference was taken for.
func (r FieldRef) Name() string {
	if r.static != nil {
		return r.static.Name
	}
	return r.key.name
}

// Path returns the owner-qualified name for error reporting.
func (r FieldRef) Path() []string {
	if r.static != nil {
		return r.static.Path()
	}
	return []string{r.key.owner, r.key.name}
}
