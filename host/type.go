package host

import (
	"github.com/wippyai/propbridge/internal/layout"
)

// Type is a tagged host type. Only the accessors matching Kind return
// non-nil values.
type Type struct {
	kind  Kind
	elem  *Type
	key   *Type
	value *Type
	strct *Struct
	enum  *Enum
	class *Class
	iface *Interface
	sig   *Signature
}

// Primitive types.
var (
	Bool   = &Type{kind: KindBool}
	U8     = &Type{kind: KindU8}
	S8     = &Type{kind: KindS8}
	U16    = &Type{kind: KindU16}
	S16    = &Type{kind: KindS16}
	U32    = &Type{kind: KindU32}
	S32    = &Type{kind: KindS32}
	U64    = &Type{kind: KindU64}
	S64    = &Type{kind: KindS64}
	F32    = &Type{kind: KindF32}
	F64    = &Type{kind: KindF64}
	String = &Type{kind: KindString}
)

var primitives = map[string]*Type{
	"bool":   Bool,
	"u8":     U8,
	"s8":     S8,
	"u16":    U16,
	"s16":    S16,
	"u32":    U32,
	"s32":    S32,
	"u64":    U64,
	"s64":    S64,
	"f32":    F32,
	"f64":    F64,
	"string": String,
}

func ArrayOf(elem *Type) *Type            { return &Type{kind: KindArray, elem: elem} }
func SetOf(elem *Type) *Type              { return &Type{kind: KindSet, elem: elem} }
func MapOf(key, value *Type) *Type        { return &Type{kind: KindMap, key: key, value: value} }
func ObjectOf(c *Class) *Type             { return &Type{kind: KindObject, class: c} }
func WeakOf(c *Class) *Type               { return &Type{kind: KindWeakObject, class: c} }
func ClassOf(c *Class) *Type              { return &Type{kind: KindClass, class: c} }
func InterfaceOf(i *Interface) *Type      { return &Type{kind: KindInterface, iface: i} }
func DelegateOf(sig *Signature) *Type     { return &Type{kind: KindDelegate, sig: sig} }
func MulticastOf(sig *Signature) *Type    { return &Type{kind: KindMulticastDelegate, sig: sig} }
func (t *Type) Kind() Kind                { return t.kind }
func (t *Type) Elem() *Type               { return t.elem }
func (t *Type) Key() *Type                { return t.key }
func (t *Type) Value() *Type              { return t.value }
func (t *Type) Struct() *Struct           { return t.strct }
func (t *Type) Enum() *Enum               { return t.enum }
func (t *Type) Class() *Class             { return t.class }
func (t *Type) Interface() *Interface     { return t.iface }
func (t *Type) Signature() *Signature     { return t.sig }
func (t *Type) Size() uint32              { return t.Info().Size }
func (t *Type) Align() uint32             { return t.Info().Align }
func (t *Type) Stride() uint32            { return t.Info().Stride() }
func (t *Type) IsKind(kinds ...Kind) bool { return containsKind(kinds, t.kind) }

func containsKind(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}

// Info returns the in-memory layout of a value of this type.
func (t *Type) Info() layout.Info {
	switch t.kind {
	case KindBool, KindU8, KindS8:
		return layout.Byte
	case KindU16, KindS16:
		return layout.Half
	case KindU32, KindS32, KindF32, KindDelegate, KindClass:
		return layout.Word
	case KindU64, KindS64, KindF64:
		return layout.Double
	case KindString, KindArray, KindSet, KindMap, KindMulticastDelegate:
		return layout.Slice
	case KindObject, KindWeakObject, KindInterface:
		return layout.Handle
	case KindEnum:
		return t.enum.Info()
	case KindStruct:
		return t.strct.Info()
	default:
		return layout.Empty
	}
}

// EntryInfo returns the layout of one map entry and the value offset
// within it.
func (t *Type) EntryInfo() (layout.Info, uint32) {
	offs, info := layout.Record([]layout.Info{t.key.Info(), t.value.Info()})
	return info, offs[1]
}

// Equal reports structural equality. Named types compare by identity.
func (t *Type) Equal(o *Type) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.kind != o.kind {
		return false
	}
	switch t.kind {
	case KindArray, KindSet:
		return t.elem.Equal(o.elem)
	case KindMap:
		return t.key.Equal(o.key) && t.value.Equal(o.value)
	case KindStruct:
		return t.strct == o.strct
	case KindEnum:
		return t.enum == o.enum
	case KindObject, KindWeakObject, KindClass:
		return t.class == o.class
	case KindInterface:
		return t.iface == o.iface
	case KindDelegate, KindMulticastDelegate:
		return t.sig.Equal(o.sig)
	default:
		return true
	}
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	switch t.kind {
	case KindArray, KindSet:
		return t.kind.String() + "<" + t.elem.String() + ">"
	case KindMap:
		return "map<" + t.key.String() + "," + t.value.String() + ">"
	case KindStruct:
		return t.strct.Name()
	case KindEnum:
		return t.enum.Name()
	case KindObject, KindWeakObject, KindClass:
		return t.kind.String() + "<" + t.class.Name() + ">"
	case KindInterface:
		return "iface<" + t.iface.Name() + ">"
	case KindDelegate, KindMulticastDelegate:
		return t.kind.String() + t.sig.String()
	default:
		return t.kind.String()
	}
}
