package translator

import (
	stderrors "errors"

	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// Codec converts one host-typed slot to and from script values.
//
// ToScriptValue must not mutate host memory. With byRef, composites are
// returned as wrappers aliasing the slot; otherwise as detached copies.
//
// FromScriptValue writes v into the slot at addr. With deepCopy the slot
// holds a live value whose storage is released once the new value is
// committed; without it the slot is uninitialized scratch. On error the
// slot is left as it was.
type Codec interface {
	Kind() host.Kind
	Type() *host.Type
	ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error)
	FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error
}

// FastPath is implemented by codecs that can pass an already host-backed
// value without copying it. direct reports that addr aliases existing
// host memory and must not be cleaned up.
type FastPath interface {
	FastFromScriptValue(ctx *Context, v starlark.Value, scratch uint32) (addr uint32, direct bool, err error)
}

// Cleaner is implemented by codecs whose values own storage.
type Cleaner interface {
	Cleanup(ctx *Context, addr uint32) error
}

// OutParameter is implemented by codecs for out and ref parameters.
type OutParameter interface {
	IsOutParameter() bool
	FromScriptValueForOutParam(ctx *Context, v starlark.Value, addr uint32) error
	ToScriptValueAfterCall(ctx *Context, v starlark.Value, addr uint32) error
}

// ShallowSizer reports the scratch bytes needed to pass a value.
type ShallowSizer interface {
	ParamShallowCopySize() uint32
}

// errNoFastPath is returned by a FastPath that cannot alias v; the caller
// falls back to converting into scratch.
var errNoFastPath = stderrors.New("fast path not applicable")

// FastFromScriptValue converts v for a call argument. It aliases host
// memory when the codec supports it and otherwise converts into scratch.
func FastFromScriptValue(c Codec, ctx *Context, v starlark.Value, scratch uint32) (uint32, bool, error) {
	if fp, ok := c.(FastPath); ok {
		addr, direct, err := fp.FastFromScriptValue(ctx, v, scratch)
		if err == nil {
			return addr, direct, nil
		}
		if !stderrors.Is(err, errNoFastPath) {
			return 0, false, err
		}
	}
	if err := c.FromScriptValue(ctx, v, scratch, false); err != nil {
		return 0, false, err
	}
	return scratch, false, nil
}

// Cleanup releases storage owned by the value at addr.
func Cleanup(c Codec, ctx *Context, addr uint32) error {
	if cl, ok := c.(Cleaner); ok {
		return cl.Cleanup(ctx, addr)
	}
	return nil
}

func IsOutParameter(c Codec) bool {
	if o, ok := c.(OutParameter); ok {
		return o.IsOutParameter()
	}
	return false
}

func FromScriptValueForOutParam(c Codec, ctx *Context, v starlark.Value, addr uint32) error {
	if o, ok := c.(OutParameter); ok {
		return o.FromScriptValueForOutParam(ctx, v, addr)
	}
	return nil
}

func ToScriptValueAfterCall(c Codec, ctx *Context, v starlark.Value, addr uint32) error {
	if o, ok := c.(OutParameter); ok {
		return o.ToScriptValueAfterCall(ctx, v, addr)
	}
	return nil
}

// ParamShallowCopySize returns the scratch size for passing a value of
// c's type: the aligned type size unless the codec says otherwise.
func ParamShallowCopySize(c Codec) uint32 {
	if s, ok := c.(ShallowSizer); ok {
		return s.ParamShallowCopySize()
	}
	return c.Type().Stride()
}

// NewCodec selects the codec for t. Out and ref parameters are wrapped
// unless ignoreOut is set. Every method of the result fails with a type
// mismatch when called with a nil *Context.
func NewCodec(t *host.Type, flags host.FieldFlags, ignoreOut bool) Codec {
	c := newCodec(t)
	if !ignoreOut && flags&(host.FlagOut|host.FlagRef) != 0 {
		c = &outCodec{Codec: c, ref: flags&host.FlagRef != 0}
	}
	return checkedCodec{Codec: c}
}

func nilContext(t *host.Type) error {
	return errors.New(errors.PhaseValidate, errors.KindTypeMismatch).
		HostType(t.String()).
		Detail("codec called without a context").
		Build()
}

// checkedCodec rejects a nil context before the wrapped codec touches
// memory. It implements every optional interface with the same defaults
// as the package helpers.
type checkedCodec struct {
	Codec
}

var (
	_ FastPath     = checkedCodec{}
	_ Cleaner      = checkedCodec{}
	_ OutParameter = checkedCodec{}
	_ ShallowSizer = checkedCodec{}
)

func (c checkedCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	if ctx == nil {
		return nil, nilContext(c.Type())
	}
	return c.Codec.ToScriptValue(ctx, addr, byRef)
}

func (c checkedCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	if ctx == nil {
		return nilContext(c.Type())
	}
	return c.Codec.FromScriptValue(ctx, v, addr, deepCopy)
}

func (c checkedCodec) FastFromScriptValue(ctx *Context, v starlark.Value, scratch uint32) (uint32, bool, error) {
	if ctx == nil {
		return 0, false, nilContext(c.Type())
	}
	if fp, ok := c.Codec.(FastPath); ok {
		return fp.FastFromScriptValue(ctx, v, scratch)
	}
	return 0, false, errNoFastPath
}

func (c checkedCodec) Cleanup(ctx *Context, addr uint32) error {
	if ctx == nil {
		return nilContext(c.Type())
	}
	return Cleanup(c.Codec, ctx, addr)
}

func (c checkedCodec) IsOutParameter() bool { return IsOutParameter(c.Codec) }

func (c checkedCodec) FromScriptValueForOutParam(ctx *Context, v starlark.Value, addr uint32) error {
	if ctx == nil {
		return nilContext(c.Type())
	}
	return FromScriptValueForOutParam(c.Codec, ctx, v, addr)
}

func (c checkedCodec) ToScriptValueAfterCall(ctx *Context, v starlark.Value, addr uint32) error {
	if ctx == nil {
		return nilContext(c.Type())
	}
	return ToScriptValueAfterCall(c.Codec, ctx, v, addr)
}

func (c checkedCodec) ParamShallowCopySize() uint32 { return ParamShallowCopySize(c.Codec) }

func newCodec(t *host.Type) Codec {
	switch k := t.Kind(); {
	case k == host.KindBool:
		return boolCodec{t: t}
	case k.IsNumeric():
		return numericCodec{t: t}
	case k == host.KindString:
		return stringCodec{t: t}
	case k == host.KindEnum:
		return enumCodec{t: t}
	case k == host.KindClass:
		return classCodec{t: t}
	case k == host.KindStruct:
		return &structCodec{t: t}
	case k == host.KindArray:
		return newArrayCodec(t)
	case k == host.KindSet:
		return newSetCodec(t)
	case k == host.KindMap:
		return newMapCodec(t)
	case k.IsObjectRef():
		return objectCodec{t: t}
	case k == host.KindDelegate:
		return delegateCodec{t: t}
	case k == host.KindMulticastDelegate:
		return newMulticastCodec(t)
	default:
		return invalidCodec{t: t}
	}
}
