package translator

import (
	"math"
	"unicode/utf8"

	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/internal/coerce"
)

type boolCodec struct{ t *host.Type }

func (c boolCodec) Kind() host.Kind  { return host.KindBool }
func (c boolCodec) Type() *host.Type { return c.t }

func (c boolCodec) ToScriptValue(ctx *Context, addr uint32, _ bool) (starlark.Value, error) {
	b, err := ctx.Memory().ReadU8(addr)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(b != 0), nil
}

func (c boolCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, _ bool) error {
	b, ok := v.(starlark.Bool)
	if !ok {
		return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), "bool", v.Type())
	}
	var n uint8
	if b {
		n = 1
	}
	return ctx.Memory().WriteU8(addr, n)
}

// numericCodec covers every integer and float kind.
type numericCodec struct{ t *host.Type }

func (c numericCodec) Kind() host.Kind  { return c.t.Kind() }
func (c numericCodec) Type() *host.Type { return c.t }

func (c numericCodec) ToScriptValue(ctx *Context, addr uint32, _ bool) (starlark.Value, error) {
	mem := ctx.Memory()
	switch c.t.Kind() {
	case host.KindU8:
		v, err := mem.ReadU8(addr)
		return starlark.MakeUint64(uint64(v)), err
	case host.KindS8:
		v, err := mem.ReadU8(addr)
		return starlark.MakeInt64(int64(int8(v))), err
	case host.KindU16:
		v, err := mem.ReadU16(addr)
		return starlark.MakeUint64(uint64(v)), err
	case host.KindS16:
		v, err := mem.ReadU16(addr)
		return starlark.MakeInt64(int64(int16(v))), err
	case host.KindU32:
		v, err := mem.ReadU32(addr)
		return starlark.MakeUint64(uint64(v)), err
	case host.KindS32:
		v, err := mem.ReadU32(addr)
		return starlark.MakeInt64(int64(int32(v))), err
	case host.KindU64:
		v, err := mem.ReadU64(addr)
		return starlark.MakeUint64(v), err
	case host.KindS64:
		v, err := mem.ReadU64(addr)
		return starlark.MakeInt64(int64(v)), err
	case host.KindF32:
		bits, err := mem.ReadU32(addr)
		return starlark.Float(math.Float32frombits(coerce.CanonicalizeF32(bits))), err
	case host.KindF64:
		bits, err := mem.ReadU64(addr)
		return starlark.Float(math.Float64frombits(coerce.CanonicalizeF64(bits))), err
	}
	return nil, errors.Unsupported(errors.PhaseToScript, c.t.String())
}

func (c numericCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, _ bool) error {
	if !coerce.IsNumber(v) {
		return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
	}
	mem := ctx.Memory()
	switch c.t.Kind() {
	case host.KindU8, host.KindU16, host.KindU32, host.KindU64:
		n, ok := coerce.ToUint64(v, unsignedMax(c.t.Kind()))
		if !ok {
			return errors.OutOfRange(errors.PhaseFromScript, ctx.Path(), v, c.t.String())
		}
		switch c.t.Kind() {
		case host.KindU8:
			return mem.WriteU8(addr, uint8(n))
		case host.KindU16:
			return mem.WriteU16(addr, uint16(n))
		case host.KindU32:
			return mem.WriteU32(addr, uint32(n))
		default:
			return mem.WriteU64(addr, n)
		}
	case host.KindS8, host.KindS16, host.KindS32, host.KindS64:
		lo, hi := signedRange(c.t.Kind())
		n, ok := coerce.ToInt64(v, lo, hi)
		if !ok {
			return errors.OutOfRange(errors.PhaseFromScript, ctx.Path(), v, c.t.String())
		}
		switch c.t.Kind() {
		case host.KindS8:
			return mem.WriteU8(addr, uint8(n))
		case host.KindS16:
			return mem.WriteU16(addr, uint16(n))
		case host.KindS32:
			return mem.WriteU32(addr, uint32(n))
		default:
			return mem.WriteU64(addr, uint64(n))
		}
	case host.KindF32:
		f, ok := coerce.ToFloat32(v)
		if !ok {
			return errors.OutOfRange(errors.PhaseFromScript, ctx.Path(), v, c.t.String())
		}
		return mem.WriteU32(addr, coerce.CanonicalizeF32(math.Float32bits(f)))
	case host.KindF64:
		f, ok := coerce.ToFloat64(v)
		if !ok {
			return errors.OutOfRange(errors.PhaseFromScript, ctx.Path(), v, c.t.String())
		}
		return mem.WriteU64(addr, coerce.CanonicalizeF64(math.Float64bits(f)))
	}
	return errors.Unsupported(errors.PhaseFromScript, c.t.String())
}

func unsignedMax(k host.Kind) uint64 {
	switch k {
	case host.KindU8:
		return math.MaxUint8
	case host.KindU16:
		return math.MaxUint16
	case host.KindU32:
		return math.MaxUint32
	}
	return math.MaxUint64
}

func signedRange(k host.Kind) (int64, int64) {
	switch k {
	case host.KindS8:
		return math.MinInt8, math.MaxInt8
	case host.KindS16:
		return math.MinInt16, math.MaxInt16
	case host.KindS32:
		return math.MinInt32, math.MaxInt32
	}
	return math.MinInt64, math.MaxInt64
}

type stringCodec struct{ t *host.Type }

func (c stringCodec) Kind() host.Kind  { return host.KindString }
func (c stringCodec) Type() *host.Type { return c.t }

func (c stringCodec) ToScriptValue(ctx *Context, addr uint32, _ bool) (starlark.Value, error) {
	s, err := host.ReadString(ctx.Memory(), addr)
	if err != nil {
		return nil, err
	}
	return starlark.String(s), nil
}

func (c stringCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	s, ok := v.(starlark.String)
	if !ok {
		return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), "string", v.Type())
	}
	if !utf8.ValidString(string(s)) {
		return errors.InvalidUTF8(errors.PhaseFromScript, ctx.Path(), []byte(s))
	}
	if deepCopy {
		return host.ReplaceString(ctx.Memory(), ctx.alloc(), addr, string(s))
	}
	return host.WriteString(ctx.Memory(), ctx.alloc(), addr, string(s))
}

func (c stringCodec) Cleanup(ctx *Context, addr uint32) error {
	return host.FreeString(ctx.Memory(), ctx.alloc(), addr)
}

// enumCodec stores the case value in the enum's width. Scripts see the
// integer value and may assign either a defined value or a case name.
type enumCodec struct{ t *host.Type }

func (c enumCodec) Kind() host.Kind  { return host.KindEnum }
func (c enumCodec) Type() *host.Type { return c.t }

func (c enumCodec) ToScriptValue(ctx *Context, addr uint32, _ bool) (starlark.Value, error) {
	v, err := readUint(ctx, addr, c.t.Size())
	if err != nil {
		return nil, err
	}
	return starlark.MakeUint64(uint64(v)), nil
}

func (c enumCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, _ bool) error {
	e := c.t.Enum()
	var value uint32
	switch x := v.(type) {
	case starlark.String:
		n, ok := e.Lookup(string(x))
		if !ok {
			return errors.InvalidEnum(errors.PhaseFromScript, ctx.Path(), string(x), e.Name())
		}
		value = n
	case starlark.Int:
		n, ok := x.Uint64()
		if !ok || n > math.MaxUint32 {
			return errors.InvalidEnum(errors.PhaseFromScript, ctx.Path(), x, e.Name())
		}
		if _, ok := e.NameOf(uint32(n)); !ok {
			return errors.InvalidEnum(errors.PhaseFromScript, ctx.Path(), x, e.Name())
		}
		value = uint32(n)
	default:
		return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), e.Name(), v.Type())
	}
	return writeUint(ctx, addr, c.t.Size(), value)
}

func readUint(ctx *Context, addr, size uint32) (uint32, error) {
	mem := ctx.Memory()
	switch size {
	case 1:
		v, err := mem.ReadU8(addr)
		return uint32(v), err
	case 2:
		v, err := mem.ReadU16(addr)
		return uint32(v), err
	default:
		return mem.ReadU32(addr)
	}
}

func writeUint(ctx *Context, addr, size, v uint32) error {
	mem := ctx.Memory()
	switch size {
	case 1:
		return mem.WriteU8(addr, uint8(v))
	case 2:
		return mem.WriteU16(addr, uint16(v))
	default:
		return mem.WriteU32(addr, v)
	}
}

// classCodec stores a class id; 0 is None.
type classCodec struct{ t *host.Type }

func (c classCodec) Kind() host.Kind  { return host.KindClass }
func (c classCodec) Type() *host.Type { return c.t }

func (c classCodec) ToScriptValue(ctx *Context, addr uint32, _ bool) (starlark.Value, error) {
	id, err := ctx.Memory().ReadU32(addr)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return starlark.None, nil
	}
	class, ok := ctx.env.sys.Registry.ClassByID(id)
	if !ok {
		return starlark.None, nil
	}
	return &ClassValue{env: ctx.env, class: class}, nil
}

func (c classCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, _ bool) error {
	var id uint32
	switch x := v.(type) {
	case starlark.NoneType:
	case *ClassValue:
		if base := c.t.Class(); base != nil && !x.class.IsChildOf(base) {
			return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), "class<"+x.class.Name()+">")
		}
		id = x.class.ID()
	default:
		return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
	}
	return ctx.Memory().WriteU32(addr, id)
}

type invalidCodec struct{ t *host.Type }

func (c invalidCodec) Kind() host.Kind  { return host.KindInvalid }
func (c invalidCodec) Type() *host.Type { return c.t }

func (c invalidCodec) ToScriptValue(*Context, uint32, bool) (starlark.Value, error) {
	return nil, errors.Unsupported(errors.PhaseToScript, "type "+c.t.String())
}

func (c invalidCodec) FromScriptValue(*Context, starlark.Value, uint32, bool) error {
	return errors.Unsupported(errors.PhaseFromScript, "type "+c.t.String())
}
