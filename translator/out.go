package translator

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/errors"
)

// outCodec decorates the codec of an out or ref parameter. Scripts pass
// a *Ref box; after the call the box receives the value the callee left
// in the slot. A ref parameter also sends the box's value in.
type outCodec struct {
	Codec
	ref bool
}

func (c *outCodec) IsOutParameter() bool { return true }

func (c *outCodec) FromScriptValueForOutParam(ctx *Context, v starlark.Value, addr uint32) error {
	switch x := v.(type) {
	case nil, starlark.NoneType:
		if c.ref {
			return errors.New(errors.PhaseFromScript, errors.KindInvalidInput).
				Path(ctx.Path()...).
				Detail("ref parameter needs a value").
				Build()
		}
		return nil
	case *Ref:
		if !c.ref || x.Value == starlark.None {
			return nil
		}
		return c.Codec.FromScriptValue(ctx, x.Value, addr, false)
	default:
		if c.ref {
			return c.Codec.FromScriptValue(ctx, v, addr, false)
		}
		return errors.New(errors.PhaseFromScript, errors.KindTypeMismatch).
			Path(ctx.Path()...).
			HostType("out " + c.Type().String()).
			ScriptType(v.Type()).
			Detail("out parameter takes ref()").
			Build()
	}
}

func (c *outCodec) ToScriptValueAfterCall(ctx *Context, v starlark.Value, addr uint32) error {
	box, ok := v.(*Ref)
	if !ok {
		return nil
	}
	out, err := c.Codec.ToScriptValue(ctx, addr, false)
	if err != nil {
		return err
	}
	box.Value = out
	return nil
}

func (c *outCodec) Cleanup(ctx *Context, addr uint32) error {
	return Cleanup(c.Codec, ctx, addr)
}

func (c *outCodec) ParamShallowCopySize() uint32 {
	return ParamShallowCopySize(c.Codec)
}

func unwrapOut(c Codec) Codec {
	if cc, ok := c.(checkedCodec); ok {
		c = cc.Codec
	}
	if o, ok := c.(*outCodec); ok {
		return o.Codec
	}
	return c
}

// Ref is a mutable box passed for out and ref parameters.
type Ref struct {
	Value starlark.Value
}

var _ starlark.HasSetField = (*Ref)(nil)

func NewRef(v starlark.Value) *Ref {
	if v == nil {
		v = starlark.None
	}
	return &Ref{Value: v}
}

func (r *Ref) String() string        { return fmt.Sprintf("ref(%s)", r.Value) }
func (r *Ref) Type() string          { return "ref" }
func (r *Ref) Freeze()               {}
func (r *Ref) Truth() starlark.Bool  { return r.Value.Truth() }
func (r *Ref) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: ref") }
func (r *Ref) AttrNames() []string   { return []string{"value"} }

func (r *Ref) Attr(name string) (starlark.Value, error) {
	if name == "value" {
		return r.Value, nil
	}
	return nil, nil
}

func (r *Ref) SetField(name string, v starlark.Value) error {
	if name != "value" {
		return starlark.NoSuchAttrError(fmt.Sprintf("ref has no field %q", name))
	}
	r.Value = v
	return nil
}
