package translator

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/memory"
)

// structCodec reads and writes a struct inline. Writes are staged in
// scratch and copied over the destination only when every field
// converted.
type structCodec struct{ t *host.Type }

func (c *structCodec) Kind() host.Kind  { return host.KindStruct }
func (c *structCodec) Type() *host.Type { return c.t }

func (c *structCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	s := c.t.Struct()
	if byRef {
		return &StructRef{env: ctx.env, loc: ctx.locOr(addr, s.Size()), strct: s}, nil
	}
	return c.detached(ctx, addr)
}

func (c *structCodec) detached(ctx *Context, addr uint32) (*starlarkstruct.Struct, error) {
	tpl, err := ctx.env.StructTemplate(c.t.Struct())
	if err != nil {
		return nil, err
	}
	d := make(starlark.StringDict, len(tpl.order))
	for _, name := range tpl.order {
		tr := tpl.fields[name]
		if _, err := tr.Field(); err != nil {
			return nil, err
		}
		v, err := tr.adapter.ToScriptValue(ctx.at(nil, nil, name), addr, false)
		if err != nil {
			return nil, err
		}
		d[name] = v
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, d), nil
}

// fieldValues maps v to per-field values. Fields v does not mention are
// absent from the result.
func (c *structCodec) fieldValues(ctx *Context, tpl *Template, v starlark.Value) (map[string]starlark.Value, error) {
	s := c.t.Struct()
	out := make(map[string]starlark.Value, len(tpl.order))
	switch x := v.(type) {
	case *StructRef:
		if x.strct != s {
			return nil, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), s.Name(), x.strct.Name())
		}
		addr, _, err := x.loc.resolve(ctx.env)
		if err != nil {
			return nil, err
		}
		src, err := c.detached(ctx, addr)
		if err != nil {
			return nil, err
		}
		for _, name := range tpl.order {
			fv, err := src.Attr(name)
			if err != nil {
				return nil, err
			}
			out[name] = fv
		}
	case *starlark.Dict:
		for _, kv := range x.Items() {
			name, ok := kv[0].(starlark.String)
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), "string key", kv[0].Type())
			}
			if _, ok := tpl.fields[string(name)]; !ok {
				return nil, errors.FieldUnknown(errors.PhaseFromScript, ctx.Path(), string(name))
			}
			out[string(name)] = kv[1]
		}
	case *starlarkstruct.Struct:
		for _, name := range x.AttrNames() {
			if _, ok := tpl.fields[name]; !ok {
				return nil, errors.FieldUnknown(errors.PhaseFromScript, ctx.Path(), name)
			}
			fv, err := x.Attr(name)
			if err != nil {
				return nil, err
			}
			out[name] = fv
		}
	default:
		return nil, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), s.Name(), v.Type())
	}
	return out, nil
}

// FromScriptValue stages the new value in scratch. With deepCopy, fields
// v does not mention keep their current value.
func (c *structCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	s := c.t.Struct()
	tpl, err := ctx.env.StructTemplate(s)
	if err != nil {
		return err
	}
	vals, err := c.fieldValues(ctx, tpl, v)
	if err != nil {
		return err
	}

	size := s.Size()
	scratch, err := ctx.env.scratch.Acquire(size, s.Info().Align)
	if err != nil {
		return err
	}
	release := func() {
		if err := ctx.env.scratch.Release(scratch); err != nil {
			Logger().Warn("release struct scratch", zap.Error(err))
		}
	}

	var staged []*FieldTranslator
	for _, name := range tpl.order {
		tr := tpl.fields[name]
		if _, err := tr.Field(); err != nil {
			c.unstage(ctx, staged, scratch.Addr)
			release()
			return err
		}
		fv, ok := vals[name]
		if !ok {
			if !deepCopy {
				continue
			}
			if fv, err = tr.adapter.ToScriptValue(ctx.at(nil, nil, name), addr, false); err != nil {
				c.unstage(ctx, staged, scratch.Addr)
				release()
				return err
			}
		}
		if err := tr.adapter.FromScriptValue(ctx.at(nil, nil, name), fv, scratch.Addr, false); err != nil {
			c.unstage(ctx, staged, scratch.Addr)
			release()
			return err
		}
		staged = append(staged, tr)
	}

	if deepCopy {
		if err := c.Cleanup(ctx, addr); err != nil {
			Logger().Warn("release replaced struct value", zap.Strings("path", ctx.Path()), zap.Error(err))
		}
	}
	err = memory.Copy(ctx.Memory(), addr, scratch.Addr, size)
	release()
	return err
}

func (c *structCodec) unstage(ctx *Context, staged []*FieldTranslator, base uint32) {
	for i := len(staged) - 1; i >= 0; i-- {
		if err := staged[i].adapter.Cleanup(ctx, base); err != nil {
			Logger().Debug("release staged field", zap.Error(err))
		}
	}
}

// FastFromScriptValue passes a wrapper of the same struct by address.
func (c *structCodec) FastFromScriptValue(ctx *Context, v starlark.Value, _ uint32) (uint32, bool, error) {
	r, ok := v.(*StructRef)
	if !ok || r.strct != c.t.Struct() {
		return 0, false, errNoFastPath
	}
	addr, _, err := r.loc.resolve(ctx.env)
	if err != nil {
		return 0, false, err
	}
	return addr, true, nil
}

func (c *structCodec) Cleanup(ctx *Context, addr uint32) error {
	tpl, err := ctx.env.StructTemplate(c.t.Struct())
	if err != nil {
		return err
	}
	var first error
	for _, name := range tpl.order {
		tr := tpl.fields[name]
		if _, err := tr.Field(); err != nil {
			continue
		}
		if err := tr.adapter.Cleanup(ctx, addr); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StructRef aliases a struct stored in host memory: an object field, a
// container element or a nested struct field.
type StructRef struct {
	env   *Env
	loc   Location
	strct *host.Struct
	outer starlark.Value
}

var (
	_ starlark.HasSetField = (*StructRef)(nil)
	_ starlark.Comparable  = (*StructRef)(nil)
)

func (r *StructRef) Env() *Env                 { return r.env }
func (r *StructRef) Location() Location        { return r.loc }
func (r *StructRef) Struct() *host.Struct      { return r.strct }
func (r *StructRef) Outer() starlark.Value     { return r.outer }
func (r *StructRef) Type() string              { return r.strct.Name() }
func (r *StructRef) Freeze()                   {}
func (r *StructRef) Truth() starlark.Bool      { return starlark.True }
func (r *StructRef) setOuter(o starlark.Value) { r.outer = o }

func (r *StructRef) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", r.strct.Name())
}

func (r *StructRef) String() string {
	v, err := r.Value()
	if err != nil {
		return fmt.Sprintf("<%s %s>", r.strct.Name(), r.loc)
	}
	return r.strct.Name() + v.String()[len("struct"):]
}

func (r *StructRef) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	return compareDetached(op, r, y, depth)
}

// Value returns a detached copy.
func (r *StructRef) Value() (*starlarkstruct.Struct, error) {
	addr, _, err := r.loc.resolve(r.env)
	if err != nil {
		return nil, err
	}
	c := &structCodec{t: r.strct.Type()}
	return c.detached(r.env.newContext(r.loc, r, nil), addr)
}

func (r *StructRef) Attr(name string) (starlark.Value, error) {
	tpl, err := r.env.StructTemplate(r.strct)
	if err != nil {
		return nil, err
	}
	get, _, ok := tpl.Accessor(name)
	if !ok {
		return nil, nil
	}
	return get(r)
}

func (r *StructRef) AttrNames() []string {
	tpl, err := r.env.StructTemplate(r.strct)
	if err != nil {
		return nil
	}
	return tpl.Names()
}

func (r *StructRef) SetField(name string, v starlark.Value) error {
	tpl, err := r.env.StructTemplate(r.strct)
	if err != nil {
		return err
	}
	_, set, ok := tpl.Accessor(name)
	if !ok {
		return starlark.NoSuchAttrError(fmt.Sprintf("%s has no field %q", r.strct.Name(), name))
	}
	return set(r, v)
}
