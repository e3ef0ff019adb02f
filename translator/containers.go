package translator

import (
	"github.com/samber/lo"
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// newStaticTranslator builds a translator over a descriptor that is never
// reloaded: container elements, map entries and call frames.
func newStaticTranslator(f *host.Field, ignoreOut bool) *FieldTranslator {
	t := &FieldTranslator{ignoreOut: ignoreOut}
	t.tracker = Tracker{ref: host.StaticRef(f), onChange: t.init}
	t.tracker.Valid()
	return t
}

type arrayCodec struct {
	t    *host.Type
	elem *FieldTranslator
	slab slab
}

func newArrayCodec(t *host.Type) *arrayCodec {
	c := &arrayCodec{t: t, elem: newStaticTranslator(host.NewField("[]", t.Elem(), 0, 0), true)}
	c.slab = slab{
		stride: t.Elem().Stride(),
		align:  t.Elem().Align(),
		fill:   c.fillElem,
		clean:  c.cleanElem,
	}
	return c
}

func (c *arrayCodec) Kind() host.Kind  { return host.KindArray }
func (c *arrayCodec) Type() *host.Type { return c.t }

func (c *arrayCodec) fillElem(ctx *Context, v starlark.Value, addr uint32) error {
	return c.elem.adapter.FromScriptValue(ctx, v, addr, false)
}

func (c *arrayCodec) cleanElem(ctx *Context, addr uint32) error {
	return c.elem.adapter.Cleanup(ctx, addr)
}

func (c *arrayCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	if byRef {
		return &ArrayRef{env: ctx.env, loc: ctx.locOr(addr, c.t.Size()), codec: c}, nil
	}
	vals, err := c.detached(ctx, addr)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(vals), nil
}

// detached reads every element as a copy.
func (c *arrayCodec) detached(ctx *Context, header uint32) ([]starlark.Value, error) {
	var out []starlark.Value
	err := c.slab.each(ctx, header, func(i int, addr uint32) (bool, error) {
		v, err := c.elem.adapter.ToScriptValue(c.slab.cellContext(ctx, i), addr, false)
		if err != nil {
			return false, err
		}
		out = append(out, v)
		return true, nil
	})
	return out, err
}

// values materializes v before any host memory is touched, so assigning
// an array to itself is safe.
func (c *arrayCodec) values(ctx *Context, v starlark.Value) ([]starlark.Value, error) {
	switch x := v.(type) {
	case *starlark.List:
		out := make([]starlark.Value, x.Len())
		for i := range out {
			out[i] = x.Index(i)
		}
		return out, nil
	case starlark.Tuple:
		return append([]starlark.Value(nil), x...), nil
	case *ArrayRef:
		header, _, err := x.loc.resolve(ctx.env)
		if err != nil {
			return nil, err
		}
		return x.codec.detached(x.env.newContext(x.loc, x, ctx.Path()), header)
	}
	return nil, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
}

func (c *arrayCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	vals, err := c.values(ctx, v)
	if err != nil {
		return err
	}
	return c.slab.assign(ctx, addr, deepCopy, vals)
}

// FastFromScriptValue passes an array wrapper of the same type by its
// header address.
func (c *arrayCodec) FastFromScriptValue(ctx *Context, v starlark.Value, _ uint32) (uint32, bool, error) {
	r, ok := v.(*ArrayRef)
	if !ok || !r.codec.t.Equal(c.t) {
		return 0, false, errNoFastPath
	}
	header, _, err := r.loc.resolve(ctx.env)
	if err != nil {
		return 0, false, err
	}
	return header, true, nil
}

func (c *arrayCodec) Cleanup(ctx *Context, addr uint32) error {
	return c.slab.release(ctx, addr)
}

func (c *arrayCodec) indexOf(ctx *Context, header uint32, v starlark.Value) (int, error) {
	found := -1
	err := c.slab.each(ctx, header, func(i int, addr uint32) (bool, error) {
		elem, err := c.elem.adapter.ToScriptValue(ctx, addr, false)
		if err != nil {
			return false, err
		}
		eq, err := starlark.Equal(elem, v)
		if err != nil {
			return false, err
		}
		if eq {
			found = i
			return false, nil
		}
		return true, nil
	})
	return found, err
}

// setCodec stores distinct elements in insertion order.
type setCodec struct {
	*arrayCodec
}

func newSetCodec(t *host.Type) *setCodec {
	return &setCodec{arrayCodec: newArrayCodec(t)}
}

func (c *setCodec) Kind() host.Kind { return host.KindSet }

func (c *setCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	if byRef {
		return &SetRef{env: ctx.env, loc: ctx.locOr(addr, c.t.Size()), codec: c}, nil
	}
	vals, err := c.detached(ctx, addr)
	if err != nil {
		return nil, err
	}
	set := starlark.NewSet(len(vals))
	for _, v := range vals {
		if err := set.Insert(v); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func (c *setCodec) values(ctx *Context, v starlark.Value) ([]starlark.Value, error) {
	var in []starlark.Value
	switch x := v.(type) {
	case *starlark.Set:
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			in = append(in, elem)
		}
	case *SetRef:
		header, _, err := x.loc.resolve(ctx.env)
		if err != nil {
			return nil, err
		}
		return x.codec.detached(x.env.newContext(x.loc, x, ctx.Path()), header)
	default:
		vals, err := c.arrayCodec.values(ctx, v)
		if err != nil {
			return nil, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
		}
		in = vals
	}
	return distinct(in), nil
}

func distinct(in []starlark.Value) []starlark.Value {
	out := make([]starlark.Value, 0, len(in))
	for _, v := range in {
		dup := lo.ContainsBy(out, func(x starlark.Value) bool {
			eq, err := starlark.Equal(x, v)
			return err == nil && eq
		})
		if !dup {
			out = append(out, v)
		}
	}
	return out
}

func (c *setCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	vals, err := c.values(ctx, v)
	if err != nil {
		return err
	}
	return c.slab.assign(ctx, addr, deepCopy, vals)
}

func (c *setCodec) FastFromScriptValue(ctx *Context, v starlark.Value, _ uint32) (uint32, bool, error) {
	r, ok := v.(*SetRef)
	if !ok || !r.codec.t.Equal(c.t) {
		return 0, false, errNoFastPath
	}
	header, _, err := r.loc.resolve(ctx.env)
	if err != nil {
		return 0, false, err
	}
	return header, true, nil
}

// mapCodec stores (key, value) entries in insertion order. Lookups scan
// the entries and compare keys with Starlark equality.
type mapCodec struct {
	t        *host.Type
	key      *FieldTranslator
	value    *FieldTranslator
	valueOff uint32
	slab     slab
}

func newMapCodec(t *host.Type) *mapCodec {
	info, valueOff := t.EntryInfo()
	c := &mapCodec{
		t:        t,
		key:      newStaticTranslator(host.NewField("key", t.Key(), 0, 0), true),
		value:    newStaticTranslator(host.NewField("value", t.Value(), valueOff, 0), true),
		valueOff: valueOff,
	}
	c.slab = slab{
		stride: info.Stride(),
		align:  info.Align,
		fill:   c.fillEntry,
		clean:  c.cleanEntry,
	}
	return c
}

func (c *mapCodec) Kind() host.Kind  { return host.KindMap }
func (c *mapCodec) Type() *host.Type { return c.t }

func (c *mapCodec) fillEntry(ctx *Context, v starlark.Value, addr uint32) error {
	kv := v.(starlark.Tuple)
	if err := c.key.adapter.FromScriptValue(ctx, kv[0], addr, false); err != nil {
		return err
	}
	if err := c.value.adapter.FromScriptValue(ctx, kv[1], addr, false); err != nil {
		if cerr := c.key.adapter.Cleanup(ctx, addr); cerr != nil {
			Logger().Debug("release map key after failed value", zap.Error(cerr))
		}
		return err
	}
	return nil
}

func (c *mapCodec) cleanEntry(ctx *Context, addr uint32) error {
	kerr := c.key.adapter.Cleanup(ctx, addr)
	verr := c.value.adapter.Cleanup(ctx, addr)
	if kerr != nil {
		return kerr
	}
	return verr
}

func (c *mapCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	if byRef {
		return &MapRef{env: ctx.env, loc: ctx.locOr(addr, c.t.Size()), codec: c}, nil
	}
	items, err := c.items(ctx, addr)
	if err != nil {
		return nil, err
	}
	d := starlark.NewDict(len(items))
	for _, kv := range items {
		if err := d.SetKey(kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// items reads every entry as a detached (key, value) pair.
func (c *mapCodec) items(ctx *Context, header uint32) ([]starlark.Tuple, error) {
	var out []starlark.Tuple
	err := c.slab.each(ctx, header, func(i int, addr uint32) (bool, error) {
		cctx := c.slab.cellContext(ctx, i)
		k, err := c.key.adapter.ToScriptValue(cctx, addr, false)
		if err != nil {
			return false, err
		}
		v, err := c.value.adapter.ToScriptValue(cctx, addr, false)
		if err != nil {
			return false, err
		}
		out = append(out, starlark.Tuple{k, v})
		return true, nil
	})
	return out, err
}

// find returns the address of the entry whose key equals key.
func (c *mapCodec) find(ctx *Context, header uint32, key starlark.Value) (uint32, bool, error) {
	var entry uint32
	found := false
	err := c.slab.each(ctx, header, func(_ int, addr uint32) (bool, error) {
		k, err := c.key.adapter.ToScriptValue(ctx, addr, false)
		if err != nil {
			return false, err
		}
		eq, err := starlark.Equal(k, key)
		if err != nil {
			return false, err
		}
		if eq {
			entry, found = addr, true
			return false, nil
		}
		return true, nil
	})
	return entry, found, err
}

func (c *mapCodec) indexOf(ctx *Context, header uint32, key starlark.Value) (int, error) {
	entry, found, err := c.find(ctx, header, key)
	if err != nil || !found {
		return -1, err
	}
	ptr, _, err := c.slab.cells(ctx, header)
	if err != nil {
		return -1, err
	}
	return int((entry - ptr) / c.slab.stride), nil
}

func (c *mapCodec) values(ctx *Context, v starlark.Value) ([]starlark.Value, error) {
	var items []starlark.Tuple
	switch x := v.(type) {
	case *starlark.Dict:
		items = x.Items()
	case *MapRef:
		header, _, err := x.loc.resolve(ctx.env)
		if err != nil {
			return nil, err
		}
		if items, err = x.codec.items(x.env.newContext(x.loc, x, ctx.Path()), header); err != nil {
			return nil, err
		}
	default:
		return nil, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
	}
	out := make([]starlark.Value, len(items))
	for i, kv := range items {
		out[i] = kv
	}
	return out, nil
}

func (c *mapCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	vals, err := c.values(ctx, v)
	if err != nil {
		return err
	}
	return c.slab.assign(ctx, addr, deepCopy, vals)
}

func (c *mapCodec) FastFromScriptValue(ctx *Context, v starlark.Value, _ uint32) (uint32, bool, error) {
	r, ok := v.(*MapRef)
	if !ok || !r.codec.t.Equal(c.t) {
		return 0, false, errNoFastPath
	}
	header, _, err := r.loc.resolve(ctx.env)
	if err != nil {
		return 0, false, err
	}
	return header, true, nil
}

func (c *mapCodec) Cleanup(ctx *Context, addr uint32) error {
	return c.slab.release(ctx, addr)
}
