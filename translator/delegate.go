package translator

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// delegateCodec stores a delegate table handle. Each slot owns its
// handle: assigning binds a fresh handle and unbinds the previous one.
type delegateCodec struct{ t *host.Type }

func (c delegateCodec) Kind() host.Kind  { return host.KindDelegate }
func (c delegateCodec) Type() *host.Type { return c.t }

func (c delegateCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	if byRef {
		return &Delegate{env: ctx.env, loc: ctx.locOr(addr, c.t.Size()), sig: c.t.Signature()}, nil
	}
	handle, err := ctx.Memory().ReadU32(addr)
	if err != nil {
		return nil, err
	}
	b, ok := ctx.env.sys.Delegates.Get(handle)
	if !ok {
		return starlark.None, nil
	}
	return &DelegateValue{env: ctx.env, binding: b}, nil
}

// binding resolves v to a delegate target with this codec's signature.
// ok is false for None.
func (c delegateCodec) binding(ctx *Context, v starlark.Value) (host.Binding, bool, error) {
	sig := c.t.Signature()
	var b host.Binding
	switch x := v.(type) {
	case starlark.NoneType:
		return host.Binding{}, false, nil
	case *Delegate:
		bound, ok, err := x.binding()
		if err != nil || !ok {
			return host.Binding{}, false, err
		}
		b = bound
	case *DelegateValue:
		b = x.binding
	case starlark.Callable:
		return host.Binding{
			Sig:    sig,
			Target: &scriptInvoker{env: ctx.env, fn: x, sig: sig},
			Name:   x.Name(),
		}, true, nil
	default:
		return host.Binding{}, false, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
	}
	if !b.Sig.Equal(sig) {
		return host.Binding{}, false, errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), "delegate"+b.Sig.String())
	}
	return b, true, nil
}

func (c delegateCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	b, ok, err := c.binding(ctx, v)
	if err != nil {
		return err
	}
	var handle uint32
	if ok {
		if handle, err = ctx.env.sys.Delegates.Bind(b); err != nil {
			return err
		}
	}
	var old uint32
	if deepCopy {
		if old, err = ctx.Memory().ReadU32(addr); err != nil {
			ctx.env.sys.Delegates.Unbind(handle)
			return err
		}
	}
	if err := ctx.Memory().WriteU32(addr, handle); err != nil {
		ctx.env.sys.Delegates.Unbind(handle)
		return err
	}
	ctx.env.sys.Delegates.Unbind(old)
	return nil
}

func (c delegateCodec) Cleanup(ctx *Context, addr uint32) error {
	handle, err := ctx.Memory().ReadU32(addr)
	if err != nil {
		return err
	}
	ctx.env.sys.Delegates.Unbind(handle)
	return ctx.Memory().WriteU32(addr, 0)
}

// Delegate aliases a delegate slot. Calling it invokes whatever the slot
// is bound to at call time.
type Delegate struct {
	env *Env
	loc Location
	sig *host.Signature
}

var (
	_ starlark.Callable = (*Delegate)(nil)
	_ starlark.HasAttrs = (*Delegate)(nil)
)

func (d *Delegate) Name() string          { return "delegate" }
func (d *Delegate) String() string        { return "<delegate" + d.sig.String() + ">" }
func (d *Delegate) Type() string          { return "delegate" }
func (d *Delegate) Freeze()               {}
func (d *Delegate) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: delegate") }

func (d *Delegate) Truth() starlark.Bool {
	_, ok, err := d.binding()
	return starlark.Bool(ok && err == nil)
}

func (d *Delegate) handle() (uint32, error) {
	addr, _, err := d.loc.resolve(d.env)
	if err != nil {
		return 0, err
	}
	return d.env.mem.ReadU32(addr)
}

func (d *Delegate) binding() (host.Binding, bool, error) {
	h, err := d.handle()
	if err != nil {
		return host.Binding{}, false, err
	}
	b, ok := d.env.sys.Delegates.Get(h)
	return b, ok, nil
}

func (d *Delegate) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	h, err := d.handle()
	if err != nil {
		return nil, err
	}
	return d.env.call(thread, d.sig, host.Instance{}, delegateInvoker(d.env, h), args, kwargs)
}

func (d *Delegate) Attr(name string) (starlark.Value, error) {
	switch name {
	case "is_bound":
		_, ok, err := d.binding()
		return starlark.Bool(ok), err
	case "bind":
		return method(d, name, d.bind), nil
	case "unbind":
		return method(d, name, d.unbind), nil
	}
	return nil, nil
}

func (d *Delegate) AttrNames() []string { return []string{"bind", "is_bound", "unbind"} }

func (d *Delegate) bind(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &fn); err != nil {
		return nil, err
	}
	addr, _, err := d.loc.resolve(d.env)
	if err != nil {
		return nil, err
	}
	c := delegateCodec{t: host.DelegateOf(d.sig)}
	return starlark.None, c.FromScriptValue(d.env.newContext(d.loc, d, nil), fn, addr, true)
}

func (d *Delegate) unbind(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	addr, _, err := d.loc.resolve(d.env)
	if err != nil {
		return nil, err
	}
	c := delegateCodec{t: host.DelegateOf(d.sig)}
	return starlark.None, c.Cleanup(d.env.newContext(d.loc, d, nil), addr)
}

// DelegateValue is a detached delegate: it keeps the binding it was read
// with, independent of later changes to the slot.
type DelegateValue struct {
	env     *Env
	binding host.Binding
}

var _ starlark.Callable = (*DelegateValue)(nil)

func (d *DelegateValue) Name() string          { return d.binding.Name }
func (d *DelegateValue) String() string        { return "<delegate " + d.binding.Name + d.binding.Sig.String() + ">" }
func (d *DelegateValue) Type() string          { return "delegate" }
func (d *DelegateValue) Freeze()               {}
func (d *DelegateValue) Truth() starlark.Bool  { return starlark.True }
func (d *DelegateValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: delegate") }

func (d *DelegateValue) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	return d.env.call(thread, d.binding.Sig, host.Instance{}, d.binding.Target, args, kwargs)
}

func delegateInvoker(env *Env, handle uint32) host.Invoker {
	return host.InvokerFunc(func(call *host.Call) error {
		return env.sys.Delegates.Execute(handle, call)
	})
}

func fnInvoker(fn *host.Function) host.Invoker {
	return host.InvokerFunc(fn.Impl)
}

// multicastCodec stores a list of delegate handles, one per listener.
type multicastCodec struct {
	*arrayCodec
}

func newMulticastCodec(t *host.Type) *multicastCodec {
	return &multicastCodec{arrayCodec: newArrayCodec(host.ArrayOf(host.DelegateOf(t.Signature())))}
}

func (c *multicastCodec) Kind() host.Kind { return host.KindMulticastDelegate }

func (c *multicastCodec) Type() *host.Type { return host.MulticastOf(c.sig()) }

func (c *multicastCodec) sig() *host.Signature { return c.t.Elem().Signature() }

func (c *multicastCodec) ToScriptValue(ctx *Context, addr uint32, byRef bool) (starlark.Value, error) {
	if byRef {
		return &MulticastDelegate{env: ctx.env, loc: ctx.locOr(addr, c.t.Size()), codec: c}, nil
	}
	vals, err := c.detached(ctx, addr)
	if err != nil {
		return nil, err
	}
	out := make(starlark.Tuple, 0, len(vals))
	for _, v := range vals {
		if v != starlark.None {
			out = append(out, v)
		}
	}
	return out, nil
}

func (c *multicastCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	var vals []starlark.Value
	switch x := v.(type) {
	case starlark.NoneType:
	case *MulticastDelegate:
		header, _, err := x.loc.resolve(ctx.env)
		if err != nil {
			return err
		}
		if vals, err = c.detached(ctx, header); err != nil {
			return err
		}
	case *starlark.List, starlark.Tuple:
		var err error
		if vals, err = c.arrayCodec.values(ctx, x); err != nil {
			return err
		}
	default:
		vals = []starlark.Value{v}
	}
	return c.slab.assign(ctx, addr, deepCopy, vals)
}

// MulticastDelegate aliases a multicast slot. Calling it invokes every
// listener in order.
type MulticastDelegate struct {
	env   *Env
	loc   Location
	codec *multicastCodec
}

var (
	_ starlark.Callable = (*MulticastDelegate)(nil)
	_ starlark.Sequence = (*MulticastDelegate)(nil)
)

func (m *MulticastDelegate) Name() string          { return "multicast" }
func (m *MulticastDelegate) String() string        { return "<multicast" + m.codec.sig().String() + ">" }
func (m *MulticastDelegate) Type() string          { return "multicast" }
func (m *MulticastDelegate) Freeze()               {}
func (m *MulticastDelegate) Truth() starlark.Bool  { return m.Len() > 0 }
func (m *MulticastDelegate) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: multicast") }

func (m *MulticastDelegate) context() *Context { return m.env.newContext(m.loc, m, nil) }

func (m *MulticastDelegate) handles() ([]uint32, error) {
	header, _, err := m.loc.resolve(m.env)
	if err != nil {
		return nil, err
	}
	var out []uint32
	err = m.codec.slab.each(m.context(), header, func(_ int, addr uint32) (bool, error) {
		h, err := m.env.mem.ReadU32(addr)
		out = append(out, h)
		return err == nil, err
	})
	return out, err
}

func (m *MulticastDelegate) Len() int {
	hs, err := m.handles()
	if err != nil {
		return 0
	}
	return len(hs)
}

func (m *MulticastDelegate) Iterate() starlark.Iterator {
	header, _, err := m.loc.resolve(m.env)
	if err != nil {
		return &sliceIterator{}
	}
	vals, err := m.codec.detached(m.context(), header)
	if err != nil {
		return &sliceIterator{}
	}
	return &sliceIterator{vals: vals}
}

// CallInternal invokes each listener bound when the call started.
func (m *MulticastDelegate) CallInternal(thread *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	hs, err := m.handles()
	if err != nil {
		return nil, err
	}
	for _, h := range hs {
		if _, err := m.env.call(thread, m.codec.sig(), host.Instance{}, delegateInvoker(m.env, h), args, kwargs); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

func (m *MulticastDelegate) Attr(name string) (starlark.Value, error) {
	switch name {
	case "add":
		return method(m, name, m.add), nil
	case "remove":
		return method(m, name, m.remove), nil
	case "clear":
		return method(m, name, m.clear), nil
	}
	return nil, nil
}

func (m *MulticastDelegate) AttrNames() []string { return []string{"add", "clear", "remove"} }

func (m *MulticastDelegate) add(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &fn); err != nil {
		return nil, err
	}
	header, _, err := m.loc.resolve(m.env)
	if err != nil {
		return nil, err
	}
	ctx := m.context()
	_, n, err := m.codec.slab.cells(ctx, header)
	if err != nil {
		return nil, err
	}
	return starlark.None, m.codec.slab.splice(ctx, header, true, int(n), 0, []starlark.Value{fn})
}

// remove drops the first listener bound to fn. It reports whether one
// was found.
func (m *MulticastDelegate) remove(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &fn); err != nil {
		return nil, err
	}
	header, _, err := m.loc.resolve(m.env)
	if err != nil {
		return nil, err
	}
	hs, err := m.handles()
	if err != nil {
		return nil, err
	}
	for i, h := range hs {
		bound, ok := m.env.sys.Delegates.Get(h)
		if ok && sameTarget(bound, fn) {
			return starlark.True, m.codec.slab.splice(m.context(), header, true, i, 1, nil)
		}
	}
	return starlark.False, nil
}

func (m *MulticastDelegate) clear(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	header, _, err := m.loc.resolve(m.env)
	if err != nil {
		return nil, err
	}
	return starlark.None, m.codec.slab.release(m.context(), header)
}

func sameTarget(b host.Binding, v starlark.Value) bool {
	inv, ok := b.Target.(*scriptInvoker)
	if !ok {
		return false
	}
	if d, ok := v.(*DelegateValue); ok {
		other, ok := d.binding.Target.(*scriptInvoker)
		return ok && other.fn == inv.fn
	}
	return inv.fn == v
}
