package translator

import (
	"fmt"
	"sort"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// objectCodec handles object, weak and interface references, stored as
// (handle, generation). Strong references borrow their target.
type objectCodec struct{ t *host.Type }

func (c objectCodec) Kind() host.Kind  { return c.t.Kind() }
func (c objectCodec) Type() *host.Type { return c.t }

func (c objectCodec) strong() bool { return c.t.Kind() != host.KindWeakObject }

func (c objectCodec) read(ctx *Context, addr uint32) (handle, gen uint32, err error) {
	if handle, err = ctx.Memory().ReadU32(addr); err != nil {
		return 0, 0, err
	}
	if gen, err = ctx.Memory().ReadU32(addr + 4); err != nil {
		return 0, 0, err
	}
	return handle, gen, nil
}

func (c objectCodec) write(ctx *Context, addr, handle, gen uint32) error {
	if err := ctx.Memory().WriteU32(addr, handle); err != nil {
		return err
	}
	return ctx.Memory().WriteU32(addr+4, gen)
}

// ToScriptValue returns None for an empty slot or a dead target.
func (c objectCodec) ToScriptValue(ctx *Context, addr uint32, _ bool) (starlark.Value, error) {
	handle, gen, err := c.read(ctx, addr)
	if err != nil {
		return nil, err
	}
	if handle == 0 {
		return starlark.None, nil
	}
	inst, ok := ctx.env.sys.Objects.Get(handle, gen)
	if !ok {
		return starlark.None, nil
	}
	return ctx.env.Wrap(inst), nil
}

func (c objectCodec) accepts(class *host.Class) bool {
	if c.t.Kind() == host.KindInterface {
		return class.Implements(c.t.Interface())
	}
	return class.IsChildOf(c.t.Class())
}

func (c objectCodec) FromScriptValue(ctx *Context, v starlark.Value, addr uint32, deepCopy bool) error {
	var handle, gen uint32
	switch x := v.(type) {
	case starlark.NoneType:
	case *Object:
		inst, ok := ctx.env.sys.Objects.Get(x.handle, x.gen)
		if !ok {
			return errors.StaleHandle(errors.PhaseFromScript, x.handle, x.gen)
		}
		if !c.accepts(inst.Class) {
			return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), inst.Class.Name())
		}
		handle, gen = x.handle, x.gen
	default:
		return errors.TypeMismatch(errors.PhaseFromScript, ctx.Path(), c.t.String(), v.Type())
	}

	if !c.strong() {
		return c.write(ctx, addr, handle, gen)
	}
	if handle != 0 && !ctx.env.sys.Objects.Borrow(handle, gen) {
		return errors.StaleHandle(errors.PhaseFromScript, handle, gen)
	}
	if deepCopy {
		oldHandle, oldGen, err := c.read(ctx, addr)
		if err != nil {
			ctx.env.sys.Objects.ReturnBorrow(handle, gen)
			return err
		}
		if err := c.write(ctx, addr, handle, gen); err != nil {
			ctx.env.sys.Objects.ReturnBorrow(handle, gen)
			return err
		}
		if oldHandle != 0 {
			ctx.env.sys.Objects.ReturnBorrow(oldHandle, oldGen)
		}
		return nil
	}
	if err := c.write(ctx, addr, handle, gen); err != nil {
		ctx.env.sys.Objects.ReturnBorrow(handle, gen)
		return err
	}
	return nil
}

func (c objectCodec) Cleanup(ctx *Context, addr uint32) error {
	if c.strong() {
		handle, gen, err := c.read(ctx, addr)
		if err != nil {
			return err
		}
		if handle != 0 {
			ctx.env.sys.Objects.ReturnBorrow(handle, gen)
		}
	}
	return c.write(ctx, addr, 0, 0)
}

// Object is a script reference to a host instance. It stays a valid
// Starlark value after the instance is destroyed; accesses then fail
// with a stale handle error.
type Object struct {
	env    *Env
	class  *host.Class
	handle uint32
	gen    uint32
}

var (
	_ starlark.HasSetField = (*Object)(nil)
	_ starlark.Comparable  = (*Object)(nil)
)

// Wrap returns the script value for inst.
func (e *Env) Wrap(inst host.Instance) *Object {
	return &Object{env: e, class: inst.Class, handle: inst.Handle, gen: inst.Gen}
}

func (o *Object) Env() *Env            { return o.env }
func (o *Object) Location() Location   { return objectLoc{handle: o.handle, gen: o.gen} }
func (o *Object) Class() *host.Class   { return o.class }
func (o *Object) Handle() uint32       { return o.handle }
func (o *Object) String() string       { return fmt.Sprintf("<%s#%d>", o.class.Name(), o.handle) }
func (o *Object) Type() string         { return o.class.Name() }
func (o *Object) Freeze()              {}
func (o *Object) Truth() starlark.Bool { return starlark.True }

func (o *Object) Hash() (uint32, error) { return o.handle*31 + o.gen, nil }

// Instance returns the live instance, or false once it was destroyed.
func (o *Object) Instance() (host.Instance, bool) {
	return o.env.sys.Objects.Get(o.handle, o.gen)
}

func (o *Object) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(*Object)
	eq := o.handle == other.handle && o.gen == other.gen
	switch op {
	case syntax.EQL:
		return eq, nil
	case syntax.NEQ:
		return !eq, nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", o.Type(), op, y.Type())
}

func (o *Object) template() (*Template, error) {
	inst, ok := o.Instance()
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseValidate, o.handle, o.gen)
	}
	return o.env.ClassTemplate(inst.Class)
}

func (o *Object) Attr(name string) (starlark.Value, error) {
	tpl, err := o.template()
	if err != nil {
		return nil, err
	}
	if get, _, ok := tpl.Accessor(name); ok {
		return get(o)
	}
	fn, ok := o.class.Function(name)
	if !ok || fn.Static {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		inst, ok := o.Instance()
		if !ok {
			return nil, errors.StaleHandle(errors.PhaseCall, o.handle, o.gen)
		}
		return o.env.call(thread, fn.Sig, inst, fnInvoker(fn), args, kwargs)
	}).BindReceiver(o), nil
}

func (o *Object) AttrNames() []string {
	tpl, err := o.template()
	if err != nil {
		return nil
	}
	names := tpl.Names()
	for _, name := range o.class.FunctionNames() {
		if fn, _ := o.class.Function(name); !fn.Static {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (o *Object) SetField(name string, v starlark.Value) error {
	tpl, err := o.template()
	if err != nil {
		return err
	}
	_, set, ok := tpl.Accessor(name)
	if !ok {
		return starlark.NoSuchAttrError(fmt.Sprintf("%s has no field %q", o.class.Name(), name))
	}
	return set(o, v)
}

// ClassValue is a script reference to a class. Calling it creates an
// instance; keyword arguments initialize fields.
type ClassValue struct {
	env   *Env
	class *host.Class
}

var (
	_ starlark.Callable   = (*ClassValue)(nil)
	_ starlark.HasAttrs   = (*ClassValue)(nil)
	_ starlark.Comparable = (*ClassValue)(nil)
)

func (c *ClassValue) Class() *host.Class    { return c.class }
func (c *ClassValue) Name() string          { return c.class.Name() }
func (c *ClassValue) String() string        { return "<class " + c.class.Name() + ">" }
func (c *ClassValue) Type() string          { return "class" }
func (c *ClassValue) Freeze()               {}
func (c *ClassValue) Truth() starlark.Bool  { return starlark.True }
func (c *ClassValue) Hash() (uint32, error) { return c.class.ID(), nil }

func (c *ClassValue) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	eq := c.class == y.(*ClassValue).class
	switch op {
	case syntax.EQL:
		return eq, nil
	case syntax.NEQ:
		return !eq, nil
	}
	return false, fmt.Errorf("class %s class not implemented", op)
}

func (c *ClassValue) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: fields must be passed by keyword", c.class.Name())
	}
	obj, err := c.env.NewObject(c.class)
	if err != nil {
		return nil, err
	}
	for _, kv := range kwargs {
		if err := obj.SetField(string(kv[0].(starlark.String)), kv[1]); err != nil {
			if derr := c.env.sys.Objects.Destroy(obj.handle, obj.gen); derr != nil {
				Logger().Warn("destroy partially initialized object", zap.Error(derr))
			}
			return nil, err
		}
	}
	return obj, nil
}

func (c *ClassValue) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		return starlark.String(c.class.Name()), nil
	case "is_child_of":
		return starlark.NewBuiltin(name, c.isChildOf).BindReceiver(c), nil
	}
	fn, ok := c.class.Function(name)
	if !ok || !fn.Static {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return c.env.call(thread, fn.Sig, host.Instance{}, fnInvoker(fn), args, kwargs)
	}).BindReceiver(c), nil
}

func (c *ClassValue) AttrNames() []string {
	names := []string{"is_child_of", "name"}
	for _, name := range c.class.FunctionNames() {
		if fn, _ := c.class.Function(name); fn.Static {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *ClassValue) isChildOf(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var other *ClassValue
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &other); err != nil {
		return nil, err
	}
	return starlark.Bool(c.class.IsChildOf(other.class)), nil
}
