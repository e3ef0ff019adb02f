package translator

import (
	"github.com/puzpuzpuz/xsync/v4"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/memory"
)

const envLocalKey = "propbridge.env"

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}

// Env exposes a host.System to Starlark. It caches one template per
// class and struct and keeps them in step with registry reloads. An Env
// is not safe for concurrent script execution.
type Env struct {
	sys       *host.System
	mem       propbridge.Memory
	alloc     propbridge.Allocator
	opts      Options
	scratch   *FastPathBuffer
	templates *xsync.Map[any, *Template]
	frames    *xsync.Map[*host.Signature, *frame]
	codecs    *xsync.Map[*host.Field, Codec]
	globals   starlark.StringDict
	runs      []*scriptRun
}

// scriptRun is one script execution in progress. fault records an error
// raised where the interpreter has no error path, such as Iterate.
type scriptRun struct {
	thread *starlark.Thread
	fault  error
}

func (e *Env) begin(name string) *scriptRun {
	r := &scriptRun{thread: e.newThread(name)}
	e.runs = append(e.runs, r)
	return r
}

// end pops r. A recorded fault replaces the cancellation error it caused.
func (e *Env) end(r *scriptRun, err error) error {
	e.runs = e.runs[:len(e.runs)-1]
	if err != nil && r.fault != nil {
		Logger().Debug("script aborted", zap.String("thread", r.thread.Name), zap.Error(err))
		return r.fault
	}
	return err
}

// abort cancels the innermost running script with err. It is a no-op
// when no script is running.
func (e *Env) abort(err error) {
	if len(e.runs) == 0 {
		return
	}
	r := e.runs[len(e.runs)-1]
	if r.fault == nil {
		r.fault = err
	}
	r.thread.Cancel(err.Error())
}

// NewEnv creates an Env over sys and subscribes it to registry and
// object lifecycle events.
func NewEnv(sys *host.System, opts Options) (*Env, error) {
	if sys == nil {
		return nil, errors.NilPointer(errors.PhaseBind, nil, "system")
	}
	opts = opts.withDefaults()
	scratch, err := NewFastPathBuffer(sys.Memory, sys.Alloc, opts.ScratchSize)
	if err != nil {
		return nil, err
	}
	e := &Env{
		sys:       sys,
		mem:       sys.Memory,
		alloc:     sys.Alloc,
		opts:      opts,
		scratch:   scratch,
		templates: xsync.NewMap[any, *Template](),
		frames:    xsync.NewMap[*host.Signature, *frame](),
		codecs:    xsync.NewMap[*host.Field, Codec](),
		globals:   make(starlark.StringDict),
	}
	sys.Registry.Subscribe(e)
	sys.Objects.Subscribe(e)
	return e, nil
}

func (e *Env) System() *host.System      { return e.sys }
func (e *Env) Options() Options          { return e.opts }
func (e *Env) Scratch() *FastPathBuffer  { return e.scratch }
func (e *Env) Memory() propbridge.Memory { return e.mem }

// Close releases the scratch buffer.
func (e *Env) Close() {
	e.scratch.Close()
}

// FromThread returns the Env that created thread, or nil.
func FromThread(thread *starlark.Thread) *Env {
	e, _ := thread.Local(envLocalKey).(*Env)
	return e
}

func (e *Env) newContext(loc Location, outer starlark.Value, path []string) *Context {
	return &Context{env: e, loc: loc, outer: outer, path: path}
}

type outerSetter interface {
	setOuter(starlark.Value)
}

// linkOuter records that inner aliases memory owned by outer.
func (e *Env) linkOuter(inner, outer starlark.Value) {
	if s, ok := inner.(outerSetter); ok {
		s.setOuter(outer)
	}
	if e.opts.OuterLinker != nil {
		e.opts.OuterLinker.LinkOuter(inner, outer)
	}
}

func (e *Env) fieldCodec(f *host.Field) Codec {
	if c, ok := e.codecs.Load(f); ok {
		return c
	}
	c := NewCodec(f.Type, f.Flags, true)
	e.codecs.Store(f, c)
	return c
}

// releaseField releases the storage owned by f inside the instance at base.
func (e *Env) releaseField(inst host.Instance, f *host.Field) {
	if f.Kind().IsScalar() {
		return
	}
	ctx := e.newContext(nil, nil, f.Path())
	if err := Cleanup(e.fieldCodec(f), ctx, f.ContainerAddressOf(inst.Addr)); err != nil {
		Logger().Warn("release field",
			zap.String("class", inst.Class.Name()),
			zap.Uint32("handle", inst.Handle),
			zap.Strings("field", f.Path()),
			zap.Error(err))
	}
}

// OnObjectEvent releases what a destroyed instance owns.
func (e *Env) OnObjectEvent(ev host.ObjectEvent) {
	if ev.Type != host.ObjectDestroying {
		return
	}
	for _, f := range ev.Fields {
		e.releaseField(ev.Instance, f)
	}
}

// evictCodecs drops cached codecs of descriptors c no longer owns. A
// reload replaces kept descriptors too, so the retired list alone is not
// enough.
func (e *Env) evictCodecs(c *host.Class, removed bool) {
	live := make(map[*host.Field]bool)
	if !removed {
		for _, f := range c.Fields() {
			live[f] = true
		}
	}
	e.codecs.Range(func(f *host.Field, _ Codec) bool {
		if f.OwnerClass() == c && !live[f] {
			e.codecs.Delete(f)
		}
		return true
	})
}

// OnClassReloaded releases the storage of retired fields in every live
// instance and zeroes their bytes. Templates of removed classes are
// dropped; others are rebuilt lazily on the next access.
func (e *Env) OnClassReloaded(ev host.ReloadEvent) {
	if ev.Removed {
		e.templates.Delete(ev.Class)
		e.evictCodecs(ev.Class, true)
		return
	}
	for _, inst := range e.sys.Objects.Instances(ev.Class) {
		for _, f := range ev.Retired {
			e.releaseField(inst, f)
			if err := memory.Zero(e.mem, f.ContainerAddressOf(inst.Addr), f.Type.Size()); err != nil {
				Logger().Warn("clear retired field", zap.Strings("field", f.Path()), zap.Error(err))
			}
		}
	}
	e.evictCodecs(ev.Class, false)
	Logger().Debug("released retired fields",
		zap.String("class", ev.Class.Name()),
		zap.Uint32("version", ev.Class.Version()),
		zap.Int("retired", len(ev.Retired)))
}

// NewObject creates a zeroed instance of class.
func (e *Env) NewObject(class *host.Class) (*Object, error) {
	inst, err := e.sys.Objects.New(class)
	if err != nil {
		return nil, err
	}
	return e.Wrap(inst), nil
}

// Define adds a global visible to scripts run afterwards.
func (e *Env) Define(name string, v starlark.Value) {
	e.globals[name] = v
}

// DefineFunction exposes a free host function to scripts.
func (e *Env) DefineFunction(fn *host.Function) {
	e.Define(fn.Name, starlark.NewBuiltin(fn.Name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return e.call(thread, fn.Sig, host.Instance{}, fnInvoker(fn), args, kwargs)
	}))
}

// Call invokes fn with script arguments. self is nil for static and free
// functions.
func (e *Env) Call(fn *host.Function, self *Object, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var inst host.Instance
	if self != nil {
		var ok bool
		if inst, ok = self.Instance(); !ok {
			return nil, errors.StaleHandle(errors.PhaseCall, self.handle, self.gen)
		}
	}
	return e.call(e.newThread(fn.Name), fn.Sig, inst, fnInvoker(fn), args, kwargs)
}

// Predeclared returns the names visible to scripts: the builtins below,
// one ClassValue per defined class, one namespace per enum and
// everything added through Define.
//
//	ref(value=None)   box for out and ref parameters
//	struct(**fields)  plain struct value
//	destroy(obj)      destroy an instance
//	is_valid(obj)     whether obj still refers to a live instance
//	class_of(obj)     the instance's class
//	len(x)            as the universal len, but reports why a host
//	                  container cannot be resolved
func (e *Env) Predeclared() starlark.StringDict {
	d := starlark.StringDict{
		"ref":      starlark.NewBuiltin("ref", builtinRef),
		"len":      starlark.NewBuiltin("len", builtinLen),
		"struct":   starlark.NewBuiltin("struct", starlarkstruct.Make),
		"destroy":  starlark.NewBuiltin("destroy", e.builtinDestroy),
		"is_valid": starlark.NewBuiltin("is_valid", e.builtinIsValid),
		"class_of": starlark.NewBuiltin("class_of", e.builtinClassOf),
	}
	for _, c := range e.sys.Registry.Classes() {
		d[c.Name()] = &ClassValue{env: e, class: c}
	}
	for _, en := range e.sys.Registry.Enums() {
		cases := make(starlark.StringDict)
		for _, c := range en.Cases() {
			cases[c.Name] = starlark.MakeUint64(uint64(c.Value))
		}
		d[en.Name()] = starlarkstruct.FromStringDict(starlark.String(en.Name()), cases)
	}
	for k, v := range e.globals {
		d[k] = v
	}
	return d
}

func (e *Env) newThread(name string) *starlark.Thread {
	print := e.opts.Print
	if print == nil {
		print = func(thread *starlark.Thread, msg string) {
			Logger().Info(msg, zap.String("thread", thread.Name))
		}
	}
	thread := &starlark.Thread{Name: name, Print: print}
	thread.SetLocal(envLocalKey, e)
	return thread
}

// Exec runs a script and returns its globals.
func (e *Env) Exec(filename string, src any) (starlark.StringDict, error) {
	r := e.begin(filename)
	g, err := starlark.ExecFileOptions(fileOptions, r.thread, filename, src, e.Predeclared())
	return g, e.end(r, err)
}

// Eval evaluates an expression. vars shadow predeclared names.
func (e *Env) Eval(expr string, vars starlark.StringDict) (starlark.Value, error) {
	env := e.Predeclared()
	for k, v := range vars {
		env[k] = v
	}
	r := e.begin("eval")
	v, err := starlark.EvalOptions(fileOptions, r.thread, "<expr>", expr, env)
	return v, e.end(r, err)
}

func builtinRef(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "value?", &v); err != nil {
		return nil, err
	}
	return NewRef(v), nil
}

func builtinLen(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	if c, ok := x.(measured); ok {
		n, err := c.length()
		if err != nil {
			return nil, err
		}
		return starlark.MakeInt(n), nil
	}
	return starlark.Call(thread, starlark.Universe["len"], args, kwargs)
}

func unpackObject(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (*Object, error) {
	var obj *Object
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

func (e *Env) builtinDestroy(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	obj, err := unpackObject(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	return starlark.None, e.sys.Objects.Destroy(obj.handle, obj.gen)
}

func (e *Env) builtinIsValid(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	obj, err := unpackObject(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	_, ok := obj.Instance()
	return starlark.Bool(ok), nil
}

func (e *Env) builtinClassOf(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	obj, err := unpackObject(b, args, kwargs)
	if err != nil {
		return nil, err
	}
	inst, ok := obj.Instance()
	if !ok {
		return nil, errors.StaleHandle(errors.PhaseCall, obj.handle, obj.gen)
	}
	return &ClassValue{env: e, class: inst.Class}, nil
}
