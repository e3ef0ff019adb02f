package translator

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
)

type methodFunc func(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

func method(recv starlark.Value, name string, fn methodFunc) *starlark.Builtin {
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return fn(b, args, kwargs)
	}).BindReceiver(recv)
}

type sliceIterator struct {
	vals []starlark.Value
	i    int
}

func (it *sliceIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.vals) {
		return false
	}
	*p = it.vals[it.i]
	it.i++
	return true
}

func (it *sliceIterator) Done() {}

// measured is implemented by host containers whose length can fail to
// resolve.
type measured interface {
	length() (int, error)
}

// detach returns a plain script copy of a host-backed wrapper, or v.
func detach(v starlark.Value) (starlark.Value, error) {
	switch x := v.(type) {
	case *StructRef:
		return x.Value()
	case *ArrayRef:
		return x.List()
	case *SetRef:
		return x.Set()
	case *MapRef:
		return x.Dict()
	}
	return v, nil
}

// compareDetached compares the current contents of x and y. Two wrappers
// over the same unchanged storage are equal.
func compareDetached(op syntax.Token, x, y starlark.Value, depth int) (bool, error) {
	if op != syntax.EQL && op != syntax.NEQ {
		return false, fmt.Errorf("%s %s %s not implemented", x.Type(), op, y.Type())
	}
	xd, err := detach(x)
	if err != nil {
		return false, err
	}
	yd, err := detach(y)
	if err != nil {
		return false, err
	}
	return starlark.CompareDepth(op, xd, yd, depth-1)
}

// staleIterator aborts the running script with err and returns an empty
// iterator, since Iterate cannot report an error and some builtins do not
// accept a nil one.
func staleIterator(env *Env, kind string, loc Location, err error) starlark.Iterator {
	Logger().Warn(kind+" iterate", zap.Stringer(kind, loc), zap.Error(err))
	env.abort(err)
	return &sliceIterator{}
}

// ArrayRef aliases an array stored in host memory. Indexing returns
// elements by reference; iteration and copy() return copies.
type ArrayRef struct {
	env   *Env
	loc   Location
	codec *arrayCodec
	outer starlark.Value
}

var (
	_ starlark.HasSetIndex = (*ArrayRef)(nil)
	_ starlark.Sequence    = (*ArrayRef)(nil)
	_ starlark.HasBinary   = (*ArrayRef)(nil)
	_ starlark.HasAttrs    = (*ArrayRef)(nil)
	_ starlark.Comparable  = (*ArrayRef)(nil)
)

func (a *ArrayRef) Env() *Env                 { return a.env }
func (a *ArrayRef) Location() Location        { return a.loc }
func (a *ArrayRef) Outer() starlark.Value     { return a.outer }
func (a *ArrayRef) Type() string              { return "array" }
func (a *ArrayRef) Freeze()                   {}
func (a *ArrayRef) Truth() starlark.Bool      { return a.Len() > 0 }
func (a *ArrayRef) setOuter(o starlark.Value) { a.outer = o }

func (a *ArrayRef) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: array") }

func (a *ArrayRef) context() *Context { return a.env.newContext(a.loc, a, nil) }

func (a *ArrayRef) header() (uint32, error) {
	addr, _, err := a.loc.resolve(a.env)
	return addr, err
}

// List returns a detached copy.
func (a *ArrayRef) List() (*starlark.List, error) {
	h, err := a.header()
	if err != nil {
		return nil, err
	}
	vals, err := a.codec.detached(a.context(), h)
	if err != nil {
		return nil, err
	}
	return starlark.NewList(vals), nil
}

func (a *ArrayRef) String() string {
	l, err := a.List()
	if err != nil {
		return fmt.Sprintf("<array %s>", a.loc)
	}
	return l.String()
}

func (a *ArrayRef) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	return compareDetached(op, a, y, depth)
}

func (a *ArrayRef) length() (int, error) {
	h, err := a.header()
	if err != nil {
		return 0, err
	}
	_, n, err := a.codec.slab.cells(a.context(), h)
	return int(n), err
}

// Len is -1 when the array can no longer be resolved, so len() fails.
func (a *ArrayRef) Len() int {
	n, err := a.length()
	if err != nil {
		return -1
	}
	return n
}

// Index returns None and logs when the element cannot be read.
func (a *ArrayRef) Index(i int) starlark.Value {
	v, err := a.Get(i)
	if err != nil {
		Logger().Warn("array index", zap.Stringer("array", a.loc), zap.Int("index", i), zap.Error(err))
		return starlark.None
	}
	return v
}

// Get returns element i by reference. Composite elements are linked to
// the array wrapper.
func (a *ArrayRef) Get(i int) (starlark.Value, error) {
	loc := elemLoc{header: a.loc, stride: a.codec.slab.stride, index: i}
	addr, _, err := loc.resolve(a.env)
	if err != nil {
		return nil, err
	}
	ctx := a.env.newContext(loc, a, []string{fmt.Sprintf("[%d]", i)})
	v, err := a.codec.elem.adapter.ToScriptValue(ctx, addr, true)
	if err != nil {
		return nil, err
	}
	if a.codec.elem.needLinkOuter {
		a.env.linkOuter(v, a)
	}
	return v, nil
}

func (a *ArrayRef) SetIndex(i int, v starlark.Value) error {
	loc := elemLoc{header: a.loc, stride: a.codec.slab.stride, index: i}
	addr, _, err := loc.resolve(a.env)
	if err != nil {
		return err
	}
	ctx := a.env.newContext(loc, a, []string{fmt.Sprintf("[%d]", i)})
	return a.codec.elem.adapter.FromScriptValue(ctx, v, addr, true)
}

func (a *ArrayRef) Iterate() starlark.Iterator {
	l, err := a.List()
	if err != nil {
		return staleIterator(a.env, "array", a.loc, err)
	}
	vals := make([]starlark.Value, l.Len())
	for i := range vals {
		vals[i] = l.Index(i)
	}
	return &sliceIterator{vals: vals}
}

// Binary implements the in operator.
func (a *ArrayRef) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	if op != syntax.IN || side != starlark.Right {
		return nil, nil
	}
	h, err := a.header()
	if err != nil {
		return nil, err
	}
	i, err := a.codec.indexOf(a.context(), h, y)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(i >= 0), nil
}

func (a *ArrayRef) Attr(name string) (starlark.Value, error) {
	switch name {
	case "append":
		return method(a, name, a.append), nil
	case "extend":
		return method(a, name, a.extend), nil
	case "insert":
		return method(a, name, a.insert), nil
	case "pop":
		return method(a, name, a.pop), nil
	case "clear":
		return method(a, name, a.clear), nil
	case "copy":
		return method(a, name, a.copy), nil
	case "index":
		return method(a, name, a.index), nil
	}
	return nil, nil
}

func (a *ArrayRef) AttrNames() []string {
	return []string{"append", "clear", "copy", "extend", "index", "insert", "pop"}
}

func (a *ArrayRef) splice(at, count int, vals []starlark.Value) error {
	h, err := a.header()
	if err != nil {
		return err
	}
	return a.codec.slab.splice(a.context(), h, true, at, count, vals)
}

func (a *ArrayRef) append(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	n, err := a.length()
	if err != nil {
		return nil, err
	}
	return starlark.None, a.splice(n, 0, []starlark.Value{v})
}

func (a *ArrayRef) extend(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	vals, err := a.codec.values(a.context(), v)
	if err != nil {
		return nil, err
	}
	n, err := a.length()
	if err != nil {
		return nil, err
	}
	return starlark.None, a.splice(n, 0, vals)
}

func (a *ArrayRef) insert(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var (
		i int
		v starlark.Value
	)
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 2, &i, &v); err != nil {
		return nil, err
	}
	n, err := a.length()
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += n
	}
	i = min(max(i, 0), n)
	return starlark.None, a.splice(i, 0, []starlark.Value{v})
}

func (a *ArrayRef) pop(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	i := -1
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &i); err != nil {
		return nil, err
	}
	n, err := a.length()
	if err != nil {
		return nil, err
	}
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, errors.OutOfBounds(errors.PhaseFromScript, nil, i, n)
	}
	l, err := a.List()
	if err != nil {
		return nil, err
	}
	v := l.Index(i)
	return v, a.splice(i, 1, nil)
}

func (a *ArrayRef) clear(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	h, err := a.header()
	if err != nil {
		return nil, err
	}
	return starlark.None, a.codec.slab.release(a.context(), h)
}

func (a *ArrayRef) copy(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return a.List()
}

func (a *ArrayRef) index(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	h, err := a.header()
	if err != nil {
		return nil, err
	}
	i, err := a.codec.indexOf(a.context(), h, v)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		return nil, errors.NotFound(errors.PhaseToScript, "element "+v.String())
	}
	return starlark.MakeInt(i), nil
}

// SetRef aliases a set stored in host memory. Elements are always
// returned as copies. Its type name is the host type, such as
// set<string>, so plain sets never reach its comparison.
type SetRef struct {
	env   *Env
	loc   Location
	codec *setCodec
	outer starlark.Value
}

var (
	_ starlark.Sequence   = (*SetRef)(nil)
	_ starlark.HasBinary  = (*SetRef)(nil)
	_ starlark.HasAttrs   = (*SetRef)(nil)
	_ starlark.Comparable = (*SetRef)(nil)
)

func (s *SetRef) Env() *Env                 { return s.env }
func (s *SetRef) Location() Location        { return s.loc }
func (s *SetRef) Outer() starlark.Value     { return s.outer }
func (s *SetRef) Type() string              { return s.codec.t.String() }
func (s *SetRef) Freeze()                   {}
func (s *SetRef) Truth() starlark.Bool      { return s.Len() > 0 }
func (s *SetRef) setOuter(o starlark.Value) { s.outer = o }

func (s *SetRef) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: set") }

func (s *SetRef) context() *Context { return s.env.newContext(s.loc, s, nil) }

func (s *SetRef) header() (uint32, error) {
	addr, _, err := s.loc.resolve(s.env)
	return addr, err
}

func (s *SetRef) elems() ([]starlark.Value, error) {
	h, err := s.header()
	if err != nil {
		return nil, err
	}
	return s.codec.detached(s.context(), h)
}

// Set returns a detached copy.
func (s *SetRef) Set() (*starlark.Set, error) {
	h, err := s.header()
	if err != nil {
		return nil, err
	}
	v, err := s.codec.ToScriptValue(s.context(), h, false)
	if err != nil {
		return nil, err
	}
	return v.(*starlark.Set), nil
}

func (s *SetRef) String() string {
	set, err := s.Set()
	if err != nil {
		return fmt.Sprintf("<set %s>", s.loc)
	}
	return set.String()
}

func (s *SetRef) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	return compareDetached(op, s, y, depth)
}

func (s *SetRef) length() (int, error) {
	h, err := s.header()
	if err != nil {
		return 0, err
	}
	_, n, err := s.codec.slab.cells(s.context(), h)
	return int(n), err
}

func (s *SetRef) Len() int {
	n, err := s.length()
	if err != nil {
		return -1
	}
	return n
}

func (s *SetRef) Iterate() starlark.Iterator {
	vals, err := s.elems()
	if err != nil {
		return staleIterator(s.env, "set", s.loc, err)
	}
	return &sliceIterator{vals: vals}
}

func (s *SetRef) indexOf(v starlark.Value) (int, error) {
	h, err := s.header()
	if err != nil {
		return -1, err
	}
	return s.codec.indexOf(s.context(), h, v)
}

func (s *SetRef) Binary(op syntax.Token, y starlark.Value, side starlark.Side) (starlark.Value, error) {
	if op != syntax.IN || side != starlark.Right {
		return nil, nil
	}
	i, err := s.indexOf(y)
	if err != nil {
		return nil, err
	}
	return starlark.Bool(i >= 0), nil
}

func (s *SetRef) Attr(name string) (starlark.Value, error) {
	switch name {
	case "add":
		return method(s, name, s.add), nil
	case "remove":
		return method(s, name, s.remove), nil
	case "discard":
		return method(s, name, s.discard), nil
	case "clear":
		return method(s, name, s.clear), nil
	case "copy":
		return method(s, name, s.copy), nil
	}
	return nil, nil
}

func (s *SetRef) AttrNames() []string {
	return []string{"add", "clear", "copy", "discard", "remove"}
}

func (s *SetRef) add(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	i, err := s.indexOf(v)
	if err != nil || i >= 0 {
		return starlark.None, err
	}
	h, err := s.header()
	if err != nil {
		return nil, err
	}
	n, err := s.length()
	if err != nil {
		return nil, err
	}
	return starlark.None, s.codec.slab.splice(s.context(), h, true, n, 0, []starlark.Value{v})
}

func (s *SetRef) drop(v starlark.Value) (bool, error) {
	i, err := s.indexOf(v)
	if err != nil || i < 0 {
		return false, err
	}
	h, err := s.header()
	if err != nil {
		return false, err
	}
	return true, s.codec.slab.splice(s.context(), h, true, i, 1, nil)
}

func (s *SetRef) remove(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	found, err := s.drop(v)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound(errors.PhaseFromScript, "set element "+v.String())
	}
	return starlark.None, nil
}

func (s *SetRef) discard(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var v starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &v); err != nil {
		return nil, err
	}
	_, err := s.drop(v)
	return starlark.None, err
}

func (s *SetRef) clear(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	h, err := s.header()
	if err != nil {
		return nil, err
	}
	return starlark.None, s.codec.slab.release(s.context(), h)
}

func (s *SetRef) copy(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return s.Set()
}

// MapRef aliases a map stored in host memory. Values are returned by
// reference and linked to the map wrapper; keys are copies.
type MapRef struct {
	env   *Env
	loc   Location
	codec *mapCodec
	outer starlark.Value
}

var (
	_ starlark.IterableMapping = (*MapRef)(nil)
	_ starlark.HasSetKey       = (*MapRef)(nil)
	_ starlark.Sequence        = (*MapRef)(nil)
	_ starlark.HasAttrs        = (*MapRef)(nil)
	_ starlark.Comparable      = (*MapRef)(nil)
)

func (m *MapRef) Env() *Env                 { return m.env }
func (m *MapRef) Location() Location        { return m.loc }
func (m *MapRef) Outer() starlark.Value     { return m.outer }
func (m *MapRef) Type() string              { return "map" }
func (m *MapRef) Freeze()                   {}
func (m *MapRef) Truth() starlark.Bool      { return m.Len() > 0 }
func (m *MapRef) setOuter(o starlark.Value) { m.outer = o }

func (m *MapRef) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: map") }

func (m *MapRef) context() *Context { return m.env.newContext(m.loc, m, nil) }

func (m *MapRef) header() (uint32, error) {
	addr, _, err := m.loc.resolve(m.env)
	return addr, err
}

// Dict returns a detached copy.
func (m *MapRef) Dict() (*starlark.Dict, error) {
	h, err := m.header()
	if err != nil {
		return nil, err
	}
	v, err := m.codec.ToScriptValue(m.context(), h, false)
	if err != nil {
		return nil, err
	}
	return v.(*starlark.Dict), nil
}

func (m *MapRef) String() string {
	d, err := m.Dict()
	if err != nil {
		return fmt.Sprintf("<map %s>", m.loc)
	}
	return d.String()
}

func (m *MapRef) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	return compareDetached(op, m, y, depth)
}

func (m *MapRef) length() (int, error) {
	h, err := m.header()
	if err != nil {
		return 0, err
	}
	_, n, err := m.codec.slab.cells(m.context(), h)
	return int(n), err
}

func (m *MapRef) Len() int {
	n, err := m.length()
	if err != nil {
		return -1
	}
	return n
}

func (m *MapRef) Get(k starlark.Value) (starlark.Value, bool, error) {
	h, err := m.header()
	if err != nil {
		return nil, false, err
	}
	entry, found, err := m.codec.find(m.context(), h, k)
	if err != nil || !found {
		return nil, false, err
	}
	loc := mapValueLoc{header: m.loc, codec: m.codec, key: k}
	ctx := m.env.newContext(loc, m, []string{"[" + k.String() + "]"})
	v, err := m.codec.value.adapter.ToScriptValue(ctx, entry, true)
	if err != nil {
		return nil, false, err
	}
	if m.codec.value.needLinkOuter {
		m.env.linkOuter(v, m)
	}
	return v, true, nil
}

func (m *MapRef) SetKey(k, v starlark.Value) error {
	h, err := m.header()
	if err != nil {
		return err
	}
	ctx := m.env.newContext(m.loc, m, []string{"[" + k.String() + "]"})
	entry, found, err := m.codec.find(ctx, h, k)
	if err != nil {
		return err
	}
	if found {
		return m.codec.value.adapter.FromScriptValue(ctx, v, entry, true)
	}
	n, err := m.length()
	if err != nil {
		return err
	}
	return m.codec.slab.splice(ctx, h, true, n, 0, []starlark.Value{starlark.Tuple{k, v}})
}

func (m *MapRef) entries() ([]starlark.Tuple, error) {
	h, err := m.header()
	if err != nil {
		return nil, err
	}
	return m.codec.items(m.context(), h)
}

// Items is nil when the map cannot be read.
func (m *MapRef) Items() []starlark.Tuple {
	items, err := m.entries()
	if err != nil {
		Logger().Warn("map items", zap.Stringer("map", m.loc), zap.Error(err))
		return nil
	}
	return items
}

func (m *MapRef) Iterate() starlark.Iterator {
	items, err := m.entries()
	if err != nil {
		return staleIterator(m.env, "map", m.loc, err)
	}
	keys := make([]starlark.Value, len(items))
	for i, kv := range items {
		keys[i] = kv[0]
	}
	return &sliceIterator{vals: keys}
}

func (m *MapRef) Attr(name string) (starlark.Value, error) {
	switch name {
	case "keys":
		return method(m, name, m.keys), nil
	case "values":
		return method(m, name, m.values), nil
	case "items":
		return method(m, name, m.items), nil
	case "get":
		return method(m, name, m.get), nil
	case "pop":
		return method(m, name, m.pop), nil
	case "clear":
		return method(m, name, m.clear), nil
	case "copy":
		return method(m, name, m.copy), nil
	}
	return nil, nil
}

func (m *MapRef) AttrNames() []string {
	return []string{"clear", "copy", "get", "items", "keys", "pop", "values"}
}

func (m *MapRef) keys(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	items, err := m.entries()
	if err != nil {
		return nil, err
	}
	var out []starlark.Value
	for _, kv := range items {
		out = append(out, kv[0])
	}
	return starlark.NewList(out), nil
}

func (m *MapRef) values(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	items, err := m.entries()
	if err != nil {
		return nil, err
	}
	var out []starlark.Value
	for _, kv := range items {
		out = append(out, kv[1])
	}
	return starlark.NewList(out), nil
}

func (m *MapRef) items(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	items, err := m.entries()
	if err != nil {
		return nil, err
	}
	out := make([]starlark.Value, len(items))
	for i, kv := range items {
		out[i] = kv
	}
	return starlark.NewList(out), nil
}

func (m *MapRef) get(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var k, def starlark.Value = nil, starlark.None
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &k, &def); err != nil {
		return nil, err
	}
	v, found, err := m.Get(k)
	if err != nil {
		return nil, err
	}
	if !found {
		return def, nil
	}
	return v, nil
}

func (m *MapRef) pop(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var k, def starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &k, &def); err != nil {
		return nil, err
	}
	h, err := m.header()
	if err != nil {
		return nil, err
	}
	ctx := m.context()
	i, err := m.codec.indexOf(ctx, h, k)
	if err != nil {
		return nil, err
	}
	if i < 0 {
		if def != nil {
			return def, nil
		}
		return nil, errors.NotFound(errors.PhaseToScript, "map key "+k.String())
	}
	items, err := m.entries()
	if err != nil {
		return nil, err
	}
	return items[i][1], m.codec.slab.splice(ctx, h, true, i, 1, nil)
}

func (m *MapRef) clear(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	h, err := m.header()
	if err != nil {
		return nil, err
	}
	return starlark.None, m.codec.slab.release(m.context(), h)
}

func (m *MapRef) copy(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	return m.Dict()
}
