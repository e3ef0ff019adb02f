package translator

import (
	"fmt"

	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// Context carries one conversion: the Env, where the converted address
// came from and which wrapper owns it. A Context is built per accessor
// call or function call and must not be retained.
type Context struct {
	env   *Env
	loc   Location
	outer starlark.Value
	path  []string
}

func (c *Context) Env() *Env                 { return c.env }
func (c *Context) Memory() propbridge.Memory { return c.env.mem }
func (c *Context) Location() Location        { return c.loc }
func (c *Context) Outer() starlark.Value     { return c.outer }
func (c *Context) Path() []string            { return c.path }

func (c *Context) alloc() propbridge.Allocator {
	return c.env.alloc
}

// at derives a context for a nested location.
func (c *Context) at(loc Location, outer starlark.Value, name string) *Context {
	path := make([]string, 0, len(c.path)+1)
	path = append(path, c.path...)
	if name != "" {
		path = append(path, name)
	}
	return &Context{env: c.env, loc: loc, outer: outer, path: path}
}

// locOr returns the context location, or a fixed one for addr.
func (c *Context) locOr(addr, size uint32) Location {
	if c.loc != nil {
		return c.loc
	}
	return Fixed(addr, size)
}

// Location is where a host value lives. Wrappers that alias host memory
// resolve their location on every access, so destroyed objects, retired
// descriptors and reallocated containers are detected instead of read
// through a stale address.
type Location interface {
	resolve(env *Env) (addr, size uint32, err error)
	String() string
}

type fixedLoc struct {
	addr, size uint32
}

// Fixed returns a location at a constant address.
func Fixed(addr, size uint32) Location {
	return fixedLoc{addr: addr, size: size}
}

func (l fixedLoc) resolve(*Env) (uint32, uint32, error) { return l.addr, l.size, nil }
func (l fixedLoc) String() string                       { return fmt.Sprintf("@%#x", l.addr) }

// objectLoc is the storage of a live instance.
type objectLoc struct {
	handle, gen uint32
}

func (l objectLoc) resolve(env *Env) (uint32, uint32, error) {
	inst, ok := env.sys.Objects.Get(l.handle, l.gen)
	if !ok {
		return 0, 0, errors.StaleHandle(errors.PhaseValidate, l.handle, l.gen)
	}
	return inst.Addr, inst.Size, nil
}

func (l objectLoc) String() string { return fmt.Sprintf("object#%d", l.handle) }

// fieldLoc is a field inside its container. The descriptor is validated
// before the container is resolved.
type fieldLoc struct {
	parent Location
	tr     *FieldTranslator
}

func (l fieldLoc) resolve(env *Env) (uint32, uint32, error) {
	f, err := l.tr.Field()
	if err != nil {
		return 0, 0, err
	}
	base, err := l.tr.base(env, l.parent, f)
	if err != nil {
		return 0, 0, err
	}
	return f.ContainerAddressOf(base), f.Type.Size(), nil
}

func (l fieldLoc) String() string { return l.parent.String() + "." + l.tr.tracker.ref.Name() }

// elemLoc is the index-th element of the container whose header lives at
// header.
type elemLoc struct {
	header Location
	stride uint32
	index  int
}

func (l elemLoc) resolve(env *Env) (uint32, uint32, error) {
	h, _, err := l.header.resolve(env)
	if err != nil {
		return 0, 0, err
	}
	ptr, n, err := host.ReadSlice(env.mem, h)
	if err != nil {
		return 0, 0, err
	}
	if l.index < 0 || l.index >= int(n) {
		return 0, 0, errors.OutOfBounds(errors.PhaseValidate, nil, l.index, int(n))
	}
	return ptr + uint32(l.index)*l.stride, l.stride, nil
}

func (l elemLoc) String() string { return fmt.Sprintf("%s[%d]", l.header, l.index) }

// mapValueLoc is the value stored under key. Entries move when the map
// is resized, so the key is looked up on every resolve.
type mapValueLoc struct {
	header Location
	codec  *mapCodec
	key    starlark.Value
}

func (l mapValueLoc) resolve(env *Env) (uint32, uint32, error) {
	h, _, err := l.header.resolve(env)
	if err != nil {
		return 0, 0, err
	}
	ctx := env.newContext(l.header, nil, nil)
	entry, found, err := l.codec.find(ctx, h, l.key)
	if err != nil {
		return 0, 0, err
	}
	if !found {
		return 0, 0, errors.NotFound(errors.PhaseValidate, "map key "+l.key.String())
	}
	return entry + l.codec.valueOff, l.codec.value.codec.Type().Size(), nil
}

func (l mapValueLoc) String() string { return fmt.Sprintf("%s[%s]", l.header, l.key) }
