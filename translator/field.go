package translator

import (
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

// Tracker holds a weak reference to a field descriptor. Valid consults
// only the registry, never host memory. When a reload swapped the
// descriptor for one with the same identity and type, Valid adopts it
// and reports the change through onChange.
type Tracker struct {
	ref      host.FieldRef
	cached   *host.Field
	onChange func(*host.Field)
}

// NewTracker returns a tracker for ref. It is not validated yet.
func NewTracker(ref host.FieldRef) *Tracker {
	return &Tracker{ref: ref}
}

func (t *Tracker) Valid() bool {
	f, ok := t.ref.Resolve()
	if !ok {
		return false
	}
	if f != t.cached {
		t.cached = f
		if t.onChange != nil {
			t.onChange(f)
		}
	}
	return true
}

// Field returns the descriptor adopted by the last successful Valid.
func (t *Tracker) Field() *host.Field { return t.cached }

// ContainerAdapter applies a codec to a field inside a container given
// the container's base address.
type ContainerAdapter struct {
	field *host.Field
	codec Codec
}

func (a ContainerAdapter) AddressOf(base uint32) uint32 {
	return a.field.ContainerAddressOf(base)
}

func (a ContainerAdapter) ToScriptValue(ctx *Context, base uint32, byRef bool) (starlark.Value, error) {
	return a.codec.ToScriptValue(ctx, a.AddressOf(base), byRef)
}

func (a ContainerAdapter) FromScriptValue(ctx *Context, v starlark.Value, base uint32, deepCopy bool) error {
	return a.codec.FromScriptValue(ctx, v, a.AddressOf(base), deepCopy)
}

func (a ContainerAdapter) FastFromScriptValue(ctx *Context, v starlark.Value, base uint32) (uint32, bool, error) {
	return FastFromScriptValue(a.codec, ctx, v, a.AddressOf(base))
}

func (a ContainerAdapter) Cleanup(ctx *Context, base uint32) error {
	return Cleanup(a.codec, ctx, a.AddressOf(base))
}

func (a ContainerAdapter) FromScriptValueForOutParam(ctx *Context, v starlark.Value, base uint32) error {
	return FromScriptValueForOutParam(a.codec, ctx, v, a.AddressOf(base))
}

func (a ContainerAdapter) ToScriptValueAfterCall(ctx *Context, v starlark.Value, base uint32) error {
	return ToScriptValueAfterCall(a.codec, ctx, v, a.AddressOf(base))
}

// Receiver is a script value that owns host storage fields can be
// resolved against: an *Object or a *StructRef.
type Receiver interface {
	starlark.Value
	Location() Location
	Env() *Env
}

// FieldTranslator binds one field descriptor to its codec. It is built
// once per descriptor identity and reinitialized in place when a reload
// swaps the descriptor.
type FieldTranslator struct {
	tracker       Tracker
	adapter       ContainerAdapter
	codec         Codec
	ownerIsClass  bool
	needLinkOuter bool
	scratchSize   uint32
	ignoreOut     bool
}

// NewFieldTranslator resolves ref and builds its codec. Property
// translators pass ignoreOut so out and ref flags do not change how the
// field is read or written.
func NewFieldTranslator(ref host.FieldRef, ignoreOut bool) (*FieldTranslator, error) {
	t := &FieldTranslator{ignoreOut: ignoreOut}
	t.tracker = Tracker{ref: ref, onChange: t.init}
	if !t.tracker.Valid() {
		return nil, errors.DescriptorInvalid(ref.Path())
	}
	return t, nil
}

func (t *FieldTranslator) init(f *host.Field) {
	if t.codec != nil {
		Logger().Debug("reinitialize field translator",
			zap.Strings("field", f.Path()),
			zap.Uint32("offset", f.Offset))
	}
	t.codec = NewCodec(f.Type, f.Flags, t.ignoreOut)
	t.adapter = ContainerAdapter{field: f, codec: t.codec}
	t.ownerIsClass = f.OwnerClass() != nil
	t.needLinkOuter = !t.ownerIsClass && f.Kind().IsComposite()
	t.scratchSize = ParamShallowCopySize(t.codec)
}

// Valid reports whether the descriptor is still live.
func (t *FieldTranslator) Valid() bool { return t.tracker.Valid() }

// Field returns the live descriptor or a DescriptorInvalid error.
func (t *FieldTranslator) Field() (*host.Field, error) {
	if !t.tracker.Valid() {
		return nil, errors.DescriptorInvalid(t.tracker.ref.Path())
	}
	return t.tracker.Field(), nil
}

func (t *FieldTranslator) Codec() Codec { return t.codec }

// NeedLinkOuter reports whether values read through this translator
// alias memory owned by the receiver wrapper.
func (t *FieldTranslator) NeedLinkOuter() bool { return t.needLinkOuter }

// base resolves the container and checks that f fits inside it.
func (t *FieldTranslator) base(env *Env, loc Location, f *host.Field) (uint32, error) {
	addr, size, err := loc.resolve(env)
	if err != nil {
		return 0, err
	}
	if f.Extent() > size {
		return 0, errors.New(errors.PhaseValidate, errors.KindOutOfBounds).
			Path(f.Path()...).
			Detail("field ends at %d beyond container size %d", f.Extent(), size).
			Build()
	}
	return addr, nil
}

// Get reads the field of recv. Composite values are returned by
// reference and linked to recv when the field is not owned by a class.
func (t *FieldTranslator) Get(recv Receiver) (starlark.Value, error) {
	if recv == nil {
		return nil, errors.NilPointer(errors.PhaseValidate, t.tracker.ref.Path(), "receiver")
	}
	f, err := t.Field()
	if err != nil {
		return nil, err
	}
	env := recv.Env()
	base, err := t.base(env, recv.Location(), f)
	if err != nil {
		return nil, err
	}
	ctx := env.newContext(fieldLoc{parent: recv.Location(), tr: t}, recv, f.Path())
	v, err := t.adapter.ToScriptValue(ctx, base, true)
	if err != nil {
		return nil, err
	}
	if t.needLinkOuter {
		env.linkOuter(v, recv)
	}
	return v, nil
}

// Set writes v into the field of recv, releasing the previous value.
func (t *FieldTranslator) Set(recv Receiver, v starlark.Value) error {
	if recv == nil {
		return errors.NilPointer(errors.PhaseValidate, t.tracker.ref.Path(), "receiver")
	}
	f, err := t.Field()
	if err != nil {
		return err
	}
	if f.Has(host.FlagReadOnly) {
		return errors.New(errors.PhaseFromScript, errors.KindReadOnly).
			Path(f.Path()...).
			Detail("field is read-only").
			Build()
	}
	env := recv.Env()
	base, err := t.base(env, recv.Location(), f)
	if err != nil {
		return err
	}
	ctx := env.newContext(fieldLoc{parent: recv.Location(), tr: t}, recv, f.Path())
	return t.adapter.FromScriptValue(ctx, v, base, true)
}

// BindAccessor installs the translator as the name accessor of tpl.
func (t *FieldTranslator) BindAccessor(tpl *Template, name string) {
	tpl.SetAccessor(name, t.Get, t.Set)
	tpl.fields[name] = t
}
