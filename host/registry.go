package host

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
)

// ReloadEvent reports that a class layout changed. Retired holds the
// descriptors that stopped being live; their bytes remain in place in
// every instance so their storage can still be released.
type ReloadEvent struct {
	Class   *Class
	Retired []*Field
	Removed bool
}

// ReloadObserver is notified after a class reload or removal.
type ReloadObserver interface {
	OnClassReloaded(ReloadEvent)
}

// Registry owns the host type definitions and the liveness of their
// field descriptors.
type Registry struct {
	structs    map[string]*Struct
	classes    map[string]*Class
	classByID  map[uint32]*Class
	enums      map[string]*Enum
	interfaces map[string]*Interface
	slots      map[fieldKey]*fieldSlot
	observers  []ReloadObserver
	nextClass  uint32
	mu         sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		structs:    make(map[string]*Struct),
		classes:    make(map[string]*Class),
		classByID:  make(map[uint32]*Class),
		enums:      make(map[string]*Enum),
		interfaces: make(map[string]*Interface),
		slots:      make(map[fieldKey]*fieldSlot),
		nextClass:  1,
	}
}

// Subscribe adds an observer for reloads. Observers run in subscription
// order, outside the registry lock.
func (r *Registry) Subscribe(o ReloadObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

func (r *Registry) taken(name string) bool {
	if _, ok := r.structs[name]; ok {
		return true
	}
	if c, ok := r.classes[name]; ok && c.defined {
		return true
	}
	if _, ok := r.enums[name]; ok {
		return true
	}
	_, ok := r.interfaces[name]
	return ok
}

func (r *Registry) checkSpecs(owner string, specs []FieldSpec, existing map[string]*Field) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Name == "" {
			return errors.Registration("%s: field with empty name", owner)
		}
		if s.Type == nil {
			return errors.Registration("%s.%s: nil type", owner, s.Name)
		}
		if seen[s.Name] {
			return errors.Registration("%s: duplicate field %q", owner, s.Name)
		}
		if _, ok := existing[s.Name]; ok {
			return errors.Registration("%s: field %q shadows an inherited field", owner, s.Name)
		}
		if s.Type.Kind() == KindStruct && s.Type.Struct().Name() == owner {
			return errors.Registration("%s: struct cannot contain itself", owner)
		}
		seen[s.Name] = true
	}
	return nil
}

// bind records a live descriptor for f, bumping the generation when the
// logical identity existed before.
func (r *Registry) bind(f *Field) {
	key := fieldKey{owner: f.owner, name: f.Name}
	if slot, ok := r.slots[key]; ok {
		slot.field = f
		slot.gen++
		slot.live = true
		return
	}
	r.slots[key] = &fieldSlot{field: f, gen: 1, live: true}
}

// swap replaces the descriptor of a live identity without a generation bump.
func (r *Registry) swap(f *Field) {
	r.slots[fieldKey{owner: f.owner, name: f.Name}].field = f
}

func (r *Registry) retire(f *Field) {
	if slot, ok := r.slots[fieldKey{owner: f.owner, name: f.Name}]; ok && slot.field == f {
		slot.live = false
		slot.gen++
	}
}

func (r *Registry) resolve(key fieldKey, gen uint32) (*Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slot, ok := r.slots[key]
	if !ok || !slot.live || slot.gen != gen {
		return nil, false
	}
	return slot.field, true
}

// Ref returns a weak reference to f. A reference to a retired or foreign
// descriptor never resolves.
func (r *Registry) Ref(f *Field) FieldRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := fieldKey{owner: f.owner, name: f.Name}
	ref := FieldRef{reg: r, key: key}
	if slot, ok := r.slots[key]; ok && slot.field == f && slot.live {
		ref.gen = slot.gen
	}
	return ref
}

// DefineStruct lays out a struct from specs.
func (r *Registry) DefineStruct(name string, specs ...FieldSpec) (*Struct, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(name) {
		return nil, errors.Registration("type %q already defined", name)
	}
	if err := r.checkSpecs(name, specs, nil); err != nil {
		return nil, err
	}

	s := newStruct(name)
	for _, spec := range specs {
		f := &Field{Name: spec.Name, Type: spec.Type, Flags: spec.Flags, owner: name}
		s.add(f)
		r.bind(f)
	}
	r.structs[name] = s

	Logger().Debug("struct defined", zap.String("struct", name), zap.Uint32("size", s.Size()))
	return s, nil
}

// DeclareClass returns the class named name, creating an undefined shell
// if needed. Shells let object types refer to classes defined later.
func (r *Registry) DeclareClass(name string) *Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.declareLocked(name)
}

func (r *Registry) declareLocked(name string) *Class {
	if c, ok := r.classes[name]; ok {
		return c
	}
	c := newClass(name, r.nextClass)
	r.nextClass++
	r.classes[name] = c
	r.classByID[c.id] = c
	return c
}

// DefineClass lays out a class after its superclass fields. A previously
// declared shell of the same name is filled in.
func (r *Registry) DefineClass(name string, super *Class, specs ...FieldSpec) (*Class, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(name) {
		return nil, errors.Registration("type %q already defined", name)
	}
	if super != nil && !super.defined {
		return nil, errors.Registration("class %q: superclass %q is not defined", name, super.Name())
	}

	var inherited map[string]*Field
	if super != nil {
		inherited = make(map[string]*Field)
		for _, f := range super.Fields() {
			inherited[f.Name] = f
		}
	}
	if err := r.checkSpecs(name, specs, inherited); err != nil {
		return nil, err
	}

	c := r.declareLocked(name)
	start := uint32(0)
	if super != nil {
		start = super.Size()
		c.align = super.Info().Align
		super.subclasses++
	}
	c.super = super
	c.end = start
	for _, spec := range specs {
		f := &Field{Name: spec.Name, Type: spec.Type, Flags: spec.Flags, owner: name, class: c}
		c.add(f)
		r.bind(f)
	}
	c.defined = true
	c.version = 1

	Logger().Debug("class defined",
		zap.String("class", name),
		zap.Uint32("id", c.id),
		zap.Uint32("size", c.Size()))
	return c, nil
}

// DefineEnum registers an enum. Names and values must be unique.
func (r *Registry) DefineEnum(name string, cases ...EnumCase) (*Enum, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(name) {
		return nil, errors.Registration("type %q already defined", name)
	}
	if len(cases) == 0 {
		return nil, errors.Registration("enum %q has no cases", name)
	}
	names := make(map[string]bool, len(cases))
	values := make(map[uint32]bool, len(cases))
	for _, c := range cases {
		if names[c.Name] || values[c.Value] {
			return nil, errors.Registration("enum %q: duplicate case %q (%d)", name, c.Name, c.Value)
		}
		names[c.Name] = true
		values[c.Value] = true
	}

	e := newEnum(name, cases)
	r.enums[name] = e
	return e, nil
}

// DefineInterface registers an interface.
func (r *Registry) DefineInterface(name string) (*Interface, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.taken(name) {
		return nil, errors.Registration("type %q already defined", name)
	}
	i := &Interface{name: name}
	r.interfaces[name] = i
	return i, nil
}

// ReloadClass redefines the own fields of a class in place. Fields whose
// name and type are unchanged keep their offsets and logical identity;
// new or retyped fields are appended after the existing layout; fields
// left out are retired. Classes with subclasses cannot be reloaded.
func (r *Registry) ReloadClass(name string, specs ...FieldSpec) (*Class, error) {
	r.mu.Lock()

	c, ok := r.classes[name]
	if !ok || !c.defined {
		r.mu.Unlock()
		return nil, errors.NotFound(errors.PhaseReflect, "class "+name)
	}
	if c.subclasses > 0 {
		r.mu.Unlock()
		return nil, errors.Registration("class %q has subclasses and cannot be reloaded", name)
	}

	var inherited map[string]*Field
	if c.super != nil {
		inherited = make(map[string]*Field)
		for _, f := range c.super.Fields() {
			inherited[f.Name] = f
		}
	}
	if err := r.checkSpecs(name, specs, inherited); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	old := c.record
	next := newRecord(name, old.end)
	next.align = old.align
	next.end = old.end

	var retired []*Field
	kept := make(map[string]bool, len(specs))
	for _, spec := range specs {
		f := &Field{Name: spec.Name, Type: spec.Type, Flags: spec.Flags, owner: name, class: c}
		if prev, ok := old.index[spec.Name]; ok && prev.Type.Equal(spec.Type) {
			f.Offset = prev.Offset
			next.push(f, spec.Type.Align())
			r.swap(f)
			kept[spec.Name] = true
			continue
		}
		// placed after everything the old layout occupied
		next.add(f)
		r.bind(f)
		if prev, ok := old.index[spec.Name]; ok {
			retired = append(retired, prev)
			kept[spec.Name] = true
		}
	}
	for _, prev := range old.fields {
		if !kept[prev.Name] {
			r.retire(prev)
			retired = append(retired, prev)
		}
	}

	c.record = next
	c.version++
	observers := append([]ReloadObserver(nil), r.observers...)
	r.mu.Unlock()

	Logger().Debug("class reloaded",
		zap.String("class", name),
		zap.Uint32("version", c.version),
		zap.Int("retired", len(retired)),
		zap.Uint32("size", c.Size()))

	ev := ReloadEvent{Class: c, Retired: retired}
	for _, o := range observers {
		o.OnClassReloaded(ev)
	}
	return c, nil
}

// Remove deletes a struct, class, enum or interface and retires all of
// its field descriptors.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()

	if s, ok := r.structs[name]; ok {
		for _, f := range s.fields {
			r.retire(f)
		}
		delete(r.structs, name)
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.enums[name]; ok {
		delete(r.enums, name)
		r.mu.Unlock()
		return nil
	}
	if _, ok := r.interfaces[name]; ok {
		delete(r.interfaces, name)
		r.mu.Unlock()
		return nil
	}

	c, ok := r.classes[name]
	if !ok {
		r.mu.Unlock()
		return errors.NotFound(errors.PhaseReflect, "type "+name)
	}
	if c.subclasses > 0 {
		r.mu.Unlock()
		return errors.Registration("class %q has subclasses and cannot be removed", name)
	}

	retired := append([]*Field(nil), c.fields...)
	for _, f := range retired {
		r.retire(f)
	}
	if c.super != nil {
		c.super.subclasses--
	}
	delete(r.classes, name)
	delete(r.classByID, c.id)
	c.version++
	observers := append([]ReloadObserver(nil), r.observers...)
	r.mu.Unlock()

	Logger().Debug("class removed", zap.String("class", name))

	ev := ReloadEvent{Class: c, Retired: retired, Removed: true}
	for _, o := range observers {
		o.OnClassReloaded(ev)
	}
	return nil
}

func (r *Registry) Struct(name string) (*Struct, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.structs[name]
	return s, ok
}

// Class returns a defined class by name.
func (r *Registry) Class(name string) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	if !ok || !c.defined {
		return nil, false
	}
	return c, true
}

func (r *Registry) ClassByID(id uint32) (*Class, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classByID[id]
	if !ok || !c.defined {
		return nil, false
	}
	return c, true
}

func (r *Registry) Enum(name string) (*Enum, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	return e, ok
}

func (r *Registry) Interface(name string) (*Interface, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.interfaces[name]
	return i, ok
}

// Classes returns all defined classes sorted by name.
func (r *Registry) Classes() []*Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Class, 0, len(r.classes))
	for _, c := range r.classes {
		if c.defined {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Enums returns all enums sorted by name.
func (r *Registry) Enums() []*Enum {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Enum, 0, len(r.enums))
	for _, e := range r.enums {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Undefined returns the names of declared classes that were never defined.
func (r *Registry) Undefined() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, c := range r.classes {
		if !c.defined {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
