package host

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/internal/layout"
	"github.com/wippyai/propbridge/memory"
	"github.com/wippyai/propbridge/resource"
)

// Instance locates one live object. Addr may change when the class is
// reloaded, so callers resolve instances by handle on every access.
type Instance struct {
	Class  *Class
	Handle uint32
	Gen    uint32
	Addr   uint32
	Size   uint32
}

// IsZero reports whether i refers to no object.
func (i Instance) IsZero() bool { return i.Handle == 0 }

// ObjectEventType identifies an object lifecycle event.
type ObjectEventType uint8

const (
	ObjectCreated ObjectEventType = iota
	// ObjectDestroying fires while the instance memory is still readable.
	ObjectDestroying
	ObjectDestroyed
)

// ObjectEvent carries a lifecycle notification. Fields lists the
// descriptors whose storage the instance owns.
type ObjectEvent struct {
	Instance Instance
	Fields   []*Field
	Type     ObjectEventType
}

// ObjectObserver receives object lifecycle events.
type ObjectObserver interface {
	OnObjectEvent(ObjectEvent)
}

type object struct {
	class *Class
	addr  uint32
	size  uint32
	align uint32
}

// ObjectTable owns class instances. Strong references held in host
// memory borrow their target; an object with outstanding borrows cannot
// be destroyed.
type ObjectTable struct {
	table     *resource.Table
	mem       propbridge.Memory
	alloc     propbridge.Allocator
	observers []ObjectObserver
	mu        sync.RWMutex
}

// NewObjectTable creates a table allocating instances through alloc.
func NewObjectTable(mem propbridge.Memory, alloc propbridge.Allocator) *ObjectTable {
	return &ObjectTable{
		table: resource.NewTable(),
		mem:   mem,
		alloc: alloc,
	}
}

func (t *ObjectTable) Subscribe(o ObjectObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

func (t *ObjectTable) notify(ev ObjectEvent) {
	t.mu.RLock()
	observers := append([]ObjectObserver(nil), t.observers...)
	t.mu.RUnlock()
	for _, o := range observers {
		o.OnObjectEvent(ev)
	}
}

func instanceOf(h resource.Handle, gen uint32, v any) Instance {
	o := v.(*object)
	return Instance{Class: o.class, Handle: uint32(h), Gen: gen, Addr: o.addr, Size: o.size}
}

// New allocates a zeroed instance of class.
func (t *ObjectTable) New(class *Class) (Instance, error) {
	if class == nil {
		return Instance{}, errors.NilPointer(errors.PhaseCall, nil, "class")
	}
	if !class.Defined() {
		return Instance{}, errors.New(errors.PhaseCall, errors.KindInvalidInput).
			Path(class.Name()).
			Detail("class is declared but not defined").
			Build()
	}

	info := class.Info()
	size := max(info.Size, 1)
	addr, err := t.alloc.Alloc(size, info.Align)
	if err != nil {
		return Instance{}, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "instance of "+class.Name())
	}
	if err := memory.Zero(t.mem, addr, size); err != nil {
		t.alloc.Free(addr, size, info.Align)
		return Instance{}, err
	}

	h, gen, err := t.table.Insert(&object{class: class, addr: addr, size: size, align: info.Align})
	if err != nil {
		t.alloc.Free(addr, size, info.Align)
		return Instance{}, errors.Wrap(errors.PhaseCall, errors.KindInvalidData, err, "register instance")
	}

	inst := Instance{Class: class, Handle: uint32(h), Gen: gen, Addr: addr, Size: size}
	t.notify(ObjectEvent{Type: ObjectCreated, Instance: inst})
	return inst, nil
}

// Get returns the instance when handle and generation still match.
func (t *ObjectTable) Get(handle, gen uint32) (Instance, bool) {
	v, ok := t.table.Get(resource.Handle(handle), gen)
	if !ok {
		return Instance{}, false
	}
	return instanceOf(resource.Handle(handle), gen, v), true
}

// Lookup returns the current occupant of handle, whatever its generation.
func (t *ObjectTable) Lookup(handle uint32) (Instance, bool) {
	v, gen, ok := t.table.Lookup(resource.Handle(handle))
	if !ok {
		return Instance{}, false
	}
	return instanceOf(resource.Handle(handle), gen, v), true
}

func (t *ObjectTable) Borrow(handle, gen uint32) bool {
	return t.table.Borrow(resource.Handle(handle), gen)
}

func (t *ObjectTable) ReturnBorrow(handle, gen uint32) bool {
	return t.table.ReturnBorrow(resource.Handle(handle), gen)
}

func (t *ObjectTable) BorrowCount(handle uint32) uint32 {
	return t.table.BorrowCount(resource.Handle(handle))
}

func (t *ObjectTable) Len() int {
	return t.table.Len()
}

// Destroy releases an instance. Observers see ObjectDestroying before
// its memory is freed.
func (t *ObjectTable) Destroy(handle, gen uint32) error {
	return t.destroy(handle, gen, false)
}

func (t *ObjectTable) destroy(handle, gen uint32, force bool) error {
	v, ok := t.table.Get(resource.Handle(handle), gen)
	if !ok {
		return errors.StaleHandle(errors.PhaseCall, handle, gen)
	}
	inst := instanceOf(resource.Handle(handle), gen, v)
	if !force && t.table.BorrowCount(resource.Handle(handle)) > 0 {
		return errors.New(errors.PhaseCall, errors.KindOutstandingBorrow).
			Path(inst.Class.Name()).
			Value(handle).
			Detail("object is still referenced").
			Build()
	}

	t.notify(ObjectEvent{Type: ObjectDestroying, Instance: inst, Fields: inst.Class.Fields()})

	if force {
		for t.table.BorrowCount(resource.Handle(handle)) > 0 {
			t.table.ReturnBorrow(resource.Handle(handle), gen)
		}
	}
	if _, err := t.table.Remove(resource.Handle(handle), gen); err != nil {
		return errors.Wrap(errors.PhaseCall, errors.KindOutstandingBorrow, err, "destroy "+inst.Class.Name())
	}
	t.alloc.Free(inst.Addr, inst.Size, v.(*object).align)

	t.notify(ObjectEvent{Type: ObjectDestroyed, Instance: inst})
	return nil
}

// Instances returns live instances of class and its subclasses.
func (t *ObjectTable) Instances(class *Class) []Instance {
	var out []Instance
	t.table.Each(func(h resource.Handle, gen uint32, v any) bool {
		if o := v.(*object); o.class.IsChildOf(class) {
			out = append(out, instanceOf(h, gen, v))
		}
		return true
	})
	return out
}

// OnClassReloaded grows instances of a reloaded class, or destroys them
// when the class was removed.
func (t *ObjectTable) OnClassReloaded(ev ReloadEvent) {
	for _, inst := range t.Instances(ev.Class) {
		if ev.Removed {
			if err := t.destroy(inst.Handle, inst.Gen, true); err != nil {
				Logger().Warn("destroy instance of removed class",
					zap.String("class", ev.Class.Name()),
					zap.Uint32("handle", inst.Handle),
					zap.Error(err))
			}
			continue
		}
		if err := t.migrate(inst, ev.Class.Info()); err != nil {
			Logger().Warn("migrate instance",
				zap.String("class", ev.Class.Name()),
				zap.Uint32("handle", inst.Handle),
				zap.Error(err))
		}
	}
}

func (t *ObjectTable) migrate(inst Instance, info layout.Info) error {
	size := max(info.Size, 1)
	if size <= inst.Size {
		return nil
	}
	v, ok := t.table.Get(resource.Handle(inst.Handle), inst.Gen)
	if !ok {
		return errors.StaleHandle(errors.PhaseReflect, inst.Handle, inst.Gen)
	}
	old := v.(*object)
	addr, err := t.alloc.Alloc(size, info.Align)
	if err != nil {
		return err
	}
	if err := memory.Zero(t.mem, addr, size); err != nil {
		t.alloc.Free(addr, size, info.Align)
		return err
	}
	if err := memory.Copy(t.mem, addr, inst.Addr, inst.Size); err != nil {
		t.alloc.Free(addr, size, info.Align)
		return err
	}
	next := &object{class: old.class, addr: addr, size: size, align: info.Align}
	if !t.table.Replace(resource.Handle(inst.Handle), inst.Gen, next) {
		t.alloc.Free(addr, size, info.Align)
		return errors.StaleHandle(errors.PhaseReflect, inst.Handle, inst.Gen)
	}
	t.alloc.Free(old.addr, old.size, old.align)
	return nil
}
