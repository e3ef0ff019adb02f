package host

import (
	"sort"

	"github.com/wippyai/propbridge/internal/layout"
)

// Interface is a marker type implemented by classes.
type Interface struct {
	name string
}

func (i *Interface) Name() string { return i.name }

// Class is a reference type. Instances live in an ObjectTable; fields of
// a subclass follow the fields of its superclass.
type Class struct {
	record
	id         uint32
	super      *Class
	interfaces []*Interface
	functions  map[string]*Function
	version    uint32
	subclasses int
	defined    bool
}

func newClass(name string, id uint32) *Class {
	return &Class{
		record:    newRecord(name, 0),
		id:        id,
		functions: make(map[string]*Function),
	}
}

func (c *Class) Name() string  { return c.name }
func (c *Class) ID() uint32    { return c.id }
func (c *Class) Super() *Class { return c.super }

// Defined reports whether the class has a layout. Declared-only classes
// can be referenced by object types but not instantiated.
func (c *Class) Defined() bool { return c.defined }

// Version increases on every reload.
func (c *Class) Version() uint32 { return c.version }

func (c *Class) Info() layout.Info { return c.info() }
func (c *Class) Size() uint32      { return c.info().Size }

// Fields returns inherited fields followed by own fields.
func (c *Class) Fields() []*Field {
	var out []*Field
	if c.super != nil {
		out = c.super.Fields()
	}
	return append(out, c.fields...)
}

// OwnFields returns fields declared by this class only.
func (c *Class) OwnFields() []*Field {
	return append([]*Field(nil), c.fields...)
}

// Field looks up a field by name, searching superclasses.
func (c *Class) Field(name string) (*Field, bool) {
	for k := c; k != nil; k = k.super {
		if f, ok := k.index[name]; ok {
			return f, true
		}
	}
	return nil, false
}

// IsChildOf reports whether c is other or derives from it.
func (c *Class) IsChildOf(other *Class) bool {
	for k := c; k != nil; k = k.super {
		if k == other {
			return true
		}
	}
	return false
}

// Implements reports whether c or a superclass implements iface.
func (c *Class) Implements(iface *Interface) bool {
	for k := c; k != nil; k = k.super {
		for _, i := range k.interfaces {
			if i == iface {
				return true
			}
		}
	}
	return false
}

// Interfaces returns the interfaces declared on this class.
func (c *Class) Interfaces() []*Interface {
	return append([]*Interface(nil), c.interfaces...)
}

// AddInterface declares that c implements iface.
func (c *Class) AddInterface(iface *Interface) {
	if !c.Implements(iface) {
		c.interfaces = append(c.interfaces, iface)
	}
}

// AddFunction registers fn on the class, replacing a function of the same name.
func (c *Class) AddFunction(fn *Function) {
	c.functions[fn.Name] = fn
}

// Function looks up a function by name, searching superclasses.
func (c *Class) Function(name string) (*Function, bool) {
	for k := c; k != nil; k = k.super {
		if fn, ok := k.functions[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// FunctionNames returns the sorted names of all callable functions.
func (c *Class) FunctionNames() []string {
	seen := make(map[string]struct{})
	for k := c; k != nil; k = k.super {
		for name := range k.functions {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
