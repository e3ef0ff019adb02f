package translator

import (
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/host"
)

// Getter reads a property of recv.
type Getter func(recv Receiver) (starlark.Value, error)

// Setter writes a property of recv.
type Setter func(recv Receiver, v starlark.Value) error

type accessor struct {
	get Getter
	set Setter
}

// Template is the script-visible shape of a class or struct: one
// accessor per field.
type Template struct {
	name      string
	version   uint32
	order     []string
	accessors map[string]accessor
	fields    map[string]*FieldTranslator
}

func NewTemplate(name string) *Template {
	return &Template{
		name:      name,
		accessors: make(map[string]accessor),
		fields:    make(map[string]*FieldTranslator),
	}
}

func (t *Template) Name() string { return t.name }

// SetAccessor installs or replaces the accessor for name.
func (t *Template) SetAccessor(name string, get Getter, set Setter) {
	if _, ok := t.accessors[name]; !ok {
		t.order = append(t.order, name)
	}
	t.accessors[name] = accessor{get: get, set: set}
}

func (t *Template) Accessor(name string) (Getter, Setter, bool) {
	a, ok := t.accessors[name]
	return a.get, a.set, ok
}

// Translator returns the translator bound to name, if any.
func (t *Template) Translator(name string) (*FieldTranslator, bool) {
	tr, ok := t.fields[name]
	return tr, ok
}

// Names returns accessor names in declaration order.
func (t *Template) Names() []string {
	return append([]string(nil), t.order...)
}

// ClassTemplate returns the template for class, rebuilding it when the
// class was reloaded. Translators whose descriptor survived the reload
// are kept and revalidated.
func (e *Env) ClassTemplate(class *host.Class) (*Template, error) {
	if tpl, ok := e.templates.Load(class); ok && tpl.version == class.Version() {
		return tpl, nil
	}
	prev, _ := e.templates.Load(class)

	tpl := NewTemplate(class.Name())
	tpl.version = class.Version()
	reused := 0
	for _, f := range class.Fields() {
		if old, ok := lookupTranslator(prev, f.Name); ok && old.Valid() && old.tracker.Field() == f {
			old.BindAccessor(tpl, f.Name)
			reused++
			continue
		}
		tr, err := NewFieldTranslator(e.sys.Registry.Ref(f), true)
		if err != nil {
			return nil, err
		}
		tr.BindAccessor(tpl, f.Name)
	}
	e.templates.Store(class, tpl)
	if prev != nil {
		Logger().Debug("refresh class template",
			zap.String("class", class.Name()),
			zap.Uint32("version", tpl.version),
			zap.Int("reused", reused))
	}
	return tpl, nil
}

// StructTemplate returns the template for s.
func (e *Env) StructTemplate(s *host.Struct) (*Template, error) {
	if tpl, ok := e.templates.Load(s); ok {
		return tpl, nil
	}
	tpl := NewTemplate(s.Name())
	for _, f := range s.Fields() {
		tr, err := NewFieldTranslator(e.sys.Registry.Ref(f), true)
		if err != nil {
			return nil, err
		}
		tr.BindAccessor(tpl, f.Name)
	}
	e.templates.Store(s, tpl)
	return tpl, nil
}

func lookupTranslator(tpl *Template, name string) (*FieldTranslator, bool) {
	if tpl == nil {
		return nil, false
	}
	return tpl.Translator(name)
}
