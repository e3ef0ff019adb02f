package host

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wippyai/propbridge/errors"
)

type reloadRecorder struct {
	events []ReloadEvent
}

func (r *reloadRecorder) OnClassReloaded(ev ReloadEvent) {
	r.events = append(r.events, ev)
}

func offsets(fields []*Field) map[string]uint32 {
	out := make(map[string]uint32, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Offset
	}
	return out
}

func TestRegistry_DefineStructLayout(t *testing.T) {
	reg := NewRegistry()
	s, err := reg.DefineStruct("Mixed",
		FieldSpec{Name: "flag", Type: Bool},
		FieldSpec{Name: "big", Type: S64},
		FieldSpec{Name: "small", Type: U16},
		FieldSpec{Name: "name", Type: String},
	)
	if err != nil {
		t.Fatalf("DefineStruct: %v", err)
	}

	want := map[string]uint32{"flag": 0, "big": 8, "small": 16, "name": 20}
	if diff := cmp.Diff(want, offsets(s.Fields())); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	if s.Size() != 32 || s.Info().Align != 8 {
		t.Errorf("layout = %+v, want size 32 align 8", s.Info())
	}
	if got, ok := reg.Struct("Mixed"); !ok || got != s {
		t.Error("Struct lookup failed")
	}
}

func TestRegistry_DefineErrors(t *testing.T) {
	reg := NewRegistry()
	if _, err := reg.DefineStruct("Vec", FieldSpec{Name: "x", Type: F32}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		fn   func() error
	}{
		{"duplicate type", func() error {
			_, err := reg.DefineStruct("Vec")
			return err
		}},
		{"duplicate field", func() error {
			_, err := reg.DefineStruct("Pair", FieldSpec{Name: "a", Type: S32}, FieldSpec{Name: "a", Type: S32})
			return err
		}},
		{"nil type", func() error {
			_, err := reg.DefineStruct("Bad", FieldSpec{Name: "a"})
			return err
		}},
		{"empty enum", func() error {
			_, err := reg.DefineEnum("Empty")
			return err
		}},
		{"duplicate enum value", func() error {
			_, err := reg.DefineEnum("Dup", EnumCase{Name: "a", Value: 1}, EnumCase{Name: "b", Value: 1})
			return err
		}},
		{"class name taken by struct", func() error {
			_, err := reg.DefineClass("Vec", nil)
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn()
			if !errors.HasKind(err, errors.KindRegistration) {
				t.Errorf("err = %v, want registration error", err)
			}
		})
	}
}

func TestRegistry_ClassInheritance(t *testing.T) {
	reg := NewRegistry()
	base, err := reg.DefineClass("Actor", nil,
		FieldSpec{Name: "hp", Type: S32},
		FieldSpec{Name: "alive", Type: Bool},
	)
	if err != nil {
		t.Fatal(err)
	}
	hero, err := reg.DefineClass("Hero", base, FieldSpec{Name: "level", Type: U8})
	if err != nil {
		t.Fatal(err)
	}

	level, ok := hero.Field("level")
	if !ok || level.Offset != base.Size() {
		t.Errorf("level offset = %d, want %d", level.Offset, base.Size())
	}
	if hp, ok := hero.Field("hp"); !ok || hp.OwnerClass() != base {
		t.Error("inherited field lookup failed")
	}
	if got := len(hero.Fields()); got != 3 {
		t.Errorf("len(Fields) = %d, want 3", got)
	}
	if !hero.IsChildOf(base) || base.IsChildOf(hero) {
		t.Error("IsChildOf wrong")
	}

	if _, err := reg.DefineClass("Bad", base, FieldSpec{Name: "hp", Type: S32}); err == nil {
		t.Error("shadowing an inherited field should fail")
	}
	if _, err := reg.ReloadClass("Actor", FieldSpec{Name: "hp", Type: S32}); err == nil {
		t.Error("reloading a class with subclasses should fail")
	}
	if err := reg.Remove("Actor"); err == nil {
		t.Error("removing a class with subclasses should fail")
	}
}

func TestRegistry_DeclareThenDefine(t *testing.T) {
	reg := NewRegistry()
	shell := reg.DeclareClass("Node")
	if shell.Defined() {
		t.Fatal("declared class should not be defined")
	}
	if _, ok := reg.Class("Node"); ok {
		t.Error("Class should not return an undefined shell")
	}
	if diff := cmp.Diff([]string{"Node"}, reg.Undefined()); diff != "" {
		t.Errorf("Undefined mismatch (-want +got):\n%s", diff)
	}

	node, err := reg.DefineClass("Node", nil, FieldSpec{Name: "next", Type: ObjectOf(shell)})
	if err != nil {
		t.Fatal(err)
	}
	if node != shell {
		t.Error("DefineClass should fill the declared shell")
	}
	if got, ok := reg.ClassByID(node.ID()); !ok || got != node {
		t.Error("ClassByID failed")
	}
	if len(reg.Undefined()) != 0 {
		t.Error("no classes should remain undefined")
	}
}

func TestRegistry_ReloadKeepsOffsets(t *testing.T) {
	reg := NewRegistry()
	rec := &reloadRecorder{}
	reg.Subscribe(rec)

	actor, err := reg.DefineClass("Actor", nil,
		FieldSpec{Name: "hp", Type: S32},
		FieldSpec{Name: "name", Type: String},
	)
	if err != nil {
		t.Fatal(err)
	}
	hp, _ := actor.Field("hp")
	name, _ := actor.Field("name")
	hpRef, nameRef := reg.Ref(hp), reg.Ref(name)

	if _, err := reg.ReloadClass("Actor",
		FieldSpec{Name: "hp", Type: S32},
		FieldSpec{Name: "name", Type: String},
		FieldSpec{Name: "speed", Type: F32},
	); err != nil {
		t.Fatal(err)
	}

	want := map[string]uint32{"hp": 0, "name": 4, "speed": 12}
	if diff := cmp.Diff(want, offsets(actor.Fields())); diff != "" {
		t.Errorf("offsets after append (-want +got):\n%s", diff)
	}
	got, ok := hpRef.Resolve()
	if !ok {
		t.Fatal("hp reference should survive a reload that keeps its type")
	}
	if got == hp {
		t.Error("reload should swap in a new descriptor")
	}
	if got.Offset != hp.Offset {
		t.Errorf("hp offset = %d, want %d", got.Offset, hp.Offset)
	}
	if actor.Version() != 2 {
		t.Errorf("Version = %d, want 2", actor.Version())
	}

	if _, err := reg.ReloadClass("Actor",
		FieldSpec{Name: "hp", Type: S64},
		FieldSpec{Name: "speed", Type: F32},
	); err != nil {
		t.Fatal(err)
	}

	if _, ok := hpRef.Resolve(); ok {
		t.Error("retyped field should invalidate references")
	}
	if _, ok := nameRef.Resolve(); ok {
		t.Error("removed field should invalidate references")
	}
	want = map[string]uint32{"hp": 16, "speed": 12}
	if diff := cmp.Diff(want, offsets(actor.Fields())); diff != "" {
		t.Errorf("offsets after retype (-want +got):\n%s", diff)
	}
	if actor.Size() != 24 {
		t.Errorf("Size = %d, want 24", actor.Size())
	}

	newHP, _ := actor.Field("hp")
	if f, ok := reg.Ref(newHP).Resolve(); !ok || f != newHP {
		t.Error("reference to the new hp should resolve")
	}

	if len(rec.events) != 2 {
		t.Fatalf("got %d reload events, want 2", len(rec.events))
	}
	var retired []string
	for _, f := range rec.events[1].Retired {
		retired = append(retired, f.Name)
	}
	if diff := cmp.Diff([]string{"hp", "name"}, retired); diff != "" {
		t.Errorf("retired mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_RemoveRetiresFields(t *testing.T) {
	reg := NewRegistry()
	rec := &reloadRecorder{}
	reg.Subscribe(rec)

	vec, _ := reg.DefineStruct("Vec", FieldSpec{Name: "x", Type: F32})
	x, _ := vec.Field("x")
	xRef := reg.Ref(x)

	actor, _ := reg.DefineClass("Actor", nil, FieldSpec{Name: "hp", Type: S32})
	hp, _ := actor.Field("hp")
	hpRef := reg.Ref(hp)

	if err := reg.Remove("Vec"); err != nil {
		t.Fatal(err)
	}
	if _, ok := xRef.Resolve(); ok {
		t.Error("struct field should be retired")
	}
	if err := reg.Remove("Actor"); err != nil {
		t.Fatal(err)
	}
	if _, ok := hpRef.Resolve(); ok {
		t.Error("class field should be retired")
	}
	if len(rec.events) != 1 || !rec.events[0].Removed {
		t.Errorf("events = %+v, want one removal", rec.events)
	}
	if err := reg.Remove("Actor"); !errors.HasKind(err, errors.KindNotFound) {
		t.Errorf("second Remove = %v, want not found", err)
	}
}

func TestFieldRef_Static(t *testing.T) {
	f := NewField("elem", S32, 0, 0)
	ref := StaticRef(f)
	if got, ok := ref.Resolve(); !ok || got != f {
		t.Error("static reference should always resolve")
	}
	if ref.Name() != "elem" {
		t.Errorf("Name = %q", ref.Name())
	}

	var zero FieldRef
	if _, ok := zero.Resolve(); ok {
		t.Error("zero reference should not resolve")
	}
}

func TestEnum(t *testing.T) {
	reg := NewRegistry()
	small, err := reg.DefineEnum("Color", Cases("red", "green", "blue")...)
	if err != nil {
		t.Fatal(err)
	}
	wide, err := reg.DefineEnum("Code", EnumCase{Name: "ok", Value: 0}, EnumCase{Name: "far", Value: 300})
	if err != nil {
		t.Fatal(err)
	}

	if small.Type().Size() != 1 || wide.Type().Size() != 2 {
		t.Errorf("sizes = %d, %d; want 1, 2", small.Type().Size(), wide.Type().Size())
	}
	if v, ok := small.Lookup("blue"); !ok || v != 2 {
		t.Errorf("Lookup(blue) = %d, %v", v, ok)
	}
	if n, ok := wide.NameOf(300); !ok || n != "far" {
		t.Errorf("NameOf(300) = %q, %v", n, ok)
	}
	if _, ok := small.NameOf(7); ok {
		t.Error("NameOf should reject undefined values")
	}
}
