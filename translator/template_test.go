package translator

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

func TestTracker(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	actor, err := reg.DefineClass("Actor", nil,
		host.FieldSpec{Name: "hp", Type: host.S32},
		host.FieldSpec{Name: "name", Type: host.String})
	if err != nil {
		t.Fatal(err)
	}
	hp, _ := actor.Field("hp")
	name, _ := actor.Field("name")

	var changes []string
	hpTracker := NewTracker(reg.Ref(hp))
	hpTracker.onChange = func(f *host.Field) { changes = append(changes, f.Name) }
	nameTracker := NewTracker(reg.Ref(name))

	if hpTracker.Field() != nil {
		t.Error("tracker resolved before Valid")
	}
	if !hpTracker.Valid() || hpTracker.Field() != hp {
		t.Fatal("fresh tracker not valid")
	}
	if !hpTracker.Valid() {
		t.Fatal("second Valid failed")
	}

	if _, err := reg.ReloadClass("Actor",
		host.FieldSpec{Name: "hp", Type: host.S32},
		host.FieldSpec{Name: "name", Type: host.S64}); err != nil {
		t.Fatal(err)
	}
	if !hpTracker.Valid() {
		t.Fatal("unchanged field should stay valid")
	}
	if hpTracker.Field() == hp || hpTracker.Field().Offset != hp.Offset {
		t.Errorf("tracker did not adopt the reloaded descriptor at the same offset")
	}
	if nameTracker.Valid() {
		t.Error("retyped field should be invalid")
	}
	if diff := cmp.Diff([]string{"hp", "hp"}, changes); diff != "" {
		t.Errorf("onChange calls (-want +got):\n%s", diff)
	}
}

func TestNewFieldTranslator_Retired(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	vec, err := reg.DefineStruct("Vec", host.FieldSpec{Name: "x", Type: host.S32})
	if err != nil {
		t.Fatal(err)
	}
	x, _ := vec.Field("x")
	ref := reg.Ref(x)
	if err := reg.Remove("Vec"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFieldTranslator(ref, true); !errors.HasKind(err, errors.KindDescriptorInvalid) {
		t.Errorf("NewFieldTranslator = %v, want descriptor invalid", err)
	}
}

func TestClassTemplate(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	base, err := reg.DefineClass("Base", nil, host.FieldSpec{Name: "id", Type: host.U32})
	if err != nil {
		t.Fatal(err)
	}
	derived, err := reg.DefineClass("Derived", base, host.FieldSpec{Name: "label", Type: host.String})
	if err != nil {
		t.Fatal(err)
	}
	tpl, err := fx.env.ClassTemplate(derived)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"id", "label"}, tpl.Names()); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	again, err := fx.env.ClassTemplate(derived)
	if err != nil {
		t.Fatal(err)
	}
	if again != tpl {
		t.Error("template not cached")
	}
	if tpl.Name() != "Derived" {
		t.Errorf("Name = %q", tpl.Name())
	}
	tr, ok := tpl.Translator("label")
	if !ok {
		t.Fatal("no label translator")
	}
	if tr.NeedLinkOuter() {
		t.Error("class field should not link to an outer wrapper")
	}

	g := fx.exec(t, `
d = Derived(id = 4, label = "four")
ok = Derived.is_child_of(Base)
back = Base.is_child_of(Derived)
cls = class_of(d)
`)
	mustEqual(t, starlark.True, g["ok"])
	mustEqual(t, starlark.False, g["back"])
	mustEqual(t, starlark.MakeInt(4), attr(t, g["d"], "id"))
	mustEqual(t, starlark.String("Derived"), attr(t, g["cls"], "name"))
}

func TestStructTemplate_NestedLinks(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	inner, err := reg.DefineStruct("Inner", host.FieldSpec{Name: "n", Type: host.U16})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := reg.DefineStruct("Outer",
		host.FieldSpec{Name: "inner", Type: inner.Type()},
		host.FieldSpec{Name: "list", Type: host.ArrayOf(host.U8)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.DefineClass("Box", nil, host.FieldSpec{Name: "o", Type: outer.Type()}); err != nil {
		t.Fatal(err)
	}
	g := fx.exec(t, `
b = Box()
o = b.o
i = o.inner
l = o.list
i.n = 7
l.append(3)
`)
	o := g["o"].(*StructRef)
	if o.Outer() != nil {
		t.Errorf("class-owned struct outer = %v, want none", o.Outer())
	}
	if g["i"].(*StructRef).Outer() != starlark.Value(o) {
		t.Error("nested struct should link to its struct wrapper")
	}
	if g["l"].(*ArrayRef).Outer() != starlark.Value(o) {
		t.Error("array in struct should link to its struct wrapper")
	}
	got := fx.eval(t, g, "(b.o.inner.n, list(b.o.list))")
	mustEqual(t, fx.eval(t, nil, "(7, [3])"), got)
}

func TestStructRef_RemovedStruct(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	vec, err := reg.DefineStruct("Vec", host.FieldSpec{Name: "x", Type: host.S32})
	if err != nil {
		t.Fatal(err)
	}
	addr := fx.slot(t, vec.Type())
	v, err := NewCodec(vec.Type(), 0, false).ToScriptValue(fx.ctx(), addr, true)
	if err != nil {
		t.Fatal(err)
	}
	ref := v.(*StructRef)
	mustEqual(t, starlark.MakeInt(0), attr(t, ref, "x"))

	if err := reg.Remove("Vec"); err != nil {
		t.Fatal(err)
	}
	before := fx.spy.count()
	if _, err := ref.Attr("x"); !errors.HasKind(err, errors.KindDescriptorInvalid) {
		t.Errorf("Attr after removal = %v, want descriptor invalid", err)
	}
	if err := ref.SetField("x", starlark.MakeInt(1)); !errors.HasKind(err, errors.KindDescriptorInvalid) {
		t.Errorf("SetField after removal = %v, want descriptor invalid", err)
	}
	if n := fx.spy.count() - before; n != 0 {
		t.Errorf("removed struct made %d memory accesses", n)
	}
}
