package translator

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
)

func (fx *fixture) slot(t *testing.T, typ *host.Type) uint32 {
	t.Helper()
	addr, err := fx.heap.Alloc(typ.Size(), typ.Align())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { fx.heap.Free(addr, typ.Size(), typ.Align()) })
	return addr
}

func TestCodec_RoundTrip(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	vec, err := reg.DefineStruct("Vec",
		host.FieldSpec{Name: "x", Type: host.S32},
		host.FieldSpec{Name: "label", Type: host.String})
	if err != nil {
		t.Fatal(err)
	}
	mood, err := reg.DefineEnum("Mood", host.EnumCase{Name: "calm", Value: 1}, host.EnumCase{Name: "loud", Value: 300})
	if err != nil {
		t.Fatal(err)
	}
	actor, err := reg.DefineClass("Actor", nil)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		typ  *host.Type
		in   starlark.Value
	}{
		{"bool", host.Bool, starlark.True},
		{"u8 max", host.U8, starlark.MakeInt(255)},
		{"s8 min", host.S8, starlark.MakeInt(-128)},
		{"u16", host.U16, starlark.MakeInt(65535)},
		{"s16", host.S16, starlark.MakeInt(-32768)},
		{"u32 max", host.U32, starlark.MakeUint64(math.MaxUint32)},
		{"s32 min", host.S32, starlark.MakeInt64(math.MinInt32)},
		{"u64 max", host.U64, starlark.MakeUint64(math.MaxUint64)},
		{"s64 min", host.S64, starlark.MakeInt64(math.MinInt64)},
		{"f32", host.F32, starlark.Float(1.5)},
		{"f64", host.F64, starlark.Float(-2.25e300)},
		{"string", host.String, starlark.String("héllo")},
		{"empty string", host.String, starlark.String("")},
		{"enum", mood.Type(), starlark.MakeInt(300)},
		{"class", host.ClassOf(nil), &ClassValue{env: fx.env, class: actor}},
		{"no class", host.ClassOf(nil), starlark.None},
		{"struct", vec.Type(), starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
			"x": starlark.MakeInt(-4), "label": starlark.String("v"),
		})},
		{"array", host.ArrayOf(host.String), starlark.NewList([]starlark.Value{starlark.String("a"), starlark.String("b")})},
		{"empty array", host.ArrayOf(host.S32), starlark.NewList(nil)},
		{"nested array", host.ArrayOf(host.ArrayOf(host.U8)), starlark.NewList([]starlark.Value{
			starlark.NewList([]starlark.Value{starlark.MakeInt(1)}),
			starlark.NewList([]starlark.Value{starlark.MakeInt(2), starlark.MakeInt(3)}),
		})},
		{"map", host.MapOf(host.String, host.F64), func() starlark.Value {
			d := starlark.NewDict(2)
			_ = d.SetKey(starlark.String("a"), starlark.Float(1))
			_ = d.SetKey(starlark.String("b"), starlark.Float(2))
			return d
		}()},
		{"set", host.SetOf(host.S64), func() starlark.Value {
			s := starlark.NewSet(2)
			_ = s.Insert(starlark.MakeInt(5))
			_ = s.Insert(starlark.MakeInt(-5))
			return s
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := fx.heap.Live()
			codec := NewCodec(tt.typ, 0, false)
			ctx := fx.ctx()
			a, b := fx.slot(t, tt.typ), fx.slot(t, tt.typ)

			if err := codec.FromScriptValue(ctx, tt.in, a, false); err != nil {
				t.Fatalf("FromScriptValue: %v", err)
			}
			first, err := codec.ToScriptValue(ctx, a, false)
			if err != nil {
				t.Fatalf("ToScriptValue: %v", err)
			}
			mustEqual(t, tt.in, first)

			if err := codec.FromScriptValue(ctx, first, b, false); err != nil {
				t.Fatalf("FromScriptValue(read back): %v", err)
			}
			second, err := codec.ToScriptValue(ctx, b, false)
			if err != nil {
				t.Fatal(err)
			}
			mustEqual(t, first, second)

			if tt.typ.Kind().IsScalar() {
				ra, _ := fx.sys.Memory.Read(a, tt.typ.Size())
				rb, _ := fx.sys.Memory.Read(b, tt.typ.Size())
				if diff := cmp.Diff(ra, rb); diff != "" {
					t.Errorf("bytes mismatch (-want +got):\n%s", diff)
				}
			}

			for _, addr := range []uint32{a, b} {
				if err := Cleanup(codec, ctx, addr); err != nil {
					t.Fatalf("Cleanup: %v", err)
				}
			}
			// two slots are still allocated by the test
			if live := fx.heap.Live(); live != base+2 {
				t.Errorf("heap live blocks = %d, want %d", live, base+2)
			}
		})
	}
}

func TestCodec_NaNCanonical(t *testing.T) {
	fx := newFixture(t, Options{})
	ctx := fx.ctx()
	addr := fx.slot(t, host.F64)
	codec := NewCodec(host.F64, 0, false)
	if err := fx.sys.Memory.WriteU64(addr, 0x7ff8dead00000001); err != nil {
		t.Fatal(err)
	}
	v, err := codec.ToScriptValue(ctx, addr, false)
	if err != nil {
		t.Fatal(err)
	}
	if f := float64(v.(starlark.Float)); !math.IsNaN(f) || math.Float64bits(f) != 0x7ff8000000000000 {
		t.Errorf("got %#x, want canonical NaN", math.Float64bits(f))
	}
}

func TestCodec_Rejects(t *testing.T) {
	fx := newFixture(t, Options{})
	reg := fx.sys.Registry
	mood, _ := reg.DefineEnum("Mood", host.Cases("calm", "loud")...)
	base, _ := reg.DefineClass("Base", nil)
	other, _ := reg.DefineClass("Other", nil)
	vec, _ := reg.DefineStruct("Vec", host.FieldSpec{Name: "x", Type: host.S32})
	point, _ := reg.DefineClass("Point", nil, host.FieldSpec{Name: "x", Type: host.S32})
	p, err := fx.env.NewObject(point)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		typ  *host.Type
		in   starlark.Value
		kind errors.Kind
	}{
		{"bool from int", host.Bool, starlark.MakeInt(1), errors.KindTypeMismatch},
		{"u8 overflow", host.U8, starlark.MakeInt(256), errors.KindOutOfRange},
		{"u32 negative", host.U32, starlark.MakeInt(-1), errors.KindOutOfRange},
		{"s8 underflow", host.S8, starlark.MakeInt(-129), errors.KindOutOfRange},
		{"f64 inexact int", host.F64, starlark.MakeInt64(1<<53 + 1), errors.KindOutOfRange},
		{"f32 inexact int", host.F32, starlark.MakeInt64(1<<24 + 1), errors.KindOutOfRange},
		{"s32 from string", host.S32, starlark.String("42"), errors.KindTypeMismatch},
		{"string from int", host.String, starlark.MakeInt(1), errors.KindTypeMismatch},
		{"invalid utf8", host.String, starlark.String("\xff"), errors.KindInvalidUTF8},
		{"enum unknown name", mood.Type(), starlark.String("quiet"), errors.KindInvalidEnum},
		{"enum unknown value", mood.Type(), starlark.MakeInt(7), errors.KindInvalidEnum},
		{"class outside hierarchy", host.ClassOf(base), &ClassValue{env: fx.env, class: other}, errors.KindTypeMismatch},
		{"struct from list", vec.Type(), starlark.NewList(nil), errors.KindTypeMismatch},
		{"struct from object", vec.Type(), p, errors.KindTypeMismatch},
		{"struct from class", vec.Type(), &ClassValue{env: fx.env, class: point}, errors.KindTypeMismatch},
		{"struct unknown field", vec.Type(), starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{"z": starlark.MakeInt(1)}), errors.KindFieldUnknown},
		{"array element", host.ArrayOf(host.U8), starlark.NewList([]starlark.Value{starlark.MakeInt(1), starlark.String("x")}), errors.KindTypeMismatch},
		{"array from int", host.ArrayOf(host.U8), starlark.MakeInt(3), errors.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := fx.heap.Live()
			addr := fx.slot(t, tt.typ)
			err := NewCodec(tt.typ, 0, false).FromScriptValue(fx.ctx(), tt.in, addr, false)
			if !errors.HasKind(err, tt.kind) {
				t.Fatalf("got %v, want %s", err, tt.kind)
			}
			if n := fx.heap.Live(); n != live+1 {
				t.Errorf("failed conversion leaked: live %d, want %d", n, live+1)
			}
		})
	}
}

func TestCodec_FailedWriteKeepsValue(t *testing.T) {
	fx := newFixture(t, Options{})
	typ := host.ArrayOf(host.String)
	codec := NewCodec(typ, 0, false)
	ctx := fx.ctx()
	addr := fx.slot(t, typ)
	orig := starlark.NewList([]starlark.Value{starlark.String("keep"), starlark.String("me")})
	if err := codec.FromScriptValue(ctx, orig, addr, false); err != nil {
		t.Fatal(err)
	}
	live := fx.heap.Live()
	bad := starlark.NewList([]starlark.Value{starlark.String("new"), starlark.MakeInt(1)})
	if err := codec.FromScriptValue(ctx, bad, addr, true); !errors.IsMismatch(err) {
		t.Fatalf("got %v, want mismatch", err)
	}
	got, err := codec.ToScriptValue(ctx, addr, false)
	if err != nil {
		t.Fatal(err)
	}
	mustEqual(t, orig, got)
	if n := fx.heap.Live(); n != live {
		t.Errorf("live = %d, want %d", n, live)
	}
	if err := Cleanup(codec, ctx, addr); err != nil {
		t.Fatal(err)
	}
}

func TestCodec_StructPartialUpdate(t *testing.T) {
	fx := newFixture(t, Options{})
	vec, err := fx.sys.Registry.DefineStruct("Vec",
		host.FieldSpec{Name: "x", Type: host.S32},
		host.FieldSpec{Name: "y", Type: host.S32},
		host.FieldSpec{Name: "tag", Type: host.String})
	if err != nil {
		t.Fatal(err)
	}
	codec := NewCodec(vec.Type(), 0, false)
	ctx := fx.ctx()
	addr := fx.slot(t, vec.Type())
	full := starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"x": starlark.MakeInt(1), "y": starlark.MakeInt(2), "tag": starlark.String("t"),
	})
	if err := codec.FromScriptValue(ctx, full, addr, false); err != nil {
		t.Fatal(err)
	}
	patch := starlark.NewDict(1)
	_ = patch.SetKey(starlark.String("y"), starlark.MakeInt(20))
	if err := codec.FromScriptValue(ctx, patch, addr, true); err != nil {
		t.Fatal(err)
	}
	got, err := codec.ToScriptValue(ctx, addr, false)
	if err != nil {
		t.Fatal(err)
	}
	want := starlarkstruct.FromStringDict(starlarkstruct.Default, starlark.StringDict{
		"x": starlark.MakeInt(1), "y": starlark.MakeInt(20), "tag": starlark.String("t"),
	})
	mustEqual(t, want, got)
	if err := Cleanup(codec, ctx, addr); err != nil {
		t.Fatal(err)
	}
}

func TestCodec_Kinds(t *testing.T) {
	sig := host.NewSignature(nil)
	tests := []struct {
		typ  *host.Type
		want host.Kind
	}{
		{host.U8, host.KindU8},
		{host.String, host.KindString},
		{host.ArrayOf(host.U8), host.KindArray},
		{host.SetOf(host.U8), host.KindSet},
		{host.MapOf(host.U8, host.U8), host.KindMap},
		{host.DelegateOf(sig), host.KindDelegate},
		{host.MulticastOf(sig), host.KindMulticastDelegate},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			c := NewCodec(tt.typ, 0, false)
			if c.Kind() != tt.want {
				t.Errorf("Kind = %s, want %s", c.Kind(), tt.want)
			}
			if !c.Type().Equal(tt.typ) {
				t.Errorf("Type = %s, want %s", c.Type(), tt.typ)
			}
			if IsOutParameter(c) {
				t.Error("plain codec reports out parameter")
			}
		})
	}
	if !IsOutParameter(NewCodec(host.S32, host.FlagOut, false)) {
		t.Error("out codec not reported")
	}
	if IsOutParameter(NewCodec(host.S32, host.FlagOut, true)) {
		t.Error("ignoreOut codec reported as out")
	}
}

func TestCodec_NilContext(t *testing.T) {
	tests := []struct {
		name string
		call func(Codec) error
	}{
		{"from script", func(c Codec) error { return c.FromScriptValue(nil, starlark.MakeInt(1), 64, false) }},
		{"to script", func(c Codec) error {
			_, err := c.ToScriptValue(nil, 64, false)
			return err
		}},
		{"fast path", func(c Codec) error {
			_, _, err := FastFromScriptValue(c, nil, starlark.MakeInt(1), 64)
			return err
		}},
		{"cleanup", func(c Codec) error { return Cleanup(c, nil, 64) }},
		{"out param", func(c Codec) error { return FromScriptValueForOutParam(c, nil, NewRef(nil), 64) }},
		{"after call", func(c Codec) error { return ToScriptValueAfterCall(c, nil, NewRef(nil), 64) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, c := range []Codec{
				NewCodec(host.S32, 0, true),
				NewCodec(host.ArrayOf(host.String), host.FlagOut, false),
			} {
				if err := tt.call(c); !errors.IsMismatch(err) {
					t.Errorf("%s: got %v, want type mismatch", c.Type(), err)
				}
			}
		})
	}
}
