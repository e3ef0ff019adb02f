package host

import (
	"testing"

	"github.com/wippyai/propbridge/errors"
)

func TestNewSignature(t *testing.T) {
	sig := NewSignature(String,
		FieldSpec{Name: "flag", Type: Bool},
		FieldSpec{Type: F64, Flags: FlagOut | FlagReturn},
		FieldSpec{Name: "label", Type: String, Flags: FlagRef},
	)
	params := sig.Params()
	if len(params) != 3 {
		t.Fatalf("len(params) = %d", len(params))
	}
	if params[1].Name != "p1" {
		t.Errorf("unnamed param = %q, want p1", params[1].Name)
	}
	if params[1].Has(FlagReturn) || !params[1].Has(FlagOut) {
		t.Errorf("flags = %b", params[1].Flags)
	}
	if params[1].Offset != 8 || params[2].Offset != 16 {
		t.Errorf("offsets = %d, %d; want 8, 16", params[1].Offset, params[2].Offset)
	}
	if sig.FrameInfo().Size != 24 || sig.FrameInfo().Align != 8 {
		t.Errorf("frame = %+v", sig.FrameInfo())
	}
	if got := sig.String(); got != "(bool, out f64, ref string) -> string" {
		t.Errorf("String = %q", got)
	}
}

func TestCall_ArgsAndReturn(t *testing.T) {
	sys, heap := newTestSystem(t)
	sig := NewSignature(String,
		FieldSpec{Name: "n", Type: S32},
		FieldSpec{Name: "s", Type: String, Flags: FlagRef},
	)

	frame, err := heap.Alloc(sig.FrameInfo().Size, sig.FrameInfo().Align)
	if err != nil {
		t.Fatal(err)
	}
	ret, _ := heap.Alloc(8, 4)
	params := sig.Params()
	call := &Call{
		Memory: sys.Memory,
		Alloc:  heap,
		Sig:    sig,
		Args:   []uint32{frame + params[0].Offset, frame + params[1].Offset},
		Ret:    ret,
	}

	if err := sys.Memory.WriteU32(call.Args[0], uint32(0xFFFFFFFE)); err != nil {
		t.Fatal(err)
	}
	if err := WriteString(sys.Memory, heap, call.Args[1], "in"); err != nil {
		t.Fatal(err)
	}

	n, err := call.S32(0)
	if err != nil || n != -2 {
		t.Errorf("S32 = %d, %v", n, err)
	}
	if s, _ := call.String(1); s != "in" {
		t.Errorf("String = %q", s)
	}
	if err := call.SetString(1, "changed"); err != nil {
		t.Fatal(err)
	}
	if s, _ := ReadString(sys.Memory, call.Args[1]); s != "changed" {
		t.Errorf("after SetString = %q", s)
	}
	if err := call.ReturnString("result"); err != nil {
		t.Fatal(err)
	}
	if s, _ := ReadString(sys.Memory, ret); s != "result" {
		t.Errorf("return = %q", s)
	}

	if _, err := call.S32(5); !errors.HasKind(err, errors.KindOutOfBounds) {
		t.Errorf("S32(5) = %v, want out of bounds", err)
	}
	noRet := &Call{Memory: sys.Memory, Sig: sig}
	if err := noRet.ReturnS32(1); !errors.HasKind(err, errors.KindInvalidInput) {
		t.Errorf("ReturnS32 without slot = %v", err)
	}

	_ = FreeString(sys.Memory, heap, call.Args[1])
	_ = FreeString(sys.Memory, heap, ret)
	heap.Free(ret, 8, 4)
	heap.Free(frame, sig.FrameInfo().Size, sig.FrameInfo().Align)
	if heap.Live() != 0 {
		t.Errorf("heap still has %d live blocks", heap.Live())
	}
}

func TestValues_F64AndEmptyString(t *testing.T) {
	sys, heap := newTestSystem(t)
	addr, _ := heap.Alloc(8, 8)

	if err := WriteF64(sys.Memory, addr, 2.5); err != nil {
		t.Fatal(err)
	}
	if v, _ := ReadF64(sys.Memory, addr); v != 2.5 {
		t.Errorf("ReadF64 = %v", v)
	}

	if err := WriteString(sys.Memory, heap, addr, ""); err != nil {
		t.Fatal(err)
	}
	ptr, n, _ := ReadSlice(sys.Memory, addr)
	if ptr != 0 || n != 0 {
		t.Errorf("empty string header = (%d, %d)", ptr, n)
	}
	if heap.Live() != 1 {
		t.Errorf("empty string should not allocate, live = %d", heap.Live())
	}
}
