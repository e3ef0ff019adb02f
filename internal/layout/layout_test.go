package layout

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestAlignTo(t *testing.T) {
	tests := []struct {
		offset, align, want uint32
	}{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 8, 8},
		{7, 1, 7},
		{7, 0, 7},
	}
	for _, tt := range tests {
		if got := AlignTo(tt.offset, tt.align); got != tt.want {
			t.Errorf("AlignTo(%d, %d) = %d, want %d", tt.offset, tt.align, got, tt.want)
		}
	}
}

func TestSafeMulU32(t *testing.T) {
	tests := []struct {
		name   string
		a, b   uint32
		want   uint32
		wantOK bool
	}{
		{"zero * max", 0, math.MaxUint32, 0, true},
		{"small * small", 100, 200, 20000, true},
		{"max * one", math.MaxUint32, 1, math.MaxUint32, true},
		{"overflow", math.MaxUint32, 2, 0, false},
		{"edge case ok", 65536, 65535, 65536 * 65535, true},
		{"edge case overflow", 65536, 65537, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeMulU32(tt.a, tt.b)
			if ok != tt.wantOK {
				t.Errorf("SafeMulU32(%d, %d) ok = %v, want %v", tt.a, tt.b, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("SafeMulU32(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSafeAddU32(t *testing.T) {
	if _, ok := SafeAddU32(math.MaxUint32, 1); ok {
		t.Error("expected overflow")
	}
	if got, ok := SafeAddU32(1, 2); !ok || got != 3 {
		t.Errorf("SafeAddU32(1, 2) = %d, %v", got, ok)
	}
}

func TestEnumSize(t *testing.T) {
	tests := []struct {
		max  uint32
		want uint32
	}{
		{0, 1},
		{255, 1},
		{256, 2},
		{65535, 2},
		{65536, 4},
	}
	for _, tt := range tests {
		if got := EnumSize(tt.max); got != tt.want {
			t.Errorf("EnumSize(%d) = %d, want %d", tt.max, got, tt.want)
		}
	}
}

func TestRecord(t *testing.T) {
	tests := []struct {
		name     string
		fields   []Info
		wantOffs []uint32
		want     Info
	}{
		{"empty", nil, []uint32{}, Empty},
		{"u8 u32", []Info{Byte, Word}, []uint32{0, 4}, Info{Size: 8, Align: 4}},
		{"u32 u8", []Info{Word, Byte}, []uint32{0, 4}, Info{Size: 8, Align: 4}},
		{"u8 u64 u16", []Info{Byte, Double, Half}, []uint32{0, 8, 16}, Info{Size: 24, Align: 8}},
		{"string bool", []Info{Slice, Byte}, []uint32{0, 8}, Info{Size: 12, Align: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offs, info := Record(tt.fields)
			if diff := cmp.Diff(tt.wantOffs, offs); diff != "" {
				t.Errorf("offsets mismatch (-want +got):\n%s", diff)
			}
			if info != tt.want {
				t.Errorf("info = %+v, want %+v", info, tt.want)
			}
		})
	}
}

func TestAppendKeepsExistingOffsets(t *testing.T) {
	offs, _ := Record([]Info{Word, Byte})
	end := offs[1] + Byte.Size

	off, newEnd := Append(end, Double)
	if off != 8 || newEnd != 16 {
		t.Errorf("Append = (%d, %d), want (8, 16)", off, newEnd)
	}
	if got := Pad(newEnd, 8); got != (Info{Size: 16, Align: 8}) {
		t.Errorf("Pad = %+v", got)
	}
}

func TestStride(t *testing.T) {
	if got := (Info{Size: 5, Align: 4}).Stride(); got != 8 {
		t.Errorf("Stride = %d, want 8", got)
	}
}
