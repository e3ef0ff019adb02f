package layout

import "math"

// Info is the size and alignment of a value in memory.
type Info struct {
	Size  uint32
	Align uint32
}

// Common layouts.
var (
	Byte     = Info{Size: 1, Align: 1}
	Half     = Info{Size: 2, Align: 2}
	Word     = Info{Size: 4, Align: 4}
	Double   = Info{Size: 8, Align: 8}
	Slice    = Info{Size: 8, Align: 4} // [ptr: u32, len: u32]
	Handle   = Info{Size: 8, Align: 4} // [handle: u32, gen: u32]
	Empty    = Info{Size: 0, Align: 1}
	HeapBase = uint32(16)
)

const (
	MaxStringSize = 1 << 30 // 1 GB max string size
	MaxListLength = 1 << 27 // 128M max elements
	MaxAlloc      = 1 << 30 // 1 GB max single allocation
)

func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// Stride is the distance between consecutive elements of this layout.
func (i Info) Stride() uint32 {
	return AlignTo(i.Size, i.Align)
}

// EnumSize: 1 byte for values <=255, 2 for <=65535, else 4.
func EnumSize(maxValue uint32) uint32 {
	if maxValue <= math.MaxUint8 {
		return 1
	} else if maxValue <= math.MaxUint16 {
		return 2
	}
	return 4
}

// Append places a field after end and returns its offset and the new
// unpadded end.
func Append(end uint32, f Info) (offset, newEnd uint32) {
	offset = AlignTo(end, f.Align)
	return offset, offset + f.Size
}

// Record lays out fields sequentially and returns their offsets and the
// padded record layout.
func Record(fields []Info) ([]uint32, Info) {
	offs := make([]uint32, len(fields))
	if len(fields) == 0 {
		return offs, Empty
	}

	maxAlign := uint32(1)
	end := uint32(0)
	for i, f := range fields {
		offs[i], end = Append(end, f)
		if f.Align > maxAlign {
			maxAlign = f.Align
		}
	}

	return offs, Info{Size: AlignTo(end, maxAlign), Align: maxAlign}
}

// Pad returns the padded record layout for an unpadded end and alignment.
func Pad(end, align uint32) Info {
	if align == 0 {
		align = 1
	}
	return Info{Size: AlignTo(end, align), Align: align}
}
