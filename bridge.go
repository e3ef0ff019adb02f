package propbridge

// Memory is the store every bridged value is read from and written to.
//
// Offsets are absolute byte addresses into one linear memory; the bridge
// computes them as object base plus field offset and never caches the
// bytes behind them. Multi-byte accessors are little-endian regardless of
// the host CPU. An access that does not fit in memory fails and must not
// write a partial value. Read returns a copy the caller may keep.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU16(offset uint32) (uint16, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU16(offset uint32, value uint16) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer reports the current memory size in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator owns the out-of-line storage of strings and containers,
// which the bridge addresses through an 8-byte (ptr u32, len u32)
// header.
//
// Address 0 means "no storage": Alloc returns it for a zero size and
// never for a non-empty block. Free takes the size and alignment the
// block was allocated with, and freeing address 0 is a no-op.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
