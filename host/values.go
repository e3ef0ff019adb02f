package host

import (
	"math"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/internal/layout"
)

// ReadSlice reads a (ptr, len) header.
func ReadSlice(mem propbridge.Memory, addr uint32) (ptr, n uint32, err error) {
	if ptr, err = mem.ReadU32(addr); err != nil {
		return 0, 0, err
	}
	if n, err = mem.ReadU32(addr + 4); err != nil {
		return 0, 0, err
	}
	return ptr, n, nil
}

// WriteSlice writes a (ptr, len) header.
func WriteSlice(mem propbridge.Memory, addr, ptr, n uint32) error {
	if err := mem.WriteU32(addr, ptr); err != nil {
		return err
	}
	return mem.WriteU32(addr+4, n)
}

// ReadString reads the string whose header is at addr.
func ReadString(mem propbridge.Memory, addr uint32) (string, error) {
	ptr, n, err := ReadSlice(mem, addr)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > layout.MaxStringSize {
		return "", errors.New(errors.PhaseToScript, errors.KindOutOfBounds).
			Detail("string length %d exceeds limit", n).
			Build()
	}
	data, err := mem.Read(ptr, n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// WriteString allocates storage for s and writes its header at addr. The
// previous header at addr is overwritten, not freed.
func WriteString(mem propbridge.Memory, alloc propbridge.Allocator, addr uint32, s string) error {
	if len(s) > layout.MaxStringSize {
		return errors.New(errors.PhaseFromScript, errors.KindOutOfBounds).
			Detail("string length %d exceeds limit", len(s)).
			Build()
	}
	n := uint32(len(s))
	var ptr uint32
	if n > 0 {
		var err error
		if ptr, err = alloc.Alloc(n, 1); err != nil {
			return err
		}
		if err := mem.Write(ptr, []byte(s)); err != nil {
			alloc.Free(ptr, n, 1)
			return err
		}
	}
	if err := WriteSlice(mem, addr, ptr, n); err != nil {
		alloc.Free(ptr, n, 1)
		return err
	}
	return nil
}

// FreeString releases the storage of the string at addr and clears its header.
func FreeString(mem propbridge.Memory, alloc propbridge.Allocator, addr uint32) error {
	ptr, n, err := ReadSlice(mem, addr)
	if err != nil {
		return err
	}
	if ptr != 0 && n > 0 {
		alloc.Free(ptr, n, 1)
	}
	return WriteSlice(mem, addr, 0, 0)
}

// ReplaceString writes s at addr and then frees the previous storage.
func ReplaceString(mem propbridge.Memory, alloc propbridge.Allocator, addr uint32, s string) error {
	ptr, n, err := ReadSlice(mem, addr)
	if err != nil {
		return err
	}
	if err := WriteString(mem, alloc, addr, s); err != nil {
		return err
	}
	if ptr != 0 && n > 0 {
		alloc.Free(ptr, n, 1)
	}
	return nil
}

func ReadF64(mem propbridge.Memory, addr uint32) (float64, error) {
	bits, err := mem.ReadU64(addr)
	return math.Float64frombits(bits), err
}

func WriteF64(mem propbridge.Memory, addr uint32, v float64) error {
	return mem.WriteU64(addr, math.Float64bits(v))
}
