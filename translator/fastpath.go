package translator

import (
	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/internal/layout"
	"github.com/wippyai/propbridge/memory"
)

// Scratch is a zeroed region handed out by a FastPathBuffer.
type Scratch struct {
	Addr    uint32
	Size    uint32
	top     uint32
	spilled bool
}

// FastPathBuffer is a LIFO scratch arena inside host memory, used to
// stage call arguments and composite writes. Requests that do not fit
// spill to the allocator and are freed on release.
type FastPathBuffer struct {
	mem    propbridge.Memory
	alloc  propbridge.Allocator
	base   uint32
	size   uint32
	top    uint32
	stack  []Scratch
	spills *memory.AllocationList
}

const scratchAlign = 8

// NewFastPathBuffer reserves size bytes from alloc.
func NewFastPathBuffer(mem propbridge.Memory, alloc propbridge.Allocator, size uint32) (*FastPathBuffer, error) {
	b := &FastPathBuffer{mem: mem, alloc: alloc, size: size, spills: memory.NewAllocationList()}
	if size > 0 {
		base, err := alloc.Alloc(size, scratchAlign)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "scratch buffer")
		}
		b.base = base
	}
	return b, nil
}

// Acquire returns a zeroed region of size bytes aligned to align.
func (b *FastPathBuffer) Acquire(size, align uint32) (Scratch, error) {
	if align == 0 {
		align = 1
	}
	off := layout.AlignTo(b.base+b.top, align) - b.base
	if end, ok := layout.SafeAddU32(off, size); ok && end <= b.size && align <= scratchAlign {
		s := Scratch{Addr: b.base + off, Size: size, top: b.top}
		if err := memory.Zero(b.mem, s.Addr, size); err != nil {
			return Scratch{}, err
		}
		b.top = end
		b.stack = append(b.stack, s)
		return s, nil
	}

	if size > layout.MaxAlloc {
		return Scratch{}, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	n := max(size, 1)
	addr, err := b.alloc.Alloc(n, align)
	if err != nil {
		return Scratch{}, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "scratch spill")
	}
	if err := memory.Zero(b.mem, addr, n); err != nil {
		b.alloc.Free(addr, n, align)
		return Scratch{}, err
	}
	b.spills.Add(addr, n, align)
	s := Scratch{Addr: addr, Size: size, top: b.top, spilled: true}
	b.stack = append(b.stack, s)
	return s, nil
}

// Release returns the most recently acquired region.
func (b *FastPathBuffer) Release(s Scratch) error {
	n := len(b.stack)
	if n == 0 || b.stack[n-1] != s {
		return errors.InvalidInput(errors.PhaseMemory, "scratch released out of order")
	}
	b.stack = b.stack[:n-1]
	if s.spilled {
		a, ok := b.spills.Pop()
		if !ok || a.Ptr != s.Addr {
			return errors.InvalidInput(errors.PhaseMemory, "scratch spill list out of sync")
		}
		b.alloc.Free(a.Ptr, a.Size, a.Align)
	}
	b.top = s.top
	return nil
}

// InUse returns the number of outstanding regions.
func (b *FastPathBuffer) InUse() int { return len(b.stack) }

// Spilled returns the number of outstanding regions served by the allocator.
func (b *FastPathBuffer) Spilled() int { return b.spills.Count() }

// Close frees outstanding spills and the arena.
func (b *FastPathBuffer) Close() {
	b.spills.FreeAndRelease(b.alloc)
	b.spills = memory.NewAllocationList()
	b.stack = nil
	b.top = 0
	if b.size > 0 {
		b.alloc.Free(b.base, b.size, scratchAlign)
		b.size = 0
	}
}
