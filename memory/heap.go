package memory

import (
	"sort"
	"sync"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/internal/layout"
)

const heapGranule = 8

// Grower is a memory that can report its size and grow by whole pages.
type Grower interface {
	Size() uint32
	Grow(deltaPages uint32) (previousPages uint32, ok bool)
}

type block struct {
	off  uint32
	size uint32
}

// Heap is a first-fit allocator over a linear memory. Freed blocks are
// coalesced with their neighbours and the break is lowered when the
// topmost block is released. Allocations are zeroed.
type Heap struct {
	mem    propbridge.Memory
	grower Grower
	free   []block // sorted by off
	top    uint32
	inUse  uint32
	live   int
	mu     sync.Mutex
}

var _ propbridge.Allocator = (*Heap)(nil)

// NewHeap creates an allocator over mem, growing through grower.
func NewHeap(mem propbridge.Memory, grower Grower) *Heap {
	return &Heap{
		mem:    mem,
		grower: grower,
		top:    layout.HeapBase,
	}
}

// Alloc returns a zeroed block of at least size bytes aligned to align.
// A zero size returns address 0.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	if size > layout.MaxAlloc {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	if align == 0 {
		align = 1
	}
	sz := layout.AlignTo(size, heapGranule)

	h.mu.Lock()
	defer h.mu.Unlock()

	ptr, ok := h.takeFree(sz, align)
	if !ok {
		var err error
		ptr, err = h.bump(sz, align)
		if err != nil {
			return 0, err
		}
	}

	if err := Zero(h.mem, ptr, sz); err != nil {
		h.release(ptr, sz)
		return 0, errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "zero allocation")
	}

	h.inUse += sz
	h.live++
	return ptr, nil
}

// Free releases a block returned by Alloc. Size must match the request.
func (h *Heap) Free(ptr, size, align uint32) {
	if ptr == 0 || size == 0 {
		return
	}
	sz := layout.AlignTo(size, heapGranule)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.release(ptr, sz)
	h.inUse -= sz
	h.live--
}

// InUse returns the number of bytes currently allocated.
func (h *Heap) InUse() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.live
}

func (h *Heap) takeFree(sz, align uint32) (uint32, bool) {
	for i, b := range h.free {
		start := layout.AlignTo(b.off, align)
		end := b.off + b.size
		if start < b.off || start+sz > end || start+sz < start {
			continue
		}

		h.free = append(h.free[:i], h.free[i+1:]...)
		if lead := start - b.off; lead > 0 {
			h.insert(block{off: b.off, size: lead})
		}
		if tail := end - (start + sz); tail > 0 {
			h.insert(block{off: start + sz, size: tail})
		}
		return start, true
	}
	return 0, false
}

func (h *Heap) bump(sz, align uint32) (uint32, error) {
	start := layout.AlignTo(h.top, align)
	end, ok := layout.SafeAddU32(start, sz)
	if !ok || start < h.top {
		return 0, errors.AllocationFailed(errors.PhaseMemory, sz, align)
	}

	if limit := h.grower.Size(); end > limit {
		need := end - limit
		pages := (need + PageSize - 1) / PageSize
		if _, ok := h.grower.Grow(pages); !ok {
			return 0, errors.New(errors.PhaseMemory, errors.KindAllocation).
				Detail("cannot grow memory by %d pages for %d bytes (align %d)", pages, sz, align).
				Build()
		}
	}

	if pad := start - h.top; pad > 0 {
		h.insert(block{off: h.top, size: pad})
	}
	h.top = end
	return start, nil
}

// release returns a block to the free list, merging neighbours and
// lowering the break when the block is topmost.
func (h *Heap) release(ptr, sz uint32) {
	h.insert(block{off: ptr, size: sz})

	if n := len(h.free); n > 0 {
		last := h.free[n-1]
		if last.off+last.size == h.top {
			h.top = last.off
			h.free = h.free[:n-1]
		}
	}
}

func (h *Heap) insert(b block) {
	i := sort.Search(len(h.free), func(i int) bool { return h.free[i].off >= b.off })
	h.free = append(h.free, block{})
	copy(h.free[i+1:], h.free[i:])
	h.free[i] = b

	// merge with next
	if i+1 < len(h.free) && h.free[i].off+h.free[i].size == h.free[i+1].off {
		h.free[i].size += h.free[i+1].size
		h.free = append(h.free[:i+1], h.free[i+2:]...)
	}
	// merge with previous
	if i > 0 && h.free[i-1].off+h.free[i-1].size == h.free[i].off {
		h.free[i-1].size += h.free[i].size
		h.free = append(h.free[:i], h.free[i+1:]...)
	}
}

var zeros [512]byte

// Zero clears n bytes at addr.
func Zero(mem propbridge.Memory, addr, n uint32) error {
	for n > 0 {
		chunk := n
		if chunk > uint32(len(zeros)) {
			chunk = uint32(len(zeros))
		}
		if err := mem.Write(addr, zeros[:chunk]); err != nil {
			return err
		}
		addr += chunk
		n -= chunk
	}
	return nil
}

// Copy moves n bytes from src to dst. Overlapping ranges are allowed.
func Copy(mem propbridge.Memory, dst, src, n uint32) error {
	if n == 0 || dst == src {
		return nil
	}
	data, err := mem.Read(src, n)
	if err != nil {
		return err
	}
	return mem.Write(dst, data)
}
