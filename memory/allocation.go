package memory

import (
	"sync"

	"github.com/wippyai/propbridge"
)

// Allocation records one block handed out by an Allocator.
type Allocation struct {
	Ptr   uint32
	Size  uint32
	Align uint32
}

// AllocationList is a stack of blocks owned by one operation, such as
// the heap spills of a FastPathBuffer. Lists are pooled; a list must not
// be used after Release.
type AllocationList struct {
	stack []Allocation
}

// lists above this capacity are left to the GC instead of the pool
const maxPooledAllocations = 128

var allocationLists = sync.Pool{
	New: func() any { return &AllocationList{stack: make([]Allocation, 0, 8)} },
}

func NewAllocationList() *AllocationList {
	return allocationLists.Get().(*AllocationList)
}

func (al *AllocationList) Add(ptr, size, align uint32) {
	al.stack = append(al.stack, Allocation{Ptr: ptr, Size: size, Align: align})
}

// Pop removes and returns the most recent allocation.
func (al *AllocationList) Pop() (Allocation, bool) {
	if len(al.stack) == 0 {
		return Allocation{}, false
	}
	top := al.stack[len(al.stack)-1]
	al.stack = al.stack[:len(al.stack)-1]
	return top, true
}

func (al *AllocationList) Count() int { return len(al.stack) }

// Free hands every block back to allocator, newest first, and empties
// the list. A nil allocator only empties it.
func (al *AllocationList) Free(allocator propbridge.Allocator) {
	for {
		a, ok := al.Pop()
		if !ok {
			return
		}
		if allocator != nil && a.Ptr != 0 {
			allocator.Free(a.Ptr, a.Size, a.Align)
		}
	}
}

// Release empties the list without freeing and returns it to the pool.
func (al *AllocationList) Release() {
	if cap(al.stack) > maxPooledAllocations {
		return
	}
	al.stack = al.stack[:0]
	allocationLists.Put(al)
}

func (al *AllocationList) FreeAndRelease(allocator propbridge.Allocator) {
	al.Free(allocator)
	al.Release()
}
