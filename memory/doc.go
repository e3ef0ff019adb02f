// Package memory provides the linear memory host values live in.
//
// Linear owns a wazero runtime with a single exported memory, Wrapper adapts
// any wazero api.Memory to propbridge.Memory, and Heap is a first-fit
// allocator with coalescing that grows the memory on demand.
//
//	lin, err := memory.New(ctx, memory.Config{InitialPages: 1})
//	if err != nil {
//	    return err
//	}
//	defer lin.Close(ctx)
//
//	heap := memory.NewHeap(lin.Memory(), lin)
//	ptr, err := heap.Alloc(64, 8)
//
// Addresses below layout.HeapBase are never handed out, so 0 can be used as
// a null pointer by callers.
package memory
