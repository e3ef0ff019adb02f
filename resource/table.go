package resource

import (
	"sync"
)

// Table maps handles to values. Every slot carries a generation that
// increases when the slot is dropped, so a (handle, generation) pair
// taken before a drop never resolves to a later occupant.
type Table struct {
	entries   []entry
	freeList  []Handle
	observers []Observer
	mu        sync.RWMutex
	obsMu     sync.RWMutex
	closed    bool
}

type entry struct {
	value       any
	gen         uint32
	borrowCount uint32
	valid       bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries:  make([]entry, 0, 64),
		freeList: make([]Handle, 0, 16),
	}
}

// Insert stores a value and returns its handle and generation.
func (t *Table) Insert(value any) (Handle, uint32, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, 0, ErrClosed
	}

	var handle Handle
	if n := len(t.freeList); n > 0 {
		handle = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[handle-1]
		e.value = value
		e.valid = true
	} else {
		t.entries = append(t.entries, entry{value: value, gen: 1, valid: true})
		handle = Handle(len(t.entries))
	}
	gen := t.entries[handle-1].gen
	t.mu.Unlock()

	t.notify(Event{Type: EventCreated, Handle: handle, Gen: gen, Value: value})
	return handle, gen, nil
}

// Get retrieves a value when handle and generation both match.
func (t *Table) Get(handle Handle, gen uint32) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entry(handle)
	if !ok || e.gen != gen {
		return nil, false
	}
	return e.value, true
}

// Lookup retrieves a value and its current generation by handle alone.
func (t *Table) Lookup(handle Handle) (any, uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entry(handle)
	if !ok {
		return nil, 0, false
	}
	return e.value, e.gen, true
}

// Replace swaps the value stored under a live handle.
func (t *Table) Replace(handle Handle, gen uint32, value any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entry(handle)
	if !ok || e.gen != gen {
		return false
	}
	e.value = value
	return true
}

// Remove drops a value. It fails with ErrOutstandingBorrow while borrows
// are held and with ErrStale when the generation does not match.
func (t *Table) Remove(handle Handle, gen uint32) (any, error) {
	t.mu.Lock()
	e, ok := t.entry(handle)
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return nil, ErrStale
	}
	if e.borrowCount > 0 {
		t.mu.Unlock()
		return nil, ErrOutstandingBorrow
	}

	value := e.value
	e.value = nil
	e.valid = false
	e.gen++
	t.freeList = append(t.freeList, handle)
	t.mu.Unlock()

	t.notify(Event{Type: EventDropped, Handle: handle, Gen: gen, Value: value})
	return value, nil
}

// Borrow increments the borrow count of a live handle.
func (t *Table) Borrow(handle Handle, gen uint32) bool {
	t.mu.Lock()
	e, ok := t.entry(handle)
	if !ok || e.gen != gen {
		t.mu.Unlock()
		return false
	}
	e.borrowCount++
	value := e.value
	t.mu.Unlock()

	t.notify(Event{Type: EventBorrowed, Handle: handle, Gen: gen, Value: value})
	return true
}

// ReturnBorrow decrements the borrow count of a live handle.
func (t *Table) ReturnBorrow(handle Handle, gen uint32) bool {
	t.mu.Lock()
	e, ok := t.entry(handle)
	if !ok || e.gen != gen || e.borrowCount == 0 {
		t.mu.Unlock()
		return false
	}
	e.borrowCount--
	value := e.value
	t.mu.Unlock()

	t.notify(Event{Type: EventBorrowReturned, Handle: handle, Gen: gen, Value: value})
	return true
}

// BorrowCount returns the number of outstanding borrows.
func (t *Table) BorrowCount(handle Handle) uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.entry(handle)
	if !ok {
		return 0
	}
	return e.borrowCount
}

// Len returns the number of live values.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Each calls fn for every live value in handle order until fn returns false.
// fn runs without the table lock held.
func (t *Table) Each(fn func(h Handle, gen uint32, value any) bool) {
	type live struct {
		h     Handle
		gen   uint32
		value any
	}

	t.mu.RLock()
	snapshot := make([]live, 0, len(t.entries))
	for i := range t.entries {
		if e := t.entries[i]; e.valid {
			snapshot = append(snapshot, live{Handle(i + 1), e.gen, e.value})
		}
	}
	t.mu.RUnlock()

	for _, l := range snapshot {
		if !fn(l.h, l.gen, l.value) {
			return
		}
	}
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Close stops accepting inserts and forgets all values without notifying.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.entries = nil
	t.freeList = nil
}

func (t *Table) entry(handle Handle) (*entry, bool) {
	if handle == 0 || int(handle) > len(t.entries) {
		return nil, false
	}
	e := &t.entries[handle-1]
	if !e.valid {
		return nil, false
	}
	return e, true
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	observers := append([]Observer(nil), t.observers...)
	t.obsMu.RUnlock()

	for _, o := range observers {
		o.OnResourceEvent(e)
	}
}
