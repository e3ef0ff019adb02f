// Package resource provides generation-checked handle tables.
//
// A Table maps integer handles to Go values. Each slot carries a
// generation that is bumped when the slot is dropped, so references taken
// before a drop are detected as stale instead of resolving to whatever
// reuses the slot:
//
//	table := resource.NewTable()
//
//	h, gen, _ := table.Insert(value)
//	v, ok := table.Get(h, gen)      // ok
//	table.Remove(h, gen)
//	v, ok = table.Get(h, gen)       // !ok, even after h is reused
//
// # Borrows
//
// Borrow and ReturnBorrow count strong references held elsewhere. Remove
// refuses to drop a value while borrows are outstanding.
//
// # Observers
//
// Observers receive EventCreated, EventDropped, EventBorrowed and
// EventBorrowReturned. Notifications run after the table lock is released,
// so observers may call back into the table.
package resource
