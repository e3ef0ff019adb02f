package resource

import "errors"

// Handle is an opaque reference to a value in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

var (
	ErrClosed            = errors.New("resource table closed")
	ErrStale             = errors.New("stale resource handle")
	ErrOutstandingBorrow = errors.New("cannot drop resource with outstanding borrows")
)

// Event types for resource lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

// Event represents a resource lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Gen    uint32
	Type   EventType
}

// Observer receives notifications about resource lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}
