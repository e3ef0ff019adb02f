package host

import (
	"github.com/wippyai/propbridge"
)

// System bundles the host state a bridge operates on.
type System struct {
	Memory    propbridge.Memory
	Alloc     propbridge.Allocator
	Registry  *Registry
	Objects   *ObjectTable
	Delegates *DelegateTable
}

// NewSystem wires a registry, object table and delegate table over mem.
// The object table observes reloads before any later subscriber.
func NewSystem(mem propbridge.Memory, alloc propbridge.Allocator) *System {
	s := &System{
		Memory:    mem,
		Alloc:     alloc,
		Registry:  NewRegistry(),
		Objects:   NewObjectTable(mem, alloc),
		Delegates: NewDelegateTable(),
	}
	s.Registry.Subscribe(s.Objects)
	return s
}
