package host

import (
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/resource"
)

// Invoker runs a bound delegate target.
type Invoker interface {
	Invoke(call *Call) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(call *Call) error

func (f InvokerFunc) Invoke(call *Call) error { return f(call) }

// Binding is the target of a delegate handle.
type Binding struct {
	Sig    *Signature
	Target Invoker
	Name   string
}

// DelegateTable maps delegate handles stored in host memory to their
// bindings. Handle 0 means unbound.
type DelegateTable struct {
	table *resource.Table
}

func NewDelegateTable() *DelegateTable {
	return &DelegateTable{table: resource.NewTable()}
}

// Bind registers a binding and returns its handle.
func (d *DelegateTable) Bind(b Binding) (uint32, error) {
	if b.Sig == nil || b.Target == nil {
		return 0, errors.InvalidInput(errors.PhaseCall, "delegate binding needs a signature and a target")
	}
	h, _, err := d.table.Insert(b)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCall, errors.KindInvalidData, err, "bind delegate")
	}
	return uint32(h), nil
}

// Get returns the binding for handle.
func (d *DelegateTable) Get(handle uint32) (Binding, bool) {
	if handle == 0 {
		return Binding{}, false
	}
	v, _, ok := d.table.Lookup(resource.Handle(handle))
	if !ok {
		return Binding{}, false
	}
	return v.(Binding), true
}

// Unbind drops a binding. Unbinding 0 or an unknown handle is a no-op.
func (d *DelegateTable) Unbind(handle uint32) {
	if handle == 0 {
		return
	}
	if _, gen, ok := d.table.Lookup(resource.Handle(handle)); ok {
		_, _ = d.table.Remove(resource.Handle(handle), gen)
	}
}

// Execute invokes the binding for handle. The call signature must match
// the bound signature.
func (d *DelegateTable) Execute(handle uint32, call *Call) error {
	b, ok := d.Get(handle)
	if !ok {
		return errors.New(errors.PhaseCall, errors.KindNotFound).
			Value(handle).
			Detail("delegate %d is not bound", handle).
			Build()
	}
	if call.Sig != nil && !call.Sig.Equal(b.Sig) {
		return errors.New(errors.PhaseCall, errors.KindTypeMismatch).
			HostType(b.Sig.String()).
			Detail("call signature %s", call.Sig.String()).
			Build()
	}
	return b.Target.Invoke(call)
}

func (d *DelegateTable) Len() int {
	return d.table.Len()
}
