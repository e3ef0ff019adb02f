// Package translator marshals host values between linear memory and
// Starlark.
//
// Every host kind has a Codec that reads a value at an address into a
// script value and writes a script value back. Composite values read by
// reference come back as wrappers (StructRef, ArrayRef, SetRef, MapRef,
// Delegate, MulticastDelegate) that alias host memory; they re-resolve
// their Location on each access, so they fail with a descriptive error
// once the owning object is destroyed or the field descriptor retired.
//
// An Env binds a host.System to scripts:
//
//	env, _ := translator.NewEnv(sys, translator.Options{})
//	globals, err := env.Exec("main.star", `
//	a = Actor(hp = 10)
//	a.pos = struct(x = 1.0, y = 2.0)
//	`)
//
// Class accessors are built from FieldTranslators held in a per-class
// Template. A translator keeps a weak FieldRef and is rebuilt when a
// class reload replaces its field; fields that survive a reload keep
// their translator and offset.
//
// Function calls stage arguments in a FastPathBuffer, a LIFO scratch
// region in host memory. Arguments already laid out in host memory are
// passed in place without a copy.
package translator
