// Package host is a small typed object model laid out in linear memory.
//
// A Registry defines structs, classes, enums and interfaces. Each laid
// out Field has a byte offset inside its owner; a FieldRef taken from the
// registry is a weak, generation-checked handle that stops resolving when
// the field is retired by ReloadClass or Remove:
//
//	reg := host.NewRegistry()
//	vec, _ := reg.DefineStruct("Vec", host.FieldSpec{Name: "x", Type: host.F32})
//	actor, _ := reg.DefineClass("Actor", nil,
//		host.FieldSpec{Name: "hp", Type: host.S32},
//		host.FieldSpec{Name: "pos", Type: vec.Type()})
//
// Reloading a class keeps the offsets of fields whose name and type did
// not change and appends new fields after the existing layout, so live
// instances stay readable through references taken before the reload.
//
// ObjectTable owns class instances, DelegateTable owns delegate bindings,
// and System wires both to a registry over one memory and allocator.
package host
