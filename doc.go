// Package propbridge exposes host-owned properties to Starlark scripts.
//
// Host values live in a byte-addressed linear memory described by typed
// field descriptors. The bridge reads and writes those values in place,
// so a script assignment lands directly in host memory and a host write
// is visible on the next script read.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	propbridge/          Root package with core Memory and Allocator interfaces
//	├── memory/          wazero-backed linear memory and a free-list heap
//	├── host/            Types, classes, structs, enums, objects, delegates
//	│   └── schema/      YAML schema loader for host type definitions
//	├── translator/      Codecs, wrappers, accessors and the script Env
//	├── resource/        Generation-checked handle table
//	├── errors/          Structured error types for debugging
//	└── internal/        Layout arithmetic and numeric coercion
//
// # Quick Start
//
// Build memory, a host system and an Env, then run a script:
//
//	lin, err := memory.New(ctx, memory.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lin.Close(ctx)
//
//	heap := memory.NewHeap(lin.Memory(), lin)
//	sys := host.NewSystem(lin.Memory(), heap)
//	if _, err := schema.LoadFile(sys.Registry, "types.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//
//	env, err := translator.NewEnv(sys, translator.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	globals, err := env.Exec("main.star", `
//	a = Actor(hp = 10)
//	a.hp += 32
//	`)
//
// # Supported Kinds
//
//   - Scalars: bool, u8-u64, s8-s64, f32, f64, enums, string
//   - Composite: struct, array<T>, set<T>, map<K,V>
//   - References: object<C>, weak<C>, class<C>, iface<I>
//   - Callables: delegate<...>, multicast<...>
//
// # Hot Reload
//
// Registry.ReloadClass keeps the offset of every field whose name and type
// are unchanged. Wrappers and accessors bound to a retired field fail with
// a descriptor error instead of touching memory.
//
// # Thread Safety
//
// Registry and the handle tables are safe for concurrent use. An Env and
// the wrappers it returns belong to one goroutine at a time.
package propbridge
