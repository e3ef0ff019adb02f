package memory

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// PageSize is the size of one linear memory page.
const PageSize = 65536

// Config holds configuration for linear memory creation
type Config struct {
	// InitialPages is the number of 64KB pages allocated up front.
	// 0 means default (1 page).
	InitialPages uint32

	// MemoryLimitPages caps growth in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32
}

// Linear is a standalone linear memory backed by a wazero module that
// exports nothing but its memory.
type Linear struct {
	runtime wazero.Runtime
	module  api.Module
	mem     *Wrapper
}

// New creates a linear memory per cfg.
func New(ctx context.Context, cfg Config) (*Linear, error) {
	pages := cfg.InitialPages
	if pages == 0 {
		pages = 1
	}
	if cfg.MemoryLimitPages > 0 && pages > cfg.MemoryLimitPages {
		return nil, fmt.Errorf("initial pages %d exceed limit %d", pages, cfg.MemoryLimitPages)
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	mod, err := rt.Instantiate(ctx, memoryModule(pages))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}

	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("memory module has no exported memory")
	}

	return &Linear{runtime: rt, module: mod, mem: Wrap(mem)}, nil
}

// Memory returns the byte accessor for this linear memory.
func (l *Linear) Memory() *Wrapper {
	return l.mem
}

// Size returns the current size in bytes.
func (l *Linear) Size() uint32 {
	return l.mem.Size()
}

// Grow adds deltaPages pages and returns the previous page count.
func (l *Linear) Grow(deltaPages uint32) (uint32, bool) {
	return l.mem.Grow(deltaPages)
}

// Close releases the underlying wazero runtime.
func (l *Linear) Close(ctx context.Context) error {
	return l.runtime.Close(ctx)
}

// memoryModule assembles a module with one memory of the given minimum
// size exported as "memory".
func memoryModule(pages uint32) []byte {
	limits := append([]byte{0x00}, uleb128(pages)...) // flags: no max
	memSection := append([]byte{0x01}, limits...)     // one memory

	out := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic
		0x01, 0x00, 0x00, 0x00, // version
	}
	out = append(out, 0x05) // memory section
	out = append(out, uleb128(uint32(len(memSection)))...)
	out = append(out, memSection...)
	out = append(out,
		0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
		0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory"
		0x02, 0x00, // kind: memory, index 0
	)
	return out
}

func uleb128(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}
