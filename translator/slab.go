package translator

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/internal/layout"
	"github.com/wippyai/propbridge/memory"
)

// slab manages the storage behind a (ptr, len) header: a contiguous run
// of cells of one stride. fill converts a script value into a zeroed
// cell; clean releases whatever a cell owns.
type slab struct {
	stride uint32
	align  uint32
	fill   func(ctx *Context, v starlark.Value, addr uint32) error
	clean  func(ctx *Context, addr uint32) error
}

func (s *slab) cells(ctx *Context, header uint32) (ptr, n uint32, err error) {
	return host.ReadSlice(ctx.Memory(), header)
}

func (s *slab) cellContext(ctx *Context, i int) *Context {
	return ctx.at(nil, nil, fmt.Sprintf("[%d]", i))
}

// assign replaces the whole content. When live is false the header is
// scratch and treated as empty.
func (s *slab) assign(ctx *Context, header uint32, live bool, vals []starlark.Value) error {
	var n uint32
	if live {
		var err error
		if _, n, err = s.cells(ctx, header); err != nil {
			return err
		}
	}
	return s.splice(ctx, header, live, 0, int(n), vals)
}

// splice replaces cells [at, at+count) with cells converted from vals.
// New cells are converted before anything is moved, so a failed
// conversion leaves the container untouched.
func (s *slab) splice(ctx *Context, header uint32, live bool, at, count int, vals []starlark.Value) error {
	var ptr, n uint32
	if live {
		var err error
		if ptr, n, err = s.cells(ctx, header); err != nil {
			return err
		}
	}
	if at < 0 || count < 0 || at+count > int(n) {
		return errors.OutOfBounds(errors.PhaseFromScript, ctx.Path(), at+count, int(n))
	}

	newN := int(n) - count + len(vals)
	if limit := ctx.env.opts.MaxContainerLength; uint64(newN) > uint64(limit) {
		return errors.New(errors.PhaseFromScript, errors.KindOutOfBounds).
			Path(ctx.Path()...).
			Value(newN).
			Detail("%d elements exceed limit %d", newN, limit).
			Build()
	}
	size, ok := layout.SafeMulU32(uint32(newN), s.stride)
	if !ok || size > layout.MaxAlloc {
		return errors.AllocationFailed(errors.PhaseFromScript, uint32(newN), s.align)
	}

	mem := ctx.Memory()
	var newPtr uint32
	if size > 0 {
		var err error
		if newPtr, err = ctx.alloc().Alloc(size, s.align); err != nil {
			return errors.Wrap(errors.PhaseMemory, errors.KindAllocation, err, "container storage")
		}
		if err := memory.Zero(mem, newPtr, size); err != nil {
			ctx.alloc().Free(newPtr, size, s.align)
			return err
		}
	}

	filled := 0
	abort := func(err error) error {
		for i := filled - 1; i >= 0; i-- {
			s.cleanCell(ctx, newPtr+uint32(at+i)*s.stride)
		}
		if size > 0 {
			ctx.alloc().Free(newPtr, size, s.align)
		}
		return err
	}
	for i, v := range vals {
		if err := s.fill(s.cellContext(ctx, at+i), v, newPtr+uint32(at+i)*s.stride); err != nil {
			return abort(err)
		}
		filled++
	}

	if at > 0 {
		if err := memory.Copy(mem, newPtr, ptr, uint32(at)*s.stride); err != nil {
			return abort(err)
		}
	}
	if tail := int(n) - at - count; tail > 0 {
		dst := newPtr + uint32(at+len(vals))*s.stride
		src := ptr + uint32(at+count)*s.stride
		if err := memory.Copy(mem, dst, src, uint32(tail)*s.stride); err != nil {
			return abort(err)
		}
	}
	if err := host.WriteSlice(mem, header, newPtr, uint32(newN)); err != nil {
		return abort(err)
	}

	for i := at; i < at+count; i++ {
		s.cleanCell(ctx, ptr+uint32(i)*s.stride)
	}
	if ptr != 0 && n > 0 && s.stride > 0 {
		ctx.alloc().Free(ptr, n*s.stride, s.align)
	}
	return nil
}

// release cleans every cell, frees the storage and empties the header.
func (s *slab) release(ctx *Context, header uint32) error {
	ptr, n, err := s.cells(ctx, header)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		s.cleanCell(ctx, ptr+i*s.stride)
	}
	if ptr != 0 && n > 0 && s.stride > 0 {
		ctx.alloc().Free(ptr, n*s.stride, s.align)
	}
	return host.WriteSlice(ctx.Memory(), header, 0, 0)
}

func (s *slab) cleanCell(ctx *Context, addr uint32) {
	if s.clean == nil {
		return
	}
	if err := s.clean(ctx, addr); err != nil {
		Logger().Warn("release container element",
			zap.Strings("path", ctx.Path()),
			zap.Uint32("addr", addr),
			zap.Error(err))
	}
}

// each calls fn with every cell address until fn returns false.
func (s *slab) each(ctx *Context, header uint32, fn func(i int, addr uint32) (bool, error)) error {
	ptr, n, err := s.cells(ctx, header)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		more, err := fn(int(i), ptr+i*s.stride)
		if err != nil || !more {
			return err
		}
	}
	return nil
}
