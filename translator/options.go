package translator

import (
	"go.starlark.net/starlark"

	"github.com/wippyai/propbridge/host"
	"github.com/wippyai/propbridge/internal/layout"
)

const defaultScratchSize = 4096

// Options configures an Env.
type Options struct {
	// OuterLinker is told about every owner linkage in addition to the
	// wrapper recording its owner. nil means no extra notification.
	OuterLinker host.OuterLinker

	// Print receives script print() output. nil logs at info level.
	Print func(thread *starlark.Thread, msg string)

	// ScratchSize is the fast-path scratch region in bytes.
	// 0 means default (4096). Larger requests spill to the allocator.
	ScratchSize uint32

	// MaxContainerLength caps the number of elements accepted from a
	// script value. 0 means default (layout.MaxListLength).
	MaxContainerLength uint32
}

// DefaultOptions returns default Env configuration.
func DefaultOptions() Options {
	return Options{
		ScratchSize:        defaultScratchSize,
		MaxContainerLength: layout.MaxListLength,
	}
}

func (o Options) withDefaults() Options {
	if o.ScratchSize == 0 {
		o.ScratchSize = defaultScratchSize
	}
	if o.MaxContainerLength == 0 {
		o.MaxContainerLength = layout.MaxListLength
	}
	return o
}
