package memory

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
)

var (
	_ propbridge.Memory      = (*Wrapper)(nil)
	_ propbridge.MemorySizer = (*Wrapper)(nil)
)

// Wrapper exposes a wazero api.Memory as propbridge.Memory. Out of range
// accesses return a KindOutOfBounds error in PhaseMemory.
type Wrapper struct {
	Mem api.Memory
}

// Wrap returns nil for a nil memory.
func Wrap(mem api.Memory) *Wrapper {
	if mem == nil {
		return nil
	}
	return &Wrapper{Mem: mem}
}

func outside(op string, offset, n uint32) error {
	return errors.New(errors.PhaseMemory, errors.KindOutOfBounds).
		Value(offset).
		Detail("%s of %d bytes at %#x outside linear memory", op, n, offset).
		Build()
}

func (m *Wrapper) Size() uint32 { return m.Mem.Size() }

// Grow adds deltaPages 64KiB pages and returns the previous page count.
func (m *Wrapper) Grow(deltaPages uint32) (uint32, bool) { return m.Mem.Grow(deltaPages) }

// Read returns a copy, so callers may keep it across a Grow.
func (m *Wrapper) Read(offset uint32, length uint32) ([]byte, error) {
	view, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, outside("read", offset, length)
	}
	return append([]byte(nil), view...), nil
}

func (m *Wrapper) Write(offset uint32, data []byte) error {
	if !m.Mem.Write(offset, data) {
		return outside("write", offset, uint32(len(data)))
	}
	return nil
}

func (m *Wrapper) ReadU8(offset uint32) (uint8, error) {
	if v, ok := m.Mem.ReadByte(offset); ok {
		return v, nil
	}
	return 0, outside("read", offset, 1)
}

func (m *Wrapper) ReadU16(offset uint32) (uint16, error) {
	if v, ok := m.Mem.ReadUint16Le(offset); ok {
		return v, nil
	}
	return 0, outside("read", offset, 2)
}

func (m *Wrapper) ReadU32(offset uint32) (uint32, error) {
	if v, ok := m.Mem.ReadUint32Le(offset); ok {
		return v, nil
	}
	return 0, outside("read", offset, 4)
}

func (m *Wrapper) ReadU64(offset uint32) (uint64, error) {
	if v, ok := m.Mem.ReadUint64Le(offset); ok {
		return v, nil
	}
	return 0, outside("read", offset, 8)
}

func (m *Wrapper) WriteU8(offset uint32, value uint8) error {
	if m.Mem.WriteByte(offset, value) {
		return nil
	}
	return outside("write", offset, 1)
}

func (m *Wrapper) WriteU16(offset uint32, value uint16) error {
	if m.Mem.WriteUint16Le(offset, value) {
		return nil
	}
	return outside("write", offset, 2)
}

func (m *Wrapper) WriteU32(offset uint32, value uint32) error {
	if m.Mem.WriteUint32Le(offset, value) {
		return nil
	}
	return outside("write", offset, 4)
}

func (m *Wrapper) WriteU64(offset uint32, value uint64) error {
	if m.Mem.WriteUint64Le(offset, value) {
		return nil
	}
	return outside("write", offset, 8)
}
