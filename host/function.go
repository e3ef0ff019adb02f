package host

import (
	"strconv"
	"strings"

	"github.com/wippyai/propbridge"
	"github.com/wippyai/propbridge/errors"
	"github.com/wippyai/propbridge/internal/layout"
)

// Signature describes parameters and return type of a function or delegate.
// Parameters are laid out as a frame record.
type Signature struct {
	params []*Field
	ret    *Type
	frame  layout.Info
}

// NewSignature lays out params in order. ret may be nil.
func NewSignature(ret *Type, params ...FieldSpec) *Signature {
	rec := newRecord("", 0)
	for i, p := range params {
		name := p.Name
		if name == "" {
			name = "p" + strconv.Itoa(i)
		}
		rec.add(&Field{Name: name, Type: p.Type, Flags: p.Flags &^ FlagReturn})
	}
	return &Signature{params: rec.fields, ret: ret, frame: rec.info()}
}

// Params returns the parameter descriptors in order.
func (s *Signature) Params() []*Field { return s.params }

// Return returns the return type, or nil.
func (s *Signature) Return() *Type { return s.ret }

// FrameInfo returns the layout of the parameter frame.
func (s *Signature) FrameInfo() layout.Info { return s.frame }

// Equal compares parameter types, flags and return type.
func (s *Signature) Equal(o *Signature) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.params) != len(o.params) {
		return false
	}
	for i, p := range s.params {
		if !p.Type.Equal(o.params[i].Type) || p.Flags != o.params[i].Flags {
			return false
		}
	}
	if (s.ret == nil) != (o.ret == nil) {
		return false
	}
	return s.ret == nil || s.ret.Equal(o.ret)
}

func (s *Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.params {
		if i > 0 {
			b.WriteString(", ")
		}
		if p.Has(FlagOut) {
			b.WriteString("out ")
		} else if p.Has(FlagRef) {
			b.WriteString("ref ")
		}
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	if s.ret != nil {
		b.WriteString(" -> ")
		b.WriteString(s.ret.String())
	}
	return b.String()
}

// Function is a host function exposed to scripts. Static functions are
// called without an instance.
type Function struct {
	Name   string
	Sig    *Signature
	Static bool
	Impl   func(call *Call) error
}

// Call carries one invocation. Args holds the address of each parameter
// value; Ret is the address of the return slot or 0.
type Call struct {
	Memory propbridge.Memory
	Alloc  propbridge.Allocator
	Sig    *Signature
	Self   Instance
	Args   []uint32
	Ret    uint32
}

func (c *Call) arg(i int) (uint32, error) {
	if i < 0 || i >= len(c.Args) {
		return 0, errors.OutOfBounds(errors.PhaseCall, nil, i, len(c.Args))
	}
	return c.Args[i], nil
}

func (c *Call) ret() (uint32, error) {
	if c.Ret == 0 {
		return 0, errors.InvalidInput(errors.PhaseCall, "call has no return slot")
	}
	return c.Ret, nil
}

func (c *Call) Bool(i int) (bool, error) {
	addr, err := c.arg(i)
	if err != nil {
		return false, err
	}
	v, err := c.Memory.ReadU8(addr)
	return v != 0, err
}

func (c *Call) S32(i int) (int32, error) {
	addr, err := c.arg(i)
	if err != nil {
		return 0, err
	}
	v, err := c.Memory.ReadU32(addr)
	return int32(v), err
}

func (c *Call) U32(i int) (uint32, error) {
	addr, err := c.arg(i)
	if err != nil {
		return 0, err
	}
	return c.Memory.ReadU32(addr)
}

func (c *Call) S64(i int) (int64, error) {
	addr, err := c.arg(i)
	if err != nil {
		return 0, err
	}
	v, err := c.Memory.ReadU64(addr)
	return int64(v), err
}

func (c *Call) F64(i int) (float64, error) {
	addr, err := c.arg(i)
	if err != nil {
		return 0, err
	}
	return ReadF64(c.Memory, addr)
}

func (c *Call) String(i int) (string, error) {
	addr, err := c.arg(i)
	if err != nil {
		return "", err
	}
	return ReadString(c.Memory, addr)
}

// SetS32 writes to an out or ref parameter.
func (c *Call) SetS32(i int, v int32) error {
	addr, err := c.arg(i)
	if err != nil {
		return err
	}
	return c.Memory.WriteU32(addr, uint32(v))
}

// SetString replaces the string stored in an out or ref parameter.
func (c *Call) SetString(i int, s string) error {
	addr, err := c.arg(i)
	if err != nil {
		return err
	}
	return ReplaceString(c.Memory, c.Alloc, addr, s)
}

func (c *Call) ReturnBool(v bool) error {
	addr, err := c.ret()
	if err != nil {
		return err
	}
	var b uint8
	if v {
		b = 1
	}
	return c.Memory.WriteU8(addr, b)
}

func (c *Call) ReturnS32(v int32) error {
	addr, err := c.ret()
	if err != nil {
		return err
	}
	return c.Memory.WriteU32(addr, uint32(v))
}

func (c *Call) ReturnS64(v int64) error {
	addr, err := c.ret()
	if err != nil {
		return err
	}
	return c.Memory.WriteU64(addr, uint64(v))
}

func (c *Call) ReturnF64(v float64) error {
	addr, err := c.ret()
	if err != nil {
		return err
	}
	return WriteF64(c.Memory, addr, v)
}

// ReturnString writes a freshly allocated string into the return slot.
func (c *Call) ReturnString(s string) error {
	addr, err := c.ret()
	if err != nil {
		return err
	}
	return WriteString(c.Memory, c.Alloc, addr, s)
}
