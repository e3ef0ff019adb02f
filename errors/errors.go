package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseBind       Phase = "bind"        // translator and template construction
	PhaseToScript   Phase = "to-script"   // host memory to script value
	PhaseFromScript Phase = "from-script" // script value to host memory
	PhaseValidate   Phase = "validate"    // descriptor and handle validation
	PhaseCall       Phase = "call"        // host function and delegate invocation
	PhaseReflect    Phase = "reflect"     // type registration and reload
	PhaseMemory     Phase = "memory"      // linear memory and allocation
	PhaseSchema     Phase = "schema"      // schema loading and type parsing
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch      Kind = "type_mismatch"
	KindOutOfRange        Kind = "out_of_range"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindUnsupported       Kind = "unsupported"
	KindAllocation        Kind = "allocation"
	KindFieldUnknown      Kind = "field_unknown"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindNilPointer        Kind = "nil_pointer"
	KindInvalidEnum       Kind = "invalid_enum"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindRegistration      Kind = "registration"
	KindDescriptorInvalid Kind = "descriptor_invalid"
	KindStaleHandle       Kind = "stale_handle"
	KindOutstandingBorrow Kind = "outstanding_borrow"
	KindReadOnly          Kind = "read_only"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	HostType   string
	ScriptType string
	Detail     string
	Path       []string
}

// Error renders "[phase] kind at path: types - detail (caused by: cause)",
// leaving out the parts that are empty.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Phase, e.Kind)
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	sep := ": "
	if types := e.types(); types != "" {
		b.WriteString(sep)
		b.WriteString(types)
		sep = " - "
	}
	if e.Detail != "" {
		b.WriteString(sep)
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

func (e *Error) types() string {
	var parts []string
	if e.HostType != "" {
		parts = append(parts, "host type "+e.HostType)
	}
	if e.ScriptType != "" {
		parts = append(parts, "script type "+e.ScriptType)
	}
	return strings.Join(parts, ", ")
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// HasKind reports whether err carries kind anywhere in its chain.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// IsMismatch reports whether err is a conversion failure: a type mismatch
// or one of the kinds treated as such (range, enum, encoding).
func IsMismatch(err error) bool {
	switch KindOf(err) {
	case KindTypeMismatch, KindOutOfRange, KindInvalidEnum, KindInvalidUTF8:
		return true
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// HostType sets the host type name
func (b *Builder) HostType(t string) *Builder {
	b.err.HostType = t
	return b
}

// ScriptType sets the script value type name
func (b *Builder) ScriptType(t string) *Builder {
	b.err.ScriptType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch reports a script value of the wrong type for hostType.
func TypeMismatch(phase Phase, path []string, hostType, scriptType string) *Error {
	return New(phase, KindTypeMismatch).Path(path...).HostType(hostType).ScriptType(scriptType).Build()
}

// OutOfRange reports a number outside the domain of hostType.
func OutOfRange(phase Phase, path []string, value any, hostType string) *Error {
	return New(phase, KindOutOfRange).Path(path...).HostType(hostType).Value(value).
		Detail("value %v out of range for %s", value, hostType).Build()
}

// InvalidUTF8 reports a string that is not valid UTF-8. At most 32 bytes
// are quoted.
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	return New(phase, KindInvalidUTF8).Path(path...).
		Detail("invalid UTF-8 sequence: %x", data[:min(len(data), 32)]).Build()
}

func AllocationFailed(phase Phase, size, align uint32) *Error {
	return New(phase, KindAllocation).Detail("failed to allocate %d bytes (align %d)", size, align).Build()
}

func Unsupported(phase Phase, what string) *Error {
	return New(phase, KindUnsupported).Detail("%s", what).Build()
}

// OutOfBounds reports an index past the end of a container.
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return New(phase, KindOutOfBounds).Path(path...).Value(index).
		Detail("index %d out of bounds (length %d)", index, length).Build()
}

func NilPointer(phase Phase, path []string, what string) *Error {
	return New(phase, KindNilPointer).Path(path...).Detail("%s is nil", what).Build()
}

func FieldUnknown(phase Phase, path []string, fieldName string) *Error {
	return New(phase, KindFieldUnknown).Path(path...).Detail("unknown field %q", fieldName).Build()
}

// InvalidEnum reports a value that names no case of enumType.
func InvalidEnum(phase Phase, path []string, value any, enumType string) *Error {
	return New(phase, KindInvalidEnum).Path(path...).HostType(enumType).Value(value).
		Detail("invalid enum value %v for %s", value, enumType).Build()
}

func InvalidData(phase Phase, path []string, detail string) *Error {
	return New(phase, KindInvalidData).Path(path...).Detail("%s", detail).Build()
}

// DescriptorInvalid reports access through a field descriptor that was
// retired by a reload or a type removal.
func DescriptorInvalid(path []string) *Error {
	return New(PhaseValidate, KindDescriptorInvalid).Path(path...).
		Detail("field descriptor is no longer live").Build()
}

// StaleHandle reports a destroyed object or a reused handle slot.
func StaleHandle(phase Phase, handle, gen uint32) *Error {
	return New(phase, KindStaleHandle).Value(handle).
		Detail("handle %d (generation %d) is no longer live", handle, gen).Build()
}

// Wrap attaches phase, kind and detail to cause.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Cause(cause).Detail("%s", detail).Build()
}

func NotFound(phase Phase, what string) *Error {
	return New(phase, KindNotFound).Detail("%s not found", what).Build()
}

func InvalidInput(phase Phase, detail string) *Error {
	return New(phase, KindInvalidInput).Detail("%s", detail).Build()
}

// Registration reports a rejected type definition or reload.
func Registration(detail string, args ...any) *Error {
	return New(PhaseReflect, KindRegistration).Detail(detail, args...).Build()
}
