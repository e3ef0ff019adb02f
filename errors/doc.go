// Package errors provides structured error types for the property bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, host/script type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseFromScript, errors.KindTypeMismatch).
//		Path("Actor", "hp").
//		HostType("s32").
//		ScriptType("string").
//		Detail("cannot convert string to integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TypeMismatch(errors.PhaseFromScript, path, "s32", "string")
//	err := errors.OutOfBounds(errors.PhaseToScript, path, 10, 5)
//
// Conversion failures (type mismatch, out of range, invalid enum, invalid
// UTF-8) are all reported by IsMismatch. A retired field descriptor is
// KindDescriptorInvalid; a destroyed object handle is KindStaleHandle.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
