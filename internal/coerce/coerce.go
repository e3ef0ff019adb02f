package coerce

import (
	"math"
	"math/big"

	"go.starlark.net/starlark"
)

const (
	CanonicalNaN32 = 0x7fc00000
	CanonicalNaN64 = 0x7ff8000000000000
)

// IsNumber reports whether v is a Starlark int or float.
func IsNumber(v starlark.Value) bool {
	switch v.(type) {
	case starlark.Int, starlark.Float:
		return true
	}
	return false
}

// ToInt64 coerces v into [lo, hi].
func ToInt64(v starlark.Value, lo, hi int64) (int64, bool) {
	switch x := v.(type) {
	case starlark.Int:
		n, ok := x.Int64()
		if !ok || n < lo || n > hi {
			return 0, false
		}
		return n, true
	case starlark.Float:
		f := float64(x)
		if f != math.Trunc(f) || f < float64(lo) || f >= -float64(math.MinInt64) || f > float64(hi) {
			return 0, false
		}
		n := int64(f)
		if n < lo || n > hi {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ToUint64 coerces v into [0, hi].
func ToUint64(v starlark.Value, hi uint64) (uint64, bool) {
	switch x := v.(type) {
	case starlark.Int:
		n, ok := x.Uint64()
		if !ok || n > hi {
			return 0, false
		}
		return n, true
	case starlark.Float:
		f := float64(x)
		if f != math.Trunc(f) || f < 0 || f >= 18446744073709551616.0 {
			return 0, false
		}
		n := uint64(f)
		if n > hi {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// ToFloat64 coerces v to a float64. An int converts only when float64
// represents it exactly.
func ToFloat64(v starlark.Value) (float64, bool) {
	switch x := v.(type) {
	case starlark.Float:
		return float64(x), true
	case starlark.Int:
		f, acc := new(big.Float).SetInt(x.BigInt()).Float64()
		return f, acc == big.Exact
	}
	return 0, false
}

// ToFloat32 coerces v to a float32. Floats are rounded, but finite values
// beyond the float32 range do not fit. An int converts only when float32
// represents it exactly.
func ToFloat32(v starlark.Value) (float32, bool) {
	switch x := v.(type) {
	case starlark.Float:
		f := float64(x)
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return 0, false
		}
		return float32(f), true
	case starlark.Int:
		f, acc := new(big.Float).SetInt(x.BigInt()).Float32()
		return f, acc == big.Exact
	}
	return 0, false
}

// CanonicalizeF32 returns canonical NaN for any NaN input.
func CanonicalizeF32(bits uint32) uint32 {
	f := math.Float32frombits(bits)
	if f != f {
		return CanonicalNaN32
	}
	return bits
}

// CanonicalizeF64 returns canonical NaN for any NaN input.
func CanonicalizeF64(bits uint64) uint64 {
	f := math.Float64frombits(bits)
	if f != f {
		return CanonicalNaN64
	}
	return bits
}
