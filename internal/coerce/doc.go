// Package coerce converts Starlark numbers to fixed-width host numbers with
// range checking.
//
// Integer targets accept starlark.Int and integral starlark.Float values.
// Float targets accept starlark.Float and starlark.Int. Bool is never a
// number here. A false result means the value does not fit the target.
package coerce
