// Package layout provides the layout arithmetic shared by host types and
// the translator.
//
// # Layout Rules
//
//   - Primitives: size equals alignment (u8=1, u32=4, u64=8, etc.)
//   - Records: fields laid out sequentially with padding for alignment
//   - Enums: smallest unsigned integer that holds the largest case value
//   - Strings, arrays, sets, maps: (pointer, length) pair, content elsewhere
//   - Object references: (handle, generation) pair
//
// # Usage
//
//	offs, info := layout.Record([]layout.Info{{Size: 4, Align: 4}, {Size: 1, Align: 1}})
//	// offs = [0 4], info = {Size: 8, Align: 4}
package layout
