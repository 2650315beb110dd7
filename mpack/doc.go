// Package mpack implements a type-driven, context-aware MessagePack codec.
//
// mpack is designed around a composable format algebra:
//   - The same value can be packed under different wire formats
//   - Formats are chosen per type, per call-site, or per field
//   - Contexts (named policy tags) scope every format decision
//   - Wrapper formats switch formats and contexts mid-stream
//
// # Formats
//
// A Format is a stateless wire-encoding strategy. The catalog:
//
// Scalars:    Nil, Bool, Signed, Unsigned, Float, String, Binary
// Sequences:  Vector, DynamicVector, BinVector, Array, BinArray
// Maps:       Map, DynamicMap
// Structs:    Struct, UnorderedStruct, FlexibleStruct
// Types:      TypeFormat, Typed(F)
// Wrappers:   Default, Any, Extension(code), AnyExtension, SetContext(C, F)
//
// # Dispatch
//
// For a value of type T, the engine resolves format(T, ctx) through the
// registry (see Register), falling back to a reflection-based default.
// Container formats resolve each element's type and format through
// per-position hooks that may depend on previously decoded entries,
// which is the mechanism behind self-describing Typed values.
//
// # Example
//
//	b, err := mpack.Pack([]any{int64(5), "a", true})
//	// b == []byte{0x93, 0x05, 0xa1, 0x61, 0xc3}
//
//	v, err := mpack.Unpack[[]any](b)
//	// v == []any{int64(5), "a", true}
//
// # Wire Format
//
// Bit-exact MessagePack (spec as of 2023-05) with one tolerance: when
// decoding in Signed format, unsigned encodings (0xcc..0xcf) are
// accepted. The reverse is not: Unsigned rejects signed prefixes.
// Writers always pick the shortest legal encoding for an atom.
package mpack
