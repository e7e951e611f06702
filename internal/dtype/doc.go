// Package dtype decodes raw HDF5 element bytes into Go values.
//
// Element bytes arrive in file byte order, exactly as stored by a layout.
// The decoders here are used for attribute values and other small reads;
// bulk dataset reads keep the raw bytes and hand them to ndarray instead.
//
// # Decoders
//
//   - [Ints] and [Uints]: fixed-point and enum elements of 1, 2, 4 or 8 bytes
//   - [Floats]: floating-point elements, and fixed-point widened to float64
//   - [Strings]: fixed-length and variable-length strings
//   - [Values]: any supported class as a generic value, with compound
//     elements as map[string]any and array elements as []any
//
// Variable-length strings live in the global heap, so [Strings] and
// [Values] take the file reader used to resolve heap references.
//
// # Text
//
// HDF5 strings are byte sequences with a declared character set that is
// frequently wrong in practice. [Text] decodes them as UTF-8 when they are
// valid UTF-8 and as ISO 8859-1 otherwise, so every byte string has a
// printable form.
package dtype
