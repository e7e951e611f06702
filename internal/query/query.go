// Package query reads fields of a snapshot file into typed arrays, either
// whole or through a row-range mask, optionally projected to a subset of
// the field's components.
//
// The engine never touches the file format directly. It opens a Source
// through an Opener, looks a field up as a RangeReader and asks it to gather
// row ranges into a buffer the engine has sized. HDF5Opener is the
// production implementation.
package query

import (
	"errors"
	"io"

	"github.com/robert-malhotra/swiftserve/ndarray"
)

// ErrNoField is returned by Source.Field when the name does not refer to a
// readable field.
var ErrNoField = errors.New("no such field")

// Range is a half-open row interval [Start, End) over a field's first
// dimension.
type Range struct {
	Start, End int64
}

// Len returns the number of rows in the range.
func (r Range) Len() int64 { return r.End - r.Start }

// Mask is an ordered list of row ranges plus the number of rows the caller
// expects them to select. Ranges are gathered in the order given; overlaps
// are not merged.
type Mask struct {
	Ranges []Range
	Size   int
}

// Rows returns the number of rows the ranges select.
func (m Mask) Rows() int64 {
	var n int64
	for _, r := range m.Ranges {
		n += r.Len()
	}
	return n
}

// Columns selects components of a multi-component field. A nil selector
// keeps every component; a single index yields one value per row.
type Columns []int

// Column selects one component.
func Column(i int) Columns { return Columns{i} }

// FieldInfo describes a field without reading its data.
type FieldInfo struct {
	DType ndarray.DType
	Dims  []uint64
}

// Rows returns the extent of the first dimension. A scalar field has one
// row.
func (fi FieldInfo) Rows() int64 {
	if len(fi.Dims) == 0 {
		return 1
	}
	return int64(fi.Dims[0])
}

// Components returns the number of values per row.
func (fi FieldInfo) Components() int {
	n := 1
	if len(fi.Dims) > 1 {
		for _, d := range fi.Dims[1:] {
			n *= int(d)
		}
	}
	return n
}

// MultiComponent reports whether rows hold more than a single value.
func (fi FieldInfo) MultiComponent() bool {
	return len(fi.Dims) > 1
}

// RangeReader gathers row ranges of one field.
type RangeReader interface {
	Info() FieldInfo
	// ReadRanges copies the rows of each range, in order, into dst and
	// returns the number of bytes written. With columns set only those
	// components are copied per row. Bytes keep the field's byte order.
	ReadRanges(ranges []Range, columns []int, dst []byte) (int, error)
}

// Source is an open snapshot file.
type Source interface {
	io.Closer
	// Field looks up a field by slash-separated path. Missing fields
	// return an error wrapping ErrNoField.
	Field(name string) (RangeReader, error)
}

// Opener opens snapshot files read-only.
type Opener interface {
	Open(path string) (Source, error)
}
