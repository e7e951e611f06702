// Package layout provides storage layout handlers for reading HDF5 dataset data.
package layout

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Layout is the interface for reading dataset data from various storage layouts.
type Layout interface {
	// Read reads all data from the layout.
	Read() ([]byte, error)

	// ReadSlice reads a hyperslab (rectangular selection) of the dataset.
	// start specifies the starting coordinates, count specifies elements per dimension.
	// Returns the raw bytes for the selected region in row-major order.
	ReadSlice(start, count []uint64) ([]byte, error)

	// ReadRows reads count whole rows starting at row start. A row is the
	// block of elements sharing one index in the first dimension.
	ReadRows(start, count uint64) ([]byte, error)

	// Class returns the layout class.
	Class() message.LayoutClass
}

// New creates a Layout from a DataLayout message.
func New(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	filterPipeline *message.FilterPipeline,
	reader *binary.Reader,
) (Layout, error) {
	if layout == nil {
		return nil, fmt.Errorf("nil layout message")
	}

	switch layout.Class {
	case message.LayoutCompact:
		return NewCompact(layout, dataspace, datatype), nil

	case message.LayoutContiguous:
		return NewContiguous(layout, dataspace, datatype, reader), nil

	case message.LayoutChunked:
		return NewChunked(layout, dataspace, datatype, filterPipeline, reader)

	default:
		return nil, fmt.Errorf("unsupported layout class: %d", layout.Class)
	}
}

// calculateDataSize calculates the total size of data in bytes.
func calculateDataSize(dataspace *message.Dataspace, datatype *message.Datatype) uint64 {
	if dataspace == nil || datatype == nil {
		return 0
	}
	return dataspace.NumElements() * uint64(datatype.Size)
}

// datasetDims returns the dataspace dimensions, treating a scalar as one element.
func datasetDims(dataspace *message.Dataspace) []uint64 {
	if dataspace == nil || len(dataspace.Dimensions) == 0 {
		return []uint64{1}
	}
	return dataspace.Dimensions
}

// rowSelection expands a row range into a full hyperslab selection.
func rowSelection(dims []uint64, start, count uint64) ([]uint64, []uint64) {
	s := make([]uint64, len(dims))
	c := make([]uint64, len(dims))
	s[0], c[0] = start, count
	for d := 1; d < len(dims); d++ {
		c[d] = dims[d]
	}
	return s, c
}

// rowSize returns the size in bytes of one row.
func rowSize(dims []uint64, elementSize uint64) uint64 {
	n := elementSize
	for _, d := range dims[1:] {
		n *= d
	}
	return n
}

// checkSelection validates a hyperslab against the dataset dimensions.
func checkSelection(dims, start, count []uint64) error {
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("start and count must have %d dimensions, got %d and %d",
			len(dims), len(start), len(count))
	}
	for d := range dims {
		if start[d]+count[d] > dims[d] {
			return fmt.Errorf("slice out of bounds: dimension %d, start=%d, count=%d, size=%d",
				d, start[d], count[d], dims[d])
		}
	}
	return nil
}

// extractHyperslab extracts a rectangular region from data stored in row-major order.
// dims is the full dataset dimensions, start and count specify the selection.
func extractHyperslab(data []byte, dims []uint64, start, count []uint64, elementSize uint64) ([]byte, error) {
	ndims := len(dims)
	if ndims == 0 {
		return nil, fmt.Errorf("cannot extract hyperslab from scalar dataset")
	}

	total := elementSize
	for _, c := range count {
		total *= c
	}
	result := make([]byte, total)

	srcStrides := strides(dims, elementSize)
	dstStrides := strides(count, elementSize)

	var walk func(srcOff, dstOff uint64, dim int)
	walk = func(srcOff, dstOff uint64, dim int) {
		if dim == ndims-1 {
			n := count[dim] * elementSize
			from := srcOff + start[dim]*elementSize
			if from+n <= uint64(len(data)) && dstOff+n <= uint64(len(result)) {
				copy(result[dstOff:dstOff+n], data[from:from+n])
			}
			return
		}
		for i := uint64(0); i < count[dim]; i++ {
			walk(srcOff+(start[dim]+i)*srcStrides[dim], dstOff+i*dstStrides[dim], dim+1)
		}
	}
	walk(0, 0, 0)
	return result, nil
}

// strides returns row-major byte strides for the given extents.
func strides(extents []uint64, elementSize uint64) []uint64 {
	s := make([]uint64, len(extents))
	if len(s) == 0 {
		return s
	}
	s[len(s)-1] = elementSize
	for d := len(s) - 2; d >= 0; d-- {
		s[d] = s[d+1] * extents[d+1]
	}
	return s
}
