package layout

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Contiguous represents contiguous storage layout.
// Data is stored in a single contiguous block in the file.
type Contiguous struct {
	address   uint64
	size      uint64
	dataspace *message.Dataspace
	datatype  *message.Datatype
	reader    *binary.Reader
}

// NewContiguous creates a new contiguous layout handler.
func NewContiguous(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	reader *binary.Reader,
) *Contiguous {
	size := layout.Size
	if size == 0 {
		size = calculateDataSize(dataspace, datatype)
	}

	return &Contiguous{
		address:   layout.Address,
		size:      size,
		dataspace: dataspace,
		datatype:  datatype,
		reader:    reader,
	}
}

func (c *Contiguous) Class() message.LayoutClass {
	return message.LayoutContiguous
}

// Read reads all data from contiguous storage.
func (c *Contiguous) Read() ([]byte, error) {
	return c.readSpan(0, c.size)
}

// ReadRows reads a block of whole rows. Only the bytes of the block are
// touched on disk.
func (c *Contiguous) ReadRows(start, count uint64) ([]byte, error) {
	dims := datasetDims(c.dataspace)
	if start+count > dims[0] {
		return nil, fmt.Errorf("rows [%d, %d) out of bounds for %d rows", start, start+count, dims[0])
	}
	rs := rowSize(dims, uint64(c.datatype.Size))
	return c.readSpan(start*rs, count*rs)
}

// ReadSlice reads a hyperslab by reading the covering row block and
// projecting the trailing dimensions in memory.
func (c *Contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	dims := datasetDims(c.dataspace)
	if err := checkSelection(dims, start, count); err != nil {
		return nil, err
	}

	block, err := c.ReadRows(start[0], count[0])
	if err != nil {
		return nil, err
	}

	blockDims := append([]uint64{count[0]}, dims[1:]...)
	blockStart := append([]uint64{0}, start[1:]...)
	return extractHyperslab(block, blockDims, blockStart, count, uint64(c.datatype.Size))
}

// Span returns the absolute file offset and length in bytes of a row block.
func (c *Contiguous) Span(start, count uint64) (int64, int64) {
	rs := rowSize(datasetDims(c.dataspace), uint64(c.datatype.Size))
	return int64(c.address + start*rs), int64(count * rs)
}

func (c *Contiguous) readSpan(off, n uint64) ([]byte, error) {
	if c.reader.Undefined(c.address) {
		return nil, fmt.Errorf("contiguous data not allocated")
	}
	if n == 0 {
		return []byte{}, nil
	}
	if off+n > c.size {
		return nil, fmt.Errorf("read of %d bytes at %d exceeds contiguous block of %d bytes", n, off, c.size)
	}

	data, err := c.reader.ReadAt(c.address+off, int(n))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data: %w", err)
	}
	return data, nil
}

// Address returns the data address.
func (c *Contiguous) Address() uint64 {
	return c.address
}

// Size returns the data size in bytes.
func (c *Contiguous) Size() uint64 {
	return c.size
}
