package layout

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Compact represents compact storage layout.
// Data is stored directly in the object header.
type Compact struct {
	data      []byte
	dataspace *message.Dataspace
	datatype  *message.Datatype
}

// NewCompact creates a new compact layout handler.
func NewCompact(layout *message.DataLayout, dataspace *message.Dataspace, datatype *message.Datatype) *Compact {
	return &Compact{
		data:      layout.CompactData,
		dataspace: dataspace,
		datatype:  datatype,
	}
}

func (c *Compact) Class() message.LayoutClass {
	return message.LayoutCompact
}

// Read returns a copy of the compact data stored in the object header.
func (c *Compact) Read() ([]byte, error) {
	return append([]byte(nil), c.data...), nil
}

// Size returns the size of the compact data.
func (c *Compact) Size() int {
	return len(c.data)
}

// ReadRows returns a copy of a block of whole rows.
func (c *Compact) ReadRows(start, count uint64) ([]byte, error) {
	dims := datasetDims(c.dataspace)
	if start+count > dims[0] {
		return nil, fmt.Errorf("rows [%d, %d) out of bounds for %d rows", start, start+count, dims[0])
	}
	rs := rowSize(dims, uint64(c.datatype.Size))
	from, to := start*rs, (start+count)*rs
	if to > uint64(len(c.data)) {
		return nil, fmt.Errorf("compact data holds %d bytes, need %d", len(c.data), to)
	}
	return append([]byte(nil), c.data[from:to]...), nil
}

// ReadSlice reads a hyperslab from compact storage.
func (c *Compact) ReadSlice(start, count []uint64) ([]byte, error) {
	if c.dataspace == nil || len(c.dataspace.Dimensions) == 0 {
		if len(start) == 0 && len(count) == 0 {
			return c.Read()
		}
		return nil, fmt.Errorf("cannot slice scalar dataset with non-empty start/count")
	}

	dims := c.dataspace.Dimensions
	if err := checkSelection(dims, start, count); err != nil {
		return nil, err
	}
	return extractHyperslab(c.data, dims, start, count, uint64(c.datatype.Size))
}
