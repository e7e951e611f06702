package layout

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/btree"
	"github.com/robert-malhotra/swiftserve/internal/filter"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Chunked represents chunked storage layout.
//
// The chunk index is read once, on first access, and kept sorted by the
// first-dimension offset so that row selections only visit the chunks they
// overlap. The most recently decoded chunk is kept, which makes a run of
// nearby row reads decode each chunk once. A Chunked is not safe for
// concurrent use.
type Chunked struct {
	layout    *message.DataLayout
	dataspace *message.Dataspace
	datatype  *message.Datatype
	pipeline  *filter.Pipeline
	reader    *binary.Reader

	indexed bool
	single  bool
	entries []btree.ChunkEntry

	lastAddr uint64
	lastData []byte
}

// NewChunked creates a new chunked layout handler.
func NewChunked(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	filterPipeline *message.FilterPipeline,
	reader *binary.Reader,
) (*Chunked, error) {
	var pipeline *filter.Pipeline
	if filterPipeline != nil {
		var err error
		pipeline, err = filter.NewPipeline(filterPipeline)
		if err != nil {
			return nil, fmt.Errorf("creating filter pipeline: %w", err)
		}
	}

	return &Chunked{
		layout:    layout,
		dataspace: dataspace,
		datatype:  datatype,
		pipeline:  pipeline,
		reader:    reader,
	}, nil
}

func (c *Chunked) Class() message.LayoutClass {
	return message.LayoutChunked
}

// Read reads the whole dataset.
func (c *Chunked) Read() ([]byte, error) {
	if calculateDataSize(c.dataspace, c.datatype) == 0 {
		return nil, nil
	}
	dims := datasetDims(c.dataspace)
	return c.ReadSlice(make([]uint64, len(dims)), append([]uint64(nil), dims...))
}

// ReadRows reads a block of whole rows.
func (c *Chunked) ReadRows(start, count uint64) ([]byte, error) {
	s, n := rowSelection(datasetDims(c.dataspace), start, count)
	return c.ReadSlice(s, n)
}

// ReadSlice reads a hyperslab from chunked storage. Chunks that were never
// written read as zeros.
func (c *Chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	dims := datasetDims(c.dataspace)
	if err := checkSelection(dims, start, count); err != nil {
		return nil, err
	}
	chunkDims, err := c.chunkExtents(len(dims))
	if err != nil {
		return nil, err
	}
	if err := c.loadIndex(chunkDims); err != nil {
		return nil, err
	}

	elementSize := uint64(c.datatype.Size)
	chunkBytes := elementSize
	for _, d := range chunkDims {
		chunkBytes *= uint64(d)
	}

	if c.single {
		return c.readSingle(dims, chunkDims, start, count, chunkBytes)
	}

	total := elementSize
	for _, n := range count {
		total *= n
	}
	output := make([]byte, total)
	if total == 0 {
		return output, nil
	}

	selEnd0 := start[0] + count[0]
	extent0 := uint64(chunkDims[0])
	first := sort.Search(len(c.entries), func(i int) bool {
		return c.entries[i].Offset[0]+extent0 > start[0]
	})

	for _, entry := range c.entries[first:] {
		if entry.Offset[0] >= selEnd0 {
			break
		}
		if !overlaps(entry.Offset, chunkDims, dims, start, count) {
			continue
		}
		data, err := c.chunkData(entry, chunkBytes)
		if err != nil {
			return nil, fmt.Errorf("reading chunk at offset %v: %w", entry.Offset, err)
		}
		copyOverlap(output, data, entry.Offset, dims, chunkDims, start, count, elementSize)
	}

	return output, nil
}

func (c *Chunked) chunkExtents(ndims int) ([]uint32, error) {
	chunkDims := c.layout.ChunkDims
	if len(chunkDims) == 0 {
		return nil, fmt.Errorf("chunked layout has no chunk dimensions")
	}
	// The chunk dims array may carry a trailing element-size dimension.
	if len(chunkDims) > ndims {
		chunkDims = chunkDims[:ndims]
	}
	if len(chunkDims) < ndims {
		return nil, fmt.Errorf("chunk rank %d does not match dataset rank %d", len(chunkDims), ndims)
	}
	for d, n := range chunkDims {
		if n == 0 {
			return nil, fmt.Errorf("chunk dimension %d is zero", d)
		}
	}
	return chunkDims, nil
}

// loadIndex reads the chunk index on first use.
func (c *Chunked) loadIndex(chunkDims []uint32) error {
	if c.indexed {
		return nil
	}
	if c.reader.Undefined(c.layout.ChunkIndexAddr) {
		c.indexed = true
		return nil
	}
	if c.layout.ChunkIndex == message.ChunkIndexSingle {
		c.single, c.indexed = true, true
		return nil
	}

	entries, err := c.readChunkIndex(chunkDims)
	if err != nil {
		return fmt.Errorf("reading chunk index: %w", err)
	}

	valid := entries[:0]
	for _, e := range entries {
		if len(e.Offset) >= len(chunkDims) {
			valid = append(valid, e)
		}
	}
	sort.SliceStable(valid, func(i, j int) bool {
		return valid[i].Offset[0] < valid[j].Offset[0]
	})

	c.entries = valid
	c.indexed = true
	return nil
}

// readSingle serves a selection from a dataset stored as one chunk.
func (c *Chunked) readSingle(dims []uint64, chunkDims []uint32, start, count []uint64, chunkBytes uint64) ([]byte, error) {
	size := calculateDataSize(c.dataspace, c.datatype)
	if c.pipeline != nil && !c.pipeline.Empty() && c.layout.FilteredChunkSize != 0 {
		size = c.layout.FilteredChunkSize
	}
	data, err := c.chunkData(btree.ChunkEntry{Address: c.layout.ChunkIndexAddr, Size: size}, chunkBytes)
	if err != nil {
		return nil, fmt.Errorf("reading single chunk: %w", err)
	}

	extents := dims
	if uint64(len(data)) == chunkBytes {
		extents = make([]uint64, len(chunkDims))
		for d, n := range chunkDims {
			extents[d] = uint64(n)
		}
	}
	return extractHyperslab(data, extents, start, count, uint64(c.datatype.Size))
}

// chunkData returns the decoded bytes of a chunk, reusing the last decoded
// chunk when the address matches.
func (c *Chunked) chunkData(entry btree.ChunkEntry, chunkBytes uint64) ([]byte, error) {
	if c.lastData != nil && c.lastAddr == entry.Address {
		return c.lastData, nil
	}

	size := entry.Size
	if size == 0 {
		size = chunkBytes
	}
	data, err := c.reader.ReadAt(entry.Address, int(size))
	if err != nil {
		return nil, err
	}
	if c.pipeline != nil && !c.pipeline.Empty() {
		data, err = c.pipeline.Decode(data, entry.FilterMask)
		if err != nil {
			return nil, fmt.Errorf("decoding: %w", err)
		}
	}

	c.lastAddr, c.lastData = entry.Address, data
	return data, nil
}

// overlaps reports whether a chunk at offset intersects the selection.
func overlaps(offset []uint64, chunkDims []uint32, dims, start, count []uint64) bool {
	for d := range dims {
		end := min(offset[d]+uint64(chunkDims[d]), dims[d])
		if end <= start[d] || offset[d] >= start[d]+count[d] {
			return false
		}
	}
	return true
}

// copyOverlap copies the part of a decoded chunk that falls inside the
// selection into output, which holds the selection in row-major order.
func copyOverlap(output, chunk []byte, offset []uint64, dims []uint64, chunkDims []uint32, start, count []uint64, elementSize uint64) {
	ndims := len(dims)
	lo := make([]uint64, ndims)
	hi := make([]uint64, ndims)
	extents := make([]uint64, ndims)
	for d := range dims {
		extents[d] = uint64(chunkDims[d])
		lo[d] = max(start[d], offset[d])
		hi[d] = min(start[d]+count[d], offset[d]+extents[d], dims[d])
	}
	chunkStrides := strides(extents, elementSize)
	outStrides := strides(count, elementSize)

	var walk func(chunkOff, outOff uint64, dim int)
	walk = func(chunkOff, outOff uint64, dim int) {
		if dim == ndims-1 {
			n := (hi[dim] - lo[dim]) * elementSize
			src := chunkOff + (lo[dim]-offset[dim])*elementSize
			dst := outOff + (lo[dim]-start[dim])*elementSize
			if src+n <= uint64(len(chunk)) && dst+n <= uint64(len(output)) {
				copy(output[dst:dst+n], chunk[src:src+n])
			}
			return
		}
		for i := lo[dim]; i < hi[dim]; i++ {
			walk(chunkOff+(i-offset[dim])*chunkStrides[dim], outOff+(i-start[dim])*outStrides[dim], dim+1)
		}
	}
	walk(0, 0, 0)
}
