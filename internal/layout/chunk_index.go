package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/btree"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// chunkGrid maps the linear chunk numbers used by array indexes to chunk
// offsets. Numbering is row-major over the maximum extent of each
// dimension, with an unlimited dimension moved to the front.
type chunkGrid struct {
	chunkDims []uint32
	order     []int
	counts    []uint64
}

func newChunkGrid(ds *message.Dataspace, chunkDims []uint32, lengthSize int) chunkGrid {
	dims := datasetDims(ds)
	g := chunkGrid{chunkDims: chunkDims}
	var rest []int
	for d := range dims {
		if ds != nil && d < len(ds.MaxDims) && binary.Undefined(ds.MaxDims[d], lengthSize) {
			g.order = append(g.order, d)
		} else {
			rest = append(rest, d)
		}
	}
	g.order = append(g.order, rest...)

	g.counts = make([]uint64, len(dims))
	for d, n := range dims {
		if ds != nil && d < len(ds.MaxDims) && !binary.Undefined(ds.MaxDims[d], lengthSize) && ds.MaxDims[d] > n {
			n = ds.MaxDims[d]
		}
		g.counts[d] = (n + uint64(chunkDims[d]) - 1) / uint64(chunkDims[d])
	}
	return g
}

// len returns the number of chunks in the grid.
func (g chunkGrid) len() uint64 {
	n := uint64(1)
	for _, c := range g.counts {
		n *= c
	}
	return n
}

// offset returns the element offset of chunk number i.
func (g chunkGrid) offset(i uint64) []uint64 {
	off := make([]uint64, len(g.counts))
	for k := len(g.order) - 1; k >= 0; k-- {
		d := g.order[k]
		if k == 0 {
			off[d] = i * uint64(g.chunkDims[d])
			break
		}
		off[d] = (i % g.counts[d]) * uint64(g.chunkDims[d])
		i /= g.counts[d]
	}
	return off
}

// readChunkIndex returns the stored chunks named by the dataset's chunk
// index. It does not handle the single-chunk index.
func (c *Chunked) readChunkIndex(chunkDims []uint32) ([]btree.ChunkEntry, error) {
	addr := c.layout.ChunkIndexAddr
	switch c.layout.ChunkIndex {
	case message.ChunkIndexBTreeV1:
		return btree.ReadChunks(c.reader, addr, len(chunkDims))
	case message.ChunkIndexBTreeV2:
		return btree.ReadChunksV2(c.reader, addr, chunkDims)
	case message.ChunkIndexImplicit:
		return c.readImplicit(chunkDims)
	case message.ChunkIndexFixedArray:
		return c.readFixedArray(chunkDims)
	case message.ChunkIndexExtensibleArray:
		return c.readExtensibleArray(chunkDims)
	default:
		return nil, fmt.Errorf("unsupported chunk index type %d", c.layout.ChunkIndex)
	}
}

func (c *Chunked) grid(chunkDims []uint32) chunkGrid {
	return newChunkGrid(c.dataspace, chunkDims, c.reader.LengthSize())
}

// readImplicit lists the chunks of an implicit index, which are stored
// back to back in chunk number order.
func (c *Chunked) readImplicit(chunkDims []uint32) ([]btree.ChunkEntry, error) {
	chunkBytes := uint64(c.datatype.Size)
	for _, n := range chunkDims {
		chunkBytes *= uint64(n)
	}
	g := c.grid(chunkDims)
	entries := make([]btree.ChunkEntry, g.len())
	for i := range entries {
		entries[i] = btree.ChunkEntry{
			Offset:  g.offset(uint64(i)),
			Address: c.layout.ChunkIndexAddr + uint64(i)*chunkBytes,
		}
	}
	return entries, nil
}

// arrayElement decodes the chunk record held by one fixed or extensible
// array element. Filtered records carry a stored size and filter mask.
type arrayElement struct {
	size     int
	filtered bool
}

func (e arrayElement) decode(d *binary.Decoder) btree.ChunkEntry {
	entry := btree.ChunkEntry{Address: d.Offset()}
	if e.filtered {
		entry.Size = d.Uint(e.size - d.Sizes().Offset - 4)
		entry.FilterMask = d.Uint32()
	}
	return entry
}

func newArrayElement(client uint8, size int, offsetSize int) (arrayElement, error) {
	switch client {
	case 0:
		if size != offsetSize {
			return arrayElement{}, fmt.Errorf("element size %d for unfiltered chunks", size)
		}
		return arrayElement{size: size}, nil
	case 1:
		if n := size - offsetSize - 4; n < 1 || n > 8 {
			return arrayElement{}, fmt.Errorf("element size %d for filtered chunks", size)
		}
		return arrayElement{size: size, filtered: true}, nil
	default:
		return arrayElement{}, fmt.Errorf("array client %d", client)
	}
}

// collect appends the element for chunk number i when it is allocated.
func (c *Chunked) collect(out []btree.ChunkEntry, g chunkGrid, i uint64, e btree.ChunkEntry) []btree.ChunkEntry {
	if e.Address == 0 || c.reader.Undefined(e.Address) {
		return out
	}
	e.Offset = g.offset(i)
	return append(out, e)
}

// readChecked reads a block that ends with a checksum and verifies it.
func readChecked(r *binary.Reader, addr uint64, n int, what string) (*binary.Decoder, error) {
	buf, err := r.ReadAt(addr, n)
	if err != nil {
		return nil, fmt.Errorf("%s at 0x%x: %w", what, addr, err)
	}
	if !binary.VerifyLookup3(buf) {
		return nil, fmt.Errorf("%s at 0x%x: checksum mismatch", what, addr)
	}
	return r.Decode(buf), nil
}

// readFixedArray lists the chunks of a fixed array index.
func (c *Chunked) readFixedArray(chunkDims []uint32) ([]btree.ChunkEntry, error) {
	r := c.reader
	addr := c.layout.ChunkIndexAddr
	d, err := readChecked(r, addr, 12+r.LengthSize()+r.OffsetSize(), "fixed array header")
	if err != nil {
		return nil, err
	}
	d.Expect("FAHD")
	if v := d.Uint8(); v != 0 {
		d.Failf("fixed array version %d", v)
	}
	client := d.Uint8()
	elemSize := int(d.Uint8())
	pageBits := d.Uint8()
	n := d.Length()
	blockAddr := d.Offset()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("fixed array header at 0x%x: %w", addr, err)
	}
	elem, err := newArrayElement(client, elemSize, r.OffsetSize())
	if err != nil {
		return nil, fmt.Errorf("fixed array header at 0x%x: %w", addr, err)
	}
	if r.Undefined(blockAddr) {
		return nil, nil
	}

	g := c.grid(chunkDims)
	prefix := 6 + r.OffsetSize()
	pageLen := uint64(1) << pageBits
	if n <= pageLen {
		d, err := readChecked(r, blockAddr, prefix+int(n)*elemSize+4, "fixed array data block")
		if err != nil {
			return nil, err
		}
		d.Expect("FADB")
		d.Seek(prefix)
		var out []btree.ChunkEntry
		for i := uint64(0); i < n; i++ {
			out = c.collect(out, g, i, elem.decode(d))
		}
		return out, d.Err()
	}

	// Paged: the block holds a bitmap of initialized pages, and the pages
	// follow it, each with its own checksum.
	pages := (n + pageLen - 1) / pageLen
	maskLen := int((pages + 7) / 8)
	d, err = readChecked(r, blockAddr, prefix+maskLen+4, "fixed array data block")
	if err != nil {
		return nil, err
	}
	d.Expect("FADB")
	d.Seek(prefix)
	mask := d.Bytes(maskLen)
	if err := d.Err(); err != nil {
		return nil, err
	}

	var out []btree.ChunkEntry
	pageAddr := blockAddr + uint64(prefix+maskLen+4)
	for p := uint64(0); p < pages; p++ {
		count := min(pageLen, n-p*pageLen)
		size := int(count)*elemSize + 4
		if mask[p/8]&(0x80>>(p%8)) != 0 {
			pd, err := readChecked(r, pageAddr, size, "fixed array page")
			if err != nil {
				return nil, err
			}
			for i := uint64(0); i < count; i++ {
				out = c.collect(out, g, p*pageLen+i, elem.decode(pd))
			}
			if err := pd.Err(); err != nil {
				return nil, err
			}
		}
		pageAddr += uint64(pageLen)*uint64(elemSize) + 4
	}
	return out, nil
}

// extensibleArray holds the parameters of an extensible array header.
type extensibleArray struct {
	r         *binary.Reader
	elem      arrayElement
	pageBits  uint8
	offWidth  int // width of a block's array offset
	dblkMin   uint64
	sblkMin   uint64
	maxIndex  uint64
	grid      chunkGrid
	nextIndex uint64
	out       []btree.ChunkEntry
}

// superBlock describes the data blocks addressed by one super block slot.
type superBlock struct {
	ndblks     uint64
	dblkLen    uint64
	firstIndex uint64
}

func (a *extensibleArray) superBlocks(maxBits uint8) []superBlock {
	n := 1 + int(maxBits) - bits.Len64(a.dblkMin) + 1
	sb := make([]superBlock, max(n, 0))
	var idx uint64
	for u := range sb {
		sb[u] = superBlock{
			ndblks:     1 << (u / 2),
			dblkLen:    (1 << ((u + 1) / 2)) * a.dblkMin,
			firstIndex: idx,
		}
		idx += sb[u].ndblks * sb[u].dblkLen
	}
	return sb
}

// readExtensibleArray lists the chunks of an extensible array index.
func (c *Chunked) readExtensibleArray(chunkDims []uint32) ([]btree.ChunkEntry, error) {
	r := c.reader
	addr := c.layout.ChunkIndexAddr
	d, err := readChecked(r, addr, 16+6*r.LengthSize()+r.OffsetSize(), "extensible array header")
	if err != nil {
		return nil, err
	}
	d.Expect("EAHD")
	if v := d.Uint8(); v != 0 {
		d.Failf("extensible array version %d", v)
	}
	client := d.Uint8()
	elemSize := int(d.Uint8())
	maxBits := d.Uint8()
	iblkLen := uint64(d.Uint8())
	a := &extensibleArray{r: r, grid: c.grid(chunkDims)}
	a.dblkMin = uint64(d.Uint8())
	a.sblkMin = uint64(d.Uint8())
	a.pageBits = d.Uint8()
	for i := 0; i < 4; i++ {
		d.Length() // block statistics
	}
	a.maxIndex = d.Length()
	d.Length() // elements realized
	iblkAddr := d.Offset()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("extensible array header at 0x%x: %w", addr, err)
	}
	if a.elem, err = newArrayElement(client, elemSize, r.OffsetSize()); err != nil {
		return nil, fmt.Errorf("extensible array header at 0x%x: %w", addr, err)
	}
	if a.dblkMin == 0 || a.dblkMin&(a.dblkMin-1) != 0 || a.sblkMin == 0 || a.sblkMin&(a.sblkMin-1) != 0 {
		return nil, fmt.Errorf("extensible array header at 0x%x: block sizes must be powers of two", addr)
	}
	if r.Undefined(iblkAddr) {
		return nil, nil
	}
	a.offWidth = (int(maxBits) + 7) / 8

	sblks := a.superBlocks(maxBits)
	inIndex := 2 * (bits.Len64(a.sblkMin) - 1)
	ndblkAddrs := 2 * (a.sblkMin - 1)
	nsblkAddrs := max(len(sblks)-inIndex, 0)

	prefix := 6 + r.OffsetSize()
	size := prefix + int(iblkLen)*elemSize + int(ndblkAddrs)*r.OffsetSize() + nsblkAddrs*r.OffsetSize() + 4
	d, err = readChecked(r, iblkAddr, size, "extensible array index block")
	if err != nil {
		return nil, err
	}
	d.Expect("EAIB")
	d.Seek(prefix)
	for i := uint64(0); i < iblkLen; i++ {
		a.add(i, a.elem.decode(d))
	}
	dblkAddrs := make([]uint64, ndblkAddrs)
	for i := range dblkAddrs {
		dblkAddrs[i] = d.Offset()
	}
	sblkAddrs := make([]uint64, nsblkAddrs)
	for i := range sblkAddrs {
		sblkAddrs[i] = d.Offset()
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("extensible array index block at 0x%x: %w", iblkAddr, err)
	}

	next := 0
	for u := 0; u < inIndex && u < len(sblks); u++ {
		for k := uint64(0); k < sblks[u].ndblks; k++ {
			first := iblkLen + sblks[u].firstIndex + k*sblks[u].dblkLen
			if err := a.readDataBlock(dblkAddrs[next], first, sblks[u].dblkLen, nil); err != nil {
				return nil, err
			}
			next++
		}
	}
	for i, sa := range sblkAddrs {
		if err := a.readSuperBlock(sa, sblks[inIndex+i], iblkLen); err != nil {
			return nil, err
		}
	}
	return a.out, nil
}

func (a *extensibleArray) add(i uint64, e btree.ChunkEntry) {
	if i >= a.maxIndex || e.Address == 0 || a.r.Undefined(e.Address) {
		return
	}
	e.Offset = a.grid.offset(i)
	a.out = append(a.out, e)
}

func (a *extensibleArray) pageLen() uint64 { return 1 << a.pageBits }

func (a *extensibleArray) paged(dblkLen uint64) bool { return dblkLen > a.pageLen() }

// readSuperBlock reads the data blocks listed by the super block at addr.
func (a *extensibleArray) readSuperBlock(addr uint64, sb superBlock, iblkLen uint64) error {
	if a.r.Undefined(addr) || iblkLen+sb.firstIndex >= a.maxIndex {
		return nil
	}
	maskLen := 0
	if a.paged(sb.dblkLen) {
		maskLen = int((sb.dblkLen/a.pageLen() + 7) / 8)
	}
	prefix := 6 + a.r.OffsetSize() + a.offWidth
	size := prefix + int(sb.ndblks)*(maskLen+a.r.OffsetSize()) + 4
	d, err := readChecked(a.r, addr, size, "extensible array super block")
	if err != nil {
		return err
	}
	d.Expect("EASB")
	d.Seek(prefix)
	masks := make([][]byte, sb.ndblks)
	for k := range masks {
		masks[k] = d.Bytes(maskLen)
	}
	addrs := make([]uint64, sb.ndblks)
	for k := range addrs {
		addrs[k] = d.Offset()
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("extensible array super block at 0x%x: %w", addr, err)
	}
	for k, da := range addrs {
		first := iblkLen + sb.firstIndex + uint64(k)*sb.dblkLen
		if err := a.readDataBlock(da, first, sb.dblkLen, masks[k]); err != nil {
			return err
		}
	}
	return nil
}

// readDataBlock reads the elements of the data block at addr, whose first
// element is array index first. Paged blocks only read pages set in mask.
func (a *extensibleArray) readDataBlock(addr, first, n uint64, mask []byte) error {
	if a.r.Undefined(addr) || first >= a.maxIndex {
		return nil
	}
	prefix := 6 + a.r.OffsetSize() + a.offWidth
	if !a.paged(n) {
		d, err := readChecked(a.r, addr, prefix+int(n)*a.elem.size+4, "extensible array data block")
		if err != nil {
			return err
		}
		d.Expect("EADB")
		d.Seek(prefix)
		for i := uint64(0); i < n; i++ {
			a.add(first+i, a.elem.decode(d))
		}
		return d.Err()
	}

	pageLen := a.pageLen()
	pageAddr := addr + uint64(prefix) + 4
	for p := uint64(0); p < n/pageLen; p++ {
		if first+p*pageLen >= a.maxIndex {
			break
		}
		if mask == nil || mask[p/8]&(0x80>>(p%8)) != 0 {
			d, err := readChecked(a.r, pageAddr, int(pageLen)*a.elem.size+4, "extensible array page")
			if err != nil {
				return err
			}
			for i := uint64(0); i < pageLen; i++ {
				a.add(first+p*pageLen+i, a.elem.decode(d))
			}
			if err := d.Err(); err != nil {
				return err
			}
		}
		pageAddr += pageLen*uint64(a.elem.size) + 4
	}
	return nil
}
