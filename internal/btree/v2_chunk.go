package btree

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// Version 2 B-tree record types for chunk indexes.
const (
	typeChunk         = 10
	typeFilteredChunk = 11
)

// signature, version, type and checksum
const v2NodePrefix = 10

type v2Tree struct {
	r          *binary.Reader
	typ        uint8
	nodeSize   int
	recordSize int
	depth      int
	chunkDims  []uint32
	sizeWidth  int   // width of a filtered record's size field
	nrecWidth  int   // width of a child's record count
	totalWidth []int // width of a child's total record count, by depth
}

// ReadChunksV2 returns the chunks indexed by the version 2 B-tree whose
// header is at addr. chunkDims has one entry per dataset dimension; records
// store chunk offsets scaled by it.
func ReadChunksV2(r *binary.Reader, addr uint64, chunkDims []uint32) ([]ChunkEntry, error) {
	size := 22 + r.OffsetSize() + r.LengthSize()
	buf, err := r.ReadAt(addr, size)
	if err != nil {
		return nil, fmt.Errorf("B-tree v2 header at 0x%x: %w", addr, err)
	}
	if !binary.VerifyLookup3(buf) {
		return nil, fmt.Errorf("B-tree v2 header at 0x%x: checksum mismatch", addr)
	}

	d := r.Decode(buf)
	d.Expect("BTHD")
	if v := d.Uint8(); v != 0 {
		d.Failf("B-tree v2 version %d", v)
	}
	t := &v2Tree{r: r, typ: d.Uint8(), chunkDims: chunkDims}
	t.nodeSize = int(d.Uint32())
	t.recordSize = int(d.Uint16())
	t.depth = int(d.Uint16())
	d.Skip(2) // split and merge percentages
	root := d.Offset()
	rootRecords := int(d.Uint16())
	total := d.Length()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("B-tree v2 header at 0x%x: %w", addr, err)
	}

	rank := len(chunkDims)
	switch t.typ {
	case typeChunk:
		if t.recordSize != r.OffsetSize()+8*rank {
			return nil, fmt.Errorf("B-tree v2 record size %d for rank %d", t.recordSize, rank)
		}
	case typeFilteredChunk:
		t.sizeWidth = t.recordSize - r.OffsetSize() - 4 - 8*rank
		if t.sizeWidth < 1 || t.sizeWidth > 8 {
			return nil, fmt.Errorf("B-tree v2 record size %d for rank %d", t.recordSize, rank)
		}
	default:
		return nil, fmt.Errorf("B-tree v2 type %d does not index chunks", t.typ)
	}
	if t.recordSize == 0 || t.nodeSize <= v2NodePrefix {
		return nil, fmt.Errorf("B-tree v2 node size %d", t.nodeSize)
	}
	if total == 0 || r.Undefined(root) {
		return nil, nil
	}
	t.sizeNodes()

	var entries []ChunkEntry
	if err := t.walk(root, rootRecords, t.depth, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// encodedWidth is the number of bytes needed to store n.
func encodedWidth(n uint64) int {
	return (bits.Len64(n)-1)/8 + 1
}

// sizeNodes derives the widths of the record counts stored with child
// pointers, which depend on how many records each node level can hold.
func (t *v2Tree) sizeNodes() {
	maxLeaf := uint64((t.nodeSize - v2NodePrefix) / t.recordSize)
	t.nrecWidth = encodedWidth(maxLeaf)
	t.totalWidth = make([]int, t.depth+1)

	cum := maxLeaf
	for u := 1; u <= t.depth; u++ {
		ptr := t.pointerSize(u)
		maxInt := uint64((t.nodeSize - v2NodePrefix - ptr) / (t.recordSize + ptr))
		cum = (maxInt+1)*cum + maxInt
		t.totalWidth[u] = encodedWidth(cum)
	}
}

func (t *v2Tree) pointerSize(depth int) int {
	n := t.r.OffsetSize() + t.nrecWidth
	if depth > 1 {
		n += t.totalWidth[depth-1]
	}
	return n
}

func (t *v2Tree) walk(addr uint64, nrec, depth int, out *[]ChunkEntry) error {
	sig := "BTLF"
	if depth > 0 {
		sig = "BTIN"
	}
	d, err := t.r.Decoder(addr, t.nodeSize)
	if err != nil {
		return fmt.Errorf("B-tree v2 node at 0x%x: %w", addr, err)
	}
	d.Expect(sig)
	if v := d.Uint8(); v != 0 {
		d.Failf("node version %d", v)
	}
	if typ := d.Uint8(); typ != t.typ {
		d.Failf("node type %d, want %d", typ, t.typ)
	}

	for i := 0; i < nrec; i++ {
		e := t.record(d)
		if e.Address != 0 && !t.r.Undefined(e.Address) {
			*out = append(*out, e)
		}
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("B-tree v2 node at 0x%x: %w", addr, err)
	}
	if depth == 0 {
		return nil
	}

	type child struct {
		addr uint64
		nrec int
	}
	children := make([]child, nrec+1)
	for i := range children {
		children[i].addr = d.Offset()
		children[i].nrec = int(d.Uint(t.nrecWidth))
		if depth > 1 {
			d.Uint(t.totalWidth[depth-1])
		}
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("B-tree v2 node at 0x%x: %w", addr, err)
	}
	for _, c := range children {
		if err := t.walk(c.addr, c.nrec, depth-1, out); err != nil {
			return err
		}
	}
	return nil
}

// record decodes one chunk record, scaling its offsets to element
// coordinates.
func (t *v2Tree) record(d *binary.Decoder) ChunkEntry {
	e := ChunkEntry{Address: d.Offset()}
	if t.typ == typeFilteredChunk {
		e.Size = d.Uint(t.sizeWidth)
		e.FilterMask = d.Uint32()
	}
	e.Offset = make([]uint64, len(t.chunkDims))
	for i, n := range t.chunkDims {
		e.Offset[i] = d.Uint64() * uint64(n)
	}
	return e
}
