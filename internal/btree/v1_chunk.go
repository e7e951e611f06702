package btree

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// ChunkEntry locates one stored chunk.
type ChunkEntry struct {
	// Offset is the chunk's first element in dataset coordinates.
	Offset []uint64

	// FilterMask has bit i set when pipeline filter i was skipped.
	FilterMask uint32

	// Size is the stored size in bytes. Zero means the unfiltered chunk size.
	Size uint64

	Address uint64
}

// ReadChunks returns the chunks indexed by the version 1 B-tree at addr.
// rank is the dataset rank; keys carry one extra trailing dimension.
func ReadChunks(r *binary.Reader, addr uint64, rank int) ([]ChunkEntry, error) {
	var entries []ChunkEntry
	err := walkChunkNode(r, addr, -1, rank, &entries)
	return entries, err
}

func walkChunkNode(r *binary.Reader, addr uint64, wantLevel, rank int, out *[]ChunkEntry) error {
	keySize := 8 + 8*(rank+1)
	h, d, err := readNode(r, addr, nodeChunk, keySize)
	if err != nil {
		return err
	}
	if wantLevel >= 0 && int(h.level) != wantLevel {
		return fmt.Errorf("B-tree node at 0x%x has level %d, want %d", addr, h.level, wantLevel)
	}

	entries := make([]ChunkEntry, h.entries)
	for i := range entries {
		e := &entries[i]
		e.Size = uint64(d.Uint32())
		e.FilterMask = d.Uint32()
		e.Offset = make([]uint64, rank)
		for j := range e.Offset {
			e.Offset[j] = d.Uint64()
		}
		d.Skip(8)
		e.Address = d.Offset()
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("B-tree node at 0x%x: %w", addr, err)
	}

	for _, e := range entries {
		if h.level > 0 {
			if err := walkChunkNode(r, e.Address, int(h.level)-1, rank, out); err != nil {
				return err
			}
			continue
		}
		if e.Size > 0 && !r.Undefined(e.Address) {
			*out = append(*out, e)
		}
	}
	return nil
}
