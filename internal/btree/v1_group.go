// Package btree walks the B-trees that index old-style group members and
// dataset chunks.
package btree

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/heap"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

const (
	nodeGroup = 0
	nodeChunk = 1
)

// Symbol table entry cache types.
const (
	cacheNone     = 0
	cacheObject   = 1
	cacheSoftLink = 2
)

// GroupEntry is one member of a symbol-table group.
type GroupEntry struct {
	Name          string
	ObjectAddress uint64
	LinkType      message.LinkType
	SoftLinkValue string
}

// nodeHeader is the fixed prefix of a version 1 B-tree node.
type nodeHeader struct {
	level   uint8
	entries int
}

// readNode reads a version 1 node of the given type at addr and returns a
// decoder positioned at its first key. keySize is the size of one key.
func readNode(r *binary.Reader, addr uint64, typ uint8, keySize int) (nodeHeader, *binary.Decoder, error) {
	prefix := 8 + 2*r.OffsetSize()
	d, err := r.Decoder(addr, prefix)
	if err != nil {
		return nodeHeader{}, nil, fmt.Errorf("B-tree node at 0x%x: %w", addr, err)
	}
	d.Expect("TREE")
	if t := d.Uint8(); t != typ {
		d.Failf("node type %d, want %d", t, typ)
	}
	h := nodeHeader{level: d.Uint8(), entries: int(d.Uint16())}
	if err := d.Err(); err != nil {
		return nodeHeader{}, nil, fmt.Errorf("B-tree node at 0x%x: %w", addr, err)
	}

	size := prefix + h.entries*(keySize+r.OffsetSize()) + keySize
	d, err = r.Decoder(addr, size)
	if err != nil {
		return nodeHeader{}, nil, fmt.Errorf("B-tree node at 0x%x: %w", addr, err)
	}
	d.Seek(prefix)
	return h, d, nil
}

// ReadGroupEntries returns the members of the group whose B-tree is at
// btreeAddr, in B-tree order. Names are resolved through names.
func ReadGroupEntries(r *binary.Reader, btreeAddr uint64, names *heap.Local) ([]GroupEntry, error) {
	var entries []GroupEntry
	err := walkGroupNode(r, btreeAddr, -1, names, &entries)
	return entries, err
}

func walkGroupNode(r *binary.Reader, addr uint64, wantLevel int, names *heap.Local, out *[]GroupEntry) error {
	h, d, err := readNode(r, addr, nodeGroup, r.LengthSize())
	if err != nil {
		return err
	}
	if wantLevel >= 0 && int(h.level) != wantLevel {
		return fmt.Errorf("B-tree node at 0x%x has level %d, want %d", addr, h.level, wantLevel)
	}

	children := make([]uint64, h.entries)
	for i := range children {
		d.Length()
		children[i] = d.Offset()
	}
	if err := d.Err(); err != nil {
		return fmt.Errorf("B-tree node at 0x%x: %w", addr, err)
	}

	for _, child := range children {
		if h.level > 0 {
			err = walkGroupNode(r, child, int(h.level)-1, names, out)
		} else {
			err = readSymbolNode(r, child, names, out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// readSymbolNode appends the entries of the SNOD at addr.
func readSymbolNode(r *binary.Reader, addr uint64, names *heap.Local, out *[]GroupEntry) error {
	d, err := r.Decoder(addr, 8)
	if err != nil {
		return fmt.Errorf("symbol table node at 0x%x: %w", addr, err)
	}
	d.Expect("SNOD")
	if v := d.Uint8(); v != 1 {
		d.Failf("symbol table node version %d", v)
	}
	d.Skip(1)
	n := int(d.Uint16())
	if err := d.Err(); err != nil {
		return fmt.Errorf("symbol table node at 0x%x: %w", addr, err)
	}

	entrySize := 2*r.OffsetSize() + 24
	d, err = r.Decoder(addr, 8+n*entrySize)
	if err != nil {
		return fmt.Errorf("symbol table node at 0x%x: %w", addr, err)
	}
	d.Seek(8)
	for i := 0; i < n; i++ {
		nameOff := d.Offset()
		objAddr := d.Offset()
		cache := d.Uint32()
		d.Skip(4)
		scratch := d.Bytes(16)
		if err := d.Err(); err != nil {
			return fmt.Errorf("symbol table node at 0x%x, entry %d: %w", addr, i, err)
		}

		name, err := names.String(nameOff)
		if err != nil {
			return fmt.Errorf("symbol table node at 0x%x, entry %d: %w", addr, i, err)
		}
		if name == "" {
			continue
		}
		e := GroupEntry{Name: name, ObjectAddress: objAddr, LinkType: message.LinkHard}
		if cache == cacheSoftLink {
			target, err := names.String(binary.Uint(scratch[:4]))
			if err != nil {
				return fmt.Errorf("soft link %q: %w", name, err)
			}
			e.LinkType = message.LinkSoft
			e.SoftLinkValue = target
			e.ObjectAddress = 0
		}
		*out = append(*out, e)
	}
	return nil
}
