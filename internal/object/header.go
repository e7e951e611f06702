// Package object reads HDF5 object headers, the list of messages that
// describes each group and dataset.
package object

import (
	"errors"
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

var (
	ErrUnsupportedVersion = errors.New("unsupported object header version")
	ErrChecksum           = errors.New("object header checksum mismatch")
)

// maxBlocks bounds the number of continuation blocks followed for one
// header.
const maxBlocks = 4096

// Header is a decoded object header.
type Header struct {
	Version  uint8
	Address  uint64
	Messages []message.Message
}

// Read decodes the object header at addr, following continuation blocks.
func Read(r *binary.Reader, addr uint64) (*Header, error) {
	probe, err := r.ReadAt(addr, 4)
	if err != nil {
		return nil, fmt.Errorf("object header at 0x%x: %w", addr, err)
	}

	var h *Header
	if string(probe) == signatureV2 {
		h, err = readV2(r, addr)
	} else if probe[0] == 1 {
		h, err = readV1(r, addr)
	} else {
		return nil, fmt.Errorf("object header at 0x%x: %w %d", addr, ErrUnsupportedVersion, probe[0])
	}
	if err != nil {
		return nil, fmt.Errorf("object header at 0x%x: %w", addr, err)
	}
	return h, nil
}

// block is a run of messages, from the header itself or a continuation.
type block struct {
	addr uint64
	size uint64
}

// collector gathers messages across blocks and queues continuations.
type collector struct {
	h       *Header
	sizes   binary.Sizes
	pending []block
	seen    map[uint64]bool
}

func newCollector(h *Header, sizes binary.Sizes) *collector {
	return &collector{h: h, sizes: sizes, seen: map[uint64]bool{h.Address: true}}
}

func (c *collector) add(typ message.Type, flags uint8, body []byte) error {
	if typ == message.TypeNIL {
		return nil
	}
	m, err := message.Parse(typ, flags, body, c.sizes)
	if err != nil {
		// An unreadable attribute should not hide the object itself.
		if typ == message.TypeAttribute {
			return nil
		}
		return err
	}
	if cont, ok := m.(*message.Continuation); ok {
		if c.seen[cont.Offset] {
			return fmt.Errorf("continuation loop at 0x%x", cont.Offset)
		}
		if len(c.seen) > maxBlocks {
			return fmt.Errorf("more than %d continuation blocks", maxBlocks)
		}
		c.seen[cont.Offset] = true
		c.pending = append(c.pending, block{addr: cont.Offset, size: cont.Length})
		return nil
	}
	c.h.Messages = append(c.h.Messages, m)
	return nil
}

func (c *collector) next() (block, bool) {
	if len(c.pending) == 0 {
		return block{}, false
	}
	b := c.pending[0]
	c.pending = c.pending[1:]
	return b, true
}

func find[T message.Message](h *Header) T {
	for _, m := range h.Messages {
		if v, ok := m.(T); ok {
			return v
		}
	}
	var zero T
	return zero
}

func findAll[T message.Message](h *Header) []T {
	var out []T
	for _, m := range h.Messages {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Dataspace returns the dataspace message, or nil.
func (h *Header) Dataspace() *message.Dataspace { return find[*message.Dataspace](h) }

// Datatype returns the datatype message stored in this header, or nil.
func (h *Header) Datatype() *message.Datatype { return find[*message.Datatype](h) }

// SharedDatatype returns the reference to a committed datatype, or nil.
func (h *Header) SharedDatatype() *message.Shared {
	for _, s := range findAll[*message.Shared](h) {
		if s.Of == message.TypeDatatype {
			return s
		}
	}
	return nil
}

// DataLayout returns the storage layout message, or nil.
func (h *Header) DataLayout() *message.DataLayout { return find[*message.DataLayout](h) }

// FilterPipeline returns the filter pipeline message, or nil.
func (h *Header) FilterPipeline() *message.FilterPipeline {
	return find[*message.FilterPipeline](h)
}

// SymbolTable returns the old-style group message, or nil.
func (h *Header) SymbolTable() *message.SymbolTable { return find[*message.SymbolTable](h) }

// LinkInfo returns the new-style group message, or nil.
func (h *Header) LinkInfo() *message.LinkInfo { return find[*message.LinkInfo](h) }

// Links returns the link messages in header order.
func (h *Header) Links() []*message.Link { return findAll[*message.Link](h) }

// Attributes returns the attribute messages in header order.
func (h *Header) Attributes() []*message.Attribute { return findAll[*message.Attribute](h) }

// IsDataset reports whether the object carries a dataspace and layout.
func (h *Header) IsDataset() bool {
	return h.Dataspace() != nil && h.DataLayout() != nil
}

// IsGroup reports whether the object stores links.
func (h *Header) IsGroup() bool {
	return h.SymbolTable() != nil || h.LinkInfo() != nil || len(h.Links()) > 0
}
