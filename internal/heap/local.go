// Package heap reads the two heaps used by SWIFT snapshots: local heaps,
// which hold the member names of old-style groups, and global heap
// collections, which hold variable-length strings.
package heap

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// Local is a local heap's data segment.
type Local struct {
	data []byte
}

// ReadLocal reads the local heap whose header is at addr.
func ReadLocal(r *binary.Reader, addr uint64) (*Local, error) {
	d, err := r.Decoder(addr, 8+2*r.LengthSize()+r.OffsetSize())
	if err != nil {
		return nil, fmt.Errorf("local heap at 0x%x: %w", addr, err)
	}
	d.Expect("HEAP")
	if v := d.Uint8(); v != 0 {
		d.Failf("local heap version %d", v)
	}
	d.Skip(3)
	size := d.Length()
	d.Length() // head of the free list
	dataAddr := d.Offset()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("local heap at 0x%x: %w", addr, err)
	}

	data, err := r.ReadAt(dataAddr, int(size))
	if err != nil {
		return nil, fmt.Errorf("local heap data at 0x%x: %w", dataAddr, err)
	}
	return &Local{data: data}, nil
}

// String returns the NUL-terminated string at off.
func (h *Local) String(off uint64) (string, error) {
	if off >= uint64(len(h.data)) {
		return "", fmt.Errorf("offset %d outside %d-byte local heap", off, len(h.data))
	}
	s := h.data[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s), nil
}
