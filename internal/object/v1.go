package object

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Version 1 headers start with a 16-byte prefix: version, reserved,
// message count, reference count and the size of the first block.
const v1PrefixSize = 16

func readV1(r *binary.Reader, addr uint64) (*Header, error) {
	d, err := r.Decoder(addr, v1PrefixSize)
	if err != nil {
		return nil, err
	}
	h := &Header{Version: d.Uint8(), Address: addr}
	d.Skip(7)
	size := d.Uint32()
	if err := d.Err(); err != nil {
		return nil, err
	}

	c := newCollector(h, r.Sizes())
	for b, ok := (block{addr: addr + v1PrefixSize, size: uint64(size)}), true; ok; b, ok = c.next() {
		if err := readV1Block(r, b, c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func readV1Block(r *binary.Reader, b block, c *collector) error {
	buf, err := r.ReadAt(b.addr, int(b.size))
	if err != nil {
		return err
	}
	d := r.Decode(buf)
	// Each message has an 8-byte header: type, body size, flags and
	// three reserved bytes.
	for i := 0; d.Remaining() >= 8; i++ {
		typ := message.Type(d.Uint16())
		size := int(d.Uint16())
		flags := d.Uint8()
		d.Skip(3)
		body := d.Bytes(size)
		if err := d.Err(); err != nil {
			return fmt.Errorf("message %d at 0x%x: %w", i, b.addr, err)
		}
		if err := c.add(typ, flags, body); err != nil {
			return err
		}
		d.Align(8)
	}
	return nil
}
