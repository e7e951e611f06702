package heap

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// ID addresses an object in a global heap collection.
type ID struct {
	Collection uint64
	Index      uint32
}

// ParseID decodes a heap ID: a collection address and a 4-byte index.
func ParseID(b []byte, sizes binary.Sizes) (ID, error) {
	d := binary.NewDecoder(b, sizes)
	id := ID{Collection: d.Offset(), Index: d.Uint32()}
	if err := d.Err(); err != nil {
		return ID{}, fmt.Errorf("global heap ID: %w", err)
	}
	return id, nil
}

// Collection is a global heap collection.
type Collection struct {
	objects map[uint32][]byte
}

// ReadCollection reads the collection at addr.
func ReadCollection(r *binary.Reader, addr uint64) (*Collection, error) {
	if addr == 0 || r.Undefined(addr) {
		return nil, fmt.Errorf("undefined global heap address")
	}
	d, err := r.Decoder(addr, 8+r.LengthSize())
	if err != nil {
		return nil, fmt.Errorf("global heap at 0x%x: %w", addr, err)
	}
	d.Expect("GCOL")
	if v := d.Uint8(); v != 1 {
		d.Failf("global heap version %d", v)
	}
	d.Skip(3)
	size := d.Length()
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("global heap at 0x%x: %w", addr, err)
	}

	buf, err := r.ReadAt(addr, int(size))
	if err != nil {
		return nil, fmt.Errorf("global heap at 0x%x: %w", addr, err)
	}
	d = r.Decode(buf)
	d.Seek(8 + r.LengthSize())

	// Objects follow until index 0, which marks the free space.
	c := &Collection{objects: make(map[uint32][]byte)}
	objHeader := 8 + r.LengthSize()
	for d.Remaining() >= objHeader {
		index := d.Uint16()
		if index == 0 {
			break
		}
		d.Skip(6) // reference count and reserved
		n := int(d.Length())
		obj := d.Bytes(n)
		d.Align(8)
		if d.Err() != nil {
			return nil, fmt.Errorf("global heap at 0x%x, object %d: %w", addr, index, d.Err())
		}
		c.objects[uint32(index)] = obj
	}
	return c, nil
}

// Object returns the bytes of object index.
func (c *Collection) Object(index uint32) ([]byte, error) {
	obj, ok := c.objects[index]
	if !ok {
		return nil, fmt.Errorf("global heap object %d not found", index)
	}
	return obj, nil
}

// Len returns the number of objects in the collection.
func (c *Collection) Len() int { return len(c.objects) }
