package object

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

const (
	signatureV2           = "OHDR"
	signatureContinuation = "OCHK"

	// Largest prefix: signature, version, flags, four timestamps, the
	// attribute phase change values and an 8-byte chunk size.
	v2MaxPrefix = 4 + 1 + 1 + 16 + 4 + 8
)

const (
	flagTrackOrder = 0x04
	flagPhaseAttr  = 0x10
	flagTimes      = 0x20
)

func readV2(r *binary.Reader, addr uint64) (*Header, error) {
	d, err := r.Decoder(addr, v2MaxPrefix)
	if err != nil {
		return nil, err
	}
	d.Expect(signatureV2)
	h := &Header{Version: d.Uint8(), Address: addr}
	if h.Version != 2 {
		return nil, fmt.Errorf("%w %d", ErrUnsupportedVersion, h.Version)
	}
	flags := d.Uint8()
	if flags&flagTimes != 0 {
		d.Skip(16)
	}
	if flags&flagPhaseAttr != 0 {
		d.Skip(4)
	}
	size := d.Uint(1 << (flags & 0x03))
	if err := d.Err(); err != nil {
		return nil, err
	}
	prefix := d.Pos()

	// The first block runs from the signature to the checksum that
	// follows the messages.
	buf, err := r.ReadAt(addr, prefix+int(size)+4)
	if err != nil {
		return nil, err
	}
	if !binary.VerifyLookup3(buf) {
		return nil, ErrChecksum
	}

	c := newCollector(h, r.Sizes())
	if err := readV2Messages(r.Decode(buf[prefix:len(buf)-4]), flags, c); err != nil {
		return nil, err
	}
	for b, ok := c.next(); ok; b, ok = c.next() {
		buf, err := r.ReadAt(b.addr, int(b.size))
		if err != nil {
			return nil, err
		}
		if !binary.VerifyLookup3(buf) {
			return nil, fmt.Errorf("continuation at 0x%x: %w", b.addr, ErrChecksum)
		}
		d := r.Decode(buf[:len(buf)-4])
		d.Expect(signatureContinuation)
		if err := d.Err(); err != nil {
			return nil, fmt.Errorf("continuation at 0x%x: %w", b.addr, err)
		}
		if err := readV2Messages(r.Decode(d.Rest()), flags, c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func readV2Messages(d *binary.Decoder, flags uint8, c *collector) error {
	hdr := 4
	if flags&flagTrackOrder != 0 {
		hdr = 6
	}
	// Space too small for a message header is a gap and is skipped.
	for i := 0; d.Remaining() >= hdr; i++ {
		typ := message.Type(d.Uint8())
		size := int(d.Uint16())
		mflags := d.Uint8()
		if flags&flagTrackOrder != 0 {
			d.Skip(2)
		}
		body := d.Bytes(size)
		if err := d.Err(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		if err := c.add(typ, mflags, body); err != nil {
			return err
		}
	}
	return nil
}
