package binary

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Decoder walks a block of little-endian fields. The first failure is
// kept and every later read returns zero, so a parser can read a whole
// structure and check Err once.
type Decoder struct {
	buf   []byte
	off   int
	sizes Sizes
	err   error
}

// NewDecoder returns a Decoder positioned at the start of buf.
func NewDecoder(buf []byte, sizes Sizes) *Decoder {
	return &Decoder{buf: buf, sizes: sizes}
}

// Err returns the first error encountered.
func (d *Decoder) Err() error { return d.err }

// Fail records err unless an earlier error is already recorded.
func (d *Decoder) Fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// Failf records a formatted error.
func (d *Decoder) Failf(format string, args ...any) {
	d.Fail(fmt.Errorf(format, args...))
}

// Pos returns the number of bytes consumed.
func (d *Decoder) Pos() int { return d.off }

// Len returns the size of the block.
func (d *Decoder) Len() int { return len(d.buf) }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

// Sizes returns the address and length widths in use.
func (d *Decoder) Sizes() Sizes { return d.sizes }

func (d *Decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > len(d.buf)-d.off {
		d.err = fmt.Errorf("%w: need %d bytes at %d, block is %d", ErrTruncated, n, d.off, len(d.buf))
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

// Uint8 reads one byte.
func (d *Decoder) Uint8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

// Uint16 reads a 2-byte integer.
func (d *Decoder) Uint16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

// Uint32 reads a 4-byte integer.
func (d *Decoder) Uint32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

// Uint64 reads an 8-byte integer.
func (d *Decoder) Uint64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// Uint reads an integer of width bytes, 1 to 8.
func (d *Decoder) Uint(width int) uint64 {
	if width < 1 || width > 8 {
		d.Failf("integer width %d out of range", width)
		return 0
	}
	return Uint(d.take(width))
}

// Offset reads a file address.
func (d *Decoder) Offset() uint64 { return d.Uint(d.sizes.Offset) }

// Length reads a length field.
func (d *Decoder) Length() uint64 { return d.Uint(d.sizes.Length) }

// Bytes reads n bytes. The result aliases the block.
func (d *Decoder) Bytes(n int) []byte { return d.take(n) }

// Rest returns the unread bytes without consuming them.
func (d *Decoder) Rest() []byte {
	if d.err != nil {
		return nil
	}
	return d.buf[d.off:]
}

// String reads an n-byte field and cuts it at the first NUL.
func (d *Decoder) String(n int) string {
	b := d.take(n)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

// Skip discards n bytes.
func (d *Decoder) Skip(n int) { d.take(n) }

// Seek moves to an absolute position within the block.
func (d *Decoder) Seek(pos int) {
	if d.err != nil {
		return
	}
	if pos < 0 || pos > len(d.buf) {
		d.Failf("%w: seek to %d in %d-byte block", ErrTruncated, pos, len(d.buf))
		return
	}
	d.off = pos
}

// Align skips to the next multiple of n relative to the block start.
// Alignment padding past the end of the block is not an error.
func (d *Decoder) Align(n int) {
	if d.err != nil || n <= 1 {
		return
	}
	if r := d.off % n; r != 0 {
		d.off = min(d.off+n-r, len(d.buf))
	}
}

// Expect consumes len(sig) bytes and records an error if they differ.
func (d *Decoder) Expect(sig string) {
	b := d.take(len(sig))
	if b != nil && string(b) != sig {
		d.Failf("bad signature %q, want %q", b, sig)
	}
}

// Uint decodes a little-endian integer of up to 8 bytes.
func Uint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
