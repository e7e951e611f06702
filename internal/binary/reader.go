// Package binary decodes the fixed-layout structures of an HDF5 file.
//
// HDF5 metadata is little-endian, and addresses and lengths are stored in
// 2, 4 or 8 bytes as declared by the superblock. A Reader fetches blocks
// from the file; a Decoder walks a fetched block field by field.
package binary

import (
	"errors"
	"fmt"
	"io"
)

// ErrTruncated is returned when a structure extends past the bytes available.
var ErrTruncated = errors.New("truncated structure")

// Sizes holds the width in bytes of file addresses and lengths.
type Sizes struct {
	Offset int
	Length int
}

// DefaultSizes are used to probe for the superblock before its sizes are known.
var DefaultSizes = Sizes{Offset: 8, Length: 8}

// Valid reports whether both widths are ones HDF5 can declare.
func (s Sizes) Valid() bool {
	return validWidth(s.Offset) && validWidth(s.Length)
}

func validWidth(n int) bool {
	return n == 2 || n == 4 || n == 8
}

// Reader fetches blocks from an HDF5 file.
type Reader struct {
	src   io.ReaderAt
	sizes Sizes
}

// NewReader returns a Reader over src with the given address widths.
func NewReader(src io.ReaderAt, sizes Sizes) *Reader {
	return &Reader{src: src, sizes: sizes}
}

// Sizes returns the address and length widths.
func (r *Reader) Sizes() Sizes { return r.sizes }

// OffsetSize returns the width of a file address.
func (r *Reader) OffsetSize() int { return r.sizes.Offset }

// LengthSize returns the width of a length field.
func (r *Reader) LengthSize() int { return r.sizes.Length }

// Undefined reports whether addr is the all-ones "no address" value.
func (r *Reader) Undefined(addr uint64) bool {
	return Undefined(addr, r.sizes.Offset)
}

// ReadAt reads exactly n bytes at addr.
func (r *Reader) ReadAt(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read of %d bytes at 0x%x", n, addr)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	got, err := r.src.ReadAt(buf, int64(addr))
	if got == n {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = ErrTruncated
	}
	return nil, fmt.Errorf("reading %d bytes at 0x%x: %w", n, addr, err)
}

// Decoder reads up to n bytes at addr and returns a Decoder over them.
// A block cut short by the end of the file is not an error; decoding past
// its end is.
func (r *Reader) Decoder(addr uint64, n int) (*Decoder, error) {
	buf := make([]byte, n)
	got, err := r.src.ReadAt(buf, int64(addr))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading block at 0x%x: %w", addr, err)
	}
	if got == 0 && n > 0 {
		return nil, fmt.Errorf("reading block at 0x%x: %w", addr, ErrTruncated)
	}
	return r.Decode(buf[:got]), nil
}

// Decode returns a Decoder over an in-memory block.
func (r *Reader) Decode(buf []byte) *Decoder {
	return NewDecoder(buf, r.sizes)
}

// Undefined reports whether v has all bits set across width bytes.
func Undefined(v uint64, width int) bool {
	if width >= 8 {
		return v == ^uint64(0)
	}
	return v == 1<<(8*uint(width))-1
}
