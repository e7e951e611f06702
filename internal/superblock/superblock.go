// Package superblock locates and decodes the HDF5 superblock, which gives
// the address widths of the file and the location of the root group.
package superblock

import (
	"errors"
	"fmt"
	"io"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// Signature opens every superblock.
const Signature = "\x89HDF\r\n\x1a\n"

var (
	ErrNotHDF5            = errors.New("HDF5 signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrChecksum           = errors.New("superblock checksum mismatch")
)

// maxSize covers the largest superblock, version 1 with 8-byte addresses.
const maxSize = 128

// Superblock holds the fields needed to navigate the file.
type Superblock struct {
	Version uint8
	// Location of the signature in the file.
	Location uint64
	Sizes    binary.Sizes

	// BaseAddress is added to every address in the file.
	BaseAddress uint64
	EOFAddress  uint64
	RootAddress uint64

	// Version 0 and 1 cache the root group's B-tree and local heap in the
	// root symbol table entry; both are zero when not cached.
	RootBTreeAddress uint64
	RootHeapAddress  uint64
}

// Read searches for the signature at byte 0 and then at each power of two
// from 512, as the library does when a user block precedes the file.
func Read(src io.ReaderAt) (*Superblock, error) {
	probe := binary.NewReader(src, binary.DefaultSizes)
	for at := uint64(0); ; at = next(at) {
		sig, err := probe.ReadAt(at, len(Signature))
		if err != nil {
			if errors.Is(err, binary.ErrTruncated) {
				return nil, ErrNotHDF5
			}
			return nil, err
		}
		if string(sig) == Signature {
			return decode(probe, at)
		}
	}
}

func next(at uint64) uint64 {
	if at == 0 {
		return 512
	}
	return at * 2
}

func decode(r *binary.Reader, at uint64) (*Superblock, error) {
	d, err := r.Decoder(at, maxSize)
	if err != nil {
		return nil, err
	}
	d.Skip(len(Signature))
	sb := &Superblock{Version: d.Uint8(), Location: at}

	switch sb.Version {
	case 0, 1:
		err = decodeV0(d, sb)
	case 2, 3:
		err = decodeV2(r, d, sb)
	default:
		return nil, fmt.Errorf("%w %d", ErrUnsupportedVersion, sb.Version)
	}
	if err != nil {
		return nil, fmt.Errorf("superblock v%d: %w", sb.Version, err)
	}
	return sb, nil
}

// withSizes continues decoding after the fixed-width fields with the
// address widths the superblock declares.
func withSizes(d *binary.Decoder, sb *Superblock) (*binary.Decoder, error) {
	if err := d.Err(); err != nil {
		return nil, err
	}
	if !sb.Sizes.Valid() {
		return nil, fmt.Errorf("invalid address widths %d/%d", sb.Sizes.Offset, sb.Sizes.Length)
	}
	return binary.NewDecoder(d.Rest(), sb.Sizes), nil
}

func decodeV0(d *binary.Decoder, sb *Superblock) error {
	// Free-space, root symbol table and shared header versions, reserved.
	d.Skip(4)
	sb.Sizes = binary.Sizes{Offset: int(d.Uint8()), Length: int(d.Uint8())}
	// Reserved, group leaf and internal K, consistency flags.
	d.Skip(1 + 2 + 2 + 4)
	if sb.Version == 1 {
		// Indexed storage K and reserved.
		d.Skip(4)
	}

	a, err := withSizes(d, sb)
	if err != nil {
		return err
	}
	sb.BaseAddress = a.Offset()
	a.Offset() // free-space info
	sb.EOFAddress = a.Offset()
	a.Offset() // driver info

	// Root group symbol table entry.
	a.Offset() // link name offset
	sb.RootAddress = a.Offset()
	cache := a.Uint32()
	a.Skip(4)
	if cache == 1 {
		sb.RootBTreeAddress = a.Offset()
		sb.RootHeapAddress = a.Offset()
	}
	return a.Err()
}

func decodeV2(r *binary.Reader, d *binary.Decoder, sb *Superblock) error {
	sb.Sizes = binary.Sizes{Offset: int(d.Uint8()), Length: int(d.Uint8())}
	d.Skip(1) // consistency flags
	a, err := withSizes(d, sb)
	if err != nil {
		return err
	}
	sb.BaseAddress = a.Offset()
	a.Offset() // superblock extension
	sb.EOFAddress = a.Offset()
	sb.RootAddress = a.Offset()
	if err := a.Err(); err != nil {
		return err
	}

	n := d.Pos() + a.Pos()
	block, err := r.ReadAt(sb.Location, n+4)
	if err != nil {
		return err
	}
	if !binary.VerifyLookup3(block) {
		return ErrChecksum
	}
	return nil
}
