package message

import "github.com/robert-malhotra/swiftserve/internal/binary"

// LinkType says what a link points at.
type LinkType uint8

const (
	LinkHard     LinkType = 0
	LinkSoft     LinkType = 1
	LinkExternal LinkType = 64
)

// Link is one member of a compact new-style group.
type Link struct {
	LinkType LinkType
	Name     string

	// ObjectAddress is the header address of a hard link's target.
	ObjectAddress uint64

	// SoftLinkValue is the path a soft link refers to.
	SoftLinkValue string
}

func (m *Link) Type() Type { return TypeLink }

func decodeLink(d *binary.Decoder) *Link {
	l := &Link{}
	if v := d.Uint8(); v != 1 {
		d.Failf("link version %d", v)
		return l
	}
	flags := d.Uint8()
	if flags&0x08 != 0 {
		l.LinkType = LinkType(d.Uint8())
	}
	if flags&0x04 != 0 {
		d.Skip(8)
	}
	if flags&0x10 != 0 {
		d.Skip(1)
	}
	l.Name = string(d.Bytes(int(d.Uint(1 << (flags & 0x03)))))

	switch l.LinkType {
	case LinkHard:
		l.ObjectAddress = d.Offset()
	case LinkSoft:
		l.SoftLinkValue = string(d.Bytes(int(d.Uint16())))
	default:
		// External and user-defined links carry an opaque blob.
		d.Skip(int(d.Uint16()))
	}
	return l
}

// LinkInfo describes how a new-style group stores its links.
type LinkInfo struct {
	// FractalHeapAddress is defined when links are kept in dense storage.
	FractalHeapAddress uint64
	NameIndexAddress   uint64
}

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func decodeLinkInfo(d *binary.Decoder) *LinkInfo {
	li := &LinkInfo{}
	if v := d.Uint8(); v != 0 {
		d.Failf("link info version %d", v)
		return li
	}
	if flags := d.Uint8(); flags&0x01 != 0 {
		d.Skip(8)
	}
	li.FractalHeapAddress = d.Offset()
	li.NameIndexAddress = d.Offset()
	return li
}

// Dense reports whether the links live in a fractal heap rather than in
// link messages.
func (m *LinkInfo) Dense(offsetSize int) bool {
	return !binary.Undefined(m.FractalHeapAddress, offsetSize)
}
