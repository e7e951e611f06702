// Package message decodes the header messages stored in HDF5 object
// headers: the dataspace, datatype and storage layout of a dataset, the
// filter pipeline, attributes and group links.
package message

import (
	"bytes"
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// Type identifies a header message.
type Type uint16

const (
	TypeNIL            Type = 0x00
	TypeDataspace      Type = 0x01
	TypeLinkInfo       Type = 0x02
	TypeDatatype       Type = 0x03
	TypeFillValueOld   Type = 0x04
	TypeFillValue      Type = 0x05
	TypeLink           Type = 0x06
	TypeExternalFiles  Type = 0x07
	TypeDataLayout     Type = 0x08
	TypeGroupInfo      Type = 0x0A
	TypeFilterPipeline Type = 0x0B
	TypeAttribute      Type = 0x0C
	TypeComment        Type = 0x0D
	TypeContinuation   Type = 0x10
	TypeSymbolTable    Type = 0x11
	TypeModTime        Type = 0x12
	TypeAttributeInfo  Type = 0x15
	TypeRefCount       Type = 0x16
)

// FlagShared marks a message whose body refers to a message stored
// elsewhere, usually a committed datatype.
const FlagShared uint8 = 0x02

// Message is a decoded header message.
type Message interface {
	Type() Type
}

// Parse decodes the body of one header message.
func Parse(typ Type, flags uint8, body []byte, sizes binary.Sizes) (Message, error) {
	d := binary.NewDecoder(body, sizes)
	if flags&FlagShared != 0 {
		return decodeShared(typ, d)
	}

	var m Message
	switch typ {
	case TypeDataspace:
		m = decodeDataspace(d)
	case TypeDatatype:
		m = decodeDatatype(d)
	case TypeDataLayout:
		m = decodeDataLayout(d)
	case TypeFilterPipeline:
		m = decodeFilterPipeline(d)
	case TypeAttribute:
		m = decodeAttribute(d)
	case TypeLink:
		m = decodeLink(d)
	case TypeLinkInfo:
		m = decodeLinkInfo(d)
	case TypeSymbolTable:
		m = &SymbolTable{BTreeAddress: d.Offset(), LocalHeapAddress: d.Offset()}
	case TypeContinuation:
		m = &Continuation{Offset: d.Offset(), Length: d.Length()}
	default:
		return &Unknown{typ: typ, Body: body}, nil
	}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("message 0x%02x: %w", uint16(typ), err)
	}
	return m, nil
}

// Unknown holds the body of a message type that is not decoded.
type Unknown struct {
	typ  Type
	Body []byte
}

func (m *Unknown) Type() Type { return m.typ }

// Continuation points at the next block of header messages.
type Continuation struct {
	Offset uint64
	Length uint64
}

func (m *Continuation) Type() Type { return TypeContinuation }

// SymbolTable locates the B-tree and local heap of an old-style group.
type SymbolTable struct {
	BTreeAddress     uint64
	LocalHeapAddress uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

// Shared stands in for a message stored in another object header.
type Shared struct {
	Of      Type
	Address uint64
}

func (m *Shared) Type() Type { return m.Of }

func decodeShared(typ Type, d *binary.Decoder) (Message, error) {
	version := d.Uint8()
	kind := d.Uint8()
	switch version {
	case 1:
		d.Skip(6)
	case 2:
	case 3:
		// Kind 2 is a committed object; the others live in the shared
		// message heap, which is not supported.
		if kind != 2 {
			return nil, fmt.Errorf("message 0x%02x: shared message heap is not supported", uint16(typ))
		}
	default:
		return nil, fmt.Errorf("message 0x%02x: shared message version %d", uint16(typ), version)
	}
	m := &Shared{Of: typ, Address: d.Offset()}
	if err := d.Err(); err != nil {
		return nil, fmt.Errorf("shared message 0x%02x: %w", uint16(typ), err)
	}
	return m, nil
}

// cstring reads a NUL-terminated string, consuming the terminator.
func cstring(d *binary.Decoder) string {
	rest := d.Rest()
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		d.Failf("unterminated string")
		return ""
	}
	s := string(rest[:i])
	d.Skip(i + 1)
	return s
}

// paddedCString reads a NUL-terminated string padded with NULs to a
// multiple of eight bytes.
func paddedCString(d *binary.Decoder) string {
	start := d.Pos()
	s := cstring(d)
	if n := (d.Pos() - start) % 8; n != 0 {
		d.Skip(8 - n)
	}
	return s
}
