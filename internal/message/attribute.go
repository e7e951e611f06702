package message

import "github.com/robert-malhotra/swiftserve/internal/binary"

// Attribute is a small named value stored in an object header.
type Attribute struct {
	Version   uint8
	Name      string
	Datatype  *Datatype
	Dataspace *Dataspace
	// Data holds the raw elements in file order.
	Data []byte
}

func (m *Attribute) Type() Type { return TypeAttribute }

func decodeAttribute(d *binary.Decoder) *Attribute {
	a := &Attribute{Version: d.Uint8()}
	flags := d.Uint8()
	nameLen := int(d.Uint16())
	typeLen := int(d.Uint16())
	spaceLen := int(d.Uint16())

	// Version 1 pads each part to eight bytes; version 3 adds the name
	// encoding.
	pad := func(n int) int { return n }
	switch a.Version {
	case 1:
		pad = func(n int) int { return (n + 7) &^ 7 }
	case 2:
	case 3:
		d.Skip(1)
	default:
		d.Failf("attribute version %d", a.Version)
		return a
	}
	if flags&0x03 != 0 {
		d.Failf("attribute with shared datatype or dataspace")
		return a
	}

	a.Name = d.String(pad(nameLen))
	sub := binary.NewDecoder(d.Bytes(pad(typeLen)), d.Sizes())
	a.Datatype = decodeDatatype(sub)
	if err := sub.Err(); err != nil {
		d.Fail(err)
	}
	sub = binary.NewDecoder(d.Bytes(pad(spaceLen)), d.Sizes())
	a.Dataspace = decodeDataspace(sub)
	if err := sub.Err(); err != nil {
		d.Fail(err)
	}
	if d.Err() != nil {
		return a
	}

	size := int(a.Dataspace.NumElements()) * int(a.Datatype.Size)
	a.Data = append([]byte(nil), d.Bytes(min(size, d.Remaining()))...)
	return a
}
