package message

import (
	"math/bits"

	"github.com/robert-malhotra/swiftserve/internal/binary"
)

// DatatypeClass is the class nibble of a datatype message.
type DatatypeClass uint8

const (
	ClassFixedPoint DatatypeClass = 0
	ClassFloatPoint DatatypeClass = 1
	ClassTime       DatatypeClass = 2
	ClassString     DatatypeClass = 3
	ClassBitfield   DatatypeClass = 4
	ClassOpaque     DatatypeClass = 5
	ClassCompound   DatatypeClass = 6
	ClassReference  DatatypeClass = 7
	ClassEnum       DatatypeClass = 8
	ClassVarLen     DatatypeClass = 9
	ClassArray      DatatypeClass = 10
)

// ByteOrder of a numeric element.
type ByteOrder uint8

const (
	OrderLE  ByteOrder = 0
	OrderBE  ByteOrder = 1
	OrderVAX ByteOrder = 2
)

// StringPadding says how a fixed-length string fills unused bytes.
type StringPadding uint8

const (
	PadNullTerm StringPadding = 0
	PadNullPad  StringPadding = 1
	PadSpacePad StringPadding = 2
)

// CharacterSet of string data.
type CharacterSet uint8

const (
	CharsetASCII CharacterSet = 0
	CharsetUTF8  CharacterSet = 1
)

// Datatype describes the element type of a dataset or attribute.
type Datatype struct {
	Class   DatatypeClass
	Version uint8
	Size    uint32

	ByteOrder    ByteOrder
	Signed       bool
	BitOffset    uint16
	BitPrecision uint16

	StringPadding StringPadding
	CharSet       CharacterSet

	// Members of a compound type.
	Members []CompoundMember

	// Names and raw values of an enum; values are encoded in BaseType.
	EnumNames  []string
	EnumValues [][]byte

	// ArrayDims of an array type.
	ArrayDims []uint32

	// BaseType of an enum, array or variable-length type.
	BaseType *Datatype

	IsVarLenString bool

	// Tag of an opaque type.
	Tag string
}

// CompoundMember is one field of a compound type.
type CompoundMember struct {
	Name       string
	ByteOffset uint32
	Type       *Datatype
}

func (m *Datatype) Type() Type { return TypeDatatype }

// IsString reports whether elements are fixed or variable-length strings.
func (m *Datatype) IsString() bool {
	return m.Class == ClassString || (m.Class == ClassVarLen && m.IsVarLenString)
}

func decodeDatatype(d *binary.Decoder) *Datatype {
	head := d.Uint8()
	flags := uint32(d.Uint8()) | uint32(d.Uint8())<<8 | uint32(d.Uint8())<<16
	dt := &Datatype{
		Class:   DatatypeClass(head & 0x0f),
		Version: head >> 4,
		Size:    d.Uint32(),
	}
	if d.Err() != nil {
		return dt
	}

	switch dt.Class {
	case ClassFixedPoint, ClassBitfield:
		dt.ByteOrder = ByteOrder(flags & 0x01)
		dt.Signed = dt.Class == ClassFixedPoint && flags&0x08 != 0
		dt.BitOffset = d.Uint16()
		dt.BitPrecision = d.Uint16()

	case ClassFloatPoint:
		dt.ByteOrder = ByteOrder(flags & 0x01)
		if flags&0x40 != 0 {
			dt.ByteOrder = OrderVAX
		}
		dt.Signed = true
		dt.BitOffset = d.Uint16()
		dt.BitPrecision = d.Uint16()
		// Exponent and mantissa placement and the exponent bias.
		d.Skip(8)

	case ClassTime:
		dt.ByteOrder = ByteOrder(flags & 0x01)
		dt.BitPrecision = d.Uint16()

	case ClassString:
		dt.StringPadding = StringPadding(flags & 0x0f)
		dt.CharSet = CharacterSet(flags >> 4 & 0x0f)

	case ClassOpaque:
		dt.Tag = d.String(int(flags & 0xff))

	case ClassCompound:
		dt.Members = make([]CompoundMember, int(flags&0xffff))
		for i := range dt.Members {
			dt.Members[i] = decodeMember(d, dt.Version, dt.Size)
		}

	case ClassReference:

	case ClassEnum:
		n := int(flags & 0xffff)
		dt.BaseType = decodeDatatype(d)
		dt.ByteOrder = dt.BaseType.ByteOrder
		dt.Signed = dt.BaseType.Signed
		dt.EnumNames = make([]string, n)
		for i := range dt.EnumNames {
			if dt.Version >= 3 {
				dt.EnumNames[i] = cstring(d)
			} else {
				dt.EnumNames[i] = paddedCString(d)
			}
		}
		dt.EnumValues = make([][]byte, n)
		for i := range dt.EnumValues {
			dt.EnumValues[i] = d.Bytes(int(dt.BaseType.Size))
		}

	case ClassVarLen:
		dt.IsVarLenString = flags&0x0f == 1
		dt.StringPadding = StringPadding(flags >> 4 & 0x0f)
		dt.CharSet = CharacterSet(flags >> 8 & 0x0f)
		dt.BaseType = decodeDatatype(d)

	case ClassArray:
		rank := int(d.Uint8())
		if dt.Version < 3 {
			d.Skip(3)
		}
		dt.ArrayDims = make([]uint32, rank)
		for i := range dt.ArrayDims {
			dt.ArrayDims[i] = d.Uint32()
		}
		if dt.Version < 3 {
			// Permutation indices, never used by the library.
			d.Skip(4 * rank)
		}
		dt.BaseType = decodeDatatype(d)

	default:
		d.Failf("datatype class %d", dt.Class)
	}
	return dt
}

func decodeMember(d *binary.Decoder, version uint8, size uint32) CompoundMember {
	var m CompoundMember
	switch version {
	case 1:
		m.Name = paddedCString(d)
		m.ByteOffset = d.Uint32()
		// Dimensionality, permutation and four dimension sizes of the
		// old array-member form.
		d.Skip(1 + 3 + 4 + 4 + 16)
	case 2:
		m.Name = paddedCString(d)
		m.ByteOffset = d.Uint32()
	default:
		m.Name = cstring(d)
		m.ByteOffset = uint32(d.Uint(offsetWidth(size)))
	}
	m.Type = decodeDatatype(d)
	return m
}

// offsetWidth is the number of bytes needed to hold offsets below size.
func offsetWidth(size uint32) int {
	if size == 0 {
		return 1
	}
	return (bits.Len32(size)-1)/8 + 1
}
