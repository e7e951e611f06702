// Package ndarray provides typed n-dimensional arrays and their wire-safe
// representation.
//
// A wire array is a nested list of JSON-safe scalars plus a short dtype tag
// that records both the element kind and the byte order of the source data
// (the numpy array-interface convention: "<f4", ">i8", "|u1", "|O"). Keeping
// the byte order lets a client rebuild the identical binary layout.
package ndarray

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-malhotra/swiftserve/apierr"
)

// Class is the element kind of an array.
type Class uint8

const (
	ClassInt    Class = iota // Signed integers
	ClassUint                // Unsigned integers
	ClassFloat               // IEEE 754 floating point
	ClassBool                // One-byte booleans
	ClassBytes               // Fixed-width byte strings
	ClassObject              // Heterogeneous values
)

// Order is the byte order tag of a dtype.
type Order uint8

const (
	OrderLittle Order = iota // '<'
	OrderBig                 // '>'
	OrderNone                // '|', single byte or non-numeric
)

// Char returns the tag character for the order.
func (o Order) Char() byte {
	switch o {
	case OrderBig:
		return '>'
	case OrderNone:
		return '|'
	default:
		return '<'
	}
}

// ByteOrder returns the encoding/binary order. OrderNone maps to little-endian,
// which is only observable for single-byte elements.
func (o Order) ByteOrder() binary.ByteOrder {
	if o == OrderBig {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DType describes an element type and its byte order.
type DType struct {
	Class Class
	Size  int
	Order Order
}

// Common dtypes.
var (
	Int8    = DType{Class: ClassInt, Size: 1, Order: OrderNone}
	Int16   = DType{Class: ClassInt, Size: 2, Order: OrderLittle}
	Int32   = DType{Class: ClassInt, Size: 4, Order: OrderLittle}
	Int64   = DType{Class: ClassInt, Size: 8, Order: OrderLittle}
	Uint8   = DType{Class: ClassUint, Size: 1, Order: OrderNone}
	Uint16  = DType{Class: ClassUint, Size: 2, Order: OrderLittle}
	Uint32  = DType{Class: ClassUint, Size: 4, Order: OrderLittle}
	Uint64  = DType{Class: ClassUint, Size: 8, Order: OrderLittle}
	Float32 = DType{Class: ClassFloat, Size: 4, Order: OrderLittle}
	Float64 = DType{Class: ClassFloat, Size: 8, Order: OrderLittle}
	Bool    = DType{Class: ClassBool, Size: 1, Order: OrderNone}
	Object  = DType{Class: ClassObject, Size: 8, Order: OrderNone}
)

// Bytes returns a fixed-width byte string dtype of the given width.
func Bytes(width int) DType {
	return DType{Class: ClassBytes, Size: width, Order: OrderNone}
}

// WithOrder returns d with the given byte order. Single-byte and non-numeric
// dtypes always carry OrderNone.
func (d DType) WithOrder(o Order) DType {
	d.Order = o
	return d.normalize()
}

func (d DType) normalize() DType {
	switch {
	case d.Class == ClassBytes || d.Class == ClassObject || d.Class == ClassBool:
		d.Order = OrderNone
	case d.Size == 1:
		d.Order = OrderNone
	case d.Order == OrderNone:
		d.Order = OrderLittle
	}
	return d
}

// IsNumeric reports whether elements are integers or floats.
func (d DType) IsNumeric() bool {
	return d.Class == ClassInt || d.Class == ClassUint || d.Class == ClassFloat
}

// IsInteger reports whether elements are signed or unsigned integers.
func (d DType) IsInteger() bool {
	return d.Class == ClassInt || d.Class == ClassUint
}

// String returns the dtype tag, e.g. "<f4", ">i8", "|u1", "|S12", "|O".
func (d DType) String() string {
	switch d.Class {
	case ClassObject:
		return "|O"
	case ClassBool:
		return "|b1"
	case ClassBytes:
		return "|S" + strconv.Itoa(d.Size)
	}
	var c byte
	switch d.Class {
	case ClassInt:
		c = 'i'
	case ClassUint:
		c = 'u'
	default:
		c = 'f'
	}
	return string([]byte{d.Order.Char(), c}) + strconv.Itoa(d.Size)
}

// namedDTypes holds the numpy type names accepted in addition to tags.
var namedDTypes = map[string]DType{
	"int8":    Int8,
	"int16":   Int16,
	"int32":   Int32,
	"int64":   Int64,
	"int":     Int64,
	"uint8":   Uint8,
	"uint16":  Uint16,
	"uint32":  Uint32,
	"uint64":  Uint64,
	"float32": Float32,
	"float64": Float64,
	"float":   Float64,
	"double":  Float64,
	"bool":    Bool,
	"object":  Object,
}

// ParseDType parses a dtype tag or numpy type name. Unrecognized tags fail
// with an apierr.InvalidDType error.
func ParseDType(s string) (DType, error) {
	tag := strings.TrimSpace(s)
	if d, ok := namedDTypes[tag]; ok {
		return d, nil
	}
	if tag == "" {
		return DType{}, apierr.NewInvalidDType(s, fmt.Errorf("empty dtype"))
	}

	order := OrderLittle
	explicit := false
	switch tag[0] {
	case '<', '=':
		explicit = true
	case '>', '!':
		order = OrderBig
		explicit = true
	case '|':
		order = OrderNone
		explicit = true
	}
	if explicit {
		tag = tag[1:]
	}
	if tag == "" {
		return DType{}, apierr.NewInvalidDType(s, fmt.Errorf("missing type character"))
	}

	kind, digits := tag[0], tag[1:]
	size := 0
	if digits != "" {
		n, err := strconv.Atoi(digits)
		if err != nil || n <= 0 {
			return DType{}, apierr.NewInvalidDType(s, fmt.Errorf("invalid item size %q", digits))
		}
		size = n
	}

	var d DType
	switch kind {
	case 'i':
		d = DType{Class: ClassInt, Size: size}
	case 'u':
		d = DType{Class: ClassUint, Size: size}
	case 'f':
		d = DType{Class: ClassFloat, Size: size}
	case 'b', '?':
		if size == 0 {
			size = 1
		}
		d = DType{Class: ClassBool, Size: size}
	case 'S':
		if size == 0 {
			return DType{}, apierr.NewInvalidDType(s, fmt.Errorf("byte string dtype needs a width"))
		}
		d = Bytes(size)
	case 'O':
		if size != 0 && size != 8 {
			return DType{}, apierr.NewInvalidDType(s, fmt.Errorf("invalid object size %d", size))
		}
		d = Object
	default:
		return DType{}, apierr.NewInvalidDType(s, fmt.Errorf("unknown type character %q", kind))
	}
	d.Order = order

	if err := d.validate(); err != nil {
		return DType{}, apierr.NewInvalidDType(s, err)
	}
	return d.normalize(), nil
}

func (d DType) validate() error {
	switch d.Class {
	case ClassInt, ClassUint:
		switch d.Size {
		case 1, 2, 4, 8:
			return nil
		}
	case ClassFloat:
		switch d.Size {
		case 4, 8:
			return nil
		}
	case ClassBool:
		if d.Size == 1 {
			return nil
		}
	case ClassBytes, ClassObject:
		return nil
	}
	return fmt.Errorf("unsupported item size %d", d.Size)
}
