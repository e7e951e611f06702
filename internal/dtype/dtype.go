package dtype

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	bin "github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/heap"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// ByteOrder returns the binary.ByteOrder for the datatype.
func ByteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// elements splits data into n elements of the datatype's size.
func elements(dt *message.Datatype, data []byte, n uint64) ([][]byte, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	size := int(dt.Size)
	if size == 0 && n > 0 {
		return nil, fmt.Errorf("zero-sized datatype")
	}
	if need := int(n) * size; need > len(data) {
		return nil, fmt.Errorf("not enough data: need %d bytes, have %d", need, len(data))
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = data[i*size : (i+1)*size]
	}
	return out, nil
}

func fixed(dt *message.Datatype, b []byte) (uint64, error) {
	order := ByteOrder(dt)
	switch len(b) {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(order.Uint16(b)), nil
	case 4:
		return uint64(order.Uint32(b)), nil
	case 8:
		return order.Uint64(b), nil
	}
	return 0, fmt.Errorf("unsupported integer size: %d", len(b))
}

// signExtend interprets the low size bytes of v as two's complement.
func signExtend(v uint64, size int) int64 {
	shift := 64 - 8*uint(size)
	return int64(v<<shift) >> shift
}

// integerType returns the datatype that describes the stored integer bits,
// following enums to their base type.
func integerType(dt *message.Datatype) (*message.Datatype, error) {
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassBitfield:
		return dt, nil
	case message.ClassEnum:
		if dt.BaseType == nil {
			return nil, fmt.Errorf("enum without base type")
		}
		return dt.BaseType, nil
	}
	return nil, fmt.Errorf("datatype class %d is not an integer", dt.Class)
}

// Ints decodes n integer elements as int64. Unsigned values above
// math.MaxInt64 are rejected.
func Ints(dt *message.Datatype, data []byte, n uint64) ([]int64, error) {
	it, err := integerType(dt)
	if err != nil {
		return nil, err
	}
	elems, err := elements(dt, data, n)
	if err != nil {
		return nil, err
	}
	out := make([]int64, n)
	for i, b := range elems {
		v, err := fixed(it, b)
		if err != nil {
			return nil, err
		}
		if it.Signed {
			out[i] = signExtend(v, len(b))
			continue
		}
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("value %d overflows int64", v)
		}
		out[i] = int64(v)
	}
	return out, nil
}

// Uints decodes n integer elements as uint64. Negative values are rejected.
func Uints(dt *message.Datatype, data []byte, n uint64) ([]uint64, error) {
	it, err := integerType(dt)
	if err != nil {
		return nil, err
	}
	elems, err := elements(dt, data, n)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i, b := range elems {
		v, err := fixed(it, b)
		if err != nil {
			return nil, err
		}
		if it.Signed && signExtend(v, len(b)) < 0 {
			return nil, fmt.Errorf("negative value %d", signExtend(v, len(b)))
		}
		out[i] = v
	}
	return out, nil
}

// Floats decodes n numeric elements as float64.
func Floats(dt *message.Datatype, data []byte, n uint64) ([]float64, error) {
	if dt != nil && dt.Class != message.ClassFloatPoint {
		if _, err := integerType(dt); err != nil {
			return nil, err
		}
		if dt.Signed {
			ints, err := Ints(dt, data, n)
			if err != nil {
				return nil, err
			}
			out := make([]float64, len(ints))
			for i, v := range ints {
				out[i] = float64(v)
			}
			return out, nil
		}
		uints, err := Uints(dt, data, n)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(uints))
		for i, v := range uints {
			out[i] = float64(v)
		}
		return out, nil
	}

	elems, err := elements(dt, data, n)
	if err != nil {
		return nil, err
	}
	order := ByteOrder(dt)
	out := make([]float64, n)
	for i, b := range elems {
		switch len(b) {
		case 4:
			out[i] = float64(math.Float32frombits(order.Uint32(b)))
		case 8:
			out[i] = math.Float64frombits(order.Uint64(b))
		default:
			return nil, fmt.Errorf("unsupported float size: %d", len(b))
		}
	}
	return out, nil
}

// Text decodes a byte string as UTF-8, falling back to ISO 8859-1 when the
// bytes are not valid UTF-8.
func Text(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// fixedString trims the padding of one fixed-length string element.
func fixedString(dt *message.Datatype, b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	if dt.StringPadding == message.PadSpacePad {
		b = bytes.TrimRight(b, " ")
	}
	return Text(b)
}

// Strings decodes n string elements. Variable-length strings are resolved
// through the global heap and need r.
func Strings(dt *message.Datatype, data []byte, n uint64, r *bin.Reader) ([]string, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	switch {
	case dt.Class == message.ClassString:
		elems, err := elements(dt, data, n)
		if err != nil {
			return nil, err
		}
		out := make([]string, n)
		for i, b := range elems {
			out[i] = fixedString(dt, b)
		}
		return out, nil
	case dt.Class == message.ClassVarLen && dt.IsVarLenString:
		return varLenStrings(data, n, r)
	}
	return nil, fmt.Errorf("datatype class %d is not a string", dt.Class)
}

// varLenStrings resolves variable-length string references. Each reference
// is a 4-byte length, a heap collection address and a 4-byte object index.
func varLenStrings(data []byte, n uint64, r *bin.Reader) ([]string, error) {
	sizes := bin.DefaultSizes
	if r != nil {
		sizes = r.Sizes()
	}
	refSize := 4 + sizes.Offset + 4
	if need := int(n) * refSize; need > len(data) {
		return nil, fmt.Errorf("not enough data: need %d bytes, have %d", need, len(data))
	}

	collections := make(map[uint64]*heap.Collection)
	out := make([]string, n)
	for i := range out {
		ref := data[i*refSize : (i+1)*refSize]
		length := binary.LittleEndian.Uint32(ref)
		id, err := heap.ParseID(ref[4:], sizes)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if id.Collection == 0 {
			continue
		}
		if r == nil {
			return nil, fmt.Errorf("variable-length string needs a file reader (global heap at 0x%x)", id.Collection)
		}

		c, ok := collections[id.Collection]
		if !ok {
			if c, err = heap.ReadCollection(r, id.Collection); err != nil {
				return nil, err
			}
			collections[id.Collection] = c
		}
		obj, err := c.Object(id.Index)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		if int(length) < len(obj) {
			obj = obj[:length]
		}
		out[i] = Text(bytes.TrimRight(obj, "\x00"))
	}
	return out, nil
}

// Values decodes n elements of any supported class into generic values:
// int64 or uint64 for integers, float64 for floats, string for strings,
// map[string]any for compounds and []any for array elements.
func Values(dt *message.Datatype, data []byte, n uint64, r *bin.Reader) ([]any, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	if dt.Class == message.ClassVarLen && dt.IsVarLenString {
		strs, err := varLenStrings(data, n, r)
		if err != nil {
			return nil, err
		}
		return boxed(strs), nil
	}

	elems, err := elements(dt, data, n)
	if err != nil {
		return nil, err
	}
	out := make([]any, n)
	for i, b := range elems {
		if out[i], err = value(dt, b, r); err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
	}
	return out, nil
}

func value(dt *message.Datatype, b []byte, r *bin.Reader) (any, error) {
	switch dt.Class {
	case message.ClassFixedPoint, message.ClassEnum, message.ClassBitfield:
		if it, err := integerType(dt); err == nil && it.Signed {
			v, err := Ints(dt, b, 1)
			if err != nil {
				return nil, err
			}
			return v[0], nil
		}
		v, err := Uints(dt, b, 1)
		if err != nil {
			return nil, err
		}
		return v[0], nil

	case message.ClassFloatPoint:
		v, err := Floats(dt, b, 1)
		if err != nil {
			return nil, err
		}
		return v[0], nil

	case message.ClassString:
		return fixedString(dt, b), nil

	case message.ClassCompound:
		m := make(map[string]any, len(dt.Members))
		for _, member := range dt.Members {
			if member.Type == nil {
				continue
			}
			lo, hi := int(member.ByteOffset), int(member.ByteOffset)+int(member.Type.Size)
			if hi > len(b) {
				return nil, fmt.Errorf("compound member %q exceeds element", member.Name)
			}
			v, err := value(member.Type, b[lo:hi], r)
			if err != nil {
				return nil, fmt.Errorf("compound member %q: %w", member.Name, err)
			}
			m[member.Name] = v
		}
		return m, nil

	case message.ClassArray:
		if dt.BaseType == nil {
			return nil, fmt.Errorf("array type has no base type")
		}
		count := uint64(1)
		for _, d := range dt.ArrayDims {
			count *= uint64(d)
		}
		return Values(dt.BaseType, b, count, r)

	case message.ClassOpaque:
		return append([]byte(nil), b...), nil
	}
	return nil, fmt.Errorf("unsupported datatype class: %d", dt.Class)
}

func boxed[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}
