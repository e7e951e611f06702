package ndarray

import (
	"fmt"
	"math"
)

// Array is a typed n-dimensional array stored in row-major order.
//
// Data holds the elements in a slice whose Go type follows DType:
//
//	ClassInt    []int8, []int16, []int32, []int64
//	ClassUint   []uint8, []uint16, []uint32, []uint64
//	ClassFloat  []float32, []float64
//	ClassBool   []bool
//	ClassBytes  [][]byte
//	ClassObject []any
//
// An Array is owned by whoever produced it and is never shared between
// concurrent requests.
type Array struct {
	Shape []int
	DType DType
	Data  any
}

// NumElements returns the product of the shape (1 for a 0-d array).
func NumElements(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

// Len returns the number of elements held in Data.
func (a *Array) Len() int {
	switch v := a.Data.(type) {
	case []int8:
		return len(v)
	case []int16:
		return len(v)
	case []int32:
		return len(v)
	case []int64:
		return len(v)
	case []uint8:
		return len(v)
	case []uint16:
		return len(v)
	case []uint32:
		return len(v)
	case []uint64:
		return len(v)
	case []float32:
		return len(v)
	case []float64:
		return len(v)
	case []bool:
		return len(v)
	case [][]byte:
		return len(v)
	case []any:
		return len(v)
	default:
		return 0
	}
}

// At returns the element at flat index i as a Go scalar.
func (a *Array) At(i int) any {
	switch v := a.Data.(type) {
	case []int8:
		return v[i]
	case []int16:
		return v[i]
	case []int32:
		return v[i]
	case []int64:
		return v[i]
	case []uint8:
		return v[i]
	case []uint16:
		return v[i]
	case []uint32:
		return v[i]
	case []uint64:
		return v[i]
	case []float32:
		return v[i]
	case []float64:
		return v[i]
	case []bool:
		return v[i]
	case [][]byte:
		return v[i]
	case []any:
		return v[i]
	default:
		return nil
	}
}

// Zeros allocates a zero-filled array of the given dtype and shape.
func Zeros(dt DType, shape []int) (*Array, error) {
	data, err := makeData(dt, NumElements(shape))
	if err != nil {
		return nil, err
	}
	return &Array{Shape: append([]int(nil), shape...), DType: dt, Data: data}, nil
}

func makeData(dt DType, n int) (any, error) {
	switch dt.Class {
	case ClassInt:
		switch dt.Size {
		case 1:
			return make([]int8, n), nil
		case 2:
			return make([]int16, n), nil
		case 4:
			return make([]int32, n), nil
		case 8:
			return make([]int64, n), nil
		}
	case ClassUint:
		switch dt.Size {
		case 1:
			return make([]uint8, n), nil
		case 2:
			return make([]uint16, n), nil
		case 4:
			return make([]uint32, n), nil
		case 8:
			return make([]uint64, n), nil
		}
	case ClassFloat:
		switch dt.Size {
		case 4:
			return make([]float32, n), nil
		case 8:
			return make([]float64, n), nil
		}
	case ClassBool:
		return make([]bool, n), nil
	case ClassBytes:
		return make([][]byte, n), nil
	case ClassObject:
		return make([]any, n), nil
	}
	return nil, fmt.Errorf("unsupported dtype %s", dt)
}

// FromRaw decodes raw bytes laid out in dt's byte order into an array of the
// given shape. len(raw) must equal the element count times dt.Size.
func FromRaw(dt DType, shape []int, raw []byte) (*Array, error) {
	if dt.Class == ClassObject {
		return nil, fmt.Errorf("cannot decode raw bytes as %s", dt)
	}
	n := NumElements(shape)
	if len(raw) != n*dt.Size {
		return nil, fmt.Errorf("raw buffer has %d bytes, want %d for shape %v of %s", len(raw), n*dt.Size, shape, dt)
	}

	a, err := Zeros(dt, shape)
	if err != nil {
		return nil, err
	}
	bo := dt.Order.ByteOrder()
	sz := dt.Size

	switch v := a.Data.(type) {
	case []int8:
		for i := range v {
			v[i] = int8(raw[i])
		}
	case []uint8:
		copy(v, raw)
	case []int16:
		for i := range v {
			v[i] = int16(bo.Uint16(raw[i*sz:]))
		}
	case []uint16:
		for i := range v {
			v[i] = bo.Uint16(raw[i*sz:])
		}
	case []int32:
		for i := range v {
			v[i] = int32(bo.Uint32(raw[i*sz:]))
		}
	case []uint32:
		for i := range v {
			v[i] = bo.Uint32(raw[i*sz:])
		}
	case []int64:
		for i := range v {
			v[i] = int64(bo.Uint64(raw[i*sz:]))
		}
	case []uint64:
		for i := range v {
			v[i] = bo.Uint64(raw[i*sz:])
		}
	case []float32:
		for i := range v {
			v[i] = math.Float32frombits(bo.Uint32(raw[i*sz:]))
		}
	case []float64:
		for i := range v {
			v[i] = math.Float64frombits(bo.Uint64(raw[i*sz:]))
		}
	case []bool:
		for i := range v {
			v[i] = raw[i] != 0
		}
	case [][]byte:
		for i := range v {
			v[i] = trimNull(raw[i*sz : (i+1)*sz])
		}
	}
	return a, nil
}

// Bytes encodes the array's elements in its dtype's byte order, the inverse
// of FromRaw. Object arrays have no binary layout.
func (a *Array) Bytes() ([]byte, error) {
	if a.DType.Class == ClassObject {
		return nil, fmt.Errorf("object arrays have no binary layout")
	}
	sz := a.DType.Size
	out := make([]byte, a.Len()*sz)
	bo := a.DType.Order.ByteOrder()

	switch v := a.Data.(type) {
	case []int8:
		for i, x := range v {
			out[i] = byte(x)
		}
	case []uint8:
		copy(out, v)
	case []int16:
		for i, x := range v {
			bo.PutUint16(out[i*sz:], uint16(x))
		}
	case []uint16:
		for i, x := range v {
			bo.PutUint16(out[i*sz:], x)
		}
	case []int32:
		for i, x := range v {
			bo.PutUint32(out[i*sz:], uint32(x))
		}
	case []uint32:
		for i, x := range v {
			bo.PutUint32(out[i*sz:], x)
		}
	case []int64:
		for i, x := range v {
			bo.PutUint64(out[i*sz:], uint64(x))
		}
	case []uint64:
		for i, x := range v {
			bo.PutUint64(out[i*sz:], x)
		}
	case []float32:
		for i, x := range v {
			bo.PutUint32(out[i*sz:], math.Float32bits(x))
		}
	case []float64:
		for i, x := range v {
			bo.PutUint64(out[i*sz:], math.Float64bits(x))
		}
	case []bool:
		for i, x := range v {
			if x {
				out[i] = 1
			}
		}
	case [][]byte:
		for i, x := range v {
			copy(out[i*sz:(i+1)*sz], x)
		}
	default:
		return nil, fmt.Errorf("unsupported data type %T", a.Data)
	}
	return out, nil
}

func trimNull(b []byte) []byte {
	end := len(b)
	for end > 0 && b[end-1] == 0 {
		end--
	}
	return append([]byte(nil), b[:end]...)
}
