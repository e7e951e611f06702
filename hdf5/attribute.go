package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/dtype"
	"github.com/robert-malhotra/swiftserve/internal/message"
	"github.com/robert-malhotra/swiftserve/internal/object"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// Attribute represents an HDF5 attribute attached to a dataset or group.
type Attribute struct {
	msg    *message.Attribute
	reader *binary.Reader // For resolving global heap references
}

func attrNames(h *object.Header) []string {
	var names []string
	for _, a := range h.Attributes() {
		names = append(names, a.Name)
	}
	return names
}

func findAttr(h *object.Header, r *binary.Reader, name string) *Attribute {
	for _, a := range h.Attributes() {
		if a.Name == name {
			return &Attribute{msg: a, reader: r}
		}
	}
	return nil
}

// Name returns the attribute name.
func (a *Attribute) Name() string {
	return a.msg.Name
}

// Shape returns the dimensions of the attribute value.
func (a *Attribute) Shape() []uint64 {
	if a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar() {
		return nil
	}
	return a.msg.Dataspace.Dimensions
}

// NumElements returns the total number of elements.
func (a *Attribute) NumElements() uint64 {
	if a.msg.Dataspace == nil {
		return 1
	}
	return a.msg.Dataspace.NumElements()
}

// IsScalar returns true if the attribute is a scalar value.
func (a *Attribute) IsScalar() bool {
	return a.msg.Dataspace == nil || a.msg.Dataspace.IsScalar()
}

// DtypeClass returns the datatype class.
func (a *Attribute) DtypeClass() message.DatatypeClass {
	if a.msg.Datatype == nil {
		return 0
	}
	return a.msg.Datatype.Class
}

// IsString reports whether the attribute holds fixed or variable-length strings.
func (a *Attribute) IsString() bool {
	return a.msg.Datatype != nil && a.msg.Datatype.IsString()
}

func (a *Attribute) payload() ([]byte, error) {
	if a.msg.Datatype == nil {
		return nil, fmt.Errorf("attribute %q has no datatype", a.msg.Name)
	}
	if a.msg.Data == nil {
		return nil, fmt.Errorf("attribute %q has no data", a.msg.Name)
	}
	return a.msg.Data, nil
}

// ReadFloat64 reads a numeric attribute as float64 values.
func (a *Attribute) ReadFloat64() ([]float64, error) {
	data, err := a.payload()
	if err != nil {
		return nil, err
	}
	return dtype.Floats(a.msg.Datatype, data, a.NumElements())
}

// ReadInt64 reads an integer attribute as int64 values.
func (a *Attribute) ReadInt64() ([]int64, error) {
	data, err := a.payload()
	if err != nil {
		return nil, err
	}
	return dtype.Ints(a.msg.Datatype, data, a.NumElements())
}

// ReadString reads a fixed or variable-length string attribute.
func (a *Attribute) ReadString() ([]string, error) {
	data, err := a.payload()
	if err != nil {
		return nil, err
	}
	return dtype.Strings(a.msg.Datatype, data, a.NumElements(), a.reader)
}

// Array reads a numeric or fixed-length string attribute into a typed
// array that keeps the on-disk element type and byte order. Scalars yield
// a 0-d array.
func (a *Attribute) Array() (*ndarray.Array, error) {
	if a.msg.Datatype == nil {
		return nil, fmt.Errorf("attribute has no datatype")
	}
	dt, err := elementType(a.msg.Datatype)
	if err != nil {
		return nil, fmt.Errorf("attribute %q: %w", a.msg.Name, err)
	}

	var shape []int
	for _, d := range a.Shape() {
		shape = append(shape, int(d))
	}
	n := int(a.NumElements()) * dt.Size
	if len(a.msg.Data) < n {
		return nil, fmt.Errorf("attribute %q: have %d bytes, need %d", a.msg.Name, len(a.msg.Data), n)
	}
	return ndarray.FromRaw(dt, shape, a.msg.Data[:n])
}

// Value reads the attribute and returns an auto-typed Go value.
//   - Fixed-point and enum: int64 (uint64 for unsigned)
//   - Floating-point: float64
//   - String: string
//   - Compound: map[string]any
//   - Array: []any
//
// For scalar attributes, returns a single value. For array dataspaces,
// returns a slice ([]int64, []uint64, []float64, []string or []any).
func (a *Attribute) Value() (any, error) {
	data, err := a.payload()
	if err != nil {
		return nil, err
	}
	dt, n, scalar := a.msg.Datatype, a.NumElements(), a.IsScalar()

	switch {
	case dt.Class == message.ClassFloatPoint:
		vals, err := dtype.Floats(dt, data, n)
		if err != nil {
			return nil, err
		}
		return unwrapScalar(vals, scalar), nil
	case dt.Class == message.ClassFixedPoint && dt.Signed:
		vals, err := dtype.Ints(dt, data, n)
		if err != nil {
			return nil, err
		}
		return unwrapScalar(vals, scalar), nil
	case dt.Class == message.ClassFixedPoint:
		vals, err := dtype.Uints(dt, data, n)
		if err != nil {
			return nil, err
		}
		return unwrapScalar(vals, scalar), nil
	case a.IsString():
		vals, err := dtype.Strings(dt, data, n, a.reader)
		if err != nil {
			return nil, err
		}
		return unwrapScalar(vals, scalar), nil
	}

	vals, err := dtype.Values(dt, data, n, a.reader)
	if err != nil {
		return nil, err
	}
	return unwrapScalar(vals, scalar), nil
}

func unwrapScalar[T any](vals []T, scalar bool) any {
	if scalar && len(vals) == 1 {
		return vals[0]
	}
	return vals
}
