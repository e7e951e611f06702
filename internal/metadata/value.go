// Package metadata builds the metadata object of a snapshot and encodes it.
//
// A metadata object is an ordered tree whose leaves come from a closed set
// of kinds. Raw Go values are classified into a Value once, up front; every
// encoder afterwards dispatches on the Kind through a table, so adding a
// kind means adding a variant and its handlers.
//
// Objects built from a file hold the open file while they are being built.
// Build scrubs those handles before returning, and both encoders refuse to
// encode a handle.
package metadata

import (
	"fmt"
	"io"
	"math"
	"time"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/internal/units"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// Kind identifies a metadata leaf or container kind.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt32
	KindInt64
	KindFloat
	KindString
	KindBytes
	KindQuantity
	KindArray
	KindMassTable
	KindParticleType
	KindTime
	KindList
	KindObject
	KindUnits
	KindHandle

	numKinds
)

var kindNames = [numKinds]string{
	KindNull:         "null",
	KindBool:         "bool",
	KindInt32:        "int32",
	KindInt64:        "int64",
	KindFloat:        "float",
	KindString:       "string",
	KindBytes:        "bytes",
	KindQuantity:     "quantity",
	KindArray:        "array",
	KindMassTable:    "mass_table",
	KindParticleType: "particle_type",
	KindTime:         "time",
	KindList:         "list",
	KindObject:       "object",
	KindUnits:        "units",
	KindHandle:       "handle",
}

func (k Kind) String() string {
	if k < numKinds {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Value is a classified metadata value. The zero Value is null.
type Value struct {
	kind Kind
	v    any
}

// Kind returns the value's kind.
func (v Value) Kind() Kind { return v.kind }

// Interface returns the underlying Go value: nil, bool, int32, int64,
// float64, string, []byte, units.Quantity, *ndarray.Array, *MassTable,
// *ParticleType, time.Time, []Value, *Object, *units.Map or io.Closer.
func (v Value) Interface() any { return v.v }

func Null() Value                       { return Value{} }
func Bool(b bool) Value                 { return Value{KindBool, b} }
func Int32(i int32) Value               { return Value{KindInt32, i} }
func Int64(i int64) Value               { return Value{KindInt64, i} }
func Float(f float64) Value             { return Value{KindFloat, f} }
func String(s string) Value             { return Value{KindString, s} }
func Bytes(b []byte) Value              { return Value{KindBytes, b} }
func Quantity(q units.Quantity) Value   { return Value{KindQuantity, q} }
func Array(a *ndarray.Array) Value      { return Value{KindArray, a} }
func MassTableValue(m *MassTable) Value { return Value{KindMassTable, m} }
func Time(t time.Time) Value            { return Value{KindTime, t} }
func List(vs ...Value) Value            { return Value{KindList, vs} }
func ObjectValue(o *Object) Value       { return Value{KindObject, o} }
func Units(u *units.Map) Value          { return Value{KindUnits, u} }
func Handle(c io.Closer) Value          { return Value{KindHandle, c} }

func ParticleTypeValue(p *ParticleType) Value { return Value{KindParticleType, p} }

// Classify converts a raw Go value into a Value. Slices of numbers become
// one-dimensional arrays, maps become objects with sorted keys, and any
// other io.Closer is taken to be a live handle. Types outside the closed
// set fail with apierr.UnencodableValue.
func Classify(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case int32:
		return Int32(x), nil
	case int64:
		return Int64(x), nil
	case int:
		return Int64(int64(x)), nil
	case int8:
		return Int32(int32(x)), nil
	case int16:
		return Int32(int32(x)), nil
	case uint8:
		return Int32(int32(x)), nil
	case uint16:
		return Int32(int32(x)), nil
	case uint32:
		return Int64(int64(x)), nil
	case uint64:
		if x > math.MaxInt64 {
			return Value{}, apierr.NewUnencodableValue(fmt.Sprintf("uint64(%d)", x))
		}
		return Int64(int64(x)), nil
	case float32:
		return Float(float64(x)), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case units.Quantity:
		return Quantity(x), nil
	case *ndarray.Array:
		return Array(x), nil
	case []float64:
		return Array(&ndarray.Array{Shape: []int{len(x)}, DType: ndarray.Float64, Data: x}), nil
	case []float32:
		return Array(&ndarray.Array{Shape: []int{len(x)}, DType: ndarray.Float32, Data: x}), nil
	case []int64:
		return Array(&ndarray.Array{Shape: []int{len(x)}, DType: ndarray.Int64, Data: x}), nil
	case []int32:
		return Array(&ndarray.Array{Shape: []int{len(x)}, DType: ndarray.Int32, Data: x}), nil
	case []uint64:
		return Array(&ndarray.Array{Shape: []int{len(x)}, DType: ndarray.Uint64, Data: x}), nil
	case []uint32:
		return Array(&ndarray.Array{Shape: []int{len(x)}, DType: ndarray.Uint32, Data: x}), nil
	case *MassTable:
		return MassTableValue(x), nil
	case *ParticleType:
		return ParticleTypeValue(x), nil
	case time.Time:
		return Time(x), nil
	case []string:
		vs := make([]Value, len(x))
		for i, s := range x {
			vs[i] = String(s)
		}
		return List(vs...), nil
	case []Value:
		return List(x...), nil
	case []any:
		vs := make([]Value, len(x))
		for i, e := range x {
			v, err := Classify(e)
			if err != nil {
				return Value{}, err
			}
			vs[i] = v
		}
		return List(vs...), nil
	case *Object:
		return ObjectValue(x), nil
	case map[string]any:
		o, err := ObjectFromMap(x)
		if err != nil {
			return Value{}, err
		}
		return ObjectValue(o), nil
	case *units.Map:
		return Units(x), nil
	case io.Closer:
		return Handle(x), nil
	}
	return Value{}, apierr.NewUnencodableValue(fmt.Sprintf("%T", raw))
}
