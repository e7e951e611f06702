package ndarray

import (
	stdjson "encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/robert-malhotra/swiftserve/apierr"
)

// json keeps numbers as json.Number so integers survive decoding without a
// round trip through float64.
var json = jsoniter.Config{
	UseNumber:              true,
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// Serialized is the wire form of an Array.
type Serialized struct {
	// Array is the data as nested lists mirroring the shape.
	Array any `json:"array"`
	// DType is the dtype tag, including byte order.
	DType string `json:"dtype"`
}

// Encode converts an array into its wire form. Non-finite floats are
// written as the strings "NaN", "Infinity" and "-Infinity", which Decode
// accepts for float dtypes.
func Encode(a *Array) Serialized {
	return Serialized{
		Array: nest(a.Shape, leafFunc(a)),
		DType: a.DType.String(),
	}
}

// Marshal encodes the array and renders the wire form as JSON.
func Marshal(a *Array) ([]byte, error) {
	return json.Marshal(Encode(a))
}

// MarshalValues renders nested wire values as JSON text.
func MarshalValues(values any) ([]byte, error) {
	return json.Marshal(values)
}

func nest(shape []int, leaf func(int) any) any {
	if len(shape) == 0 {
		return leaf(0)
	}
	idx := 0
	var build func(dim int) []any
	build = func(dim int) []any {
		out := make([]any, shape[dim])
		for i := range out {
			if dim == len(shape)-1 {
				out[i] = leaf(idx)
				idx++
			} else {
				out[i] = build(dim + 1)
			}
		}
		return out
	}
	return build(0)
}

func leafFunc(a *Array) func(int) any {
	switch v := a.Data.(type) {
	case []int8:
		return func(i int) any { return int64(v[i]) }
	case []int16:
		return func(i int) any { return int64(v[i]) }
	case []int32:
		return func(i int) any { return int64(v[i]) }
	case []int64:
		return func(i int) any { return v[i] }
	case []uint8:
		return func(i int) any { return uint64(v[i]) }
	case []uint16:
		return func(i int) any { return uint64(v[i]) }
	case []uint32:
		return func(i int) any { return uint64(v[i]) }
	case []uint64:
		return func(i int) any { return v[i] }
	case []float32:
		return func(i int) any {
			if f := float64(v[i]); math.IsNaN(f) || math.IsInf(f, 0) {
				return nonFinite(f)
			}
			return v[i]
		}
	case []float64:
		return func(i int) any {
			if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
				return nonFinite(v[i])
			}
			return v[i]
		}
	case []bool:
		return func(i int) any { return v[i] }
	case [][]byte:
		return func(i int) any { return string(v[i]) }
	case []any:
		return func(i int) any { return plain(v[i]) }
	default:
		return func(int) any { return nil }
	}
}

func nonFinite(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case f > 0:
		return "Infinity"
	default:
		return "-Infinity"
	}
}

// plain converts decoded JSON numbers inside object elements to int64 or
// float64 so callers never see json.Number.
func plain(v any) any {
	switch x := v.(type) {
	case stdjson.Number:
		if i, err := strconv.ParseInt(string(x), 10, 64); err == nil {
			return i
		}
		f, _ := strconv.ParseFloat(string(x), 64)
		return f
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = plain(x[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = plain(e)
		}
		return out
	default:
		return v
	}
}

// Decode parses JSON text holding nested lists and casts it to dtype. An
// empty dtype infers the element kind from the literal values.
//
// Ragged nesting fails with apierr.InvalidArrayShape unless dtype is the
// object kind; an unknown dtype tag or an element that cannot be cast fails
// with apierr.InvalidDType.
func Decode(text string, dtype string) (*Array, error) {
	var dt *DType
	if dtype != "" {
		d, err := ParseDType(dtype)
		if err != nil {
			return nil, err
		}
		dt = &d
	}

	var v any
	if err := json.UnmarshalFromString(text, &v); err != nil {
		return nil, apierr.NewInvalidArrayShape(fmt.Errorf("parsing JSON: %w", err))
	}
	return decodeValue(v, dt)
}

// DecodeValues casts already-parsed nested values (such as Serialized.Array)
// to dtype.
func DecodeValues(values any, dtype string) (*Array, error) {
	var dt *DType
	if dtype != "" {
		d, err := ParseDType(dtype)
		if err != nil {
			return nil, err
		}
		dt = &d
	}
	return decodeValue(values, dt)
}

func decodeValue(v any, dt *DType) (*Array, error) {
	if dt != nil && dt.Class == ClassObject {
		shape := objectShape(v)
		leaves := make([]any, 0, NumElements(shape))
		leaves = collect(v, len(shape), leaves)
		for i := range leaves {
			leaves[i] = plain(leaves[i])
		}
		return &Array{Shape: shape, DType: *dt, Data: leaves}, nil
	}

	shape := probeShape(v)
	if err := checkShape(v, shape, 0); err != nil {
		return nil, apierr.NewInvalidArrayShape(err)
	}
	leaves := collect(v, len(shape), make([]any, 0, NumElements(shape)))

	var d DType
	if dt != nil {
		d = *dt
	} else {
		d = inferDType(leaves)
		if d.Class == ClassObject {
			for i := range leaves {
				leaves[i] = plain(leaves[i])
			}
			return &Array{Shape: shape, DType: d, Data: leaves}, nil
		}
	}

	a, err := Zeros(d, shape)
	if err != nil {
		return nil, apierr.NewInvalidDType(d.String(), err)
	}
	if err := fill(a, leaves); err != nil {
		return nil, apierr.NewInvalidDType(d.String(), err)
	}
	return a, nil
}

// probeShape follows the first element at each depth.
func probeShape(v any) []int {
	var shape []int
	for {
		list, ok := v.([]any)
		if !ok {
			return shape
		}
		shape = append(shape, len(list))
		if len(list) == 0 {
			return shape
		}
		v = list[0]
	}
}

var errRagged = errors.New("inhomogeneous shape")

func checkShape(v any, shape []int, depth int) error {
	list, isList := v.([]any)
	if depth == len(shape) {
		if isList {
			return fmt.Errorf("%w: unexpected sequence at depth %d", errRagged, depth)
		}
		return nil
	}
	if !isList {
		return fmt.Errorf("%w: expected sequence at depth %d", errRagged, depth)
	}
	if len(list) != shape[depth] {
		return fmt.Errorf("%w: sequence of length %d at depth %d, want %d", errRagged, len(list), depth, shape[depth])
	}
	for _, e := range list {
		if err := checkShape(e, shape, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// objectShape returns the deepest consistent prefix of the probed shape;
// everything below it becomes an opaque element.
func objectShape(v any) []int {
	full := probeShape(v)
	for k := len(full); k > 0; k-- {
		if checkPrefix(v, full[:k], 0) {
			return full[:k]
		}
	}
	return nil
}

func checkPrefix(v any, shape []int, depth int) bool {
	if depth == len(shape) {
		return true
	}
	list, ok := v.([]any)
	if !ok || len(list) != shape[depth] {
		return false
	}
	for _, e := range list {
		if !checkPrefix(e, shape, depth+1) {
			return false
		}
	}
	return true
}

func collect(v any, depth int, out []any) []any {
	if depth == 0 {
		return append(out, v)
	}
	for _, e := range v.([]any) {
		out = collect(e, depth-1, out)
	}
	return out
}

func inferDType(leaves []any) DType {
	if len(leaves) == 0 {
		return Float64
	}
	allBool, allInt, allNum := true, true, true
	for _, l := range leaves {
		switch x := l.(type) {
		case bool:
			allInt, allNum = false, false
		case stdjson.Number:
			allBool = false
			if _, err := strconv.ParseInt(string(x), 10, 64); err != nil {
				allInt = false
			}
		case int64, int32, int16, int8, int, uint8, uint16, uint32:
			allBool = false
		case float32, float64, uint64:
			allBool, allInt = false, false
		default:
			return Object
		}
	}
	switch {
	case allBool:
		return Bool
	case allInt && allNum:
		return Int64
	case allNum:
		return Float64
	default:
		return Object
	}
}

func fill(a *Array, leaves []any) error {
	bits := a.DType.Size * 8
	for i, l := range leaves {
		var err error
		switch v := a.Data.(type) {
		case []int8:
			var x int64
			x, err = toInt(l, bits)
			v[i] = int8(x)
		case []int16:
			var x int64
			x, err = toInt(l, bits)
			v[i] = int16(x)
		case []int32:
			var x int64
			x, err = toInt(l, bits)
			v[i] = int32(x)
		case []int64:
			v[i], err = toInt(l, bits)
		case []uint8:
			var x uint64
			x, err = toUint(l, bits)
			v[i] = uint8(x)
		case []uint16:
			var x uint64
			x, err = toUint(l, bits)
			v[i] = uint16(x)
		case []uint32:
			var x uint64
			x, err = toUint(l, bits)
			v[i] = uint32(x)
		case []uint64:
			v[i], err = toUint(l, bits)
		case []float32:
			var x float64
			x, err = toFloat(l, 32)
			v[i] = float32(x)
		case []float64:
			v[i], err = toFloat(l, 64)
		case []bool:
			v[i], err = toBool(l)
		case [][]byte:
			v[i], err = toBytes(l, a.DType.Size)
		}
		if err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// numberText renders a scalar leaf as text suitable for strconv parsing.
func numberText(v any) (string, error) {
	switch x := v.(type) {
	case stdjson.Number:
		return string(x), nil
	case string:
		return x, nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	default:
		return "", fmt.Errorf("cannot convert %T to a number", v)
	}
}

func toInt(v any, bits int) (int64, error) {
	s, err := numberText(v)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(s, 10, bits)
	if err == nil {
		return i, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%s overflows int%d", s, bits)
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert %q to int%d", s, bits)
	}
	f = math.Trunc(f)
	lim := math.Ldexp(1, bits-1)
	if f < -lim || f >= lim {
		return 0, fmt.Errorf("%s overflows int%d", s, bits)
	}
	return int64(f), nil
}

func toUint(v any, bits int) (uint64, error) {
	s, err := numberText(v)
	if err != nil {
		return 0, err
	}
	u, err := strconv.ParseUint(s, 10, bits)
	if err == nil {
		return u, nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%s overflows uint%d", s, bits)
	}
	f, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("cannot convert %q to uint%d", s, bits)
	}
	f = math.Trunc(f)
	if f < 0 || f >= math.Ldexp(1, bits) {
		return 0, fmt.Errorf("%s overflows uint%d", s, bits)
	}
	return uint64(f), nil
}

func toFloat(v any, bits int) (float64, error) {
	if v == nil {
		return math.NaN(), nil
	}
	s, err := numberText(v)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("cannot convert %q to float%d", s, bits)
	}
	return f, nil
}

func toBool(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	s, err := numberText(v)
	if err != nil {
		return false, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false, fmt.Errorf("cannot convert %q to bool", s)
	}
	return f != 0, nil
}

func toBytes(v any, width int) ([]byte, error) {
	var b []byte
	switch x := v.(type) {
	case string:
		b = []byte(x)
	case []byte:
		b = x
	default:
		s, err := numberText(v)
		if err != nil {
			return nil, err
		}
		b = []byte(s)
	}
	if len(b) > width {
		b = b[:width]
	}
	return append([]byte(nil), b...), nil
}
