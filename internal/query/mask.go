package query

import (
	"fmt"
	"strings"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// ParseMask decodes a wire mask, a JSON list of [start, end) pairs, using
// dtype for the element type. An empty dtype infers it. A bare pair is
// accepted as a single range.
func ParseMask(field, text, dtype string, size int) (Mask, error) {
	if strings.TrimSpace(text) == "" {
		return Mask{}, apierr.NewMaskRequired(field)
	}
	arr, err := ndarray.Decode(text, dtype)
	if err != nil {
		return Mask{}, err
	}
	return MaskFromArray(field, arr, size)
}

// MaskFromArray converts an integer array of shape (n, 2) into a Mask.
func MaskFromArray(field string, arr *ndarray.Array, size int) (Mask, error) {
	if arr == nil {
		return Mask{}, apierr.NewMaskRequired(field)
	}
	if size < 0 {
		return Mask{}, apierr.NewMaskOutOfBounds(field, "", fmt.Sprintf("negative mask size %d", size))
	}

	n := arr.Len()
	switch {
	case n == 0:
		return Mask{Size: size}, nil
	case len(arr.Shape) == 1 && arr.Shape[0] == 2:
	case len(arr.Shape) == 2 && arr.Shape[1] == 2:
	default:
		return Mask{}, apierr.NewInvalidArrayShape(fmt.Errorf("mask must have shape (n, 2), got %v", arr.Shape))
	}
	if !arr.DType.IsInteger() {
		return Mask{}, apierr.NewInvalidDType(arr.DType.String(), fmt.Errorf("mask elements must be integers"))
	}

	m := Mask{Ranges: make([]Range, 0, n/2), Size: size}
	for i := 0; i < n; i += 2 {
		start, err := asInt64(arr.At(i))
		if err != nil {
			return Mask{}, apierr.NewInvalidDType(arr.DType.String(), err)
		}
		end, err := asInt64(arr.At(i + 1))
		if err != nil {
			return Mask{}, apierr.NewInvalidDType(arr.DType.String(), err)
		}
		m.Ranges = append(m.Ranges, Range{Start: start, End: end})
	}
	return m, nil
}

func asInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		if x > 1<<63-1 {
			return 0, fmt.Errorf("mask bound %d overflows int64", x)
		}
		return int64(x), nil
	}
	return 0, fmt.Errorf("mask bound %v is not an integer", v)
}

// check validates the mask against the field before any data is read.
func (m Mask) check(field, path string, rows int64) error {
	var total int64
	for i, r := range m.Ranges {
		if r.Start < 0 || r.End < r.Start || r.End > rows {
			return apierr.NewMaskOutOfBounds(field, path,
				fmt.Sprintf("range %d [%d, %d) outside rows [0, %d)", i, r.Start, r.End, rows))
		}
		total += r.Len()
	}
	if total > int64(m.Size) {
		return apierr.NewMaskOutOfBounds(field, path,
			fmt.Sprintf("ranges select %d rows, mask size is %d", total, m.Size))
	}
	return nil
}
