package query

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"math/bits"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/robert-malhotra/swiftserve/apierr"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// Engine reads fields into typed arrays. It holds no per-request state and
// is safe for concurrent use when its Opener is.
type Engine struct {
	opener Opener
	logger log.Logger
}

// NewEngine creates an Engine reading through opener. A nil logger discards
// log lines.
func NewEngine(opener Opener, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Engine{opener: opener, logger: logger}
}

// ReadAll reads every row of field.
//
// Without a selector a multi-component field keeps its full shape (rows by
// components). A single column yields a 1-D array with one value per row;
// a list of k columns yields rows by k. One-dimensional fields ignore the
// selector.
func (e *Engine) ReadAll(ctx context.Context, path, field string, cols Columns) (*ndarray.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *ndarray.Array
	err := e.withField(path, field, func(r RangeReader) error {
		info := r.Info()
		if !info.MultiComponent() {
			cols = nil
		}
		if err := checkColumns(field, path, cols, info); err != nil {
			return err
		}

		rows := info.Rows()
		shape := resultShape(info, int(rows), cols)
		if len(info.Dims) == 0 {
			shape = []int{}
		}

		var err error
		out, err = gather(r, info, []Range{{Start: 0, End: rows}}, cols, shape)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadMasked reads the rows selected by a wire mask: maskJSON is a JSON
// list of [start, end) pairs decoded with maskDType, and maskSize is the
// number of rows the result holds.
//
// A multi-component field read without a selector yields maskSize by
// components; otherwise the result has one row per selected row, or maskSize
// by k for a list of k columns. Ranges are checked against the field's row
// count before any data is read. If they select fewer rows than maskSize the
// trailing rows are zero.
func (e *Engine) ReadMasked(ctx context.Context, path, field, maskJSON, maskDType string, maskSize int, cols Columns) (*ndarray.Array, error) {
	mask, err := ParseMask(field, maskJSON, maskDType, maskSize)
	if err != nil {
		return nil, err
	}
	return e.ReadMask(ctx, path, field, mask, cols)
}

// ReadMask is ReadMasked for an already decoded mask.
func (e *Engine) ReadMask(ctx context.Context, path, field string, mask Mask, cols Columns) (*ndarray.Array, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *ndarray.Array
	err := e.withField(path, field, func(r RangeReader) error {
		info := r.Info()
		if !info.MultiComponent() {
			cols = nil
		}
		if err := checkColumns(field, path, cols, info); err != nil {
			return err
		}
		if err := mask.check(field, path, info.Rows()); err != nil {
			return err
		}

		shape := resultShape(info, mask.Size, cols)
		if _, ok := bufferSize(shape, info.DType.Size); !ok {
			return apierr.NewMaskOutOfBounds(field, path,
				fmt.Sprintf("mask size %d with shape %v does not fit in memory", mask.Size, shape))
		}

		var err error
		out, err = gather(r, info, mask.Ranges, cols, shape)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Probe returns the geometry and element type of field without reading it.
func (e *Engine) Probe(ctx context.Context, path, field string) (FieldInfo, error) {
	if err := ctx.Err(); err != nil {
		return FieldInfo{}, err
	}
	var info FieldInfo
	err := e.withField(path, field, func(r RangeReader) error {
		info = r.Info()
		return nil
	})
	return info, err
}

// withField opens path, looks up field and runs fn. The file is closed on
// every return path.
func (e *Engine) withField(path, field string, fn func(RangeReader) error) (err error) {
	src, err := e.opener.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apierr.NewDatasetPathInvalid(path, err)
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			level.Warn(e.logger).Log("msg", "closing snapshot failed", "path", path, "err", cerr)
			if err == nil {
				err = fmt.Errorf("closing %s: %w", path, cerr)
			}
		}
	}()

	r, err := src.Field(field)
	if err != nil {
		if errors.Is(err, ErrNoField) {
			return apierr.NewFieldNotFound(field, path, err)
		}
		return fmt.Errorf("opening field %s in %s: %w", field, path, err)
	}
	return fn(r)
}

func checkColumns(field, path string, cols Columns, info FieldInfo) error {
	n := info.Components()
	for _, c := range cols {
		if c < 0 || c >= n {
			return apierr.NewColumnOutOfRange(field, path, c, n)
		}
	}
	return nil
}

// resultShape applies the shape policy for rows output rows.
func resultShape(info FieldInfo, rows int, cols Columns) []int {
	switch {
	case len(cols) == 1:
		return []int{rows}
	case len(cols) > 1:
		return []int{rows, len(cols)}
	case info.MultiComponent():
		shape := []int{rows}
		for _, d := range info.Dims[1:] {
			shape = append(shape, int(d))
		}
		return shape
	}
	return []int{rows}
}

// gather reads ranges into a zeroed buffer sized for shape and decodes it.
func gather(r RangeReader, info FieldInfo, ranges []Range, cols Columns, shape []int) (*ndarray.Array, error) {
	n, ok := bufferSize(shape, info.DType.Size)
	if !ok {
		return nil, fmt.Errorf("result shape %v of %d-byte elements overflows", shape, info.DType.Size)
	}
	buf := make([]byte, n)
	if _, err := r.ReadRanges(ranges, cols, buf); err != nil {
		return nil, fmt.Errorf("reading ranges: %w", err)
	}
	return ndarray.FromRaw(info.DType, shape, buf)
}

// bufferSize returns the byte size of shape with elemSize-byte elements, or
// false if it does not fit in an int.
func bufferSize(shape []int, elemSize int) (int, bool) {
	n := uint64(elemSize)
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > math.MaxInt {
			return 0, false
		}
		n = lo
	}
	return int(n), true
}
