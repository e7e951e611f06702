package query

import (
	"errors"
	"fmt"
	"time"

	"github.com/robert-malhotra/swiftserve/hdf5"
)

// HDF5Opener opens HDF5 snapshot files.
type HDF5Opener struct {
	// SharedLock takes an advisory shared lock while the file is open.
	SharedLock bool
	// LockTimeout bounds the wait for a contended lock.
	LockTimeout time.Duration
	// ReadAhead hints the kernel before each contiguous row block is read.
	ReadAhead bool
}

// Open implements Opener.
func (o HDF5Opener) Open(path string) (Source, error) {
	var opts []hdf5.OpenOption
	if o.SharedLock {
		opts = append(opts, hdf5.WithSharedLock(), hdf5.WithLockTimeout(o.LockTimeout))
	}
	if o.ReadAhead {
		opts = append(opts, hdf5.WithReadAhead())
	}
	f, err := hdf5.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	return &hdf5Source{f: f}, nil
}

type hdf5Source struct {
	f *hdf5.File
}

func (s *hdf5Source) Close() error { return s.f.Close() }

func (s *hdf5Source) Field(name string) (RangeReader, error) {
	ds, err := s.f.OpenDataset(name)
	if err != nil {
		if errors.Is(err, hdf5.ErrNotFound) || errors.Is(err, hdf5.ErrNotDataset) || errors.Is(err, hdf5.ErrNotGroup) {
			return nil, fmt.Errorf("%w: %v", ErrNoField, err)
		}
		return nil, err
	}
	dt, err := ds.ElementType()
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", name, err)
	}
	return &hdf5Field{ds: ds, info: FieldInfo{DType: dt, Dims: ds.Shape()}}, nil
}

type hdf5Field struct {
	ds   *hdf5.Dataset
	info FieldInfo
}

func (f *hdf5Field) Info() FieldInfo { return f.info }

func (f *hdf5Field) ReadRanges(ranges []Range, columns []int, dst []byte) (int, error) {
	rr := make([]hdf5.RowRange, len(ranges))
	for i, r := range ranges {
		rr[i] = hdf5.RowRange{Start: uint64(r.Start), End: uint64(r.End)}
	}
	return f.ds.ReadRanges(rr, columns, dst)
}
