// Package hdf5 provides a pure Go, read-only implementation for reading HDF5
// files, with row-range reads for column-oriented snapshot data.
package hdf5

import "errors"

// Common errors
var (
	ErrNotHDF5     = errors.New("not an HDF5 file")
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = errors.New("unsupported feature")
	ErrInvalidPath = errors.New("invalid path")
	ErrClosed      = errors.New("file is closed")
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
	ErrLocked      = errors.New("file is locked by another process")
	ErrOutOfRange  = errors.New("selection out of range")
	ErrShortBuffer = errors.New("destination buffer too small")
)

// MaxLinkDepth is the maximum number of soft links that can be followed
// in a single path resolution. This prevents stack overflow from deeply nested links.
const MaxLinkDepth = 100
