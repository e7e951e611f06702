package hdf5

import "time"

// OpenOption configures how a file is opened.
type OpenOption func(*openOptions)

type openOptions struct {
	sharedLock  bool
	lockTimeout time.Duration
	readAhead   bool
}

func defaultOpenOptions() *openOptions {
	return &openOptions{
		lockTimeout: 0,
	}
}

// WithSharedLock takes an advisory shared lock on the file for as long as it
// is open. Writers using HDF5 file locking hold an exclusive lock, so a file
// that is being written cannot be opened until the writer finishes.
func WithSharedLock() OpenOption {
	return func(o *openOptions) {
		o.sharedLock = true
	}
}

// WithLockTimeout sets how long Open keeps retrying a contended shared lock.
// Zero tries once.
func WithLockTimeout(d time.Duration) OpenOption {
	return func(o *openOptions) {
		if d >= 0 {
			o.lockTimeout = d
		}
	}
}

// WithReadAhead issues read-ahead hints to the kernel before each
// contiguous row block is read. It has no effect on platforms without
// posix_fadvise.
func WithReadAhead() OpenOption {
	return func(o *openOptions) {
		o.readAhead = true
	}
}
