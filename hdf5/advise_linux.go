//go:build linux

package hdf5

import (
	"os"

	"golang.org/x/sys/unix"
)

// adviseWillNeed starts asynchronous read-ahead of a byte range. Errors are
// ignored: the hint never changes what is read.
func adviseWillNeed(f *os.File, off, n int64) {
	_ = unix.Fadvise(int(f.Fd()), off, n, unix.FADV_WILLNEED)
}
