package hdf5

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/gofrs/flock"

	"github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/object"
	"github.com/robert-malhotra/swiftserve/internal/superblock"
)

// File represents an open HDF5 file. A File and the objects opened from it
// are meant to be used by one goroutine at a time.
type File struct {
	path       string
	file       *os.File
	lock       *flock.Flock
	opts       *openOptions
	base       int64 // file offset that addresses are relative to
	reader     *binary.Reader
	superblock *superblock.Superblock
	root       *Group
	closed     bool
}

// Open opens an HDF5 file for reading.
func Open(path string, opts ...OpenOption) (*File, error) {
	o := defaultOpenOptions()
	for _, opt := range opts {
		opt(o)
	}

	var lock *flock.Flock
	if o.sharedLock {
		var err error
		lock, err = acquireSharedLock(path, o.lockTimeout)
		if err != nil {
			return nil, err
		}
	}

	f, err := os.Open(path)
	if err != nil {
		releaseLock(lock)
		return nil, fmt.Errorf("opening file: %w", err)
	}

	hdf, err := newFile(path, f, lock, o)
	if err != nil {
		f.Close()
		releaseLock(lock)
		return nil, err
	}
	return hdf, nil
}

func newFile(path string, f *os.File, lock *flock.Flock, o *openOptions) (*File, error) {
	sb, err := superblock.Read(f)
	if err != nil {
		if errors.Is(err, superblock.ErrNotHDF5) {
			return nil, fmt.Errorf("%w: %s", ErrNotHDF5, path)
		}
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	var src io.ReaderAt = f
	base := int64(sb.BaseAddress)
	if base != 0 {
		src = io.NewSectionReader(f, base, math.MaxInt64-base)
	}

	hdf := &File{
		path:       path,
		file:       f,
		lock:       lock,
		opts:       o,
		base:       base,
		reader:     binary.NewReader(src, sb.Sizes),
		superblock: sb,
	}

	obj, err := hdf.openAt(sb.RootAddress, "/")
	if err != nil {
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	root, ok := obj.(*Group)
	if !ok {
		return nil, fmt.Errorf("opening root group: %w", ErrNotGroup)
	}
	hdf.root = root
	return hdf, nil
}

// acquireSharedLock takes a shared advisory lock, retrying until timeout
// while another process holds an exclusive lock.
func acquireSharedLock(path string, timeout time.Duration) (*flock.Flock, error) {
	l := flock.New(path, flock.SetFlag(os.O_RDONLY))
	deadline := time.Now().Add(timeout)
	for {
		locked, err := l.TryRLock()
		if err != nil {
			return nil, fmt.Errorf("locking file: %w", err)
		}
		if locked {
			return l, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func releaseLock(l *flock.Flock) {
	if l != nil {
		_ = l.Unlock()
	}
}

// Close closes the file and releases its lock.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	err := f.file.Close()
	releaseLock(f.lock)
	return err
}

// Size returns the size of the underlying file in bytes.
func (f *File) Size() (int64, error) {
	st, err := f.file.Stat()
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

// advise hints the kernel that a byte range is about to be read. off is
// an HDF5 address.
func (f *File) advise(off, n int64) {
	if f.opts == nil || !f.opts.readAhead || n <= 0 {
		return
	}
	adviseWillNeed(f.file, f.base+off, n)
}

// Root returns the root group of the file.
func (f *File) Root() *Group {
	return f.root
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.superblock.Version)
}

// OpenGroup opens a group by path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens a dataset by path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenDataset(path)
}

// openAt reads the object header at address and returns a *Dataset or a
// *Group.
func (f *File) openAt(address uint64, path string) (any, error) {
	header, err := object.Read(f.reader, address)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}
	if header.IsDataset() {
		return newDataset(f, path, header)
	}
	return &Group{file: f, path: path, header: header}, nil
}

// resolve follows an absolute path from the root group to an object
// header address. depth counts the soft links already followed.
func (f *File) resolve(absPath string, depth int) (uint64, error) {
	parts := splitPath(absPath)
	if len(parts) == 0 {
		return f.superblock.RootAddress, nil
	}

	current := f.root
	for i, name := range parts {
		addr, err := current.lookup(name, depth)
		if err != nil {
			return 0, fmt.Errorf("resolving %s: %w", absPath, err)
		}
		if i == len(parts)-1 {
			return addr, nil
		}
		obj, err := f.openAt(addr, "")
		if err != nil {
			return 0, err
		}
		g, ok := obj.(*Group)
		if !ok {
			return 0, fmt.Errorf("%w: %q in %s", ErrNotGroup, name, absPath)
		}
		current = g
	}
	return 0, ErrInvalidPath
}

// GetAttr returns an attribute by path of the form /group/object@name.
func (f *File) GetAttr(path string) (*Attribute, error) {
	if f.closed {
		return nil, ErrClosed
	}

	objectPath, attrName, err := ParseAttrPath(path)
	if err != nil {
		return nil, err
	}

	obj, err := f.root.open(objectPath)
	if err != nil {
		return nil, fmt.Errorf("opening object %s: %w", objectPath, err)
	}
	holder, ok := obj.(attributeHolder)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, objectPath)
	}

	attr := holder.Attr(attrName)
	if attr == nil {
		return nil, fmt.Errorf("%w: attribute %s", ErrNotFound, path)
	}
	return attr, nil
}

// ReadAttr reads an attribute value by path. See [Attribute.Value].
//
//	val, err := f.ReadAttr("/Header@BoxSize")
func (f *File) ReadAttr(path string) (any, error) {
	attr, err := f.GetAttr(path)
	if err != nil {
		return nil, err
	}
	return attr.Value()
}

// attributeHolder is a group or dataset.
type attributeHolder interface {
	Attr(name string) *Attribute
}
