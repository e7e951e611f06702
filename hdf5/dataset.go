package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/swiftserve/internal/layout"
	"github.com/robert-malhotra/swiftserve/internal/message"
	"github.com/robert-malhotra/swiftserve/internal/object"
	"github.com/robert-malhotra/swiftserve/ndarray"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layout    layout.Layout
}

// RowRange is a half-open range [Start, End) over the first dimension.
type RowRange struct {
	Start, End uint64
}

// newDataset creates a Dataset from an object header.
func newDataset(f *File, path string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{
		file:   f,
		path:   path,
		header: header,
	}

	ds.dataspace = header.Dataspace()
	if ds.dataspace == nil {
		return nil, fmt.Errorf("dataset missing dataspace message")
	}

	dt, err := datatypeOf(f, header)
	if err != nil {
		return nil, err
	}
	ds.datatype = dt

	layoutMsg := header.DataLayout()
	if layoutMsg == nil {
		return nil, fmt.Errorf("dataset missing layout message")
	}

	ds.layout, err = layout.New(layoutMsg, ds.dataspace, ds.datatype, header.FilterPipeline(), f.reader)
	if err != nil {
		return nil, fmt.Errorf("creating layout: %w", err)
	}

	return ds, nil
}

// datatypeOf returns the dataset's datatype, reading it from the committed
// datatype object when the header only holds a reference to one.
func datatypeOf(f *File, header *object.Header) (*message.Datatype, error) {
	if dt := header.Datatype(); dt != nil {
		return dt, nil
	}
	shared := header.SharedDatatype()
	if shared == nil {
		return nil, fmt.Errorf("dataset missing datatype message")
	}
	committed, err := object.Read(f.reader, shared.Address)
	if err != nil {
		return nil, fmt.Errorf("reading committed datatype: %w", err)
	}
	if dt := committed.Datatype(); dt != nil {
		return dt, nil
	}
	return nil, fmt.Errorf("committed datatype at 0x%x has no datatype message", shared.Address)
}

// Name returns the dataset name (last component of path).
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the full path to this dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Shape returns the dimensions of the dataset.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.dataspace.Rank
}

// NumElements returns the total number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.dataspace.NumElements()
}

// IsScalar returns true if the dataset is a scalar (single value).
func (d *Dataset) IsScalar() bool {
	return d.dataspace.IsScalar()
}

// DtypeSize returns the size of each element in bytes.
func (d *Dataset) DtypeSize() int {
	return int(d.datatype.Size)
}

// DtypeClass returns the datatype class.
func (d *Dataset) DtypeClass() message.DatatypeClass {
	return d.datatype.Class
}

// LayoutClass returns the storage layout class.
func (d *Dataset) LayoutClass() message.LayoutClass {
	return d.layout.Class()
}

// ElementType returns the array dtype of the stored elements, including
// the on-disk byte order.
func (d *Dataset) ElementType() (ndarray.DType, error) {
	return elementType(d.datatype)
}

// Components returns the number of elements in one row: the product of all
// dimensions after the first. One-dimensional datasets have one component.
func (d *Dataset) Components() uint64 {
	dims := d.Shape()
	n := uint64(1)
	if len(dims) > 1 {
		for _, x := range dims[1:] {
			n *= x
		}
	}
	return n
}

// Rows returns the extent of the first dimension (1 for scalars).
func (d *Dataset) Rows() uint64 {
	dims := d.Shape()
	if len(dims) == 0 {
		return 1
	}
	return dims[0]
}

// ReadRaw reads all data from the dataset as raw bytes in file byte order.
func (d *Dataset) ReadRaw() ([]byte, error) {
	return d.layout.Read()
}

// ReadArray reads the whole dataset into a typed array.
func (d *Dataset) ReadArray() (*ndarray.Array, error) {
	dt, err := d.ElementType()
	if err != nil {
		return nil, err
	}
	raw, err := d.layout.Read()
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	shape := make([]int, 0, len(d.Shape()))
	for _, x := range d.Shape() {
		shape = append(shape, int(x))
	}
	return ndarray.FromRaw(dt, shape, raw)
}

// ReadSlice reads a hyperslab as raw bytes in row-major order.
func (d *Dataset) ReadSlice(start, count []uint64) ([]byte, error) {
	return d.layout.ReadSlice(start, count)
}

// ReadRanges gathers the rows of each range, in the order given, into dst
// and returns the number of bytes written. Ranges may overlap or repeat.
//
// When columns is non-nil only those component indices of each row are
// copied, in the order listed; a component index addresses the flattened
// trailing dimensions. Bytes are copied in file byte order.
func (d *Dataset) ReadRanges(ranges []RowRange, columns []int, dst []byte) (int, error) {
	if d.file.closed {
		return 0, ErrClosed
	}

	elemSize := int(d.datatype.Size)
	components := int(d.Components())
	rowBytes := components * elemSize
	outRow := rowBytes
	if columns != nil {
		for _, c := range columns {
			if c < 0 || c >= components {
				return 0, fmt.Errorf("%w: column %d of %d components", ErrOutOfRange, c, components)
			}
		}
		outRow = len(columns) * elemSize
	}

	rows := d.Rows()
	pos := 0
	for _, r := range ranges {
		if r.End < r.Start || r.End > rows {
			return pos, fmt.Errorf("%w: rows [%d, %d) of %d", ErrOutOfRange, r.Start, r.End, rows)
		}
		n := int(r.End - r.Start)
		if n == 0 {
			continue
		}
		need := n * outRow
		if pos+need > len(dst) {
			return pos, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, need, pos, len(dst))
		}

		if c, ok := d.layout.(*layout.Contiguous); ok {
			d.file.advise(c.Span(r.Start, r.End-r.Start))
		}
		block, err := d.layout.ReadRows(r.Start, r.End-r.Start)
		if err != nil {
			return pos, fmt.Errorf("reading rows [%d, %d): %w", r.Start, r.End, err)
		}

		if columns == nil {
			copy(dst[pos:pos+need], block)
		} else {
			for i := 0; i < n; i++ {
				row := block[i*rowBytes : (i+1)*rowBytes]
				out := dst[pos+i*outRow : pos+(i+1)*outRow]
				for j, c := range columns {
					copy(out[j*elemSize:(j+1)*elemSize], row[c*elemSize:(c+1)*elemSize])
				}
			}
		}
		pos += need
	}

	return pos, nil
}

// Attrs returns the attribute names for this dataset.
func (d *Dataset) Attrs() []string {
	return attrNames(d.header)
}

// Attr returns an attribute by name, or nil if not found.
func (d *Dataset) Attr(name string) *Attribute {
	return findAttr(d.header, d.file.reader, name)
}

// HasAttr returns true if the dataset has an attribute with the given name.
func (d *Dataset) HasAttr(name string) bool {
	return d.Attr(name) != nil
}

// elementType maps an HDF5 datatype to an array dtype.
func elementType(dt *message.Datatype) (ndarray.DType, error) {
	order := ndarray.OrderLittle
	if dt.ByteOrder == message.OrderBE {
		order = ndarray.OrderBig
	}
	size := int(dt.Size)

	var out ndarray.DType
	switch dt.Class {
	case message.ClassFixedPoint:
		out = ndarray.DType{Class: ndarray.ClassUint, Size: size}
		if dt.Signed {
			out.Class = ndarray.ClassInt
		}
	case message.ClassFloatPoint:
		out = ndarray.DType{Class: ndarray.ClassFloat, Size: size}
	case message.ClassString:
		return ndarray.Bytes(size), nil
	case message.ClassEnum:
		if dt.BaseType == nil {
			return ndarray.DType{}, fmt.Errorf("%w: enum without base type", ErrUnsupported)
		}
		return elementType(dt.BaseType)
	default:
		return ndarray.DType{}, fmt.Errorf("%w: datatype class %d", ErrUnsupported, dt.Class)
	}

	if _, err := ndarray.ParseDType(out.WithOrder(order).String()); err != nil {
		return ndarray.DType{}, fmt.Errorf("%w: %d-byte element", ErrUnsupported, size)
	}
	return out.WithOrder(order), nil
}
