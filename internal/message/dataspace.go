package message

import "github.com/robert-malhotra/swiftserve/internal/binary"

// DataspaceType is the kind of extent a dataspace describes.
type DataspaceType uint8

const (
	DataspaceScalar DataspaceType = 0
	DataspaceSimple DataspaceType = 1
	DataspaceNull   DataspaceType = 2
)

// Dataspace gives the shape of a dataset or attribute.
type Dataspace struct {
	Version    uint8
	Rank       int
	SpaceType  DataspaceType
	Dimensions []uint64
	MaxDims    []uint64
}

func (m *Dataspace) Type() Type { return TypeDataspace }

// NumElements returns the number of elements in the extent.
func (m *Dataspace) NumElements() uint64 {
	switch m.SpaceType {
	case DataspaceScalar:
		return 1
	case DataspaceSimple:
		n := uint64(1)
		for _, x := range m.Dimensions {
			n *= x
		}
		return n
	}
	return 0
}

// IsScalar reports whether the dataspace holds a single element.
func (m *Dataspace) IsScalar() bool { return m.SpaceType == DataspaceScalar }

// IsNull reports whether the dataspace holds no elements.
func (m *Dataspace) IsNull() bool { return m.SpaceType == DataspaceNull }

func decodeDataspace(d *binary.Decoder) *Dataspace {
	ds := &Dataspace{Version: d.Uint8(), Rank: int(d.Uint8())}
	flags := d.Uint8()

	switch ds.Version {
	case 1:
		d.Skip(5)
		ds.SpaceType = DataspaceSimple
		if ds.Rank == 0 {
			ds.SpaceType = DataspaceScalar
		}
	case 2:
		ds.SpaceType = DataspaceType(d.Uint8())
	default:
		d.Failf("dataspace version %d", ds.Version)
		return ds
	}
	if ds.SpaceType != DataspaceSimple {
		ds.Rank = 0
		return ds
	}

	ds.Dimensions = make([]uint64, ds.Rank)
	for i := range ds.Dimensions {
		ds.Dimensions[i] = d.Length()
	}
	if flags&0x01 != 0 {
		ds.MaxDims = make([]uint64, ds.Rank)
		for i := range ds.MaxDims {
			ds.MaxDims[i] = d.Length()
		}
	}
	return ds
}
