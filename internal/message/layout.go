package message

import "github.com/robert-malhotra/swiftserve/internal/binary"

// LayoutClass is how a dataset's raw data is stored.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0
	LayoutContiguous LayoutClass = 1
	LayoutChunked    LayoutClass = 2
	LayoutVirtual    LayoutClass = 3
)

// ChunkIndexType is the structure indexing a chunked dataset's chunks.
// Layout messages before version 4 always use a version 1 B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0
	ChunkIndexSingle          ChunkIndexType = 1
	ChunkIndexImplicit        ChunkIndexType = 2
	ChunkIndexFixedArray      ChunkIndexType = 3
	ChunkIndexExtensibleArray ChunkIndexType = 4
	ChunkIndexBTreeV2         ChunkIndexType = 5
)

// DataLayout is the storage layout message.
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	// CompactData is the raw data of a compact dataset.
	CompactData []byte

	// Address and Size of a contiguous block. Size is zero before
	// version 3, where it follows from the dataspace.
	Address uint64
	Size    uint64

	// ChunkDims holds the chunk extent per dimension followed by the
	// element size.
	ChunkDims      []uint32
	ChunkIndex     ChunkIndexType
	ChunkIndexAddr uint64
	ChunkFlags     uint8

	// Filtered size and mask of a single-chunk index.
	FilteredChunkSize uint64
	FilteredChunkMask uint32
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

func decodeDataLayout(d *binary.Decoder) *DataLayout {
	l := &DataLayout{Version: d.Uint8()}
	switch l.Version {
	case 1, 2:
		decodeLayoutV1(d, l)
	case 3, 4:
		l.Class = LayoutClass(d.Uint8())
		decodeLayoutV3(d, l)
	default:
		d.Failf("data layout version %d", l.Version)
	}
	return l
}

func decodeLayoutV1(d *binary.Decoder, l *DataLayout) {
	rank := int(d.Uint8())
	l.Class = LayoutClass(d.Uint8())
	d.Skip(5)
	if l.Class != LayoutCompact {
		l.Address = d.Offset()
	}
	dims := make([]uint32, rank)
	for i := range dims {
		dims[i] = d.Uint32()
	}
	switch l.Class {
	case LayoutCompact:
		l.CompactData = d.Bytes(int(d.Uint32()))
	case LayoutChunked:
		l.ChunkDims = dims
		l.ChunkIndexAddr = l.Address
		l.Address = 0
	}
}

func decodeLayoutV3(d *binary.Decoder, l *DataLayout) {
	switch l.Class {
	case LayoutCompact:
		l.CompactData = d.Bytes(int(d.Uint16()))

	case LayoutContiguous:
		l.Address = d.Offset()
		l.Size = d.Length()

	case LayoutChunked:
		if l.Version == 3 {
			rank := int(d.Uint8())
			l.ChunkIndexAddr = d.Offset()
			l.ChunkDims = make([]uint32, rank)
			for i := range l.ChunkDims {
				l.ChunkDims[i] = d.Uint32()
			}
			return
		}
		decodeChunkedV4(d, l)

	case LayoutVirtual:
		l.Address = d.Offset()
		d.Skip(4)

	default:
		d.Failf("layout class %d", l.Class)
	}
}

func decodeChunkedV4(d *binary.Decoder, l *DataLayout) {
	l.ChunkFlags = d.Uint8()
	rank := int(d.Uint8())
	width := int(d.Uint8())
	l.ChunkDims = make([]uint32, rank)
	for i := range l.ChunkDims {
		l.ChunkDims[i] = uint32(d.Uint(width))
	}

	l.ChunkIndex = ChunkIndexType(d.Uint8())
	switch l.ChunkIndex {
	case ChunkIndexSingle:
		if l.ChunkFlags&0x02 != 0 {
			l.FilteredChunkSize = d.Length()
			l.FilteredChunkMask = d.Uint32()
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		d.Skip(1)
	case ChunkIndexExtensibleArray:
		d.Skip(5)
	case ChunkIndexBTreeV2:
		d.Skip(6)
	default:
		d.Failf("chunk index type %d", l.ChunkIndex)
	}
	l.ChunkIndexAddr = d.Offset()
}
