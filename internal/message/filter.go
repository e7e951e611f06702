package message

import "github.com/robert-malhotra/swiftserve/internal/binary"

// Filter identifiers registered with the HDF Group.
const (
	FilterDeflate     uint16 = 1
	FilterShuffle     uint16 = 2
	FilterFletcher32  uint16 = 3
	FilterSZIP        uint16 = 4
	FilterNBit        uint16 = 5
	FilterScaleOffset uint16 = 6
)

// FilterOptional marks a filter that may be skipped when unavailable.
const FilterOptional uint16 = 0x0001

// FilterInfo is one stage of a filter pipeline.
type FilterInfo struct {
	ID         uint16
	Flags      uint16
	Name       string
	ClientData []uint32
}

// IsOptional reports whether the filter may be skipped.
func (f *FilterInfo) IsOptional() bool { return f.Flags&FilterOptional != 0 }

// FilterPipeline lists the filters applied to each chunk, in write order.
type FilterPipeline struct {
	Version uint8
	Filters []FilterInfo
}

func (m *FilterPipeline) Type() Type { return TypeFilterPipeline }

// HasFilter reports whether the pipeline contains filter id.
func (m *FilterPipeline) HasFilter(id uint16) bool {
	for _, f := range m.Filters {
		if f.ID == id {
			return true
		}
	}
	return false
}

func decodeFilterPipeline(d *binary.Decoder) *FilterPipeline {
	fp := &FilterPipeline{Version: d.Uint8()}
	n := int(d.Uint8())
	switch fp.Version {
	case 1:
		d.Skip(6)
	case 2:
	default:
		d.Failf("filter pipeline version %d", fp.Version)
		return fp
	}

	fp.Filters = make([]FilterInfo, n)
	for i := range fp.Filters {
		f := &fp.Filters[i]
		f.ID = d.Uint16()
		var nameLen int
		// Version 2 omits the name length for the predefined filters.
		if fp.Version == 1 || f.ID >= 256 {
			nameLen = int(d.Uint16())
		}
		f.Flags = d.Uint16()
		f.ClientData = make([]uint32, d.Uint16())
		if nameLen > 0 {
			f.Name = d.String(nameLen)
		}
		for j := range f.ClientData {
			f.ClientData[j] = d.Uint32()
		}
		if fp.Version == 1 && len(f.ClientData)%2 == 1 {
			d.Skip(4)
		}
	}
	return fp
}
