package filter

import (
	"encoding/binary"
	"fmt"
	"math/bits"

	hbin "github.com/robert-malhotra/swiftserve/internal/binary"
	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Fletcher32Filter strips and verifies the 4-byte checksum the Fletcher-32
// filter appends to each chunk.
type Fletcher32Filter struct{}

// NewFletcher32 ignores its client data.
func NewFletcher32([]uint32) *Fletcher32Filter { return &Fletcher32Filter{} }

func (f *Fletcher32Filter) ID() uint16 { return message.FilterFletcher32 }

func (f *Fletcher32Filter) Decode(input []byte) ([]byte, error) {
	if len(input) < 4 {
		return nil, fmt.Errorf("fletcher32: %d-byte chunk has no checksum", len(input))
	}
	n := len(input) - 4
	data := input[:n]
	stored := binary.LittleEndian.Uint32(input[n:])
	sum := hbin.Fletcher32(data)
	// Files written before HDF5 1.6.3 carry the checksum byte-swapped.
	if stored != sum && stored != bits.ReverseBytes32(sum) {
		return nil, fmt.Errorf("fletcher32: checksum mismatch, stored %#08x computed %#08x", stored, sum)
	}
	return data, nil
}
