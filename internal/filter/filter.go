// Package filter undoes the HDF5 filter pipeline applied to stored chunks.
//
// Filters are listed in the order the writer applied them and are undone
// in reverse. Deflate, shuffle and Fletcher-32 are built in; SWIFT
// snapshots use no others.
package filter

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/message"
)

// Filter reverses one stage of the pipeline.
type Filter interface {
	ID() uint16
	Decode(input []byte) ([]byte, error)
}

// Registry maps filter IDs to constructors taking the filter's client data.
var Registry = map[uint16]func(clientData []uint32) Filter{
	message.FilterDeflate:    func(cd []uint32) Filter { return NewDeflate(cd) },
	message.FilterShuffle:    func(cd []uint32) Filter { return NewShuffle(cd) },
	message.FilterFletcher32: func(cd []uint32) Filter { return NewFletcher32(cd) },
}

var knownNames = map[uint16]string{
	message.FilterSZIP:        "szip",
	message.FilterNBit:        "n-bit",
	message.FilterScaleOffset: "scale-offset",
}

// New returns the filter for info. It returns nil and no error for an
// optional filter that is not available.
func New(info message.FilterInfo) (Filter, error) {
	if mk, ok := Registry[info.ID]; ok {
		return mk(info.ClientData), nil
	}
	if info.IsOptional() {
		return nil, nil
	}
	name := knownNames[info.ID]
	if name == "" {
		name = info.Name
	}
	if name == "" {
		return nil, fmt.Errorf("unsupported filter %d", info.ID)
	}
	return nil, fmt.Errorf("unsupported filter %d (%s)", info.ID, name)
}
