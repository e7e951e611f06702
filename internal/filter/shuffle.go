package filter

import "github.com/robert-malhotra/swiftserve/internal/message"

// Shuffle reverses the byte shuffle, which stores byte k of every element
// in the k-th of elemSize planes.
type Shuffle struct {
	elemSize int
}

// NewShuffle takes the element size from client data slot 0.
func NewShuffle(clientData []uint32) *Shuffle {
	size := 1
	if len(clientData) > 0 && clientData[0] > 1 {
		size = int(clientData[0])
	}
	return &Shuffle{elemSize: size}
}

func (f *Shuffle) ID() uint16 { return message.FilterShuffle }

func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	n := len(input) / f.elemSize
	if f.elemSize == 1 || n < 2 {
		return input, nil
	}

	out := make([]byte, len(input))
	for k := 0; k < f.elemSize; k++ {
		plane := input[k*n : (k+1)*n]
		for i, b := range plane {
			out[i*f.elemSize+k] = b
		}
	}
	// Leftover bytes that do not fill an element are stored as is.
	whole := n * f.elemSize
	copy(out[whole:], input[whole:])
	return out, nil
}
