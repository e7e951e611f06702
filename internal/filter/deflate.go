package filter

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/robert-malhotra/swiftserve/internal/message"
)

// readerPool reuses zlib readers across chunks. Each pooled value
// implements zlib.Resetter.
var readerPool sync.Pool

// Deflate implements the DEFLATE filter (zlib framing).
type Deflate struct {
	level int
}

// NewDeflate creates a new DEFLATE filter.
// Client data: [0] = compression level (0-9, or default if empty)
func NewDeflate(clientData []uint32) *Deflate {
	level := 6
	if len(clientData) > 0 {
		level = int(clientData[0])
	}
	return &Deflate{level: level}
}

func (f *Deflate) ID() uint16 {
	return message.FilterDeflate
}

// Level returns the compression level recorded in the filter pipeline.
func (f *Deflate) Level() int {
	return f.level
}

func (f *Deflate) Decode(input []byte) ([]byte, error) {
	src := bytes.NewReader(input)

	var r io.ReadCloser
	if pooled, ok := readerPool.Get().(io.ReadCloser); ok {
		if err := pooled.(zlib.Resetter).Reset(src, nil); err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
		r = pooled
	} else {
		var err error
		r, err = zlib.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("zlib reader: %w", err)
		}
	}

	var out bytes.Buffer
	out.Grow(len(input) * 4)
	if _, err := io.Copy(&out, r); err != nil {
		r.Close()
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	r.Close()
	readerPool.Put(r)

	return out.Bytes(), nil
}
