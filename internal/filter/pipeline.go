package filter

import (
	"fmt"

	"github.com/robert-malhotra/swiftserve/internal/message"
)

type stage struct {
	// bit is the filter's position in the pipeline message, which is
	// what a chunk's filter mask refers to.
	bit    uint
	filter Filter
}

// Pipeline decodes chunks written through a filter pipeline.
type Pipeline struct {
	stages []stage
}

// NewPipeline builds a pipeline from its message. A nil message yields an
// empty pipeline.
func NewPipeline(fp *message.FilterPipeline) (*Pipeline, error) {
	p := &Pipeline{}
	if fp == nil {
		return p, nil
	}
	for i, info := range fp.Filters {
		f, err := New(info)
		if err != nil {
			return nil, err
		}
		if f != nil {
			p.stages = append(p.stages, stage{bit: uint(i), filter: f})
		}
	}
	return p, nil
}

// Decode undoes every stage not disabled in mask, last stage first.
func (p *Pipeline) Decode(data []byte, mask uint32) ([]byte, error) {
	for i := len(p.stages) - 1; i >= 0; i-- {
		s := p.stages[i]
		if mask&(1<<s.bit) != 0 {
			continue
		}
		out, err := s.filter.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", s.filter.ID(), err)
		}
		data = out
	}
	return data, nil
}

// Empty reports whether the pipeline has no stages.
func (p *Pipeline) Empty() bool { return len(p.stages) == 0 }

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }
