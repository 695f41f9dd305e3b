package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PredictionSet maps dense frame indices to filtered detections. Tasks
// complete in arbitrary order; a single collector fills disjoint keys
// and the set is only handed out once every task has resolved.
type PredictionSet struct {
	frames [][]Detection
	errs   []string
}

func NewPredictionSet() *PredictionSet {
	return &PredictionSet{}
}

// Put records the outcome for one frame index. errCode is empty for
// successful tasks; failed tasks carry an empty detection list.
func (p *PredictionSet) Put(index int, detections []Detection, errCode string) {
	if index < 0 {
		return
	}
	p.grow(index)
	if detections == nil {
		detections = []Detection{}
	}
	p.frames[index] = detections
	p.errs[index] = errCode
}

func (p *PredictionSet) grow(index int) {
	for len(p.frames) <= index {
		p.frames = append(p.frames, []Detection{})
		p.errs = append(p.errs, "")
	}
}

func (p *PredictionSet) FrameCount() int {
	return len(p.frames)
}

func (p *PredictionSet) Detections(index int) []Detection {
	if index < 0 || index >= len(p.frames) {
		return nil
	}
	return p.frames[index]
}

func (p *PredictionSet) ErrCode(index int) string {
	if index < 0 || index >= len(p.errs) {
		return ""
	}
	return p.errs[index]
}

// HighestConfidence returns the largest raw confidence across all
// retained detections, or 0 when the set is empty.
func (p *PredictionSet) HighestConfidence() float64 {
	highest := 0.0
	for _, dets := range p.frames {
		for _, d := range dets {
			if d.Confidence > highest {
				highest = d.Confidence
			}
		}
	}
	return highest
}

func (p *PredictionSet) TotalDetections() int {
	n := 0
	for _, dets := range p.frames {
		n += len(dets)
	}
	return n
}

// MarshalJSON writes frame keys in index order so the serialized form
// matches the iteration order consumers see.
func (p *PredictionSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, dets := range p.frames {
		if i > 0 {
			buf.WriteByte(',')
		}
		fmt.Fprintf(&buf, "%q:", fmt.Sprintf("frame_%d", i))
		payload, err := json.Marshal(dets)
		if err != nil {
			return nil, err
		}
		buf.Write(payload)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
