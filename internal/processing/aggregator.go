package processing

import (
	"minewatch-go/internal/types"
)

// Aggregator reduces out-of-order task results into the index-keyed
// prediction set. Detections below the confidence threshold are
// dropped and geometry payloads are stripped on the way in. A single
// collector goroutine feeds Add, so no locking is needed here.
type Aggregator struct {
	threshold float64
	set       *types.PredictionSet
}

func NewAggregator(threshold float64) *Aggregator {
	return &Aggregator{
		threshold: threshold,
		set:       types.NewPredictionSet(),
	}
}

func (a *Aggregator) Add(r Result) {
	kept := make([]types.Detection, 0, len(r.Detections))
	for _, d := range r.Detections {
		if d.Confidence < a.threshold {
			continue
		}
		kept = append(kept, types.Detection{
			FrameIndex: r.FrameIndex,
			Class:      d.Class,
			Confidence: d.Confidence,
		})
	}
	a.set.Put(r.FrameIndex, kept, r.ErrCode)
}

// Publish hands out the finished set. Callers must only invoke it after
// every dispatched task has resolved.
func (a *Aggregator) Publish() *types.PredictionSet {
	return a.set
}
