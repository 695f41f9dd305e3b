package inference

import "context"

// RawDetection is one prediction as returned by a gateway, before
// threshold filtering. Geometry is carried only this far; the
// aggregator strips it.
type RawDetection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x,omitempty"`
	Y          float64 `json:"y,omitempty"`
	Width      float64 `json:"width,omitempty"`
	Height     float64 `json:"height,omitempty"`
	Points     []Point `json:"points,omitempty"`
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Gateway runs object detection on one spooled frame image. Calls are
// network-bound and may fail transiently; the dispatcher isolates each
// failure to its own frame.
type Gateway interface {
	Infer(ctx context.Context, imagePath string) ([]RawDetection, error)
}
