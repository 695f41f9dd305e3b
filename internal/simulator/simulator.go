package simulator

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"math"
	"math/rand"
	"sync/atomic"

	"minewatch-go/internal/inference"
)

const frameSize = 64

// Stream is a finite synthetic video source for debug mode and tests:
// grayscale frames with a drifting bright blob, encoded as JPEG.
type Stream struct {
	total int
	fps   float64
	n     int
}

func NewStream(frames int, fps float64) *Stream {
	return &Stream{total: frames, fps: fps}
}

func (s *Stream) FPS() float64 {
	return s.fps
}

func (s *Stream) Next() ([]byte, error) {
	if s.n >= s.total {
		return nil, io.EOF
	}
	n := s.n
	s.n++

	img := image.NewGray(image.Rect(0, 0, frameSize, frameSize))
	centerX := float64(frameSize)/2 + 10*math.Sin(float64(n)/8)
	centerY := float64(frameSize)/2 + 10*math.Cos(float64(n)/8)
	for y := 0; y < frameSize; y++ {
		for x := 0; x < frameSize; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			distance := math.Sqrt(dx*dx + dy*dy)
			base := 200 * math.Exp(-(distance*distance)/128)
			noise := rand.NormFloat64() * 8
			val := base + noise
			if val < 0 {
				val = 0
			}
			if val > 255 {
				val = 255
			}
			img.SetGray(x, y, color.Gray{Y: uint8(val)})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RandomGateway stands in for the inference service in debug mode. It
// ignores the spooled image and emits plausible rockfall detections;
// roughly every tenth call carries a high-confidence hit.
type RandomGateway struct {
	calls atomic.Int64
}

func (g *RandomGateway) Infer(_ context.Context, _ string) ([]inference.RawDetection, error) {
	calls := g.calls.Add(1)
	detections := []inference.RawDetection{
		{Class: "loose_rock", Confidence: 0.1 + rand.Float64()*0.3},
	}
	if calls%10 == 0 {
		detections = append(detections, inference.RawDetection{
			Class:      "rockfall",
			Confidence: 0.6 + rand.Float64()*0.35,
		})
	}
	return detections, nil
}
