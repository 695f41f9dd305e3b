package sampler

import (
	"io"
	"math"

	"minewatch-go/internal/types"
)

// Stream is a finite, one-shot sequence of decoded frame payloads.
// Next returns io.EOF at the clean end of the stream; any other error
// means the source is unreadable.
type Stream interface {
	Next() ([]byte, error)
	FPS() float64
}

// Sampler emits every stride-th frame of the underlying stream with
// dense indices starting at 0. The stream is consumed once and cannot
// be restarted.
type Sampler struct {
	stream Stream
	stride int
	fps    float64
	raw    int
	index  int
}

func New(stream Stream, intervalSec float64) *Sampler {
	fps := stream.FPS()
	stride := int(math.Round(fps * intervalSec))
	if stride < 1 {
		// Unknown or zero frame rate: sample every frame.
		stride = 1
	}
	return &Sampler{
		stream: stream,
		stride: stride,
		fps:    fps,
	}
}

func (s *Sampler) Stride() int {
	return s.stride
}

// Next returns the next sampled frame, or io.EOF when the stream ends.
func (s *Sampler) Next() (types.Frame, error) {
	for {
		payload, err := s.stream.Next()
		if err != nil {
			return types.Frame{}, err
		}
		raw := s.raw
		s.raw++
		if raw%s.stride != 0 {
			continue
		}
		frame := types.Frame{
			Index:      s.index,
			SampleTime: sampleTime(raw, s.fps),
			JPEG:       payload,
		}
		s.index++
		return frame, nil
	}
}

func sampleTime(rawIndex int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(rawIndex) / fps
}

type limitStream struct {
	inner     Stream
	remaining int
}

// Limit caps an unbounded stream (live ingest) at n frames so it can be
// run through the batch pipeline.
func Limit(stream Stream, n int) Stream {
	return &limitStream{inner: stream, remaining: n}
}

func (l *limitStream) Next() ([]byte, error) {
	if l.remaining <= 0 {
		return nil, io.EOF
	}
	payload, err := l.inner.Next()
	if err != nil {
		return nil, err
	}
	l.remaining--
	return payload, nil
}

func (l *limitStream) FPS() float64 {
	return l.inner.FPS()
}
