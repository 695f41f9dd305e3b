package sampler

import (
	"bufio"
	"fmt"
	"io"
	"os"
)

const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
)

// MJPEGStream splits a motion-JPEG byte stream into individual JPEG
// frames by scanning for SOI/EOI markers. MJPEG carries no frame rate,
// so the caller supplies one; fps <= 0 means unknown.
type MJPEGStream struct {
	r      *bufio.Reader
	closer io.Closer
	fps    float64
}

func NewMJPEGStream(r io.Reader, fps float64) *MJPEGStream {
	return &MJPEGStream{
		r:   bufio.NewReaderSize(r, 1<<16),
		fps: fps,
	}
}

// OpenMJPEG opens a motion-JPEG file. An unreadable path is a fatal
// pipeline condition for the caller.
func OpenMJPEG(path string, fps float64) (*MJPEGStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open video %s: %w", path, err)
	}
	stream := NewMJPEGStream(f, fps)
	stream.closer = f
	return stream, nil
}

func (m *MJPEGStream) FPS() float64 {
	return m.fps
}

func (m *MJPEGStream) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}

// Next returns the next complete JPEG frame. io.EOF marks the clean end
// of the stream; a frame truncated mid-payload is reported as an error
// so the batch aborts instead of returning a partial result.
func (m *MJPEGStream) Next() ([]byte, error) {
	if err := m.seekSOI(); err != nil {
		return nil, err
	}

	frame := []byte{markerPrefix, markerSOI}
	for {
		b, err := m.r.ReadByte()
		if err != nil {
			return nil, truncated(err)
		}
		frame = append(frame, b)
		if b != markerPrefix {
			continue
		}
		nb, err := m.r.ReadByte()
		if err != nil {
			return nil, truncated(err)
		}
		frame = append(frame, nb)
		if nb == markerEOI {
			return frame, nil
		}
	}
}

func (m *MJPEGStream) seekSOI() error {
	for {
		b, err := m.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return fmt.Errorf("read video stream: %w", err)
		}
		if b != markerPrefix {
			continue
		}
		nb, err := m.r.ReadByte()
		if err != nil {
			if err == io.EOF {
				return io.EOF
			}
			return fmt.Errorf("read video stream: %w", err)
		}
		if nb == markerSOI {
			return nil
		}
		if nb == markerPrefix {
			// Could be the prefix of the next marker.
			_ = m.r.UnreadByte()
		}
	}
}

func truncated(err error) error {
	if err == io.EOF {
		return fmt.Errorf("video stream truncated mid-frame: %w", io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("read video stream: %w", err)
}
