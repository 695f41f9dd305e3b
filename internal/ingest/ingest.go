package ingest

import (
	"context"
	"io"
	"log"

	"github.com/fxamacker/cbor/v2"
	"github.com/pebbe/zmq4"
)

// Stream connects to a camera gateway publishing CBOR messages over a
// ZeroMQ PUSH socket:
// { "type": "frame", "frame_id": <int>, "timestamp": <float>, "jpeg": <bytes> }
// The returned stream yields raw JPEG payloads until the context is
// cancelled; the camera's acquisition rate is supplied by the caller.
func Stream(ctx context.Context, endpoint string, fps float64, logEvery int) (*LiveStream, error) {
	if logEvery < 1 {
		logEvery = 1
	}
	socket, err := zmq4.NewSocket(zmq4.PULL)
	if err != nil {
		return nil, err
	}
	if err := socket.Connect(endpoint); err != nil {
		_ = socket.Close()
		return nil, err
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer socket.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			msg, err := socket.RecvBytes(0)
			if err != nil {
				logEveryN(logEvery, "ingest recv error: %v", err)
				continue
			}

			jpeg, ok := decodeFrame(msg, logEvery)
			if !ok {
				continue
			}

			select {
			case <-ctx.Done():
				return
			case out <- jpeg:
			}
		}
	}()

	return &LiveStream{frames: out, fps: fps}, nil
}

// LiveStream adapts the camera-gateway channel to the sampler's Stream
// contract. Next returns io.EOF once the ingest context is cancelled.
type LiveStream struct {
	frames <-chan []byte
	fps    float64
}

func (l *LiveStream) Next() ([]byte, error) {
	payload, ok := <-l.frames
	if !ok {
		return nil, io.EOF
	}
	return payload, nil
}

func (l *LiveStream) FPS() float64 {
	return l.fps
}

func decodeFrame(msg []byte, logEvery int) ([]byte, bool) {
	var payload map[string]any
	if err := cbor.Unmarshal(msg, &payload); err != nil {
		logEveryN(logEvery, "ingest CBOR decode error: %v", err)
		return nil, false
	}

	msgType, _ := payload["type"].(string)
	if msgType != "frame" {
		logEveryN(logEvery, "ingest ignoring message type %q", msgType)
		return nil, false
	}

	jpeg, ok := payload["jpeg"].([]byte)
	if !ok || len(jpeg) == 0 {
		logEveryN(logEvery, "ingest frame missing jpeg payload")
		return nil, false
	}
	return jpeg, true
}

var logCounter int

func logEveryN(n int, format string, args ...any) {
	logCounter++
	if logCounter%n == 0 {
		log.Printf(format, args...)
	}
}
