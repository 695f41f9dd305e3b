package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"minewatch-go/internal/inference"
	"minewatch-go/internal/types"
)

type sliceSource struct {
	frames []types.Frame
	n      int
	err    error
}

func (s *sliceSource) Next() (types.Frame, error) {
	if s.n >= len(s.frames) {
		if s.err != nil {
			return types.Frame{}, s.err
		}
		return types.Frame{}, io.EOF
	}
	frame := s.frames[s.n]
	s.n++
	return frame, nil
}

func numberedSource(n int) *sliceSource {
	src := &sliceSource{}
	for i := 0; i < n; i++ {
		src.frames = append(src.frames, types.Frame{
			Index:      i,
			SampleTime: float64(i),
			JPEG:       []byte(strconv.Itoa(i)),
		})
	}
	return src
}

// echoGateway reads the spooled image back and derives detections from
// its content, so tests can verify frame identity survives the pool.
type echoGateway struct {
	failIndex int
}

func (g *echoGateway) Infer(_ context.Context, imagePath string) ([]inference.RawDetection, error) {
	payload, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	index, err := strconv.Atoi(string(payload))
	if err != nil {
		return nil, err
	}
	if g.failIndex >= 0 && index == g.failIndex {
		return nil, fmt.Errorf("gateway rejected frame %d", index)
	}
	return []inference.RawDetection{
		{Class: "loose_rock", Confidence: 0.3},
		{Class: fmt.Sprintf("rockfall_%d", index), Confidence: 0.5 + float64(index)/100},
	}, nil
}

func TestDispatchPoolWidthsAgree(t *testing.T) {
	var reference *types.PredictionSet
	for _, workers := range []int{1, 4, 16} {
		set, err := Dispatch(context.Background(), numberedSource(25), &echoGateway{failIndex: -1}, Config{
			Workers:   workers,
			Threshold: 0.4,
		}, nil, nil)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		if set.FrameCount() != 25 {
			t.Fatalf("workers=%d: frame count %d", workers, set.FrameCount())
		}
		for i := 0; i < 25; i++ {
			dets := set.Detections(i)
			if len(dets) != 1 {
				t.Fatalf("workers=%d frame %d: %d detections", workers, i, len(dets))
			}
			if want := fmt.Sprintf("rockfall_%d", i); dets[0].Class != want {
				t.Fatalf("workers=%d frame %d: class %q, want %q", workers, i, dets[0].Class, want)
			}
			if dets[0].FrameIndex != i {
				t.Fatalf("workers=%d frame %d: frame index %d", workers, i, dets[0].FrameIndex)
			}
		}
		if reference == nil {
			reference = set
			continue
		}
		if set.TotalDetections() != reference.TotalDetections() {
			t.Fatalf("workers=%d: total %d, want %d", workers, set.TotalDetections(), reference.TotalDetections())
		}
	}
}

func TestDispatchIsolatesGatewayFailure(t *testing.T) {
	set, err := Dispatch(context.Background(), numberedSource(8), &echoGateway{failIndex: 3}, Config{
		Workers:   4,
		Threshold: 0.4,
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if set.FrameCount() != 8 {
		t.Fatalf("frame count %d", set.FrameCount())
	}
	if code := set.ErrCode(3); code != ErrCodeGateway {
		t.Fatalf("frame 3 err code %q", code)
	}
	if dets := set.Detections(3); len(dets) != 0 {
		t.Fatalf("frame 3 kept %d detections", len(dets))
	}
	for i := 0; i < 8; i++ {
		if i == 3 {
			continue
		}
		if code := set.ErrCode(i); code != "" {
			t.Fatalf("frame %d unexpectedly failed: %q", i, code)
		}
		if len(set.Detections(i)) != 1 {
			t.Fatalf("frame %d lost its detections", i)
		}
	}
}

func TestDispatchFatalSourceError(t *testing.T) {
	src := numberedSource(5)
	src.err = fmt.Errorf("decoder blew up")
	set, err := Dispatch(context.Background(), src, &echoGateway{failIndex: -1}, Config{
		Workers:   2,
		Threshold: 0.4,
	}, nil, nil)
	if err == nil {
		t.Fatalf("expected fatal error")
	}
	if set != nil {
		t.Fatalf("partial set returned alongside fatal error")
	}
	var pErr *types.PipelineError
	if !errors.As(err, &pErr) {
		t.Fatalf("error is not a pipeline error: %v", err)
	}
	if pErr.Stage != "video" {
		t.Fatalf("unexpected stage %q", pErr.Stage)
	}
}

func TestDispatchCleansSpoolDir(t *testing.T) {
	dir := t.TempDir()
	_, err := Dispatch(context.Background(), numberedSource(10), &echoGateway{failIndex: 4}, Config{
		Workers:   4,
		Threshold: 0.4,
		SpoolDir:  dir,
	}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read spool dir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("spool files left behind: %s", strings.Join(names, ", "))
	}
}

type memRecorder struct {
	mu      sync.Mutex
	records [][]byte
}

func (m *memRecorder) Record(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, payload)
	return nil
}

func TestDispatchRecordsAudit(t *testing.T) {
	recorder := &memRecorder{}
	var progressed int
	_, err := Dispatch(context.Background(), numberedSource(6), &echoGateway{failIndex: -1}, Config{
		Workers:   3,
		Threshold: 0.4,
	}, recorder, func(Result) { progressed++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorder.records) != 6 {
		t.Fatalf("recorded %d audit entries, want 6", len(recorder.records))
	}
	if progressed != 6 {
		t.Fatalf("progress fired %d times, want 6", progressed)
	}
	var decoded map[string]any
	if err := cbor.Unmarshal(recorder.records[0], &decoded); err != nil {
		t.Fatalf("decode audit record: %v", err)
	}
	if decoded["type"] != "result" {
		t.Fatalf("unexpected record type: %v", decoded["type"])
	}
}
