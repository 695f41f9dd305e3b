package processing

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"minewatch-go/internal/inference"
	"minewatch-go/internal/types"
)

const DefaultWorkers = 4

// Task failure codes recorded against a frame index.
const (
	ErrCodeSpool   = "spool_error"
	ErrCodeGateway = "gateway_error"
)

type Config struct {
	Workers   int
	Threshold float64
	// SpoolDir holds the per-frame temp images; empty means the system
	// temp dir.
	SpoolDir string
}

// Result is the outcome of one inference task. A failed task carries an
// empty detection list and a non-empty ErrCode; it never aborts sibling
// tasks.
type Result struct {
	FrameIndex int
	SampleTime float64
	Detections []inference.RawDetection
	ErrCode    string
}

func (r Result) Failed() bool {
	return r.ErrCode != ""
}

// FrameSource yields sampled frames; io.EOF marks the clean end.
type FrameSource interface {
	Next() (types.Frame, error)
}

// Recorder receives an encoded audit record per completed task.
type Recorder interface {
	Record(payload []byte) error
}

// Dispatch runs every frame of src through the gateway with a bounded
// worker pool and returns the aggregated prediction set once all tasks
// have resolved. A source read error aborts the whole batch (after the
// in-flight tasks drain) and no partial set is returned.
func Dispatch(ctx context.Context, src FrameSource, gw inference.Gateway, cfg Config, recorder Recorder, progress func(Result)) (*types.PredictionSet, error) {
	if cfg.Workers < 1 {
		cfg.Workers = DefaultWorkers
	}

	incoming := make(chan types.Frame, cfg.Workers)
	results := make(chan Result, cfg.Workers)

	var fatalErr error
	go func() {
		defer close(incoming)
		for {
			frame, err := src.Next()
			if err != nil {
				if err != io.EOF {
					fatalErr = types.Errf("video", "%v", err)
				}
				return
			}
			incoming <- frame
		}
	}()

	var wg sync.WaitGroup
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go func() {
			defer wg.Done()
			for frame := range incoming {
				results <- processFrame(ctx, frame, gw, cfg.SpoolDir)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	agg := NewAggregator(cfg.Threshold)
	for r := range results {
		agg.Add(r)
		if recorder != nil {
			if err := recorder.Record(auditRecord(r)); err != nil {
				log.Printf("audit record failed: %v", err)
			}
		}
		if progress != nil {
			progress(r)
		}
	}

	if fatalErr != nil {
		return nil, fatalErr
	}
	return agg.Publish(), nil
}

// processFrame spools the frame image to a temp file, runs inference on
// it, and removes the spool on every exit path.
func processFrame(ctx context.Context, frame types.Frame, gw inference.Gateway, spoolDir string) Result {
	result := Result{
		FrameIndex: frame.Index,
		SampleTime: frame.SampleTime,
	}

	path, err := spool(spoolDir, frame)
	if err != nil {
		log.Printf("frame %d spool failed: %v", frame.Index, err)
		result.ErrCode = ErrCodeSpool
		return result
	}
	defer func() {
		_ = os.Remove(path)
	}()

	detections, err := gw.Infer(ctx, path)
	if err != nil {
		log.Printf("frame %d inference failed: %v", frame.Index, err)
		result.ErrCode = ErrCodeGateway
		return result
	}

	result.Detections = detections
	return result
}

func spool(dir string, frame types.Frame) (string, error) {
	f, err := os.CreateTemp(dir, fmt.Sprintf("frame_%d_*.jpg", frame.Index))
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.Write(frame.JPEG); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func auditRecord(r Result) []byte {
	detections := make([]map[string]any, 0, len(r.Detections))
	for _, d := range r.Detections {
		detections = append(detections, map[string]any{
			"class":      d.Class,
			"confidence": d.Confidence,
		})
	}
	payload, err := cbor.Marshal(map[string]any{
		"type":        "result",
		"frame_index": r.FrameIndex,
		"sample_time": r.SampleTime,
		"err_code":    r.ErrCode,
		"detections":  detections,
	})
	if err != nil {
		return nil
	}
	return payload
}
