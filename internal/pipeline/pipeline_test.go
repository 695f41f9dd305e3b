package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"testing"

	"minewatch-go/internal/inference"
	"minewatch-go/internal/types"
)

type countingStream struct {
	total int
	fps   float64
	n     int
}

func (c *countingStream) Next() ([]byte, error) {
	if c.n >= c.total {
		return nil, io.EOF
	}
	payload := []byte(strconv.Itoa(c.n))
	c.n++
	return payload, nil
}

func (c *countingStream) FPS() float64 { return c.fps }

// rawIndexGateway derives detections from the raw frame number spooled
// into the temp image, so results are deterministic under any pool
// width.
type rawIndexGateway struct {
	peakRawIndex int
}

func (g *rawIndexGateway) Infer(_ context.Context, imagePath string) ([]inference.RawDetection, error) {
	payload, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	raw, err := strconv.Atoi(string(payload))
	if err != nil {
		return nil, err
	}
	if raw == g.peakRawIndex {
		return []inference.RawDetection{{Class: "rockfall", Confidence: 0.80, X: 12, Y: 34}}, nil
	}
	return []inference.RawDetection{{Class: "loose_rock", Confidence: 0.30}}, nil
}

type fixedSummarizer struct {
	text string
	err  error
}

func (f *fixedSummarizer) Summarize(context.Context, string) (string, error) {
	return f.text, f.err
}

func TestAnalyzeEndToEnd(t *testing.T) {
	// 200 frames at 10 fps sampled every 2 seconds: stride 20, 10
	// sampled frames. The peak detection lands on sampled frame 3.
	stream := &countingStream{total: 200, fps: 10}
	result, err := Analyze(context.Background(), stream, Options{
		IntervalSec: 2,
		Threshold:   0.4,
		Workers:     4,
		Gateway:     &rawIndexGateway{peakRawIndex: 60},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	set := result.Predictions
	if set.FrameCount() != 10 {
		t.Fatalf("frame count %d, want 10", set.FrameCount())
	}
	if set.TotalDetections() != 1 {
		t.Fatalf("total detections %d, want 1", set.TotalDetections())
	}
	dets := set.Detections(3)
	if len(dets) != 1 || dets[0].Class != "rockfall" {
		t.Fatalf("frame 3 detections: %#v", dets)
	}

	a := result.Analysis
	if a.RiskLevel != types.RiskVeryHigh {
		t.Fatalf("risk level %q", a.RiskLevel)
	}
	if a.Confidence != 98 {
		t.Fatalf("confidence %d", a.Confidence)
	}
	if a.Trajectory != types.TrajectoryUnstable {
		t.Fatalf("trajectory %q", a.Trajectory)
	}
	if a.RockSize != types.RockLarge {
		t.Fatalf("rock size %q", a.RockSize)
	}
	wantRecs := []string{
		"Immediate inspection",
		"Evacuate personnel if necessary",
		"Reinforce support structures",
	}
	if len(a.Recommendations) != len(wantRecs) {
		t.Fatalf("recommendations: %#v", a.Recommendations)
	}
	for i, rec := range wantRecs {
		if a.Recommendations[i] != rec {
			t.Fatalf("recommendation %d is %q, want %q", i, a.Recommendations[i], rec)
		}
	}
}

func TestAnalyzeAdvisoryInfluencesVerdict(t *testing.T) {
	stream := &countingStream{total: 200, fps: 10}
	result, err := Analyze(context.Background(), stream, Options{
		IntervalSec: 2,
		Threshold:   0.4,
		Workers:     4,
		Gateway:     &rawIndexGateway{peakRawIndex: 60},
		Summarizer: &fixedSummarizer{
			text: "```json\n{\"riskLevel\":\"Low\",\"confidence\":10,\"rockSize\":\"Small\",\"trajectory\":\"Stable\"}\n```",
		},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	a := result.Analysis
	// The advisory's size and trajectory survive, but risk and
	// confidence are recomputed from the detections.
	if a.RockSize != types.RockSmall {
		t.Fatalf("rock size %q", a.RockSize)
	}
	if a.Trajectory != types.TrajectoryStable {
		t.Fatalf("trajectory %q", a.Trajectory)
	}
	if a.RiskLevel != types.RiskVeryHigh {
		t.Fatalf("risk level %q", a.RiskLevel)
	}
	if a.Confidence != 98 {
		t.Fatalf("confidence %d", a.Confidence)
	}
}

func TestAnalyzeSummarizerFailureIsRecoverable(t *testing.T) {
	stream := &countingStream{total: 200, fps: 10}
	result, err := Analyze(context.Background(), stream, Options{
		IntervalSec: 2,
		Threshold:   0.4,
		Workers:     4,
		Gateway:     &rawIndexGateway{peakRawIndex: 60},
		Summarizer:  &fixedSummarizer{err: fmt.Errorf("quota exhausted")},
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.Analysis.RiskLevel != types.RiskVeryHigh {
		t.Fatalf("risk level %q", result.Analysis.RiskLevel)
	}
	if result.Analysis.Confidence != 98 {
		t.Fatalf("confidence %d", result.Analysis.Confidence)
	}
}

type brokenStream struct{}

func (b *brokenStream) Next() ([]byte, error) {
	return nil, fmt.Errorf("container corrupt")
}

func (b *brokenStream) FPS() float64 { return 10 }

func TestAnalyzeFatalVideoError(t *testing.T) {
	_, err := Analyze(context.Background(), &brokenStream{}, Options{
		IntervalSec: 2,
		Threshold:   0.4,
		Gateway:     &rawIndexGateway{peakRawIndex: -1},
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}
