package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"minewatch-go/internal/advisor"
	"minewatch-go/internal/inference"
	"minewatch-go/internal/output"
	"minewatch-go/internal/pipeline"
	"minewatch-go/internal/processing"
	"minewatch-go/internal/report"
	"minewatch-go/internal/sampler"
	"minewatch-go/internal/store"
	"minewatch-go/internal/types"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
)

func main() {
	var (
		videoPath    = flag.String("video", "", "Path to MJPEG video file")
		fps          = flag.Float64("fps", 0, "Video frame rate (0 = sample every frame)")
		interval     = flag.Float64("interval", 2, "Seconds between sampled frames")
		threshold    = flag.Float64("threshold", 0.4, "Confidence threshold for detections")
		workers      = flag.Int("workers", 4, "Worker pool width")
		gatewayURL   = flag.String("gateway-url", "https://serverless.roboflow.com", "Inference gateway base URL")
		apiKey       = flag.String("api-key", os.Getenv("MINEWATCH_API_KEY"), "Inference gateway API key")
		workspace    = flag.String("workspace", "", "Gateway workspace identifier")
		workflow     = flag.String("workflow", "", "Gateway workflow identifier")
		onnxModel    = flag.String("onnx-model", "", "Run a local ONNX model instead of the HTTP gateway")
		onnxMetadata = flag.String("onnx-metadata", "", "Metadata JSON for the local ONNX model")
		advisorURL   = flag.String("advisor-url", "", "Advisory summarizer base URL (optional)")
		advisorKey   = flag.String("advisor-key", os.Getenv("MINEWATCH_ADVISOR_KEY"), "Advisory summarizer API key")
		outputDir    = flag.String("output-dir", "", "Write predictions/verdict JSON here (optional)")
		reportPath   = flag.String("report", "", "Write an HTML confidence chart here (optional)")
		auditDir     = flag.String("audit-dir", "", "Directory for the binary audit log (optional)")
		dbPath       = flag.String("db", "", "Save the run to this sqlite store (optional)")
	)
	flag.Parse()

	if *videoPath == "" {
		log.Fatal("missing -video")
	}

	stream, err := sampler.OpenMJPEG(*videoPath, *fps)
	if err != nil {
		fail(types.Errf("video", "%v", err))
	}
	defer stream.Close()

	var gateway inference.Gateway
	if *onnxModel != "" {
		onnx, err := inference.NewONNXGateway(*onnxModel, *onnxMetadata)
		if err != nil {
			log.Fatalf("load ONNX gateway: %v", err)
		}
		defer onnx.Close()
		gateway = onnx
	} else {
		gateway = inference.NewHTTPGateway(*gatewayURL, *apiKey, *workspace, *workflow)
	}

	var summarizer advisor.Summarizer
	if *advisorURL != "" {
		summarizer = advisor.NewHTTPSummarizer(*advisorURL, *advisorKey)
	}

	var recorder processing.Recorder
	if *auditDir != "" {
		audit, err := output.NewAuditWriter(*auditDir, "inference")
		if err != nil {
			log.Fatalf("open audit log: %v", err)
		}
		defer audit.Close()
		recorder = audit
	}

	result, err := pipeline.Analyze(context.Background(), stream, pipeline.Options{
		IntervalSec: *interval,
		Threshold:   *threshold,
		Workers:     *workers,
		Gateway:     gateway,
		Summarizer:  summarizer,
		Recorder:    recorder,
		Progress: func(r processing.Result) {
			if r.Failed() {
				yellow.Printf("frame_%d: %s\n", r.FrameIndex, r.ErrCode)
				return
			}
			fmt.Printf("frame_%d: %d detection(s)\n", r.FrameIndex, len(r.Detections))
		},
	})
	if err != nil {
		fail(err)
	}

	printVerdict(result.Analysis)

	if *outputDir != "" {
		if err := output.WriteRun(*outputDir, output.Timestamp(), result.Predictions, result.Analysis); err != nil {
			log.Printf("output write failed: %v", err)
		}
	}
	if *reportPath != "" {
		if err := report.WriteConfidenceChart(*reportPath, result.Predictions); err != nil {
			log.Printf("report write failed: %v", err)
		} else {
			log.Printf("wrote confidence chart to %s", *reportPath)
		}
	}
	if *dbPath != "" {
		runStore, err := store.Open(*dbPath)
		if err != nil {
			log.Fatalf("open run store: %v", err)
		}
		defer runStore.Close()
		predictions, err := json.Marshal(result.Predictions)
		if err == nil {
			err = runStore.SaveRun(store.Run{
				ID:          uuid.NewString(),
				CreatedAt:   time.Now(),
				Source:      *videoPath,
				FrameCount:  result.Predictions.FrameCount(),
				Analysis:    result.Analysis,
				Predictions: predictions,
			})
		}
		if err != nil {
			log.Fatalf("run store save failed: %v", err)
		}
	}
}

func printVerdict(a types.Analysis) {
	fmt.Println()
	riskColor := green
	switch a.RiskLevel {
	case types.RiskMedium:
		riskColor = yellow
	case types.RiskHigh, types.RiskVeryHigh:
		riskColor = red
	}
	riskColor.Printf("risk level: %s\n", a.RiskLevel)
	fmt.Printf("confidence: %d\n", a.Confidence)
	fmt.Printf("rock size:  %s\n", a.RockSize)
	fmt.Printf("trajectory: %s\n", a.Trajectory)
	for _, rec := range a.Recommendations {
		fmt.Printf("  - %s\n", rec)
	}
}

func fail(err error) {
	var pErr *types.PipelineError
	if !errors.As(err, &pErr) {
		pErr = types.Errf("pipeline", "%v", err)
	}
	payload, marshalErr := json.Marshal(map[string]any{
		"success": false,
		"error":   pErr,
	})
	if marshalErr == nil {
		red.Fprintln(os.Stderr, string(payload))
	}
	os.Exit(1)
}
