package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"minewatch-go/internal/advisor"
	"minewatch-go/internal/config"
	"minewatch-go/internal/inference"
	"minewatch-go/internal/ingest"
	"minewatch-go/internal/output"
	"minewatch-go/internal/pipeline"
	"minewatch-go/internal/processing"
	"minewatch-go/internal/sampler"
	"minewatch-go/internal/server"
	"minewatch-go/internal/simulator"
	"minewatch-go/internal/store"
)

type metrics struct {
	framesProcessed atomic.Uint64
	inferenceOK     atomic.Uint64
	inferenceErr    atomic.Uint64
	detectionsTotal atomic.Uint64
	runsTotal       atomic.Uint64
	runsFailed      atomic.Uint64
}

func (m *metrics) snapshot() map[string]any {
	return map[string]any{
		"frames_processed_total": m.framesProcessed.Load(),
		"inference_ok_total":     m.inferenceOK.Load(),
		"inference_err_total":    m.inferenceErr.Load(),
		"detections_total":       m.detectionsTotal.Load(),
		"runs_total":             m.runsTotal.Load(),
		"runs_failed_total":      m.runsFailed.Load(),
	}
}

func main() {
	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		port           = flag.Int("port", 8888, "HTTP port for the web UI and API")
		gatewayURL     = flag.String("gateway-url", "https://serverless.roboflow.com", "Inference gateway base URL")
		apiKey         = flag.String("api-key", os.Getenv("MINEWATCH_API_KEY"), "Inference gateway API key")
		workspace      = flag.String("workspace", "", "Gateway workspace identifier (opaque)")
		workflow       = flag.String("workflow", "", "Gateway workflow identifier (opaque)")
		onnxModel      = flag.String("onnx-model", "", "Run a local ONNX model instead of the HTTP gateway")
		onnxMetadata   = flag.String("onnx-metadata", "", "Metadata JSON for the local ONNX model")
		advisorURL     = flag.String("advisor-url", "", "Advisory summarizer base URL (optional)")
		advisorKey     = flag.String("advisor-key", os.Getenv("MINEWATCH_ADVISOR_KEY"), "Advisory summarizer API key")
		workers        = flag.Int("workers", 4, "Worker pool width for inference tasks")
		interval       = flag.Float64("interval", 2, "Seconds between sampled frames")
		threshold      = flag.Float64("threshold", 0.4, "Confidence threshold for detections")
		fps            = flag.Float64("fps", 0, "Video frame rate (0 = sample every frame)")
		outputDir      = flag.String("output-dir", "output", "Directory for per-run output files")
		dbPath         = flag.String("db", "", "Path to the sqlite run store (empty = disabled)")
		auditDir       = flag.String("audit-dir", "", "Directory for binary audit logs (empty = disabled)")
		endpoint       = flag.String("endpoint", "", "ZMQ endpoint of a live camera gateway (optional)")
		liveBatch      = flag.Int("live-batch", 32, "Frames per analysis batch in live mode")
		debug          = flag.Bool("debug", false, "Run with simulated frames and a mock gateway")
		debugRate      = flag.Float64("debug-rate", 10, "Simulated acquisition rate (frames/sec)")
		ingestLogEvery = flag.Int("ingest-log-every", 100, "Log every Nth ingest error")
		healthEvery    = flag.Duration("health-interval", 5*time.Second, "Gateway health poll interval")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "gateway-url":
			cfg.GatewayURL = *gatewayURL
		case "api-key":
			cfg.GatewayAPIKey = *apiKey
		case "workspace":
			cfg.Workspace = *workspace
		case "workflow":
			cfg.Workflow = *workflow
		case "onnx-model":
			cfg.ONNXModel = *onnxModel
		case "onnx-metadata":
			cfg.ONNXMetadata = *onnxMetadata
		case "advisor-url":
			cfg.AdvisorURL = *advisorURL
		case "advisor-key":
			cfg.AdvisorAPIKey = *advisorKey
		case "workers":
			cfg.Workers = *workers
		case "interval":
			cfg.IntervalSec = *interval
		case "threshold":
			cfg.Threshold = *threshold
		case "fps":
			cfg.FPS = *fps
		case "output-dir":
			cfg.OutputDir = *outputDir
		case "db":
			cfg.DBPath = *dbPath
		case "audit-dir":
			cfg.AuditDir = *auditDir
		case "endpoint":
			cfg.Endpoint = *endpoint
		case "live-batch":
			cfg.LiveBatch = *liveBatch
		case "debug":
			cfg.Debug = *debug
		case "debug-rate":
			cfg.DebugRate = *debugRate
		case "ingest-log-every":
			cfg.IngestLogEvery = *ingestLogEvery
		case "health-interval":
			cfg.HealthInterval = *healthEvery
		}
	})
	if cfg.GatewayAPIKey == "" {
		cfg.GatewayAPIKey = os.Getenv("MINEWATCH_API_KEY")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gateway inference.Gateway
	switch {
	case cfg.Debug:
		gateway = &simulator.RandomGateway{}
	case cfg.ONNXModel != "":
		onnx, err := inference.NewONNXGateway(cfg.ONNXModel, cfg.ONNXMetadata)
		if err != nil {
			log.Fatalf("load ONNX gateway: %v", err)
		}
		defer onnx.Close()
		gateway = onnx
	default:
		gateway = inference.NewHTTPGateway(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.Workspace, cfg.Workflow)
	}

	var summarizer advisor.Summarizer
	if cfg.AdvisorURL != "" {
		summarizer = advisor.NewHTTPSummarizer(cfg.AdvisorURL, cfg.AdvisorAPIKey)
	}

	var runStore *store.Store
	if cfg.DBPath != "" {
		opened, err := store.Open(cfg.DBPath)
		if err != nil {
			log.Fatalf("open run store: %v", err)
		}
		defer opened.Close()
		runStore = opened
	}

	var m metrics
	var statusMu sync.Mutex
	status := map[string]any{
		"gateway":    "unknown",
		"pipeline":   "idle",
		"last_run":   "",
		"last_frame": "",
	}
	setStatus := func(key string, value any) {
		statusMu.Lock()
		status[key] = value
		statusMu.Unlock()
	}

	uiMessages := make(chan any, 16)
	var verdictMu sync.Mutex
	var latestVerdict any

	if cfg.Debug {
		setStatus("gateway", "simulator")
	} else if cfg.ONNXModel != "" {
		setStatus("gateway", "onnx")
	} else {
		go inference.PollHealth(ctx, cfg.GatewayURL, cfg.HealthInterval, func(state string) {
			setStatus("gateway", state)
		})
	}

	analyze := func(ctx context.Context, stream sampler.Stream, source string, intervalSec, threshold float64) (*pipeline.RunResult, error) {
		var recorder processing.Recorder
		var audit *output.AuditWriter
		if cfg.AuditDir != "" {
			writer, err := output.NewAuditWriter(cfg.AuditDir, "inference")
			if err != nil {
				log.Printf("audit log unavailable: %v", err)
			} else {
				audit = writer
				recorder = writer
			}
		}

		setStatus("pipeline", "running")
		result, err := pipeline.Analyze(ctx, stream, pipeline.Options{
			IntervalSec: intervalSec,
			Threshold:   threshold,
			Workers:     cfg.Workers,
			Gateway:     gateway,
			Summarizer:  summarizer,
			Recorder:    recorder,
			Progress: func(r processing.Result) {
				m.framesProcessed.Add(1)
				if r.Failed() {
					m.inferenceErr.Add(1)
				} else {
					m.inferenceOK.Add(1)
					m.detectionsTotal.Add(uint64(len(r.Detections)))
				}
				setStatus("last_frame", time.Now().Format(time.RFC3339))
				select {
				case uiMessages <- map[string]any{
					"type":        "frame",
					"frame_index": r.FrameIndex,
					"detections":  len(r.Detections),
					"err_code":    r.ErrCode,
				}:
				default:
				}
			},
		})
		if audit != nil {
			if err := audit.Close(); err != nil {
				log.Printf("audit log close failed: %v", err)
			}
		}
		if err != nil {
			m.runsFailed.Add(1)
			setStatus("pipeline", "error")
			return nil, err
		}

		m.runsTotal.Add(1)
		setStatus("pipeline", "idle")
		setStatus("last_run", time.Now().Format(time.RFC3339))

		runTimestamp := output.Timestamp()
		if err := output.WriteRun(cfg.OutputDir, runTimestamp, result.Predictions, result.Analysis); err != nil {
			log.Printf("output write failed: %v", err)
		}
		if runStore != nil {
			predictions, err := json.Marshal(result.Predictions)
			if err == nil {
				err = runStore.SaveRun(store.Run{
					ID:          uuid.NewString(),
					CreatedAt:   time.Now(),
					Source:      source,
					FrameCount:  result.Predictions.FrameCount(),
					Analysis:    result.Analysis,
					Predictions: predictions,
				})
			}
			if err != nil {
				log.Printf("run store save failed: %v", err)
			}
		}

		verdictMessage := map[string]any{
			"type":     "verdict",
			"analysis": result.Analysis,
		}
		verdictMu.Lock()
		latestVerdict = verdictMessage
		verdictMu.Unlock()
		select {
		case uiMessages <- verdictMessage:
		default:
		}

		log.Printf("run complete: %d frames, risk=%s confidence=%d",
			result.Predictions.FrameCount(), result.Analysis.RiskLevel, result.Analysis.Confidence)
		return result, nil
	}

	if cfg.Endpoint != "" {
		go func() {
			live, err := ingest.Stream(ctx, cfg.Endpoint, cfg.FPS, cfg.IngestLogEvery)
			if err != nil {
				log.Fatalf("failed to start live ingest: %v", err)
			}
			log.Printf("live ingest from %s, %d frames per batch", cfg.Endpoint, cfg.LiveBatch)
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if _, err := analyze(ctx, sampler.Limit(live, cfg.LiveBatch), "live", cfg.IntervalSec, cfg.Threshold); err != nil {
					log.Printf("live batch failed: %v", err)
				}
			}
		}()
	} else if cfg.Debug {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				frames := int(cfg.DebugRate * 20)
				if frames < 1 {
					frames = 20
				}
				stream := simulator.NewStream(frames, cfg.DebugRate)
				if _, err := analyze(ctx, stream, "simulator", cfg.IntervalSec, cfg.Threshold); err != nil {
					log.Printf("simulated batch failed: %v", err)
				}
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}

	statusFn := func() map[string]any {
		statusMu.Lock()
		defer statusMu.Unlock()
		copied := map[string]any{}
		for k, v := range status {
			copied[k] = v
		}
		copied["metrics"] = m.snapshot()
		return copied
	}

	verdictFn := func() any {
		verdictMu.Lock()
		defer verdictMu.Unlock()
		return latestVerdict
	}

	deps := server.Deps{
		StatusFn:  statusFn,
		VerdictFn: verdictFn,
		AnalyzeFn: analyze,
	}
	if runStore != nil {
		deps.RunsFn = runStore.RecentRuns
		deps.RunFn = runStore.GetRun
	}

	log.Printf("Starting web UI at http://localhost:%d", cfg.Port)
	if err := server.Run(ctx, cfg, uiMessages, deps); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
