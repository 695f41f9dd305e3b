package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"minewatch-go/internal/config"
	"minewatch-go/internal/pipeline"
	"minewatch-go/internal/sampler"
	"minewatch-go/internal/types"
)

func TestHandleStatus(t *testing.T) {
	srv := &Server{
		cfg: config.Default(),
		deps: Deps{
			StatusFn: func() map[string]any {
				return map[string]any{"mode": "batch", "gateway": "ok"}
			},
		},
	}

	req := httptest.NewRequest("GET", "/status", nil)
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["mode"] != "batch" {
		t.Fatalf("unexpected mode: %v", payload["mode"])
	}
	if payload["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", payload["ws_clients"])
	}
}

func TestHandleAnalyzeMissingFile(t *testing.T) {
	srv := &Server{
		cfg: config.Default(),
		deps: Deps{
			AnalyzeFn: func(context.Context, sampler.Stream, string, float64, float64) (*pipeline.RunResult, error) {
				t.Fatal("analyzer must not run without an upload")
				return nil, nil
			},
		},
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	_ = form.WriteField("threshold", "0.5")
	_ = form.Close()

	req := httptest.NewRequest("POST", "/analyze", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.handleAnalyze(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload struct {
		Success bool                `json:"success"`
		Error   types.PipelineError `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Success {
		t.Fatalf("expected success=false")
	}
	if payload.Error.Stage != "upload" {
		t.Fatalf("unexpected stage: %q", payload.Error.Stage)
	}
}

func TestHandleAnalyzeSuccess(t *testing.T) {
	wantAnalysis := types.Analysis{
		RiskLevel:       types.RiskLow,
		Confidence:      30,
		RockSize:        types.RockSmall,
		Trajectory:      types.TrajectoryStable,
		Recommendations: []string{"Continue monitoring"},
	}
	srv := &Server{
		cfg: config.Default(),
		deps: Deps{
			AnalyzeFn: func(_ context.Context, stream sampler.Stream, source string, intervalSec, threshold float64) (*pipeline.RunResult, error) {
				if source != "clip.mjpeg" {
					t.Errorf("unexpected source: %q", source)
				}
				if threshold != 0.6 {
					t.Errorf("unexpected threshold: %v", threshold)
				}
				if intervalSec != 2 {
					t.Errorf("unexpected interval: %v", intervalSec)
				}
				// Drain the upload the way the real pipeline would.
				if _, err := stream.Next(); err != nil && err != io.EOF {
					t.Errorf("stream read: %v", err)
				}
				return &pipeline.RunResult{
					Predictions: types.NewPredictionSet(),
					Analysis:    wantAnalysis,
				}, nil
			},
		},
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("video", "clip.mjpeg")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = part.Write([]byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9})
	_ = form.WriteField("threshold", "0.6")
	_ = form.Close()

	req := httptest.NewRequest("POST", "/analyze", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.handleAnalyze(rec, req)

	if rec.Code != 200 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload struct {
		Success  bool           `json:"success"`
		Analysis types.Analysis `json:"analysis"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !payload.Success {
		t.Fatalf("expected success=true: %s", rec.Body.String())
	}
	if payload.Analysis.RiskLevel != wantAnalysis.RiskLevel || payload.Analysis.Confidence != wantAnalysis.Confidence {
		t.Fatalf("unexpected analysis: %+v", payload.Analysis)
	}
}

func TestHandleRunNotFound(t *testing.T) {
	srv := &Server{
		cfg:  config.Default(),
		deps: Deps{},
	}
	req := httptest.NewRequest("GET", "/runs/abc", nil)
	rec := httptest.NewRecorder()
	srv.handleRun(rec, req)
	if rec.Code != 404 {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}
