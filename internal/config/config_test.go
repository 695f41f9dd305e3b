package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: 9000
gateway_url: http://localhost:9001
workspace: mine-ops
workflow: rockfall-detect
workers: 8
interval_sec: 0.5
threshold: 0.55
fps: 30
endpoint: tcp://camera:5555
health_interval: 10s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port %d", cfg.Port)
	}
	if cfg.GatewayURL != "http://localhost:9001" {
		t.Fatalf("gateway url %q", cfg.GatewayURL)
	}
	if cfg.Workspace != "mine-ops" || cfg.Workflow != "rockfall-detect" {
		t.Fatalf("workspace/workflow %q/%q", cfg.Workspace, cfg.Workflow)
	}
	if cfg.Workers != 8 || cfg.IntervalSec != 0.5 || cfg.Threshold != 0.55 || cfg.FPS != 30 {
		t.Fatalf("pipeline settings: %+v", cfg)
	}
	if cfg.Endpoint != "tcp://camera:5555" {
		t.Fatalf("endpoint %q", cfg.Endpoint)
	}
	if cfg.HealthInterval != 10*time.Second {
		t.Fatalf("health interval %v", cfg.HealthInterval)
	}

	// Unset keys keep their defaults.
	if cfg.OutputDir != "output" {
		t.Fatalf("output dir %q", cfg.OutputDir)
	}
	if cfg.LiveBatch != 32 {
		t.Fatalf("live batch %d", cfg.LiveBatch)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatalf("expected error")
	}
	// The defaults still come back so the caller can decide to proceed.
	if cfg.Port != 8888 {
		t.Fatalf("port %d", cfg.Port)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("port: [not a number"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
