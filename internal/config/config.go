package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	Port int `yaml:"port"`

	GatewayURL    string `yaml:"gateway_url"`
	GatewayAPIKey string `yaml:"gateway_api_key"`
	// Workspace and Workflow are opaque identifiers passed through to
	// the inference gateway.
	Workspace    string `yaml:"workspace"`
	Workflow     string `yaml:"workflow"`
	ONNXModel    string `yaml:"onnx_model"`
	ONNXMetadata string `yaml:"onnx_metadata"`

	AdvisorURL    string `yaml:"advisor_url"`
	AdvisorAPIKey string `yaml:"advisor_api_key"`

	Workers     int     `yaml:"workers"`
	IntervalSec float64 `yaml:"interval_sec"`
	Threshold   float64 `yaml:"threshold"`
	FPS         float64 `yaml:"fps"`

	OutputDir string `yaml:"output_dir"`
	DBPath    string `yaml:"db_path"`
	AuditDir  string `yaml:"audit_dir"`

	// Live camera-gateway ingest. LiveBatch frames are analyzed per
	// batch when Endpoint is set.
	Endpoint  string `yaml:"endpoint"`
	LiveBatch int    `yaml:"live_batch"`

	Debug     bool    `yaml:"debug"`
	DebugRate float64 `yaml:"debug_rate"`

	HealthInterval time.Duration `yaml:"health_interval"`
	IngestLogEvery int           `yaml:"ingest_log_every"`
}

func Default() AppConfig {
	return AppConfig{
		Port:           8888,
		GatewayURL:     "https://serverless.roboflow.com",
		Workers:        4,
		IntervalSec:    2,
		Threshold:      0.4,
		OutputDir:      "output",
		LiveBatch:      32,
		DebugRate:      10,
		HealthInterval: 5 * time.Second,
		IngestLogEvery: 100,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (AppConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
