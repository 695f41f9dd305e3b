package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"minewatch-go/internal/types"
)

// WriteRun persists one finished analysis: the ordered per-frame
// predictions and the verdict, as separate JSON files keyed by the run
// timestamp.
func WriteRun(outputDir string, runTimestamp string, set *types.PredictionSet, analysis types.Analysis) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	predictions, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return err
	}
	predPath := filepath.Join(outputDir, fmt.Sprintf("%s_predictions.json", runTimestamp))
	if err := os.WriteFile(predPath, predictions, 0o644); err != nil {
		return err
	}

	verdict, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return err
	}
	verdictPath := filepath.Join(outputDir, fmt.Sprintf("%s_verdict.json", runTimestamp))
	return os.WriteFile(verdictPath, verdict, 0o644)
}

func Timestamp() string {
	return time.Now().Format("20060102_150405")
}
