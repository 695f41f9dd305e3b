package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"minewatch-go/internal/types"
)

// Summarizer is the text-generation collaborator. Its output is
// advisory only: the reconciler parses it best-effort and the decision
// table can override every field.
type Summarizer interface {
	Summarize(ctx context.Context, predictions string) (string, error)
}

// HTTPSummarizer posts the flattened predictions to a summarize
// endpoint and returns the raw response text.
type HTTPSummarizer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPSummarizer(baseURL, apiKey string) *HTTPSummarizer {
	return &HTTPSummarizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSummarizer) Summarize(ctx context.Context, predictions string) (string, error) {
	payload, err := json.Marshal(map[string]string{"predictions": predictions})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/summarize", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("summarize request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("summarize response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarize status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Summary != "" {
		return decoded.Summary, nil
	}
	// Some collaborators return bare text instead of a JSON envelope.
	return string(body), nil
}

// PredictionsText flattens a prediction set into the line format the
// collaborator is prompted with, one detection per line.
func PredictionsText(set *types.PredictionSet) string {
	var lines []string
	for i := 0; i < set.FrameCount(); i++ {
		for _, d := range set.Detections(i) {
			lines = append(lines, fmt.Sprintf("frame_%d: %s (conf=%.2f)", i, d.Class, d.Confidence))
		}
	}
	if len(lines) == 0 {
		return "No predictions available"
	}
	return strings.Join(lines, "\n")
}
