package inference

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// HTTPGateway posts frames to a serverless detection workflow. The
// workspace and workflow identifiers are opaque pass-through strings
// owned by the remote service.
type HTTPGateway struct {
	baseURL   string
	apiKey    string
	workspace string
	workflow  string
	client    *http.Client
}

func NewHTTPGateway(baseURL, apiKey, workspace, workflow string) *HTTPGateway {
	return &HTTPGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		workspace: workspace,
		workflow:  workflow,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type workflowRequest struct {
	APIKey string         `json:"api_key"`
	Inputs map[string]any `json:"inputs"`
}

type workflowResponse struct {
	Outputs []struct {
		ModelPredictions struct {
			Predictions []RawDetection `json:"predictions"`
		} `json:"model_predictions"`
	} `json:"outputs"`
}

func (g *HTTPGateway) Infer(ctx context.Context, imagePath string) ([]RawDetection, error) {
	image, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, fmt.Errorf("read frame spool: %w", err)
	}

	payload, err := json.Marshal(workflowRequest{
		APIKey: g.apiKey,
		Inputs: map[string]any{
			"image": map[string]any{
				"type":  "base64",
				"value": base64.StdEncoding.EncodeToString(image),
			},
		},
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/infer/workflows/%s/%s", g.baseURL, g.workspace, g.workflow)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded workflowResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	if len(decoded.Outputs) == 0 {
		return nil, nil
	}
	return decoded.Outputs[0].ModelPredictions.Predictions, nil
}
