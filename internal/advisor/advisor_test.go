package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"minewatch-go/internal/types"
)

func TestPredictionsText(t *testing.T) {
	set := types.NewPredictionSet()
	set.Put(0, []types.Detection{{Class: "loose_rock", Confidence: 0.45}}, "")
	set.Put(1, nil, "gateway_error")
	set.Put(2, []types.Detection{{Class: "rockfall", Confidence: 0.8}}, "")

	got := PredictionsText(set)
	want := "frame_0: loose_rock (conf=0.45)\nframe_2: rockfall (conf=0.80)"
	if got != want {
		t.Fatalf("text mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestPredictionsTextEmpty(t *testing.T) {
	if got := PredictionsText(types.NewPredictionSet()); got != "No predictions available" {
		t.Fatalf("unexpected text: %q", got)
	}
}

func TestSummarizeEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/summarize" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("unexpected auth header: %q", auth)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["predictions"] == "" {
			t.Errorf("missing predictions field")
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"summary": "all quiet"})
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL, "secret")
	got, err := s.Summarize(context.Background(), "frame_0: loose_rock (conf=0.45)")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != "all quiet" {
		t.Fatalf("unexpected summary: %q", got)
	}
}

func TestSummarizeBareText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"riskLevel":"Low"}`))
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL, "")
	got, err := s.Summarize(context.Background(), "No predictions available")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got != `{"riskLevel":"Low"}` {
		t.Fatalf("unexpected response: %q", got)
	}
}

func TestSummarizeErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exhausted", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPSummarizer(srv.URL, "")
	if _, err := s.Summarize(context.Background(), "text"); err == nil {
		t.Fatalf("expected error on non-200 status")
	}
}
