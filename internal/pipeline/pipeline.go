package pipeline

import (
	"context"
	"log"

	"minewatch-go/internal/advisor"
	"minewatch-go/internal/inference"
	"minewatch-go/internal/processing"
	"minewatch-go/internal/sampler"
	"minewatch-go/internal/types"
	"minewatch-go/internal/verdict"
)

type Options struct {
	IntervalSec float64
	Threshold   float64
	Workers     int
	SpoolDir    string

	Gateway    inference.Gateway
	Summarizer advisor.Summarizer // optional
	Recorder   processing.Recorder
	Progress   func(processing.Result)
}

type RunResult struct {
	Predictions *types.PredictionSet `json:"predictions"`
	Analysis    types.Analysis       `json:"analysis"`
}

// Analyze runs the full batch pipeline over one video stream: sample,
// dispatch through the gateway, aggregate, fetch the advisory summary,
// and reconcile into the final verdict. The advisory collaborator is
// best-effort; only an unreadable video source fails the run.
func Analyze(ctx context.Context, stream sampler.Stream, opts Options) (*RunResult, error) {
	s := sampler.New(stream, opts.IntervalSec)

	set, err := processing.Dispatch(ctx, s, opts.Gateway, processing.Config{
		Workers:   opts.Workers,
		Threshold: opts.Threshold,
		SpoolDir:  opts.SpoolDir,
	}, opts.Recorder, opts.Progress)
	if err != nil {
		return nil, err
	}

	advisory := verdict.Advisory{}
	if opts.Summarizer != nil {
		text, err := opts.Summarizer.Summarize(ctx, advisor.PredictionsText(set))
		if err != nil {
			log.Printf("advisory summary failed: %v", err)
		} else {
			advisory = verdict.ParseAdvisory(text)
		}
	}

	analysis := verdict.Reconcile(advisory, set.HighestConfidence())
	return &RunResult{
		Predictions: set,
		Analysis:    analysis,
	}, nil
}
