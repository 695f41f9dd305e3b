package report

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"minewatch-go/internal/types"
)

// WriteConfidenceChart renders an HTML line chart of the peak raw
// detection confidence per sampled frame.
func WriteConfidenceChart(path string, set *types.PredictionSet) error {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Peak detection confidence per frame",
			Subtitle: fmt.Sprintf("%d sampled frames, %d detections", set.FrameCount(), set.TotalDetections()),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
	)

	labels := make([]string, 0, set.FrameCount())
	values := make([]opts.LineData, 0, set.FrameCount())
	for i := 0; i < set.FrameCount(); i++ {
		peak := 0.0
		for _, d := range set.Detections(i) {
			if d.Confidence > peak {
				peak = d.Confidence
			}
		}
		labels = append(labels, fmt.Sprintf("frame_%d", i))
		values = append(values, opts.LineData{Value: peak})
	}

	line.SetXAxis(labels).AddSeries("peak confidence", values)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return line.Render(f)
}
