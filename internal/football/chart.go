package football

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderScoreChart renders an HTML line chart of every receiver's OpenScore
// timeline over the run. Frames where a receiver was not scored show as
// gaps. The output is a self-contained page suitable for serving or saving.
func RenderScoreChart(result *Result, w io.Writer) error {
	if len(result.Frames) == 0 {
		return fmt.Errorf("render chart: no per-frame data retained")
	}

	// Collect the scored identities across the whole run.
	idSet := make(map[int]struct{})
	for _, frame := range result.Frames {
		for id := range frame.OpenScores {
			idSet[id] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return fmt.Errorf("render chart: no scored receivers")
	}
	ids := make([]int, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	xAxis := make([]string, len(result.Frames))
	for i, frame := range result.Frames {
		xAxis[i] = fmt.Sprintf("%d", frame.FrameIndex)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "OpenScore Timeline", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "OpenScore Timeline", Subtitle: fmt.Sprintf("receivers=%d frames=%d", len(ids), len(result.Frames))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Frame"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "OpenScore", Min: 0, Max: 100}),
	)

	line.SetXAxis(xAxis)
	for _, id := range ids {
		series := make([]opts.LineData, len(result.Frames))
		for i, frame := range result.Frames {
			if score, ok := frame.OpenScores[id]; ok {
				series[i] = opts.LineData{Value: score}
			} else {
				series[i] = opts.LineData{Value: nil}
			}
		}
		line.AddSeries(fmt.Sprintf("Receiver %d", id), series,
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), ConnectNulls: opts.Bool(false)}))
	}

	return line.Render(w)
}

// SaveScoreChart writes the timeline chart to an HTML file.
func SaveScoreChart(result *Result, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create chart file %s: %w", path, err)
	}
	if err := RenderScoreChart(result, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
