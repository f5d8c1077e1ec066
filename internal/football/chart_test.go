package football

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func chartResult() *Result {
	return &Result{
		TotalFrames: 3,
		Frames: []FrameRecord{
			{FrameIndex: 0, OpenScores: map[int]float64{1: 55}},
			{FrameIndex: 1, OpenScores: map[int]float64{1: 62, 2: 48}},
			{FrameIndex: 2, OpenScores: map[int]float64{2: 51}},
		},
	}
}

func TestRenderScoreChart_NoFrames(t *testing.T) {
	if err := RenderScoreChart(&Result{}, os.Stdout); err == nil {
		t.Fatal("expected an error without per-frame records")
	}
}

func TestSaveScoreChart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.html")
	if err := SaveScoreChart(chartResult(), path); err != nil {
		t.Fatalf("save chart: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read chart: %v", err)
	}
	html := string(data)
	if !strings.Contains(html, "echarts") {
		t.Error("expected an echarts page")
	}
	for _, series := range []string{"Receiver 1", "Receiver 2"} {
		if !strings.Contains(html, series) {
			t.Errorf("missing series %q", series)
		}
	}
}

func TestSaveScoreChart_RenderErrorStillClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.html")
	if err := SaveScoreChart(&Result{}, path); err == nil {
		t.Fatal("expected an error for a result with no frames")
	}
	// The created file must not be left open; a fresh save over the same
	// path succeeds.
	if err := SaveScoreChart(chartResult(), path); err != nil {
		t.Fatalf("second save: %v", err)
	}
}
