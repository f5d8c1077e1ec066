package football

import (
	"context"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

type stubDetector struct {
	detections []Detection
}

func (d *stubDetector) Detect(frame gocv.Mat) ([]Detection, error) {
	return d.detections, nil
}

func TestDefaultProcessorConfig(t *testing.T) {
	cfg := DefaultProcessorConfig()
	if cfg.Tracker.HighConfThreshold <= cfg.Tracker.LowConfThreshold {
		t.Errorf("threshold ordering broken: %+v", cfg.Tracker)
	}
	if cfg.Classifier.NumTeams != 2 {
		t.Errorf("expected 2 teams, got %d", cfg.Classifier.NumTeams)
	}
}

func TestProcessor_Accessors(t *testing.T) {
	p := NewProcessor(&stubDetector{}, DefaultProcessorConfig())
	if p.Tracker() == nil || p.Classifier() == nil {
		t.Fatal("expected live tracker and classifier")
	}
}

func TestProcessor_MissingVideoFails(t *testing.T) {
	p := NewProcessor(&stubDetector{}, DefaultProcessorConfig())
	missing := filepath.Join(t.TempDir(), "nope.mp4")
	if _, err := p.Process(context.Background(), missing, ""); err == nil {
		t.Fatal("expected an error for a missing video")
	}
}

func TestProcessor_ProgressPanicIsContained(t *testing.T) {
	p := NewProcessor(&stubDetector{}, DefaultProcessorConfig())
	p.SetProgress(func(frameIndex, totalFrames int) { panic("boom") })
	// Must not propagate the panic.
	p.reportProgress(10, 100)
}
