package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTuningConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.json")

	testJSON := `{
  "high_conf_threshold": 0.6,
  "iou_gate": 0.25,
  "track_buffer": 45,
  "warmup_frames": 60,
  "detector_confidence": 0.3
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.HighConfThreshold == nil || *cfg.HighConfThreshold != 0.6 {
		t.Errorf("Expected HighConfThreshold 0.6, got %v", cfg.HighConfThreshold)
	}
	if cfg.IoUGate == nil || *cfg.IoUGate != 0.25 {
		t.Errorf("Expected IoUGate 0.25, got %v", cfg.IoUGate)
	}
	if cfg.TrackBuffer == nil || *cfg.TrackBuffer != 45 {
		t.Errorf("Expected TrackBuffer 45, got %v", cfg.TrackBuffer)
	}
	// Fields omitted from the file stay unset.
	if cfg.LowConfThreshold != nil {
		t.Errorf("Expected LowConfThreshold unset, got %v", *cfg.LowConfThreshold)
	}
}

func TestLoadTuningConfig_PartialOverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	if err := os.WriteFile(configPath, []byte(`{"track_buffer": 60}`), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	cfg, err := LoadTuningConfig(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	trackerCfg := cfg.TrackerConfig()
	if trackerCfg.TrackBuffer != 60 {
		t.Errorf("Expected TrackBuffer override 60, got %d", trackerCfg.TrackBuffer)
	}
	if trackerCfg.HighConfThreshold != 0.5 {
		t.Errorf("Expected default HighConfThreshold 0.5, got %v", trackerCfg.HighConfThreshold)
	}

	classifierCfg := cfg.ClassifierConfig()
	if classifierCfg.WarmupFrames != 30 {
		t.Errorf("Expected default WarmupFrames 30, got %d", classifierCfg.WarmupFrames)
	}

	yoloCfg := cfg.YOLOConfig("model.onnx")
	if yoloCfg.ModelPath != "model.onnx" || yoloCfg.InputSize != 640 {
		t.Errorf("Unexpected detector config: %+v", yoloCfg)
	}
}

func TestLoadTuningConfig_RejectsNonJSON(t *testing.T) {
	if _, err := LoadTuningConfig("config.yaml"); err == nil {
		t.Error("Expected error for non-JSON extension")
	}
}

func TestLoadTuningConfig_RejectsMissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	bad := func(mutate func(*TuningConfig)) *TuningConfig {
		cfg := EmptyTuningConfig()
		mutate(cfg)
		return cfg
	}
	f := func(v float64) *float64 { return &v }
	i := func(v int) *int { return &v }

	cases := []struct {
		name string
		cfg  *TuningConfig
	}{
		{"threshold above 1", bad(func(c *TuningConfig) { c.HighConfThreshold = f(1.5) })},
		{"negative gate", bad(func(c *TuningConfig) { c.IoUGate = f(-0.1) })},
		{"inverted thresholds", bad(func(c *TuningConfig) {
			c.HighConfThreshold = f(0.2)
			c.LowConfThreshold = f(0.4)
		})},
		{"zero buffer", bad(func(c *TuningConfig) { c.TrackBuffer = i(0) })},
		{"negative warmup", bad(func(c *TuningConfig) { c.WarmupFrames = i(-1) })},
	}
	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}

	if err := EmptyTuningConfig().Validate(); err != nil {
		t.Errorf("empty config must validate, got %v", err)
	}
}
