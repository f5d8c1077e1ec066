package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridiron-data/openscore.report/internal/football"
)

// TuningConfig is the root of the JSON tuning file. All fields are pointers
// so a partial file only overrides what it names; every omitted field keeps
// the pipeline default.
type TuningConfig struct {
	// Tracker params
	HighConfThreshold *float64 `json:"high_conf_threshold,omitempty"`
	LowConfThreshold  *float64 `json:"low_conf_threshold,omitempty"`
	IoUGate           *float64 `json:"iou_gate,omitempty"`
	TrackBuffer       *int     `json:"track_buffer,omitempty"`
	VelocityWindow    *int     `json:"velocity_window,omitempty"`

	// Team classifier params
	WarmupFrames        *int `json:"warmup_frames,omitempty"`
	MinClusterSamples   *int `json:"min_cluster_samples,omitempty"`
	MinVoteSamples      *int `json:"min_vote_samples,omitempty"`
	StrictMaskMinPixels *int `json:"strict_mask_min_pixels,omitempty"`
	LooseMaskMinPixels  *int `json:"loose_mask_min_pixels,omitempty"`

	// Detector params
	DetectorConfidence *float64 `json:"detector_confidence,omitempty"`
	DetectorNMSIoU     *float64 `json:"detector_nms_iou,omitempty"`
	DetectorInputSize  *int     `json:"detector_input_size,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and stay under the size cap; partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that any set values are inside their operating ranges.
func (c *TuningConfig) Validate() error {
	checkUnit := func(name string, v *float64) error {
		if v != nil && (*v < 0 || *v > 1) {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, *v)
		}
		return nil
	}
	if err := checkUnit("high_conf_threshold", c.HighConfThreshold); err != nil {
		return err
	}
	if err := checkUnit("low_conf_threshold", c.LowConfThreshold); err != nil {
		return err
	}
	if err := checkUnit("iou_gate", c.IoUGate); err != nil {
		return err
	}
	if err := checkUnit("detector_confidence", c.DetectorConfidence); err != nil {
		return err
	}
	if err := checkUnit("detector_nms_iou", c.DetectorNMSIoU); err != nil {
		return err
	}

	if c.HighConfThreshold != nil && c.LowConfThreshold != nil &&
		*c.HighConfThreshold <= *c.LowConfThreshold {
		return fmt.Errorf("high_conf_threshold (%f) must exceed low_conf_threshold (%f)",
			*c.HighConfThreshold, *c.LowConfThreshold)
	}

	checkPositive := func(name string, v *int) error {
		if v != nil && *v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, *v)
		}
		return nil
	}
	for name, v := range map[string]*int{
		"track_buffer":           c.TrackBuffer,
		"velocity_window":        c.VelocityWindow,
		"warmup_frames":          c.WarmupFrames,
		"min_cluster_samples":    c.MinClusterSamples,
		"min_vote_samples":       c.MinVoteSamples,
		"strict_mask_min_pixels": c.StrictMaskMinPixels,
		"loose_mask_min_pixels":  c.LooseMaskMinPixels,
		"detector_input_size":    c.DetectorInputSize,
	} {
		if err := checkPositive(name, v); err != nil {
			return err
		}
	}
	return nil
}

// TrackerConfig returns the pipeline tracker configuration with any set
// overrides applied on top of the defaults.
func (c *TuningConfig) TrackerConfig() football.TrackerConfig {
	out := football.DefaultTrackerConfig()
	if c.HighConfThreshold != nil {
		out.HighConfThreshold = *c.HighConfThreshold
	}
	if c.LowConfThreshold != nil {
		out.LowConfThreshold = *c.LowConfThreshold
	}
	if c.IoUGate != nil {
		out.IoUGate = *c.IoUGate
	}
	if c.TrackBuffer != nil {
		out.TrackBuffer = *c.TrackBuffer
	}
	if c.VelocityWindow != nil {
		out.VelocityWindow = *c.VelocityWindow
	}
	return out
}

// ClassifierConfig returns the team classifier configuration with any set
// overrides applied on top of the defaults.
func (c *TuningConfig) ClassifierConfig() football.ClassifierConfig {
	out := football.DefaultClassifierConfig()
	if c.WarmupFrames != nil {
		out.WarmupFrames = *c.WarmupFrames
	}
	if c.MinClusterSamples != nil {
		out.MinClusterSamples = *c.MinClusterSamples
	}
	if c.MinVoteSamples != nil {
		out.MinVoteSamples = *c.MinVoteSamples
	}
	if c.StrictMaskMinPixels != nil {
		out.StrictMaskMinPixels = *c.StrictMaskMinPixels
	}
	if c.LooseMaskMinPixels != nil {
		out.LooseMaskMinPixels = *c.LooseMaskMinPixels
	}
	return out
}

// YOLOConfig returns the detector configuration for the given model path
// with any set overrides applied on top of the defaults.
func (c *TuningConfig) YOLOConfig(modelPath string) football.YOLOConfig {
	out := football.DefaultYOLOConfig(modelPath)
	if c.DetectorConfidence != nil {
		out.Confidence = float32(*c.DetectorConfidence)
	}
	if c.DetectorNMSIoU != nil {
		out.NMSIoU = float32(*c.DetectorNMSIoU)
	}
	if c.DetectorInputSize != nil {
		out.InputSize = *c.DetectorInputSize
	}
	return out
}
