// Package config loads pipeline tuning overrides from JSON files. A
// tuning file is a partial document: every field is optional and omitted
// fields keep the compiled-in defaults, so deployments only write down
// the thresholds they actually changed.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Tongxz/PEPGMP-sub000/internal/vision"
)

// TuningConfig represents the root tuning document. Pointer fields
// distinguish "not set" from a deliberate zero.
type TuningConfig struct {
	// Tracker params
	IoUThreshold           *float64 `json:"iou_threshold,omitempty"`
	DistThreshold          *float64 `json:"dist_threshold,omitempty"`
	RevivalDistThreshold   *float64 `json:"revival_dist_threshold,omitempty"`
	IoUWeight              *float64 `json:"iou_weight,omitempty"`
	DisappearanceThreshold *int     `json:"disappearance_threshold,omitempty"`
	HistoryCapacity        *int     `json:"history_capacity,omitempty"`
	RecycleIDs             *bool    `json:"recycle_ids,omitempty"`
	Assignment             *string  `json:"assignment,omitempty"` // "hungarian" or "greedy"

	// Stabilizer params
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	TransitionThreshold *float64 `json:"transition_threshold,omitempty"`
	StabilityFrames     *int     `json:"stability_frames,omitempty"`
	StateWindowCapacity *int     `json:"state_window_capacity,omitempty"`

	// Smoother params
	SmoothingAlpha       *float64 `json:"smoothing_alpha,omitempty"`
	SmoothWindowCapacity *int     `json:"smooth_window_capacity,omitempty"`

	// Registry and synchronizer params
	MaxRecords    *int    `json:"max_records,omitempty"`
	SyncWindow    *string `json:"sync_window,omitempty"` // duration string like "100ms"
	MaxSyncFrames *int    `json:"max_sync_frames,omitempty"`

	// Gate params
	SkipInterval      *int     `json:"skip_interval,omitempty"`
	MotionEnabled     *bool    `json:"motion_enabled,omitempty"`
	MotionPixelDelta  *float64 `json:"motion_pixel_delta,omitempty"`
	MotionMinFraction *float64 `json:"motion_min_fraction,omitempty"`
	MinInterval       *string  `json:"min_interval,omitempty"` // duration string like "50ms"

	Debug *bool `json:"debug,omitempty"`
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the size cap; a partial document
// is valid.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat tuning file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("tuning file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read tuning file: %w", err)
	}

	cfg := &TuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse tuning JSON: %w", err)
	}
	if err := cfg.validateDurations(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateDurations rejects unparseable duration strings early; range
// checks belong to the component Validate methods after application.
func (c *TuningConfig) validateDurations() error {
	if c.SyncWindow != nil && *c.SyncWindow != "" {
		if _, err := time.ParseDuration(*c.SyncWindow); err != nil {
			return fmt.Errorf("invalid sync_window %q: %w", *c.SyncWindow, err)
		}
	}
	if c.MinInterval != nil && *c.MinInterval != "" {
		if _, err := time.ParseDuration(*c.MinInterval); err != nil {
			return fmt.Errorf("invalid min_interval %q: %w", *c.MinInterval, err)
		}
	}
	return nil
}

// Apply overlays the set fields onto a pipeline configuration and
// revalidates every component config, so a tuning file can never push a
// pipeline into an invalid operating range.
func (c *TuningConfig) Apply(base vision.PipelineConfig) (vision.PipelineConfig, error) {
	out := base

	if c.IoUThreshold != nil {
		out.Tracker.IoUThreshold = *c.IoUThreshold
	}
	if c.DistThreshold != nil {
		out.Tracker.DistThreshold = *c.DistThreshold
	}
	if c.RevivalDistThreshold != nil {
		out.Tracker.RevivalDistThreshold = *c.RevivalDistThreshold
	}
	if c.IoUWeight != nil {
		out.Tracker.IoUWeight = *c.IoUWeight
	}
	if c.DisappearanceThreshold != nil {
		out.Tracker.DisappearanceThreshold = *c.DisappearanceThreshold
	}
	if c.HistoryCapacity != nil {
		out.Tracker.HistoryCapacity = *c.HistoryCapacity
	}
	if c.RecycleIDs != nil {
		out.Tracker.RecycleIDs = *c.RecycleIDs
	}
	if c.Assignment != nil {
		out.Tracker.Assignment = vision.AssignmentMode(*c.Assignment)
	}

	if c.ConfidenceThreshold != nil {
		out.Stabilizer.ConfidenceThreshold = *c.ConfidenceThreshold
	}
	if c.TransitionThreshold != nil {
		out.Stabilizer.TransitionThreshold = *c.TransitionThreshold
	}
	if c.StabilityFrames != nil {
		out.Stabilizer.StabilityFrames = *c.StabilityFrames
	}
	if c.StateWindowCapacity != nil {
		out.Stabilizer.WindowCapacity = *c.StateWindowCapacity
	}

	if c.SmoothingAlpha != nil {
		out.Smoother.Alpha = *c.SmoothingAlpha
	}
	if c.SmoothWindowCapacity != nil {
		out.Smoother.WindowCapacity = *c.SmoothWindowCapacity
	}

	if c.MaxRecords != nil {
		out.Registry.MaxRecords = *c.MaxRecords
	}
	if c.SyncWindow != nil && *c.SyncWindow != "" {
		d, err := time.ParseDuration(*c.SyncWindow)
		if err != nil {
			return out, fmt.Errorf("invalid sync_window %q: %w", *c.SyncWindow, err)
		}
		out.Synchronizer.WindowMicros = d.Microseconds()
	}
	if c.MaxSyncFrames != nil {
		out.Synchronizer.MaxFrames = *c.MaxSyncFrames
	}

	if c.SkipInterval != nil {
		out.Gate.SkipInterval = *c.SkipInterval
	}
	if c.MotionEnabled != nil {
		out.Gate.MotionEnabled = *c.MotionEnabled
	}
	if c.MotionPixelDelta != nil {
		out.Gate.MotionPixelDelta = *c.MotionPixelDelta
	}
	if c.MotionMinFraction != nil {
		out.Gate.MotionMinFraction = *c.MotionMinFraction
	}
	if c.MinInterval != nil && *c.MinInterval != "" {
		d, err := time.ParseDuration(*c.MinInterval)
		if err != nil {
			return out, fmt.Errorf("invalid min_interval %q: %w", *c.MinInterval, err)
		}
		out.Gate.MinInterval = d
	}

	if c.Debug != nil {
		out.Debug = *c.Debug
	}

	if err := out.Tracker.Validate(); err != nil {
		return out, fmt.Errorf("tuning produced invalid tracker config: %w", err)
	}
	if err := out.Stabilizer.Validate(); err != nil {
		return out, fmt.Errorf("tuning produced invalid stabilizer config: %w", err)
	}
	if err := out.Smoother.Validate(); err != nil {
		return out, fmt.Errorf("tuning produced invalid smoother config: %w", err)
	}
	if err := out.Registry.Validate(); err != nil {
		return out, fmt.Errorf("tuning produced invalid registry config: %w", err)
	}
	if err := out.Synchronizer.Validate(); err != nil {
		return out, fmt.Errorf("tuning produced invalid synchronizer config: %w", err)
	}
	if err := out.Gate.Validate(); err != nil {
		return out, fmt.Errorf("tuning produced invalid gate config: %w", err)
	}

	return out, nil
}
