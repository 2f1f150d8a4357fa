package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TuningConfig is an optional JSON overlay for pipeline parameters. Fields
// are pointers so an absent key leaves the environment-derived value alone.
// The schema uses duration strings ("10m") for time values so the same file
// reads naturally in an editor.
type TuningConfig struct {
	// Frame pipeline
	SampleInterval *int `json:"sample_interval,omitempty"`
	TargetWidth    *int `json:"target_width,omitempty"`
	TargetHeight   *int `json:"target_height,omitempty"`

	// Stability tracker
	MovementEpsilonPx *float64 `json:"movement_epsilon_px,omitempty"`
	StableThreshold   *string  `json:"stable_threshold,omitempty"`
	StaleAfter        *string  `json:"stale_after,omitempty"`
	HysteresisMargin  *string  `json:"hysteresis_margin,omitempty"`

	// Alert thresholds
	CongestionVehicleThreshold *int `json:"congestion_vehicle_threshold,omitempty"`
	BottleneckVehicleThreshold *int `json:"bottleneck_vehicle_threshold,omitempty"`
	BottleneckStableThreshold  *int `json:"bottleneck_stable_threshold,omitempty"`
}

// LoadTuningConfig reads a tuning overlay from path. A missing file is not
// an error; a malformed one is.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &TuningConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read tuning file %s: %w", path, err)
	}

	var tc TuningConfig
	if err := json.Unmarshal(data, &tc); err != nil {
		return nil, fmt.Errorf("config: parse tuning file %s: %w", path, err)
	}
	return &tc, nil
}

// Apply overlays the tuning values onto cfg. The result is re-validated so a
// tuning file cannot push the configuration into an incoherent state.
func (tc *TuningConfig) Apply(cfg Config) (Config, error) {
	if tc.SampleInterval != nil {
		cfg.SampleInterval = *tc.SampleInterval
	}
	if tc.TargetWidth != nil {
		cfg.TargetWidth = *tc.TargetWidth
	}
	if tc.TargetHeight != nil {
		cfg.TargetHeight = *tc.TargetHeight
	}
	if tc.MovementEpsilonPx != nil {
		cfg.MovementEpsilonPx = *tc.MovementEpsilonPx
	}

	var err error
	if cfg.StableThreshold, err = overlayDuration(tc.StableThreshold, cfg.StableThreshold); err != nil {
		return Config{}, fmt.Errorf("config: stable_threshold: %w", err)
	}
	if cfg.StaleAfter, err = overlayDuration(tc.StaleAfter, cfg.StaleAfter); err != nil {
		return Config{}, fmt.Errorf("config: stale_after: %w", err)
	}
	if cfg.HysteresisMargin, err = overlayDuration(tc.HysteresisMargin, cfg.HysteresisMargin); err != nil {
		return Config{}, fmt.Errorf("config: hysteresis_margin: %w", err)
	}

	if tc.CongestionVehicleThreshold != nil {
		cfg.CongestionVehicleThreshold = *tc.CongestionVehicleThreshold
	}
	if tc.BottleneckVehicleThreshold != nil {
		cfg.BottleneckVehicleThreshold = *tc.BottleneckVehicleThreshold
	}
	if tc.BottleneckStableThreshold != nil {
		cfg.BottleneckStableThreshold = *tc.BottleneckStableThreshold
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func overlayDuration(s *string, fallback time.Duration) (time.Duration, error) {
	if s == nil {
		return fallback, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return 0, err
	}
	return d, nil
}
