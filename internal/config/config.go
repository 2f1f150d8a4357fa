// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Listen       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Database settings.
	DBPath string

	// Detector settings.
	DetectorURL     string
	DetectorTimeout time.Duration

	// Frame pipeline settings.
	SampleInterval      int // forward every Nth frame to the detector
	TargetWidth         int
	TargetHeight        int
	ReadTimeoutPerFrame time.Duration
	MaxReadRetries      int
	MaxDetectorFailures int

	// Stability tracker settings.
	MovementEpsilonPx float64
	StableThreshold   time.Duration
	StaleAfter        time.Duration
	HysteresisMargin  time.Duration

	// Alert settings.
	CongestionVehicleThreshold int
	BottleneckVehicleThreshold int
	BottleneckStableThreshold  int

	// SMTP settings for alert email delivery.
	SMTPHost        string
	SMTPPort        int
	SMTPUser        string
	SMTPPassword    string
	SMTPFrom        string
	AlertRecipients []string

	// SMSRecipients receive short-message alerts through the carrier
	// gateway when configured.
	SMSRecipients []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Listen:                     envStr("TRACKV_LISTEN", ":8080"),
		ReadTimeout:                envDuration("TRACKV_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:               envDuration("TRACKV_WRITE_TIMEOUT", 30*time.Second),
		DBPath:                     envStr("TRACKV_DB_PATH", "trackv.db"),
		DetectorURL:                envStr("TRACKV_DETECTOR_URL", "http://localhost:9090/detect"),
		DetectorTimeout:            envDuration("TRACKV_DETECTOR_TIMEOUT", 15*time.Second),
		SampleInterval:             envInt("TRACKV_SAMPLE_INTERVAL", 30),
		TargetWidth:                envInt("TRACKV_TARGET_WIDTH", 640),
		TargetHeight:               envInt("TRACKV_TARGET_HEIGHT", 480),
		ReadTimeoutPerFrame:        envDuration("TRACKV_FRAME_READ_TIMEOUT", 10*time.Second),
		MaxReadRetries:             envInt("TRACKV_MAX_READ_RETRIES", 3),
		MaxDetectorFailures:        envInt("TRACKV_MAX_DETECTOR_FAILURES", 5),
		MovementEpsilonPx:          envFloat("TRACKV_MOVEMENT_EPSILON_PX", 10),
		StableThreshold:            envDuration("TRACKV_STABLE_THRESHOLD", 10*time.Minute),
		StaleAfter:                 envDuration("TRACKV_STALE_AFTER", 5*time.Minute),
		HysteresisMargin:           envDuration("TRACKV_HYSTERESIS_MARGIN", 5*time.Minute),
		CongestionVehicleThreshold: envInt("TRACKV_CONGESTION_THRESHOLD_VEHICLES", 30),
		BottleneckVehicleThreshold: envInt("TRACKV_BOTTLENECK_THRESHOLD_VEHICLES", 100),
		BottleneckStableThreshold:  envInt("TRACKV_BOTTLENECK_THRESHOLD_STABLE", 5),
		SMTPHost:                   envStr("TRACKV_SMTP_HOST", ""),
		SMTPPort:                   envInt("TRACKV_SMTP_PORT", 587),
		SMTPUser:                   envStr("TRACKV_SMTP_USER", ""),
		SMTPPassword:               envStr("TRACKV_SMTP_PASSWORD", ""),
		SMTPFrom:                   envStr("TRACKV_SMTP_FROM", "alerts@trackv.dev"),
		AlertRecipients:            envStrList("TRACKV_ALERT_RECIPIENTS"),
		SMSRecipients:              envStrList("TRACKV_SMS_RECIPIENTS"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: TRACKV_LISTEN is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: TRACKV_DB_PATH is required")
	}
	if c.SampleInterval < 1 {
		return fmt.Errorf("config: TRACKV_SAMPLE_INTERVAL must be >= 1")
	}
	if c.TargetWidth <= 0 || c.TargetHeight <= 0 {
		return fmt.Errorf("config: target resolution must be positive")
	}
	if c.MovementEpsilonPx <= 0 {
		return fmt.Errorf("config: TRACKV_MOVEMENT_EPSILON_PX must be positive")
	}
	if c.StableThreshold <= 0 {
		return fmt.Errorf("config: TRACKV_STABLE_THRESHOLD must be positive")
	}
	if c.HysteresisMargin >= c.StableThreshold {
		return fmt.Errorf("config: hysteresis margin must be smaller than the stable threshold")
	}
	if c.MaxReadRetries < 0 || c.MaxDetectorFailures < 1 {
		return fmt.Errorf("config: retry bounds out of range")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func envStrList(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
