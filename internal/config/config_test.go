package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen :8080, got %q", cfg.Listen)
	}
	if cfg.SampleInterval != 30 {
		t.Errorf("expected default sample interval 30, got %d", cfg.SampleInterval)
	}
	if cfg.TargetWidth != 640 || cfg.TargetHeight != 480 {
		t.Errorf("expected default resolution 640x480, got %dx%d", cfg.TargetWidth, cfg.TargetHeight)
	}
	if cfg.StableThreshold != 10*time.Minute {
		t.Errorf("expected default stable threshold 10m, got %v", cfg.StableThreshold)
	}
	if cfg.CongestionVehicleThreshold != 30 {
		t.Errorf("expected default congestion threshold 30, got %d", cfg.CongestionVehicleThreshold)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRACKV_LISTEN", ":9999")
	t.Setenv("TRACKV_SAMPLE_INTERVAL", "10")
	t.Setenv("TRACKV_STABLE_THRESHOLD", "2m")
	t.Setenv("TRACKV_HYSTERESIS_MARGIN", "30s")
	t.Setenv("TRACKV_MOVEMENT_EPSILON_PX", "7.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Listen != ":9999" {
		t.Errorf("listen override not applied: %q", cfg.Listen)
	}
	if cfg.SampleInterval != 10 {
		t.Errorf("sample interval override not applied: %d", cfg.SampleInterval)
	}
	if cfg.StableThreshold != 2*time.Minute {
		t.Errorf("stable threshold override not applied: %v", cfg.StableThreshold)
	}
	if cfg.MovementEpsilonPx != 7.5 {
		t.Errorf("movement epsilon override not applied: %v", cfg.MovementEpsilonPx)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"empty db path", func(c *Config) { c.DBPath = "" }},
		{"zero sample interval", func(c *Config) { c.SampleInterval = 0 }},
		{"zero width", func(c *Config) { c.TargetWidth = 0 }},
		{"negative epsilon", func(c *Config) { c.MovementEpsilonPx = -1 }},
		{"zero stable threshold", func(c *Config) { c.StableThreshold = 0 }},
		{"hysteresis >= threshold", func(c *Config) {
			c.StableThreshold = time.Minute
			c.HysteresisMargin = time.Minute
		}},
		{"zero detector failure bound", func(c *Config) { c.MaxDetectorFailures = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

func TestAlertRecipientsList(t *testing.T) {
	t.Setenv("TRACKV_ALERT_RECIPIENTS", "ops@example.com, traffic@example.com ,,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"ops@example.com", "traffic@example.com"}
	if len(cfg.AlertRecipients) != len(want) {
		t.Fatalf("AlertRecipients = %v, want %v", cfg.AlertRecipients, want)
	}
	for i := range want {
		if cfg.AlertRecipients[i] != want[i] {
			t.Errorf("AlertRecipients[%d] = %q, want %q", i, cfg.AlertRecipients[i], want[i])
		}
	}
}

func TestSMSRecipientsList(t *testing.T) {
	t.Setenv("TRACKV_SMS_RECIPIENTS", "+15550100 , +15550101,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"+15550100", "+15550101"}
	if len(cfg.SMSRecipients) != len(want) {
		t.Fatalf("SMSRecipients = %v, want %v", cfg.SMSRecipients, want)
	}
	for i := range want {
		if cfg.SMSRecipients[i] != want[i] {
			t.Errorf("SMSRecipients[%d] = %q, want %q", i, cfg.SMSRecipients[i], want[i])
		}
	}
}
