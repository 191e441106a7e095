package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsPreserveTunedConstants(t *testing.T) {
	cfg := Default()

	if cfg.Tracking.BurstGapMs != 2000 {
		t.Errorf("burst gap = %d, want 2000", cfg.Tracking.BurstGapMs)
	}
	if cfg.Tracking.MinBurstKeystrokes != 5 {
		t.Errorf("min burst keystrokes = %d, want 5", cfg.Tracking.MinBurstKeystrokes)
	}
	if cfg.Tracking.PeakWPMCap != 200 {
		t.Errorf("peak WPM cap = %d, want 200", cfg.Tracking.PeakWPMCap)
	}
	if cfg.Verification.SmallMaxChars != 50 ||
		cfg.Verification.MediumMaxChars != 300 ||
		cfg.Verification.LargeMaxChars != 1000 {
		t.Errorf("paste tiers = %d/%d/%d, want 50/300/1000",
			cfg.Verification.SmallMaxChars, cfg.Verification.MediumMaxChars, cfg.Verification.LargeMaxChars)
	}
	if cfg.Verification.VerifyThreshold != 70 {
		t.Errorf("verify threshold = %d, want 70", cfg.Verification.VerifyThreshold)
	}
	if cfg.Verification.MaxLargePastes != 3 || cfg.Verification.MaxVeryLargePastes != 1 {
		t.Errorf("paste caps = %d/%d, want 3/1",
			cfg.Verification.MaxLargePastes, cfg.Verification.MaxVeryLargePastes)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestParamConversion(t *testing.T) {
	cfg := Default()

	tp := cfg.TrackerParams()
	if tp.BurstGap != 2*time.Second || tp.NotifyInterval != 2*time.Second {
		t.Errorf("tracker params = %+v", tp)
	}
	if tp.IdleThreshold != 60*time.Second {
		t.Errorf("idle threshold = %v, want 60s", tp.IdleThreshold)
	}

	vp := cfg.VerifyParams()
	if vp.VeryLargePenalty != 15 || vp.MediumPenalty != 1 {
		t.Errorf("verify params = %+v", vp)
	}
}

func TestLoadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[recording]
heartbeat_interval_sec = 10

[tracking]
burst_gap_ms = 1500

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Recording.HeartbeatIntervalSec != 10 {
		t.Errorf("heartbeat = %d, want 10", cfg.Recording.HeartbeatIntervalSec)
	}
	if cfg.Tracking.BurstGapMs != 1500 {
		t.Errorf("burst gap = %d, want 1500", cfg.Tracking.BurstGapMs)
	}
	// Untouched sections keep their defaults.
	if cfg.Verification.VerifyThreshold != 70 {
		t.Errorf("verify threshold = %d, want default 70", cfg.Verification.VerifyThreshold)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
version: 1
verification:
  verify_threshold: 80
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Verification.VerifyThreshold != 80 {
		t.Errorf("verify threshold = %d, want 80", cfg.Verification.VerifyThreshold)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
version = 1

[recording]
heartbeat_interval_sec = 0
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected validation error for zero heartbeat interval")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.Verification.VerifyThreshold != 70 {
		t.Error("missing file should yield defaults")
	}
}
