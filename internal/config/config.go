// Package config handles configuration loading, validation, and defaults
// for lapserec.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"lapserec/internal/tracker"
	"lapserec/internal/verify"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Recording configuration for the session lifecycle.
	Recording RecordingConfig `toml:"recording" json:"recording" yaml:"recording"`

	// Tracking configuration for the keyboard activity tracker.
	Tracking TrackingConfig `toml:"tracking" json:"tracking" yaml:"tracking"`

	// Clipboard monitoring configuration.
	Clipboard ClipboardConfig `toml:"clipboard" json:"clipboard" yaml:"clipboard"`

	// Verification engine constants.
	Verification VerificationConfig `toml:"verification" json:"verification" yaml:"verification"`

	// Storage configuration for persistence.
	Storage StorageConfig `toml:"storage" json:"storage" yaml:"storage"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`
}

// RecordingConfig holds session lifecycle configuration.
type RecordingConfig struct {
	// SessionRoot is the directory session folders are created under.
	SessionRoot string `toml:"session_root" json:"session_root" yaml:"session_root"`

	// HeartbeatIntervalSec is the crash-recovery snapshot cadence.
	HeartbeatIntervalSec int `toml:"heartbeat_interval_sec" json:"heartbeat_interval_sec" yaml:"heartbeat_interval_sec"`

	// StopTimeoutSec bounds how long stop() waits for capture teardown
	// before force-resetting the session state.
	StopTimeoutSec int `toml:"stop_timeout_sec" json:"stop_timeout_sec" yaml:"stop_timeout_sec"`

	// FrameIntervalSec is the capture cadence handed to the engine.
	FrameIntervalSec int `toml:"frame_interval_sec" json:"frame_interval_sec" yaml:"frame_interval_sec"`
}

// TrackingConfig holds keyboard activity tracker constants. The defaults
// are empirically tuned and preserved exactly; change them only if you
// accept diverging from the standard verification behavior.
type TrackingConfig struct {
	BurstGapMs         int `toml:"burst_gap_ms" json:"burst_gap_ms" yaml:"burst_gap_ms"`
	MinBurstKeystrokes int `toml:"min_burst_keystrokes" json:"min_burst_keystrokes" yaml:"min_burst_keystrokes"`
	PeakWPMCap         int `toml:"peak_wpm_cap" json:"peak_wpm_cap" yaml:"peak_wpm_cap"`
	ShortcutGapMinMs   int `toml:"shortcut_gap_min_ms" json:"shortcut_gap_min_ms" yaml:"shortcut_gap_min_ms"`
	ShortcutGapMaxMs   int `toml:"shortcut_gap_max_ms" json:"shortcut_gap_max_ms" yaml:"shortcut_gap_max_ms"`
	NotifyIntervalMs   int `toml:"notify_interval_ms" json:"notify_interval_ms" yaml:"notify_interval_ms"`
	IdleThresholdSec   int `toml:"idle_threshold_sec" json:"idle_threshold_sec" yaml:"idle_threshold_sec"`
}

// ClipboardConfig holds clipboard monitor configuration.
type ClipboardConfig struct {
	Enabled        bool `toml:"enabled" json:"enabled" yaml:"enabled"`
	PollIntervalMs int  `toml:"poll_interval_ms" json:"poll_interval_ms" yaml:"poll_interval_ms"`
}

// VerificationConfig holds the verification engine constants. Defaults
// are preserved exactly for behavioral compatibility.
type VerificationConfig struct {
	SmallMaxChars      int `toml:"small_max_chars" json:"small_max_chars" yaml:"small_max_chars"`
	MediumMaxChars     int `toml:"medium_max_chars" json:"medium_max_chars" yaml:"medium_max_chars"`
	LargeMaxChars      int `toml:"large_max_chars" json:"large_max_chars" yaml:"large_max_chars"`
	SmallPenalty       int `toml:"small_penalty" json:"small_penalty" yaml:"small_penalty"`
	MediumPenalty      int `toml:"medium_penalty" json:"medium_penalty" yaml:"medium_penalty"`
	LargePenalty       int `toml:"large_penalty" json:"large_penalty" yaml:"large_penalty"`
	VeryLargePenalty   int `toml:"very_large_penalty" json:"very_large_penalty" yaml:"very_large_penalty"`
	VerifyThreshold    int `toml:"verify_threshold" json:"verify_threshold" yaml:"verify_threshold"`
	MaxLargePastes     int `toml:"max_large_pastes" json:"max_large_pastes" yaml:"max_large_pastes"`
	MaxVeryLargePastes int `toml:"max_very_large_pastes" json:"max_very_large_pastes" yaml:"max_very_large_pastes"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	// Path is the path to the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stderr", "file", or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file location when Output includes "file".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`

	// MaxSizeMB rotates the log file when it exceeds this size.
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// SocketPath is the unix socket the daemon listens on.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`
}

// Default returns the default configuration.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		Version: Version,
		Recording: RecordingConfig{
			SessionRoot:          filepath.Join(dataDir, "sessions"),
			HeartbeatIntervalSec: 5,
			StopTimeoutSec:       10,
			FrameIntervalSec:     1,
		},
		Tracking: TrackingConfig{
			BurstGapMs:         2000,
			MinBurstKeystrokes: 5,
			PeakWPMCap:         200,
			ShortcutGapMinMs:   20,
			ShortcutGapMaxMs:   150,
			NotifyIntervalMs:   2000,
			IdleThresholdSec:   60,
		},
		Clipboard: ClipboardConfig{
			Enabled:        true,
			PollIntervalMs: 100,
		},
		Verification: VerificationConfig{
			SmallMaxChars:      50,
			MediumMaxChars:     300,
			LargeMaxChars:      1000,
			SmallPenalty:       0,
			MediumPenalty:      1,
			LargePenalty:       5,
			VeryLargePenalty:   15,
			VerifyThreshold:    70,
			MaxLargePastes:     3,
			MaxVeryLargePastes: 1,
		},
		Storage: StorageConfig{
			Path: filepath.Join(dataDir, "lapserec.db"),
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Output:    "stderr",
			FilePath:  filepath.Join(dataDir, "lapserec.log"),
			MaxSizeMB: 50,
		},
		IPC: IPCConfig{
			SocketPath: defaultSocketPath(),
		},
	}
}

// defaultDataDir returns the platform-specific data directory.
func defaultDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "lapserec")
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		return filepath.Join(appData, "lapserec")
	default:
		dataHome := os.Getenv("XDG_DATA_HOME")
		if dataHome == "" {
			home, _ := os.UserHomeDir()
			dataHome = filepath.Join(home, ".local", "share")
		}
		return filepath.Join(dataHome, "lapserec")
	}
}

func defaultSocketPath() string {
	if runtime.GOOS == "windows" {
		return `\\.\pipe\lapserec`
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = os.TempDir()
	}
	return filepath.Join(runtimeDir, "lapserec.sock")
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Recording.HeartbeatIntervalSec < 1 || c.Recording.HeartbeatIntervalSec > 60 {
		return fmt.Errorf("recording.heartbeat_interval_sec must be in [1,60], got %d", c.Recording.HeartbeatIntervalSec)
	}
	if c.Recording.StopTimeoutSec < 1 {
		return fmt.Errorf("recording.stop_timeout_sec must be positive, got %d", c.Recording.StopTimeoutSec)
	}
	if c.Recording.SessionRoot == "" {
		return fmt.Errorf("recording.session_root must be set")
	}
	if c.Tracking.BurstGapMs <= 0 {
		return fmt.Errorf("tracking.burst_gap_ms must be positive, got %d", c.Tracking.BurstGapMs)
	}
	if c.Tracking.MinBurstKeystrokes < 1 {
		return fmt.Errorf("tracking.min_burst_keystrokes must be at least 1, got %d", c.Tracking.MinBurstKeystrokes)
	}
	if c.Tracking.ShortcutGapMinMs >= c.Tracking.ShortcutGapMaxMs {
		return fmt.Errorf("tracking.shortcut_gap_min_ms must be below shortcut_gap_max_ms")
	}
	if !(c.Verification.SmallMaxChars < c.Verification.MediumMaxChars &&
		c.Verification.MediumMaxChars < c.Verification.LargeMaxChars) {
		return fmt.Errorf("verification tier boundaries must be strictly increasing")
	}
	if c.Verification.VerifyThreshold < 0 || c.Verification.VerifyThreshold > 100 {
		return fmt.Errorf("verification.verify_threshold must be in [0,100], got %d", c.Verification.VerifyThreshold)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// TrackerParams converts the tracking section for the tracker package.
func (c *Config) TrackerParams() tracker.Params {
	return tracker.Params{
		BurstGap:           time.Duration(c.Tracking.BurstGapMs) * time.Millisecond,
		MinBurstKeystrokes: c.Tracking.MinBurstKeystrokes,
		PeakWPMCap:         c.Tracking.PeakWPMCap,
		ShortcutGapMin:     time.Duration(c.Tracking.ShortcutGapMinMs) * time.Millisecond,
		ShortcutGapMax:     time.Duration(c.Tracking.ShortcutGapMaxMs) * time.Millisecond,
		NotifyInterval:     time.Duration(c.Tracking.NotifyIntervalMs) * time.Millisecond,
		IdleThreshold:      time.Duration(c.Tracking.IdleThresholdSec) * time.Second,
	}
}

// VerifyParams converts the verification section for the verify package.
func (c *Config) VerifyParams() verify.Params {
	return verify.Params{
		SmallMaxChars:      c.Verification.SmallMaxChars,
		MediumMaxChars:     c.Verification.MediumMaxChars,
		LargeMaxChars:      c.Verification.LargeMaxChars,
		SmallPenalty:       c.Verification.SmallPenalty,
		MediumPenalty:      c.Verification.MediumPenalty,
		LargePenalty:       c.Verification.LargePenalty,
		VeryLargePenalty:   c.Verification.VeryLargePenalty,
		VerifyThreshold:    c.Verification.VerifyThreshold,
		MaxLargePastes:     c.Verification.MaxLargePastes,
		MaxVeryLargePastes: c.Verification.MaxVeryLargePastes,
	}
}
