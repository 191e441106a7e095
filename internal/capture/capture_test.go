package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lapserec/internal/frames"
)

func TestGrabArgsPerPlatform(t *testing.T) {
	cfg := Config{FrameInterval: time.Second}
	cases := []struct {
		goos string
		want string
	}{
		{"linux", "x11grab"},
		{"darwin", "avfoundation"},
		{"windows", "gdigrab"},
	}
	for _, tc := range cases {
		args := grabArgs(tc.goos, cfg, "src", "/tmp/out")
		joined := strings.Join(args, " ")
		if !strings.Contains(joined, tc.want) {
			t.Errorf("%s: args %q missing %q", tc.goos, joined, tc.want)
		}
		if !strings.Contains(joined, "-framerate 1") {
			t.Errorf("%s: args %q missing framerate", tc.goos, joined)
		}
		if !strings.HasSuffix(args[len(args)-1], framePattern) {
			t.Errorf("%s: output pattern missing, got %q", tc.goos, args[len(args)-1])
		}
	}
}

func TestGrabArgsSubSecondInterval(t *testing.T) {
	args := grabArgs("linux", Config{FrameInterval: 500 * time.Millisecond}, ":0.0", "/tmp/out")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-framerate 2") {
		t.Errorf("expected 2 fps for 500ms interval, got %q", joined)
	}
}

func TestSimulatedWritesDecodableFrames(t *testing.T) {
	dir := t.TempDir()
	sim := NewSimulated(10 * time.Millisecond)
	if err := sim.Start("sim:0", dir); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(dir)
		if len(entries) >= 3 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := sim.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	res, err := frames.NewValidator().Validate(dir)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.ValidFrameCount < 3 {
		t.Fatalf("expected at least 3 valid frames, got %d", res.ValidFrameCount)
	}
}

func TestSimulatedPauseStopsFrames(t *testing.T) {
	dir := t.TempDir()
	sim := NewSimulated(10 * time.Millisecond)
	if err := sim.Start("sim:0", dir); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := sim.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	before, _ := os.ReadDir(dir)
	time.Sleep(100 * time.Millisecond)
	after, _ := os.ReadDir(dir)
	if len(after) != len(before) {
		t.Fatalf("frames written while paused: %d -> %d", len(before), len(after))
	}

	if err := sim.Resume(""); err != nil {
		t.Fatalf("resume: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		entries, _ := os.ReadDir(dir)
		if len(entries) > len(after) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) <= len(after) {
		t.Fatal("no frames written after resume")
	}
	sim.Stop()
}

func TestSimulatedStopIdempotent(t *testing.T) {
	sim := NewSimulated(10 * time.Millisecond)
	if err := sim.Start("sim:0", t.TempDir()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sim.Stop(); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if err := sim.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := sim.Start("sim:0", t.TempDir()); err == nil {
		sim.Stop()
	} else {
		t.Fatalf("restart after stop: %v", err)
	}
}

func TestFramePatternMatchesValidator(t *testing.T) {
	name := filepath.Base(strings.ReplaceAll(framePattern, "%06d", "000001"))
	if !frames.IsFrameFile(name) {
		t.Fatalf("validator would not count %q", name)
	}
}
