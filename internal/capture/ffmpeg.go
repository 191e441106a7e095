package capture

import (
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

// FFmpeg captures the screen by running an ffmpeg process per session.
// The process writes a numbered PNG sequence into the session folder;
// no encoding happens on our side.
type FFmpeg struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	cmd      *exec.Cmd
	sourceID string
	folder   string
	paused   bool
}

// NewFFmpeg builds the ffmpeg backend. It does not check for the
// binary until Start.
func NewFFmpeg(cfg Config, logger *slog.Logger) *FFmpeg {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpeg{cfg: cfg, logger: logger}
}

// Start launches ffmpeg capturing sourceID into folder.
func (f *FFmpeg) Start(sourceID, folder string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cmd != nil {
		return fmt.Errorf("capture already running")
	}

	bin := f.cfg.FFmpegPath
	if bin == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("ffmpeg not found: %w", err)
		}
		bin = path
	}

	args := grabArgs(runtime.GOOS, f.cfg, sourceID, folder)
	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	f.cmd = cmd
	f.sourceID = sourceID
	f.folder = folder
	f.paused = false
	f.logger.Info("ffmpeg started", "pid", cmd.Process.Pid, "source_id", sourceID)

	go func() {
		err := cmd.Wait()
		f.mu.Lock()
		exited := f.cmd == cmd
		if exited {
			f.cmd = nil
		}
		f.mu.Unlock()
		if exited && err != nil {
			f.logger.Warn("ffmpeg exited", "error", err)
		}
	}()
	return nil
}

// Pause suspends the ffmpeg process without terminating it. Frames
// stop arriving until Resume.
func (f *FFmpeg) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cmd == nil || f.cmd.Process == nil {
		return fmt.Errorf("capture not running")
	}
	if f.paused {
		return nil
	}
	if err := suspendProcess(f.cmd.Process); err != nil {
		return fmt.Errorf("suspend ffmpeg: %w", err)
	}
	f.paused = true
	return nil
}

// Resume continues a paused capture. Changing the source restarts the
// process against the new source.
func (f *FFmpeg) Resume(sourceID string) error {
	f.mu.Lock()

	if f.cmd == nil || f.cmd.Process == nil {
		f.mu.Unlock()
		return fmt.Errorf("capture not running")
	}
	if sourceID != "" && sourceID != f.sourceID {
		folder := f.folder
		f.mu.Unlock()
		if err := f.Stop(); err != nil {
			f.logger.Warn("stop for source switch failed", "error", err)
		}
		return f.Start(sourceID, folder)
	}
	defer f.mu.Unlock()

	if !f.paused {
		return nil
	}
	if err := resumeProcess(f.cmd.Process); err != nil {
		return fmt.Errorf("resume ffmpeg: %w", err)
	}
	f.paused = false
	return nil
}

// Stop asks ffmpeg to finish cleanly and kills it if it does not exit
// within a grace period.
func (f *FFmpeg) Stop() error {
	f.mu.Lock()
	cmd := f.cmd
	paused := f.paused
	f.cmd = nil
	f.paused = false
	f.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}
	// A suspended process cannot handle the interrupt.
	if paused {
		if err := resumeProcess(cmd.Process); err != nil {
			f.logger.Warn("resume before stop failed", "error", err)
		}
	}
	if err := interruptProcess(cmd.Process); err != nil {
		f.logger.Warn("interrupt ffmpeg failed, killing", "error", err)
		return cmd.Process.Kill()
	}

	done := make(chan struct{})
	go func() {
		// Wait is owned by the goroutine started in Start; poll the
		// process state instead.
		for {
			if cmd.ProcessState != nil {
				close(done)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()
	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		f.logger.Warn("ffmpeg did not exit, killing", "pid", cmd.Process.Pid)
		return cmd.Process.Kill()
	}
}

// grabArgs builds the platform capture arguments. Split out so tests
// can cover each platform without an ffmpeg binary.
func grabArgs(goos string, cfg Config, sourceID, folder string) []string {
	fps := strconv.FormatFloat(cfg.fps(), 'f', -1, 64)
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	switch goos {
	case "darwin":
		args = append(args, "-f", "avfoundation", "-framerate", fps, "-i", sourceID)
	case "windows":
		args = append(args, "-f", "gdigrab", "-framerate", fps, "-i", sourceID)
	default:
		args = append(args, "-f", "x11grab", "-framerate", fps, "-i", sourceID)
	}
	return append(args, "-vsync", "vfr", filepath.Join(folder, framePattern))
}
