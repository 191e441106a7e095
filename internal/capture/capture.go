// Package capture runs the screen capture backends. The real backend
// shells out to ffmpeg and writes a numbered frame sequence into the
// session folder; the simulated backend generates synthetic frames for
// development and tests.
package capture

import (
	"time"
)

// Config holds capture tunables shared by the backends.
type Config struct {
	// FFmpegPath is the ffmpeg binary. Empty means look it up on PATH.
	FFmpegPath string

	// FrameInterval is the time between captured frames.
	FrameInterval time.Duration
}

// DefaultConfig captures one frame per second.
func DefaultConfig() Config {
	return Config{FrameInterval: time.Second}
}

// framePattern is the ffmpeg image2 output pattern used inside each
// session folder.
const framePattern = "frame_%06d.png"

func (c Config) fps() float64 {
	iv := c.FrameInterval
	if iv <= 0 {
		iv = time.Second
	}
	return 1.0 / iv.Seconds()
}
