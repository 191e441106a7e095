package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Simulated writes small synthetic frames on a ticker. It stands in
// for ffmpeg in tests and in the daemon's --simulate mode.
type Simulated struct {
	interval time.Duration

	mu      sync.Mutex
	folder  string
	seq     int
	paused  bool
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewSimulated creates a simulated engine emitting one frame per
// interval.
func NewSimulated(interval time.Duration) *Simulated {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Simulated{interval: interval}
}

func (s *Simulated) Start(sourceID, folder string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture already running")
	}
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return err
	}
	s.folder = folder
	s.seq = 0
	s.paused = false
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(1)
	go s.run(s.stopCh)
	return nil
}

func (s *Simulated) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("capture not running")
	}
	s.paused = true
	return nil
}

func (s *Simulated) Resume(sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return fmt.Errorf("capture not running")
	}
	s.paused = false
	return nil
}

func (s *Simulated) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Simulated) run(stopCh chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.emit()
		case <-stopCh:
			return
		}
	}
}

func (s *Simulated) emit() {
	s.mu.Lock()
	if s.paused || !s.running {
		s.mu.Unlock()
		return
	}
	s.seq++
	path := filepath.Join(s.folder, fmt.Sprintf(framePattern, s.seq))
	s.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(0, 0, color.White)
	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()
	png.Encode(f, img)
}
