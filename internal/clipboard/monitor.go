// Package clipboard watches for clipboard changes to detect paste
// operations during a recording session.
//
// Only the size and a hash of the clipboard content are retained; the
// content itself is never stored. Paste sizes feed the verification
// engine's paste-tier scoring.
package clipboard

import (
	"crypto/sha256"
	"sync"
	"time"
	"unicode/utf8"
)

// Accessor is the platform-specific interface for clipboard access.
type Accessor interface {
	// GetText returns the current text clipboard content.
	GetText() (string, error)
}

// PasteEvent records one observed clipboard change.
type PasteEvent struct {
	Timestamp time.Time `json:"timestamp"`
	// Size is the approximate character count of the clipboard content.
	Size int `json:"approximate_size"`
}

// Monitor polls the clipboard and records content changes as paste
// events. A failing accessor degrades to no paste data, never to an
// error surfaced at the session boundary.
type Monitor struct {
	mu sync.RWMutex

	accessor     Accessor
	pollInterval time.Duration

	lastHash [32]byte
	primed   bool
	events   []PasteEvent
	onPaste  func(PasteEvent)

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a monitor over the given accessor.
func NewMonitor(accessor Accessor, pollInterval time.Duration) *Monitor {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Monitor{
		accessor:     accessor,
		pollInterval: pollInterval,
	}
}

// New creates a monitor with the platform accessor.
func New(pollInterval time.Duration) *Monitor {
	return NewMonitor(newPlatformAccessor(), pollInterval)
}

// OnPaste registers a callback invoked for every recorded event.
func (m *Monitor) OnPaste(fn func(PasteEvent)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onPaste = fn
}

// Start begins polling. Idempotent.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running || m.accessor == nil {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	// Prime with the current content so pre-session clipboard state
	// does not count as a paste.
	m.check(true)

	m.wg.Add(1)
	go m.loop()
}

// Stop stops polling. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

// Events returns the recorded paste events.
func (m *Monitor) Events() []PasteEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PasteEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Monitor) loop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.check(false)
		}
	}
}

// check records a paste event if the clipboard content changed.
func (m *Monitor) check(prime bool) {
	text, err := m.accessor.GetText()
	if err != nil {
		return
	}
	hash := sha256.Sum256([]byte(text))

	m.mu.Lock()

	if prime {
		m.lastHash = hash
		m.primed = true
		m.mu.Unlock()
		return
	}
	if m.primed && hash == m.lastHash {
		m.mu.Unlock()
		return
	}
	m.lastHash = hash
	m.primed = true

	ev := PasteEvent{Timestamp: time.Now(), Size: utf8.RuneCountInString(text)}
	m.events = append(m.events, ev)
	// Bound the history; sessions run for hours.
	if len(m.events) > 2000 {
		m.events = m.events[len(m.events)-1000:]
	}
	fn := m.onPaste
	m.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}
