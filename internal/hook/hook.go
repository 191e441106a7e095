// Package hook provides OS-level global input hooks.
//
// IMPORTANT: the hook reports that input events occurred - it never
// captures which keys were pressed. Events carry only a kind, a
// timestamp and (for mouse events) a position.
//
// Platform support:
//   - Linux: reads /dev/input/event* (requires input group or root)
//   - other: unavailable; the session degrades to no keyboard stats
package hook

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind classifies an input event.
type Kind int

const (
	KeyDown Kind = iota
	MouseDown
	Wheel
)

func (k Kind) String() string {
	switch k {
	case KeyDown:
		return "keydown"
	case MouseDown:
		return "mousedown"
	case Wheel:
		return "wheel"
	default:
		return "unknown"
	}
}

// Event is one observed input event.
type Event struct {
	Kind Kind
	When time.Time
	X, Y int
}

// Handler receives hook events. It must not block.
type Handler func(Event)

// Hook is the OS-level global input hook. Start and Stop are idempotent,
// and implementations must never panic across this boundary: a failing
// hook degrades the session, it does not abort it.
type Hook interface {
	// Start begins delivering events to the handler.
	Start(ctx context.Context, fn Handler) error

	// Stop stops event delivery.
	Stop() error

	// Available reports whether input hooking works on this platform
	// with current permissions, with a human-readable reason.
	Available() (bool, string)
}

// ErrNotAvailable is returned when input hooking isn't possible.
var ErrNotAvailable = errors.New("input hook not available on this platform")

// ErrAlreadyRunning is returned when Start is called while running.
var ErrAlreadyRunning = errors.New("hook already running")

// New creates a Hook for the current platform.
func New() Hook {
	return newPlatformHook()
}

// Simulated is a hook for tests that delivers injected events.
type Simulated struct {
	mu      sync.Mutex
	running bool
	fn      Handler

	// FailStart makes Start return an error, for degradation tests.
	FailStart bool
}

// NewSimulated creates a simulated hook.
func NewSimulated() *Simulated {
	return &Simulated{}
}

// Start begins the simulated hook.
func (s *Simulated) Start(ctx context.Context, fn Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailStart {
		return ErrNotAvailable
	}
	if s.running {
		return nil
	}
	s.running = true
	s.fn = fn
	return nil
}

// Stop stops the simulated hook.
func (s *Simulated) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.fn = nil
	return nil
}

// Available always reports true for the simulated hook.
func (s *Simulated) Available() (bool, string) {
	return true, "simulated hook (for testing)"
}

// Inject delivers an event as if it came from the OS.
func (s *Simulated) Inject(ev Event) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()

	if fn != nil {
		fn(ev)
	}
}
