// Package session drives the recording lifecycle: a single state machine
// that owns capture, input tracking, clipboard monitoring, frame counting
// and crash recovery for one session at a time.
package session

import (
	"fmt"
	"time"

	"lapserec/internal/clipboard"
	"lapserec/internal/frames"
	"lapserec/internal/hook"
	"lapserec/internal/store"
	"lapserec/internal/tracker"
	"lapserec/internal/verify"
)

// State is the lifecycle state of the recording manager.
type State int

// Stopped is transient: observers see it when teardown finishes, and
// the machine folds back to Idle as soon as the stop result is
// assembled.
const (
	StateIdle State = iota
	StateRecording
	StatePaused
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StatePaused:
		return "paused"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateConflictError reports an operation attempted from a state that does
// not permit it. The manager's state is unchanged when this is returned.
type StateConflictError struct {
	Op    string
	State State
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.State)
}

// Status is a point-in-time snapshot of the manager, safe to serialize.
type Status struct {
	State           State     `json:"state"`
	SessionID       string    `json:"sessionId,omitempty"`
	SessionFolder   string    `json:"sessionFolder,omitempty"`
	SourceID        string    `json:"sourceId,omitempty"`
	StartTime       time.Time `json:"startTime,omitzero"`
	FrameCount      int       `json:"frameCount"`
	QueueSize       int       `json:"queueSize"`
	DroppedFrames   int       `json:"droppedFrames"`
	AdaptiveQuality int       `json:"adaptiveQuality"`
}

// StartResult is returned by Start.
type StartResult struct {
	Success       bool   `json:"success"`
	SessionID     string `json:"sessionId,omitempty"`
	SessionFolder string `json:"sessionFolder,omitempty"`
	Error         string `json:"error,omitempty"`
}

// OpResult is returned by Pause and Resume.
type OpResult struct {
	Success bool   `json:"success"`
	Paused  bool   `json:"paused,omitempty"`
	Resumed bool   `json:"resumed,omitempty"`
	Error   string `json:"error,omitempty"`
}

// StopResult carries everything known about a finished session. Stop
// returns the best partial result it can assemble even when teardown
// steps fail; Error then describes what went wrong.
type StopResult struct {
	Success       bool           `json:"success"`
	SessionID     string         `json:"sessionId,omitempty"`
	SessionFolder string         `json:"sessionFolder,omitempty"`
	TotalFrames   int            `json:"totalFrames"`
	Duration      time.Duration  `json:"duration"`
	Verification  *verify.Output `json:"verification,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// EmergencyResult is returned by EmergencyStop.
type EmergencyResult struct {
	Success       bool   `json:"success"`
	SessionFolder string `json:"sessionFolder,omitempty"`
	TotalFrames   int    `json:"totalFrames"`
	Error         string `json:"error,omitempty"`
}

// RecoverResult is returned by Recover.
type RecoverResult struct {
	Success       bool   `json:"success"`
	SessionFolder string `json:"sessionFolder,omitempty"`
	TotalFrames   int    `json:"totalFrames"`
	Error         string `json:"error,omitempty"`
}

// RecoverableSession is the crash-recovery snapshot the heartbeat persists.
// A snapshot with IsActive false, or one that fails to decode, is treated
// exactly like no snapshot at all.
type RecoverableSession struct {
	SessionFolder string    `json:"sessionFolder"`
	SourceID      string    `json:"sourceId"`
	StartTime     time.Time `json:"startTime"`
	FrameCount    int       `json:"frameCount"`
	IsActive      bool      `json:"isActive"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
}

// CaptureEngine is the screen capture backend. The manager only drives
// its lifecycle; encoding and frame pacing belong to the engine.
type CaptureEngine interface {
	Start(sourceID, sessionFolder string) error
	Pause() error
	Resume(sourceID string) error
	Stop() error
}

// Settings is the persistent key-value surface the manager needs for the
// recovery snapshot. *store.Store satisfies it.
type Settings interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// Archive persists finished sessions. *store.Store satisfies it.
type Archive interface {
	InsertSession(rec *store.SessionRecord) error
}

// PasteSource is the clipboard monitor surface the manager consumes.
// *clipboard.Monitor satisfies it.
type PasteSource interface {
	Start()
	Stop()
	Events() []clipboard.PasteEvent
}

// Observer receives lifecycle and activity notifications. Callbacks run
// on manager goroutines and must not call back into the manager.
type Observer interface {
	OnStateChanged(st Status)
	OnActivityUpdate(stats tracker.Stats)
}

// Deps are the manager's collaborators. Capture, Hook, Clipboard and
// Settings are required; Validator, Archive and Observer may be nil.
type Deps struct {
	Capture   CaptureEngine
	Hook      hook.Hook
	Clipboard PasteSource
	Settings  Settings
	Validator frames.Validator
	Archive   Archive
	Observer  Observer
}

// Config holds the manager's tunables.
type Config struct {
	SessionRoot       string
	HeartbeatInterval time.Duration
	StopTimeout       time.Duration
	Tracker           tracker.Params
	Verify            verify.Params
}

// DefaultConfig returns the manager defaults with SessionRoot unset.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 5 * time.Second,
		StopTimeout:       10 * time.Second,
		Tracker:           tracker.DefaultParams(),
		Verify:            verify.DefaultParams(),
	}
}
