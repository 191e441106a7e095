package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lapserec/internal/frames"
	"lapserec/internal/hook"
	"lapserec/internal/store"
	"lapserec/internal/tracker"
	"lapserec/internal/verify"
)

const recoveryKey = "recovery.session"

// Manager owns at most one recording session and serializes every
// lifecycle operation behind a single mutex.
type Manager struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu    sync.Mutex
	state State

	sessionID   string
	folder      string
	sourceID    string
	startTime   time.Time
	pausedAt    time.Time
	pausedTotal time.Duration

	track  *tracker.Tracker
	frames frameCounter
	beat   *heartbeat

	queueSize       int
	droppedFrames   int
	adaptiveQuality int

	hookCancel context.CancelFunc

	clock          func() time.Time
	watcherFactory WatcherFactory
}

// frameCounter is the live frame count surface. *frames.Watcher
// satisfies it; a stub stands in when the watcher cannot start.
type frameCounter interface {
	Count() int
	Close() error
}

type zeroFrames struct{}

func (zeroFrames) Count() int   { return 0 }
func (zeroFrames) Close() error { return nil }

// WatcherFactory builds the live frame counter for a session folder.
// Tests override it; production uses frames.NewWatcher.
type WatcherFactory func(folder string) (frameCounter, error)

// NewManager wires a manager from its collaborators. It does not touch
// the filesystem until Start.
func NewManager(cfg Config, deps Deps, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:             cfg,
		deps:            deps,
		logger:          logger,
		state:           StateIdle,
		adaptiveQuality: 100,
		clock:           time.Now,
	}
}

// Status returns a snapshot of the manager without blocking operations.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	st := Status{
		State:           m.state,
		SessionID:       m.sessionID,
		SessionFolder:   m.folder,
		SourceID:        m.sourceID,
		StartTime:       m.startTime,
		QueueSize:       m.queueSize,
		DroppedFrames:   m.droppedFrames,
		AdaptiveQuality: m.adaptiveQuality,
	}
	if m.frames != nil {
		st.FrameCount = m.frames.Count()
	}
	return st
}

// UpdateCaptureStats lets the capture engine report backpressure. The
// values only surface through Status.
func (m *Manager) UpdateCaptureStats(queueSize, droppedFrames, adaptiveQuality int) {
	m.mu.Lock()
	m.queueSize = queueSize
	m.droppedFrames = droppedFrames
	m.adaptiveQuality = adaptiveQuality
	m.mu.Unlock()
}

// Start begins a new session capturing sourceID. It refuses to start
// unless the manager is idle.
func (m *Manager) Start(sourceID string) StartResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return StartResult{Error: (&StateConflictError{Op: "start", State: m.state}).Error()}
	}

	now := m.clock()
	id := uuid.NewString()
	folder := filepath.Join(m.cfg.SessionRoot, now.Format("2006-01-02_15-04-05")+"_"+id[:8])
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return StartResult{Error: fmt.Sprintf("create session folder: %v", err)}
	}

	if err := m.deps.Capture.Start(sourceID, folder); err != nil {
		return StartResult{Error: fmt.Sprintf("start capture: %v", err)}
	}

	m.track = tracker.New(now, m.cfg.Tracker, m)

	if m.deps.Hook != nil {
		var hookCtx context.Context
		hookCtx, m.hookCancel = context.WithCancel(context.Background())
		if err := m.deps.Hook.Start(hookCtx, m.onInput); err != nil {
			// Recording proceeds without activity data rather than failing.
			m.logger.Warn("input hook unavailable, activity tracking disabled", "error", err)
			m.track.SetEnabled(false)
		}
	} else {
		m.track.SetEnabled(false)
	}

	if m.deps.Clipboard != nil {
		m.deps.Clipboard.Start()
	}

	m.frames = zeroFrames{}
	if w, err := m.newWatcher(folder); err != nil {
		m.logger.Warn("frame watcher failed, live count unavailable", "error", err)
	} else {
		m.frames = w
	}

	m.sessionID = id
	m.folder = folder
	m.sourceID = sourceID
	m.startTime = now
	m.pausedTotal = 0
	m.state = StateRecording

	m.beat = newHeartbeat(m.cfg.HeartbeatInterval, m.deps.Settings, m.snapshot, m.logger)
	m.beat.start()
	// First snapshot lands immediately so a crash right after start is
	// still recoverable.
	m.beat.write(m.snapshotLocked())

	m.notifyStateLocked()
	m.logger.Info("session started", "session_id", id, "source_id", sourceID, "folder", folder)
	return StartResult{Success: true, SessionID: id, SessionFolder: folder}
}

// Pause suspends capture while keeping the session open. Input tracking
// keeps running; the gap shows up as idle time.
func (m *Manager) Pause() OpResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateRecording {
		return OpResult{Error: (&StateConflictError{Op: "pause", State: m.state}).Error()}
	}
	if err := m.deps.Capture.Pause(); err != nil {
		m.logger.Warn("capture pause failed", "error", err)
	}
	m.pausedAt = m.clock()
	m.state = StatePaused
	m.notifyStateLocked()
	m.logger.Info("session paused", "session_id", m.sessionID)
	return OpResult{Success: true, Paused: true}
}

// Resume continues a paused session. A non-empty sourceID switches the
// capture source.
func (m *Manager) Resume(sourceID string) OpResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return OpResult{Error: (&StateConflictError{Op: "resume", State: m.state}).Error()}
	}
	if sourceID == "" {
		sourceID = m.sourceID
	}
	if err := m.deps.Capture.Resume(sourceID); err != nil {
		m.logger.Warn("capture resume failed", "error", err)
	}
	m.sourceID = sourceID
	m.pausedTotal += m.clock().Sub(m.pausedAt)
	m.pausedAt = time.Time{}
	m.state = StateRecording
	m.notifyStateLocked()
	m.logger.Info("session resumed", "session_id", m.sessionID, "source_id", sourceID)
	return OpResult{Success: true, Resumed: true}
}

// Stop ends the session, verifies it and archives the outcome. Capture
// teardown races a bounded timeout; on timeout the session is finalized
// anyway with whatever data is on disk. Stop always returns a result.
func (m *Manager) Stop() StopResult {
	m.mu.Lock()
	if m.state != StateRecording && m.state != StatePaused {
		st := m.state
		m.mu.Unlock()
		return StopResult{Error: (&StateConflictError{Op: "stop", State: st}).Error()}
	}
	now := m.clock()
	if m.state == StatePaused {
		m.pausedTotal += now.Sub(m.pausedAt)
		m.pausedAt = time.Time{}
	}
	m.state = StateStopping
	m.notifyStateLocked()

	res := StopResult{SessionID: m.sessionID, SessionFolder: m.folder}
	sourceID := m.sourceID
	startTime := m.startTime
	pausedTotal := m.pausedTotal
	track := m.track
	fc := m.frames
	beat := m.beat
	hookCancel := m.hookCancel
	m.mu.Unlock()

	var errs []string

	done := make(chan error, 1)
	go func() {
		done <- safeCall("capture stop", func() error { return m.deps.Capture.Stop() })
	}()
	select {
	case err := <-done:
		if err != nil {
			errs = append(errs, err.Error())
		}
	case <-time.After(m.cfg.StopTimeout):
		errs = append(errs, fmt.Sprintf("capture stop timed out after %s", m.cfg.StopTimeout))
	}

	beat.stop()
	if hookCancel != nil {
		hookCancel()
	}
	if m.deps.Hook != nil {
		if err := safeCall("hook stop", m.deps.Hook.Stop); err != nil {
			errs = append(errs, err.Error())
		}
	}
	var pastes []verify.PasteEvent
	if m.deps.Clipboard != nil {
		m.deps.Clipboard.Stop()
		for _, ev := range m.deps.Clipboard.Events() {
			pastes = append(pastes, verify.PasteEvent{Timestamp: ev.Timestamp, Size: ev.Size})
		}
	}
	track.Close(now)
	frameCount := fc.Count()
	if err := fc.Close(); err != nil {
		m.logger.Warn("frame watcher close failed", "error", err)
	}

	// The authoritative frame count comes from disk, not the watcher.
	if m.deps.Validator != nil {
		if vr, err := m.deps.Validator.Validate(res.SessionFolder); err != nil {
			errs = append(errs, fmt.Sprintf("validate frames: %v", err))
		} else {
			frameCount = vr.ValidFrameCount
		}
	}

	stats := track.Stats()
	idle := track.IdlePeriods()
	total := now.Sub(startTime)
	out := verify.Calculate(verify.Input{
		TotalDuration:  total,
		ActiveDuration: activeDuration(total, pausedTotal, idle),
		FrameCount:     frameCount,
		PasteEvents:    pastes,
		IdlePeriods:    idle,
	}, m.cfg.Verify)

	metrics := buildMetrics(res.SessionID, startTime, now, stats, pastes, idle, track.ActivityScore(now), &out)
	if err := metrics.WriteFile(filepath.Join(res.SessionFolder, metricsFileName)); err != nil {
		errs = append(errs, fmt.Sprintf("write metrics: %v", err))
	}

	if m.deps.Archive != nil {
		rec := &store.SessionRecord{
			ID:            res.SessionID,
			SessionFolder: res.SessionFolder,
			SourceID:      sourceID,
			StartedAt:     startTime,
			EndedAt:       now,
			Duration:      total,
			ActiveTime:    activeDuration(total, pausedTotal, idle),
			FrameCount:    frameCount,
			Keystrokes:    stats.EstimatedKeystrokes,
			PasteCount:    len(pastes),
			Score:         out.Score,
			Verified:      out.IsVerified,
			Factors:       factorMap(out.Factors),
			Flags:         out.Flags,
		}
		if err := m.deps.Archive.InsertSession(rec); err != nil {
			errs = append(errs, fmt.Sprintf("archive session: %v", err))
		}
	}

	if err := m.deps.Settings.Delete(recoveryKey); err != nil {
		errs = append(errs, fmt.Sprintf("clear recovery snapshot: %v", err))
	}

	m.mu.Lock()
	m.state = StateStopped
	stopped := m.statusLocked()
	m.resetLocked()
	idleSt := m.statusLocked()
	m.mu.Unlock()
	if m.deps.Observer != nil {
		// One goroutine keeps the stopped->idle ordering intact.
		go func() {
			m.deps.Observer.OnStateChanged(stopped)
			m.deps.Observer.OnStateChanged(idleSt)
		}()
	}

	res.Success = true
	res.TotalFrames = frameCount
	res.Duration = total
	res.Verification = &out
	res.Error = strings.Join(errs, "; ")
	if len(errs) > 0 {
		m.logger.Warn("session stopped with errors", "session_id", res.SessionID, "errors", res.Error)
	} else {
		m.logger.Info("session stopped", "session_id", res.SessionID,
			"frames", frameCount, "score", out.Score, "verified", out.IsVerified)
	}
	return res
}

// EmergencyStop tears everything down from any state. Each step is
// isolated so a panicking or failing collaborator cannot block the
// return to idle. No verification or archiving happens.
func (m *Manager) EmergencyStop() EmergencyResult {
	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		return EmergencyResult{Success: true}
	}
	now := m.clock()
	res := EmergencyResult{SessionFolder: m.folder}
	if m.frames != nil {
		res.TotalFrames = m.frames.Count()
	}
	track := m.track
	fc := m.frames
	beat := m.beat
	hookCancel := m.hookCancel
	m.state = StateStopping
	m.notifyStateLocked()
	m.mu.Unlock()

	var errs []string
	record := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
			m.logger.Warn("emergency stop step failed", "error", err)
		}
	}

	record(safeCall("capture stop", func() error { return m.deps.Capture.Stop() }))
	if hookCancel != nil {
		hookCancel()
	}
	if m.deps.Hook != nil {
		record(safeCall("hook stop", m.deps.Hook.Stop))
	}
	if m.deps.Clipboard != nil {
		record(safeCall("clipboard stop", func() error { m.deps.Clipboard.Stop(); return nil }))
	}
	if beat != nil {
		record(safeCall("heartbeat stop", func() error { beat.stop(); return nil }))
	}
	if track != nil {
		record(safeCall("tracker close", func() error { track.Close(now); return nil }))
	}
	if fc != nil {
		record(safeCall("frame watcher close", fc.Close))
	}
	record(safeCall("clear recovery snapshot", func() error { return m.deps.Settings.Delete(recoveryKey) }))

	m.mu.Lock()
	m.resetLocked()
	m.notifyStateLocked()
	m.mu.Unlock()

	res.Success = true
	res.Error = strings.Join(errs, "; ")
	m.logger.Info("emergency stop completed", "errors", len(errs))
	return res
}

// GetRecoverableSession reads the crash snapshot left by a previous run.
// It returns nil when no snapshot exists, when it is inactive, or when
// it cannot be decoded.
func (m *Manager) GetRecoverableSession() *RecoverableSession {
	raw, ok, err := m.deps.Settings.Get(recoveryKey)
	if err != nil {
		m.logger.Warn("read recovery snapshot failed", "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	rs, err := decodeSnapshot(raw)
	if err != nil {
		m.logger.Warn("corrupt recovery snapshot discarded", "error", err)
		if derr := m.deps.Settings.Delete(recoveryKey); derr != nil {
			m.logger.Warn("clear corrupt snapshot failed", "error", derr)
		}
		return nil
	}
	if !rs.IsActive {
		return nil
	}
	return rs
}

// Recover finalizes an interrupted session found on disk. The snapshot
// frame count is ignored; the folder is re-validated so the result
// reflects what actually survived. The snapshot is cleared whether or
// not recovery succeeds.
func (m *Manager) Recover(sessionFolder string) RecoverResult {
	m.mu.Lock()
	if m.state != StateIdle {
		st := m.state
		m.mu.Unlock()
		return RecoverResult{Error: (&StateConflictError{Op: "recover", State: st}).Error()}
	}
	m.mu.Unlock()

	defer func() {
		if err := m.deps.Settings.Delete(recoveryKey); err != nil {
			m.logger.Warn("clear recovery snapshot failed", "error", err)
		}
	}()

	if m.deps.Validator == nil {
		return RecoverResult{Error: "no frame validator configured"}
	}
	vr, err := m.deps.Validator.Validate(sessionFolder)
	if err != nil {
		return RecoverResult{SessionFolder: sessionFolder, Error: fmt.Sprintf("validate frames: %v", err)}
	}

	// Patch the metrics file if the crashed run managed to write one.
	path := filepath.Join(sessionFolder, metricsFileName)
	if mf, err := LoadMetricsFile(path); err == nil {
		mf.EndTime = mf.LastUpdated
		mf.LastUpdated = m.clock()
		if werr := mf.WriteFile(path); werr != nil {
			m.logger.Warn("rewrite recovered metrics failed", "error", werr)
		}
	} else if !os.IsNotExist(err) {
		m.logger.Warn("recovered metrics unreadable", "path", path, "error", err)
	}

	m.logger.Info("session recovered", "folder", sessionFolder, "frames", vr.ValidFrameCount)
	return RecoverResult{Success: true, SessionFolder: sessionFolder, TotalFrames: vr.ValidFrameCount}
}

// DiscardRecovery drops the crash snapshot without touching the session
// folder on disk.
func (m *Manager) DiscardRecovery() error {
	return m.deps.Settings.Delete(recoveryKey)
}

// OnActivityUpdate implements tracker.Notifier and forwards throttled
// activity updates to the observer.
func (m *Manager) OnActivityUpdate(stats tracker.Stats) {
	if m.deps.Observer != nil {
		m.deps.Observer.OnActivityUpdate(stats)
	}
}

func (m *Manager) onInput(ev hook.Event) {
	m.mu.Lock()
	track := m.track
	active := m.state == StateRecording || m.state == StatePaused
	m.mu.Unlock()
	if track == nil || !active {
		return
	}
	switch ev.Kind {
	case hook.KeyDown:
		track.RecordKeystroke(ev.When)
	case hook.MouseDown:
		track.RecordMouseDown(ev.When, ev.X, ev.Y)
	case hook.Wheel:
		track.RecordScroll(ev.When)
	}
}

func (m *Manager) newWatcher(folder string) (frameCounter, error) {
	if m.watcherFactory != nil {
		return m.watcherFactory(folder)
	}
	return defaultWatcher(folder)
}

func (m *Manager) snapshot() RecoverableSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() RecoverableSession {
	rs := RecoverableSession{
		SessionFolder: m.folder,
		SourceID:      m.sourceID,
		StartTime:     m.startTime,
		IsActive:      m.state == StateRecording || m.state == StatePaused || m.state == StateStopping,
		LastHeartbeat: m.clock(),
	}
	if m.frames != nil {
		rs.FrameCount = m.frames.Count()
	}
	return rs
}

func (m *Manager) resetLocked() {
	m.state = StateIdle
	m.sessionID = ""
	m.folder = ""
	m.sourceID = ""
	m.startTime = time.Time{}
	m.pausedAt = time.Time{}
	m.pausedTotal = 0
	m.track = nil
	m.frames = nil
	m.beat = nil
	m.hookCancel = nil
	m.queueSize = 0
	m.droppedFrames = 0
	m.adaptiveQuality = 100
}

func (m *Manager) notifyStateLocked() {
	if m.deps.Observer == nil {
		return
	}
	st := m.statusLocked()
	go m.deps.Observer.OnStateChanged(st)
}

// activeDuration is the wall time minus paused and idle time, floored
// at zero.
func activeDuration(total, paused time.Duration, idle []verify.IdlePeriod) time.Duration {
	active := total - paused
	for _, p := range idle {
		active -= p.Duration
	}
	if active < 0 {
		return 0
	}
	return active
}

func factorMap(f verify.Factors) map[string]int {
	return map[string]int{
		"pasteScore":       f.PasteScore,
		"activityScore":    f.ActivityScore,
		"consistencyScore": f.ConsistencyScore,
		"durationScore":    f.DurationScore,
	}
}

func defaultWatcher(folder string) (frameCounter, error) {
	return frames.NewWatcher(folder)
}

func safeCall(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
		}
	}()
	if ferr := fn(); ferr != nil {
		return fmt.Errorf("%s: %w", name, ferr)
	}
	return nil
}
