package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// heartbeat periodically persists the recovery snapshot so a crashed
// daemon leaves enough behind to finalize the session on next boot.
// Write failures are logged and skipped; the next tick retries.
type heartbeat struct {
	interval time.Duration
	settings Settings
	snapshot func() RecoverableSession
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newHeartbeat(interval time.Duration, settings Settings, snapshot func() RecoverableSession, logger *slog.Logger) *heartbeat {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &heartbeat{
		interval: interval,
		settings: settings,
		snapshot: snapshot,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

func (h *heartbeat) start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				h.tick()
			case <-h.stopCh:
				return
			}
		}
	}()
}

// tick fetches and writes one snapshot. It must not be called while the
// caller holds the manager lock; use write with a precomputed snapshot
// there instead.
func (h *heartbeat) tick() {
	h.write(h.snapshot())
}

func (h *heartbeat) write(rs RecoverableSession) {
	raw, err := json.Marshal(rs)
	if err != nil {
		h.logger.Warn("encode recovery snapshot failed", "error", err)
		return
	}
	if err := h.settings.Set(recoveryKey, string(raw)); err != nil {
		h.logger.Warn("persist recovery snapshot failed", "error", err)
	}
}

func (h *heartbeat) stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	h.wg.Wait()
}

func decodeSnapshot(raw string) (*RecoverableSession, error) {
	var rs RecoverableSession
	if err := json.Unmarshal([]byte(raw), &rs); err != nil {
		return nil, fmt.Errorf("decode recovery snapshot: %w", err)
	}
	if rs.SessionFolder == "" {
		return nil, fmt.Errorf("recovery snapshot missing session folder")
	}
	return &rs, nil
}
