package tracker

import (
	"sync"
	"testing"
	"time"
)

var t0 = time.Unix(1700000000, 0)

func at(ms int) time.Time {
	return t0.Add(time.Duration(ms) * time.Millisecond)
}

func newTestTracker() *Tracker {
	return New(t0, DefaultParams(), nil)
}

// =============================================================================
// Burst formation
// =============================================================================

func TestBurstGapSplitsBursts(t *testing.T) {
	tr := newTestTracker()

	// 0, 500, 1000 form one candidate burst; the 3000ms gap to 4000
	// closes it. Three keystrokes is below the retention minimum of 5,
	// so history stays empty and a fresh burst opens at 4000.
	for _, ms := range []int{0, 500, 1000, 4000} {
		tr.RecordKeystroke(at(ms))
	}

	if got := len(tr.Bursts()); got != 0 {
		t.Errorf("burst history = %d entries, want 0 (candidate too short)", got)
	}

	tr.mu.Lock()
	if tr.currentBurstStart == nil || !tr.currentBurstStart.Equal(at(4000)) {
		t.Errorf("current burst should start at t=4000, got %v", tr.currentBurstStart)
	}
	if tr.currentBurstKeys != 1 {
		t.Errorf("current burst keystrokes = %d, want 1", tr.currentBurstKeys)
	}
	tr.mu.Unlock()
}

func TestBurstRetention(t *testing.T) {
	tr := newTestTracker()

	// Five keystrokes 400ms apart, then a long gap to close the burst.
	for i := 0; i < 5; i++ {
		tr.RecordKeystroke(at(i * 400))
	}
	tr.RecordKeystroke(at(10000))

	bursts := tr.Bursts()
	if len(bursts) != 1 {
		t.Fatalf("burst history = %d entries, want 1", len(bursts))
	}

	b := bursts[0]
	if b.Keystrokes != 5 {
		t.Errorf("keystrokes = %d, want 5", b.Keystrokes)
	}
	if !b.Start.Equal(at(0)) || !b.End.Equal(at(1600)) {
		t.Errorf("burst span = %v..%v, want 0..1600ms", b.Start, b.End)
	}
	if b.Duration != 1600*time.Millisecond {
		t.Errorf("duration = %v, want 1.6s", b.Duration)
	}
}

func TestCurrentBurstResetOnClose(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 8; i++ {
		tr.RecordKeystroke(at(i * 300))
	}
	tr.Close(at(5000))

	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.currentBurstStart != nil {
		t.Error("currentBurstStart must reset to nil after Close")
	}
	if len(tr.bursts) != 1 {
		t.Errorf("burst history = %d entries, want 1", len(tr.bursts))
	}
}

// =============================================================================
// WPM
// =============================================================================

func TestBurstWPMDeterminism(t *testing.T) {
	// 10 keystrokes over exactly one minute: 2 words/minute.
	if got := BurstWPM(10, 60*time.Second); got != 2 {
		t.Errorf("BurstWPM(10, 60s) = %d, want 2", got)
	}
}

func TestBurstWPMSubSecond(t *testing.T) {
	if got := BurstWPM(10, 900*time.Millisecond); got != 0 {
		t.Errorf("BurstWPM under one second = %d, want 0", got)
	}
}

func TestAverageWPMDurationWeighted(t *testing.T) {
	tr := newTestTracker()

	// Burst 1: 10 keystrokes over 9s (gaps of 1s) -> 2/0.15 = 13 WPM...
	// computed as round((10/5)/(9/60)) = round(13.33) = 13.
	for i := 0; i < 10; i++ {
		tr.RecordKeystroke(at(i * 1000))
	}
	// Burst 2 after a gap: 20 keystrokes over 19s -> round((20/5)/(19/60)) = 13.
	base := 60000
	for i := 0; i < 20; i++ {
		tr.RecordKeystroke(at(base + i*1000))
	}
	tr.Close(at(base + 30000))

	bursts := tr.Bursts()
	if len(bursts) != 2 {
		t.Fatalf("burst history = %d entries, want 2", len(bursts))
	}

	stats := tr.Stats()
	// Weighted mean of 13 (9s) and 13 (19s) is 13.
	if stats.AverageWPM != 13 {
		t.Errorf("average WPM = %d, want 13", stats.AverageWPM)
	}
}

func TestPeakWPMSanityCap(t *testing.T) {
	tr := newTestTracker()

	// 60 keystrokes in 1.18 seconds of 20ms gaps is far over 200 WPM;
	// the peak must not move.
	for i := 0; i < 60; i++ {
		tr.RecordKeystroke(at(i * 20))
	}

	if got := tr.Stats().PeakWPM; got != 0 {
		t.Errorf("peak WPM = %d, want 0 (capped)", got)
	}
}

func TestPeakWPMTracksRealisticTyping(t *testing.T) {
	tr := newTestTracker()

	// 30 keystrokes with 200ms gaps: sustained 60 WPM.
	for i := 0; i < 30; i++ {
		tr.RecordKeystroke(at(i * 200))
	}

	got := tr.Stats().PeakWPM
	if got < 50 || got >= 200 {
		t.Errorf("peak WPM = %d, want a realistic value around 60", got)
	}
}

// =============================================================================
// Shortcut heuristic
// =============================================================================

func TestShortcutEstimate(t *testing.T) {
	tr := newTestTracker()

	tr.RecordKeystroke(at(0))
	tr.RecordKeystroke(at(100))  // 100ms gap: counted
	tr.RecordKeystroke(at(115))  // 15ms gap: too fast, not counted
	tr.RecordKeystroke(at(265))  // 150ms gap: boundary is exclusive
	tr.RecordKeystroke(at(1000)) // 735ms gap: ordinary typing

	if got := tr.Stats().ShortcutEstimate; got != 1 {
		t.Errorf("shortcut estimate = %d, want 1", got)
	}
}

// =============================================================================
// Idle periods
// =============================================================================

func TestIdlePeriods(t *testing.T) {
	tr := newTestTracker()

	tr.RecordKeystroke(at(0))
	tr.RecordMouseDown(at(30000), 10, 10) // 30s: under the threshold
	tr.RecordKeystroke(at(120000))        // 90s gap: idle period
	tr.Close(at(300000))                  // trailing 180s gap: idle period

	idle := tr.IdlePeriods()
	if len(idle) != 2 {
		t.Fatalf("idle periods = %d, want 2", len(idle))
	}
	if idle[0].Duration != 90*time.Second {
		t.Errorf("first idle duration = %v, want 90s", idle[0].Duration)
	}
	if idle[1].Duration != 180*time.Second {
		t.Errorf("trailing idle duration = %v, want 180s", idle[1].Duration)
	}
}

func TestIdlePeriodBeforeFirstInput(t *testing.T) {
	tr := newTestTracker()

	// First keystroke arrives 10 minutes after the session starts. The
	// untouched span counts as idle from the session start.
	tr.RecordKeystroke(at(600000))
	tr.Close(at(610000))

	idle := tr.IdlePeriods()
	if len(idle) != 1 {
		t.Fatalf("idle periods = %d, want 1", len(idle))
	}
	if !idle[0].Start.Equal(t0) {
		t.Errorf("idle start = %v, want session start %v", idle[0].Start, t0)
	}
	if idle[0].Duration != 10*time.Minute {
		t.Errorf("leading idle duration = %v, want 10m", idle[0].Duration)
	}
}

func TestIdlePeriodWithNoInputAtAll(t *testing.T) {
	tr := newTestTracker()

	tr.Close(at(900000))

	idle := tr.IdlePeriods()
	if len(idle) != 1 {
		t.Fatalf("idle periods = %d, want 1", len(idle))
	}
	if idle[0].Duration != 15*time.Minute {
		t.Errorf("idle duration = %v, want the full 15m session", idle[0].Duration)
	}
}

// =============================================================================
// Mouse and scroll counters
// =============================================================================

func TestMouseCounters(t *testing.T) {
	tr := newTestTracker()

	tr.RecordMouseDown(at(0), 0, 0)
	tr.RecordMouseDown(at(100), 3, 4) // distance 5
	tr.RecordScroll(at(200))
	tr.RecordScroll(at(300))

	stats := tr.Stats()
	if stats.MouseClicks != 2 {
		t.Errorf("mouse clicks = %d, want 2", stats.MouseClicks)
	}
	if stats.MouseDistance != 5 {
		t.Errorf("mouse distance = %f, want 5", stats.MouseDistance)
	}
	if stats.ScrollEvents != 2 {
		t.Errorf("scroll events = %d, want 2", stats.ScrollEvents)
	}
}

// =============================================================================
// Activity score
// =============================================================================

func TestActivityScorePenalizesSparseTyping(t *testing.T) {
	tr := newTestTracker()
	tr.RecordKeystroke(at(0))

	// 20 minutes in with one keystroke: expected minimum is
	// 0.5 * 1200 * 0.3 = 180 keystrokes.
	score := tr.ActivityScore(t0.Add(20 * time.Minute))
	if score != 80 {
		t.Errorf("activity score = %d, want 80", score)
	}
}

func TestActivityScoreBurstBonusCapped(t *testing.T) {
	tr := newTestTracker()

	// 15 retained bursts, far apart; plenty of keystrokes.
	for b := 0; b < 15; b++ {
		base := b * 10000
		for i := 0; i < 6; i++ {
			tr.RecordKeystroke(at(base + i*300))
		}
	}
	tr.Close(at(160000))

	// Short session: no sparse-typing penalty applies; bonus caps at +10
	// and the total clamps to 100.
	score := tr.ActivityScore(at(160000))
	if score != 100 {
		t.Errorf("activity score = %d, want 100", score)
	}
}

func TestDisabledTrackerIsNoop(t *testing.T) {
	tr := newTestTracker()
	tr.SetEnabled(false)

	tr.RecordKeystroke(at(0))
	tr.RecordMouseDown(at(100), 1, 1)
	tr.RecordScroll(at(200))

	stats := tr.Stats()
	if stats.EstimatedKeystrokes != 0 || stats.MouseClicks != 0 || stats.ScrollEvents != 0 {
		t.Errorf("disabled tracker recorded input: %+v", stats)
	}
}

// =============================================================================
// Live notification throttle
// =============================================================================

type spyNotifier struct {
	mu      sync.Mutex
	updates []Stats
}

func (s *spyNotifier) OnActivityUpdate(stats Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, stats)
}

func (s *spyNotifier) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.updates)
}

func TestNotifyThrottle(t *testing.T) {
	spy := &spyNotifier{}
	tr := New(t0, DefaultParams(), spy)

	// 50 keystrokes over 5 seconds: at most one update per 2 seconds
	// plus the initial one.
	for i := 0; i < 50; i++ {
		tr.RecordKeystroke(at(i * 100))
	}

	if got := spy.count(); got != 3 {
		t.Errorf("notifier updates = %d, want 3 (t=0, t=2s, t=4s)", got)
	}
}
