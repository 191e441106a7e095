// Package tracker maintains keyboard and mouse activity statistics for a
// recording session.
//
// IMPORTANT: the tracker counts input events - it does NOT capture or
// record which keys are pressed. It consumes discrete keydown, mousedown
// and wheel events from an OS-level hook and derives typing bursts, WPM
// estimates, idle periods and an activity score from their timing alone.
package tracker

import (
	"math"
	"sync"
	"time"

	"lapserec/internal/verify"
)

// Params holds the tunable constants of the tracker. Defaults are
// empirically tuned; override via config, not code.
type Params struct {
	// BurstGap is the maximum gap between consecutive keystrokes within
	// one typing burst.
	BurstGap time.Duration

	// MinBurstKeystrokes is the minimum number of keystrokes a closed
	// burst needs to be retained in history.
	MinBurstKeystrokes int

	// PeakWPMCap guards the peak-WPM statistic against clock-jump
	// artifacts: candidates at or above the cap are ignored.
	PeakWPMCap int

	// ShortcutGapMin/Max bound the inter-key gap (exclusive on both
	// ends) tallied as a likely chorded shortcut.
	ShortcutGapMin time.Duration
	ShortcutGapMax time.Duration

	// NotifyInterval throttles live stat pushes to the notifier.
	NotifyInterval time.Duration

	// IdleThreshold is the minimum input-free span recorded as an idle
	// period.
	IdleThreshold time.Duration
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		BurstGap:           2000 * time.Millisecond,
		MinBurstKeystrokes: 5,
		PeakWPMCap:         200,
		ShortcutGapMin:     20 * time.Millisecond,
		ShortcutGapMax:     150 * time.Millisecond,
		NotifyInterval:     2 * time.Second,
		IdleThreshold:      60 * time.Second,
	}
}

// TypingBurst is a maximal run of keystrokes with inter-key gaps within
// the burst gap, retained only if long enough.
type TypingBurst struct {
	Start      time.Time     `json:"start"`
	End        time.Time     `json:"end"`
	Duration   time.Duration `json:"duration"`
	Keystrokes int           `json:"keystrokes"`
	WPM        int           `json:"wpm"`
}

// Stats is the aggregate keyboard/mouse statistics snapshot.
type Stats struct {
	EstimatedKeystrokes int           `json:"estimated_keystrokes"`
	KeyboardActiveTime  time.Duration `json:"keyboard_active_time"`
	EstimatedWordsTyped int           `json:"estimated_words_typed"`
	TypingBurstCount    int           `json:"typing_burst_count"`
	AverageWPM          int           `json:"average_wpm"`
	PeakWPM             int           `json:"peak_wpm"`
	MouseClicks         int           `json:"mouse_clicks"`
	MouseDistance       float64       `json:"mouse_distance"`
	ScrollEvents        int           `json:"scroll_events"`
	ShortcutEstimate    int           `json:"shortcut_estimate"`
	// TypingIntensity is keystrokes per active minute.
	TypingIntensity float64 `json:"typing_intensity"`
}

// Notifier receives throttled live stat updates.
type Notifier interface {
	OnActivityUpdate(Stats)
}

// Tracker accumulates input statistics. All methods are safe for
// concurrent use; a disabled tracker degrades every recording method to
// a no-op so a failed hook cannot break the surrounding session.
type Tracker struct {
	mu     sync.Mutex
	params Params

	enabled   bool
	startTime time.Time

	// Burst state. currentBurstStart is nil whenever no burst is open.
	lastKeystroke     time.Time
	currentBurstStart *time.Time
	currentBurstKeys  int
	bursts            []TypingBurst

	// Counters
	keystrokes   int
	mouseClicks  int
	scrollEvents int
	shortcuts    int
	peakWPM      int

	mouseDistance float64
	lastMouseX    int
	lastMouseY    int
	haveMousePos  bool

	// Idle tracking across all qualifying input.
	lastInput   time.Time
	idlePeriods []verify.IdlePeriod

	notifier   Notifier
	lastNotify time.Time
}

// New creates an enabled tracker starting at the given time.
func New(start time.Time, params Params, notifier Notifier) *Tracker {
	return &Tracker{
		params:    params,
		enabled:   true,
		startTime: start,
		// Seed the idle clock so the span before the first input counts.
		lastInput: start,
		notifier:  notifier,
	}
}

// SetEnabled toggles the tracker. Disabling is how the session degrades
// when the input hook is unavailable.
func (t *Tracker) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
}

// Enabled reports whether the tracker is recording input.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// RecordKeystroke processes one keydown at the given timestamp.
func (t *Tracker) RecordKeystroke(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	t.markInput(ts)
	t.keystrokes++

	if t.currentBurstStart == nil || t.lastKeystroke.IsZero() {
		t.openBurst(ts)
		t.lastKeystroke = ts
		t.notifyLocked(ts)
		return
	}

	gap := ts.Sub(t.lastKeystroke)
	if gap <= t.params.BurstGap {
		t.currentBurstKeys++
		if gap > t.params.ShortcutGapMin && gap < t.params.ShortcutGapMax {
			t.shortcuts++
		}
		t.updatePeakLocked(ts)
	} else {
		// Gap too long: the burst ended at the previous keystroke.
		t.closeBurstLocked(t.lastKeystroke)
		t.openBurst(ts)
	}

	t.lastKeystroke = ts
	t.notifyLocked(ts)
}

// RecordMouseDown processes one mouse click at the given position.
func (t *Tracker) RecordMouseDown(ts time.Time, x, y int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	t.markInput(ts)
	t.mouseClicks++

	if t.haveMousePos {
		dx := float64(x - t.lastMouseX)
		dy := float64(y - t.lastMouseY)
		t.mouseDistance += math.Sqrt(dx*dx + dy*dy)
	}
	t.lastMouseX, t.lastMouseY = x, y
	t.haveMousePos = true

	t.notifyLocked(ts)
}

// RecordScroll processes one wheel event.
func (t *Tracker) RecordScroll(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.enabled {
		return
	}

	t.markInput(ts)
	t.scrollEvents++
	t.notifyLocked(ts)
}

// Close finalizes the tracker at the given time, closing any open burst
// and recording a trailing idle period if the session went quiet.
func (t *Tracker) Close(ts time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.currentBurstStart != nil {
		t.closeBurstLocked(t.lastKeystroke)
	}

	if !t.lastInput.IsZero() {
		if gap := ts.Sub(t.lastInput); gap >= t.params.IdleThreshold {
			t.idlePeriods = append(t.idlePeriods, verify.IdlePeriod{
				Start:    t.lastInput,
				End:      ts,
				Duration: gap,
			})
		}
	}
}

// Stats returns a snapshot of the aggregate statistics, including the
// currently open burst's contribution to active time.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked(t.lastKeystroke)
}

// Bursts returns the closed burst history.
func (t *Tracker) Bursts() []TypingBurst {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TypingBurst, len(t.bursts))
	copy(out, t.bursts)
	return out
}

// IdlePeriods returns the recorded idle periods.
func (t *Tracker) IdlePeriods() []verify.IdlePeriod {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]verify.IdlePeriod, len(t.idlePeriods))
	copy(out, t.idlePeriods)
	return out
}

// ActivityScore grades the raw input activity of the session so far on a
// 0-100 scale. It penalizes sessions long enough to expect typing but
// showing almost none, rewards burst variety, and flags impossible
// typing speeds.
func (t *Tracker) ActivityScore(now time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	score := 100
	duration := now.Sub(t.startTime).Seconds()

	if duration > 600 {
		// Expect at least 30% of a modest 0.5 keystrokes/sec baseline.
		expectedMin := 0.5 * duration * 0.3
		if float64(t.keystrokes) < expectedMin {
			score -= 20
		}
	}

	bonus := len(t.bursts)
	if bonus > 10 {
		bonus = 10
	}
	score += bonus

	if t.peakWPM > t.params.PeakWPMCap {
		score -= 15
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// markInput records idle gaps between qualifying input events.
func (t *Tracker) markInput(ts time.Time) {
	if !t.lastInput.IsZero() {
		if gap := ts.Sub(t.lastInput); gap >= t.params.IdleThreshold {
			t.idlePeriods = append(t.idlePeriods, verify.IdlePeriod{
				Start:    t.lastInput,
				End:      ts,
				Duration: gap,
			})
		}
	}
	t.lastInput = ts
}

func (t *Tracker) openBurst(ts time.Time) {
	start := ts
	t.currentBurstStart = &start
	t.currentBurstKeys = 1
}

// closeBurstLocked closes the open burst ending at the given keystroke.
// Short bursts are discarded; retained bursts get their WPM computed.
func (t *Tracker) closeBurstLocked(end time.Time) {
	if t.currentBurstStart == nil {
		return
	}

	start := *t.currentBurstStart
	t.currentBurstStart = nil

	if t.currentBurstKeys < t.params.MinBurstKeystrokes {
		t.currentBurstKeys = 0
		return
	}

	duration := end.Sub(start)
	t.bursts = append(t.bursts, TypingBurst{
		Start:      start,
		End:        end,
		Duration:   duration,
		Keystrokes: t.currentBurstKeys,
		WPM:        BurstWPM(t.currentBurstKeys, duration),
	})
	t.currentBurstKeys = 0
}

// updatePeakLocked refreshes the peak WPM from the live burst. The peak
// only moves when the candidate is both a new maximum and under the
// sanity cap.
func (t *Tracker) updatePeakLocked(now time.Time) {
	if t.currentBurstStart == nil {
		return
	}
	wpm := BurstWPM(t.currentBurstKeys, now.Sub(*t.currentBurstStart))
	if wpm > t.peakWPM && wpm < t.params.PeakWPMCap {
		t.peakWPM = wpm
	}
}

func (t *Tracker) notifyLocked(ts time.Time) {
	if t.notifier == nil {
		return
	}
	if !t.lastNotify.IsZero() && ts.Sub(t.lastNotify) < t.params.NotifyInterval {
		return
	}
	t.lastNotify = ts
	stats := t.statsLocked(ts)

	// Release the lock for the callback: the notifier may call back into
	// the tracker or block on IPC.
	t.mu.Unlock()
	t.notifier.OnActivityUpdate(stats)
	t.mu.Lock()
}

func (t *Tracker) statsLocked(now time.Time) Stats {
	var active time.Duration
	var weightedWPM float64
	for _, b := range t.bursts {
		active += b.Duration
		weightedWPM += float64(b.WPM) * b.Duration.Seconds()
	}

	avg := 0
	if active > 0 {
		avg = int(math.Round(weightedWPM / active.Seconds()))
	}

	// Include the open burst in active time.
	totalActive := active
	if t.currentBurstStart != nil && now.After(*t.currentBurstStart) {
		totalActive += now.Sub(*t.currentBurstStart)
	}

	intensity := 0.0
	if totalActive > 0 {
		intensity = float64(t.keystrokes) / totalActive.Minutes()
	}

	return Stats{
		EstimatedKeystrokes: t.keystrokes,
		KeyboardActiveTime:  totalActive,
		EstimatedWordsTyped: t.keystrokes / 5,
		TypingBurstCount:    len(t.bursts),
		AverageWPM:          avg,
		PeakWPM:             t.peakWPM,
		MouseClicks:         t.mouseClicks,
		MouseDistance:       t.mouseDistance,
		ScrollEvents:        t.scrollEvents,
		ShortcutEstimate:    t.shortcuts,
		TypingIntensity:     intensity,
	}
}

// BurstWPM estimates words per minute for a burst, one word per five
// keystrokes. Bursts under a second are too short for a meaningful rate.
func BurstWPM(keystrokes int, duration time.Duration) int {
	if duration < time.Second {
		return 0
	}
	words := float64(keystrokes) / 5.0
	return int(math.Round(words / duration.Minutes()))
}
