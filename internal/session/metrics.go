package session

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"lapserec/internal/tracker"
	"lapserec/internal/verify"
)

const (
	metricsFileName = "metrics.json"
	metricsVersion  = 1
)

//go:embed session-metrics.schema.json
var metricsSchemaJSON string

var metricsSchema = jsonschema.MustCompileString("session-metrics.schema.json", metricsSchemaJSON)

// MetricsFile is the per-session metrics document written into the
// session folder next to the frames.
type MetricsFile struct {
	Version     int             `json:"version"`
	SessionID   string          `json:"sessionId"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     time.Time       `json:"endTime"`
	LastUpdated time.Time       `json:"lastUpdated"`
	Input       InputMetrics    `json:"input"`
	Activity    ActivityMetrics `json:"activity"`
}

// InputMetrics aggregates the tracked input streams.
type InputMetrics struct {
	Keyboard         KeyboardMetrics  `json:"keyboard"`
	Mouse            MouseMetrics     `json:"mouse"`
	Clipboard        ClipboardMetrics `json:"clipboard"`
	TotalInputEvents int              `json:"totalInputEvents"`
	SessionDuration  int64            `json:"sessionDurationMs"`
	LastActivityTime time.Time        `json:"lastActivityTime"`
}

type KeyboardMetrics struct {
	EstimatedKeystrokes int     `json:"estimatedKeystrokes"`
	EstimatedWordsTyped int     `json:"estimatedWordsTyped"`
	TypingBurstCount    int     `json:"typingBurstCount"`
	AverageWPM          int     `json:"averageWpm"`
	PeakWPM             int     `json:"peakWpm"`
	ShortcutEstimate    int     `json:"shortcutEstimate"`
	ActiveTimeMs        int64   `json:"activeTimeMs"`
	TypingIntensity     float64 `json:"typingIntensity"`
}

type MouseMetrics struct {
	Clicks       int     `json:"clicks"`
	Distance     float64 `json:"distance"`
	ScrollEvents int     `json:"scrollEvents"`
}

type ClipboardMetrics struct {
	PasteCount int                 `json:"pasteCount"`
	TotalChars int                 `json:"totalChars"`
	Events     []verify.PasteEvent `json:"events"`
}

type ActivityMetrics struct {
	ActivityScore int                 `json:"activityScore"`
	IdlePeriods   []verify.IdlePeriod `json:"idlePeriods"`
	Verification  *verify.Output      `json:"verification,omitempty"`
}

func buildMetrics(sessionID string, start, end time.Time, stats tracker.Stats,
	pastes []verify.PasteEvent, idle []verify.IdlePeriod, activityScore int, out *verify.Output) *MetricsFile {
	pasteChars := 0
	for _, p := range pastes {
		pasteChars += p.Size
	}
	return &MetricsFile{
		Version:     metricsVersion,
		SessionID:   sessionID,
		StartTime:   start,
		EndTime:     end,
		LastUpdated: end,
		Input: InputMetrics{
			Keyboard: KeyboardMetrics{
				EstimatedKeystrokes: stats.EstimatedKeystrokes,
				EstimatedWordsTyped: stats.EstimatedWordsTyped,
				TypingBurstCount:    stats.TypingBurstCount,
				AverageWPM:          stats.AverageWPM,
				PeakWPM:             stats.PeakWPM,
				ShortcutEstimate:    stats.ShortcutEstimate,
				ActiveTimeMs:        stats.KeyboardActiveTime.Milliseconds(),
				TypingIntensity:     stats.TypingIntensity,
			},
			Mouse: MouseMetrics{
				Clicks:       stats.MouseClicks,
				Distance:     stats.MouseDistance,
				ScrollEvents: stats.ScrollEvents,
			},
			Clipboard: ClipboardMetrics{
				PasteCount: len(pastes),
				TotalChars: pasteChars,
				Events:     pastes,
			},
			TotalInputEvents: stats.EstimatedKeystrokes + stats.MouseClicks + stats.ScrollEvents + len(pastes),
			SessionDuration:  end.Sub(start).Milliseconds(),
			LastActivityTime: end,
		},
		Activity: ActivityMetrics{
			ActivityScore: activityScore,
			IdlePeriods:   idle,
			Verification:  out,
		},
	}
}

// WriteFile writes the document atomically: a temp file in the same
// directory renamed over the target.
func (m *MetricsFile) WriteFile(path string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// LoadMetricsFile reads and schema-validates a metrics document. The
// error satisfies os.IsNotExist when the file is absent.
func LoadMetricsFile(path string) (*MetricsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse metrics: %w", err)
	}
	if err := metricsSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid metrics document: %w", err)
	}
	var m MetricsFile
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode metrics: %w", err)
	}
	return &m, nil
}
