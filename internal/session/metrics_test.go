package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lapserec/internal/tracker"
	"lapserec/internal/verify"
)

func TestMetricsRoundTrip(t *testing.T) {
	start := time.Now().Add(-10 * time.Minute).Truncate(time.Second)
	end := time.Now().Truncate(time.Second)
	stats := tracker.Stats{
		EstimatedKeystrokes: 1200,
		EstimatedWordsTyped: 240,
		TypingBurstCount:    14,
		AverageWPM:          52,
		PeakWPM:             88,
		MouseClicks:         40,
		MouseDistance:       10234.5,
		ScrollEvents:        60,
	}
	pastes := []verify.PasteEvent{{Timestamp: end.Add(-time.Minute), Size: 120}}
	out := verify.Output{Score: 92, IsVerified: true}

	mf := buildMetrics("abc-123", start, end, stats, pastes, nil, 85, &out)
	path := filepath.Join(t.TempDir(), metricsFileName)
	require.NoError(t, mf.WriteFile(path))

	got, err := LoadMetricsFile(path)
	require.NoError(t, err)
	assert.Equal(t, "abc-123", got.SessionID)
	assert.Equal(t, 1200, got.Input.Keyboard.EstimatedKeystrokes)
	assert.Equal(t, 1, got.Input.Clipboard.PasteCount)
	assert.Equal(t, 120, got.Input.Clipboard.TotalChars)
	assert.Equal(t, 85, got.Activity.ActivityScore)
	require.NotNil(t, got.Activity.Verification)
	assert.True(t, got.Activity.Verification.IsVerified)
}

func TestLoadMetricsRejectsInvalidDocument(t *testing.T) {
	dir := t.TempDir()

	cases := map[string]string{
		"missing fields": `{"version": 1}`,
		"wrong version":  `{"version": 2, "sessionId": "x", "startTime": "2026-01-01T00:00:00Z", "endTime": "2026-01-01T01:00:00Z", "lastUpdated": "2026-01-01T01:00:00Z", "input": {}, "activity": {}}`,
		"bad types":      `{"version": 1, "sessionId": 7, "startTime": "2026-01-01T00:00:00Z", "endTime": "2026-01-01T01:00:00Z", "lastUpdated": "2026-01-01T01:00:00Z", "input": {}, "activity": {}}`,
		"not json":       `{broken`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
			_, err := LoadMetricsFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMetricsMissingFile(t *testing.T) {
	_, err := LoadMetricsFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestTotalInputEventsAggregation(t *testing.T) {
	stats := tracker.Stats{EstimatedKeystrokes: 10, MouseClicks: 3, ScrollEvents: 2}
	pastes := []verify.PasteEvent{{Timestamp: time.Now(), Size: 5}}
	mf := buildMetrics("id", time.Now().Add(-time.Minute), time.Now(), stats, pastes, nil, 100, nil)
	assert.Equal(t, 16, mf.Input.TotalInputEvents)
}
