// Package verify implements the activity verification engine.
//
// The engine is a pure function from a finalized session's metrics to a
// 0-100 authenticity score, a verified flag, and diagnostic flags. It is
// deterministic and side-effect-free: the output gates a user-visible
// "verified" badge and may be disputed, so identical inputs must always
// produce identical outputs.
package verify

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"
)

// PasteTier buckets a paste event by its approximate character size.
type PasteTier string

const (
	TierSmall     PasteTier = "small"
	TierMedium    PasteTier = "medium"
	TierLarge     PasteTier = "large"
	TierVeryLarge PasteTier = "very_large"
)

// PasteEvent records a single clipboard paste observed during a session.
type PasteEvent struct {
	Timestamp time.Time `json:"timestamp"`
	// Size is the approximate character count of the pasted content.
	Size int `json:"approximate_size"`
}

// IdlePeriod is a contiguous span of recording time with no qualifying input.
type IdlePeriod struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// Input carries the finalized session metrics the engine scores.
type Input struct {
	TotalDuration  time.Duration `json:"total_duration"`
	ActiveDuration time.Duration `json:"active_duration"`
	FrameCount     int           `json:"frame_count"`
	PasteEvents    []PasteEvent  `json:"paste_events"`
	IdlePeriods    []IdlePeriod  `json:"idle_periods"`
}

// Factors exposes the four sub-scores behind the composite score.
type Factors struct {
	PasteScore       int `json:"paste_score"`
	ActivityScore    int `json:"activity_score"`
	ConsistencyScore int `json:"consistency_score"`
	DurationScore    int `json:"duration_score"`
}

// Output is the immutable verification result for a session.
type Output struct {
	Score      int      `json:"score"`
	IsVerified bool     `json:"is_verified"`
	Factors    Factors  `json:"factors"`
	Flags      []string `json:"flags"`
}

// Params holds the tunable constants of the engine. The defaults are
// empirically tuned and must be preserved for behavioral compatibility;
// they are exposed here so deployments can override them via config.
type Params struct {
	// Tier boundaries (exclusive upper bounds for small/medium/large).
	SmallMaxChars  int
	MediumMaxChars int
	LargeMaxChars  int

	// Per-event penalties by tier.
	SmallPenalty     int
	MediumPenalty    int
	LargePenalty     int
	VeryLargePenalty int

	// VerifyThreshold is the minimum composite score for verification.
	VerifyThreshold int

	// Hard caps on paste-tier counts. These are checked independently of
	// the score: large counts events >= MediumMaxChars, very-large counts
	// events >= LargeMaxChars, so the sets overlap.
	MaxLargePastes     int
	MaxVeryLargePastes int
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		SmallMaxChars:      50,
		MediumMaxChars:     300,
		LargeMaxChars:      1000,
		SmallPenalty:       0,
		MediumPenalty:      1,
		LargePenalty:       5,
		VeryLargePenalty:   15,
		VerifyThreshold:    70,
		MaxLargePastes:     3,
		MaxVeryLargePastes: 1,
	}
}

// Composite weights. These are structural, not tuned per-deployment.
const (
	weightPaste       = 0.4
	weightActivity    = 0.3
	weightConsistency = 0.2
	weightDuration    = 0.1
)

// TierFor classifies a paste size into its tier.
func (p Params) TierFor(size int) PasteTier {
	switch {
	case size < p.SmallMaxChars:
		return TierSmall
	case size < p.MediumMaxChars:
		return TierMedium
	case size < p.LargeMaxChars:
		return TierLarge
	default:
		return TierVeryLarge
	}
}

func (p Params) tierPenalty(tier PasteTier) int {
	switch tier {
	case TierSmall:
		return p.SmallPenalty
	case TierMedium:
		return p.MediumPenalty
	case TierLarge:
		return p.LargePenalty
	default:
		return p.VeryLargePenalty
	}
}

// Calculate scores a finalized session. It never fails: degenerate inputs
// (zero duration) yield score 0 with an explanatory flag.
func Calculate(in Input, p Params) Output {
	if in.TotalDuration <= 0 {
		return Output{
			Score:      0,
			IsVerified: false,
			Flags:      []string{"No recorded duration"},
		}
	}

	out := Output{}

	pasteScore, pasteFlags := scorePastes(in, p)
	activityScore, activityFlags := scoreActivity(in)
	consistencyScore := scoreConsistency(in)
	durationScore := scoreDuration(in)

	out.Factors = Factors{
		PasteScore:       pasteScore,
		ActivityScore:    activityScore,
		ConsistencyScore: consistencyScore,
		DurationScore:    durationScore,
	}
	out.Flags = append(out.Flags, pasteFlags...)
	out.Flags = append(out.Flags, activityFlags...)

	out.Score = clamp(int(math.Round(
		float64(pasteScore)*weightPaste +
			float64(activityScore)*weightActivity +
			float64(consistencyScore)*weightConsistency +
			float64(durationScore)*weightDuration)))

	// Overlapping counts: a very-large paste is also counted as large.
	largeCount := lo.CountBy(in.PasteEvents, func(e PasteEvent) bool {
		return e.Size >= p.MediumMaxChars
	})
	veryLargeCount := lo.CountBy(in.PasteEvents, func(e PasteEvent) bool {
		return e.Size >= p.LargeMaxChars
	})

	out.IsVerified = out.Score >= p.VerifyThreshold &&
		largeCount <= p.MaxLargePastes &&
		veryLargeCount <= p.MaxVeryLargePastes

	if largeCount > p.MaxLargePastes {
		out.Flags = append(out.Flags, fmt.Sprintf("Large paste count %d exceeds cap %d", largeCount, p.MaxLargePastes))
	}
	if veryLargeCount > p.MaxVeryLargePastes {
		out.Flags = append(out.Flags, fmt.Sprintf("Very large paste count %d exceeds cap %d", veryLargeCount, p.MaxVeryLargePastes))
	}

	return out
}

// scorePastes starts at 100 and subtracts per-event tier penalties plus
// rate and volume penalties for heavy paste activity.
func scorePastes(in Input, p Params) (int, []string) {
	score := 100
	var flags []string

	for _, e := range in.PasteEvents {
		score -= p.tierPenalty(p.TierFor(e.Size))
	}

	largeCount := lo.CountBy(in.PasteEvents, func(e PasteEvent) bool {
		return e.Size >= p.MediumMaxChars
	})

	minutes := in.TotalDuration.Minutes()
	if minutes > 0 && largeCount > 0 {
		rate := float64(largeCount) / minutes
		if rate > 1 {
			score -= 10
			flags = append(flags, "High rate of large pastes")
		}
		if rate > 2 {
			score -= 5
		}
	}

	volume := lo.SumBy(in.PasteEvents, func(e PasteEvent) int { return e.Size })
	switch {
	case volume > 20000:
		score -= 15
	case volume > 10000:
		score -= 10
	case volume > 5000:
		score -= 5
	}
	if volume > 5000 {
		flags = append(flags, "High cumulative paste volume")
	}

	return clamp(score), flags
}

func scoreActivity(in Input) (int, []string) {
	score := 100
	var flags []string

	activeRatio := in.ActiveDuration.Seconds() / in.TotalDuration.Seconds()
	switch {
	case activeRatio < 0.2:
		score -= 30
		flags = append(flags, "Very low activity ratio")
	case activeRatio < 0.3:
		score -= 15
		flags = append(flags, "Low activity ratio")
	}

	if len(in.IdlePeriods) == 0 && in.TotalDuration > time.Hour {
		score -= 20
		flags = append(flags, "No natural breaks in long session")
	}

	if len(in.IdlePeriods) > 0 && activeRatio > 0.5 {
		score += 5
	}

	return clamp(score), flags
}

// scoreConsistency compares the frame count against the active duration,
// expecting roughly one frame per active second.
func scoreConsistency(in Input) int {
	if in.ActiveDuration <= 0 || in.FrameCount == 0 {
		return 0
	}

	ratio := float64(in.FrameCount) / in.ActiveDuration.Seconds()
	if ratio > 1.0 {
		ratio = 1.0
	}

	switch {
	case ratio >= 0.8:
		return 100
	case ratio >= 0.6:
		return 80
	case ratio >= 0.4:
		return 60
	case ratio >= 0.2:
		return 40
	default:
		return 20
	}
}

func scoreDuration(in Input) int {
	minutes := in.TotalDuration.Minutes()
	switch {
	case minutes < 5:
		return 40
	case minutes < 15:
		return 60
	case minutes < 30:
		return 80
	case minutes < 60:
		return 90
	default:
		return 100
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
