package verify

import (
	"reflect"
	"testing"
	"time"
)

// cleanInput returns a long, active session with no pastes that scores
// well on every factor.
func cleanInput() Input {
	start := time.Unix(1700000000, 0)
	return Input{
		TotalDuration:  90 * time.Minute,
		ActiveDuration: 80 * time.Minute,
		FrameCount:     80 * 60, // one frame per active second
		IdlePeriods: []IdlePeriod{
			{Start: start, End: start.Add(5 * time.Minute), Duration: 5 * time.Minute},
		},
	}
}

func TestCalculateCleanSession(t *testing.T) {
	out := Calculate(cleanInput(), DefaultParams())

	if out.Factors.PasteScore != 100 {
		t.Errorf("paste score = %d, want 100", out.Factors.PasteScore)
	}
	if out.Factors.ActivityScore != 100 {
		t.Errorf("activity score = %d, want 100", out.Factors.ActivityScore)
	}
	if out.Factors.ConsistencyScore != 100 {
		t.Errorf("consistency score = %d, want 100", out.Factors.ConsistencyScore)
	}
	if out.Factors.DurationScore != 100 {
		t.Errorf("duration score = %d, want 100", out.Factors.DurationScore)
	}
	if out.Score != 100 {
		t.Errorf("score = %d, want 100", out.Score)
	}
	if !out.IsVerified {
		t.Error("clean session should be verified")
	}
}

func TestCalculateDeterministic(t *testing.T) {
	in := cleanInput()
	in.PasteEvents = []PasteEvent{{Size: 400}, {Size: 1200}, {Size: 20}}

	a := Calculate(in, DefaultParams())
	b := Calculate(in, DefaultParams())

	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical inputs produced different outputs:\n%+v\n%+v", a, b)
	}
}

func TestPasteScoreSingleVeryLarge(t *testing.T) {
	in := cleanInput()
	in.PasteEvents = []PasteEvent{{Size: 1200}}

	out := Calculate(in, DefaultParams())

	// One very_large paste costs exactly its tier penalty of 15.
	if out.Factors.PasteScore != 85 {
		t.Errorf("paste score = %d, want 85", out.Factors.PasteScore)
	}
	// veryLargePasteCount = 1 is at the cap, not over it.
	if !out.IsVerified {
		t.Error("one very_large paste at the cap should not disqualify")
	}
}

func TestPasteTierPenalties(t *testing.T) {
	p := DefaultParams()
	cases := []struct {
		size    int
		tier    PasteTier
		penalty int
	}{
		{0, TierSmall, 0},
		{49, TierSmall, 0},
		{50, TierMedium, 1},
		{299, TierMedium, 1},
		{300, TierLarge, 5},
		{999, TierLarge, 5},
		{1000, TierVeryLarge, 15},
		{50000, TierVeryLarge, 15},
	}

	for _, tc := range cases {
		if got := p.TierFor(tc.size); got != tc.tier {
			t.Errorf("TierFor(%d) = %s, want %s", tc.size, got, tc.tier)
		}
		if got := p.tierPenalty(p.TierFor(tc.size)); got != tc.penalty {
			t.Errorf("penalty for size %d = %d, want %d", tc.size, got, tc.penalty)
		}
	}
}

func TestPasteRatePenalty(t *testing.T) {
	in := cleanInput()
	in.TotalDuration = 2 * time.Minute
	in.ActiveDuration = 2 * time.Minute
	in.FrameCount = 120

	// Three large pastes in two minutes: rate 1.5/min, one step over.
	in.PasteEvents = []PasteEvent{{Size: 400}, {Size: 400}, {Size: 400}}
	out := Calculate(in, DefaultParams())
	if want := 100 - 3*5 - 10; out.Factors.PasteScore != want {
		t.Errorf("paste score = %d, want %d", out.Factors.PasteScore, want)
	}

	// Five large pastes: rate 2.5/min, both steps. -15 cumulative.
	in.PasteEvents = append(in.PasteEvents, PasteEvent{Size: 400}, PasteEvent{Size: 400})
	out = Calculate(in, DefaultParams())
	if want := 100 - 5*5 - 10 - 5; out.Factors.PasteScore != want {
		t.Errorf("paste score = %d, want %d", out.Factors.PasteScore, want)
	}
}

func TestPasteVolumePenalty(t *testing.T) {
	cases := []struct {
		volume int
		want   int
	}{
		{4000, 0},
		{6000, 5},
		{12000, 10},
		{25000, 15},
	}

	for _, tc := range cases {
		in := cleanInput()
		// Spread the volume across small-tier events so only the volume
		// penalty applies (49 chars each stays in the 0-penalty tier).
		for v := tc.volume; v > 0; v -= 49 {
			size := 49
			if v < size {
				size = v
			}
			in.PasteEvents = append(in.PasteEvents, PasteEvent{Size: size})
		}
		out := Calculate(in, DefaultParams())
		if got := 100 - out.Factors.PasteScore; got != tc.want {
			t.Errorf("volume %d: penalty = %d, want %d", tc.volume, got, tc.want)
		}
	}
}

func TestVerificationThresholdCoupling(t *testing.T) {
	in := cleanInput()
	out := Calculate(in, DefaultParams())
	if out.Score < 70 || !out.IsVerified {
		t.Fatalf("baseline session should verify (score %d)", out.Score)
	}

	// Five large pastes over a long session keep the weighted score high
	// but blow the large-paste cap of 3.
	for i := 0; i < 5; i++ {
		in.PasteEvents = append(in.PasteEvents, PasteEvent{
			Timestamp: time.Unix(1700000000+int64(i)*600, 0),
			Size:      400,
		})
	}
	out = Calculate(in, DefaultParams())
	if out.Score < 70 {
		t.Fatalf("expected score >= 70 despite pastes, got %d", out.Score)
	}
	if out.IsVerified {
		t.Error("largePasteCount over cap must disqualify even with score >= 70")
	}
}

func TestOverlappingPasteCounts(t *testing.T) {
	// Two very_large pastes: veryLargeCount=2 exceeds its cap of 1, and
	// both events also count toward largeCount.
	in := cleanInput()
	in.PasteEvents = []PasteEvent{{Size: 1500}, {Size: 2500}}

	out := Calculate(in, DefaultParams())
	if out.IsVerified {
		t.Error("two very_large pastes must disqualify")
	}
}

func TestActivityScore(t *testing.T) {
	in := cleanInput()

	// Low activity ratio: 25% active.
	in.ActiveDuration = in.TotalDuration / 4
	in.FrameCount = int(in.ActiveDuration.Seconds())
	out := Calculate(in, DefaultParams())
	if out.Factors.ActivityScore != 85 {
		t.Errorf("activity score at ratio 0.25 = %d, want 85", out.Factors.ActivityScore)
	}

	// Very low activity ratio: 10% active.
	in.ActiveDuration = in.TotalDuration / 10
	in.FrameCount = int(in.ActiveDuration.Seconds())
	out = Calculate(in, DefaultParams())
	if out.Factors.ActivityScore != 70 {
		t.Errorf("activity score at ratio 0.1 = %d, want 70", out.Factors.ActivityScore)
	}

	// No idle periods over a long session reads as unnaturally continuous.
	in = cleanInput()
	in.IdlePeriods = nil
	out = Calculate(in, DefaultParams())
	if out.Factors.ActivityScore != 80 {
		t.Errorf("activity score with no breaks = %d, want 80", out.Factors.ActivityScore)
	}
}

func TestConsistencyBands(t *testing.T) {
	cases := []struct {
		frames int
		want   int
	}{
		{600, 100}, // ratio 1.0
		{480, 100}, // 0.8
		{420, 80},  // 0.7
		{300, 60},  // 0.5
		{150, 40},  // 0.25
		{30, 20},   // 0.05
		{0, 0},
	}

	for _, tc := range cases {
		in := Input{
			TotalDuration:  10 * time.Minute,
			ActiveDuration: 10 * time.Minute,
			FrameCount:     tc.frames,
		}
		if got := scoreConsistency(in); got != tc.want {
			t.Errorf("frames %d: consistency = %d, want %d", tc.frames, got, tc.want)
		}
	}
}

func TestDurationBands(t *testing.T) {
	cases := []struct {
		minutes int
		want    int
	}{
		{2, 40},
		{10, 60},
		{20, 80},
		{45, 90},
		{90, 100},
	}

	for _, tc := range cases {
		in := Input{TotalDuration: time.Duration(tc.minutes) * time.Minute}
		if got := scoreDuration(in); got != tc.want {
			t.Errorf("%d minutes: duration score = %d, want %d", tc.minutes, got, tc.want)
		}
	}
}

func TestZeroDuration(t *testing.T) {
	out := Calculate(Input{}, DefaultParams())

	if out.Score != 0 {
		t.Errorf("score = %d, want 0", out.Score)
	}
	if out.IsVerified {
		t.Error("zero-duration session must not verify")
	}
	if len(out.Flags) != 1 || out.Flags[0] != "No recorded duration" {
		t.Errorf("flags = %v, want [No recorded duration]", out.Flags)
	}
}
