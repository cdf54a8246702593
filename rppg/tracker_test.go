package rppg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedSteady submits n estimates one second apart and returns the timestamp
// after the last one.
func feedSteady(tr *consistencyTracker, n int, bpm, conf float64, start time.Time) time.Time {
	at := start
	for i := 0; i < n; i++ {
		tr.Submit(BpmEstimate{BPM: bpm, Confidence: conf, At: at}, false)
		at = at.Add(time.Second)
	}
	return at
}

// TestConsistencyTrackerWarmup tests the warm-up to tracking transition.
func TestConsistencyTrackerWarmup(t *testing.T) {
	t.Parallel()

	t.Run("starts warming up with a session id", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		assert.Equal(t, StateWarmingUp, tr.State())
		assert.NotEmpty(t, tr.SessionID())
	})

	t.Run("passes estimates through while warming", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		got := tr.Submit(BpmEstimate{BPM: 72, Confidence: 0.9, At: time.Unix(0, 0)}, false)
		assert.InDelta(t, 72, got.BPM, 1e-9)
		assert.InDelta(t, 0.9, got.Confidence, 1e-9)
		assert.Equal(t, StateWarmingUp, tr.State())
	})

	t.Run("transitions once history is deep and long enough", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		feedSteady(tr, 10, 72, 0.9, time.Unix(0, 0))
		assert.Equal(t, StateTracking, tr.State())
	})

	t.Run("stays warming when the span is too short", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		at := time.Unix(0, 0)
		for i := 0; i < 10; i++ {
			tr.Submit(BpmEstimate{BPM: 72, Confidence: 0.9, At: at}, false)
			at = at.Add(500 * time.Millisecond)
		}
		assert.Equal(t, StateWarmingUp, tr.State())
	})

	t.Run("distinct sessions get distinct ids", func(t *testing.T) {
		t.Parallel()
		a := newConsistencyTracker(DefaultConfig())
		b := newConsistencyTracker(DefaultConfig())

		assert.NotEqual(t, a.SessionID(), b.SessionID())
	})
}

// TestConsistencyTrackerHarmonicFold tests correction of double and half
// period jumps against the tracked reference.
func TestConsistencyTrackerHarmonicFold(t *testing.T) {
	t.Parallel()

	t.Run("folds a double back to the fundamental", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		at := feedSteady(tr, 6, 72, 0.9, time.Unix(0, 0))

		got := tr.Submit(BpmEstimate{BPM: 144, Confidence: 0.9, At: at}, false)
		assert.InDelta(t, 72, got.BPM, 0.01)
		assert.InDelta(t, 0.81, got.Confidence, 0.001)
	})

	t.Run("folds a half up to the fundamental", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		at := feedSteady(tr, 6, 72, 0.9, time.Unix(0, 0))

		got := tr.Submit(BpmEstimate{BPM: 36, Confidence: 0.9, At: at}, false)
		assert.InDelta(t, 72, got.BPM, 0.01)
		assert.InDelta(t, 0.81, got.Confidence, 0.001)
	})

	t.Run("needs history before folding", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		got := tr.Submit(BpmEstimate{BPM: 144, Confidence: 0.9, At: time.Unix(0, 0)}, false)
		assert.InDelta(t, 144, got.BPM, 0.01)
	})
}

// TestConsistencyTrackerPenalties tests confidence discounts for outliers and
// motion.
func TestConsistencyTrackerPenalties(t *testing.T) {
	t.Parallel()

	t.Run("halves confidence far from the reference", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		at := feedSteady(tr, 6, 72, 0.9, time.Unix(0, 0))

		// 95 BPM is 23 away from the tracked 72, past twice the tolerance.
		got := tr.Submit(BpmEstimate{BPM: 95, Confidence: 0.8, At: at}, false)
		assert.InDelta(t, 0.4, got.Confidence, 0.001)
		assert.InDelta(t, 77.75, got.BPM, 0.01) // smoothed toward 95 by alpha
	})

	t.Run("mild deviation costs little", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		at := feedSteady(tr, 6, 72, 0.9, time.Unix(0, 0))

		got := tr.Submit(BpmEstimate{BPM: 85, Confidence: 0.8, At: at}, false)
		assert.InDelta(t, 0.72, got.Confidence, 0.001)
	})

	t.Run("discounts readings taken during motion", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		got := tr.Submit(BpmEstimate{BPM: 72, Confidence: 0.6, At: time.Unix(0, 0)}, true)
		assert.InDelta(t, 0.42, got.Confidence, 0.001)
	})
}

// TestConsistencyTrackerHistory tests admission and eviction of the reference
// history.
func TestConsistencyTrackerHistory(t *testing.T) {
	t.Parallel()

	t.Run("keeps low-confidence windows out of history", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		got := tr.Submit(BpmEstimate{BPM: 72, Confidence: 0.15, At: time.Unix(0, 0)}, false)
		assert.InDelta(t, 72, got.BPM, 1e-9) // still published
		assert.Empty(t, tr.History())

		tr.Submit(BpmEstimate{BPM: 72, Confidence: 0.5, At: time.Unix(1, 0)}, false)
		assert.Len(t, tr.History(), 1)
	})

	t.Run("evicts history past the horizon", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		feedSteady(tr, 60, 72, 0.9, time.Unix(0, 0))
		n := len(tr.History())
		assert.Less(t, n, 60)
		assert.GreaterOrEqual(t, n, 40)
	})

	t.Run("zero estimates pass through without touching history", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())

		got := tr.Submit(BpmEstimate{At: time.Unix(0, 0)}, true)
		assert.Zero(t, got.BPM)
		assert.Zero(t, got.Confidence)
		assert.Empty(t, tr.History())
	})

	t.Run("zero estimates still publish the smoothed rate", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		at := feedSteady(tr, 6, 72, 0.9, time.Unix(0, 0))

		got := tr.Submit(BpmEstimate{At: at}, false)
		assert.InDelta(t, 72, got.BPM, 0.01)
		assert.Zero(t, got.Confidence)
	})
}

// TestConsistencyTrackerAdaptiveBand tests narrowing of the search band
// around the tracked median.
func TestConsistencyTrackerAdaptiveBand(t *testing.T) {
	t.Parallel()

	t.Run("silent until history is deep enough", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		feedSteady(tr, 5, 72, 0.9, time.Unix(0, 0))

		_, ok := tr.adaptiveBand()
		assert.False(t, ok)
	})

	t.Run("narrows around the median", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		feedSteady(tr, 6, 72, 0.9, time.Unix(0, 0))

		band, ok := tr.adaptiveBand()
		require.True(t, ok)
		assert.InDelta(t, 52.0/60, band.Low, 1e-9)
		assert.InDelta(t, 92.0/60, band.High, 1e-9)
	})

	t.Run("never leaves the configured limits", func(t *testing.T) {
		t.Parallel()
		tr := newConsistencyTracker(DefaultConfig())
		feedSteady(tr, 6, 50, 0.9, time.Unix(0, 0))

		band, ok := tr.adaptiveBand()
		require.True(t, ok)
		assert.InDelta(t, 45.0/60, band.Low, 1e-9) // clipped at the floor
		assert.InDelta(t, 70.0/60, band.High, 1e-9)
	})
}

// TestConsistencyTrackerReset tests that a reset starts a clean session.
func TestConsistencyTrackerReset(t *testing.T) {
	t.Parallel()

	tr := newConsistencyTracker(DefaultConfig())
	feedSteady(tr, 10, 72, 0.9, time.Unix(0, 0))
	require.Equal(t, StateTracking, tr.State())
	oldSession := tr.SessionID()

	tr.Reset()

	assert.Equal(t, StateWarmingUp, tr.State())
	assert.NotEqual(t, oldSession, tr.SessionID())
	assert.Empty(t, tr.History())

	// The old smoothed rate must not leak into the new session.
	got := tr.Submit(BpmEstimate{BPM: 80, Confidence: 0.5, At: time.Unix(100, 0)}, false)
	assert.InDelta(t, 80, got.BPM, 1e-9)
}

// TestFoldHarmonic tests the double and half period mapping.
func TestFoldHarmonic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		bpm    float64
		ref    float64
		want   float64
		folded bool
	}{
		{"exact double", 144, 72, 72, true},
		{"near double", 160, 72, 80, true},
		{"exact half", 36, 72, 72, true},
		{"unrelated", 100, 72, 100, false},
		{"no reference", 144, 0, 144, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, folded := foldHarmonic(tt.bpm, tt.ref, 0.15)
			assert.Equal(t, tt.folded, folded)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// TestGradedPenalty tests the stepped deviation discount.
func TestGradedPenalty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, gradedPenalty(5, 10))
	assert.Equal(t, 0.9, gradedPenalty(12, 10))
	assert.Equal(t, 0.75, gradedPenalty(16, 10))
	assert.Equal(t, 0.5, gradedPenalty(25, 10))
}
