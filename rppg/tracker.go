package rppg

import (
	"math"
	"time"

	"github.com/gammazero/deque"
	"github.com/google/uuid"

	"github.com/banshee-data/pulse.report/internal/monitoring"
	"github.com/banshee-data/pulse.report/internal/units"
)

// TrackerState is the lifecycle state of the consistency tracker.
type TrackerState string

const (
	StateWarmingUp TrackerState = "warming_up" // accumulating history, estimates pass through
	StateTracking  TrackerState = "tracking"   // enough history to police consistency
)

const (
	// historyAdmissionFloor keeps junk windows out of the reference
	// history while still publishing them.
	historyAdmissionFloor = 0.2

	// motionPenalty discounts estimates taken during detected motion.
	motionPenalty = 0.7

	// foldPenalty is the small discount on estimates corrected from a
	// harmonic; the fold is a repair, not a clean reading.
	foldPenalty = 0.9

	// adaptiveBandMarginBPM is the half-width of the narrowed search band
	// around the tracked median.
	adaptiveBandMarginBPM = 20.0

	// referenceSpan is how far back the consistency reference looks.
	referenceSpan = 5 * time.Second
)

// consistencyTracker smooths fused estimates over time. It corrects harmonic
// jumps toward the tracked rate, discounts outliers and motion-corrupted
// readings, and publishes an exponentially smoothed BPM once estimates start
// flowing. Not safe for concurrent use; the engine serializes access.
type consistencyTracker struct {
	cfg       Config
	sessionID string
	state     TrackerState

	history    *deque.Deque[BpmEstimate]
	maxEntries int

	smoothed    float64
	hasSmoothed bool
}

func newConsistencyTracker(cfg Config) *consistencyTracker {
	maxEntries := int(cfg.HistorySeconds*cfg.FrameRateHint + 0.5)
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &consistencyTracker{
		cfg:        cfg,
		sessionID:  uuid.New().String(),
		state:      StateWarmingUp,
		history:    deque.New[BpmEstimate](),
		maxEntries: maxEntries,
	}
}

// Submit folds one fused estimate into the track and returns the adjusted
// estimate to publish. Zero-valued estimates pass through untouched so a
// failed window cannot disturb the track.
func (t *consistencyTracker) Submit(e BpmEstimate, motion bool) BpmEstimate {
	if e.BPM <= 0 {
		return t.publish(e)
	}

	if ref, ok := t.reference(e.At); ok {
		if folded, wasHarmonic := foldHarmonic(e.BPM, ref, t.cfg.HarmonicTolerance); wasHarmonic {
			monitoring.Logf("[ConsistencyTracker] folded harmonic %.1f -> %.1f BPM (tracking %.1f)", e.BPM, folded, ref)
			e.BPM = folded
			e.Confidence *= foldPenalty
		}
		deviation := math.Abs(e.BPM - ref)
		e.Confidence *= gradedPenalty(deviation, t.cfg.ConsistencyToleranceBPM)
	}

	if motion {
		e.Confidence *= motionPenalty
	}
	e.Confidence = units.Clamp01(e.Confidence)

	if e.Confidence > historyAdmissionFloor {
		t.admit(e)
	}
	t.updateState()
	return t.publish(e)
}

func (t *consistencyTracker) admit(e BpmEstimate) {
	t.history.PushBack(e)
	horizon := time.Duration(t.cfg.HistorySeconds * float64(time.Second))
	for t.history.Len() > 0 && e.At.Sub(t.history.Front().At) > horizon {
		t.history.PopFront()
	}
	for t.history.Len() > t.maxEntries {
		t.history.PopFront()
	}

	if t.hasSmoothed {
		a := t.cfg.SmoothingAlpha
		t.smoothed = a*e.BPM + (1-a)*t.smoothed
	} else {
		t.smoothed = e.BPM
		t.hasSmoothed = true
	}
}

func (t *consistencyTracker) updateState() {
	if t.state == StateTracking {
		return
	}
	if t.history.Len() < t.cfg.WarmupMinEstimates {
		return
	}
	span := t.history.Back().At.Sub(t.history.Front().At)
	if span.Seconds() >= t.cfg.WarmupSeconds {
		t.state = StateTracking
		monitoring.Logf("[ConsistencyTracker] session %s tracking after %d estimates over %.1fs",
			t.sessionID, t.history.Len(), span.Seconds())
	}
}

// publish swaps the estimate's BPM for the smoothed track value once one
// exists; confidence stays the current window's own.
func (t *consistencyTracker) publish(e BpmEstimate) BpmEstimate {
	if t.hasSmoothed {
		e.BPM = t.smoothed
	}
	return e
}

// reference is the median of recently accepted estimates: those within the
// last five seconds, or the last five entries when the window is sparse. It
// stays silent until five estimates have been admitted.
func (t *consistencyTracker) reference(at time.Time) (float64, bool) {
	n := t.history.Len()
	if n < 5 {
		return 0, false
	}

	var recent []float64
	for i := n - 1; i >= 0; i-- {
		est := t.history.At(i)
		if at.Sub(est.At) > referenceSpan {
			break
		}
		recent = append(recent, est.BPM)
	}
	if len(recent) < 5 {
		recent = recent[:0]
		for i := n - 5; i < n; i++ {
			recent = append(recent, t.history.At(i).BPM)
		}
	}
	return medianOf(recent), true
}

// adaptiveBand narrows the search band around the tracked median once the
// history is deep enough, the way a locked-on reader stops hunting the full
// range. The band never leaves the configured limits.
func (t *consistencyTracker) adaptiveBand() (Band, bool) {
	if t.history.Len() <= 5 {
		return Band{}, false
	}
	bpms := make([]float64, t.history.Len())
	for i := range bpms {
		bpms[i] = t.history.At(i).BPM
	}
	med := medianOf(bpms)
	return Band{
		Low:  math.Max(t.cfg.MinBPM, med-adaptiveBandMarginBPM) / 60.0,
		High: math.Min(t.cfg.MaxBPM, med+adaptiveBandMarginBPM) / 60.0,
	}, true
}

// State reports whether the tracker is still warming up.
func (t *consistencyTracker) State() TrackerState {
	return t.state
}

// History returns a copy of the accepted estimates, oldest first.
func (t *consistencyTracker) History() []BpmEstimate {
	out := make([]BpmEstimate, t.history.Len())
	for i := range out {
		out[i] = t.history.At(i)
	}
	return out
}

// SessionID identifies this tracking session in logs and diagnostics.
func (t *consistencyTracker) SessionID() string {
	return t.sessionID
}

// Reset clears the track for a new session, issuing a fresh session ID.
func (t *consistencyTracker) Reset() {
	t.sessionID = uuid.New().String()
	t.state = StateWarmingUp
	t.history.Clear()
	t.smoothed = 0
	t.hasSmoothed = false
}

// foldHarmonic maps an estimate sitting at double or half the reference back
// to the fundamental.
func foldHarmonic(bpm, ref, rel float64) (float64, bool) {
	if ref <= 0 {
		return bpm, false
	}
	if math.Abs(bpm-2*ref) <= rel*2*ref {
		return bpm / 2, true
	}
	if math.Abs(bpm-0.5*ref) <= rel*0.5*ref {
		return bpm * 2, true
	}
	return bpm, false
}

// gradedPenalty discounts estimates by how far they stray from the tracked
// reference: none within tolerance, then progressively harsher steps.
func gradedPenalty(deviation, tol float64) float64 {
	switch {
	case deviation > 2*tol:
		return 0.5
	case deviation > 1.5*tol:
		return 0.75
	case deviation > tol:
		return 0.9
	default:
		return 1.0
	}
}
