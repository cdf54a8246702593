package rppg

import (
	"math"
	"testing"

	"github.com/banshee-data/pulse.report/internal/testutil"
)

func TestEstimateCleanSinusoid(t *testing.T) {
	est := newBpmEstimator(DefaultConfig())
	sig := testutil.Sinusoid(360, 30, 1.2, 1, 0.2)

	got, cands := est.Estimate(sig, 30)

	if math.Abs(got.BPM-72) > 2 {
		t.Errorf("expected 72 BPM, got %.2f", got.BPM)
	}
	if got.Confidence < 0.5 {
		t.Errorf("expected agreeing methods to score above 0.5, got %.3f", got.Confidence)
	}
	if len(cands) != 3 {
		t.Fatalf("expected all 3 candidates reported, got %d", len(cands))
	}
	for _, c := range cands {
		if math.Abs(c.BPM-72) > 2 {
			t.Errorf("method %s read %.2f BPM, expected near 72", c.Method, c.BPM)
		}
	}
}

func TestEstimateFlatTrace(t *testing.T) {
	est := newBpmEstimator(DefaultConfig())

	got, cands := est.Estimate(make([]float64, 360), 30)

	if got.BPM != 0 || got.Confidence != 0 {
		t.Errorf("expected zero estimate for a flat trace, got %+v", got)
	}
	if len(cands) != 3 {
		t.Errorf("expected diagnostics for all 3 methods, got %d", len(cands))
	}
}

func TestEstimateShrinksHarmonicVote(t *testing.T) {
	// A second harmonic stronger than the fundamental pulls the spectral
	// method to 144 while autocorrelation and beat spacing stay at 72. The
	// outvoted harmonic reading keeps only a shrunken say.
	fs := 30.0
	sig := make([]float64, 360)
	for i := range sig {
		ts := float64(i) / fs
		sig[i] = math.Sin(2*math.Pi*1.2*ts) + 1.3*math.Sin(2*math.Pi*2.4*ts)
	}

	est := newBpmEstimator(DefaultConfig())
	got, cands := est.Estimate(sig, fs)

	byMethod := map[Method]BpmCandidate{}
	for _, c := range cands {
		byMethod[c.Method] = c
	}
	if c := byMethod[MethodSpectral]; math.Abs(c.BPM-144) > 4 {
		t.Errorf("expected the spectrum to read the harmonic near 144, got %.2f", c.BPM)
	}
	if c := byMethod[MethodAutocorr]; math.Abs(c.BPM-72) > 1 {
		t.Errorf("expected autocorrelation to hold 72, got %.2f", c.BPM)
	}
	if c := byMethod[MethodPeaks]; math.Abs(c.BPM-72) > 1 {
		t.Errorf("expected beat spacing to hold 72, got %.2f", c.BPM)
	}

	// An unshrunken fusion of these votes would land above 90.
	if got.BPM < 70 || got.BPM > 88 {
		t.Errorf("expected the fused rate pulled toward 72, got %.2f", got.BPM)
	}
}

func TestReliabilityOf(t *testing.T) {
	if got := reliabilityOf(MethodSpectral); got != spectralReliability {
		t.Errorf("spectral: expected %g, got %g", spectralReliability, got)
	}
	if got := reliabilityOf(MethodAutocorr); got != autocorrReliability {
		t.Errorf("autocorr: expected %g, got %g", autocorrReliability, got)
	}
	if got := reliabilityOf(MethodPeaks); got != peaksReliability {
		t.Errorf("peaks: expected %g, got %g", peaksReliability, got)
	}
}

func TestIsHarmonicOf(t *testing.T) {
	tests := []struct {
		name     string
		bpm, ref float64
		want     bool
	}{
		{"exact double", 144, 72, true},
		{"near double", 140, 72, true},
		{"exact half", 36, 72, true},
		{"unrelated", 100, 72, false},
		{"same rate", 72, 72, false},
		{"zero reference", 72, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHarmonicOf(tt.bpm, tt.ref, 0.15); got != tt.want {
				t.Errorf("isHarmonicOf(%g, %g) = %v, want %v", tt.bpm, tt.ref, got, tt.want)
			}
		})
	}
}

func TestAllPairsDisagree(t *testing.T) {
	mk := func(bpms ...float64) []BpmCandidate {
		out := make([]BpmCandidate, len(bpms))
		for i, b := range bpms {
			out[i] = BpmCandidate{BPM: b}
		}
		return out
	}

	if !allPairsDisagree(mk(72, 100, 144), 10) {
		t.Error("expected spread candidates to disagree")
	}
	if allPairsDisagree(mk(72, 75, 144), 10) {
		t.Error("expected the close pair to count as agreement")
	}
	if allPairsDisagree(mk(72), 10) {
		t.Error("a single candidate cannot disagree")
	}
}

func TestMedianOf(t *testing.T) {
	if got := medianOf([]float64{3, 1, 2}); got != 2 {
		t.Errorf("odd count: expected 2, got %g", got)
	}
	if got := medianOf([]float64{4, 1, 3, 2}); got != 2.5 {
		t.Errorf("even count: expected 2.5, got %g", got)
	}
	if got := medianOf(nil); got != 0 {
		t.Errorf("empty: expected 0, got %g", got)
	}

	xs := []float64{5, 1, 3}
	medianOf(xs)
	if xs[0] != 5 || xs[1] != 1 || xs[2] != 3 {
		t.Errorf("input reordered to %v", xs)
	}
}
