package rppg

import (
	"math"
	"testing"

	"github.com/banshee-data/pulse.report/internal/testutil"
)

func TestAutocorrEstimateExactLag(t *testing.T) {
	// 1.2 Hz at 30 fps repeats every 25 samples.
	sig := testutil.Sinusoid(360, 30, 1.2, 1, 0)

	cand := autocorrEstimate(sig, 30, 45, 150)

	if cand.Method != MethodAutocorr {
		t.Errorf("expected method %q, got %q", MethodAutocorr, cand.Method)
	}
	if math.Abs(cand.BPM-72) > 0.01 {
		t.Errorf("expected 72 BPM, got %.3f", cand.BPM)
	}
	if cand.Confidence < 0.6 {
		t.Errorf("expected strong self-similarity, got confidence %.3f", cand.Confidence)
	}
}

func TestAutocorrEstimateSlowRate(t *testing.T) {
	sig := testutil.Sinusoid(360, 30, 1.0, 1, 0.5)

	cand := autocorrEstimate(sig, 30, 45, 150)

	if math.Abs(cand.BPM-60) > 0.01 {
		t.Errorf("expected 60 BPM, got %.3f", cand.BPM)
	}
}

func TestAutocorrEstimatePrefersFundamental(t *testing.T) {
	// Amplitude modulation at half the pulse rate makes every second beat
	// stronger, so the correlation at the double period edges out the single
	// period. The scan must still settle on the first peak.
	fs := 30.0
	n := 360
	sig := make([]float64, n)
	for i := range sig {
		ts := float64(i) / fs
		sig[i] = (1 + 0.4*math.Cos(2*math.Pi*0.6*ts)) * math.Sin(2*math.Pi*1.2*ts)
	}

	cand := autocorrEstimate(sig, fs, 30, 150)

	if math.Abs(cand.BPM-72) > 1 {
		t.Errorf("expected the fundamental at 72 BPM, got %.2f", cand.BPM)
	}
	if cand.Confidence < 0.5 {
		t.Errorf("expected confident estimate, got %.3f", cand.Confidence)
	}
}

func TestAutocorrEstimateFlatTrace(t *testing.T) {
	cand := autocorrEstimate(make([]float64, 360), 30, 45, 150)

	if cand.Confidence != 0 {
		t.Errorf("expected zero confidence for a flat trace, got %.3f", cand.Confidence)
	}
}

func TestAutocorrEstimateDegenerate(t *testing.T) {
	if cand := autocorrEstimate(make([]float64, 3), 30, 45, 150); cand.BPM != 0 || cand.Confidence != 0 {
		t.Errorf("expected zero candidate for 3 samples, got %+v", cand)
	}
	// The slowest trackable lag must fit inside the window.
	if cand := autocorrEstimate(testutil.Sinusoid(30, 30, 1.2, 1, 0), 30, 45, 150); cand.BPM != 0 {
		t.Errorf("expected zero candidate when the window cannot hold a beat, got %+v", cand)
	}
}
