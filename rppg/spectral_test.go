package rppg

import (
	"math"
	"testing"

	"github.com/banshee-data/pulse.report/internal/testutil"
)

func TestSpectralEstimateOnBin(t *testing.T) {
	// 1.25 Hz lands exactly on a bin at 360 samples / 30 fps.
	sig := testutil.Sinusoid(360, 30, 1.25, 1, 0)

	cand := spectralEstimate(sig, 30, Band{0.75, 2.5})

	if cand.Method != MethodSpectral {
		t.Errorf("expected method %q, got %q", MethodSpectral, cand.Method)
	}
	if math.Abs(cand.BPM-75) > 0.5 {
		t.Errorf("expected 75 BPM, got %.2f", cand.BPM)
	}
	if cand.Confidence < 0.6 {
		t.Errorf("expected high confidence for a pure tone, got %.3f", cand.Confidence)
	}
}

func TestSpectralEstimateOffBin(t *testing.T) {
	sig := testutil.Sinusoid(360, 30, 1.2, 1, 0.7)

	cand := spectralEstimate(sig, 30, Band{0.75, 2.5})

	if math.Abs(cand.BPM-72) > 2 {
		t.Errorf("expected 72 BPM, got %.2f", cand.BPM)
	}
	if cand.Confidence <= 0.15 {
		t.Errorf("expected usable confidence despite leakage, got %.3f", cand.Confidence)
	}
}

func TestSpectralEstimateInterpolatesBetweenBins(t *testing.T) {
	// 72.5 BPM sits exactly halfway between the 70 and 75 BPM bins; only
	// interpolation can land closer than 2.5 BPM.
	sig := testutil.Sinusoid(360, 30, 72.5/60, 1, 0)

	cand := spectralEstimate(sig, 30, Band{0.75, 2.5})

	if math.Abs(cand.BPM-72.5) > 1 {
		t.Errorf("expected interpolation near 72.5 BPM, got %.2f", cand.BPM)
	}
}

func TestSpectralEstimateIgnoresHarmonic(t *testing.T) {
	fund := testutil.Sinusoid(360, 30, 1.2, 1, 0)
	harm := testutil.Sinusoid(360, 30, 2.4, 0.5, 0.4)
	sig := make([]float64, len(fund))
	for i := range sig {
		sig[i] = fund[i] + harm[i]
	}

	cand := spectralEstimate(sig, 30, Band{0.75, 2.5})

	if math.Abs(cand.BPM-72) > 2 {
		t.Errorf("expected the fundamental at 72 BPM, got %.2f", cand.BPM)
	}
	if cand.Confidence <= 0.15 {
		t.Errorf("expected confidence above the floor, got %.3f", cand.Confidence)
	}
}

func TestSpectralEstimateDegenerate(t *testing.T) {
	if cand := spectralEstimate(make([]float64, 3), 30, Band{0.75, 2.5}); cand.BPM != 0 || cand.Confidence != 0 {
		t.Errorf("expected zero candidate for 3 samples, got %+v", cand)
	}
	if cand := spectralEstimate(testutil.Sinusoid(360, 30, 1.2, 1, 0), 0, Band{0.75, 2.5}); cand.BPM != 0 {
		t.Errorf("expected zero candidate for zero rate, got %+v", cand)
	}
	// A flat trace has no dominant bin; the confidence must gate it out.
	if cand := spectralEstimate(make([]float64, 360), 30, Band{0.75, 2.5}); cand.Confidence != 0 {
		t.Errorf("expected zero confidence for a flat trace, got %+v", cand)
	}
}
