package rppg

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/banshee-data/pulse.report/internal/units"
)

// spectralEstimate reads the heart rate off the dominant in-band frequency
// of the conditioned trace. A parabola fitted through the peak bin and its
// neighbors recovers sub-bin accuracy, and a visible second harmonic earns a
// small confidence boost since real pulses carry one.
func spectralEstimate(sig []float64, fs float64, band Band) BpmCandidate {
	cand := BpmCandidate{Method: MethodSpectral}
	n := len(sig)
	if n < 4 || fs <= 0 {
		return cand
	}

	fft := fourier.NewFFT(n)
	spectrum := fft.Coefficients(nil, sig)

	freqStep := fs / float64(n)
	lo := int(math.Ceil(band.Low / freqStep))
	hi := int(math.Floor(band.High / freqStep))
	if lo < 1 {
		lo = 1
	}
	if hi > len(spectrum)-1 {
		hi = len(spectrum) - 1
	}
	if hi <= lo {
		return cand
	}

	mag := make([]float64, len(spectrum))
	for i, c := range spectrum {
		mag[i] = cmplx.Abs(c)
	}

	peak := lo
	for i := lo + 1; i <= hi; i++ {
		if mag[i] > mag[peak] {
			peak = i
		}
	}

	freq := float64(peak) * freqStep
	if peak > lo && peak < hi {
		// Parabola vertex through the peak and its neighbors.
		alpha, beta, gamma := mag[peak-1], mag[peak], mag[peak+1]
		denom := alpha - 2*beta + gamma
		if math.Abs(denom) > 1e-10 {
			freq += 0.5 * (alpha - gamma) / denom * freqStep
		}
	}

	var total float64
	for i := lo; i <= hi; i++ {
		total += mag[i]
	}
	confidence := 0.0
	if total > 0 {
		confidence = mag[peak] / total
	}

	// A second harmonic standing clear of the in-band noise floor supports
	// the fundamental.
	noiseFloor := medianOf(mag[lo : hi+1])
	harmonic := 2 * freq
	if harmonic <= band.High {
		hmag := 0.0
		for i := lo; i <= hi; i++ {
			f := float64(i) * freqStep
			if f >= harmonic-0.1 && f <= harmonic+0.1 && mag[i] > hmag {
				hmag = mag[i]
			}
		}
		if hmag > 2*noiseFloor {
			confidence *= 1.2
		}
	}

	cand.BPM = units.HzToBPM(freq)
	cand.Confidence = units.Clamp01(confidence)
	return cand
}
