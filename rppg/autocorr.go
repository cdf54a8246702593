package rppg

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/pulse.report/internal/units"
)

// autocorrEstimate reads the heart rate off the trace's self-similarity. The
// scan runs from short lags upward and settles on the first local peak that
// comes close to the strongest correlation in range; taking the global peak
// outright tends to lock onto double periods when the waveform has a strong
// dicrotic component.
func autocorrEstimate(sig []float64, fs float64, minBPM, maxBPM float64) BpmCandidate {
	cand := BpmCandidate{Method: MethodAutocorr}
	n := len(sig)
	if n < 4 || fs <= 0 {
		return cand
	}

	norm := normalizeChannel(sig)

	minLag := units.BPMToLag(maxBPM, fs)
	maxLag := units.BPMToLag(minBPM, fs)
	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= n || maxLag-minLag < 3 {
		return cand
	}

	r0 := floats.Dot(norm, norm)
	r := make([]float64, maxLag)
	for lag := minLag; lag < maxLag; lag++ {
		r[lag] = floats.Dot(norm[:n-lag], norm[lag:])
	}

	best := minLag
	for lag := minLag + 1; lag < maxLag; lag++ {
		if r[lag] > r[best] {
			best = lag
		}
	}

	chosen := best
	if r[best] > 0 {
		for lag := minLag + 1; lag < maxLag-1; lag++ {
			if r[lag] > r[lag-1] && r[lag] >= r[lag+1] && r[lag] >= 0.8*r[best] {
				chosen = lag
				break
			}
		}
	}

	cand.BPM = units.LagToBPM(chosen, fs)
	cand.Confidence = units.Clamp01((r[chosen]/(r0+1e-10) - 0.3) / 0.7)
	return cand
}
