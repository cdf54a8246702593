package rppg

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulse.report/internal/units"
)

// peaksEstimate reads the heart rate off the spacing of individual beats in
// the time domain. It needs at least three detected beats; the median
// spacing shrugs off one missed or doubled detection, and evenly spaced
// beats score high confidence.
func peaksEstimate(sig []float64, fs float64, minBPM, maxBPM float64) BpmCandidate {
	cand := BpmCandidate{Method: MethodPeaks}
	if len(sig) < 4 || fs <= 0 {
		return cand
	}

	minDistance := units.BPMToLag(maxBPM, fs)
	minProminence := 0.3 * stat.PopStdDev(sig, nil)

	peaks := findPeaks(sig, minDistance, minProminence)
	if len(peaks) < 3 {
		return cand
	}

	intervals := make([]float64, len(peaks)-1)
	for i := 1; i < len(peaks); i++ {
		intervals[i-1] = float64(peaks[i]-peaks[i-1]) / fs
	}

	cand.BPM = units.SecondsToBPM(medianOf(intervals))

	mean := stat.Mean(intervals, nil)
	cv := stat.PopStdDev(intervals, nil) / (mean + 1e-10)
	cand.Confidence = units.Clamp01(math.Exp(-3 * cv))
	return cand
}

// findPeaks locates strict local maxima, enforces a minimum spacing keeping
// taller peaks first, then drops peaks of insufficient prominence.
func findPeaks(sig []float64, minDistance int, minProminence float64) []int {
	var peaks []int
	for i := 1; i < len(sig)-1; i++ {
		if sig[i] > sig[i-1] && sig[i] > sig[i+1] {
			peaks = append(peaks, i)
		}
	}
	if minDistance > 1 {
		peaks = enforceDistance(sig, peaks, minDistance)
	}
	if minProminence > 0 {
		var kept []int
		for _, p := range peaks {
			if prominence(sig, p) >= minProminence {
				kept = append(kept, p)
			}
		}
		peaks = kept
	}
	return peaks
}

// enforceDistance keeps the tallest peaks, discarding any within minDistance
// samples of an already kept one.
func enforceDistance(sig []float64, peaks []int, minDistance int) []int {
	order := make([]int, len(peaks))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return sig[peaks[order[a]]] > sig[peaks[order[b]]]
	})

	removed := make([]bool, len(peaks))
	for _, idx := range order {
		if removed[idx] {
			continue
		}
		for j := idx - 1; j >= 0 && peaks[idx]-peaks[j] < minDistance; j-- {
			removed[j] = true
		}
		for j := idx + 1; j < len(peaks) && peaks[j]-peaks[idx] < minDistance; j++ {
			removed[j] = true
		}
	}

	var kept []int
	for i, p := range peaks {
		if !removed[i] {
			kept = append(kept, p)
		}
	}
	return kept
}

// prominence measures how far a peak stands above the higher of the two
// valleys separating it from taller terrain on either side.
func prominence(sig []float64, peak int) float64 {
	h := sig[peak]

	leftMin := h
	for i := peak - 1; i >= 0; i-- {
		if sig[i] > h {
			break
		}
		if sig[i] < leftMin {
			leftMin = sig[i]
		}
	}
	rightMin := h
	for i := peak + 1; i < len(sig); i++ {
		if sig[i] > h {
			break
		}
		if sig[i] < rightMin {
			rightMin = sig[i]
		}
	}
	return h - math.Max(leftMin, rightMin)
}
