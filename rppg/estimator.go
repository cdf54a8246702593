package rppg

import (
	"math"
	"sort"
	"time"

	"github.com/banshee-data/pulse.report/internal/units"
)

// Method identifies one of the estimation strategies.
type Method string

const (
	MethodSpectral Method = "spectral"
	MethodAutocorr Method = "autocorr"
	MethodPeaks    Method = "peaks"
)

// BpmCandidate is a single method's reading of a conditioned trace. A zero
// BPM means the method could not produce a plausible value.
type BpmCandidate struct {
	Method     Method
	BPM        float64
	Confidence float64
}

// BpmEstimate is a fused heart-rate reading stamped with the frame time that
// produced it.
type BpmEstimate struct {
	BPM        float64
	Confidence float64
	At         time.Time
}

const (
	// Reliability multipliers weight each method's vote. The spectrum is
	// the steadiest reader on clean signals, autocorrelation the most
	// easily fooled by double periods.
	spectralReliability = 1.5
	autocorrReliability = 0.8
	peaksReliability    = 1.0

	// candidateFloor drops methods whose own confidence is noise-level.
	candidateFloor = 0.15

	// harmonicDownweight shrinks the vote of a candidate sitting at twice
	// or half the consensus of the other methods.
	harmonicDownweight = 0.25

	// disagreementCap bounds confidence when no two methods agree.
	disagreementCap = 0.2
)

// bpmEstimator fuses the three estimation methods into one reading per
// conditioned window.
type bpmEstimator struct {
	cfg Config
}

func newBpmEstimator(cfg Config) *bpmEstimator {
	return &bpmEstimator{cfg: cfg}
}

// Estimate runs all methods over a conditioned trace and fuses the plausible
// candidates by confidence-weighted average. The full candidate list comes
// back alongside for diagnostics, gated-out methods included. When every
// method fails the estimate is zero-valued with zero confidence.
func (e *bpmEstimator) Estimate(sig []float64, fs float64) (BpmEstimate, []BpmCandidate) {
	all := []BpmCandidate{
		spectralEstimate(sig, fs, e.cfg.band()),
		autocorrEstimate(sig, fs, e.cfg.MinBPM, e.cfg.MaxBPM),
		peaksEstimate(sig, fs, e.cfg.MinBPM, e.cfg.MaxBPM),
	}

	var accepted []BpmCandidate
	var weights []float64
	for _, c := range all {
		if c.Confidence <= candidateFloor || c.BPM <= 0 {
			continue
		}
		accepted = append(accepted, c)
		weights = append(weights, c.Confidence*reliabilityOf(c.Method))
	}
	if len(accepted) == 0 {
		return BpmEstimate{}, all
	}

	// A method reporting a harmonic of the others' consensus keeps a
	// shrunken vote rather than losing it outright. Consensus uses the
	// pre-shrink weights so the adjustment is order-independent.
	if len(accepted) >= 2 {
		shrink := make([]bool, len(accepted))
		for i := range accepted {
			var bpmSum, weightSum float64
			for j := range accepted {
				if j == i {
					continue
				}
				bpmSum += accepted[j].BPM * weights[j]
				weightSum += weights[j]
			}
			if weightSum <= 0 {
				continue
			}
			shrink[i] = isHarmonicOf(accepted[i].BPM, bpmSum/weightSum, e.cfg.HarmonicTolerance)
		}
		for i, s := range shrink {
			if s {
				weights[i] *= harmonicDownweight
			}
		}
	}

	var bpmSum, confSum, weightSum float64
	for i, c := range accepted {
		bpmSum += c.BPM * weights[i]
		confSum += c.Confidence * weights[i]
		weightSum += weights[i]
	}
	est := BpmEstimate{
		BPM:        bpmSum / weightSum,
		Confidence: units.Clamp01(confSum / weightSum),
	}

	if allPairsDisagree(accepted, e.cfg.ConsistencyToleranceBPM) && est.Confidence > disagreementCap {
		est.Confidence = disagreementCap
	}
	return est, all
}

func reliabilityOf(m Method) float64 {
	switch m {
	case MethodSpectral:
		return spectralReliability
	case MethodAutocorr:
		return autocorrReliability
	default:
		return peaksReliability
	}
}

// isHarmonicOf reports whether bpm sits within relative tolerance of double
// or half the reference rate.
func isHarmonicOf(bpm, ref, rel float64) bool {
	if ref <= 0 {
		return false
	}
	for _, target := range []float64{2 * ref, 0.5 * ref} {
		if math.Abs(bpm-target) <= rel*target {
			return true
		}
	}
	return false
}

// allPairsDisagree reports whether every pair of candidates is further apart
// than tol BPM. A single candidate never disagrees.
func allPairsDisagree(cands []BpmCandidate, tol float64) bool {
	if len(cands) < 2 {
		return false
	}
	for i := 0; i < len(cands); i++ {
		for j := i + 1; j < len(cands); j++ {
			if math.Abs(cands[i].BPM-cands[j].BPM) <= tol {
				return false
			}
		}
	}
	return true
}

// medianOf returns the middle value of xs, averaging the central pair for
// even counts. xs is left unmodified.
func medianOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
