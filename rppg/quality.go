package rppg

import (
	"math"
	"math/cmplx"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pulse.report/internal/units"
)

// QualityScore breaks a window's signal quality into its sub-scores, each in
// [0, 1], with the weighted blend in Overall.
type QualityScore struct {
	SNR      float64
	Kurtosis float64
	Variance float64
	Overall  float64
}

// qualityAssessor rates pulse traces and watches raw windows for motion.
// Sub-scores blend under the configured weights; a trace shorter than ten
// samples scores zero across the board.
type qualityAssessor struct {
	cfg Config

	mu             sync.Mutex
	externalMotion bool
}

func newQualityAssessor(cfg Config) *qualityAssessor {
	return &qualityAssessor{cfg: cfg}
}

// Score rates a pulse trace on spectral concentration, distribution shape,
// and signal strength.
func (q *qualityAssessor) Score(trace []float64, fs float64) QualityScore {
	if len(trace) < 10 || fs <= 0 {
		return QualityScore{}
	}

	s := QualityScore{
		SNR:      q.snrScore(trace, fs),
		Kurtosis: kurtosisScore(trace),
		Variance: varianceScore(trace),
	}
	w := q.cfg.QualityWeights
	s.Overall = units.Clamp01(w.SNR*s.SNR + w.Kurtosis*s.Kurtosis + w.Variance*s.Variance)
	return s
}

// snrScore measures how much of the spectrum's energy falls inside the pulse
// band. Clean pulses concentrate there; motion and sensor noise spread
// across the rest of the spectrum.
func (q *qualityAssessor) snrScore(trace []float64, fs float64) float64 {
	n := len(trace)
	fft := fourier.NewFFT(n)
	spectrum := fft.Coefficients(nil, trace)

	band := q.cfg.band()
	freqStep := fs / float64(n)

	var inBand, total float64
	for i := 1; i < len(spectrum); i++ {
		a := cmplx.Abs(spectrum[i])
		p := a * a
		total += p
		if f := float64(i) * freqStep; f >= band.Low && f <= band.High {
			inBand += p
		}
	}
	if total <= 0 {
		return 0
	}
	return inBand / total
}

// kurtosisScore rates the trace's sample distribution. Smooth periodic
// traces keep excess kurtosis near zero; spiky motion artifacts drive it up
// and the score decays exponentially with the excess.
func kurtosisScore(trace []float64) float64 {
	k := stat.ExKurtosis(trace, nil)
	if math.IsNaN(k) {
		return 0
	}
	return math.Exp(-math.Abs(k) / 8.0)
}

// Variance plateau for extracted pulse traces, which arrive roughly unit
// scale from channel normalization. Below varLow the trace is nearly flat;
// above varHigh something other than pulse is swinging it, bottoming out at
// varCap.
const (
	varLow  = 0.1
	varHigh = 10.0
	varCap  = 100.0
)

func varianceScore(trace []float64) float64 {
	v := stat.PopVariance(trace, nil)
	switch {
	case v <= 0:
		return 0
	case v < varLow:
		return v / varLow
	case v <= varHigh:
		return 1
	case v >= varCap:
		return 0
	default:
		return 1 - (v-varHigh)/(varCap-varHigh)
	}
}

// DetectMotion flags a region whose brightness jumps frame to frame faster
// than the configured threshold, measured over the most recent second of
// the window. An asserted external motion flag takes precedence.
func (q *qualityAssessor) DetectMotion(w RegionWindow) bool {
	q.mu.Lock()
	ext := q.externalMotion
	q.mu.Unlock()
	if ext {
		return true
	}

	s := w.Samples
	if len(s) < 2 {
		return false
	}
	if recent := int(w.SampleRate) + 1; len(s) > recent && recent > 1 {
		s = s[len(s)-recent:]
	}

	var sum float64
	var count int
	for i := 1; i < len(s); i++ {
		if s[i].Missing() || s[i-1].Missing() {
			continue
		}
		sum += math.Abs(s[i].intensity() - s[i-1].intensity())
		count++
	}
	if count == 0 {
		return false
	}
	return sum/float64(count) > q.cfg.MotionThreshold
}

// SetExternalMotion lets a host that tracks real subject motion, such as
// landmark displacement, assert the motion flag directly. Passing false
// returns control to the built-in detector.
func (q *qualityAssessor) SetExternalMotion(moving bool) {
	q.mu.Lock()
	q.externalMotion = moving
	q.mu.Unlock()
}
