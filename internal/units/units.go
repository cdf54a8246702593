// Package units provides shared conversions between heart-rate and
// signal-domain quantities (BPM, Hz, sample lags).
package units

// Physiological defaults shared across the engine. The plausible adult
// resting-to-active range maps to 0.75-2.5 Hz.
const (
	DefaultMinBPM = 45.0
	DefaultMaxBPM = 150.0
)

// HzToBPM converts a frequency in Hz to beats per minute.
func HzToBPM(hz float64) float64 {
	return hz * 60.0
}

// BPMToHz converts beats per minute to a frequency in Hz.
func BPMToHz(bpm float64) float64 {
	return bpm / 60.0
}

// LagToBPM converts an autocorrelation lag in samples to BPM at the given
// sample rate. A zero or negative lag has no physical meaning and returns 0.
func LagToBPM(lag int, sampleRate float64) float64 {
	if lag <= 0 || sampleRate <= 0 {
		return 0
	}
	return 60.0 * sampleRate / float64(lag)
}

// BPMToLag converts a BPM value to the equivalent lag in samples at the given
// sample rate. Fractional lags are truncated toward zero.
func BPMToLag(bpm, sampleRate float64) int {
	if bpm <= 0 || sampleRate <= 0 {
		return 0
	}
	return int(60.0 * sampleRate / bpm)
}

// SecondsToBPM converts a beat period in seconds to BPM.
func SecondsToBPM(period float64) float64 {
	if period <= 0 {
		return 0
	}
	return 60.0 / period
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 bounds v to the unit interval. Confidence and quality scores use it.
func Clamp01(v float64) float64 {
	return Clamp(v, 0, 1)
}
