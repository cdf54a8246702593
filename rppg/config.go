package rppg

// Config carries every tunable of the estimation pipeline. The zero value is
// not usable; start from DefaultConfig and adjust.
type Config struct {
	// WindowSeconds is the sliding analysis window length. Longer windows
	// give steadier estimates at the cost of responsiveness. Typical
	// values: 10 to 15.
	WindowSeconds float64

	// MinWindowSeconds is the minimum buffered span before estimation is
	// attempted. Snapshot returns ErrNotReady below it. The effective
	// floor is never less than two beat cycles at MinBPM.
	MinWindowSeconds float64 // e.g., 3.0

	FrameRateHint float64 // nominal camera rate, e.g., 30.0

	// MinBPM and MaxBPM bound the physiological search range. The pass
	// band of the filter stage derives from them (45-150 BPM maps to
	// 0.75-2.5 Hz).
	MinBPM float64 // e.g., 45
	MaxBPM float64 // e.g., 150

	DetrendPolyOrder int // polynomial order for baseline removal, e.g., 4

	// MedianFilterSize is the impulse-suppression kernel width. Must be
	// odd and at least 3. If zero, a width covering roughly 0.1s of
	// samples is chosen from FrameRateHint.
	MedianFilterSize int

	BandpassOrder int // Butterworth prototype order, e.g., 4

	// QualityWeights blends the signal-quality sub-scores. The weights
	// must sum to 1.
	QualityWeights QualityWeights

	// ConsistencyToleranceBPM is the deviation from recent history at
	// which the tracker starts discounting an estimate. Default: 10.
	ConsistencyToleranceBPM float64

	// HarmonicTolerance is the relative tolerance for recognizing a 2x or
	// 0.5x harmonic of the tracked rate. Default: 0.15.
	HarmonicTolerance float64

	// MotionThreshold is the mean absolute frame-to-frame intensity delta
	// above which a window is flagged as motion-corrupted. Units are raw
	// channel intensity. Default: 2.0.
	MotionThreshold float64

	// WarmupSeconds and WarmupMinEstimates gate the tracker's switch from
	// WarmingUp to Tracking. Both must be satisfied.
	WarmupSeconds      float64 // e.g., 8
	WarmupMinEstimates int     // e.g., 10

	// HistorySeconds bounds the tracker's estimate history. Constrained
	// to 30-60 so the consistency reference neither starves nor goes
	// stale.
	HistorySeconds float64 // e.g., 45

	// SmoothingAlpha is the exponential smoothing factor for the
	// published BPM. 1 disables smoothing. Default: 0.25.
	SmoothingAlpha float64

	// Projection overrides the chrominance projection matrix applied to
	// normalized RGB traces. If zero, the standard plane-orthogonal-to-skin
	// pair is used.
	Projection [2][3]float64
}

// QualityWeights are the blend weights for the quality sub-scores. They must
// be non-negative and sum to 1.
type QualityWeights struct {
	SNR      float64 // e.g., 0.5
	Kurtosis float64 // e.g., 0.25
	Variance float64 // e.g., 0.25
}

// DefaultConfig returns the tuning used by the reference pipeline: a 12s
// window at 30 fps covering 45-150 BPM.
func DefaultConfig() Config {
	return Config{
		WindowSeconds:           12,
		MinWindowSeconds:        3,
		FrameRateHint:           30,
		MinBPM:                  45,
		MaxBPM:                  150,
		DetrendPolyOrder:        4,
		MedianFilterSize:        0, // auto from frame rate
		BandpassOrder:           4,
		QualityWeights:          QualityWeights{SNR: 0.5, Kurtosis: 0.25, Variance: 0.25},
		ConsistencyToleranceBPM: 10,
		HarmonicTolerance:       0.15,
		MotionThreshold:         2.0,
		WarmupSeconds:           8,
		WarmupMinEstimates:      10,
		HistorySeconds:          45,
		SmoothingAlpha:          0.25,
	}
}

// posProjection is the plane-orthogonal-to-skin chrominance pair. Row one is
// the green/blue difference, row two the tangent direction.
var posProjection = [2][3]float64{
	{0, 1, -1},
	{-2, 1, 1},
}

// projection returns the configured projection matrix, falling back to the
// standard pair when unset.
func (c Config) projection() [2][3]float64 {
	if c.Projection == ([2][3]float64{}) {
		return posProjection
	}
	return c.Projection
}

// band returns the pass band in Hz derived from the BPM range.
func (c Config) band() Band {
	return Band{Low: c.MinBPM / 60.0, High: c.MaxBPM / 60.0}
}

// Validate checks the configuration and returns a ConfigError describing the
// first problem found. A nil return means the engine can be built.
func (c Config) Validate() error {
	if c.WindowSeconds <= 0 {
		return configErrorf("WindowSeconds", "must be positive, got %g", c.WindowSeconds)
	}
	if c.MinWindowSeconds <= 0 || c.MinWindowSeconds > c.WindowSeconds {
		return configErrorf("MinWindowSeconds", "must be in (0, WindowSeconds], got %g", c.MinWindowSeconds)
	}
	if c.FrameRateHint <= 0 {
		return configErrorf("FrameRateHint", "must be positive, got %g", c.FrameRateHint)
	}
	if c.MinBPM <= 0 {
		return configErrorf("MinBPM", "must be positive, got %g", c.MinBPM)
	}
	if c.MaxBPM <= c.MinBPM {
		return configErrorf("MaxBPM", "must exceed MinBPM (%g), got %g", c.MinBPM, c.MaxBPM)
	}
	nyquist := c.FrameRateHint / 2
	if c.MaxBPM/60.0 >= nyquist {
		return configErrorf("MaxBPM", "%g BPM is %g Hz, at or above the Nyquist rate %g Hz", c.MaxBPM, c.MaxBPM/60.0, nyquist)
	}
	if c.DetrendPolyOrder < 1 || c.DetrendPolyOrder > 8 {
		return configErrorf("DetrendPolyOrder", "must be in [1, 8], got %d", c.DetrendPolyOrder)
	}
	if c.MedianFilterSize != 0 && (c.MedianFilterSize < 3 || c.MedianFilterSize%2 == 0) {
		return configErrorf("MedianFilterSize", "must be 0 (auto) or odd and >= 3, got %d", c.MedianFilterSize)
	}
	if c.BandpassOrder < 1 || c.BandpassOrder > 8 {
		return configErrorf("BandpassOrder", "must be in [1, 8], got %d", c.BandpassOrder)
	}
	if err := c.QualityWeights.validate(); err != nil {
		return err
	}
	if c.ConsistencyToleranceBPM <= 0 {
		return configErrorf("ConsistencyToleranceBPM", "must be positive, got %g", c.ConsistencyToleranceBPM)
	}
	if c.HarmonicTolerance <= 0 || c.HarmonicTolerance >= 0.5 {
		return configErrorf("HarmonicTolerance", "must be in (0, 0.5), got %g", c.HarmonicTolerance)
	}
	if c.MotionThreshold <= 0 {
		return configErrorf("MotionThreshold", "must be positive, got %g", c.MotionThreshold)
	}
	if c.WarmupSeconds <= 0 {
		return configErrorf("WarmupSeconds", "must be positive, got %g", c.WarmupSeconds)
	}
	if c.WarmupMinEstimates < 1 {
		return configErrorf("WarmupMinEstimates", "must be at least 1, got %d", c.WarmupMinEstimates)
	}
	if c.HistorySeconds < 30 || c.HistorySeconds > 60 {
		return configErrorf("HistorySeconds", "must be in [30, 60], got %g", c.HistorySeconds)
	}
	if c.SmoothingAlpha <= 0 || c.SmoothingAlpha > 1 {
		return configErrorf("SmoothingAlpha", "must be in (0, 1], got %g", c.SmoothingAlpha)
	}
	if c.Projection != ([2][3]float64{}) {
		for i, row := range c.Projection {
			if row == ([3]float64{}) {
				return configErrorf("Projection", "row %d is all zeros", i)
			}
		}
	}
	return nil
}

func (w QualityWeights) validate() error {
	if w.SNR < 0 || w.Kurtosis < 0 || w.Variance < 0 {
		return configErrorf("QualityWeights", "weights must be non-negative, got %+v", w)
	}
	sum := w.SNR + w.Kurtosis + w.Variance
	if sum < 1-1e-6 || sum > 1+1e-6 {
		return configErrorf("QualityWeights", "weights must sum to 1, got %g", sum)
	}
	return nil
}
