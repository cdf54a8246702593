package rppg

import "fmt"

// signalConditioner cleans fused pulse traces before estimation: polynomial
// and moving-average detrending, impulse suppression, then a zero-phase
// Butterworth band-pass.
type signalConditioner struct {
	cfg Config
}

// newSignalConditioner verifies the configured band can actually be realized
// at the hinted frame rate so a bad configuration fails at construction, not
// mid-stream.
func newSignalConditioner(cfg Config) (*signalConditioner, error) {
	if _, err := designBandpass(cfg.BandpassOrder, cfg.band(), cfg.FrameRateHint); err != nil {
		return nil, configErrorf("MinBPM/MaxBPM", "cannot realize band-pass: %v", err)
	}
	return &signalConditioner{cfg: cfg}, nil
}

// Condition cleans a pulse trace sampled at fs. The band may arrive narrowed
// around tracked history; if it is unusable at fs the configured band is
// used instead.
func (c *signalConditioner) Condition(pulse []float64, fs float64, band Band) ([]float64, error) {
	if len(pulse) == 0 {
		return nil, fmt.Errorf("empty pulse trace: %w", ErrDegenerateSignal)
	}
	if !band.valid(fs) {
		band = c.cfg.band()
	}
	if !band.valid(fs) {
		return nil, fmt.Errorf("pass band [%g, %g] Hz unusable at %g Hz: %w", band.Low, band.High, fs, ErrDegenerateSignal)
	}

	out, err := detrendPoly(pulse, c.cfg.DetrendPolyOrder)
	if err != nil {
		return nil, fmt.Errorf("detrending: %w", err)
	}
	out = subtractMovingAverage(out, c.baselineSpan(fs))
	out = medianFilter(out, c.kernelSize(fs))

	bp, err := designBandpass(c.cfg.BandpassOrder, band, fs)
	if err != nil {
		return nil, fmt.Errorf("band-pass design: %w", err)
	}
	filtered, err := bp.filtfilt(out)
	if err != nil {
		return nil, fmt.Errorf("band-pass: %w", err)
	}
	return filtered, nil
}

// baselineSpan is one beat period at the slowest trackable rate, in samples.
func (c *signalConditioner) baselineSpan(fs float64) int {
	return int(60.0 / c.cfg.MinBPM * fs)
}

// kernelSize picks the impulse-suppression width: the configured size, or
// roughly 0.1s of samples when unset.
func (c *signalConditioner) kernelSize(fs float64) int {
	if c.cfg.MedianFilterSize != 0 {
		return c.cfg.MedianFilterSize
	}
	k := int(fs * 0.1)
	if k < 3 {
		k = 3
	}
	if k%2 == 0 {
		k++
	}
	return k
}
