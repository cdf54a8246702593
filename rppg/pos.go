package rppg

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// varianceGuard keeps ratios and divisions defined on flat signals.
const varianceGuard = 1e-8

// pulseExtractor turns per-region color windows into pulse traces by
// projecting normalized RGB onto the plane orthogonal to skin tone, then
// fuses regions into a single trace by quality weight.
//
// The projection isolates blood-volume pulsation from intensity changes:
// both projection axes are orthogonal to the mean skin-tone direction, and
// the alpha-weighted recombination tunes out residual specular variation.
type pulseExtractor struct {
	projection [2][3]float64
}

func newPulseExtractor(cfg Config) *pulseExtractor {
	return &pulseExtractor{projection: cfg.projection()}
}

// regionTrace extracts the pulse trace for one region window. It returns
// ErrDegenerateSignal when the window has too few valid samples or no
// pulsatile variation at all.
func (e *pulseExtractor) regionTrace(w RegionWindow) ([]float64, error) {
	r, g, b := w.Channels()

	var err error
	if r, err = fillGaps(r); err != nil {
		return nil, fmt.Errorf("region %q red channel: %w", w.Region, err)
	}
	if g, err = fillGaps(g); err != nil {
		return nil, fmt.Errorf("region %q green channel: %w", w.Region, err)
	}
	if b, err = fillGaps(b); err != nil {
		return nil, fmt.Errorf("region %q blue channel: %w", w.Region, err)
	}

	n := len(r)
	x := mat.NewDense(3, n, nil)
	x.SetRow(0, normalizeChannel(r))
	x.SetRow(1, normalizeChannel(g))
	x.SetRow(2, normalizeChannel(b))

	p := e.projection
	c := mat.NewDense(2, 3, []float64{
		p[0][0], p[0][1], p[0][2],
		p[1][0], p[1][1], p[1][2],
	})
	var s mat.Dense
	s.Mul(c, x)

	s0 := mat.Row(nil, 0, &s)
	s1 := mat.Row(nil, 1, &s)

	// Alpha balances the two projections so their pulsatile components add
	// rather than cancel.
	alpha := stat.PopStdDev(s0, nil) / (stat.PopStdDev(s1, nil) + varianceGuard)

	pulse := make([]float64, n)
	copy(pulse, s0)
	floats.AddScaled(pulse, alpha, s1)

	if stat.PopStdDev(pulse, nil) < varianceGuard {
		return nil, fmt.Errorf("region %q pulse is flat: %w", w.Region, ErrDegenerateSignal)
	}
	return pulse, nil
}

// fuse combines per-region traces into one pulse using the given weights,
// normalized over the traces present. All-zero weights fall back to the
// unweighted mean so a uniformly poor pass still yields a trace for the
// degraded path. Traces of unequal length align on their most recent
// samples.
func (e *pulseExtractor) fuse(traces map[string][]float64, weights map[string]float64) ([]float64, error) {
	regions := make([]string, 0, len(traces))
	shortest := math.MaxInt
	for name, tr := range traces {
		if len(tr) == 0 {
			continue
		}
		regions = append(regions, name)
		if len(tr) < shortest {
			shortest = len(tr)
		}
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("no usable region traces: %w", ErrDegenerateSignal)
	}
	// Fixed iteration order keeps fusion bit-for-bit reproducible.
	sort.Strings(regions)

	total := 0.0
	for _, name := range regions {
		total += weights[name]
	}

	fused := make([]float64, shortest)
	if total <= 0 {
		for _, name := range regions {
			tr := traces[name]
			floats.Add(fused, tr[len(tr)-shortest:])
		}
		floats.Scale(1/float64(len(regions)), fused)
		return fused, nil
	}
	for _, name := range regions {
		tr := traces[name]
		floats.AddScaled(fused, weights[name]/total, tr[len(tr)-shortest:])
	}
	return fused, nil
}

// normalizeChannel returns a zero-mean, unit-variance copy of xs. A nearly
// constant channel is only mean-centered.
func normalizeChannel(xs []float64) []float64 {
	mean := stat.Mean(xs, nil)
	std := stat.PopStdDev(xs, nil)

	out := make([]float64, len(xs))
	copy(out, xs)
	floats.AddConst(-mean, out)
	if std >= varianceGuard {
		floats.Scale(1/std, out)
	}
	return out
}

// fillGaps linearly interpolates NaN runs, extending the nearest valid value
// across leading and trailing gaps. Windows with fewer than two valid samples
// cannot be repaired and report ErrDegenerateSignal.
func fillGaps(xs []float64) ([]float64, error) {
	var vx, vy []float64
	for i, v := range xs {
		if !math.IsNaN(v) {
			vx = append(vx, float64(i))
			vy = append(vy, v)
		}
	}
	if len(vx) == len(xs) {
		return xs, nil
	}
	if len(vx) < 2 {
		return nil, fmt.Errorf("%d valid samples in window: %w", len(vx), ErrDegenerateSignal)
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(vx, vy); err != nil {
		return nil, fmt.Errorf("fitting gap interpolant: %w", err)
	}

	first := int(vx[0])
	last := int(vx[len(vx)-1])
	out := make([]float64, len(xs))
	for i, v := range xs {
		switch {
		case !math.IsNaN(v):
			out[i] = v
		case i < first:
			out[i] = vy[0]
		case i > last:
			out[i] = vy[len(vy)-1]
		default:
			out[i] = pl.Predict(float64(i))
		}
	}
	return out, nil
}
