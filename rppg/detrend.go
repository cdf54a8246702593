package rppg

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// detrendPoly removes a least-squares polynomial trend of the given order.
// The abscissa is scaled to [0, 1] so high orders stay well conditioned.
// Windows too short to fit the requested order pass through unchanged.
func detrendPoly(xs []float64, order int) ([]float64, error) {
	n := len(xs)
	if n <= order+1 {
		return append([]float64(nil), xs...), nil
	}

	basis := mat.NewDense(n, order+1, nil)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n-1)
		p := 1.0
		for j := 0; j <= order; j++ {
			basis.Set(i, j, p)
			p *= t
		}
	}

	var qr mat.QR
	qr.Factorize(basis)

	y := mat.NewDense(n, 1, append([]float64(nil), xs...))
	var coef mat.Dense
	if err := qr.SolveTo(&coef, false, y); err != nil {
		return nil, fmt.Errorf("polynomial trend fit: %w", err)
	}

	var trend mat.Dense
	trend.Mul(basis, &coef)

	out := make([]float64, n)
	for i := range out {
		out[i] = xs[i] - trend.At(i, 0)
	}
	return out, nil
}

// subtractMovingAverage removes a centered moving-average baseline with the
// given span in samples, quelling drift below the pulse band. The averaging
// window shrinks near the edges instead of padding.
func subtractMovingAverage(xs []float64, span int) []float64 {
	out := make([]float64, len(xs))
	if span < 2 || len(xs) == 0 {
		copy(out, xs)
		return out
	}
	if span%2 == 0 {
		span++
	}
	half := span / 2

	prefix := make([]float64, len(xs)+1)
	for i, v := range xs {
		prefix[i+1] = prefix[i] + v
	}
	for i := range xs {
		lo := i - half
		if lo < 0 {
			lo = 0
		}
		hi := i + half
		if hi > len(xs)-1 {
			hi = len(xs) - 1
		}
		mean := (prefix[hi+1] - prefix[lo]) / float64(hi-lo+1)
		out[i] = xs[i] - mean
	}
	return out
}
