package rppg

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Band is a frequency pass band in Hz.
type Band struct {
	Low, High float64
}

// valid reports whether the band is usable at the given sample rate.
func (b Band) valid(fs float64) bool {
	return b.Low > 0 && b.High > b.Low && b.High < fs/2
}

// clampTo narrows the band to fit inside other. An empty result reports the
// original band unchanged so the caller's validity check can reject it.
func (b Band) clampTo(other Band) Band {
	lo := math.Max(b.Low, other.Low)
	hi := math.Min(b.High, other.High)
	if lo >= hi {
		return b
	}
	return Band{Low: lo, High: hi}
}

// butterworthBandpass is a digital Butterworth band-pass filter in transfer
// function form. order is the analog prototype order; the band-pass
// transform doubles the pole count.
type butterworthBandpass struct {
	b, a []float64
}

// designBandpass builds the filter by the classic recipe: place the analog
// prototype poles, split each around the center frequency with the low-pass
// to band-pass transform, then map everything to the z plane with the
// bilinear transform. Band edges are pre-warped so they land exactly.
func designBandpass(order int, band Band, fs float64) (*butterworthBandpass, error) {
	if order < 1 {
		return nil, fmt.Errorf("band-pass order %d out of range", order)
	}
	if !band.valid(fs) {
		return nil, fmt.Errorf("band [%g, %g] Hz unusable at %g Hz sampling", band.Low, band.High, fs)
	}

	w1 := 2 * fs * math.Tan(math.Pi*band.Low/fs)
	w2 := 2 * fs * math.Tan(math.Pi*band.High/fs)
	bw := w2 - w1
	w0 := math.Sqrt(w1 * w2)

	poles := make([]complex128, 0, 2*order)
	for k := 1; k <= order; k++ {
		theta := math.Pi/2 + math.Pi*float64(2*k-1)/float64(2*order)
		ps := cmplx.Rect(bw/2, theta)
		d := cmplx.Sqrt(ps*ps - complex(w0*w0, 0))
		poles = append(poles, ps+d, ps-d)
	}

	fs2 := complex(2*fs, 0)
	zPoles := make([]complex128, len(poles))
	for i, s := range poles {
		zPoles[i] = (fs2 + s) / (fs2 - s)
	}
	// The band-pass zeros sit at DC and Nyquist.
	zZeros := make([]complex128, 0, 2*order)
	for i := 0; i < order; i++ {
		zZeros = append(zZeros, 1, -1)
	}

	b := realCoeffs(polyFromRoots(zZeros))
	a := realCoeffs(polyFromRoots(zPoles))

	// Normalize to unit gain at the warped center frequency.
	zinv := 1 / cmplx.Rect(1, 2*math.Atan(w0/(2*fs)))
	gain := cmplx.Abs(evalPoly(b, zinv) / evalPoly(a, zinv))
	if gain == 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return nil, fmt.Errorf("degenerate band-pass design for [%g, %g] Hz at %g Hz", band.Low, band.High, fs)
	}
	for i := range b {
		b[i] /= gain
	}

	return &butterworthBandpass{b: b, a: a}, nil
}

// filtfilt applies the filter forward and backward, canceling phase delay.
// The input is extended by odd reflection and the filter state seeded at the
// extension's level so startup transients stay out of the result.
func (f *butterworthBandpass) filtfilt(xs []float64) ([]float64, error) {
	padlen := 3 * len(f.a)
	if len(xs) <= padlen {
		return nil, fmt.Errorf("window of %d samples too short for band-pass padding of %d: %w", len(xs), padlen, ErrDegenerateSignal)
	}

	zi, err := f.stepState()
	if err != nil {
		return nil, err
	}

	ext := oddReflect(xs, padlen)

	fwd := f.lfilter(ext, scaleState(zi, ext[0]))
	reverse(fwd)
	back := f.lfilter(fwd, scaleState(zi, fwd[0]))
	reverse(back)

	out := make([]float64, len(xs))
	copy(out, back[padlen:padlen+len(xs)])
	return out, nil
}

// lfilter runs the transposed direct form II difference equation from the
// given initial state.
func (f *butterworthBandpass) lfilter(xs, z []float64) []float64 {
	b, a := f.b, f.a
	state := append([]float64(nil), z...)
	n := len(state)

	out := make([]float64, len(xs))
	for m, x := range xs {
		y := b[0]*x + state[0]
		for i := 0; i < n-1; i++ {
			state[i] = b[i+1]*x + state[i+1] - a[i+1]*y
		}
		state[n-1] = b[n]*x - a[n]*y
		out[m] = y
	}
	return out
}

// stepState returns the internal state for which a unit step input starts
// the filter at its steady response. It solves (I - K^T) zi = B where K is
// the companion matrix of the denominator.
func (f *butterworthBandpass) stepState() ([]float64, error) {
	m := len(f.a) - 1
	sys := mat.NewDense(m, m, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < m; j++ {
			var k float64
			switch {
			case j == 0:
				k = -f.a[i+1]
			case i == j-1:
				k = 1
			}
			v := -k
			if i == j {
				v++
			}
			sys.Set(i, j, v)
		}
	}
	rhs := mat.NewVecDense(m, nil)
	for i := 0; i < m; i++ {
		rhs.SetVec(i, f.b[i+1]-f.a[i+1]*f.b[0])
	}

	var zi mat.VecDense
	if err := zi.SolveVec(sys, rhs); err != nil {
		return nil, fmt.Errorf("solving filter steady state: %w", err)
	}
	out := make([]float64, m)
	for i := range out {
		out[i] = zi.AtVec(i)
	}
	return out, nil
}

// medianFilter applies a sliding median of odd width k with zero padding at
// the boundaries. On the zero-mean traces it runs on the padding bias is
// negligible.
func medianFilter(xs []float64, k int) []float64 {
	if k < 3 || len(xs) == 0 {
		return append([]float64(nil), xs...)
	}
	if k%2 == 0 {
		k++
	}
	half := k / 2

	out := make([]float64, len(xs))
	window := make([]float64, 0, k)
	for i := range xs {
		window = window[:0]
		for j := i - half; j <= i+half; j++ {
			if j < 0 || j >= len(xs) {
				window = append(window, 0)
			} else {
				window = append(window, xs[j])
			}
		}
		sort.Float64s(window)
		out[i] = window[half]
	}
	return out
}

// polyFromRoots expands a monic polynomial from its roots. Coefficients come
// back in decreasing power order with a leading 1.
func polyFromRoots(roots []complex128) []complex128 {
	coeffs := make([]complex128, 1, len(roots)+1)
	coeffs[0] = 1
	for _, r := range roots {
		next := make([]complex128, len(coeffs)+1)
		for i, c := range coeffs {
			next[i] += c
			next[i+1] -= c * r
		}
		coeffs = next
	}
	return coeffs
}

// realCoeffs drops the vanishing imaginary parts left by expanding conjugate
// root pairs.
func realCoeffs(cs []complex128) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = real(c)
	}
	return out
}

// evalPoly evaluates sum(coeffs[i] * x^i) by Horner's rule. With x = 1/z it
// evaluates a transfer-function polynomial at z.
func evalPoly(coeffs []float64, x complex128) complex128 {
	var acc complex128
	for i := len(coeffs) - 1; i >= 0; i-- {
		acc = acc*x + complex(coeffs[i], 0)
	}
	return acc
}

func scaleState(zi []float64, x0 float64) []float64 {
	out := make([]float64, len(zi))
	for i, z := range zi {
		out[i] = z * x0
	}
	return out
}

// oddReflect extends xs by padlen samples on both ends, reflected through
// the end values so the extension meets the signal with matching level and
// slope. padlen must be less than len(xs).
func oddReflect(xs []float64, padlen int) []float64 {
	n := len(xs)
	ext := make([]float64, 0, n+2*padlen)
	for i := padlen; i >= 1; i-- {
		ext = append(ext, 2*xs[0]-xs[i])
	}
	ext = append(ext, xs...)
	for i := n - 2; i >= n-1-padlen; i-- {
		ext = append(ext, 2*xs[n-1]-xs[i])
	}
	return ext
}

func reverse(xs []float64) {
	for i, j := 0, len(xs)-1; i < j; i, j = i+1, j-1 {
		xs[i], xs[j] = xs[j], xs[i]
	}
}
