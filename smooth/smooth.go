// Package smooth provides the 1-D numerical helpers behind profile analytics:
// uniform linear resampling, Savitzky–Golay smoothing, finite-difference
// gradients and a centered rolling median.
//
// Conventions:
//   - Inputs are never mutated; every function returns a fresh slice.
//   - Positions where a result is undefined hold NaN (rolling-median edges).
package smooth

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrLength indicates mismatched or too-short inputs.
	ErrLength = errors.New("smooth: invalid input length")

	// ErrUnsorted indicates sample positions that are not strictly increasing.
	ErrUnsorted = errors.New("smooth: positions must be strictly increasing")

	// ErrWindow indicates an even, too-short or too-long filter window.
	ErrWindow = errors.New("smooth: invalid window")
)

// Resample interpolates (x, y) linearly onto n evenly spaced positions from
// x[0] to x[len-1]. x must be strictly increasing and n ≥ 2.
func Resample(x, y []float64, n int) (xs, ys []float64, err error) {
	if len(x) != len(y) || len(x) < 2 || n < 2 {
		return nil, nil, fmt.Errorf("%d positions, %d values, %d targets: %w", len(x), len(y), n, ErrLength)
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return nil, nil, fmt.Errorf("x[%d]=%v after %v: %w", i, x[i], x[i-1], ErrUnsorted)
		}
	}
	lo, hi := x[0], x[len(x)-1]
	step := (hi - lo) / float64(n-1)
	xs = make([]float64, n)
	ys = make([]float64, n)
	seg := 0
	for i := range xs {
		xi := lo + float64(i)*step
		if i == n-1 {
			xi = hi
		}
		for seg < len(x)-2 && xi > x[seg+1] {
			seg++
		}
		t := (xi - x[seg]) / (x[seg+1] - x[seg])
		xs[i] = xi
		ys[i] = y[seg] + t*(y[seg+1]-y[seg])
	}

	return xs, ys, nil
}

// Window picks the Savitzky–Golay window and polynomial order for a signal
// of length n:
//   - n ≥ 15: window min(15, n) forced odd (at least 5), order 3;
//   - 5 ≤ n < 15: window n, or n−1 when n is even, order 2;
//   - n < 5: window 0, meaning no smoothing.
func Window(n int) (window, order int) {
	switch {
	case n >= 15:
		window = 15
		if n < window {
			window = n
		}
		if window%2 == 0 {
			window--
		}
		if window < 5 {
			window = 5
		}

		return window, 3
	case n >= 5:
		if n%2 == 1 {
			return n, 2
		}

		return n - 1, 2
	default:
		return 0, 0
	}
}

// SavitzkyGolay smooths y with a least-squares polynomial of the given order
// over a centered odd window. The half-window at each edge is filled by
// evaluating a polynomial fitted to the first (last) window samples.
func SavitzkyGolay(y []float64, window, order int) ([]float64, error) {
	if window%2 == 0 || window < 1 || window > len(y) || order >= window || order < 0 {
		return nil, fmt.Errorf("window %d order %d for %d samples: %w", window, order, len(y), ErrWindow)
	}
	half := window / 2
	out := make([]float64, len(y))

	// interior: fixed convolution weights = row 0 of the fit's pseudo-inverse
	weights, err := centreWeights(half, order)
	if err != nil {
		return nil, err
	}
	for i := half; i < len(y)-half; i++ {
		var acc float64
		for k, w := range weights {
			acc += w * y[i-half+k]
		}
		out[i] = acc
	}

	// edges: polynomial fit on the first/last window samples
	head, err := polyFit(y[:window], order)
	if err != nil {
		return nil, err
	}
	tail, err := polyFit(y[len(y)-window:], order)
	if err != nil {
		return nil, err
	}
	for i := 0; i < half; i++ {
		out[i] = polyEval(head, float64(i))
		j := window - half + i
		out[len(y)-half+i] = polyEval(tail, float64(j))
	}

	return out, nil
}

// centreWeights returns the smoothing weights for offsets −half..half.
func centreWeights(half, order int) ([]float64, error) {
	window := 2*half + 1
	a := vandermonde(window, order, -float64(half))
	weights := make([]float64, window)
	e := mat.NewVecDense(window, nil)
	var c mat.VecDense
	for k := 0; k < window; k++ {
		e.Zero()
		e.SetVec(k, 1)
		if err := c.SolveVec(a, e); err != nil {
			return nil, fmt.Errorf("smooth: weight solve: %w", err)
		}
		weights[k] = c.AtVec(0)
	}

	return weights, nil
}

// polyFit returns least-squares coefficients c[0..order] of y over x = 0..len-1.
func polyFit(y []float64, order int) ([]float64, error) {
	a := vandermonde(len(y), order, 0)
	var c mat.VecDense
	if err := c.SolveVec(a, mat.NewVecDense(len(y), append([]float64(nil), y...))); err != nil {
		return nil, fmt.Errorf("smooth: polynomial fit: %w", err)
	}
	out := make([]float64, order+1)
	for p := range out {
		out[p] = c.AtVec(p)
	}

	return out, nil
}

// vandermonde builds rows (x^0 .. x^order) for x = start, start+1, ...
func vandermonde(rows, order int, start float64) *mat.Dense {
	a := mat.NewDense(rows, order+1, nil)
	for r := 0; r < rows; r++ {
		x := start + float64(r)
		v := 1.0
		for p := 0; p <= order; p++ {
			a.Set(r, p, v)
			v *= x
		}
	}

	return a
}

func polyEval(c []float64, x float64) float64 {
	var acc float64
	for p := len(c) - 1; p >= 0; p-- {
		acc = acc*x + c[p]
	}

	return acc
}

// Gradient is the uniform-spacing finite difference of y: central inside,
// first-order one-sided at both ends. len(y) must be ≥ 2.
func Gradient(y []float64, dx float64) ([]float64, error) {
	n := len(y)
	if n < 2 {
		return nil, fmt.Errorf("%d samples: %w", n, ErrLength)
	}
	g := make([]float64, n)
	g[0] = (y[1] - y[0]) / dx
	g[n-1] = (y[n-1] - y[n-2]) / dx
	for i := 1; i < n-1; i++ {
		g[i] = (y[i+1] - y[i-1]) / (2 * dx)
	}

	return g, nil
}

// RollingMedian applies a centered median of odd width window; positions
// whose window would leave the slice are NaN. Non-finite inputs inside a
// window make that output NaN as well.
func RollingMedian(v []float64, window int) ([]float64, error) {
	if window < 1 || window%2 == 0 {
		return nil, fmt.Errorf("rolling window %d: %w", window, ErrWindow)
	}
	half := window / 2
	out := make([]float64, len(v))
	buf := make([]float64, window)
	for i := range v {
		if i < half || i+half >= len(v) {
			out[i] = math.NaN()
			continue
		}
		copy(buf, v[i-half:i+half+1])
		out[i] = Median(buf)
	}

	return out, nil
}

// Median returns the median of v (mean of the two middle values for even
// length), NaN when v is empty or holds a NaN. v is not modified.
func Median[T constraints.Float](v []T) T {
	if len(v) == 0 {
		return T(math.NaN())
	}
	s := slices.Clone(v)
	for _, x := range s {
		if x != x {
			return T(math.NaN())
		}
	}
	slices.Sort(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}

	return (s[m-1] + s[m]) / 2
}

// Quantile returns the q-quantile of v with linear interpolation between
// order statistics (numpy's default); NaN for empty v.
func Quantile[T constraints.Float](v []T, q float64) T {
	if len(v) == 0 {
		return T(math.NaN())
	}
	s := slices.Clone(v)
	slices.Sort(s)
	pos := q * float64(len(s)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := T(pos - float64(lo))

	return s[lo] + (s[hi]-s[lo])*frac
}
