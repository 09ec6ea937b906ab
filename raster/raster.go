// Package raster holds regular 2-D float grids whose undefined cells are NaN,
// and provides finite-difference gradients and connected regions of defined
// cells on them.
//
// What:
//
//   - Raster wraps Values[row][col] over ascending axes Xs (columns) and Ys (rows).
//   - Gradient follows numpy.gradient: central differences inside, first-order
//     one-sided at the borders, each axis with its own spacing. NaN propagates.
//   - Regions groups finite cells into 4- or 8-connected components.
//
// Complexity:
//
//   - Gradient: O(W×H).
//   - Regions:  O(W×H×d), Memory: O(W×H)    (d = 4 or 8).
//
// Errors:
//
//   - ErrEmpty: fewer than 2 rows or columns.
//   - ErrNonRectangular: ragged values or axis length mismatch.
//   - ErrAxis: axis not strictly increasing.
package raster

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrEmpty indicates fewer than two rows or columns.
	ErrEmpty = errors.New("raster: need at least 2 rows and 2 columns")
	// ErrNonRectangular indicates ragged rows or axes that do not match the values.
	ErrNonRectangular = errors.New("raster: values must be rectangular and match the axes")
	// ErrAxis indicates a non-increasing axis.
	ErrAxis = errors.New("raster: axis must be strictly increasing")
)

// Connectivity selects neighbor connectivity: orthogonal (Conn4) or including diagonals (Conn8).
type Connectivity int

const (
	// Conn4 uses N, E, S, W.
	Conn4 Connectivity = iota
	// Conn8 adds NE, SE, SW, NW.
	Conn8
)

// Raster is an immutable regular grid. Values[r][c] sits at (Xs[c], Ys[r]).
type Raster struct {
	Xs, Ys []float64
	Values [][]float64
}

// New deep-copies values and validates the axes.
func New(xs, ys []float64, values [][]float64) (*Raster, error) {
	if len(xs) < 2 || len(ys) < 2 {
		return nil, ErrEmpty
	}
	if len(values) != len(ys) {
		return nil, fmt.Errorf("%d rows for %d y values: %w", len(values), len(ys), ErrNonRectangular)
	}
	for _, axis := range [][]float64{xs, ys} {
		for i := 1; i < len(axis); i++ {
			if !(axis[i] > axis[i-1]) {
				return nil, ErrAxis
			}
		}
	}
	cells := make([][]float64, len(ys))
	for r, row := range values {
		if len(row) != len(xs) {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", r, len(row), len(xs), ErrNonRectangular)
		}
		cells[r] = append([]float64(nil), row...)
	}

	return &Raster{
		Xs:     append([]float64(nil), xs...),
		Ys:     append([]float64(nil), ys...),
		Values: cells,
	}, nil
}

// Sample builds a raster by evaluating f at every (x, y) node; f reports
// ok=false for undefined cells, which become NaN.
func Sample(xs, ys []float64, f func(x, y float64) (float64, bool)) (*Raster, error) {
	values := make([][]float64, len(ys))
	for r, y := range ys {
		values[r] = make([]float64, len(xs))
		for c, x := range xs {
			v, ok := f(x, y)
			if !ok {
				v = math.NaN()
			}
			values[r][c] = v
		}
	}

	return New(xs, ys, values)
}

// Width is the number of columns.
func (r *Raster) Width() int { return len(r.Xs) }

// Height is the number of rows.
func (r *Raster) Height() int { return len(r.Ys) }

// Finite reports whether cell (row, col) holds a finite value.
func (r *Raster) Finite(row, col int) bool {
	v := r.Values[row][col]

	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// FiniteCount counts finite cells.
func (r *Raster) FiniteCount() int {
	n := 0
	for row := range r.Values {
		for col := range r.Values[row] {
			if r.Finite(row, col) {
				n++
			}
		}
	}

	return n
}

// Gradient returns ∂v/∂x (along columns) and ∂v/∂y (along rows) at every
// node. Non-uniform axes use the neighbor distance of each node.
func (r *Raster) Gradient() (dx, dy [][]float64) {
	h, w := r.Height(), r.Width()
	dx = make([][]float64, h)
	dy = make([][]float64, h)
	for row := 0; row < h; row++ {
		dx[row] = make([]float64, w)
		dy[row] = make([]float64, w)
		for col := 0; col < w; col++ {
			dx[row][col] = diff(r.Xs, col, func(i int) float64 { return r.Values[row][i] })
			dy[row][col] = diff(r.Ys, row, func(i int) float64 { return r.Values[i][col] })
		}
	}

	return dx, dy
}

// diff differentiates along one axis at position i.
func diff(axis []float64, i int, at func(int) float64) float64 {
	n := len(axis)
	switch i {
	case 0:
		return (at(1) - at(0)) / (axis[1] - axis[0])
	case n - 1:
		return (at(n-1) - at(n-2)) / (axis[n-1] - axis[n-2])
	default:
		return (at(i+1) - at(i-1)) / (axis[i+1] - axis[i-1])
	}
}

// Magnitude returns sqrt(dx² + dy²) cell by cell.
func Magnitude(dx, dy [][]float64) [][]float64 {
	out := make([][]float64, len(dx))
	for row := range dx {
		out[row] = make([]float64, len(dx[row]))
		for col := range dx[row] {
			out[row][col] = math.Hypot(dx[row][col], dy[row][col])
		}
	}

	return out
}

// Regions finds the connected components of finite cells. Each component
// lists row-major cell indices (row·Width + col) in BFS order; components
// appear in row-major order of their first cell.
func (r *Raster) Regions(conn Connectivity) [][]int {
	w, h := r.Width(), r.Height()
	seen := make([]bool, w*h)
	offsets := [][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}}
	if conn == Conn8 {
		offsets = [][2]int{{0, -1}, {1, -1}, {1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}}
	}

	var comps [][]int
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			start := row*w + col
			if seen[start] || !r.Finite(row, col) {
				continue
			}
			queue := []int{start}
			seen[start] = true
			for qi := 0; qi < len(queue); qi++ {
				u := queue[qi]
				ux, uy := u%w, u/w
				for _, d := range offsets {
					vx, vy := ux+d[0], uy+d[1]
					if vx < 0 || vx >= w || vy < 0 || vy >= h || !r.Finite(vy, vx) {
						continue
					}
					v := vy*w + vx
					if !seen[v] {
						seen[v] = true
						queue = append(queue, v)
					}
				}
			}
			comps = append(comps, queue)
		}
	}

	return comps
}
