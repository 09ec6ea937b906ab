package analytics

import (
	"errors"
	"math"

	"github.com/katalvlaran/lvlake/delaunay"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/raster"
	"github.com/katalvlaran/lvlake/stage"
)

// GradientOptions tunes EstimateHorizontalGradient.
type GradientOptions struct {
	Window       float64             // half-width of the depth slice (m), default 0.5
	RasterSize   int                 // nodes per axis of the interpolation raster, default 30
	MinPoints    int                 // distinct positions required, default 3
	Connectivity raster.Connectivity // region connectivity, default Conn4
}

// DefaultGradientOptions returns {0.5, 30, 3, Conn4}.
func DefaultGradientOptions() GradientOptions {
	return GradientOptions{Window: 0.5, RasterSize: 30, MinPoints: 3, Connectivity: raster.Conn4}
}

// Validate checks option ranges.
func (o GradientOptions) Validate() error {
	if !(o.Window > 0) || o.RasterSize < 2 || o.MinPoints < 3 {
		return stage.Errorf(stage.Analyze, stage.ErrInputValidation, "gradient options %+v", o)
	}

	return nil
}

// HorizontalGradient describes |∇T| on a depth slice.
type HorizontalGradient struct {
	Valid       bool
	Reason      error
	Depth       float64 // target depth
	Points      int     // distinct (x, y) positions in the slice
	Max         float64 // °C/m
	Mean        float64 // °C/m
	FiniteCells int     // raster cells with a defined gradient
	Regions     int     // connected groups of defined cells
	Raster      *raster.Raster
}

// EstimateHorizontalGradient interpolates the temperatures of points with
// |depth − target| ≤ Window onto a RasterSize² grid over the slice's bounding
// box and reports the gradient magnitude over the cells where it is defined.
// Values sharing an (x, y) position are averaged first.
func EstimateHorizontalGradient(x, y, depth, temp []float64, target float64, opts GradientOptions) (HorizontalGradient, error) {
	if err := opts.Validate(); err != nil {
		return HorizontalGradient{}, err
	}
	if err := checkColumns(x, y, depth, temp); err != nil {
		return HorizontalGradient{}, err
	}

	type acc struct {
		sum float64
		n   int
	}
	sums := make(map[delaunay.Point]*acc)
	var order []delaunay.Point
	for i := range x {
		if math.Abs(depth[i]-target) > opts.Window {
			continue
		}
		p := delaunay.Point{X: x[i], Y: y[i]}
		a, ok := sums[p]
		if !ok {
			a = &acc{}
			sums[p] = a
			order = append(order, p)
		}
		a.sum += temp[i]
		a.n++
	}
	res := HorizontalGradient{Depth: target, Points: len(order)}
	if len(order) < opts.MinPoints {
		res.Reason = insufficient("%d positions within %.2f m of %.2f m", len(order), opts.Window, target)

		return res, nil
	}

	values := make([]float64, len(order))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range order {
		values[i] = sums[p].sum / float64(sums[p].n)
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	tri, err := delaunay.Triangulate(order)
	if errors.Is(err, stage.ErrBoundaryComputation) {
		res.Reason = insufficient("slice positions are degenerate (%v)", err)

		return res, nil
	}
	if err != nil {
		return HorizontalGradient{}, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}

	xs := grid.Linspace(minX, maxX, opts.RasterSize)
	ys := grid.Linspace(minY, maxY, opts.RasterSize)
	var interpErr error
	r, err := raster.Sample(xs, ys, func(px, py float64) (float64, bool) {
		v, ok, err := tri.Interpolate(values, delaunay.Point{X: px, Y: py})
		if err != nil {
			interpErr = err
		}

		return v, ok
	})
	if err == nil {
		err = interpErr
	}
	if err != nil {
		return HorizontalGradient{}, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}
	res.Raster = r

	dx, dy := r.Gradient()
	mag := raster.Magnitude(dx, dy)
	var sum float64
	res.Max = math.Inf(-1)
	for row := range mag {
		for col, m := range mag[row] {
			if math.IsNaN(m) || math.IsInf(m, 0) {
				mag[row][col] = math.NaN()
				continue
			}
			res.FiniteCells++
			sum += m
			res.Max = math.Max(res.Max, m)
		}
	}
	if res.FiniteCells == 0 {
		res.Max = 0
		res.Reason = insufficient("no raster cell has a defined gradient")

		return res, nil
	}
	res.Mean = sum / float64(res.FiniteCells)
	magRaster, err := raster.New(xs, ys, mag)
	if err != nil {
		return HorizontalGradient{}, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}
	res.Regions = len(magRaster.Regions(opts.Connectivity))
	res.Valid = true

	return res, nil
}
