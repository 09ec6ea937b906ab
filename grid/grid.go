// Package grid synthesizes boundary-constrained, depth-capped prediction grids
// from raw sample positions.
//
// Algorithm Outline:
//  1. Linspace Resolution values per axis over the (x, y) bounding box of the
//     samples; candidates are enumerated x-major (x outer, y inner).
//  2. Triangulate the distinct (x, y) sample positions and keep the candidates
//     that fall inside some triangle. This approximates the sampled footprint
//     (convex hull of the samples), not the true shoreline.
//  3. For every kept position query the k = min(Neighbors, n) nearest samples
//     with a k-d tree and take the largest depth among them.
//  4. Emit DepthSamples evenly spaced depths in [0, SafetyFactor × localMax].
//  5. In spatio-temporal mode append (month, year − YearBase) to every row.
//
// The grid depends only on sample coordinates; it never touches the model.
package grid

import (
	"container/heap"
	"fmt"
	"math"

	"github.com/katalvlaran/lvlake/delaunay"
	"github.com/katalvlaran/lvlake/stage"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// TimeTag fixes the month and calendar year of every generated row.
type TimeTag struct {
	Month int
	Year  int
}

// Options configures Synthesize.
type Options struct {
	Resolution   int      // points per horizontal axis, ≥ 2
	Neighbors    int      // k of the depth-cap query, ≥ 1
	SafetyFactor float64  // fraction of the local max depth, (0, 1]
	DepthSamples int      // depths per column, ≥ 1
	YearBase     int      // subtracted from TimeTag.Year
	Time         *TimeTag // nil in spatial mode
}

// DefaultOptions returns Resolution=60, Neighbors=5, SafetyFactor=0.95,
// DepthSamples=25, YearBase=2020 and no time tag.
func DefaultOptions() Options {
	return Options{Resolution: 60, Neighbors: 5, SafetyFactor: 0.95, DepthSamples: 25, YearBase: 2020}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	switch {
	case o.Resolution < 2:
		return stage.Errorf(stage.Grid, stage.ErrInputValidation, "resolution %d < 2", o.Resolution)
	case o.Neighbors < 1:
		return stage.Errorf(stage.Grid, stage.ErrInputValidation, "neighbors %d < 1", o.Neighbors)
	case !(o.SafetyFactor > 0 && o.SafetyFactor <= 1):
		return stage.Errorf(stage.Grid, stage.ErrInputValidation, "safety factor %v outside (0,1]", o.SafetyFactor)
	case o.DepthSamples < 1:
		return stage.Errorf(stage.Grid, stage.ErrInputValidation, "depth samples %d < 1", o.DepthSamples)
	case o.Time != nil && (o.Time.Month < 1 || o.Time.Month > 12):
		return stage.Errorf(stage.Grid, stage.ErrInputValidation, "month %d outside [1,12]", o.Time.Month)
	}

	return nil
}

// FeatureNames lists the columns of Grid.Features for these options.
func (o Options) FeatureNames() []string {
	if o.Time != nil {
		return []string{"x", "y", "depth", "month", "year_offset"}
	}

	return []string{"x", "y", "depth"}
}

// Point is a raw sample position.
type Point struct {
	X, Y, Depth float64
}

// Column is one retained horizontal position.
type Column struct {
	X, Y     float64
	MaxDepth float64   // max depth among the k nearest samples
	Depths   []float64 // ascending, last = SafetyFactor × MaxDepth
}

// Grid is the synthesized prediction grid.
type Grid struct {
	Columns []Column
	// Features holds one raw feature row per (column, depth), column-major.
	Features [][]float64
	// FeatureNames labels Features' columns.
	FeatureNames []string
	// Candidates is the number of linspace positions before footprint filtering.
	Candidates int
}

// Synthesize builds the grid for points.
//
// Errors (stage grid):
//   - stage.ErrInputValidation for invalid options or non-finite points;
//   - stage.ErrInsufficientData when points is empty or no candidate survives;
//   - stage.ErrBoundaryComputation for a degenerate footprint.
func Synthesize(points []Point, opts Options) (*Grid, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, stage.Errorf(stage.Grid, stage.ErrInsufficientData, "no sample positions")
	}

	flat := make([]delaunay.Point, len(points))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i, p := range points {
		if !isFinite(p.X) || !isFinite(p.Y) || !isFinite(p.Depth) {
			return nil, stage.Errorf(stage.Grid, stage.ErrInputValidation, "point %d is not finite", i)
		}
		flat[i] = delaunay.Point{X: p.X, Y: p.Y}
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}

	tri, err := delaunay.Triangulate(flat)
	if err != nil {
		return nil, stage.New(stage.Grid, stage.ErrBoundaryComputation, fmt.Errorf("sample footprint: %w", err))
	}

	xs := Linspace(minX, maxX, opts.Resolution)
	ys := Linspace(minY, maxY, opts.Resolution)
	g := &Grid{Candidates: len(xs) * len(ys), FeatureNames: opts.FeatureNames()}

	index := newDepthIndex(points)
	k := opts.Neighbors
	if k > len(points) {
		k = len(points)
	}
	for _, x := range xs {
		for _, y := range ys {
			if !tri.Contains(delaunay.Point{X: x, Y: y}) {
				continue
			}
			local := index.maxDepth(x, y, k)
			col := Column{X: x, Y: y, MaxDepth: local, Depths: Linspace(0, opts.SafetyFactor*local, opts.DepthSamples)}
			for _, d := range col.Depths {
				row := []float64{x, y, d}
				if opts.Time != nil {
					row = append(row, float64(opts.Time.Month), float64(opts.Time.Year-opts.YearBase))
				}
				g.Features = append(g.Features, row)
			}
			g.Columns = append(g.Columns, col)
		}
	}
	if len(g.Columns) == 0 {
		return nil, stage.Errorf(stage.Grid, stage.ErrInsufficientData, "no candidate inside the footprint")
	}

	return g, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive; n == 1
// yields {hi}.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{hi}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi

	return out
}

// depthIndex answers k-nearest-neighbor depth queries over sample positions.
type depthIndex struct {
	tree *kdtree.Tree
}

func newDepthIndex(points []Point) depthIndex {
	sites := make(sitePoints, len(points))
	for i, p := range points {
		sites[i] = site{X: p.X, Y: p.Y, Depth: p.Depth}
	}

	return depthIndex{tree: kdtree.New(sites, false)}
}

// maxDepth returns the largest depth among the k samples nearest to (x, y).
func (d depthIndex) maxDepth(x, y float64, k int) float64 {
	keeper := kdtree.NewNKeeper(k)
	d.tree.NearestSet(keeper, site{X: x, Y: y})
	best := math.Inf(-1)
	for keeper.Len() > 0 {
		item := heap.Pop(keeper).(kdtree.ComparableDist)
		s, ok := item.Comparable.(site)
		if !ok {
			continue // unfilled keeper sentinel
		}
		best = math.Max(best, s.Depth)
	}

	return best
}

func isFinite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func (o Options) String() string {
	return fmt.Sprintf("grid(res=%d k=%d safety=%.2f depths=%d time=%v)",
		o.Resolution, o.Neighbors, o.SafetyFactor, o.DepthSamples, o.Time != nil)
}
