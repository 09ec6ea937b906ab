package grid_test

import (
	"math"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/katalvlaran/lvlake/delaunay"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleLake samples the right triangle x, y ≥ 0, x + y ≤ 100.
func triangleLake(n int, seed int64) []grid.Point {
	rng := rand.New(rand.NewSource(seed))
	pts := []grid.Point{{X: 0, Y: 0, Depth: 2}, {X: 100, Y: 0, Depth: 3}, {X: 0, Y: 100, Depth: 4}}
	for len(pts) < n {
		x, y := 100*rng.Float64(), 100*rng.Float64()
		if x+y > 95 {
			continue
		}
		pts = append(pts, grid.Point{X: x, Y: y, Depth: 1 + 20*rng.Float64()})
	}

	return pts
}

// TestSynthesize_FootprintMembership: candidates inside the triangulated
// hull are kept, the rest of the bounding box is dropped.
func TestSynthesize_FootprintMembership(t *testing.T) {
	opts := grid.DefaultOptions()
	opts.Resolution = 11
	g, err := grid.Synthesize(triangleLake(30, 1), opts)
	require.NoError(t, err)

	assert.Equal(t, 121, g.Candidates)
	assert.Len(t, g.Columns, 66, "pairs i+j ≤ 10 on a step-10 lattice")
	for _, c := range g.Columns {
		assert.LessOrEqual(t, c.X+c.Y, 100+1e-9)
	}
	assert.Equal(t, 0.0, g.Columns[0].X)
	assert.Equal(t, 0.0, g.Columns[0].Y)
	assert.Equal(t, 10.0, g.Columns[1].Y, "x-major order: y varies fastest")
}

// TestSynthesize_DepthCap: no generated depth exceeds SafetyFactor times
// the max depth of the k nearest samples.
func TestSynthesize_DepthCap(t *testing.T) {
	pts := triangleLake(50, 2)
	opts := grid.DefaultOptions()
	opts.Resolution = 15
	g, err := grid.Synthesize(pts, opts)
	require.NoError(t, err)
	require.NotEmpty(t, g.Columns)

	for _, c := range g.Columns {
		limit := opts.SafetyFactor * neighborMax(pts, c.X, c.Y, opts.Neighbors)
		require.Len(t, c.Depths, opts.DepthSamples)
		assert.Equal(t, 0.0, c.Depths[0])
		assert.InDelta(t, opts.SafetyFactor*c.MaxDepth, c.Depths[len(c.Depths)-1], 1e-12)
		for _, d := range c.Depths {
			assert.LessOrEqual(t, d, limit+1e-9)
		}
	}
	assert.Len(t, g.Features, len(g.Columns)*opts.DepthSamples)
	assert.Equal(t, []string{"x", "y", "depth"}, g.FeatureNames)
}

// neighborMax is a brute-force k-NN max depth; distance ties at the k-th
// place are all included, so the result bounds the k-d tree answer.
func neighborMax(pts []grid.Point, x, y float64, k int) float64 {
	type nd struct{ d2, depth float64 }
	all := make([]nd, len(pts))
	for i, p := range pts {
		all[i] = nd{(p.X-x)*(p.X-x) + (p.Y-y)*(p.Y-y), p.Depth}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].d2 < all[j].d2 })
	if k > len(all) {
		k = len(all)
	}
	cut := all[k-1].d2
	best := math.Inf(-1)
	for _, a := range all {
		if a.d2 <= cut {
			best = math.Max(best, a.depth)
		}
	}

	return best
}

func TestSynthesize_TimeTag(t *testing.T) {
	opts := grid.DefaultOptions()
	opts.Resolution = 5
	opts.DepthSamples = 3
	opts.Time = &grid.TimeTag{Month: 7, Year: 2024}
	g, err := grid.Synthesize(triangleLake(10, 3), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "y", "depth", "month", "year_offset"}, g.FeatureNames)
	for _, row := range g.Features {
		require.Len(t, row, 5)
		assert.Equal(t, 7.0, row[3])
		assert.Equal(t, 4.0, row[4])
	}
}

func TestSynthesize_Errors(t *testing.T) {
	line := []grid.Point{{X: 0, Y: 0, Depth: 1}, {X: 1, Y: 1, Depth: 2}, {X: 2, Y: 2, Depth: 3}}
	dup := []grid.Point{{X: 1, Y: 1, Depth: 1}, {X: 1, Y: 1, Depth: 2}, {X: 3, Y: 0, Depth: 3}}

	cases := []struct {
		name   string
		points []grid.Point
		mutate func(*grid.Options)
		kind   error
		cause  error
	}{
		{name: "no points", points: nil, kind: stage.ErrInsufficientData},
		{name: "collinear", points: line, kind: stage.ErrBoundaryComputation, cause: delaunay.ErrDegenerate},
		{name: "two distinct", points: dup, kind: stage.ErrBoundaryComputation, cause: delaunay.ErrTooFewPoints},
		{name: "resolution 1", points: triangleLake(5, 1), mutate: func(o *grid.Options) { o.Resolution = 1 }, kind: stage.ErrInputValidation},
		{name: "neighbors 0", points: triangleLake(5, 1), mutate: func(o *grid.Options) { o.Neighbors = 0 }, kind: stage.ErrInputValidation},
		{name: "safety factor 0", points: triangleLake(5, 1), mutate: func(o *grid.Options) { o.SafetyFactor = 0 }, kind: stage.ErrInputValidation},
		{name: "month 13", points: triangleLake(5, 1), mutate: func(o *grid.Options) { o.Time = &grid.TimeTag{Month: 13, Year: 2024} }, kind: stage.ErrInputValidation},
		{name: "NaN position", points: []grid.Point{{X: math.NaN(), Y: 0, Depth: 1}}, kind: stage.ErrInputValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := grid.DefaultOptions()
			if tc.mutate != nil {
				tc.mutate(&opts)
			}
			g, err := grid.Synthesize(tc.points, opts)
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, stage.Grid, stage.Of(err))
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}
		})
	}
}

// TestSynthesize_FootprintErrorText keeps the kind text single in the message.
func TestSynthesize_FootprintErrorText(t *testing.T) {
	line := []grid.Point{{X: 0, Y: 0, Depth: 1}, {X: 1, Y: 1, Depth: 2}, {X: 2, Y: 2, Depth: 3}}
	_, err := grid.Synthesize(line, grid.DefaultOptions())
	require.Error(t, err)

	msg := err.Error()
	assert.Equal(t, 1, strings.Count(msg, stage.ErrBoundaryComputation.Error()), msg)
	assert.True(t, strings.HasPrefix(msg, "grid: sample footprint: "), msg)
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.5, 1}, grid.Linspace(0, 1, 3))
	assert.Equal(t, []float64{4}, grid.Linspace(0, 4, 1))
	assert.Nil(t, grid.Linspace(0, 1, 0))
}

func BenchmarkSynthesize(b *testing.B) {
	pts := triangleLake(500, 4)
	opts := grid.DefaultOptions()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = grid.Synthesize(pts, opts)
	}
}
