package raster_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/lvlake/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestGradient_PerAxisSpacing uses different spacings on x and y so a
// swapped spacing would be caught.
func TestGradient_PerAxisSpacing(t *testing.T) {
	xs := []float64{0, 2, 4, 6}
	ys := []float64{0, 0.5, 1}
	r, err := raster.Sample(xs, ys, func(x, y float64) (float64, bool) { return 3*x - 4*y, true })
	require.NoError(t, err)

	dx, dy := r.Gradient()
	for row := range dx {
		for col := range dx[row] {
			assert.InDelta(t, 3, dx[row][col], 1e-12)
			assert.InDelta(t, -4, dy[row][col], 1e-12)
		}
	}
	mag := raster.Magnitude(dx, dy)
	assert.InDelta(t, 5, mag[1][2], 1e-12)
}

func TestGradient_NaNPropagates(t *testing.T) {
	nan := math.NaN()
	r, err := raster.New([]float64{0, 1, 2}, []float64{0, 1}, [][]float64{{1, nan, 3}, {1, 2, 3}})
	require.NoError(t, err)
	dx, _ := r.Gradient()
	assert.True(t, math.IsNaN(dx[0][0]))
	assert.InDelta(t, 1, dx[1][1], 1e-12)
	assert.Equal(t, 5, r.FiniteCount())
}

func TestRegions(t *testing.T) {
	nan := math.NaN()
	values := [][]float64{
		{1, nan, 1},
		{nan, 1, nan},
		{1, nan, nan},
	}
	r, err := raster.New([]float64{0, 1, 2}, []float64{0, 1, 2}, values)
	require.NoError(t, err)

	assert.Len(t, r.Regions(raster.Conn4), 4)
	c8 := r.Regions(raster.Conn8)
	require.Len(t, c8, 1)
	assert.ElementsMatch(t, []int{0, 2, 4, 6}, c8[0])
}

func TestNew_Errors(t *testing.T) {
	_, err := raster.New([]float64{0}, []float64{0, 1}, [][]float64{{1}, {2}})
	assert.ErrorIs(t, err, raster.ErrEmpty)
	_, err = raster.New([]float64{0, 1}, []float64{0, 1}, [][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, raster.ErrNonRectangular)
	_, err = raster.New([]float64{1, 0}, []float64{0, 1}, [][]float64{{1, 2}, {3, 4}})
	assert.ErrorIs(t, err, raster.ErrAxis)
}

func BenchmarkRegions(b *testing.B) {
	const n = 300
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	r, _ := raster.Sample(xs, xs, func(x, y float64) (float64, bool) {
		return x + y, int(x+y)%7 != 0
	})
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Regions(raster.Conn4)
	}
}
