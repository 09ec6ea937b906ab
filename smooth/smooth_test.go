package smooth_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/katalvlaran/lvlake/smooth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResample_Linear(t *testing.T) {
	xs, ys, err := smooth.Resample([]float64{0, 1, 4}, []float64{0, 2, 5}, 5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3, 4}, xs)
	assert.InDeltaSlice(t, []float64{0, 2, 3, 4, 5}, ys, 1e-12)

	_, _, err = smooth.Resample([]float64{0, 0, 1}, []float64{1, 2, 3}, 5)
	assert.ErrorIs(t, err, smooth.ErrUnsorted)
	_, _, err = smooth.Resample([]float64{0}, []float64{1}, 5)
	assert.ErrorIs(t, err, smooth.ErrLength)
}

func TestWindow(t *testing.T) {
	cases := []struct{ n, window, order int }{
		{100, 15, 3}, {16, 15, 3}, {15, 15, 3}, {14, 13, 2}, {7, 7, 2}, {5, 5, 2}, {4, 0, 0},
	}
	for _, c := range cases {
		w, o := smooth.Window(c.n)
		assert.Equal(t, c.window, w, "n=%d", c.n)
		assert.Equal(t, c.order, o, "n=%d", c.n)
	}
}

// TestSavitzkyGolay_KnownWeights checks the classic 5-point quadratic kernel
// (-3, 12, 17, 12, -3)/35 on an impulse.
func TestSavitzkyGolay_KnownWeights(t *testing.T) {
	y := make([]float64, 11)
	y[5] = 35
	out, err := smooth.SavitzkyGolay(y, 5, 2)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-3, 12, 17, 12, -3}, out[3:8], 1e-9)
}

// TestSavitzkyGolay_PreservesCubic: an order-3 filter reproduces a cubic,
// edges included.
func TestSavitzkyGolay_PreservesCubic(t *testing.T) {
	y := make([]float64, 40)
	for i := range y {
		x := float64(i) / 10
		y[i] = 1 - 2*x + 0.5*x*x - 0.1*x*x*x
	}
	out, err := smooth.SavitzkyGolay(y, 15, 3)
	require.NoError(t, err)
	assert.InDeltaSlice(t, y, out, 1e-8)

	_, err = smooth.SavitzkyGolay(y, 14, 3)
	assert.ErrorIs(t, err, smooth.ErrWindow)
	_, err = smooth.SavitzkyGolay(y[:5], 7, 3)
	assert.ErrorIs(t, err, smooth.ErrWindow)
}

func TestGradient(t *testing.T) {
	y := []float64{0, 1, 4, 9, 16}
	g, err := smooth.Gradient(y, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 4, 6, 7}, g)

	_, err = smooth.Gradient([]float64{1}, 1)
	assert.ErrorIs(t, err, smooth.ErrLength)
}

func TestRollingMedian(t *testing.T) {
	out, err := smooth.RollingMedian([]float64{1, 2, 100, 4, 5, 6}, 3)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[5]))
	assert.Equal(t, []float64{2, 4, 5, 5}, out[1:5])

	_, err = smooth.RollingMedian(out, 4)
	assert.ErrorIs(t, err, smooth.ErrWindow)
}

func TestMedianQuantile(t *testing.T) {
	assert.Equal(t, 2.5, smooth.Median([]float64{4, 1, 3, 2}))
	assert.Equal(t, float32(3), smooth.Median([]float32{5, 3, 1}))
	assert.True(t, math.IsNaN(smooth.Median([]float64{})))
	assert.InDelta(t, 1.9, smooth.Quantile([]float64{1, 2, 3, 4, 10}, 0.225), 1e-12)
	assert.Equal(t, 10.0, smooth.Quantile([]float64{10, 1}, 1))
}

func ExampleWindow() {
	w, o := smooth.Window(120)
	fmt.Println(w, o)
	// Output: 15 3
}
