// SPDX-License-Identifier: MIT

package gp

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func gradFixture() (layout, []float64, [][]float64, [][]float64) {
	rng := rand.New(rand.NewSource(7))
	l := layout{dim: 2, tasks: 2, rank: 1}
	theta := l.initial(3)
	for k := range theta {
		theta[k] += 0.3 * rng.NormFloat64()
	}
	x := make([][]float64, 7)
	y := make([][]float64, 7)
	for i := range x {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		x[i] = []float64{a, b}
		y[i] = []float64{math.Sin(a) + 0.1*b, math.Cos(b) - 0.5*a}
	}

	return l, theta, x, y
}

// TestLossAndGrad_FiniteDifference compares the analytic gradient with
// central differences for every parameter block.
func TestLossAndGrad_FiniteDifference(t *testing.T) {
	l, theta, x, y := gradFixture()
	post, err := condition(l.decode(theta), x, y)
	require.NoError(t, err)
	_, grad := post.lossAndGrad(l)

	const h = 1e-5
	for k := range theta {
		plus := append([]float64(nil), theta...)
		minus := append([]float64(nil), theta...)
		plus[k] += h
		minus[k] -= h
		pp, err := condition(l.decode(plus), x, y)
		require.NoError(t, err)
		pm, err := condition(l.decode(minus), x, y)
		require.NoError(t, err)
		lp, _ := pp.lossAndGrad(l)
		lm, _ := pm.lossAndGrad(l)
		fd := (lp - lm) / (2 * h)
		require.InDelta(t, fd, grad[k], 1e-5+1e-4*math.Abs(fd), "parameter %d", k)
	}
}

// TestPosterior_InterpolatesWithLowNoise checks the mean passes near the
// data and the variance stays positive and below the prior.
func TestPosterior_InterpolatesWithLowNoise(t *testing.T) {
	l := layout{dim: 1, tasks: 2, rank: 1}
	theta := make([]float64, l.size())
	theta[l.offW()], theta[l.offW()+1] = 1, 0.5
	for u := 0; u < l.tasks; u++ {
		theta[l.offNoise()+u] = math.Log(1e-6)
	}
	x := [][]float64{{-2}, {-1}, {0}, {1}, {2}}
	y := make([][]float64, len(x))
	for i, row := range x {
		y[i] = []float64{math.Sin(row[0]), 0.5 * row[0]}
	}
	post, err := condition(l.decode(theta), x, y)
	require.NoError(t, err)
	mean, variance := post.predict(x)
	prior := post.task
	for i := range x {
		for s := 0; s < l.tasks; s++ {
			require.InDelta(t, y[i][s], mean[i][s], 0.05)
			require.Greater(t, variance[i][s], 0.0)
			require.Less(t, variance[i][s], prior[s][s])
		}
	}
}

func TestAdam_MovesAgainstGradient(t *testing.T) {
	opt := newAdam(2, 0.1)
	p := []float64{1, -1}
	opt.update(p, []float64{2, -3})
	require.InDelta(t, 0.9, p[0], 1e-6)
	require.InDelta(t, -0.9, p[1], 1e-6)
}

func TestLayout_Bounded(t *testing.T) {
	l := layout{dim: 2, tasks: 2, rank: 1}
	cases := []struct {
		name string
		at   int
		v    float64
		want bool
	}{
		{name: "initial", at: -1, want: true},
		{name: "huge lengthscale", at: l.offLength(), v: 101, want: false},
		{name: "vanishing lengthscale", at: l.offLength() + 1, v: -101, want: false},
		{name: "huge outputscale", at: l.offScale(), v: 150, want: false},
		{name: "vanishing task diagonal", at: l.offDiag(), v: -101, want: false},
		{name: "large task factor", at: l.offW(), v: 500, want: true},
		{name: "large mean", at: l.offMean(), v: -500, want: true},
		{name: "noise at the floor", at: l.offNoise(), v: -500, want: true},
		{name: "exploding noise", at: l.offNoise() + 1, v: 101, want: false},
		{name: "NaN mean", at: l.offMean(), v: math.NaN(), want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			theta := l.initial(1)
			if tc.at >= 0 {
				theta[tc.at] = tc.v
			}
			require.Equal(t, tc.want, l.bounded(theta))
		})
	}
}
