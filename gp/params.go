// SPDX-License-Identifier: MIT

package gp

import (
	"math"
	"math/rand"
)

// noiseFloor is the lower bound of every task noise variance.
const noiseFloor = 1e-4

// maxLogParam bounds |log| of every positive parameter; beyond it the
// kernel is numerically constant or zero and training has diverged.
const maxLogParam = 100

// initPositive is softplus(0): the initial value of every positive parameter.
var initPositive = math.Log(2)

// layout maps the unconstrained optimizer vector θ onto Hyperparameters.
//
//	θ = [ log ℓ (D) | log σ_f² (1) | W (T·R) | log v (T) | means (T) | log(σ² − floor) (T) ]
type layout struct {
	dim, tasks, rank int
}

func (l layout) offLength() int { return 0 }
func (l layout) offScale() int  { return l.dim }
func (l layout) offW() int      { return l.dim + 1 }
func (l layout) offDiag() int   { return l.offW() + l.tasks*l.rank }
func (l layout) offMean() int   { return l.offDiag() + l.tasks }
func (l layout) offNoise() int  { return l.offMean() + l.tasks }
func (l layout) size() int      { return l.offNoise() + l.tasks }

// initial returns the starting vector: positives at softplus(0), W ~ N(0,1)
// from a seeded source, means at zero.
func (l layout) initial(seed int64) []float64 {
	theta := make([]float64, l.size())
	logInit := math.Log(initPositive)
	for d := 0; d < l.dim; d++ {
		theta[l.offLength()+d] = logInit
	}
	theta[l.offScale()] = logInit
	rng := rand.New(rand.NewSource(seed))
	for k := 0; k < l.tasks*l.rank; k++ {
		theta[l.offW()+k] = rng.NormFloat64()
	}
	for t := 0; t < l.tasks; t++ {
		theta[l.offDiag()+t] = logInit
		theta[l.offNoise()+t] = math.Log(initPositive - noiseFloor)
	}

	return theta
}

// decode converts θ to constrained hyperparameters.
func (l layout) decode(theta []float64) Hyperparameters {
	h := Hyperparameters{
		Lengthscales: make([]float64, l.dim),
		Outputscale:  math.Exp(theta[l.offScale()]),
		TaskFactor:   make([][]float64, l.tasks),
		TaskDiag:     make([]float64, l.tasks),
		Means:        make([]float64, l.tasks),
		Noise:        make([]float64, l.tasks),
	}
	for d := 0; d < l.dim; d++ {
		h.Lengthscales[d] = math.Exp(theta[l.offLength()+d])
	}
	for t := 0; t < l.tasks; t++ {
		row := make([]float64, l.rank)
		copy(row, theta[l.offW()+t*l.rank:l.offW()+(t+1)*l.rank])
		h.TaskFactor[t] = row
		h.TaskDiag[t] = math.Exp(theta[l.offDiag()+t])
		h.Means[t] = theta[l.offMean()+t]
		h.Noise[t] = noiseFloor + math.Exp(theta[l.offNoise()+t])
	}

	return h
}

// bounded reports whether θ is finite and every log-parametrized entry
// stays within maxLogParam. Noise entries are only bounded above: a very
// negative value just pins the variance at noiseFloor.
func (l layout) bounded(theta []float64) bool {
	if !finite(theta...) {
		return false
	}
	logs := [][2]int{
		{l.offLength(), l.offScale() + 1},
		{l.offDiag(), l.offMean()},
	}
	for _, span := range logs {
		for _, v := range theta[span[0]:span[1]] {
			if math.Abs(v) > maxLogParam {
				return false
			}
		}
	}
	for _, v := range theta[l.offNoise():l.size()] {
		if v > maxLogParam {
			return false
		}
	}

	return true
}

// ardKernel evaluates exp(-½ Σ_d (a_d − b_d)² / ℓ_d²).
func ardKernel(a, b, lengthscales []float64) float64 {
	var acc float64
	for d, ls := range lengthscales {
		diff := (a[d] - b[d]) / ls
		acc += diff * diff
	}

	return math.Exp(-0.5 * acc)
}

// finite reports whether every element of v is finite.
func finite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}

	return true
}
