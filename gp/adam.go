// SPDX-License-Identifier: MIT

package gp

import "math"

// adam is a bias-corrected Adam optimizer over a flat parameter vector.
type adam struct {
	m, v         []float64
	lr           float64
	beta1, beta2 float64
	eps          float64
	step         int
}

func newAdam(size int, lr float64) *adam {
	return &adam{
		m:     make([]float64, size),
		v:     make([]float64, size),
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
	}
}

// update moves params against grads in place.
func (a *adam) update(params, grads []float64) {
	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))
	for i, g := range grads {
		a.m[i] = a.beta1*a.m[i] + (1-a.beta1)*g
		a.v[i] = a.beta2*a.v[i] + (1-a.beta2)*g*g
		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
	}
}
