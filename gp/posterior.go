// SPDX-License-Identifier: MIT

package gp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// jitterSchedule is tried in order when the covariance is not numerically PD.
var jitterSchedule = []float64{0, 1e-6, 1e-5, 1e-4}

// errNotPD marks a covariance that stayed indefinite under every jitter.
var errNotPD = errors.New("gp: covariance is not positive definite")

// posterior is an exact GP conditioned on (x, y) under fixed hyperparameters.
// It is immutable after construction.
type posterior struct {
	hp    Hyperparameters
	task  [][]float64 // B
	x, y  [][]float64
	n, t  int
	base  [][]float64   // k(x_i, x_j) without σ_f²
	chol  mat.Cholesky  // of K + jitter
	kinv  *mat.SymDense // K⁻¹
	alpha []float64     // K⁻¹ (y − μ), interleaved
	resid []float64     // y − μ, interleaved
	beta  [][]float64   // beta[i][s] = Σ_t α(i,t) B[t,s]
	gram  []*mat.SymDense
}

// condition factorizes K for (x, y) and precomputes α and K⁻¹.
func condition(hp Hyperparameters, x, y [][]float64) (*posterior, error) {
	n, t := len(x), len(hp.TaskDiag)
	p := &posterior{hp: hp, task: hp.TaskCovariance(), x: x, y: y, n: n, t: t}

	p.base = make([][]float64, n)
	for i := 0; i < n; i++ {
		p.base[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		p.base[i][i] = 1
		for j := i + 1; j < n; j++ {
			v := ardKernel(x[i], x[j], hp.Lengthscales)
			p.base[i][j], p.base[j][i] = v, v
		}
	}

	size := n * t
	k := mat.NewSymDense(size, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			kij := hp.Outputscale * p.base[i][j]
			for s := 0; s < t; s++ {
				uStart := 0
				if i == j {
					uStart = s
				}
				for u := uStart; u < t; u++ {
					k.SetSym(i*t+s, j*t+u, kij*p.task[s][u])
				}
			}
		}
		for s := 0; s < t; s++ {
			k.SetSym(i*t+s, i*t+s, k.At(i*t+s, i*t+s)+hp.Noise[s])
		}
	}
	if err := p.factorize(k); err != nil {
		return nil, err
	}

	p.resid = make([]float64, size)
	for i := 0; i < n; i++ {
		for s := 0; s < t; s++ {
			p.resid[i*t+s] = y[i][s] - hp.Means[s]
		}
	}
	var alpha mat.VecDense
	if err := tolerateCondition(p.chol.SolveVecTo(&alpha, mat.NewVecDense(size, p.resid))); err != nil {
		return nil, err
	}
	p.alpha = make([]float64, size)
	for a := 0; a < size; a++ {
		p.alpha[a] = alpha.AtVec(a)
	}
	if !finite(p.alpha...) {
		return nil, fmt.Errorf("non-finite weights: %w", errNotPD)
	}

	p.kinv = &mat.SymDense{}
	if err := tolerateCondition(p.chol.InverseTo(p.kinv)); err != nil {
		return nil, err
	}

	p.beta = make([][]float64, n)
	for i := 0; i < n; i++ {
		p.beta[i] = make([]float64, t)
		for s := 0; s < t; s++ {
			var acc float64
			for u := 0; u < t; u++ {
				acc += p.alpha[i*t+u] * p.task[u][s]
			}
			p.beta[i][s] = acc
		}
	}

	return p, nil
}

// factorize runs Cholesky with the escalating jitter schedule.
func (p *posterior) factorize(k *mat.SymDense) error {
	size, _ := k.Dims()
	diag := make([]float64, size)
	for a := 0; a < size; a++ {
		diag[a] = k.At(a, a)
	}
	for _, jitter := range jitterSchedule {
		for a := 0; a < size; a++ {
			k.SetSym(a, a, diag[a]+jitter)
		}
		if p.chol.Factorize(k) {
			return nil
		}
	}

	return errNotPD
}

// tolerateCondition drops gonum's ill-conditioning warning; the solution is
// still returned and downstream finiteness checks catch real failures.
func tolerateCondition(err error) error {
	var cond mat.Condition
	if err == nil || errors.As(err, &cond) {
		return nil
	}

	return err
}

// lossAndGrad returns −log p(y|θ) / (N·T) and its gradient w.r.t. θ.
//
// With Q = K⁻¹ − ααᵀ every covariance parameter obeys
// ∂L/∂θ = ½ tr(Q ∂K/∂θ) / (N·T); the task means give −Σ_i α(i,t) / (N·T).
func (p *posterior) lossAndGrad(l layout) (float64, []float64) {
	n, t := p.n, p.t
	nt := float64(n * t)
	hp := p.hp

	var quad float64
	for a, r := range p.resid {
		quad += r * p.alpha[a]
	}
	loss := (0.5*quad + 0.5*p.chol.LogDet() + 0.5*nt*math.Log(2*math.Pi)) / nt

	q := func(a, b int) float64 { return p.kinv.At(a, b) - p.alpha[a]*p.alpha[b] }

	// P[i][j] = Σ_st Q(i,s;j,t) B_st and M[s][u] = Σ_ij Q(i,s;j,u) σ_f² k_ij.
	pm := make([][]float64, n)
	m := make([][]float64, t)
	for s := range m {
		m[s] = make([]float64, t)
	}
	for i := 0; i < n; i++ {
		pm[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			sk := hp.Outputscale * p.base[i][j]
			var acc float64
			for s := 0; s < t; s++ {
				for u := 0; u < t; u++ {
					qv := q(i*t+s, j*t+u)
					acc += qv * p.task[s][u]
					m[s][u] += qv * sk
				}
			}
			pm[i][j] = acc
		}
	}

	grad := make([]float64, l.size())
	var gScale float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			w := pm[i][j] * hp.Outputscale * p.base[i][j]
			gScale += w
			if i == j {
				continue
			}
			for d, ls := range hp.Lengthscales {
				diff := (p.x[i][d] - p.x[j][d]) / ls
				grad[l.offLength()+d] += w * diff * diff
			}
		}
	}
	for d := range hp.Lengthscales {
		grad[l.offLength()+d] *= 0.5 / nt
	}
	grad[l.offScale()] = 0.5 * gScale / nt

	for u := 0; u < t; u++ {
		for r := 0; r < l.rank; r++ {
			var acc float64
			for s := 0; s < t; s++ {
				acc += m[u][s] * hp.TaskFactor[s][r]
			}
			grad[l.offW()+u*l.rank+r] = acc / nt
		}
		grad[l.offDiag()+u] = 0.5 * m[u][u] * hp.TaskDiag[u] / nt

		var aSum, qDiag float64
		for i := 0; i < n; i++ {
			aSum += p.alpha[i*t+u]
			qDiag += q(i*t+u, i*t+u)
		}
		grad[l.offMean()+u] = -aSum / nt
		grad[l.offNoise()+u] = 0.5 * qDiag * (hp.Noise[u] - noiseFloor) / nt
	}

	return loss, grad
}

// crossKernel fills kx[i] = k(x*, x_i).
func (p *posterior) crossKernel(xs []float64, kx []float64) {
	for i := 0; i < p.n; i++ {
		kx[i] = ardKernel(xs, p.x[i], p.hp.Lengthscales)
	}
}

// mean returns the predictive mean of every task at each row of xs.
func (p *posterior) mean(xs [][]float64) [][]float64 {
	out := make([][]float64, len(xs))
	kx := make([]float64, p.n)
	for r, row := range xs {
		p.crossKernel(row, kx)
		out[r] = p.meanAt(kx)
	}

	return out
}

func (p *posterior) meanAt(kx []float64) []float64 {
	mu := make([]float64, p.t)
	for s := 0; s < p.t; s++ {
		var acc float64
		for i, k := range kx {
			acc += k * p.beta[i][s]
		}
		mu[s] = p.hp.Means[s] + p.hp.Outputscale*acc
	}

	return mu
}

// buildGram precomputes G_s[i][j] = Σ_tu B_st K⁻¹(i,t;j,u) B_su so that the
// variance reduction for task s is σ_f⁴ · kᵀ G_s k.
func (p *posterior) buildGram() {
	n, t := p.n, p.t
	p.gram = make([]*mat.SymDense, t)
	for s := 0; s < t; s++ {
		g := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				var acc float64
				for a := 0; a < t; a++ {
					for b := 0; b < t; b++ {
						acc += p.task[s][a] * p.kinv.At(i*t+a, j*t+b) * p.task[s][b]
					}
				}
				g.SetSym(i, j, acc)
			}
		}
		p.gram[s] = g
	}
}

// predict returns predictive mean and variance (observation noise included).
func (p *posterior) predict(xs [][]float64) (mean, variance [][]float64) {
	if p.gram == nil {
		p.buildGram()
	}
	mean = make([][]float64, len(xs))
	variance = make([][]float64, len(xs))
	kx := make([]float64, p.n)
	kv := mat.NewVecDense(p.n, kx)
	s2 := p.hp.Outputscale * p.hp.Outputscale
	for r, row := range xs {
		p.crossKernel(row, kx)
		mean[r] = p.meanAt(kx)
		v := make([]float64, p.t)
		for s := 0; s < p.t; s++ {
			prior := p.hp.Outputscale*p.task[s][s] + p.hp.Noise[s]
			reduction := s2 * mat.Inner(kv, p.gram[s], kv)
			// clamp tiny negatives from round-off
			v[s] = math.Max(prior-reduction, p.hp.Noise[s]*1e-6)
		}
		variance[r] = v
	}

	return mean, variance
}
