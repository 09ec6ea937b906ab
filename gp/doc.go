// SPDX-License-Identifier: MIT
// Package gp implements the multitask Gaussian-process regression engine.
//
// 🚀 Model
//
//	Outputs of T correlated tasks are modelled jointly. For samples i, j and
//	tasks s, t the covariance is
//
//	  K[(i,s),(j,t)] = σ_f² · k(x_i, x_j) · B[s,t] + δ_ij δ_st · σ²_t
//
//	  k(x, x') = exp(-½ Σ_d (x_d - x'_d)² / ℓ_d²)     (ARD RBF, one ℓ per feature)
//	  B        = W Wᵀ + diag(v),  W ∈ ℝ^{T×R}         (task covariance of rank R)
//
//	with a constant mean per task. Rows are interleaved: (i,t) ↦ i·T + t.
//
// ✨ Training
//
//	Engine.Fit minimizes the negative exact marginal log-likelihood of the
//	training partition (divided by N·T) with Adam and analytic gradients. After
//	every step the validation RMSE, in physical units, is compared with the best
//	seen; Patience non-improving iterations stop the loop early.
//
//	Engine.Condition then conditions a second posterior on train ∪ validation
//	with the hyperparameters of the stopping iteration (no rollback to the best
//	iteration) and moves the engine to Ready, the only state that predicts.
//
// State machine:
//
//	Untrained → Training → {EarlyStopped | IterationLimitReached}
//	          → FullDataConditioned → Ready
//
// Complexity: each iteration factorizes an (N·T)×(N·T) covariance, O((N·T)³).
// Callers bound N, T and Iterations to bound latency.
package gp
