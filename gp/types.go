// SPDX-License-Identifier: MIT

package gp

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotReady is returned by Predict before Condition has completed.
	ErrNotReady = errors.New("gp: engine is not in Ready state")

	// ErrBadState is returned when an operation is called out of order.
	ErrBadState = errors.New("gp: operation not allowed in current state")

	// ErrShape indicates inconsistent feature or target widths.
	ErrShape = errors.New("gp: inconsistent data shape")

	// ErrEmptyData indicates an empty training, validation or conditioning set.
	ErrEmptyData = errors.New("gp: empty data set")

	// ErrBadOption indicates an invalid Options field.
	ErrBadOption = errors.New("gp: invalid option")
)

// State is the lifecycle state of an Engine.
type State int

const (
	Untrained State = iota
	Training
	EarlyStopped
	IterationLimitReached
	FullDataConditioned
	Ready
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Untrained:
		return "Untrained"
	case Training:
		return "Training"
	case EarlyStopped:
		return "EarlyStopped"
	case IterationLimitReached:
		return "IterationLimitReached"
	case FullDataConditioned:
		return "FullDataConditioned"
	case Ready:
		return "Ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MaxLearningRate is the largest accepted Adam step size.
const MaxLearningRate = 10.0

// Options configures an Engine.
//
// Fields:
//   - Rank         : rank R of the task covariance factor (≥1).
//   - Iterations   : optimizer iteration budget (≥1).
//   - Patience     : non-improving iterations tolerated before stopping (≥1).
//   - LearningRate : Adam step size, 0 < lr ≤ MaxLearningRate.
//   - Seed         : seed of the task-factor initialization.
//   - LogEvery     : log every n-th iteration at Debug level (0 disables).
//   - Logger       : destination of training logs; nil discards them.
type Options struct {
	Rank         int
	Iterations   int
	Patience     int
	LearningRate float64
	Seed         int64
	LogEvery     int
	Logger       *logrus.Logger
}

// DefaultOptions returns Rank=1, Iterations=500, Patience=10, LearningRate=0.1, Seed=42.
func DefaultOptions() Options {
	return Options{
		Rank:         1,
		Iterations:   500,
		Patience:     10,
		LearningRate: 0.1,
		Seed:         42,
		LogEvery:     50,
	}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	switch {
	case o.Rank < 1:
		return fmt.Errorf("rank %d < 1: %w", o.Rank, ErrBadOption)
	case o.Iterations < 1:
		return fmt.Errorf("iterations %d < 1: %w", o.Iterations, ErrBadOption)
	case o.Patience < 1:
		return fmt.Errorf("patience %d < 1: %w", o.Patience, ErrBadOption)
	case !(o.LearningRate > 0 && o.LearningRate <= MaxLearningRate):
		return fmt.Errorf("learning rate %v outside (0, %v]: %w", o.LearningRate, MaxLearningRate, ErrBadOption)
	case o.LogEvery < 0:
		return fmt.Errorf("log interval %d < 0: %w", o.LogEvery, ErrBadOption)
	}

	return nil
}

// Data is a standardized design matrix X (N×D) with targets Y (N×T).
type Data struct {
	X [][]float64
	Y [][]float64
}

// validate checks rectangular shapes and returns (N, D, T).
func (d Data) validate() (n, dim, tasks int, err error) {
	n = len(d.X)
	if n == 0 {
		return 0, 0, 0, ErrEmptyData
	}
	if len(d.Y) != n {
		return 0, 0, 0, fmt.Errorf("%d feature rows vs %d target rows: %w", n, len(d.Y), ErrShape)
	}
	dim, tasks = len(d.X[0]), len(d.Y[0])
	if dim == 0 || tasks == 0 {
		return 0, 0, 0, fmt.Errorf("zero-width features or targets: %w", ErrShape)
	}
	for i := 0; i < n; i++ {
		if len(d.X[i]) != dim || len(d.Y[i]) != tasks {
			return 0, 0, 0, fmt.Errorf("row %d is ragged: %w", i, ErrShape)
		}
	}

	return n, dim, tasks, nil
}

// Hyperparameters is the frozen model state produced by training.
type Hyperparameters struct {
	Lengthscales []float64   // one per feature dimension
	Outputscale  float64     // σ_f²
	TaskFactor   [][]float64 // W, T×R
	TaskDiag     []float64   // v, T
	Means        []float64   // constant mean per task
	Noise        []float64   // σ²_t per task
}

// Clone returns a deep copy.
func (h Hyperparameters) Clone() Hyperparameters {
	c := Hyperparameters{
		Lengthscales: append([]float64(nil), h.Lengthscales...),
		Outputscale:  h.Outputscale,
		TaskFactor:   make([][]float64, len(h.TaskFactor)),
		TaskDiag:     append([]float64(nil), h.TaskDiag...),
		Means:        append([]float64(nil), h.Means...),
		Noise:        append([]float64(nil), h.Noise...),
	}
	for i, row := range h.TaskFactor {
		c.TaskFactor[i] = append([]float64(nil), row...)
	}

	return c
}

// finite reports whether every parameter is finite.
func (h Hyperparameters) finite() bool {
	if !finite(h.Lengthscales...) || !finite(h.Outputscale) || !finite(h.TaskDiag...) ||
		!finite(h.Means...) || !finite(h.Noise...) {
		return false
	}
	for _, row := range h.TaskFactor {
		if !finite(row...) {
			return false
		}
	}

	return true
}

// TaskCovariance returns B = W Wᵀ + diag(v).
func (h Hyperparameters) TaskCovariance() [][]float64 {
	t := len(h.TaskDiag)
	b := make([][]float64, t)
	for s := 0; s < t; s++ {
		b[s] = make([]float64, t)
		for u := 0; u < t; u++ {
			var acc float64
			for r := range h.TaskFactor[s] {
				acc += h.TaskFactor[s][r] * h.TaskFactor[u][r]
			}
			b[s][u] = acc
		}
		b[s][s] += h.TaskDiag[s]
	}

	return b
}

// TaskCorrelation normalizes TaskCovariance to unit diagonal.
func (h Hyperparameters) TaskCorrelation() [][]float64 {
	b := h.TaskCovariance()
	out := make([][]float64, len(b))
	for s := range b {
		out[s] = make([]float64, len(b))
		for u := range b {
			out[s][u] = b[s][u] / math.Sqrt(b[s][s]*b[u][u])
		}
	}

	return out
}

// Iteration records one optimizer step.
type Iteration struct {
	N                  int       // 1-based iteration number
	Loss               float64   // negative MLL / (N·T) before the step
	ValidationRMSE     float64   // overall, physical units
	ValidationTaskRMSE []float64 // per task, physical units
	TrainTaskRMSE      []float64 // per task, physical units
}

// Report summarizes a Fit run.
type Report struct {
	Iterations    int
	StopReason    State // EarlyStopped or IterationLimitReached
	BestIteration int
	BestRMSE      float64
	// Best holds the hyperparameters of BestIteration; informational only,
	// the conditioned model uses Final.
	Best    Hyperparameters
	Final   Hyperparameters
	History []Iteration
}
