// SPDX-License-Identifier: MIT

package gp

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/katalvlaran/lvlake/stage"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"
)

// chunkSize bounds the number of rows evaluated per prediction batch.
const chunkSize = 256

// Engine trains a multitask GP and serves predictions once Ready.
// An Engine is not safe for concurrent Fit/Condition; Predict on a Ready
// engine only reads shared state.
type Engine struct {
	opts   Options
	log    *logrus.Logger
	state  State
	layout layout
	hp     Hyperparameters
	model  *posterior
}

// New validates opts and returns an Untrained engine.
func New(opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}

	return &Engine{opts: opts, log: log, state: Untrained}, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// Hyperparameters returns a copy of the frozen hyperparameters (zero value
// before Fit completes).
func (e *Engine) Hyperparameters() Hyperparameters { return e.hp.Clone() }

// Fit optimizes the hyperparameters on train, monitoring val after every
// step. taskScale converts standardized RMSE to physical units (the target
// scaler's per-task standard deviation).
//
// Steps per iteration:
//  1. loss and analytic gradient of the current train-conditioned model;
//  2. one Adam step;
//  3. re-condition on train (reused by the next iteration);
//  4. validation and training RMSE in physical units;
//  5. stall counter update and the patience check.
//
// Errors:
//   - ErrBadState unless Untrained.
//   - ErrEmptyData / ErrShape on malformed data or taskScale (stage train, ErrInputValidation).
//   - stage.ErrNumericalInstability with Iteration = last valid iteration.
func (e *Engine) Fit(train, val Data, taskScale []float64) (*Report, error) {
	if e.state != Untrained {
		return nil, fmt.Errorf("fit in state %s: %w", e.state, ErrBadState)
	}
	n, dim, tasks, err := train.validate()
	if err != nil {
		return nil, stage.New(stage.Train, stage.ErrInputValidation, fmt.Errorf("train: %w", err))
	}
	_, vdim, vtasks, err := val.validate()
	if err != nil {
		kind := stage.ErrInputValidation
		if len(val.X) == 0 {
			kind = stage.ErrInsufficientData
		}
		return nil, stage.New(stage.Train, kind, fmt.Errorf("validation: %w", err))
	}
	if vdim != dim || vtasks != tasks || len(taskScale) != tasks {
		return nil, stage.New(stage.Train, stage.ErrInputValidation,
			fmt.Errorf("validation %dx%d, scale %d vs train %dx%d: %w", vdim, vtasks, len(taskScale), dim, tasks, ErrShape))
	}

	e.state = Training
	e.layout = layout{dim: dim, tasks: tasks, rank: e.opts.Rank}
	theta := e.layout.initial(e.opts.Seed)
	e.log.WithFields(logrus.Fields{
		"train": n, "validation": len(val.X), "dim": dim, "tasks": tasks, "rank": e.opts.Rank,
	}).Info("gp: training started")

	post, err := condition(e.layout.decode(theta), train.X, train.Y)
	if err != nil {
		return nil, e.fail(0, err)
	}

	rep := &Report{BestRMSE: math.Inf(1), StopReason: IterationLimitReached}
	opt := newAdam(len(theta), e.opts.LearningRate)
	stall := 0
	for it := 1; it <= e.opts.Iterations; it++ {
		loss, grad := post.lossAndGrad(e.layout)
		if !finite(loss) || !finite(grad...) {
			return nil, e.fail(it-1, fmt.Errorf("loss %v at iteration %d", loss, it))
		}
		opt.update(theta, grad)
		if !e.layout.bounded(theta) {
			return nil, e.fail(it-1, fmt.Errorf("hyperparameters diverged at iteration %d", it))
		}
		hp := e.layout.decode(theta)
		if !hp.finite() {
			return nil, e.fail(it-1, fmt.Errorf("non-finite hyperparameters at iteration %d", it))
		}
		if post, err = condition(hp, train.X, train.Y); err != nil {
			return nil, e.fail(it-1, err)
		}

		rec := Iteration{N: it, Loss: loss}
		var valSq float64
		rec.ValidationTaskRMSE, valSq = rmse(post.mean(val.X), val.Y, taskScale)
		rec.TrainTaskRMSE, _ = rmse(post.mean(train.X), train.Y, taskScale)
		rec.ValidationRMSE = math.Sqrt(valSq) * stat.Mean(taskScale, nil)
		if !finite(rec.ValidationRMSE) {
			return nil, e.fail(it-1, fmt.Errorf("validation rmse %v at iteration %d", rec.ValidationRMSE, it))
		}
		rep.History = append(rep.History, rec)
		rep.Iterations = it
		rep.Final = hp

		if rec.ValidationRMSE < rep.BestRMSE {
			rep.BestRMSE, rep.BestIteration, rep.Best = rec.ValidationRMSE, it, hp.Clone()
			stall = 0
		} else {
			stall++
		}
		if e.opts.LogEvery > 0 && it%e.opts.LogEvery == 0 {
			e.log.WithFields(logrus.Fields{
				"iteration": it, "loss": loss, "val_rmse": rec.ValidationRMSE, "stall": stall,
			}).Debug("gp: iteration")
		}
		if stall >= e.opts.Patience {
			rep.StopReason = EarlyStopped

			break
		}
	}

	e.hp = rep.Final
	e.state = rep.StopReason
	e.log.WithFields(logrus.Fields{
		"iterations": rep.Iterations, "reason": rep.StopReason.String(),
		"best_iteration": rep.BestIteration, "best_rmse": rep.BestRMSE,
	}).Info("gp: training finished")

	return rep, nil
}

// fail resets the engine and tags err as a train-stage numerical failure.
func (e *Engine) fail(lastValid int, err error) error {
	e.state = Untrained
	e.log.WithError(err).WithField("last_valid_iteration", lastValid).Error("gp: training aborted")
	se := stage.New(stage.Train, stage.ErrNumericalInstability, err)
	se.Iteration = lastValid

	return se
}

// Condition builds the inference model on all data (train ∪ validation)
// with the frozen hyperparameters and moves the engine to Ready.
func (e *Engine) Condition(all Data) error {
	if e.state != EarlyStopped && e.state != IterationLimitReached {
		return fmt.Errorf("condition in state %s: %w", e.state, ErrBadState)
	}
	_, dim, tasks, err := all.validate()
	if err != nil {
		return stage.New(stage.Train, stage.ErrInputValidation, err)
	}
	if dim != e.layout.dim || tasks != e.layout.tasks {
		return stage.New(stage.Train, stage.ErrInputValidation,
			fmt.Errorf("conditioning data %dx%d, trained %dx%d: %w", dim, tasks, e.layout.dim, e.layout.tasks, ErrShape))
	}
	post, err := condition(e.hp, cloneRows(all.X), cloneRows(all.Y))
	if err != nil {
		return stage.New(stage.Train, stage.ErrNumericalInstability, err)
	}
	e.state = FullDataConditioned
	post.buildGram()
	e.model = post
	e.state = Ready
	e.log.WithField("samples", len(all.X)).Info("gp: full-data model ready")

	return nil
}

// Predict returns the predictive mean and variance (task noise included)
// of every task for each standardized row of x, in standardized units.
func (e *Engine) Predict(x [][]float64) (mean, variance [][]float64, err error) {
	if e.state != Ready {
		return nil, nil, stage.New(stage.Predict, stage.ErrInputValidation, ErrNotReady)
	}
	for i, row := range x {
		if len(row) != e.layout.dim {
			return nil, nil, stage.New(stage.Predict, stage.ErrInputValidation,
				fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), e.layout.dim, ErrShape))
		}
	}
	mean = make([][]float64, 0, len(x))
	variance = make([][]float64, 0, len(x))
	for lo := 0; lo < len(x); lo += chunkSize {
		hi := lo + chunkSize
		if hi > len(x) {
			hi = len(x)
		}
		m, v := e.model.predict(x[lo:hi])
		mean = append(mean, m...)
		variance = append(variance, v...)
	}

	return mean, variance, nil
}

// Snapshot is the minimal state that reproduces a Ready engine.
type Snapshot struct {
	Hyperparameters Hyperparameters
	Data            Data
}

// Snapshot returns the frozen hyperparameters and conditioning data.
func (e *Engine) Snapshot() (Snapshot, error) {
	if e.state != Ready {
		return Snapshot{}, ErrNotReady
	}

	return Snapshot{
		Hyperparameters: e.hp.Clone(),
		Data:            Data{X: cloneRows(e.model.x), Y: cloneRows(e.model.y)},
	}, nil
}

// Restore rebuilds a Ready engine from a snapshot without training.
func Restore(snap Snapshot, opts Options) (*Engine, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	_, dim, tasks, err := snap.Data.validate()
	if err != nil {
		return nil, err
	}
	hp := snap.Hyperparameters
	if len(hp.Lengthscales) != dim || len(hp.TaskDiag) != tasks || len(hp.Means) != tasks ||
		len(hp.Noise) != tasks || len(hp.TaskFactor) != tasks {
		return nil, fmt.Errorf("hyperparameters do not match %dx%d data: %w", dim, tasks, ErrShape)
	}
	if !hp.finite() {
		return nil, stage.New(stage.Train, stage.ErrNumericalInstability,
			errors.New("gp: snapshot holds non-finite hyperparameters"))
	}
	rank := len(hp.TaskFactor[0])
	for _, row := range hp.TaskFactor {
		if len(row) != rank {
			return nil, fmt.Errorf("ragged task factor: %w", ErrShape)
		}
	}
	e.layout = layout{dim: dim, tasks: tasks, rank: rank}
	e.hp = hp.Clone()
	e.state = IterationLimitReached
	if err = e.Condition(snap.Data); err != nil {
		return nil, err
	}

	return e, nil
}

// rmse returns per-task RMSE scaled to physical units and the overall mean
// squared error in standardized units.
func rmse(pred, want [][]float64, taskScale []float64) ([]float64, float64) {
	tasks := len(taskScale)
	sq := make([]float64, tasks)
	var total float64
	for i := range pred {
		for t := 0; t < tasks; t++ {
			d := pred[i][t] - want[i][t]
			sq[t] += d * d
			total += d * d
		}
	}
	out := make([]float64, tasks)
	n := float64(len(pred))
	for t := range out {
		out[t] = math.Sqrt(sq[t]/n) * taskScale[t]
	}

	return out, total / (n * float64(tasks))
}

func cloneRows(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = append([]float64(nil), r...)
	}

	return out
}
