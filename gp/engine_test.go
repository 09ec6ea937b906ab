// SPDX-License-Identifier: MIT

package gp_test

import (
	"errors"
	"math"
	"testing"

	"github.com/katalvlaran/lvlake/gp"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waveData samples two correlated tasks on a 1-D grid.
func waveData(lo, hi float64, n int) gp.Data {
	d := gp.Data{}
	for i := 0; i < n; i++ {
		x := lo + (hi-lo)*float64(i)/float64(n-1)
		d.X = append(d.X, []float64{x})
		d.Y = append(d.Y, []float64{math.Sin(x), 0.5*math.Sin(x) + 0.2})
	}

	return d
}

func TestOptions_Validate(t *testing.T) {
	cases := []struct {
		name   string
		modify func(o *gp.Options)
		ok     bool
	}{
		{"defaults", func(o *gp.Options) {}, true},
		{"max learning rate", func(o *gp.Options) { o.LearningRate = gp.MaxLearningRate }, true},
		{"rank zero", func(o *gp.Options) { o.Rank = 0 }, false},
		{"iterations zero", func(o *gp.Options) { o.Iterations = 0 }, false},
		{"patience zero", func(o *gp.Options) { o.Patience = 0 }, false},
		{"learning rate zero", func(o *gp.Options) { o.LearningRate = 0 }, false},
		{"learning rate negative", func(o *gp.Options) { o.LearningRate = -0.1 }, false},
		{"learning rate NaN", func(o *gp.Options) { o.LearningRate = math.NaN() }, false},
		{"learning rate Inf", func(o *gp.Options) { o.LearningRate = math.Inf(1) }, false},
		{"learning rate too large", func(o *gp.Options) { o.LearningRate = 100 }, false},
		{"negative log interval", func(o *gp.Options) { o.LogEvery = -1 }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := gp.DefaultOptions()
			tc.modify(&opts)
			_, err := gp.New(opts)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, gp.ErrBadOption)
		})
	}
}

func TestEngine_PredictBeforeReady(t *testing.T) {
	e, err := gp.New(gp.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, gp.Untrained, e.State())

	_, _, err = e.Predict([][]float64{{0}})
	assert.ErrorIs(t, err, gp.ErrNotReady)
	assert.Equal(t, stage.Predict, stage.Of(err))

	assert.ErrorIs(t, e.Condition(waveData(0, 1, 3)), gp.ErrBadState)
}

// TestEngine_FitConditionPredict runs the full state machine on a smooth
// two-task signal.
func TestEngine_FitConditionPredict(t *testing.T) {
	train := waveData(-3, 3, 25)
	val := waveData(-2.9, 2.9, 6)
	opts := gp.DefaultOptions()
	opts.Iterations = 40
	opts.Patience = 100
	e, err := gp.New(opts)
	require.NoError(t, err)

	rep, err := e.Fit(train, val, []float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, gp.IterationLimitReached, rep.StopReason)
	assert.Equal(t, gp.IterationLimitReached, e.State())
	assert.Equal(t, 40, rep.Iterations)
	require.Len(t, rep.History, 40)
	assert.Len(t, rep.History[0].ValidationTaskRMSE, 2)
	assert.Len(t, rep.History[0].TrainTaskRMSE, 2)
	assert.LessOrEqual(t, rep.History[39].ValidationRMSE, rep.History[0].ValidationRMSE)
	assert.Equal(t, rep.Final, e.Hyperparameters())

	_, err = e.Fit(train, val, []float64{1, 1})
	assert.ErrorIs(t, err, gp.ErrBadState)

	all := gp.Data{X: append(train.X, val.X...), Y: append(train.Y, val.Y...)}
	require.NoError(t, e.Condition(all))
	assert.Equal(t, gp.Ready, e.State())

	mean, variance, err := e.Predict([][]float64{{0.5}, {-1.5}})
	require.NoError(t, err)
	require.Len(t, mean, 2)
	assert.InDelta(t, math.Sin(0.5), mean[0][0], 0.15)
	assert.InDelta(t, 0.5*math.Sin(-1.5)+0.2, mean[1][1], 0.15)
	for _, v := range variance {
		for _, s := range v {
			assert.Greater(t, s, 0.0)
		}
	}

	_, _, err = e.Predict([][]float64{{1, 2}})
	assert.ErrorIs(t, err, gp.ErrShape)
}

// TestEngine_EarlyStopping places validation far from the data so its
// prediction is the task mean, which drifts away from the validation target.
func TestEngine_EarlyStopping(t *testing.T) {
	train := gp.Data{}
	for i := 0; i < 8; i++ {
		train.X = append(train.X, []float64{float64(i) / 4})
		train.Y = append(train.Y, []float64{1, 1})
	}
	val := gp.Data{
		X: [][]float64{{1e3}, {-1e3}},
		Y: [][]float64{{-5, -5}, {-5, -5}},
	}
	opts := gp.DefaultOptions()
	opts.Patience = 1
	e, err := gp.New(opts)
	require.NoError(t, err)

	rep, err := e.Fit(train, val, []float64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, gp.EarlyStopped, rep.StopReason)
	assert.Equal(t, gp.EarlyStopped, e.State())
	assert.Equal(t, 2, rep.Iterations)
	assert.Equal(t, 1, rep.BestIteration)
	assert.Equal(t, rep.History[0].ValidationRMSE, rep.BestRMSE)
	// no rollback: the final parameters are those of the stopping iteration
	assert.NotEqual(t, rep.Best.Means, rep.Final.Means)
}

func TestEngine_NumericalInstability(t *testing.T) {
	train := waveData(0, 1, 5)
	train.Y[2][0] = math.NaN()
	e, err := gp.New(gp.DefaultOptions())
	require.NoError(t, err)

	_, err = e.Fit(train, waveData(0, 1, 3), []float64{1, 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, stage.ErrNumericalInstability)
	var se *stage.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, stage.Train, se.Stage)
	assert.Equal(t, 0, se.Iteration)
	assert.Equal(t, gp.Untrained, e.State())
}

// TestEngine_DivergingStepFails drives Adam with the largest accepted step;
// the hyperparameters blow up and training must stop with a tagged error
// instead of reaching Ready with infinite lengthscales.
func TestEngine_DivergingStepFails(t *testing.T) {
	opts := gp.DefaultOptions()
	opts.LearningRate = gp.MaxLearningRate
	opts.Iterations = 400
	opts.Patience = 1000
	e, err := gp.New(opts)
	require.NoError(t, err)

	rep, err := e.Fit(waveData(-3, 3, 20), waveData(-2.9, 2.9, 5), []float64{1, 1})
	require.Error(t, err)
	assert.Nil(t, rep)
	assert.ErrorIs(t, err, stage.ErrNumericalInstability)
	var se *stage.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, stage.Train, se.Stage)
	assert.GreaterOrEqual(t, se.Iteration, 0)
	assert.Less(t, se.Iteration, opts.Iterations)
	assert.Equal(t, gp.Untrained, e.State())
}

func TestRestore_RejectsNonFinite(t *testing.T) {
	snap := gp.Snapshot{
		Hyperparameters: gp.Hyperparameters{
			Lengthscales: []float64{math.Inf(1)},
			Outputscale:  1,
			TaskFactor:   [][]float64{{1}},
			TaskDiag:     []float64{1},
			Means:        []float64{0},
			Noise:        []float64{0.1},
		},
		Data: gp.Data{X: [][]float64{{0}, {1}}, Y: [][]float64{{0}, {1}}},
	}
	_, err := gp.Restore(snap, gp.DefaultOptions())
	assert.ErrorIs(t, err, stage.ErrNumericalInstability)
}

func TestEngine_FitValidation(t *testing.T) {
	e, err := gp.New(gp.DefaultOptions())
	require.NoError(t, err)

	_, err = e.Fit(waveData(0, 1, 5), gp.Data{}, []float64{1, 1})
	assert.ErrorIs(t, err, stage.ErrInsufficientData)

	_, err = e.Fit(waveData(0, 1, 5), waveData(0, 1, 3), []float64{1})
	assert.ErrorIs(t, err, gp.ErrShape)
	assert.ErrorIs(t, err, stage.ErrInputValidation)
}

func TestEngine_SnapshotRestore(t *testing.T) {
	train := waveData(-2, 2, 12)
	val := waveData(-1.9, 1.9, 4)
	opts := gp.DefaultOptions()
	opts.Iterations = 10
	e, err := gp.New(opts)
	require.NoError(t, err)
	_, err = e.Fit(train, val, []float64{1, 1})
	require.NoError(t, err)
	_, err = e.Snapshot()
	assert.ErrorIs(t, err, gp.ErrNotReady)
	require.NoError(t, e.Condition(train))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	r, err := gp.Restore(snap, gp.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, gp.Ready, r.State())

	q := [][]float64{{0.3}, {1.7}}
	m1, v1, err := e.Predict(q)
	require.NoError(t, err)
	m2, v2, err := r.Predict(q)
	require.NoError(t, err)
	for i := range q {
		assert.InDeltaSlice(t, m1[i], m2[i], 1e-12)
		assert.InDeltaSlice(t, v1[i], v2[i], 1e-12)
	}
}

func TestHyperparameters_TaskCorrelation(t *testing.T) {
	h := gp.Hyperparameters{
		TaskFactor: [][]float64{{1}, {2}},
		TaskDiag:   []float64{1, 1},
	}
	b := h.TaskCovariance()
	assert.Equal(t, [][]float64{{2, 2}, {2, 5}}, b)
	c := h.TaskCorrelation()
	assert.InDelta(t, 1, c[0][0], 1e-12)
	assert.InDelta(t, 2/math.Sqrt(10), c[0][1], 1e-12)
}

func BenchmarkEngine_Fit(b *testing.B) {
	train := waveData(-3, 3, 40)
	val := waveData(-2.9, 2.9, 10)
	opts := gp.DefaultOptions()
	opts.Iterations = 5
	for i := 0; i < b.N; i++ {
		e, _ := gp.New(opts)
		_, _ = e.Fit(train, val, []float64{1, 1})
	}
}
