// Package predict applies a Ready regression model to raw feature rows and
// returns per-task predictive mean and standard deviation in physical units.
//
// Pipeline per call:
//  1. standardize features with the fitted input scaler;
//  2. one batched Model.Predict over all rows;
//  3. std = sqrt(variance);
//  4. mean → InverseTransform, std → InverseScale (no mean shift).
package predict

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/katalvlaran/lvlake/scaler"
	"github.com/katalvlaran/lvlake/stage"
)

// z95 is the two-sided 95 % normal quantile.
const z95 = 1.96

// ErrIncomplete indicates a Predictor missing its model, scalers or task names.
var ErrIncomplete = fmt.Errorf("predict: predictor is incomplete: %w", stage.ErrInputValidation)

// Model is the inference surface of a Ready engine (see gp.Engine).
type Model interface {
	Predict(x [][]float64) (mean, variance [][]float64, err error)
}

// Predictor bundles a model with the scalers fitted before training.
type Predictor struct {
	Model   Model
	ScalerX *scaler.Standard
	ScalerY *scaler.Standard
	Tasks   []string
}

// Validate checks that every collaborator is present and consistent.
func (p Predictor) Validate() error {
	switch {
	case p.Model == nil || p.ScalerX == nil || p.ScalerY == nil:
		return stage.New(stage.Predict, stage.ErrInputValidation, ErrIncomplete)
	case len(p.Tasks) == 0 || p.ScalerY.Width() != len(p.Tasks):
		return stage.New(stage.Predict, stage.ErrInputValidation,
			fmt.Errorf("%d task names for %d scaled targets: %w", len(p.Tasks), p.ScalerY.Width(), ErrIncomplete))
	}

	return nil
}

// Predict evaluates the model at raw features labelled by names.
func (p Predictor) Predict(features [][]float64, names []string) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(names) != p.ScalerX.Width() {
		return nil, stage.Errorf(stage.Predict, stage.ErrInputValidation,
			"%d feature names for %d scaled features", len(names), p.ScalerX.Width())
	}
	z, err := p.ScalerX.Transform(features)
	if err != nil {
		return nil, stage.Wrap(stage.Predict, stage.ErrInputValidation, err)
	}
	mean, variance, err := p.Model.Predict(z)
	if err != nil {
		return nil, stage.Wrap(stage.Predict, stage.ErrNumericalInstability, err)
	}
	std := make([][]float64, len(variance))
	for i, row := range variance {
		std[i] = make([]float64, len(row))
		for t, v := range row {
			std[i][t] = math.Sqrt(math.Max(v, 0))
		}
	}
	if mean, err = p.ScalerY.InverseTransform(mean); err != nil {
		return nil, stage.Wrap(stage.Predict, stage.ErrInputValidation, err)
	}
	if std, err = p.ScalerY.InverseScale(std); err != nil {
		return nil, stage.Wrap(stage.Predict, stage.ErrInputValidation, err)
	}

	rows := make([][]float64, len(features))
	for i, f := range features {
		rows[i] = append([]float64(nil), f...)
	}

	return &Table{
		Features:     rows,
		FeatureNames: append([]string(nil), names...),
		Tasks:        append([]string(nil), p.Tasks...),
		Mean:         mean,
		Std:          std,
	}, nil
}

// Table is a transient prediction result; row i of every slice describes the
// same grid point.
type Table struct {
	Features     [][]float64
	FeatureNames []string
	Tasks        []string
	Mean         [][]float64
	Std          [][]float64
	// YearBase converts a "year_offset" feature back to a calendar year in Rows.
	YearBase int
}

// ErrUnknownColumn is returned by Column for a name the table does not hold.
var ErrUnknownColumn = errors.New("predict: unknown column")

// Len is the number of rows.
func (t *Table) Len() int { return len(t.Features) }

// HasTask reports whether task is predicted.
func (t *Table) HasTask(task string) bool { return t.task(task) >= 0 }

func (t *Table) task(name string) int {
	for i, n := range t.Tasks {
		if n == name {
			return i
		}
	}

	return -1
}

func (t *Table) feature(name string) int {
	for i, n := range t.FeatureNames {
		if n == name {
			return i
		}
	}

	return -1
}

// Column extracts a column by export name: a feature name, "year" (calendar
// year from year_offset), or "{task}_pred", "{task}_std", "{task}_lower95",
// "{task}_upper95".
func (t *Table) Column(name string) ([]float64, error) {
	if f := t.feature(name); f >= 0 {
		return t.pick(func(i int) float64 { return t.Features[i][f] }), nil
	}
	if name == "year" {
		if f := t.feature("year_offset"); f >= 0 {
			return t.pick(func(i int) float64 { return t.Features[i][f] + float64(t.YearBase) }), nil
		}
	}
	cut := strings.LastIndexByte(name, '_')
	if cut > 0 {
		if k := t.task(name[:cut]); k >= 0 {
			switch name[cut+1:] {
			case "pred":
				return t.pick(func(i int) float64 { return t.Mean[i][k] }), nil
			case "std":
				return t.pick(func(i int) float64 { return t.Std[i][k] }), nil
			case "lower95":
				return t.pick(func(i int) float64 { return t.Mean[i][k] - z95*t.Std[i][k] }), nil
			case "upper95":
				return t.pick(func(i int) float64 { return t.Mean[i][k] + z95*t.Std[i][k] }), nil
			}
		}
	}

	return nil, fmt.Errorf("%q: %w", name, ErrUnknownColumn)
}

func (t *Table) pick(at func(i int) float64) []float64 {
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = at(i)
	}

	return out
}

// Lower95 returns mean − 1.96σ of task.
func (t *Table) Lower95(task string) ([]float64, error) { return t.Column(task + "_lower95") }

// Upper95 returns mean + 1.96σ of task.
func (t *Table) Upper95(task string) ([]float64, error) { return t.Column(task + "_upper95") }

// Header lists the export columns: features (year_offset shown as year)
// followed by {task}_pred, {task}_std for every task.
func (t *Table) Header() []string {
	h := make([]string, 0, len(t.FeatureNames)+2*len(t.Tasks))
	for _, n := range t.FeatureNames {
		if n == "year_offset" {
			n = "year"
		}
		h = append(h, n)
	}
	for _, task := range t.Tasks {
		h = append(h, task+"_pred", task+"_std")
	}

	return h
}

// Rows returns the export rows in Header order.
func (t *Table) Rows() [][]float64 {
	out := make([][]float64, t.Len())
	for i := range out {
		row := make([]float64, 0, len(t.FeatureNames)+2*len(t.Tasks))
		for f, n := range t.FeatureNames {
			v := t.Features[i][f]
			if n == "year_offset" {
				v += float64(t.YearBase)
			}
			row = append(row, v)
		}
		for k := range t.Tasks {
			row = append(row, t.Mean[i][k], t.Std[i][k])
		}
		out[i] = row
	}

	return out
}
