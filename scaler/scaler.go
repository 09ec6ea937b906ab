// SPDX-License-Identifier: MIT
// Package: scaler
//
// Purpose:
//   - Fit an invertible per-column standardization z = (v - mean) / scale.
//   - Keep the fitted statistics immutable so every later transform (training
//     rows, grid features, predictions) uses exactly the same mapping.
//
// Exposed API:
//   - Fit(rows)                    -> (*Standard, error)
//   - (*Standard).Transform(rows)  -> standardized copy
//   - (*Standard).InverseTransform -> exact reverse (floating tolerance)
//   - (*Standard).InverseScale     -> multiply by scale only (standard deviations)
//
// Determinism:
//   - Fixed i→j traversal; no randomness.

package scaler

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/lvlake/stage"
	"gonum.org/v1/gonum/stat"
)

// MinScale floors the per-column standard deviation so that constant
// columns map to 0 instead of dividing by zero.
const MinScale = 1e-12

var (
	// ErrNoRows is returned by Fit when the dataset has zero rows.
	ErrNoRows = fmt.Errorf("scaler: cannot fit on zero rows: %w", stage.ErrInputValidation)

	// ErrDimensionMismatch indicates a row whose width differs from the fitted width.
	ErrDimensionMismatch = fmt.Errorf("scaler: row width mismatch: %w", stage.ErrInputValidation)

	// ErrNonFinite indicates a NaN or ±Inf value in the fitting data.
	ErrNonFinite = fmt.Errorf("scaler: NaN or Inf encountered: %w", stage.ErrInputValidation)

	// ErrNilScaler indicates a method call on a nil *Standard.
	ErrNilScaler = errors.New("scaler: nil receiver")
)

// Standard holds fitted column statistics. The zero value is unusable;
// build one with Fit or FromStats.
type Standard struct {
	mean  []float64
	scale []float64
}

// Fit computes the population mean and standard deviation of every column.
// Implementation:
//   - Stage 1: Validate shape (r>0, rectangular, finite).
//   - Stage 2: Gather each column and compute PopMeanVariance.
//   - Stage 3: Floor the deviation at MinScale.
//
// Errors: ErrNoRows, ErrDimensionMismatch, ErrNonFinite (all Is stage.ErrInputValidation).
//
// Complexity: O(r*c) time, O(r) scratch.
func Fit(rows [][]float64) (*Standard, error) {
	// Stage 1 (Validate)
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	c := len(rows[0])
	for i, row := range rows {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), c, ErrDimensionMismatch)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("row %d column %d: %w", i, j, ErrNonFinite)
			}
		}
	}

	// Stage 2 (Moments): one column buffer reused across columns.
	s := &Standard{mean: make([]float64, c), scale: make([]float64, c)}
	col := make([]float64, len(rows))
	for j := 0; j < c; j++ {
		for i := range rows {
			col[i] = rows[i][j]
		}
		m, v := stat.PopMeanVariance(col, nil)
		s.mean[j] = m
		// Stage 3 (Floor)
		s.scale[j] = math.Max(math.Sqrt(v), MinScale)
	}

	return s, nil
}

// FromStats rebuilds a scaler from previously fitted statistics (checkpoints).
func FromStats(mean, scale []float64) (*Standard, error) {
	if len(mean) == 0 {
		return nil, ErrNoRows
	}
	if len(mean) != len(scale) {
		return nil, ErrDimensionMismatch
	}
	s := &Standard{mean: append([]float64(nil), mean...), scale: make([]float64, len(scale))}
	for j, v := range scale {
		s.scale[j] = math.Max(v, MinScale)
	}

	return s, nil
}

// Width returns the number of fitted columns.
func (s *Standard) Width() int { return len(s.mean) }

// Mean returns a copy of the fitted column means.
func (s *Standard) Mean() []float64 { return append([]float64(nil), s.mean...) }

// Scale returns a copy of the fitted (floored) column standard deviations.
func (s *Standard) Scale() []float64 { return append([]float64(nil), s.scale...) }

// Transform maps raw rows to standardized rows. The input is not modified.
func (s *Standard) Transform(rows [][]float64) ([][]float64, error) {
	return s.apply(rows, func(j int, v float64) float64 { return (v - s.mean[j]) / s.scale[j] })
}

// InverseTransform maps standardized rows back to physical units.
func (s *Standard) InverseTransform(rows [][]float64) ([][]float64, error) {
	return s.apply(rows, func(j int, v float64) float64 { return v*s.scale[j] + s.mean[j] })
}

// InverseScale converts standardized spreads (standard deviations, RMSE) to
// physical units: multiply by the column scale, no mean shift.
func (s *Standard) InverseScale(rows [][]float64) ([][]float64, error) {
	return s.apply(rows, func(j int, v float64) float64 { return v * s.scale[j] })
}

// apply runs f over every element after validating row widths.
func (s *Standard) apply(rows [][]float64, f func(j int, v float64) float64) ([][]float64, error) {
	if s == nil {
		return nil, ErrNilScaler
	}
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.mean) {
			return nil, fmt.Errorf("row %d has %d columns, want %d: %w", i, len(row), len(s.mean), ErrDimensionMismatch)
		}
		dst := make([]float64, len(row))
		for j, v := range row {
			dst[j] = f(j, v)
		}
		out[i] = dst
	}

	return out, nil
}
