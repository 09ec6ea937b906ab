package pipeline

import (
	"math"

	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/stage"
)

// Measurements is the canonical task order.
var Measurements = []string{"pH", "temperature", "turbidity", "dissolved_oxygen", "TDS"}

// Sample is one observation at a Cartesian position (metres) and depth.
// Month is 1..12 when the sample is timestamped and 0 otherwise.
type Sample struct {
	X, Y       float64
	Depth      float64
	Month      int
	Year       int
	Values     map[string]float64
	Satellites int // GPS satellites in view; 0 when unknown
}

// Timed reports whether the sample carries a month and year.
func (s Sample) Timed() bool { return s.Month >= 1 && s.Month <= 12 }

// ValidateSamples checks positions, depths and values, and returns the
// tasks: the canonical measurements present in every sample.
//
// Errors (stage split, stage.ErrInputValidation): no samples, a non-finite
// field, a negative depth, no common measurement, or an untimed sample in
// SpatioTemporal mode.
func ValidateSamples(samples []Sample, mode Mode) ([]string, error) {
	if len(samples) == 0 {
		return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "no samples")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, stage.Wrap(stage.Split, stage.ErrInputValidation, err)
	}
	for i, s := range samples {
		if !finite(s.X) || !finite(s.Y) || !finite(s.Depth) {
			return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "sample %d: non-finite position or depth", i)
		}
		if s.Depth < 0 {
			return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "sample %d: negative depth %v", i, s.Depth)
		}
		if mode == SpatioTemporal && !s.Timed() {
			return nil, stage.Errorf(stage.Split, stage.ErrInputValidation,
				"sample %d: month %d, spatiotemporal mode needs a timestamp on every sample", i, s.Month)
		}
	}

	var tasks []string
	for _, m := range Measurements {
		everywhere := true
		for i, s := range samples {
			v, ok := s.Values[m]
			if !ok {
				everywhere = false
				break
			}
			if !finite(v) {
				return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "sample %d: %s is %v", i, m, v)
			}
		}
		if everywhere {
			tasks = append(tasks, m)
		}
	}
	if len(tasks) == 0 {
		return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "no measurement of %v is present in every sample", Measurements)
	}

	return tasks, nil
}

// FeatureNames lists the model inputs of mode.
func FeatureNames(mode Mode) []string {
	return grid.Options{Time: timeFor(mode)}.FeatureNames()
}

func timeFor(mode Mode) *grid.TimeTag {
	if mode == SpatioTemporal {
		return &grid.TimeTag{}
	}

	return nil
}

func features(samples []Sample, mode Mode, yearBase int) [][]float64 {
	out := make([][]float64, len(samples))
	for i, s := range samples {
		row := []float64{s.X, s.Y, s.Depth}
		if mode == SpatioTemporal {
			row = append(row, float64(s.Month), float64(s.Year-yearBase))
		}
		out[i] = row
	}

	return out
}

func targets(samples []Sample, tasks []string) [][]float64 {
	out := make([][]float64, len(samples))
	for i, s := range samples {
		out[i] = make([]float64, len(tasks))
		for t, name := range tasks {
			out[i][t] = s.Values[name]
		}
	}

	return out
}

func depths(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Depth
	}

	return out
}

func positions(samples []Sample) []grid.Point {
	out := make([]grid.Point, len(samples))
	for i, s := range samples {
		out[i] = grid.Point{X: s.X, Y: s.Y, Depth: s.Depth}
	}

	return out
}

// DefaultPeriod is June of the most frequent sample year (the earliest on
// ties), or nil when no sample is timed.
func DefaultPeriod(samples []Sample) *grid.TimeTag {
	counts := make(map[int]int)
	for _, s := range samples {
		if s.Timed() {
			counts[s.Year]++
		}
	}
	if len(counts) == 0 {
		return nil
	}
	best, bestN := 0, -1
	for y, n := range counts {
		if n > bestN || (n == bestN && y < best) {
			best, bestN = y, n
		}
	}

	return &grid.TimeTag{Month: 6, Year: best}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
