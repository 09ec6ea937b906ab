package analytics

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlake/smooth"
	"github.com/katalvlaran/lvlake/stage"
)

// ThermoclineOptions tunes DetectThermocline.
type ThermoclineOptions struct {
	MinDepths      int     // distinct depths required, default 4
	MinResample    int     // lower bound of the resample size, default 100
	ResampleFactor int     // resample size ≥ factor × distinct depths, default 5
	EdgeTrim       int     // gradient samples dropped at each end, default 2
	MedianFraction float64 // rolling-median width as a share of the interior, default 0.05
}

// DefaultThermoclineOptions returns {4, 100, 5, 2, 0.05}.
func DefaultThermoclineOptions() ThermoclineOptions {
	return ThermoclineOptions{MinDepths: 4, MinResample: 100, ResampleFactor: 5, EdgeTrim: 2, MedianFraction: 0.05}
}

// Validate checks option ranges.
func (o ThermoclineOptions) Validate() error {
	if o.MinDepths < 2 || o.MinResample < 2 || o.ResampleFactor < 1 || o.EdgeTrim < 0 ||
		!(o.MedianFraction >= 0 && o.MedianFraction < 1) {
		return stage.Errorf(stage.Analyze, stage.ErrInputValidation, "thermocline options %+v", o)
	}

	return nil
}

// Thermocline is the steepest temperature decline of a profile.
type Thermocline struct {
	Valid       bool
	Reason      error   // set when Valid is false
	Depth       float64 // m
	Gradient    float64 // °C/m, negative for a decline
	Temperature float64 // smoothed temperature at Depth
	Resolution  float64 // spacing of the resampled depth grid
}

// DetectThermocline locates the thermocline of the (depth, temperature) cloud.
//
// Steps:
//  1. mean temperature per distinct depth (≥ MinDepths required);
//  2. linear resample to max(MinResample, ResampleFactor × distinct) depths;
//  3. Savitzky–Golay smoothing with smooth.Window parameters;
//  4. central-difference gradient, EdgeTrim samples dropped at both ends;
//  5. centered rolling median of width max(3, ⌊MedianFraction × interior⌋), forced odd;
//  6. the most negative defined median wins; among equal values forming a
//     contiguous run the run's centre is taken.
func DetectThermocline(depths, temps []float64, opts ThermoclineOptions) (Thermocline, error) {
	if err := opts.Validate(); err != nil {
		return Thermocline{}, err
	}
	prof, err := DepthProfile(depths, temps, Mean)
	if err != nil {
		return Thermocline{}, err
	}
	if prof.Len() < opts.MinDepths {
		return Thermocline{Reason: insufficient("%d distinct depths, need %d", prof.Len(), opts.MinDepths)}, nil
	}

	n := opts.ResampleFactor * prof.Len()
	if n < opts.MinResample {
		n = opts.MinResample
	}
	zs, ts, err := smooth.Resample(prof.Depths, prof.Values, n)
	if err != nil {
		return Thermocline{}, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}
	if window, order := smooth.Window(n); window > 0 {
		if ts, err = smooth.SavitzkyGolay(ts, window, order); err != nil {
			return Thermocline{}, stage.Wrap(stage.Analyze, stage.ErrNumericalInstability, err)
		}
	}
	step := zs[1] - zs[0]
	grad, err := smooth.Gradient(ts, step)
	if err != nil {
		return Thermocline{}, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}
	if len(grad) <= 2*opts.EdgeTrim {
		return Thermocline{Reason: insufficient("no interior gradient")}, nil
	}
	interior := grad[opts.EdgeTrim : len(grad)-opts.EdgeTrim]

	win := int(opts.MedianFraction * float64(len(interior)))
	if win < 3 {
		win = 3
	}
	if win%2 == 0 {
		win++
	}
	rolled, err := smooth.RollingMedian(interior, win)
	if err != nil {
		return Thermocline{}, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}

	idx := steepest(rolled)
	if idx < 0 {
		return Thermocline{Reason: insufficient("rolling median window %d exceeds %d gradient samples", win, len(interior))}, nil
	}
	full := idx + opts.EdgeTrim

	return Thermocline{
		Valid:       true,
		Depth:       zs[full],
		Gradient:    rolled[idx],
		Temperature: ts[full],
		Resolution:  step,
	}, nil
}

// steepest returns the centre of the first run of minimal defined values,
// or -1 when every value is NaN.
func steepest(v []float64) int {
	first := -1
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		if first < 0 || x < v[first] {
			first = i
		}
	}
	if first < 0 {
		return -1
	}
	last := first
	for last+1 < len(v) && v[last+1] == v[first] {
		last++
	}

	return (first + last) / 2
}

// String renders a one-line summary.
func (t Thermocline) String() string {
	if !t.Valid {
		return fmt.Sprintf("thermocline: n/a (%v)", t.Reason)
	}

	return fmt.Sprintf("thermocline: %.2f m, %.3f °C/m, %.2f °C", t.Depth, t.Gradient, t.Temperature)
}
