// Package analytics derives physical indicators from prediction tables:
// thermocline depth, hypoxia risk, horizontal temperature gradients, and
// descriptive summaries (uncertainty, depth profiles, depth bins, temporal
// trends).
//
// Indicators that lack data degrade to a result with Valid=false and a
// Reason wrapping stage.ErrInsufficientData; only malformed input (length
// mismatches, non-finite values) is returned as an error, tagged with the
// analyze stage.
package analytics

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlake/smooth"
	"github.com/katalvlaran/lvlake/stage"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// Aggregate selects how values sharing a depth are combined.
type Aggregate int

const (
	// Mean averages values per depth.
	Mean Aggregate = iota
	// Median takes the per-depth median.
	Median
)

// Profile is a per-depth aggregate, sorted by ascending depth.
type Profile struct {
	Depths []float64
	Values []float64
	Counts []int
}

// Len is the number of distinct depths.
func (p Profile) Len() int { return len(p.Depths) }

// DepthProfile groups values by exact depth and aggregates each group.
func DepthProfile(depths, values []float64, agg Aggregate) (Profile, error) {
	if err := checkColumns(depths, values); err != nil {
		return Profile{}, err
	}
	groups := make(map[float64][]float64, len(depths))
	for i, d := range depths {
		groups[d] = append(groups[d], values[i])
	}
	keys := make([]float64, 0, len(groups))
	for d := range groups {
		keys = append(keys, d)
	}
	slices.Sort(keys)

	p := Profile{Depths: keys, Values: make([]float64, len(keys)), Counts: make([]int, len(keys))}
	for i, d := range keys {
		g := groups[d]
		p.Counts[i] = len(g)
		if agg == Median {
			p.Values[i] = smooth.Median(g)
		} else {
			p.Values[i] = stat.Mean(g, nil)
		}
	}

	return p, nil
}

// checkColumns validates equal lengths and finite values.
func checkColumns(cols ...[]float64) error {
	for k, c := range cols {
		if len(c) != len(cols[0]) {
			return stage.Errorf(stage.Analyze, stage.ErrInputValidation,
				"column %d has %d values, want %d", k, len(c), len(cols[0]))
		}
		for i, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return stage.Errorf(stage.Analyze, stage.ErrInputValidation, "column %d row %d is %v", k, i, v)
			}
		}
	}

	return nil
}

// insufficient builds the Reason of a degraded result.
func insufficient(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, stage.ErrInsufficientData)...)
}
