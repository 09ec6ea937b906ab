// Package stratify partitions samples into train and validation index sets,
// balanced across equal-width depth strata.
//
// Algorithm Outline:
//  1. Bin every depth into Strata equal-width bins over [min, max]; the maximum
//     lands in the last bin, a zero range puts everything into bin 0.
//  2. Seed one math/rand source with Seed.
//  3. For each non-empty bin in ascending order: shuffle its member indices,
//     send the first ⌊(1-r)·n⌋ to train and the rest to validation. A bin whose
//     train share rounds to zero is too small to split and goes to train whole.
//
// Guarantees: train ∪ validation = all indices, train ∩ validation = ∅, and
// every bin with n ≥ 2 members contributes to both sets whenever ⌊(1-r)·n⌋ ≥ 1.
package stratify

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/katalvlaran/lvlake/stage"
	"golang.org/x/exp/slices"
)

// Options configures Split.
type Options struct {
	// ValidationRatio is the fraction r ∈ (0,1) sent to validation.
	ValidationRatio float64
	// Seed drives the deterministic per-bin shuffle.
	Seed int64
	// Strata is the number of equal-width depth bins (10 = deciles).
	Strata int
}

// DefaultOptions returns r=0.2, Seed=42, Strata=10.
func DefaultOptions() Options {
	return Options{ValidationRatio: 0.2, Seed: 42, Strata: 10}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	if !(o.ValidationRatio > 0 && o.ValidationRatio < 1) {
		return stage.Errorf(stage.Split, stage.ErrInputValidation, "validation ratio %v outside (0,1)", o.ValidationRatio)
	}
	if o.Strata < 1 {
		return stage.Errorf(stage.Split, stage.ErrInputValidation, "strata %d < 1", o.Strata)
	}

	return nil
}

// Partition holds disjoint, sorted index sets over the input collection.
type Partition struct {
	Train      []int
	Validation []int
	// Strata[i] is the depth bin of sample i.
	Strata []int
}

// Split partitions len(depths) samples by depth stratum.
//
// Errors (all *stage.Error with Stage=split):
//   - ErrInputValidation for bad options, empty input or non-finite depths.
//   - ErrInsufficientData when either resulting set is empty.
//
// Complexity: O(n log n).
func Split(depths []float64, opts Options) (Partition, error) {
	if err := opts.Validate(); err != nil {
		return Partition{}, err
	}
	if len(depths) == 0 {
		return Partition{}, stage.Errorf(stage.Split, stage.ErrInputValidation, "no samples to split")
	}

	strata, err := Bin(depths, opts.Strata)
	if err != nil {
		return Partition{}, err
	}

	members := make([][]int, opts.Strata)
	for i, b := range strata {
		members[b] = append(members[b], i)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	trainRatio := 1 - opts.ValidationRatio
	p := Partition{Strata: strata}
	for _, idx := range members {
		if len(idx) == 0 {
			continue
		}
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })

		// small epsilon so 0.8*5 = 3.9999999999999996 still yields 4
		cut := int(math.Floor(trainRatio*float64(len(idx)) + 1e-9))
		if cut == 0 {
			// bin too small to split: it trains whole, see the Guarantees
			// note above; Split fails later only if nothing validates.
			cut = len(idx)
		}
		p.Train = append(p.Train, idx[:cut]...)
		p.Validation = append(p.Validation, idx[cut:]...)
	}
	slices.Sort(p.Train)
	slices.Sort(p.Validation)

	if len(p.Train) == 0 || len(p.Validation) == 0 {
		return Partition{}, stage.Errorf(stage.Split, stage.ErrInsufficientData,
			"split of %d samples left train=%d validation=%d", len(depths), len(p.Train), len(p.Validation))
	}

	return p, nil
}

// Bin assigns each depth to one of n equal-width bins over the observed range.
func Bin(depths []float64, n int) ([]int, error) {
	if n < 1 {
		return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "bin count %d < 1", n)
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, d := range depths {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, stage.Errorf(stage.Split, stage.ErrInputValidation, "depth %d is not finite", i)
		}
		lo = math.Min(lo, d)
		hi = math.Max(hi, d)
	}

	out := make([]int, len(depths))
	width := hi - lo
	if width <= 0 {
		return out, nil
	}
	for i, d := range depths {
		b := int((d - lo) / width * float64(n))
		if b >= n {
			b = n - 1
		}
		out[i] = b
	}

	return out, nil
}

// Select gathers rows[idx] in index order. It panics on out-of-range
// indices, which can only come from a Partition built for other data.
func Select[T any](rows []T, idx []int) []T {
	out := make([]T, len(idx))
	for k, i := range idx {
		out[k] = rows[i]
	}

	return out
}

// String summarizes the partition sizes.
func (p Partition) String() string {
	return fmt.Sprintf("train=%d validation=%d", len(p.Train), len(p.Validation))
}
