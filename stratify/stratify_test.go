package stratify_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/katalvlaran/lvlake/stage"
	"github.com/katalvlaran/lvlake/stratify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniformDepths(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = rng.Float64() * 30
	}

	return out
}

// TestSplit_PartitionInvariants checks union = all and intersection = ∅.
func TestSplit_PartitionInvariants(t *testing.T) {
	depths := uniformDepths(237, 1)
	p, err := stratify.Split(depths, stratify.DefaultOptions())
	require.NoError(t, err)

	seen := make(map[int]int, len(depths))
	for _, i := range p.Train {
		seen[i]++
	}
	for _, i := range p.Validation {
		seen[i]++
	}
	assert.Len(t, seen, len(depths), "union covers every index")
	for i, c := range seen {
		assert.Equal(t, 1, c, "index %d assigned more than once", i)
	}
}

// TestSplit_EveryDecileRepresented verifies bins with ≥2 members feed both sets
// when the ratio allows a nonzero integer validation count.
func TestSplit_EveryDecileRepresented(t *testing.T) {
	depths := uniformDepths(300, 2)
	opts := stratify.DefaultOptions()
	p, err := stratify.Split(depths, opts)
	require.NoError(t, err)

	inTrain := map[int]bool{}
	inVal := map[int]bool{}
	count := map[int]int{}
	for _, i := range p.Train {
		inTrain[p.Strata[i]] = true
	}
	for _, i := range p.Validation {
		inVal[p.Strata[i]] = true
	}
	for _, b := range p.Strata {
		count[b]++
	}
	for b, n := range count {
		if n < 2 {
			continue
		}
		assert.True(t, inTrain[b], "bin %d missing from train", b)
		assert.True(t, inVal[b], "bin %d missing from validation", b)
	}
}

// TestSplit_Deterministic verifies the seed fixes the partition.
func TestSplit_Deterministic(t *testing.T) {
	depths := uniformDepths(100, 3)
	a, err := stratify.Split(depths, stratify.DefaultOptions())
	require.NoError(t, err)
	b, err := stratify.Split(depths, stratify.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	opts := stratify.DefaultOptions()
	opts.Seed = 99
	c, err := stratify.Split(depths, opts)
	require.NoError(t, err)
	assert.NotEqual(t, a.Validation, c.Validation)
}

// TestSplit_SingletonBinGoesToTrain covers the accepted small-bin edge case.
func TestSplit_SingletonBinGoesToTrain(t *testing.T) {
	// bin 9 holds only depth 10; the rest share bin 0.
	depths := []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 10}
	p, err := stratify.Split(depths, stratify.DefaultOptions())
	require.NoError(t, err)

	assert.Contains(t, p.Train, 10)
	assert.NotContains(t, p.Validation, 10)
	assert.Len(t, p.Validation, 2, "bin 0 has 10 members: 8 train, 2 validation")
}

// TestSplit_BinShapes covers degenerate bin layouts that still split.
func TestSplit_BinShapes(t *testing.T) {
	cases := []struct {
		name      string
		depths    []float64
		train     int
		validated int
	}{
		{name: "all rows in one bin", depths: []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5}, train: 8, validated: 2},
		{name: "empty middle bins", depths: []float64{0, 0, 0, 0, 0, 10, 10, 10, 10, 10}, train: 8, validated: 2},
		{name: "singleton top bin", depths: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 10}, train: 9, validated: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := stratify.Split(tc.depths, stratify.DefaultOptions())
			require.NoError(t, err)
			assert.Len(t, p.Train, tc.train)
			assert.Len(t, p.Validation, tc.validated)
		})
	}
}

// TestSplit_Errors covers option and data validation.
func TestSplit_Errors(t *testing.T) {
	cases := []struct {
		name   string
		depths []float64
		ratio  float64
		strata int
		kind   error
	}{
		{name: "ratio 0", depths: []float64{1, 2, 3}, ratio: 0, strata: 10, kind: stage.ErrInputValidation},
		{name: "ratio 1", depths: []float64{1, 2, 3}, ratio: 1, strata: 10, kind: stage.ErrInputValidation},
		{name: "negative ratio", depths: []float64{1, 2, 3}, ratio: -0.2, strata: 10, kind: stage.ErrInputValidation},
		{name: "NaN ratio", depths: []float64{1, 2, 3}, ratio: math.NaN(), strata: 10, kind: stage.ErrInputValidation},
		{name: "zero strata", depths: []float64{1, 2, 3}, ratio: 0.2, strata: 0, kind: stage.ErrInputValidation},
		{name: "no samples", depths: nil, ratio: 0.2, strata: 10, kind: stage.ErrInputValidation},
		{name: "NaN depth", depths: []float64{1, math.NaN(), 3}, ratio: 0.2, strata: 10, kind: stage.ErrInputValidation},
		{name: "single sample", depths: []float64{3}, ratio: 0.2, strata: 10, kind: stage.ErrInsufficientData},
		{name: "two singleton bins", depths: []float64{1, 2}, ratio: 0.2, strata: 10, kind: stage.ErrInsufficientData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := stratify.Options{ValidationRatio: tc.ratio, Seed: 42, Strata: tc.strata}
			p, err := stratify.Split(tc.depths, opts)
			assert.ErrorIs(t, err, tc.kind)
			assert.Equal(t, stage.Split, stage.Of(err))
			assert.Empty(t, p.Train)
			assert.Empty(t, p.Validation)
		})
	}
}

// TestBin_Edges checks bin boundaries and the zero-range case.
func TestBin_Edges(t *testing.T) {
	b, err := stratify.Bin([]float64{0, 4.99, 5, 10}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1}, b)

	b, err = stratify.Bin([]float64{2, 2, 2}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, b)
}

// TestSelect gathers rows by index.
func TestSelect(t *testing.T) {
	assert.Equal(t, []string{"c", "a"}, stratify.Select([]string{"a", "b", "c"}, []int{2, 0}))
}
