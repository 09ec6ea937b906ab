package analytics

import (
	"fmt"
	"math"

	"github.com/katalvlaran/lvlake/smooth"
	"github.com/katalvlaran/lvlake/stage"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Uncertainty summarizes one task of a prediction table.
type Uncertainty struct {
	MeanStd       float64 // average predictive σ
	P10, P50, P90 float64 // percentiles of the predicted mean
	ByDepth       Profile // mean σ per distinct depth
}

// SummarizeUncertainty computes mean σ, mean-prediction percentiles and the
// σ-by-depth profile. Empty input yields NaN statistics.
func SummarizeUncertainty(depths, mean, std []float64) (Uncertainty, error) {
	if err := checkColumns(depths, mean, std); err != nil {
		return Uncertainty{}, err
	}
	u := Uncertainty{
		MeanStd: math.NaN(),
		P10:     smooth.Quantile(mean, 0.10),
		P50:     smooth.Quantile(mean, 0.50),
		P90:     smooth.Quantile(mean, 0.90),
	}
	if len(std) > 0 {
		u.MeanStd = stat.Mean(std, nil)
	}
	prof, err := DepthProfile(depths, std, Mean)
	if err != nil {
		return Uncertainty{}, err
	}
	u.ByDepth = prof

	return u, nil
}

// Stats are descriptive statistics of one group; Std is the sample standard
// deviation (NaN for a single value).
type Stats struct {
	Count       int
	Mean, Std   float64
	Min, Median float64
	Max         float64
}

func describe(v []float64) Stats {
	s := Stats{Count: len(v), Mean: math.NaN(), Std: math.NaN(), Min: math.NaN(), Median: math.NaN(), Max: math.NaN()}
	if len(v) == 0 {
		return s
	}
	s.Mean = stat.Mean(v, nil)
	if len(v) > 1 {
		s.Std = stat.StdDev(v, nil)
	}
	s.Min, s.Max = floats.Min(v), floats.Max(v)
	s.Median = smooth.Median(v)

	return s
}

// DepthBin is one bin of SummarizeDepthBins.
type DepthBin struct {
	Lower, Upper float64 // (Lower, Upper]; the first bin also holds Lower
	Stats
}

// Label renders the bin as "a-b m".
func (b DepthBin) Label() string { return fmt.Sprintf("%.1f-%.1f m", b.Lower, b.Upper) }

// SummarizeDepthBins groups samples into right-closed bins of the given
// width starting at the shallowest depth; empty bins are omitted.
func SummarizeDepthBins(depths, values []float64, width float64) ([]DepthBin, error) {
	if !(width > 0) {
		return nil, stage.Errorf(stage.Analyze, stage.ErrInputValidation, "bin width %v <= 0", width)
	}
	if err := checkColumns(depths, values); err != nil {
		return nil, err
	}
	if len(depths) == 0 {
		return nil, nil
	}
	lo := floats.Min(depths)
	groups := make(map[int][]float64)
	for i, d := range depths {
		k := binIndex(d, lo, width)
		groups[k] = append(groups[k], values[i])
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]DepthBin, 0, len(keys))
	for _, k := range keys {
		out = append(out, DepthBin{
			Lower: lo + float64(k)*width,
			Upper: lo + float64(k+1)*width,
			Stats: describe(groups[k]),
		})
	}

	return out, nil
}

// binIndex is the right-closed bin of d; lo itself falls into bin 0.
func binIndex(d, lo, width float64) int {
	if d <= lo {
		return 0
	}

	return int(math.Ceil((d-lo)/width)) - 1
}

// Period is one month of TemporalTrend.
type Period struct {
	Year, Month int
	Stats
}

// Label renders the period as "YYYY-MM".
func (p Period) Label() string { return fmt.Sprintf("%04d-%02d", p.Year, p.Month) }

// TemporalTrend groups samples with minDepth ≤ depth ≤ maxDepth by calendar
// month and returns the periods in chronological order.
func TemporalTrend(depths, values []float64, months, years []int, minDepth, maxDepth float64) ([]Period, error) {
	if len(months) != len(depths) || len(years) != len(depths) {
		return nil, stage.Errorf(stage.Analyze, stage.ErrInputValidation,
			"%d depths, %d months, %d years", len(depths), len(months), len(years))
	}
	if err := checkColumns(depths, values); err != nil {
		return nil, err
	}
	if minDepth > maxDepth {
		return nil, stage.Errorf(stage.Analyze, stage.ErrInputValidation, "depth range [%v, %v] is empty", minDepth, maxDepth)
	}
	groups := make(map[int][]float64)
	for i, d := range depths {
		if d < minDepth || d > maxDepth {
			continue
		}
		key := periodKey(years[i], months[i])
		groups[key] = append(groups[key], values[i])
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]Period, 0, len(keys))
	for _, k := range keys {
		out = append(out, Period{Year: k / 12, Month: k%12 + 1, Stats: describe(groups[k])})
	}

	return out, nil
}

func periodKey(year, month int) int { return year*12 + month - 1 }

// DepthPeriodTable crosses depth bins with calendar months. Mean[i][j] is the
// mean value of the samples in Bins[i] taken in Periods[j], NaN when the cell
// holds none.
type DepthPeriodTable struct {
	Bins    []DepthBin
	Periods []Period
	Mean    [][]float64
}

// Cell returns the mean of bin row i and period column j.
func (t DepthPeriodTable) Cell(i, j int) float64 { return t.Mean[i][j] }

// DepthPeriodMatrix pivots samples into depth bins (as SummarizeDepthBins)
// by month (as TemporalTrend over all depths).
func DepthPeriodMatrix(depths, values []float64, months, years []int, width float64) (DepthPeriodTable, error) {
	bins, err := SummarizeDepthBins(depths, values, width)
	if err != nil {
		return DepthPeriodTable{}, err
	}
	periods, err := TemporalTrend(depths, values, months, years, math.Inf(-1), math.Inf(1))
	if err != nil {
		return DepthPeriodTable{}, err
	}
	t := DepthPeriodTable{Bins: bins, Periods: periods, Mean: make([][]float64, len(bins))}
	if len(bins) == 0 {
		return t, nil
	}

	// bins come out in ascending key order, so rank the distinct keys the same way
	lo := floats.Min(depths)
	keys := make([]int, len(depths))
	for k, d := range depths {
		keys[k] = binIndex(d, lo, width)
	}
	distinct := slices.Clone(keys)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	row := make(map[int]int, len(distinct))
	for i, k := range distinct {
		row[k] = i
	}
	col := make(map[int]int, len(periods))
	for j, p := range periods {
		col[periodKey(p.Year, p.Month)] = j
	}

	sum := make([][]float64, len(bins))
	count := make([][]int, len(bins))
	for i := range bins {
		sum[i] = make([]float64, len(periods))
		count[i] = make([]int, len(periods))
	}
	for k := range depths {
		i, j := row[keys[k]], col[periodKey(years[k], months[k])]
		sum[i][j] += values[k]
		count[i][j]++
	}
	for i := range bins {
		t.Mean[i] = make([]float64, len(periods))
		for j := range periods {
			t.Mean[i][j] = math.NaN()
			if count[i][j] > 0 {
				t.Mean[i][j] = sum[i][j] / float64(count[i][j])
			}
		}
	}

	return t, nil
}

// PeriodProfile is the mean depth profile of one calendar month. Period.Stats
// summarize every sample of the month regardless of depth.
type PeriodProfile struct {
	Period
	Profile Profile
}

// PeriodProfiles splits samples by calendar month and builds a mean
// DepthProfile for each, in chronological order.
func PeriodProfiles(depths, values []float64, months, years []int) ([]PeriodProfile, error) {
	periods, err := TemporalTrend(depths, values, months, years, math.Inf(-1), math.Inf(1))
	if err != nil {
		return nil, err
	}
	type column struct{ depths, values []float64 }
	groups := make(map[int]*column, len(periods))
	for k, d := range depths {
		key := periodKey(years[k], months[k])
		c, ok := groups[key]
		if !ok {
			c = &column{}
			groups[key] = c
		}
		c.depths = append(c.depths, d)
		c.values = append(c.values, values[k])
	}

	out := make([]PeriodProfile, 0, len(periods))
	for _, p := range periods {
		c := groups[periodKey(p.Year, p.Month)]
		prof, err := DepthProfile(c.depths, c.values, Mean)
		if err != nil {
			return nil, err
		}
		out = append(out, PeriodProfile{Period: p, Profile: prof})
	}

	return out, nil
}
