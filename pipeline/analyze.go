package pipeline

import (
	"math"

	"github.com/katalvlaran/lvlake/analytics"
	"github.com/katalvlaran/lvlake/predict"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/sirupsen/logrus"
)

// Analysis gathers the derived indicators of one prediction table. Pointer
// fields are nil when the table lacks the task they need.
type Analysis struct {
	Thermocline   *analytics.Thermocline        // needs temperature
	Gradient      *analytics.HorizontalGradient // needs temperature
	Hypoxia       *analytics.Hypoxia            // needs dissolved_oxygen
	OxygenProfile *analytics.Profile            // median dissolved oxygen per depth
	Uncertainty   map[string]analytics.Uncertainty
}

// Analyze derives the indicators from tbl. gradientDepth is the target depth
// of the horizontal gradient slice; a NaN value selects the shallowest
// predicted depth.
func (s *Session) Analyze(tbl *predict.Table, gradientDepth float64) (*Analysis, error) {
	if tbl == nil || tbl.Len() == 0 {
		return nil, stage.Errorf(stage.Analyze, stage.ErrInsufficientData, "empty prediction table")
	}
	depth, err := tbl.Column("depth")
	if err != nil {
		return nil, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}
	out := &Analysis{Uncertainty: make(map[string]analytics.Uncertainty, len(tbl.Tasks))}
	for _, task := range tbl.Tasks {
		mean, std, err := taskColumns(tbl, task)
		if err != nil {
			return nil, err
		}
		u, err := analytics.SummarizeUncertainty(depth, mean, std)
		if err != nil {
			return nil, err
		}
		out.Uncertainty[task] = u
	}

	if tbl.HasTask("temperature") {
		temp, _, err := taskColumns(tbl, "temperature")
		if err != nil {
			return nil, err
		}
		th, err := analytics.DetectThermocline(depth, temp, analytics.DefaultThermoclineOptions())
		if err != nil {
			return nil, err
		}
		out.Thermocline = &th

		x, errX := tbl.Column("x")
		y, errY := tbl.Column("y")
		if errX != nil || errY != nil {
			return nil, stage.Errorf(stage.Analyze, stage.ErrInputValidation, "table lacks x/y columns")
		}
		if math.IsNaN(gradientDepth) {
			gradientDepth = minOf(depth)
		}
		g, err := analytics.EstimateHorizontalGradient(x, y, depth, temp, gradientDepth, s.Config.gradientOptions())
		if err != nil {
			return nil, err
		}
		out.Gradient = &g
	}

	if tbl.HasTask("dissolved_oxygen") {
		do, _, err := taskColumns(tbl, "dissolved_oxygen")
		if err != nil {
			return nil, err
		}
		h, err := analytics.SummarizeHypoxia(depth, do, s.Config.HypoxiaThreshold)
		if err != nil {
			return nil, err
		}
		out.Hypoxia = &h
		prof, err := analytics.DepthProfile(depth, do, analytics.Median)
		if err != nil {
			return nil, err
		}
		out.OxygenProfile = &prof
	}

	fields := logrus.Fields{"points": tbl.Len()}
	if out.Thermocline != nil {
		fields["thermocline"] = out.Thermocline.String()
	}
	if out.Hypoxia != nil {
		fields["hypoxic_fraction"] = out.Hypoxia.Fraction
	}
	discard(s.log).WithFields(fields).Info("pipeline: analysis done")

	return out, nil
}

func taskColumns(tbl *predict.Table, task string) (mean, std []float64, err error) {
	if mean, err = tbl.Column(task + "_pred"); err != nil {
		return nil, nil, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}
	if std, err = tbl.Column(task + "_std"); err != nil {
		return nil, nil, stage.Wrap(stage.Analyze, stage.ErrInputValidation, err)
	}

	return mean, std, nil
}

func minOf(v []float64) float64 {
	m := math.Inf(1)
	for _, x := range v {
		m = math.Min(m, x)
	}

	return m
}

// Observed summarizes the raw samples per task.
type Observed struct {
	DepthBins map[string][]analytics.DepthBin
	// Trends, Matrix and Profiles are empty unless every sample is timed.
	Trends   map[string][]analytics.Period
	Matrix   map[string]analytics.DepthPeriodTable
	Profiles map[string][]analytics.PeriodProfile
}

// Observe computes depth-bin statistics (bin width Config.DepthBinWidth) and,
// for timed samples, the month-by-month trend over all depths, the depth-bin
// by month mean matrix and one mean depth profile per month.
func Observe(samples []Sample, tasks []string, cfg Config) (*Observed, error) {
	if !(cfg.DepthBinWidth > 0) {
		return nil, stage.Errorf(stage.Analyze, stage.ErrInputValidation, "depth bin width %v <= 0", cfg.DepthBinWidth)
	}
	d := depths(samples)
	timed := len(samples) > 0
	months, years := make([]int, len(samples)), make([]int, len(samples))
	for i, s := range samples {
		timed = timed && s.Timed()
		months[i], years[i] = s.Month, s.Year
	}
	out := &Observed{
		DepthBins: make(map[string][]analytics.DepthBin, len(tasks)),
		Trends:    make(map[string][]analytics.Period),
		Matrix:    make(map[string]analytics.DepthPeriodTable),
		Profiles:  make(map[string][]analytics.PeriodProfile),
	}
	for _, task := range tasks {
		values := make([]float64, len(samples))
		for i, s := range samples {
			v, ok := s.Values[task]
			if !ok {
				return nil, stage.Errorf(stage.Analyze, stage.ErrInputValidation, "sample %d lacks %s", i, task)
			}
			values[i] = v
		}
		bins, err := analytics.SummarizeDepthBins(d, values, cfg.DepthBinWidth)
		if err != nil {
			return nil, err
		}
		out.DepthBins[task] = bins
		if !timed {
			continue
		}
		trend, err := analytics.TemporalTrend(d, values, months, years, 0, math.Inf(1))
		if err != nil {
			return nil, err
		}
		out.Trends[task] = trend
		matrix, err := analytics.DepthPeriodMatrix(d, values, months, years, cfg.DepthBinWidth)
		if err != nil {
			return nil, err
		}
		out.Matrix[task] = matrix
		profiles, err := analytics.PeriodProfiles(d, values, months, years)
		if err != nil {
			return nil, err
		}
		out.Profiles[task] = profiles
	}

	return out, nil
}
