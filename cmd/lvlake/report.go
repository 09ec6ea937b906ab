package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/katalvlaran/lvlake/pipeline"
)

// report prints the training summary, the derived indicators and, when obs is
// not nil, the observed per-depth and per-month statistics.
func report(w io.Writer, s *pipeline.Session, a *pipeline.Analysis, obs *pipeline.Observed) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "mode\t%s\n", s.Config.Mode)
	fmt.Fprintf(tw, "tasks\t%v\n", s.Tasks)
	if rep := s.Report; rep != nil {
		fmt.Fprintf(tw, "training\t%d iterations, %s, best RMSE %.4f at %d\n",
			rep.Iterations, rep.StopReason, rep.BestRMSE, rep.BestIteration)
	}
	if a.Thermocline != nil {
		fmt.Fprintf(tw, "thermocline\t%s\n", a.Thermocline)
	}
	if h := a.Hypoxia; h != nil {
		shallowest := "none"
		if h.ShallowestBelow != nil {
			shallowest = fmt.Sprintf("%.2f m", *h.ShallowestBelow)
		}
		fmt.Fprintf(tw, "hypoxia\t%.1f%% below %.1f mg/L, min %.2f, shallowest %s\n",
			100*h.Fraction, h.Threshold, h.Min, shallowest)
	}
	if g := a.Gradient; g != nil {
		if g.Valid {
			fmt.Fprintf(tw, "horizontal gradient\tat %.2f m: max %.4f, mean %.4f °C/m over %d cells in %d regions\n",
				g.Depth, g.Max, g.Mean, g.FiniteCells, g.Regions)
		} else {
			fmt.Fprintf(tw, "horizontal gradient\tat %.2f m: n/a (%v)\n", g.Depth, g.Reason)
		}
	}
	for _, task := range s.Tasks {
		u, ok := a.Uncertainty[task]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\tmean σ %.4f, p10 %.3f, p50 %.3f, p90 %.3f\n", task, u.MeanStd, u.P10, u.P50, u.P90)
	}
	if obs == nil {
		return
	}
	for _, task := range s.Tasks {
		for _, b := range obs.DepthBins[task] {
			fmt.Fprintf(tw, "%s depth bin\t%s: n=%d mean %.3f, median %.3f, range %.3f..%.3f\n",
				task, b.Label(), b.Count, b.Mean, b.Median, b.Min, b.Max)
		}
		for _, p := range obs.Trends[task] {
			fmt.Fprintf(tw, "%s trend\t%s: n=%d mean %.3f, std %.3f, range %.3f..%.3f\n",
				task, p.Label(), p.Count, p.Mean, p.Std, p.Min, p.Max)
		}
	}
}
