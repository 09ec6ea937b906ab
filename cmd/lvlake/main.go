// Command lvlake trains a multitask Gaussian-process model on a lake survey
// CSV, predicts every measurement on a depth-aware grid over the lake and
// reports thermocline, hypoxia and horizontal-gradient indicators.
//
// Usage:
//
//	lvlake -data survey.csv [-config lvlake.yaml] [-out predictions.csv]
//	       [-checkpoint session.pb] [-dsn postgres://...]
//	lvlake -load session.pb -month 8 -year 2025 -out august.csv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/katalvlaran/lvlake/checkpoint"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/ingest"
	"github.com/katalvlaran/lvlake/pipeline"
	"github.com/katalvlaran/lvlake/predict"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/katalvlaran/lvlake/store"
	"github.com/sirupsen/logrus"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		var se *stage.Error
		if errors.As(err, &se) {
			fmt.Fprintf(os.Stderr, "lvlake: %s stage failed: %v\n", se.Stage, err)
		} else {
			fmt.Fprintf(os.Stderr, "lvlake: %v\n", err)
		}
		os.Exit(1)
	}
}

type flags struct {
	data, config, load string
	out, save, dsn     string
	mode, level        string
	iterations         int
	month, year        int
	gradientDepth      float64
	timeout            time.Duration
}

func parse(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("lvlake", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.data, "data", "", "survey CSV (latitude, longitude, depth, measurements)")
	fs.StringVar(&f.config, "config", "", "YAML configuration file (defaults when empty)")
	fs.StringVar(&f.load, "load", "", "restore a session checkpoint instead of training")
	fs.StringVar(&f.out, "out", "", "write grid predictions to this CSV")
	fs.StringVar(&f.save, "checkpoint", "", "save the trained session to this file")
	fs.StringVar(&f.dsn, "dsn", "", "PostgreSQL DSN for recording the run (optional)")
	fs.StringVar(&f.mode, "mode", "", `override the mode: "spatial" or "spatiotemporal"`)
	fs.StringVar(&f.level, "log-level", "info", "logrus level")
	fs.IntVar(&f.iterations, "iterations", 0, "override training_iteration_cap (0 keeps the config)")
	fs.IntVar(&f.month, "month", 0, "prediction month 1..12 (spatiotemporal mode)")
	fs.IntVar(&f.year, "year", 0, "prediction year (spatiotemporal mode)")
	fs.Float64Var(&f.gradientDepth, "gradient-depth", -1, "depth of the horizontal gradient slice; negative picks the shallowest")
	fs.DurationVar(&f.timeout, "db-timeout", 30*time.Second, "database timeout")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.data == "" && f.load == "" {
		fs.Usage()
		return f, errors.New("one of -data or -load is required")
	}

	return f, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	f, err := parse(args, stderr)
	if err != nil {
		return err
	}
	log := logrus.New()
	log.SetOutput(stderr)
	level, err := logrus.ParseLevel(f.level)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	session, samples, observed, err := obtain(f, log)
	if err != nil {
		return err
	}

	var period *grid.TimeTag
	if f.month != 0 || f.year != 0 {
		period = &grid.TimeTag{Month: f.month, Year: f.year}
		if period.Year == 0 && session.Period != nil {
			period.Year = session.Period.Year
		}
	}
	tbl, _, err := session.PredictGrid(period)
	if err != nil {
		return err
	}
	depth := f.gradientDepth
	if depth < 0 {
		depth = math.NaN()
	}
	analysis, err := session.Analyze(tbl, depth)
	if err != nil {
		return err
	}
	report(stdout, session, analysis, observed)

	if f.out != "" {
		if err = ingest.WriteTableFile(f.out, tbl); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"path": f.out, "rows": tbl.Len()}).Info("lvlake: predictions written")
	}
	if f.save != "" {
		if err = checkpoint.Save(f.save, session); err != nil {
			return err
		}
		log.WithField("path", f.save).Info("lvlake: checkpoint saved")
	}
	if f.dsn != "" {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err = record(ctx, f.dsn, session, samples, tbl, log); err != nil {
			return err
		}
	}

	return nil
}

// obtain restores the session from a checkpoint or trains a new one. The
// raw-sample summary is nil for restored sessions or when it cannot be built.
func obtain(f flags, log *logrus.Logger) (*pipeline.Session, int, *pipeline.Observed, error) {
	if f.load != "" {
		s, err := checkpoint.Load(f.load, log)
		return s, 0, nil, err
	}

	cfg := pipeline.DefaultConfig()
	if f.config != "" {
		var err error
		if cfg, err = pipeline.LoadConfig(f.config); err != nil {
			return nil, 0, nil, err
		}
	}
	if f.mode != "" {
		mode, err := pipeline.ParseMode(f.mode)
		if err != nil {
			return nil, 0, nil, err
		}
		cfg.Mode = mode
	}
	if f.iterations > 0 {
		cfg.Iterations = f.iterations
	}

	ds, err := ingest.ReadFile(f.data, ingest.DefaultOptions())
	if err != nil {
		return nil, 0, nil, err
	}
	log.WithFields(logrus.Fields{
		"rows":         len(ds.Samples),
		"measurements": ds.Measurements,
		"timed":        ds.Timed,
		"low_sats":     ds.LowSatellites,
		"incomplete":   ds.Incomplete,
	}).Info("lvlake: survey loaded")
	if ds.TimeError != nil {
		log.WithError(ds.TimeError).Warn("lvlake: timestamps ignored")
	}

	s, err := pipeline.Train(ds.Samples, cfg, log)
	if err != nil {
		return nil, 0, nil, err
	}
	obs, err := pipeline.Observe(ds.Samples, s.Tasks, cfg)
	if err != nil {
		log.WithError(err).Warn("lvlake: observed summary skipped")
		return s, len(ds.Samples), nil, nil
	}
	for task, bins := range obs.DepthBins {
		log.WithFields(logrus.Fields{"task": task, "bins": len(bins), "periods": len(obs.Trends[task])}).Debug("lvlake: observed summary")
	}

	return s, len(ds.Samples), obs, nil
}

func record(ctx context.Context, dsn string, s *pipeline.Session, samples int, tbl *predict.Table, log *logrus.Logger) error {
	rec, err := store.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer rec.Close()
	if err = rec.Migrate(ctx); err != nil {
		return err
	}
	if s.Report == nil {
		log.Warn("lvlake: restored session has no training report; run not recorded")
		return nil
	}
	id, err := rec.SaveRun(ctx, s, samples)
	if err != nil {
		return err
	}
	n, err := rec.SavePredictions(ctx, id, tbl)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"run": id, "rows": n}).Info("lvlake: run recorded")

	return nil
}
