package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/katalvlaran/lvlake/gp"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/predict"
	"github.com/katalvlaran/lvlake/scaler"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/katalvlaran/lvlake/stratify"
	"github.com/sirupsen/logrus"
)

// Session is the trained state of one run. Every field is set by Train or
// Restore and must be treated as read-only afterwards.
type Session struct {
	Config   Config
	Tasks    []string // target order of the model
	Features []string // input order of the model
	ScalerX  *scaler.Standard
	ScalerY  *scaler.Standard
	Model    *gp.Engine

	// Report and Partition describe the training run; nil/zero after Restore.
	Report    *gp.Report
	Partition stratify.Partition

	// Positions are the sample locations the grid footprint is built from.
	Positions []grid.Point
	// Period is the default prediction month in SpatioTemporal mode.
	Period *grid.TimeTag

	log *logrus.Logger
}

// discard returns log, or a logger writing nowhere when log is nil.
func discard(log *logrus.Logger) *logrus.Logger {
	if log != nil {
		return log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)

	return l
}

// Train validates samples, splits them by depth stratum, fits the scalers,
// trains the engine with early stopping and conditions it on every sample.
//
// Errors are *stage.Error values; nothing is returned on failure.
func Train(samples []Sample, cfg Config, log *logrus.Logger) (*Session, error) {
	log = discard(log)
	if err := cfg.Validate(); err != nil {
		return nil, stage.Wrap(stage.Split, stage.ErrInputValidation, err)
	}
	tasks, err := ValidateSamples(samples, cfg.Mode)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	log.WithFields(logrus.Fields{"samples": len(samples), "tasks": tasks, "mode": cfg.Mode}).Info("pipeline: training run started")

	x := features(samples, cfg.Mode, cfg.YearBase)
	y := targets(samples, tasks)
	part, err := stratify.Split(depths(samples), cfg.splitOptions())
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"train": len(part.Train), "validation": len(part.Validation)}).Debug("pipeline: split done")

	fitX, fitY := x, y
	if cfg.ScaleOnTrainOnly {
		fitX, fitY = stratify.Select(x, part.Train), stratify.Select(y, part.Train)
	}
	sx, err := scaler.Fit(fitX)
	if err != nil {
		return nil, stage.Wrap(stage.Train, stage.ErrInputValidation, err)
	}
	sy, err := scaler.Fit(fitY)
	if err != nil {
		return nil, stage.Wrap(stage.Train, stage.ErrInputValidation, err)
	}
	zx, err := sx.Transform(x)
	if err != nil {
		return nil, stage.Wrap(stage.Train, stage.ErrInputValidation, err)
	}
	zy, err := sy.Transform(y)
	if err != nil {
		return nil, stage.Wrap(stage.Train, stage.ErrInputValidation, err)
	}

	engine, err := gp.New(cfg.gpOptions(log))
	if err != nil {
		return nil, stage.Wrap(stage.Train, stage.ErrInputValidation, err)
	}
	train := gp.Data{X: stratify.Select(zx, part.Train), Y: stratify.Select(zy, part.Train)}
	val := gp.Data{X: stratify.Select(zx, part.Validation), Y: stratify.Select(zy, part.Validation)}
	rep, err := engine.Fit(train, val, sy.Scale())
	if err != nil {
		return nil, err
	}
	if err = engine.Condition(gp.Data{X: zx, Y: zy}); err != nil {
		return nil, stage.Wrap(stage.Train, stage.ErrNumericalInstability, err)
	}
	log.WithFields(logrus.Fields{
		"iterations": rep.Iterations,
		"stop":       rep.StopReason,
		"best_iter":  rep.BestIteration,
		"best_rmse":  rep.BestRMSE,
		"elapsed":    time.Since(start).Round(time.Millisecond),
	}).Info("pipeline: model ready")

	return &Session{
		Config:    cfg,
		Tasks:     tasks,
		Features:  FeatureNames(cfg.Mode),
		ScalerX:   sx,
		ScalerY:   sy,
		Model:     engine,
		Report:    rep,
		Partition: part,
		Positions: positions(samples),
		Period:    DefaultPeriod(samples),
		log:       log,
	}, nil
}

// SetLogger replaces the session logger; nil discards output.
func (s *Session) SetLogger(log *logrus.Logger) { s.log = discard(log) }

// Predictor returns the batched predictor over the session model.
func (s *Session) Predictor() predict.Predictor {
	return predict.Predictor{Model: s.Model, ScalerX: s.ScalerX, ScalerY: s.ScalerY, Tasks: s.Tasks}
}

// PredictGrid synthesizes the lake grid and predicts every task on it.
// period selects the month in SpatioTemporal mode (nil uses Session.Period)
// and must be nil in Spatial mode.
func (s *Session) PredictGrid(period *grid.TimeTag) (*predict.Table, *grid.Grid, error) {
	if s.Model == nil || s.Model.State() != gp.Ready {
		return nil, nil, stage.New(stage.Predict, stage.ErrInputValidation, gp.ErrNotReady)
	}
	switch s.Config.Mode {
	case Spatial:
		if period != nil {
			return nil, nil, stage.Errorf(stage.Grid, stage.ErrInputValidation, "spatial mode does not accept a period")
		}
	case SpatioTemporal:
		if period == nil {
			period = s.Period
		}
		if period == nil {
			return nil, nil, stage.Errorf(stage.Grid, stage.ErrInputValidation, "spatiotemporal mode needs a period")
		}
	}

	g, err := grid.Synthesize(s.Positions, s.Config.gridOptions(period))
	if err != nil {
		return nil, nil, err
	}
	fields := logrus.Fields{"columns": len(g.Columns), "points": len(g.Features), "candidates": g.Candidates}
	if period != nil {
		fields["period"] = fmt.Sprintf("%04d-%02d", period.Year, period.Month)
	}
	discard(s.log).WithFields(fields).Info("pipeline: grid synthesized")

	tbl, err := s.Predictor().Predict(g.Features, g.FeatureNames)
	if err != nil {
		return nil, nil, err
	}
	tbl.YearBase = s.Config.YearBase

	return tbl, g, nil
}
