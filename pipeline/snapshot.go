package pipeline

import (
	"fmt"

	"github.com/katalvlaran/lvlake/gp"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/scaler"
	"github.com/sirupsen/logrus"
)

// Snapshot is the serializable state of a trained Session.
type Snapshot struct {
	Config        Config
	Tasks         []string
	MeanX, ScaleX []float64
	MeanY, ScaleY []float64
	Model         gp.Snapshot
	Positions     []grid.Point
	Period        *grid.TimeTag
}

// Snapshot captures the session for checkpointing.
func (s *Session) Snapshot() (Snapshot, error) {
	if s.Model == nil || s.ScalerX == nil || s.ScalerY == nil {
		return Snapshot{}, fmt.Errorf("pipeline: snapshot of an incomplete session: %w", gp.ErrNotReady)
	}
	model, err := s.Model.Snapshot()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Config:    s.Config,
		Tasks:     append([]string(nil), s.Tasks...),
		MeanX:     s.ScalerX.Mean(),
		ScaleX:    s.ScalerX.Scale(),
		MeanY:     s.ScalerY.Mean(),
		ScaleY:    s.ScalerY.Scale(),
		Model:     model,
		Positions: append([]grid.Point(nil), s.Positions...),
	}
	if s.Period != nil {
		p := *s.Period
		snap.Period = &p
	}

	return snap, nil
}

// Restore rebuilds a Ready session from snap without retraining.
func Restore(snap Snapshot, log *logrus.Logger) (*Session, error) {
	log = discard(log)
	if err := snap.Config.Validate(); err != nil {
		return nil, err
	}
	sx, err := scaler.FromStats(snap.MeanX, snap.ScaleX)
	if err != nil {
		return nil, fmt.Errorf("pipeline: restore feature scaler: %w", err)
	}
	sy, err := scaler.FromStats(snap.MeanY, snap.ScaleY)
	if err != nil {
		return nil, fmt.Errorf("pipeline: restore target scaler: %w", err)
	}
	names := FeatureNames(snap.Config.Mode)
	if sx.Width() != len(names) || sy.Width() != len(snap.Tasks) {
		return nil, fmt.Errorf("pipeline: scalers %d/%d do not match %d features and %d tasks: %w",
			sx.Width(), sy.Width(), len(names), len(snap.Tasks), ErrConfig)
	}
	model, err := gp.Restore(snap.Model, snap.Config.gpOptions(log))
	if err != nil {
		return nil, fmt.Errorf("pipeline: restore model: %w", err)
	}
	log.WithFields(logrus.Fields{"tasks": snap.Tasks, "points": len(snap.Positions)}).Info("pipeline: session restored")

	return &Session{
		Config:    snap.Config,
		Tasks:     append([]string(nil), snap.Tasks...),
		Features:  names,
		ScalerX:   sx,
		ScalerY:   sy,
		Model:     model,
		Positions: append([]grid.Point(nil), snap.Positions...),
		Period:    snap.Period,
		log:       log,
	}, nil
}
