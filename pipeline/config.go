// Package pipeline wires the lvlake stages into one workflow:
//
//	samples → validate → split → scale → train → condition → grid → predict → analyze
//
// A trained Session is the explicit context object carrying the fitted
// scalers, the Ready model and the configuration; it predicts new grids
// (optionally for another month/year) without retraining.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/katalvlaran/lvlake/analytics"
	"github.com/katalvlaran/lvlake/gp"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/katalvlaran/lvlake/stratify"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrConfig indicates an invalid Config; it matches stage.ErrInputValidation.
var ErrConfig = fmt.Errorf("pipeline: invalid configuration: %w", stage.ErrInputValidation)

// Mode selects the feature set.
type Mode string

const (
	// Spatial uses [x, y, depth].
	Spatial Mode = "spatial"
	// SpatioTemporal uses [x, y, depth, month, year − YearBase].
	SpatioTemporal Mode = "spatiotemporal"
)

// ParseMode accepts "spatial" or "spatiotemporal".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case Spatial, SpatioTemporal:
		return m, nil
	}

	return "", fmt.Errorf("mode %q: %w", s, ErrConfig)
}

// Config holds every tunable of a run. Zero values are invalid; start from
// DefaultConfig.
type Config struct {
	Mode             Mode    `yaml:"mode"`
	Patience         int     `yaml:"early_stopping_patience"`
	ValidationSplit  float64 `yaml:"validation_split"`
	Rank             int     `yaml:"multitask_kernel_rank"`
	Iterations       int     `yaml:"training_iteration_cap"`
	LearningRate     float64 `yaml:"learning_rate"`
	Seed             int64   `yaml:"seed"`
	LogEvery         int     `yaml:"log_every"`
	ScaleOnTrainOnly bool    `yaml:"scale_on_train_only"`

	Resolution   int     `yaml:"grid_resolution_per_axis"`
	Neighbors    int     `yaml:"k_neighbors"`
	SafetyFactor float64 `yaml:"depth_safety_factor"`
	DepthSamples int     `yaml:"depth_samples_per_column"`
	YearBase     int     `yaml:"year_offset_base"`

	HypoxiaThreshold float64 `yaml:"hypoxia_threshold"`
	GradientWindow   float64 `yaml:"gradient_analysis_depth_window"`
	RasterSize       int     `yaml:"gradient_raster_size"`
	DepthBinWidth    float64 `yaml:"depth_bin_width"`
}

// DefaultConfig returns the documented defaults in Spatial mode.
func DefaultConfig() Config {
	gpo, gro := gp.DefaultOptions(), grid.DefaultOptions()
	split, grad := stratify.DefaultOptions(), analytics.DefaultGradientOptions()

	return Config{
		Mode:             Spatial,
		Patience:         gpo.Patience,
		ValidationSplit:  split.ValidationRatio,
		Rank:             gpo.Rank,
		Iterations:       gpo.Iterations,
		LearningRate:     gpo.LearningRate,
		Seed:             gpo.Seed,
		LogEvery:         gpo.LogEvery,
		Resolution:       gro.Resolution,
		Neighbors:        gro.Neighbors,
		SafetyFactor:     gro.SafetyFactor,
		DepthSamples:     gro.DepthSamples,
		YearBase:         gro.YearBase,
		HypoxiaThreshold: analytics.DefaultHypoxiaThreshold,
		GradientWindow:   grad.Window,
		RasterSize:       grad.RasterSize,
		DepthBinWidth:    1,
	}
}

// Validate checks every field by delegating to the stage option validators.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	if !(c.DepthBinWidth > 0) {
		return fmt.Errorf("depth bin width %v <= 0: %w", c.DepthBinWidth, ErrConfig)
	}
	checks := []error{
		c.splitOptions().Validate(),
		c.gpOptions(nil).Validate(),
		c.gridOptions(nil).Validate(),
		c.gradientOptions().Validate(),
	}
	for _, err := range checks {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}

	return nil
}

// LoadConfig reads a YAML file over DefaultConfig; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("pipeline: read config: %w", err)
	}

	return ParseConfig(raw)
}

// ParseConfig decodes YAML over DefaultConfig and validates the result.
// An empty document yields the defaults.
func ParseConfig(raw []byte) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// String renders the config as YAML.
func (c Config) String() string {
	type plain Config
	out, err := yaml.Marshal(plain(c))
	if err != nil {
		return fmt.Sprintf("%+v", plain(c))
	}

	return string(out)
}

func (c Config) splitOptions() stratify.Options {
	o := stratify.DefaultOptions()
	o.ValidationRatio = c.ValidationSplit
	o.Seed = c.Seed

	return o
}

func (c Config) gpOptions(log *logrus.Logger) gp.Options {
	return gp.Options{
		Rank:         c.Rank,
		Iterations:   c.Iterations,
		Patience:     c.Patience,
		LearningRate: c.LearningRate,
		Seed:         c.Seed,
		LogEvery:     c.LogEvery,
		Logger:       log,
	}
}

func (c Config) gridOptions(period *grid.TimeTag) grid.Options {
	return grid.Options{
		Resolution:   c.Resolution,
		Neighbors:    c.Neighbors,
		SafetyFactor: c.SafetyFactor,
		DepthSamples: c.DepthSamples,
		YearBase:     c.YearBase,
		Time:         period,
	}
}

func (c Config) gradientOptions() analytics.GradientOptions {
	o := analytics.DefaultGradientOptions()
	o.Window = c.GradientWindow
	o.RasterSize = c.RasterSize

	return o
}
