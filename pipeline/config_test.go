package pipeline_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/katalvlaran/lvlake/pipeline"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, pipeline.Spatial, cfg.Mode)
	assert.Equal(t, 10, cfg.Patience)
	assert.Equal(t, 0.2, cfg.ValidationSplit)
	assert.Equal(t, 1, cfg.Rank)
	assert.Equal(t, 500, cfg.Iterations)
	assert.Equal(t, 60, cfg.Resolution)
	assert.Equal(t, 5, cfg.Neighbors)
	assert.Equal(t, 4.0, cfg.HypoxiaThreshold)
	assert.Equal(t, 0.5, cfg.GradientWindow)
	assert.Equal(t, 2020, cfg.YearBase)
	assert.False(t, cfg.ScaleOnTrainOnly)
}

func TestParseConfig(t *testing.T) {
	cfg, err := pipeline.ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultConfig(), cfg)

	cfg, err = pipeline.ParseConfig([]byte(`
mode: spatiotemporal
early_stopping_patience: 25
validation_split: 0.3
multitask_kernel_rank: 2
grid_resolution_per_axis: 40
hypoxia_threshold: 3.5
`))
	require.NoError(t, err)
	assert.Equal(t, pipeline.SpatioTemporal, cfg.Mode)
	assert.Equal(t, 25, cfg.Patience)
	assert.Equal(t, 0.3, cfg.ValidationSplit)
	assert.Equal(t, 2, cfg.Rank)
	assert.Equal(t, 40, cfg.Resolution)
	assert.Equal(t, 3.5, cfg.HypoxiaThreshold)
	assert.Equal(t, 500, cfg.Iterations, "unset keys keep their defaults")

	for name, doc := range map[string]string{
		"unknown key": "k_neighbours: 3\n",
		"bad mode":    "mode: temporal\n",
		"bad split":   "validation_split: 1.0\n",
		"bad rank":    "multitask_kernel_rank: 0\n",
		"bad grid":    "grid_resolution_per_axis: 1\n",
		"bad window":  "gradient_analysis_depth_window: 0\n",
		"bad safety":  "depth_safety_factor: 1.5\n",
		"bad bins":    "depth_bin_width: -1\n",
	} {
		_, err := pipeline.ParseConfig([]byte(doc))
		assert.ErrorIs(t, err, pipeline.ErrConfig, name)
		assert.ErrorIs(t, err, stage.ErrInputValidation, name)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lvlake.yaml")
	require.NoError(t, os.WriteFile(path, []byte("training_iteration_cap: 120\nseed: 7\n"), 0o600))

	cfg, err := pipeline.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.Iterations)
	assert.Equal(t, int64(7), cfg.Seed)

	_, err = pipeline.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseMode(t *testing.T) {
	m, err := pipeline.ParseMode("spatiotemporal")
	require.NoError(t, err)
	assert.Equal(t, pipeline.SpatioTemporal, m)

	_, err = pipeline.ParseMode("3d")
	assert.ErrorIs(t, err, pipeline.ErrConfig)
}

func ExampleFeatureNames() {
	fmt.Println(pipeline.FeatureNames(pipeline.Spatial))
	fmt.Println(pipeline.FeatureNames(pipeline.SpatioTemporal))
	// Output:
	// [x y depth]
	// [x y depth month year_offset]
}
