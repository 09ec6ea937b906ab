package ingest_test

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/katalvlaran/lvlake/ingest"
	"github.com/katalvlaran/lvlake/predict"
	"github.com/katalvlaran/lvlake/stage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const survey = `latitude,longitude,depth,temperature,dissolved_oxygen,num_sats,timestamp,notes
52.10,21.00,1.5,18.2,9.1,7,2024-06-03 10:15:00,a
52.11,21.01,3.0,16.0,8.4,3,2024-06-03 10:20:00,low sats
52.12,21.02,4.5,,7.9,9,2024-06-03 10:25:00,no temp
52.13,21.03,6.0,12.5,6.0,12,2024-07-01T08:00:00Z,b
`

func TestRead(t *testing.T) {
	ds, err := ingest.Read(strings.NewReader(survey), ingest.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"temperature", "dissolved_oxygen"}, ds.Measurements)
	assert.Equal(t, 1, ds.LowSatellites)
	assert.Equal(t, 1, ds.Incomplete)
	require.Len(t, ds.Samples, 2)
	assert.True(t, ds.Timed)
	assert.NoError(t, ds.TimeError)

	s := ds.Samples[0]
	x, y := ingest.Project(52.10, 21.00)
	assert.Equal(t, x, s.X)
	assert.Equal(t, y, s.Y)
	assert.Equal(t, 1.5, s.Depth)
	assert.Equal(t, map[string]float64{"temperature": 18.2, "dissolved_oxygen": 9.1}, s.Values)
	assert.Equal(t, 7, s.Satellites)
	assert.Equal(t, 6, s.Month)
	assert.Equal(t, 2024, s.Year)
	assert.Equal(t, 7, ds.Samples[1].Month)
}

func TestRead_UnparseableTimestampDisablesTime(t *testing.T) {
	doc := "latitude,longitude,depth,pH,timestamp\n1,2,3,7,2024-05-01\n1,2,4,7,yesterday\n"
	ds, err := ingest.Read(strings.NewReader(doc), ingest.DefaultOptions())
	require.NoError(t, err)
	assert.False(t, ds.Timed)
	assert.Error(t, ds.TimeError)
	for _, s := range ds.Samples {
		assert.Zero(t, s.Month)
		assert.False(t, s.Timed())
	}
}

func TestRead_Errors(t *testing.T) {
	opts := ingest.DefaultOptions()
	cases := map[string]struct {
		doc  string
		want error
	}{
		"empty":         {"", ingest.ErrNoRows},
		"missing depth": {"latitude,longitude\n1,2\n", ingest.ErrMissingColumn},
		"bad latitude":  {"latitude,longitude,depth\nnorth,2,3\n", ingest.ErrParse},
		"bad value":     {"latitude,longitude,depth,pH\n1,2,3,acid\n", ingest.ErrParse},
		"bad sats":      {"latitude,longitude,depth,num_sats\n1,2,3,many\n", ingest.ErrParse},
		"all filtered":  {"latitude,longitude,depth,num_sats\n1,2,3,1\n", ingest.ErrNoRows},
		"header only":   {"latitude,longitude,depth\n", ingest.ErrNoRows},
	}
	for name, tc := range cases {
		_, err := ingest.Read(strings.NewReader(tc.doc), opts)
		assert.ErrorIs(t, err, tc.want, name)
		assert.ErrorIs(t, err, stage.ErrInputValidation, name)
	}

	_, err := ingest.ReadFile(filepath.Join(t.TempDir(), "nope.csv"), opts)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProject(t *testing.T) {
	x, y := ingest.Project(0, 0)
	assert.Equal(t, ingest.EarthRadius, x)
	assert.InDelta(t, 0, y, 1e-9)

	x, y = ingest.Project(60, 90)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, ingest.EarthRadius/2, y, 1e-6)
	assert.InDelta(t, ingest.EarthRadius*math.Cos(math.Pi/3), math.Hypot(x, y), 1e-6)
}

func TestWriteTable(t *testing.T) {
	tbl := &predict.Table{
		Features:     [][]float64{{10, 20, 0.5, 6, 4}},
		FeatureNames: []string{"x", "y", "depth", "month", "year_offset"},
		Tasks:        []string{"pH"},
		Mean:         [][]float64{{7.25}},
		Std:          [][]float64{{0.125}},
		YearBase:     2020,
	}
	var buf bytes.Buffer
	require.NoError(t, ingest.WriteTable(&buf, tbl))
	assert.Equal(t, "x,y,depth,month,year,pH_pred,pH_std\n10,20,0.5,6,2024,7.25,0.125\n", buf.String())

	path := filepath.Join(t.TempDir(), "pred.csv")
	require.NoError(t, ingest.WriteTableFile(path, tbl))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, buf.String(), string(raw))
}

func ExampleProject() {
	x, y := ingest.Project(0, 90)
	fmt.Printf("%.0f %.0f\n", math.Abs(x), y)
	// Output: 0 6371000
}
