// Package ingest reads survey CSV files into pipeline samples and writes
// prediction tables back to CSV.
//
// Input columns: latitude, longitude and depth are required; any of the
// canonical measurements (pipeline.Measurements) are picked up; num_sats and
// timestamp are optional. Rows seen by fewer than MinSatellites GPS
// satellites are dropped. Positions are projected onto a sphere of radius
// EarthRadius:
//
//	x = R·cos(lat)·cos(lon), y = R·cos(lat)·sin(lon)
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/katalvlaran/lvlake/pipeline"
	"github.com/katalvlaran/lvlake/stage"
)

// EarthRadius is the projection radius in metres.
const EarthRadius = 6371000.0

var (
	// ErrMissingColumn indicates that a required column is absent.
	ErrMissingColumn = fmt.Errorf("ingest: missing required column: %w", stage.ErrInputValidation)

	// ErrParse indicates an unparseable cell in a required column.
	ErrParse = fmt.Errorf("ingest: malformed value: %w", stage.ErrInputValidation)

	// ErrNoRows indicates that no row survived filtering.
	ErrNoRows = fmt.Errorf("ingest: no usable rows: %w", stage.ErrInputValidation)
)

// Options configures Read.
type Options struct {
	// MinSatellites drops rows whose num_sats is below it (0 disables).
	MinSatellites int
	// TimeLayouts are tried in order on the timestamp column.
	TimeLayouts []string
}

// DefaultOptions returns MinSatellites=4 and RFC 3339 plus the ISO date and
// date-time layouts.
func DefaultOptions() Options {
	return Options{
		MinSatellites: 4,
		TimeLayouts:   []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05", "2006-01-02"},
	}
}

// Dataset is the result of Read.
type Dataset struct {
	Samples []pipeline.Sample
	// Measurements lists the canonical measurement columns found, in
	// canonical order.
	Measurements []string
	// Timed is true when a timestamp column exists and every row parsed.
	Timed bool
	// TimeError explains why a present timestamp column was ignored.
	TimeError error
	// LowSatellites and Incomplete count rows dropped by the num_sats filter
	// and for an empty measurement cell.
	LowSatellites int
	Incomplete    int
}

// Project maps degrees of latitude/longitude to spherical x/y in metres.
func Project(lat, lon float64) (x, y float64) {
	phi, lambda := lat*math.Pi/180, lon*math.Pi/180

	return EarthRadius * math.Cos(phi) * math.Cos(lambda), EarthRadius * math.Cos(phi) * math.Sin(lambda)
}

// ReadFile opens path and calls Read.
func ReadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	defer f.Close()

	return Read(f, opts)
}

// Read parses a CSV document with a header row.
func Read(r io.Reader, opts Options) (*Dataset, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("empty document: %w", ErrNoRows)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	for _, req := range []string{"latitude", "longitude", "depth"} {
		if _, ok := col[req]; !ok {
			return nil, fmt.Errorf("%q: %w", req, ErrMissingColumn)
		}
	}
	ds := &Dataset{}
	for _, m := range pipeline.Measurements {
		if _, ok := col[m]; ok {
			ds.Measurements = append(ds.Measurements, m)
		}
	}
	sats, hasSats := col["num_sats"]
	stamp, hasTime := col["timestamp"]
	ds.Timed = hasTime

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("ingest: line %d: %w", line, err)
		}
		if hasSats && opts.MinSatellites > 0 {
			n, err := strconv.Atoi(strings.TrimSpace(rec[sats]))
			if err != nil {
				return nil, fmt.Errorf("line %d num_sats %q: %w", line, rec[sats], ErrParse)
			}
			if n < opts.MinSatellites {
				ds.LowSatellites++
				continue
			}
		}
		s, complete, err := parseRow(rec, col, ds.Measurements, line)
		if err != nil {
			return nil, err
		}
		if !complete {
			ds.Incomplete++
			continue
		}
		if hasSats {
			s.Satellites, _ = strconv.Atoi(strings.TrimSpace(rec[sats]))
		}
		if ds.Timed {
			ts, err := parseTime(rec[stamp], opts.TimeLayouts)
			if err != nil {
				ds.Timed = false
				ds.TimeError = fmt.Errorf("line %d: %w", line, err)
			} else {
				s.Month, s.Year = int(ts.Month()), ts.Year()
			}
		}
		ds.Samples = append(ds.Samples, s)
	}
	if !ds.Timed {
		for i := range ds.Samples {
			ds.Samples[i].Month, ds.Samples[i].Year = 0, 0
		}
	}
	if len(ds.Samples) == 0 {
		return nil, fmt.Errorf("%d rows below %d satellites, %d incomplete: %w",
			ds.LowSatellites, opts.MinSatellites, ds.Incomplete, ErrNoRows)
	}

	return ds, nil
}

func parseRow(rec []string, col map[string]int, measurements []string, line int) (pipeline.Sample, bool, error) {
	var pos [3]float64
	for k, name := range []string{"latitude", "longitude", "depth"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[col[name]]), 64)
		if err != nil {
			return pipeline.Sample{}, false, fmt.Errorf("line %d %s %q: %w", line, name, rec[col[name]], ErrParse)
		}
		pos[k] = v
	}
	x, y := Project(pos[0], pos[1])
	s := pipeline.Sample{X: x, Y: y, Depth: pos[2], Values: make(map[string]float64, len(measurements))}
	for _, m := range measurements {
		cell := strings.TrimSpace(rec[col[m]])
		if cell == "" || strings.EqualFold(cell, "nan") {
			return pipeline.Sample{}, false, nil
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return pipeline.Sample{}, false, fmt.Errorf("line %d %s %q: %w", line, m, cell, ErrParse)
		}
		s.Values[m] = v
	}

	return s, true, nil
}

func parseTime(cell string, layouts []string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("timestamp %q matches none of %d layouts", cell, len(layouts))
}
