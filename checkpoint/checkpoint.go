// Package checkpoint persists trained pipeline sessions as protobuf-encoded
// google.protobuf.Struct documents.
//
// The document carries a format tag and version, the run configuration, the
// scaler statistics, the frozen hyperparameters and the conditioning data,
// which is everything pipeline.Restore needs to rebuild a Ready session.
// Training history is not stored.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/katalvlaran/lvlake/gp"
	"github.com/katalvlaran/lvlake/grid"
	"github.com/katalvlaran/lvlake/pipeline"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

const (
	format  = "lvlake/session"
	version = 1
)

var (
	// ErrFormat indicates a document that is not an lvlake session checkpoint.
	ErrFormat = errors.New("checkpoint: not an lvlake session")

	// ErrVersion indicates an unsupported checkpoint version.
	ErrVersion = errors.New("checkpoint: unsupported version")

	// ErrField indicates a missing or mistyped field.
	ErrField = errors.New("checkpoint: malformed field")
)

// Marshal encodes s.
func Marshal(s *pipeline.Session) ([]byte, error) {
	snap, err := s.Snapshot()
	if err != nil {
		return nil, err
	}
	doc, err := encode(snap)
	if err != nil {
		return nil, err
	}

	return proto.Marshal(doc)
}

// Unmarshal decodes a session written by Marshal; log is handed to the
// restored session (nil discards).
func Unmarshal(data []byte, log *logrus.Logger) (*pipeline.Session, error) {
	doc := &structpb.Struct{}
	if err := proto.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("checkpoint: decode: %w", err)
	}
	snap, err := decode(doc)
	if err != nil {
		return nil, err
	}

	return pipeline.Restore(snap, log)
}

// Write encodes s to w.
func Write(w io.Writer, s *pipeline.Session) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(data)

	return err
}

// Read decodes a session from r.
func Read(r io.Reader, log *logrus.Logger) (*pipeline.Session, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read: %w", err)
	}

	return Unmarshal(data, log)
}

// Save writes s to path with mode 0644.
func Save(path string, s *pipeline.Session) error {
	data, err := Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

// Load reads a session from path.
func Load(path string, log *logrus.Logger) (*pipeline.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}

	return Unmarshal(data, log)
}

func encode(snap pipeline.Snapshot) (*structpb.Struct, error) {
	cfg, err := configMap(snap.Config)
	if err != nil {
		return nil, err
	}
	hp := snap.Model.Hyperparameters
	positions := make([]any, len(snap.Positions))
	for i, p := range snap.Positions {
		positions[i] = []any{p.X, p.Y, p.Depth}
	}
	var period any
	if snap.Period != nil {
		period = map[string]any{"month": snap.Period.Month, "year": snap.Period.Year}
	}
	tasks := make([]any, len(snap.Tasks))
	for i, t := range snap.Tasks {
		tasks[i] = t
	}

	return structpb.NewStruct(map[string]any{
		"format":  format,
		"version": version,
		"config":  cfg,
		"tasks":   tasks,
		"scaler_x": map[string]any{
			"mean":  list(snap.MeanX),
			"scale": list(snap.ScaleX),
		},
		"scaler_y": map[string]any{
			"mean":  list(snap.MeanY),
			"scale": list(snap.ScaleY),
		},
		"hyperparameters": map[string]any{
			"lengthscales": list(hp.Lengthscales),
			"outputscale":  hp.Outputscale,
			"task_factor":  table(hp.TaskFactor),
			"task_diag":    list(hp.TaskDiag),
			"means":        list(hp.Means),
			"noise":        list(hp.Noise),
		},
		"x":         table(snap.Model.Data.X),
		"y":         table(snap.Model.Data.Y),
		"positions": positions,
		"period":    period,
	})
}

func decode(doc *structpb.Struct) (pipeline.Snapshot, error) {
	m := doc.AsMap()
	if m["format"] != format {
		return pipeline.Snapshot{}, ErrFormat
	}
	if v, _ := m["version"].(float64); v != version {
		return pipeline.Snapshot{}, fmt.Errorf("%w: %v", ErrVersion, m["version"])
	}

	var snap pipeline.Snapshot
	d := decoder{m: m}
	cfg, _ := m["config"].(map[string]any)
	if err := configFrom(cfg, &snap.Config); err != nil {
		return pipeline.Snapshot{}, err
	}
	for _, t := range d.slice("tasks") {
		name, ok := t.(string)
		if !ok {
			d.fail("tasks")
		}
		snap.Tasks = append(snap.Tasks, name)
	}
	sx, sy := d.sub("scaler_x"), d.sub("scaler_y")
	snap.MeanX, snap.ScaleX = sx.floats("mean"), sx.floats("scale")
	snap.MeanY, snap.ScaleY = sy.floats("mean"), sy.floats("scale")

	hp := d.sub("hyperparameters")
	snap.Model = gp.Snapshot{
		Hyperparameters: gp.Hyperparameters{
			Lengthscales: hp.floats("lengthscales"),
			Outputscale:  hp.number("outputscale"),
			TaskFactor:   hp.rows("task_factor"),
			TaskDiag:     hp.floats("task_diag"),
			Means:        hp.floats("means"),
			Noise:        hp.floats("noise"),
		},
		Data: gp.Data{X: d.rows("x"), Y: d.rows("y")},
	}
	for _, p := range d.rows("positions") {
		if len(p) != 3 {
			d.fail("positions")
			break
		}
		snap.Positions = append(snap.Positions, grid.Point{X: p[0], Y: p[1], Depth: p[2]})
	}
	if m["period"] != nil {
		p := d.sub("period")
		snap.Period = &grid.TimeTag{Month: int(p.number("month")), Year: int(p.number("year"))}
		if p.err != nil {
			d.err = p.err
		}
	}
	for _, sub := range []decoder{sx, sy, hp} {
		if d.err == nil {
			d.err = sub.err
		}
	}
	if d.err != nil {
		return pipeline.Snapshot{}, d.err
	}

	return snap, nil
}

// configMap round-trips the config through YAML so the document keys match
// the configuration file keys. The seed is kept as a decimal string because
// structpb numbers are doubles and would round seeds above 2^53.
func configMap(cfg pipeline.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: encode config: %w", err)
	}
	var m map[string]any
	if err = yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("checkpoint: encode config: %w", err)
	}
	m["seed"] = strconv.FormatInt(cfg.Seed, 10)

	return m, nil
}

func configFrom(m map[string]any, cfg *pipeline.Config) error {
	if m == nil {
		return fmt.Errorf("%w: config", ErrField)
	}
	if str, ok := m["seed"].(string); ok {
		seed, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: config seed: %w", ErrField, err)
		}
		m["seed"] = seed
	}
	// structpb stores every number as a double; integral values go back as
	// integers so large ones are not written in exponent form.
	for k, v := range m {
		if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			m[k] = int64(f)
		}
	}
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: config: %w", ErrField, err)
	}
	if *cfg, err = pipeline.ParseConfig(raw); err != nil {
		return fmt.Errorf("%w: config: %w", ErrField, err)
	}

	return nil
}

func list(v []float64) []any {
	out := make([]any, len(v))
	for i, x := range v {
		out[i] = x
	}

	return out
}

func table(rows [][]float64) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = list(r)
	}

	return out
}

// decoder reads typed fields from a Struct map and records the first error.
type decoder struct {
	m   map[string]any
	err error
}

func (d *decoder) fail(key string) {
	if d.err == nil {
		d.err = fmt.Errorf("%w: %s", ErrField, key)
	}
}

func (d *decoder) sub(key string) decoder {
	m, ok := d.m[key].(map[string]any)
	if !ok {
		d.fail(key)
	}

	return decoder{m: m}
}

func (d *decoder) slice(key string) []any {
	v, ok := d.m[key].([]any)
	if !ok {
		d.fail(key)
	}

	return v
}

func (d *decoder) number(key string) float64 {
	v, ok := d.m[key].(float64)
	if !ok {
		d.fail(key)
	}

	return v
}

func (d *decoder) floats(key string) []float64 {
	return d.toFloats(key, d.slice(key))
}

func (d *decoder) toFloats(key string, raw []any) []float64 {
	out := make([]float64, len(raw))
	for i, x := range raw {
		v, ok := x.(float64)
		if !ok {
			d.fail(key)
		}
		out[i] = v
	}

	return out
}

func (d *decoder) rows(key string) [][]float64 {
	raw := d.slice(key)
	out := make([][]float64, len(raw))
	for i, r := range raw {
		row, ok := r.([]any)
		if !ok {
			d.fail(key)
		}
		out[i] = d.toFloats(key, row)
	}

	return out
}
