// Package store records training runs and prediction tables in PostgreSQL.
//
// A run row summarizes one pipeline.Session (mode, tasks, stopping reason,
// best validation RMSE); its iteration history and any number of prediction
// tables reference it by id. Predictions are stored in long form, one row
// per grid point and task.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/katalvlaran/lvlake/pipeline"
	"github.com/katalvlaran/lvlake/predict"
	"github.com/lib/pq"
)

// ErrNoReport is returned by SaveRun for a session without a training report.
var ErrNoReport = errors.New("store: session has no training report")

// Schema creates the recorder tables.
const Schema = `
CREATE TABLE IF NOT EXISTS lvlake_runs (
	id              BIGSERIAL PRIMARY KEY,
	mode            TEXT NOT NULL,
	tasks           TEXT[] NOT NULL,
	samples         INTEGER NOT NULL,
	iterations      INTEGER NOT NULL,
	stop_reason     TEXT NOT NULL,
	best_iteration  INTEGER NOT NULL,
	best_rmse       DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS lvlake_iterations (
	run_id          BIGINT NOT NULL REFERENCES lvlake_runs(id) ON DELETE CASCADE,
	n               INTEGER NOT NULL,
	loss            DOUBLE PRECISION NOT NULL,
	validation_rmse DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, n)
);
CREATE TABLE IF NOT EXISTS lvlake_predictions (
	run_id  BIGINT NOT NULL REFERENCES lvlake_runs(id) ON DELETE CASCADE,
	point   INTEGER NOT NULL,
	x       DOUBLE PRECISION NOT NULL,
	y       DOUBLE PRECISION NOT NULL,
	depth   DOUBLE PRECISION NOT NULL,
	month   INTEGER,
	year    INTEGER,
	task    TEXT NOT NULL,
	mean    DOUBLE PRECISION NOT NULL,
	std     DOUBLE PRECISION NOT NULL
);`

// Run is one row of lvlake_runs.
type Run struct {
	ID            int64          `db:"id"`
	Mode          string         `db:"mode"`
	Tasks         pq.StringArray `db:"tasks"`
	Samples       int            `db:"samples"`
	Iterations    int            `db:"iterations"`
	StopReason    string         `db:"stop_reason"`
	BestIteration int            `db:"best_iteration"`
	BestRMSE      float64        `db:"best_rmse"`
	CreatedAt     time.Time      `db:"created_at"`
}

// Recorder writes runs and predictions through a sqlx handle.
type Recorder struct {
	db *sqlx.DB
}

// New wraps an open handle; the driver must use $n placeholders.
func New(db *sqlx.DB) *Recorder {
	return &Recorder{db: db}
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*Recorder, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	return New(db), nil
}

// Close releases the underlying handle.
func (r *Recorder) Close() error { return r.db.Close() }

// Migrate creates the tables when missing.
func (r *Recorder) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}

	return nil
}

// SaveRun records the session's training report and iteration history in
// one transaction and returns the run id.
func (r *Recorder) SaveRun(ctx context.Context, s *pipeline.Session, samples int) (int64, error) {
	if s.Report == nil {
		return 0, ErrNoReport
	}
	rep := s.Report
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertRun = `
		INSERT INTO lvlake_runs (
			mode, tasks, samples, iterations, stop_reason, best_iteration, best_rmse
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	var id int64
	err = tx.QueryRowxContext(ctx, insertRun,
		string(s.Config.Mode), pq.Array(s.Tasks), samples,
		rep.Iterations, rep.StopReason.String(), rep.BestIteration, finiteOr(rep.BestRMSE, -1),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: insert run: %w", err)
	}

	const insertIteration = `
		INSERT INTO lvlake_iterations (run_id, n, loss, validation_rmse)
		VALUES ($1, $2, $3, $4)`
	for _, it := range rep.History {
		if _, err = tx.ExecContext(ctx, insertIteration, id, it.N, it.Loss, it.ValidationRMSE); err != nil {
			return 0, fmt.Errorf("store: insert iteration %d: %w", it.N, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}

	return id, nil
}

// SavePredictions records every (point, task) of tbl under runID in one
// transaction and returns the number of rows written, 0 on any error.
func (r *Recorder) SavePredictions(ctx context.Context, runID int64, tbl *predict.Table) (int, error) {
	cols := make(map[string][]float64, 5)
	for _, name := range []string{"x", "y", "depth", "month", "year"} {
		if v, err := tbl.Column(name); err == nil {
			cols[name] = v
		}
	}
	for _, name := range []string{"x", "y", "depth"} {
		if cols[name] == nil {
			return 0, fmt.Errorf("store: prediction table lacks %q: %w", name, predict.ErrUnknownColumn)
		}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insertPrediction = `
		INSERT INTO lvlake_predictions (run_id, point, x, y, depth, month, year, task, mean, std)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	written := 0
	for i := 0; i < tbl.Len(); i++ {
		month, year := optional(cols["month"], i), optional(cols["year"], i)
		for k, task := range tbl.Tasks {
			_, err = tx.ExecContext(ctx, insertPrediction,
				runID, i, cols["x"][i], cols["y"][i], cols["depth"][i], month, year,
				task, tbl.Mean[i][k], tbl.Std[i][k])
			if err != nil {
				return 0, fmt.Errorf("store: insert prediction %d/%s: %w", i, task, err)
			}
			written++
		}
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}

	return written, nil
}

// Runs lists recorded runs, newest first.
func (r *Recorder) Runs(ctx context.Context, limit int) ([]Run, error) {
	const query = `
		SELECT id, mode, tasks, samples, iterations, stop_reason, best_iteration, best_rmse, created_at
		FROM lvlake_runs
		ORDER BY id DESC
		LIMIT $1`
	var runs []Run
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}

	return runs, nil
}

// optional returns col[i] as an integer, or nil when col is absent.
func optional(col []float64, i int) any {
	if col == nil {
		return nil
	}

	return int64(math.Round(col[i]))
}

func finiteOr(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}

	return v
}
