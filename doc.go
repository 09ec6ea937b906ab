// Package lvlake infers continuous water-quality fields of a lake from sparse
// point samples and derives physical indicators from them.
//
// A survey (position, depth, optional month/year, and any of pH, temperature,
// turbidity, dissolved oxygen, TDS) is standardized, split by depth stratum,
// and fitted with a multitask Gaussian process whose kernel couples an
// ARD-RBF over the inputs with a low-rank task covariance. Training stops on
// validation RMSE with patience; the frozen model is then conditioned on every
// sample and evaluated on a grid that follows the lake footprint and the local
// depth, yielding mean and standard deviation for every measurement.
//
// Packages, leaves first:
//
//	stage/       pipeline stage names and the shared error kinds
//	scaler/      per-column standardization with exact inverse
//	stratify/    depth-decile train/validation partition
//	gp/          multitask GP engine: training, early stopping, prediction
//	delaunay/    triangulation, point location, barycentric interpolation
//	grid/        footprint grid with k-NN depth cap
//	smooth/      resampling, Savitzky–Golay, gradients, rolling median
//	raster/      2-D rasters with NaN masks, gradients, connected regions
//	predict/     batched prediction tables in physical units
//	analytics/   thermocline, hypoxia, horizontal gradient, summaries
//	pipeline/    configuration, samples and the trained Session
//	checkpoint/  protobuf session snapshots
//	store/       PostgreSQL recorder for runs and predictions
//	ingest/      survey CSV reader and prediction CSV writer
//	cmd/lvlake   command-line driver
//
// Quick start:
//
//	cfg := pipeline.DefaultConfig()
//	s, err := pipeline.Train(samples, cfg, logrus.New())
//	if err != nil {
//		var se *stage.Error
//		errors.As(err, &se) // se.Stage, se.Kind, se.Iteration
//	}
//	tbl, _, err := s.PredictGrid(nil)
//	a, err := s.Analyze(tbl, math.NaN())
//	fmt.Println(a.Thermocline)
package lvlake
